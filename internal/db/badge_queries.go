package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/visibility"
)

// HasCommunityBadge reports whether the user holds any unrevoked badge that
// unlocks community content. It satisfies visibility.BadgeLookup.
func (p *Pool) HasCommunityBadge(ctx context.Context, userID string) (bool, error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return false, nil
	}
	const q = `
SELECT COUNT(*)
FROM user_badges
WHERE user_id = ?
  AND badge IN ?
  AND revoked_at IS NULL
`
	var count int64
	if err := p.QueryRow(ctx, q, trimmed, visibility.CommunityBadges()).Scan(&count); err != nil {
		return false, fmt.Errorf("query community badges: %w", err)
	}
	return count > 0, nil
}

// GrantBadge records or re-activates a badge.
func (p *Pool) GrantBadge(ctx context.Context, userID, badge string, now time.Time) error {
	trimmedUser := strings.TrimSpace(userID)
	normalizedBadge := strings.ToLower(strings.TrimSpace(badge))
	if trimmedUser == "" || normalizedBadge == "" {
		return fmt.Errorf("user id and badge are required")
	}
	const q = `
INSERT INTO user_badges (id, user_id, badge, granted_at, revoked_at)
VALUES (?, ?, ?, ?, NULL)
ON CONFLICT (user_id, badge) DO UPDATE
SET
	granted_at = excluded.granted_at,
	revoked_at = NULL
`
	if _, err := p.Exec(ctx, q, uuid.NewString(), trimmedUser, normalizedBadge, now.UTC()); err != nil {
		return fmt.Errorf("grant badge: %w", err)
	}
	return nil
}

func (p *Pool) RevokeBadge(ctx context.Context, userID, badge string, now time.Time) (bool, error) {
	const q = `
UPDATE user_badges
SET revoked_at = ?
WHERE user_id = ?
  AND badge = ?
  AND revoked_at IS NULL
`
	tag, err := p.Exec(ctx, q, now.UTC(), strings.TrimSpace(userID), strings.ToLower(strings.TrimSpace(badge)))
	if err != nil {
		return false, fmt.Errorf("revoke badge: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
