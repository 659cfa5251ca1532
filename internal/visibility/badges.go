package visibility

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	BadgeCommunityBuilder = "community-builder"
	BadgeHero             = "hero"
	BadgeAmbassador       = "ambassador"
	BadgeUserGroupLeader  = "user-group-leader"
)

var communityBadges = []string{
	BadgeCommunityBuilder,
	BadgeHero,
	BadgeAmbassador,
	BadgeUserGroupLeader,
}

// CommunityBadges lists the badges that unlock AWS_COMMUNITY content.
func CommunityBadges() []string {
	out := make([]string, len(communityBadges))
	copy(out, communityBadges)
	return out
}

func IsCommunityBadge(badge string) bool {
	normalized := strings.ToLower(strings.TrimSpace(badge))
	for _, candidate := range communityBadges {
		if candidate == normalized {
			return true
		}
	}
	return false
}

type BadgeLookup interface {
	HasCommunityBadge(ctx context.Context, userID string) (bool, error)
}

// Resolve builds a Viewer from already-verified identity facts. The badge
// lookup is only consulted when it can change the outcome.
func Resolve(ctx context.Context, badges BadgeLookup, userID string, isAdmin, isAWSEmployee bool) (Viewer, error) {
	viewer := Viewer{
		UserID:        strings.TrimSpace(userID),
		IsAdmin:       isAdmin,
		IsAWSEmployee: isAWSEmployee,
	}
	if viewer.Anonymous() || isAdmin || isAWSEmployee || badges == nil {
		return viewer, nil
	}
	has, err := badges.HasCommunityBadge(ctx, viewer.UserID)
	if err != nil {
		return Viewer{}, fmt.Errorf("lookup community badge user=%s: %w", viewer.UserID, err)
	}
	viewer.HasCommunityBadge = has
	return viewer, nil
}

// CachedBadgeLookup memoizes another lookup in Redis.
type CachedBadgeLookup struct {
	client *redis.Client
	next   BadgeLookup
	ttl    time.Duration
	prefix string
}

func NewCachedBadgeLookup(client *redis.Client, next BadgeLookup, ttl time.Duration) *CachedBadgeLookup {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedBadgeLookup{
		client: client,
		next:   next,
		ttl:    ttl,
		prefix: "contenthub:badge:",
	}
}

func (c *CachedBadgeLookup) key(userID string) string {
	return c.prefix + userID
}

func (c *CachedBadgeLookup) HasCommunityBadge(ctx context.Context, userID string) (bool, error) {
	if c.next == nil {
		return false, fmt.Errorf("badge lookup is not configured")
	}
	if c.client == nil {
		return c.next.HasCommunityBadge(ctx, userID)
	}

	cached, err := c.client.Get(ctx, c.key(userID)).Result()
	switch {
	case err == nil:
		return cached == "1", nil
	case err != redis.Nil:
		// Cache outages fall through to the source of truth.
		return c.next.HasCommunityBadge(ctx, userID)
	}

	has, err := c.next.HasCommunityBadge(ctx, userID)
	if err != nil {
		return false, err
	}
	value := "0"
	if has {
		value = "1"
	}
	_ = c.client.Set(ctx, c.key(userID), value, c.ttl).Err()
	return has, nil
}

// Invalidate drops the cached answer, e.g. after a badge grant or revoke.
func (c *CachedBadgeLookup) Invalidate(ctx context.Context, userID string) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate badge cache: %w", err)
	}
	return nil
}
