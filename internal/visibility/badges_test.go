package visibility

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeBadgeLookup struct {
	holders map[string]bool
	err     error
	calls   int
}

func (f *fakeBadgeLookup) HasCommunityBadge(_ context.Context, userID string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.holders[userID], nil
}

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, s
}

func TestResolveSkipsLookupWhenRoleDecides(t *testing.T) {
	t.Parallel()

	lookup := &fakeBadgeLookup{holders: map[string]bool{"u1": true}}
	ctx := context.Background()

	if _, err := Resolve(ctx, lookup, "", false, false); err != nil {
		t.Fatalf("Resolve anonymous: %v", err)
	}
	if _, err := Resolve(ctx, lookup, "u1", true, false); err != nil {
		t.Fatalf("Resolve admin: %v", err)
	}
	if lookup.calls != 0 {
		t.Fatalf("expected no badge lookups, got %d", lookup.calls)
	}

	viewer, err := Resolve(ctx, lookup, "u1", false, false)
	if err != nil {
		t.Fatalf("Resolve user: %v", err)
	}
	if !viewer.HasCommunityBadge || lookup.calls != 1 {
		t.Fatalf("expected badge lookup to mark viewer, got %#v calls=%d", viewer, lookup.calls)
	}
}

func TestResolvePropagatesLookupFailure(t *testing.T) {
	t.Parallel()

	lookup := &fakeBadgeLookup{err: errors.New("boom")}
	if _, err := Resolve(context.Background(), lookup, "u1", false, false); err == nil {
		t.Fatalf("expected lookup error")
	}
}

func TestCachedBadgeLookupCachesBothAnswers(t *testing.T) {
	t.Parallel()

	client, _ := newTestRedis(t)
	source := &fakeBadgeLookup{holders: map[string]bool{"hero": true}}
	cached := NewCachedBadgeLookup(client, source, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		has, err := cached.HasCommunityBadge(ctx, "hero")
		if err != nil || !has {
			t.Fatalf("expected cached hit for hero, got %v err=%v", has, err)
		}
		has, err = cached.HasCommunityBadge(ctx, "nobody")
		if err != nil || has {
			t.Fatalf("expected cached miss for nobody, got %v err=%v", has, err)
		}
	}
	if source.calls != 2 {
		t.Fatalf("expected 2 source calls, got %d", source.calls)
	}
}

func TestCachedBadgeLookupExpiresAndInvalidates(t *testing.T) {
	t.Parallel()

	client, server := newTestRedis(t)
	source := &fakeBadgeLookup{holders: map[string]bool{"u1": false}}
	cached := NewCachedBadgeLookup(client, source, time.Minute)
	ctx := context.Background()

	if has, _ := cached.HasCommunityBadge(ctx, "u1"); has {
		t.Fatalf("expected no badge")
	}

	source.holders["u1"] = true
	if has, _ := cached.HasCommunityBadge(ctx, "u1"); has {
		t.Fatalf("expected stale cached answer before expiry")
	}

	server.FastForward(2 * time.Minute)
	if has, _ := cached.HasCommunityBadge(ctx, "u1"); !has {
		t.Fatalf("expected refreshed answer after ttl")
	}

	source.holders["u1"] = false
	if err := cached.Invalidate(ctx, "u1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if has, _ := cached.HasCommunityBadge(ctx, "u1"); has {
		t.Fatalf("expected fresh answer after invalidate")
	}
	if source.calls != 3 {
		t.Fatalf("expected 3 source calls, got %d", source.calls)
	}
}

func TestCachedBadgeLookupFallsThroughWhenRedisDown(t *testing.T) {
	t.Parallel()

	client, server := newTestRedis(t)
	source := &fakeBadgeLookup{holders: map[string]bool{"u1": true}}
	cached := NewCachedBadgeLookup(client, source, time.Minute)
	server.Close()

	has, err := cached.HasCommunityBadge(context.Background(), "u1")
	if err != nil || !has {
		t.Fatalf("expected source answer when redis is down, got %v err=%v", has, err)
	}
}

func TestIsCommunityBadge(t *testing.T) {
	t.Parallel()

	for _, badge := range CommunityBadges() {
		if !IsCommunityBadge(badge) {
			t.Fatalf("expected %s to be a community badge", badge)
		}
	}
	if !IsCommunityBadge(" Hero ") {
		t.Fatalf("expected case-insensitive match")
	}
	if IsCommunityBadge("speaker") {
		t.Fatalf("speaker is not a community badge")
	}
}
