package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/cli"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/visibility"
)

func runBadge(args []string) int {
	if len(args) == 0 {
		printBadgeUsage()
		return 2
	}
	action := strings.ToLower(strings.TrimSpace(args[0]))
	if action != "grant" && action != "revoke" {
		printBadgeUsage()
		return 2
	}

	fs := flag.NewFlagSet("badge "+action, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 2 {
		printBadgeUsage()
		return 2
	}
	userID := strings.TrimSpace(fs.Arg(0))
	badge := strings.ToLower(strings.TrimSpace(fs.Arg(1)))
	if userID == "" {
		fmt.Fprintln(os.Stderr, "user id must not be empty")
		return 2
	}
	if !visibility.IsCommunityBadge(badge) {
		fmt.Fprintf(os.Stderr, "unknown badge %q (allowed: %s)\n", badge, strings.Join(visibility.CommunityBadges(), ", "))
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := openRuntime(ctx, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer rt.Close()

	now := time.Now().UTC()
	changed := true
	if action == "grant" {
		err = rt.pool.GrantBadge(ctx, userID, badge, now)
	} else {
		changed, err = rt.pool.RevokeBadge(ctx, userID, badge, now)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to %s badge: %v\n", action, err)
		return 1
	}
	if err := rt.badges.Invalidate(ctx, userID); err != nil {
		rt.logger.Warn().Err(err).Str("user_id", userID).Msg("badge cache invalidation failed")
	}

	fmt.Printf("user=%s badge=%s action=%s changed=%t\n", userID, badge, action, changed)
	return 0
}

func printBadgeUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  contenthub badge grant <user_id> <badge> [--env .env] [--timeout 30s]")
	fmt.Fprintln(os.Stderr, "  contenthub badge revoke <user_id> <badge> [--env .env] [--timeout 30s]")
}
