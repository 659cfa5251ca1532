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
)

func runHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Second, "Connection timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := openRuntime(ctx, envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer rt.Close()

	status := 0
	fmt.Println("ok: database ping successful")

	switch {
	case strings.TrimSpace(rt.cfg.RedisURL) == "":
		fmt.Println("skip: redis not configured")
	case rt.redis == nil:
		fmt.Println("fail: redis unreachable")
		status = 1
	default:
		fmt.Println("ok: redis ping successful")
	}

	switch {
	case rt.index == nil:
		fmt.Println("skip: meilisearch not configured")
	case !rt.index.Healthy():
		// The API still serves keyword search from the database.
		fmt.Println("warn: meilisearch unhealthy, keyword search falls back to the database")
	default:
		fmt.Println("ok: meilisearch healthy")
	}

	rt.logger.Info().
		Dur("timeout", *timeout).
		Int("status", status).
		Msg("health check finished")
	return status
}
