package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/cli"
)

func runReindex(args []string) int {
	fs := flag.NewFlagSet("reindex", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")

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
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer rt.Close()

	if rt.index == nil {
		fmt.Fprintln(os.Stderr, "MEILI_URL is not configured")
		return 1
	}

	started := time.Now()
	total, err := rt.search.Reindex(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Reindex failed after %d documents: %v\n", total, err)
		return 1
	}
	rt.logger.Info().
		Int("documents", total).
		Dur("elapsed", time.Since(started)).
		Str("index", rt.cfg.MeiliIndex).
		Msg("reindex complete")
	fmt.Printf("indexed=%d\n", total)
	return 0
}
