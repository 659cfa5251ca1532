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

func runDelete(args []string) int {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	hard := fs.Bool("hard", false, "Remove the row and its URLs permanently")
	actor := fs.String("actor", "cli", "Actor id recorded in audit events")
	force := fs.Bool("force", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		printDeleteUsage()
		return 2
	}

	id := strings.TrimSpace(fs.Arg(0))
	if id == "" {
		fmt.Fprintln(os.Stderr, "content id must not be empty")
		return 2
	}

	if !*force {
		verb := "Soft delete"
		if *hard {
			verb = "Permanently delete"
		}
		ok, err := confirmDangerousAction(fmt.Sprintf("%s content %q?", verb, id))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read confirmation: %v\n", err)
			return 1
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "Cancelled")
			return 1
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := openRuntime(ctx, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer rt.Close()

	if err := rt.content.Delete(ctx, operator(*actor), id, *hard); err != nil {
		reportError("delete content", err)
		return 1
	}
	fmt.Printf("deleted=%s hard=%t\n", id, *hard)
	return 0
}

func printDeleteUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  contenthub delete <content_id> [--hard] [--force] [--actor cli] [--env .env] [--timeout 30s]")
}
