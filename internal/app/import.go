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
	"github.com/guilleojeda/community-content-tracker-sub003/internal/content"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/db"
	payloadschema "github.com/guilleojeda/community-content-tracker-sub003/internal/schema"
)

type importResult struct {
	Files    int
	Payloads int
	Inserted int
	Skipped  int
	Failed   int
	IDs      []string
}

func runImport(args []string) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")
	dir := fs.String("dir", "", "Directory containing .json content files")
	file := fs.String("file", "", "Single .json content file")
	recursive := fs.Bool("recursive", true, "Recursively scan subdirectories")
	actor := fs.String("actor", "cli", "Actor id recorded in audit events")
	skipExisting := fs.Bool("skip-existing", true, "Skip payloads whose first URL is already stored")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	var files []string
	switch {
	case strings.TrimSpace(*file) != "" && strings.TrimSpace(*dir) != "":
		fmt.Fprintln(os.Stderr, "use either --file or --dir")
		return 2
	case strings.TrimSpace(*file) != "":
		files = []string{strings.TrimSpace(*file)}
	case strings.TrimSpace(*dir) != "":
		collected, err := collectJSONFiles(*dir, *recursive)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Import setup failed: %v\n", err)
			return 1
		}
		files = collected
	default:
		fmt.Fprintln(os.Stderr, "--file or --dir is required")
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

	result := importFiles(ctx, rt.pool, rt.content, *actor, files, *skipExisting)
	rt.logger.Info().
		Int("files", result.Files).
		Int("inserted", result.Inserted).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("import finished")

	fmt.Printf(
		"import files=%d payloads=%d inserted=%d skipped=%d failed=%d\n",
		result.Files,
		result.Payloads,
		result.Inserted,
		result.Skipped,
		result.Failed,
	)
	if result.Failed > 0 {
		return 1
	}
	return 0
}

// importFiles validates every payload and creates content for the valid
// ones. One bad payload does not stop the rest.
func importFiles(ctx context.Context, pool *db.Pool, svc *content.Service, actor string, files []string, skipExisting bool) importResult {
	result := importResult{}
	for _, path := range files {
		result.Files++

		payloads, err := readPayloadFile(path)
		if err != nil {
			result.Failed++
			fmt.Fprintf(os.Stderr, "FAILED %s: %v\n", path, err)
			continue
		}

		for i, raw := range payloads {
			result.Payloads++

			payload, err := payloadschema.ValidateContentPayload(raw)
			if err != nil {
				result.Failed++
				fmt.Fprintf(os.Stderr, "FAILED %s[%d]: %v\n", path, i, err)
				continue
			}
			in, err := payload.NewContent()
			if err != nil {
				result.Failed++
				fmt.Fprintf(os.Stderr, "FAILED %s[%d]: %v\n", path, i, err)
				continue
			}

			if skipExisting && len(in.URLs) > 0 {
				existing, err := pool.FindByURL(ctx, in.URLs[0])
				if err != nil {
					result.Failed++
					fmt.Fprintf(os.Stderr, "FAILED %s[%d]: lookup url: %v\n", path, i, err)
					continue
				}
				if existing != nil {
					result.Skipped++
					fmt.Fprintf(os.Stderr, "SKIPPED %s[%d]: %s already stored as %s\n", path, i, in.URLs[0], existing.ID)
					continue
				}
			}

			item, err := svc.Create(ctx, actor, in)
			if err != nil {
				result.Failed++
				fmt.Fprintf(os.Stderr, "FAILED %s[%d]: %v\n", path, i, err)
				continue
			}
			result.Inserted++
			result.IDs = append(result.IDs, item.ID)
		}
	}
	return result
}
