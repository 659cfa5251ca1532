package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/cli"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/content"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/visibility"
)

func runDuplicates(args []string) int {
	fs := flag.NewFlagSet("duplicates", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	user := fs.String("user", "", "Owner whose library is scanned")
	threshold := fs.Float64("threshold", content.DefaultDuplicateThreshold, "Per-field similarity threshold between 0 and 1")
	fieldsRaw := fs.String("fields", "", "Comma separated fields to compare: title, tags, urls (default all)")
	target := fs.String("target", "", "Compare every item against this content id only")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if strings.TrimSpace(*user) == "" {
		fmt.Fprintln(os.Stderr, "--user is required")
		return 2
	}
	fields, err := content.ParseFields(*fieldsRaw)
	if err != nil {
		fmt.Fprintln(os.Stderr, "--fields must list title, tags or urls")
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
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

	matches, err := rt.content.FindDuplicates(ctx, visibility.Viewer{UserID: strings.TrimSpace(*user)}, content.DuplicateOptions{
		Threshold:       *threshold,
		Fields:          fields,
		TargetContentID: *target,
	})
	if err != nil {
		reportError("find duplicates", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(matches); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(matches))
	for _, match := range matches {
		fieldNames := make([]string, 0, len(match.MatchedFields))
		for _, field := range match.MatchedFields {
			fieldNames = append(fieldNames, string(field))
		}
		rows = append(rows, []string{
			match.DuplicateOfID,
			match.Content.ID,
			strconv.FormatFloat(match.Similarity, 'f', 3, 64),
			strings.Join(fieldNames, ","),
			truncateForTable(match.Content.Title, 60),
		})
	}
	if err := writeTable([]string{"DUPLICATE_OF", "ID", "SIMILARITY", "FIELDS", "TITLE"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}
