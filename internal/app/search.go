package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/cli"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/db"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/search"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/visibility"
)

func runSearch(args []string) int {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	query := fs.String("query", "", "Query text")
	modeRaw := fs.String("mode", "", "Search mode: keyword, vector or list (default keyword with a query, list without)")
	types := fs.String("types", "", "Comma separated content types")
	tags := fs.String("tags", "", "Comma separated tags (any match)")
	levels := fs.String("visibility", "", "Comma separated visibility levels")
	from := fs.String("from", "", "Publish date lower bound (RFC3339 or YYYY-MM-DD)")
	to := fs.String("to", "", "Publish date upper bound (RFC3339 or YYYY-MM-DD)")
	limit := fs.Int("limit", db.DefaultSearchLimit, "Maximum results to return")
	offset := fs.Int("offset", 0, "Results to skip")
	asUser := fs.String("as", "", "Search as this user id (anonymous when empty)")
	asAdmin := fs.Bool("admin", false, "Treat the viewer as an admin")
	asEmployee := fs.Bool("aws-employee", false, "Treat the viewer as an AWS employee")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "search does not accept positional arguments")
		return 2
	}
	if *limit <= 0 || *limit > db.MaxSearchLimit {
		fmt.Fprintf(os.Stderr, "--limit must be between 1 and %d\n", db.MaxSearchLimit)
		return 2
	}
	if *offset < 0 {
		fmt.Fprintln(os.Stderr, "--offset must be >= 0")
		return 2
	}

	mode, err := search.ParseMode(*modeRaw)
	if err != nil {
		fmt.Fprintln(os.Stderr, "--mode must be keyword, vector or list")
		return 2
	}
	visibilities, err := visibility.ParseList(*levels)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --visibility: %v\n", err)
		return 2
	}
	fromTime, err := parseDateFlag(*from, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --from: %v\n", err)
		return 2
	}
	toTime, err := parseDateFlag(*to, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --to: %v\n", err)
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

	viewer, err := visibility.Resolve(ctx, rt.badges, *asUser, *asAdmin, *asEmployee)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve viewer: %v\n", err)
		return 1
	}

	resp, err := rt.search.Search(ctx, search.Request{
		Viewer:       viewer,
		Mode:         mode,
		Query:        *query,
		ContentTypes: splitCSV(*types),
		Tags:         splitCSV(*tags),
		Visibilities: visibilities,
		From:         fromTime,
		To:           toTime,
		Limit:        *limit,
		Offset:       *offset,
	})
	if err != nil {
		reportError("search content", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(resp); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	headers := append([]string{"SCORE"}, contentTableHeaders...)
	rows := make([][]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		rows = append(rows, append([]string{strconv.FormatFloat(item.Score, 'f', 3, 64)}, contentTableRow(item.Content)...))
	}
	if err := writeTable(headers, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	fmt.Printf("mode=%s backend=%s total=%d limit=%d offset=%d\n", resp.Mode, resp.Backend, resp.Total, resp.Limit, resp.Offset)
	return 0
}
