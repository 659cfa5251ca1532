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
	"github.com/guilleojeda/community-content-tracker-sub003/internal/db"
)

func runMerge(args []string) int {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	primary := fs.String("primary", "", "Content id that survives the merge")
	ids := fs.String("ids", "", "Comma separated content ids absorbed into the primary")
	reason := fs.String("reason", content.DefaultMergeReason, "Reason stored in merge history")
	actor := fs.String("actor", "cli", "Actor id recorded as merged_by")
	force := fs.Bool("force", false, "Skip confirmation prompt")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if strings.TrimSpace(*primary) == "" || len(splitCSV(*ids)) == 0 {
		fmt.Fprintln(os.Stderr, "--primary and --ids are required")
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	secondaries := splitCSV(*ids)
	if !*force {
		ok, err := confirmDangerousAction(fmt.Sprintf("Merge %s into %q?", strings.Join(secondaries, ", "), strings.TrimSpace(*primary)))
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

	result, err := rt.content.MergeContent(ctx, *primary, secondaries, operator(*actor).UserID, *reason)
	if err != nil {
		reportError("merge content", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(result); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	if err := writeContentTable([]db.ContentItem{result.Content}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	fmt.Printf(
		"merge_id=%s merged=%s undo_deadline=%s\n",
		result.History.ID,
		strings.Join(result.History.MergedContentIDs, ","),
		formatUTCTimestamp(result.History.UndoDeadline),
	)
	return 0
}

func runUnmerge(args []string) int {
	fs := flag.NewFlagSet("unmerge", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	actor := fs.String("actor", "cli", "Actor id recorded in audit events")
	list := fs.String("list", "", "List merge history for this content id instead of undoing")
	force := fs.Bool("force", false, "Skip confirmation prompt")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	listFor := strings.TrimSpace(*list)
	if listFor == "" && fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: contenthub unmerge <merge_id> [--force] | --list <content_id>")
		return 2
	}
	mergeID := strings.TrimSpace(fs.Arg(0))

	if listFor == "" && !*force {
		ok, err := confirmDangerousAction(fmt.Sprintf("Undo merge %q?", mergeID))
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

	if listFor != "" {
		records, err := rt.pool.ListMergeHistoryForContent(ctx, listFor)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list merge history: %v\n", err)
			return 1
		}
		if outputFormat == outputFormatJSON {
			if err := printJSON(records); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
				return 1
			}
			return 0
		}
		if err := writeMergeHistoryTable(records); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
			return 1
		}
		return 0
	}

	result, err := rt.content.Unmerge(ctx, operator(*actor), mergeID)
	if err != nil {
		reportError("undo merge", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(result); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}
	fmt.Printf(
		"merge_id=%s primary=%s restored=%s\n",
		result.MergeID,
		result.PrimaryContentID,
		strings.Join(result.RestoredIDs, ","),
	)
	return 0
}

func writeMergeHistoryTable(records []db.MergeHistoryRecord) error {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.ID,
			rec.PrimaryContentID,
			strings.Join(rec.MergedContentIDs, ","),
			rec.MergedBy,
			strconv.FormatBool(rec.CanUndo),
			formatUTCTimestamp(rec.UndoDeadline),
			truncateForTable(rec.MergeReason, 40),
		})
	}
	return writeTable([]string{"MERGE_ID", "PRIMARY", "MERGED", "BY", "CAN_UNDO", "UNDO_DEADLINE", "REASON"}, rows)
}
