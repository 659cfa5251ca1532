package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "serve":
		return runServe(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "import":
		return runImport(args[1:])
	case "search":
		return runSearch(args[1:])
	case "duplicates":
		return runDuplicates(args[1:])
	case "merge":
		return runMerge(args[1:])
	case "unmerge":
		return runUnmerge(args[1:])
	case "delete":
		return runDelete(args[1:])
	case "restore":
		return runRestore(args[1:])
	case "reindex":
		return runReindex(args[1:])
	case "badge":
		return runBadge(args[1:])
	case "token":
		return runToken(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "contenthub CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  contenthub <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health      Verify database, Redis and search index connectivity")
	fmt.Fprintln(os.Stderr, "  serve       Start Echo API server")
	fmt.Fprintln(os.Stderr, "  validate    Validate content JSON files against the v1 schema")
	fmt.Fprintln(os.Stderr, "  import      Validate and insert content JSON files")
	fmt.Fprintln(os.Stderr, "  search      Search content as a given viewer")
	fmt.Fprintln(os.Stderr, "  duplicates  Find likely duplicates in one user's library")
	fmt.Fprintln(os.Stderr, "  merge       Merge content items into a primary")
	fmt.Fprintln(os.Stderr, "  unmerge     Undo a merge inside its undo window")
	fmt.Fprintln(os.Stderr, "  delete      Soft or hard delete a content item")
	fmt.Fprintln(os.Stderr, "  restore     Restore a soft-deleted content item")
	fmt.Fprintln(os.Stderr, "  reindex     Push every live item to the keyword index")
	fmt.Fprintln(os.Stderr, "  badge       Grant or revoke a community badge")
	fmt.Fprintln(os.Stderr, "  token       Issue a signed API token")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"contenthub <command> -h\" for command-specific flags.")
}
