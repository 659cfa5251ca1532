package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/cli"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/httpapi"
)

func runToken(args []string) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	user := fs.String("user", "", "Subject user id")
	admin := fs.Bool("admin", false, "Set the is_admin claim")
	employee := fs.Bool("aws-employee", false, "Set the is_aws_employee claim")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime (0 for no expiry)")

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

	cfg, _, err := loadConfig(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not configured")
		return 1
	}

	token, err := httpapi.IssueToken(cfg.JWTSecret, cfg.JWTIssuer, *user, *admin, *employee, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
		return 1
	}
	fmt.Println(token)
	return 0
}
