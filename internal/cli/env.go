package cli

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// EnvFileOverride names a .env file that wins over the --env flag.
const EnvFileOverride = "CONTENTHUB_ENV_FILE"

// EnvLoader resolves which .env file a command loads.
type EnvLoader struct {
	value       *string
	defaultPath string
}

// AddEnvFlag registers --env on fs and returns its loader.
func AddEnvFlag(fs *flag.FlagSet, defaultPath, description string) *EnvLoader {
	if fs == nil {
		fs = flag.CommandLine
	}
	if defaultPath == "" {
		defaultPath = ".env"
	}
	if description == "" {
		description = "Path to the .env file"
	}
	return &EnvLoader{
		value:       fs.String("env", defaultPath, description),
		defaultPath: defaultPath,
	}
}

// Candidates lists the files Load tries, in order: the override variable,
// the --env value, its basename in the working directory, then the default.
func (l *EnvLoader) Candidates() []string {
	if l == nil {
		return nil
	}
	var out []string
	seen := map[string]struct{}{}
	add := func(path string) {
		path = strings.TrimSpace(path)
		if path == "" {
			return
		}
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}

	add(os.Getenv(EnvFileOverride))
	requested := l.defaultPath
	if l.value != nil && strings.TrimSpace(*l.value) != "" {
		requested = *l.value
	}
	add(requested)
	add(filepath.Base(strings.TrimSpace(requested)))
	add(l.defaultPath)
	return out
}

// Load overlays the first readable candidate onto the process environment
// and returns its path.
func (l *EnvLoader) Load() (string, error) {
	if l == nil {
		return "", fmt.Errorf("env loader is nil")
	}
	candidates := l.Candidates()
	for _, path := range candidates {
		if err := godotenv.Overload(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no env file found (tried %s)", strings.Join(candidates, ", "))
}
