package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const serviceName = "contenthub"

func New(environment, level string) (zerolog.Logger, error) {
	return NewWithWriter(environment, level, os.Stdout)
}

// NewWithWriter builds the service logger on top of w. Local environments get
// the human-readable console writer.
func NewWithWriter(environment, level string, w io.Writer) (zerolog.Logger, error) {
	parsedLevel, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parse LOG_LEVEL=%q: %w", level, err)
	}
	if w == nil {
		w = os.Stdout
	}

	writer := w
	if strings.EqualFold(strings.TrimSpace(environment), "local") {
		writer = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(writer).
		Level(parsedLevel).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	return logger, nil
}
