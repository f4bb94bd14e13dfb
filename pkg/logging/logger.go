package logging

import (
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
)

// NewLogger builds an hclog.Logger with this project's standard settings:
// UTC ISO-8601 timestamps, JSON output gated by FLAVOR_JSON_LOG, and a
// prefixed human-readable format otherwise.
func NewLogger(name string, level string, output io.Writer) hclog.Logger {
	if output == nil {
		output = os.Stderr
	}

	jsonFormat := os.Getenv("FLAVOR_JSON_LOG") == "1"
	if !jsonFormat {
		output = NewPrefixWriter("🐹 ", output)
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(level),
		JSONFormat: jsonFormat,
		Output:     output,
		TimeFormat: "2006-01-02T15:04:05Z",
		TimeFn:     func() time.Time { return time.Now().UTC() },
	})
}

// GetLogLevel reads FLAVOR_LOG_LEVEL, defaulting to "warn" so a package
// run outside a terminal doesn't spam logs unless explicitly asked to.
func GetLogLevel() string {
	if level := os.Getenv("FLAVOR_LOG_LEVEL"); level != "" {
		return level
	}
	return "warn"
}
