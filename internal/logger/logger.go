// Package logger provides the configured zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// New returns a zerolog.Logger tagged with the service name. Set WELLNESS_LOG_PRETTY=1 for
// console output during development.
func New(serviceName string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if os.Getenv("WELLNESS_LOG_PRETTY") == "1" {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	level := zerolog.InfoLevel
	if lvl, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("WELLNESS_LOG_LEVEL"))); err == nil && lvl != zerolog.NoLevel {
		level = lvl
	}
	return zerolog.New(out).Level(level).With().
		Str("service", serviceName).
		Timestamp().
		Logger()
}

// Truncate shortens user text before it reaches the logs.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max]) + "…"
}
