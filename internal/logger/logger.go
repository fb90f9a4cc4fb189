// Package logger builds the charmbracelet/log loggers used across fcgiclient.
// Everything logs to stderr, since stdout carries responses.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Settings mirrors the [log] table of the config file.
type Settings struct {
	Level      string
	Timestamps bool
	Caller     bool
	JSON       bool
}

// New returns a text logger with prefix that follows the global log level.
func New(prefix string) *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          prefix,
		ReportTimestamp: true,
		Formatter:       log.TextFormatter,
		Level:           log.GetLevel(),
	})
}

// NewWithSettings returns a logger for w configured from s.
func NewWithSettings(w io.Writer, prefix string, s Settings) *log.Logger {
	formatter := log.TextFormatter
	if s.JSON {
		formatter = log.JSONFormatter
	}
	return log.NewWithOptions(w, log.Options{
		Prefix:          prefix,
		Level:           ParseLevel(s.Level),
		ReportCaller:    s.Caller,
		ReportTimestamp: s.Timestamps,
		Formatter:       formatter,
	})
}

// Setup points the package-level charm logger at stderr with s applied.
func Setup(s Settings) {
	log.SetDefault(NewWithSettings(os.Stderr, "", s))
}

// ParseLevel accepts debug, info, warn, error and fatal; anything else is info.
func ParseLevel(level string) log.Level {
	l, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return log.InfoLevel
	}
	return l
}
