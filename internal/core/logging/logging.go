// Package logging builds the slog logger shared by every btmgen command.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/solatis/btmgen/internal/types"
)

// ParseLevel maps debug, info, warn and error onto slog levels.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("%w: unknown log level %q", types.ErrInvalidConfig, level)
}

// New returns a JSON or text logger writing to w.
func New(format, level string, w io.Writer) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		h = slog.NewJSONHandler(w, opts)
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("%w: unknown log format %q", types.ErrInvalidConfig, format)
	}
	return slog.New(h), nil
}

// ResolveFormat turns "auto" into text for terminals and json otherwise.
// Other values pass through unchanged.
func ResolveFormat(format string, terminal bool) string {
	if !strings.EqualFold(strings.TrimSpace(format), "auto") {
		return format
	}
	if terminal {
		return "text"
	}
	return "json"
}

// Init installs a logger on stderr as the slog default. Stdout stays free for
// command output.
func Init(format, level string) (*slog.Logger, error) {
	format = ResolveFormat(format, term.IsTerminal(int(os.Stderr.Fd())))
	logger, err := New(format, level, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}
