package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const (
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorReset  = "\033[0m"

	// EnvNoColor disables colored CLI output when set to any value.
	EnvNoColor = "NO_COLOR"

	serviceName = "roadrisk"
)

// Options configures a CLIHandler.
type Options struct {
	Level slog.Level
	Color bool
}

// CLIHandler writes one line per record: the message followed by key=value
// pairs. Warnings and errors carry a level tag.
type CLIHandler struct {
	mu     *sync.Mutex
	writer io.Writer
	opts   Options
	group  string
	attrs  []string
}

func NewCLIHandler(w io.Writer, opts Options) *CLIHandler {
	return &CLIHandler{
		mu:     &sync.Mutex{},
		writer: w,
		opts:   opts,
	}
}

func (h *CLIHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level
}

func (h *CLIHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	switch {
	case r.Level >= slog.LevelError:
		sb.WriteString("error: ")
	case r.Level >= slog.LevelWarn:
		sb.WriteString("warning: ")
	}
	sb.WriteString(r.Message)

	pairs := append([]string{}, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		pairs = append(pairs, formatAttr(h.group, a))
		return true
	})
	if len(pairs) > 0 {
		sb.WriteString(": ")
		sb.WriteString(strings.Join(pairs, " "))
	}

	line := sb.String()
	if h.opts.Color {
		line = colorFor(r.Level) + line + colorReset
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.writer, line)
	return err
}

func colorFor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorRed
	case level >= slog.LevelWarn:
		return colorYellow
	default:
		return colorGreen
	}
}

func formatAttr(group string, a slog.Attr) string {
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	return fmt.Sprintf("%s=%v", key, a.Value.Resolve())
}

func (h *CLIHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := *h
	c.attrs = append([]string{}, h.attrs...)
	for _, a := range attrs {
		c.attrs = append(c.attrs, formatAttr(h.group, a))
	}
	return &c
}

// WithGroup qualifies the keys of later attributes with name.
func (h *CLIHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	if c.group != "" {
		c.group += "." + name
	} else {
		c.group = name
	}
	return &c
}

// NewCLILogger returns a logger writing to stderr. Color is on unless NO_COLOR is set.
func NewCLILogger(level string) *slog.Logger {
	_, noColor := os.LookupEnv(EnvNoColor)
	return slog.New(NewCLIHandler(os.Stderr, Options{
		Level: ParseLogLevel(level),
		Color: !noColor,
	}))
}

func SetDefaultCLILogger(level string) {
	slog.SetDefault(NewCLILogger(level))
}

// NewServerLogger returns a JSON logger for the long running server.
func NewServerLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLogLevel(level),
	})).With("service", serviceName)
}

// ParseLogLevel converts a string log level to slog.Level.
// Defaults to slog.LevelInfo for unrecognized strings.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
