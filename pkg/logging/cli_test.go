package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(level slog.Level, color bool) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(NewCLIHandler(&buf, Options{Level: level, Color: color})), &buf
}

func TestCLIHandler_Format(t *testing.T) {
	log, buf := newTestLogger(slog.LevelInfo, false)

	log.Info("records imported", "file", "datatran2024.csv", "inserted", 120)
	assert.Equal(t, "records imported: file=datatran2024.csv inserted=120\n", buf.String())
}

func TestCLIHandler_LevelTags(t *testing.T) {
	log, buf := newTestLogger(slog.LevelDebug, false)

	log.Debug("debug line")
	log.Warn("risk table not found")
	log.Error("reload failed", "error", "boom")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "debug line", lines[0])
	assert.Equal(t, "warning: risk table not found", lines[1])
	assert.Equal(t, "error: reload failed: error=boom", lines[2])
}

func TestCLIHandler_Colors(t *testing.T) {
	tests := []struct {
		name  string
		log   func(*slog.Logger)
		color string
	}{
		{"info", func(l *slog.Logger) { l.Info("m") }, colorGreen},
		{"warn", func(l *slog.Logger) { l.Warn("m") }, colorYellow},
		{"error", func(l *slog.Logger) { l.Error("m") }, colorRed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := newTestLogger(slog.LevelInfo, true)
			tt.log(log)
			assert.True(t, strings.HasPrefix(buf.String(), tt.color))
			assert.Contains(t, buf.String(), colorReset)
		})
	}

	log, buf := newTestLogger(slog.LevelInfo, false)
	log.Error("plain")
	assert.NotContains(t, buf.String(), colorRed)
}

func TestCLIHandler_LevelFiltering(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  int
	}{
		{slog.LevelDebug, 4},
		{slog.LevelInfo, 3},
		{slog.LevelWarn, 2},
		{slog.LevelError, 1},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			log, buf := newTestLogger(tt.level, false)
			log.Debug("d")
			log.Info("i")
			log.Warn("w")
			log.Error("e")
			assert.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), tt.want)
		})
	}
}

func TestCLIHandler_WithAttrsAndGroup(t *testing.T) {
	log, buf := newTestLogger(slog.LevelInfo, false)

	log.With("uf", "SP").WithGroup("segment").Info("scored", "km", 520)
	assert.Equal(t, "scored: uf=SP segment.km=520\n", buf.String())

	buf.Reset()
	log.WithGroup("a").WithGroup("b").Info("nested", "k", 1)
	assert.Equal(t, "nested: a.b.k=1\n", buf.String())

	buf.Reset()
	base := log.With("x", 1)
	_ = log.With("y", 2)
	base.Info("isolated")
	assert.Equal(t, "isolated: x=1\n", buf.String())
}

func TestCLIHandler_Concurrent(t *testing.T) {
	log, buf := newTestLogger(slog.LevelInfo, false)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("line", "i", i)
		}()
	}
	wg.Wait()
	assert.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), 20)
}

func TestNewCLILogger_NoColor(t *testing.T) {
	t.Setenv(EnvNoColor, "1")
	log := NewCLILogger("debug")
	require.NotNil(t, log)

	h, ok := log.Handler().(*CLIHandler)
	require.True(t, ok)
	assert.False(t, h.opts.Color)
	assert.Equal(t, slog.LevelDebug, h.opts.Level)
}

func TestNewServerLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewServerLogger(&buf, "warn")

	log.Info("dropped")
	log.Warn("kept", "segment", "SP_116_520")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "SP_116_520", rec["segment"])
	assert.Equal(t, serviceName, rec["service"])
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		" info ":  slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLogLevel(in), in)
	}
}
