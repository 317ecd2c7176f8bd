// Package logging builds the structured slog logger used for calculator
// events. Lifecycle messages stay on the standard log package.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// JournalMode selects whether records are also sent to the systemd journal.
type JournalMode string

const (
	JournalAuto JournalMode = "auto"
	JournalOn   JournalMode = "on"
	JournalOff  JournalMode = "off"
)

// Options configures New.
type Options struct {
	// Writer receives text records; defaults to os.Stderr.
	Writer io.Writer
	// Level is one of debug, info, warn, error.
	Level string
	// JSON switches the terminal handler to JSON output.
	JSON    bool
	Journal JournalMode
	// Service is attached to every record when set.
	Service string
}

// New returns a logger and the level variable that controls it at runtime.
//
// Under systemd (auto mode) records go to the journal only; elsewhere they go
// to Writer. With JournalOn both handlers receive every record.
func New(opts Options) (*slog.Logger, *slog.LevelVar, error) {
	level := new(slog.LevelVar)
	parsed, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	level.Set(parsed)

	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}

	mode := opts.Journal
	if mode == "" {
		mode = JournalAuto
	}
	underSystemd := mode == JournalAuto && runningAsSystemdService()

	var handlers []slog.Handler
	var terminal slog.Handler
	if !underSystemd {
		handlerOpts := &slog.HandlerOptions{Level: level}
		if opts.JSON {
			terminal = slog.NewJSONHandler(writer, handlerOpts)
		} else {
			terminal = slog.NewTextHandler(writer, handlerOpts)
		}
		handlers = append(handlers, terminal)
	}

	if mode == JournalOn || underSystemd {
		journal, err := slogjournal.NewHandler(&slogjournal.Options{
			Level: level,
			ReplaceGroup: func(key string) string {
				return toJournalKey(key)
			},
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				a.Key = toJournalKey(a.Key)
				return a
			},
		})
		switch {
		case err == nil:
			handlers = append(handlers, journal)
		case terminal != nil:
			record := slog.NewRecord(time.Now(), slog.LevelWarn, "systemd journal unavailable", 0)
			record.Add("error", err)
			_ = terminal.Handle(context.Background(), record)
		default:
			// Nothing else would receive records.
			terminal = slog.NewTextHandler(writer, &slog.HandlerOptions{Level: level})
			handlers = append(handlers, terminal)
		}
	}

	logger := slog.New(slogmulti.Fanout(handlers...))
	if opts.Service != "" {
		logger = logger.With("service", opts.Service)
	}
	return logger, level, nil
}

// ParseLevel maps a level name to a slog level. Empty means info.
func ParseLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", value)
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func toJournalKey(str string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, strings.ToUpper(str))
}

func runningAsSystemdService() bool {
	content, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		parts := strings.SplitN(line, ":", 3)
		if len(parts) == 3 && strings.HasSuffix(path.Dir(parts[2]), ".service") {
			return true
		}
	}
	return false
}
