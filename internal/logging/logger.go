package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Options describes logger construction parameters. OutputPaths accepts file
// paths plus the names "stdout" and "stderr"; empty means stdout.
type Options struct {
	Level       string
	Format      string
	OutputPaths []string
	Development bool
}

// New builds the daemon logger. Console output is one line per record with
// the component hoisted in front of the message; json output uses the key
// names the log tailer expects.
func New(opts Options) (*slog.Logger, error) {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(opts.Level))

	out, err := openSinks(opts.OutputPaths)
	if err != nil {
		return nil, err
	}
	withSource := opts.Development || level.Level() <= slog.LevelDebug

	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "console":
		return slog.New(newConsoleHandler(out, level, withSource)), nil
	case "json":
		return slog.New(newJSONHandler(out, level, withSource)), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
}

// ParseLevel maps a configured level name to a slog level. Unknown names
// fall back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func openSinks(paths []string) (io.Writer, error) {
	var sinks []io.Writer
	opened := make(map[string]bool, len(paths))
	for _, raw := range paths {
		name := strings.TrimSpace(raw)
		if name == "" || opened[name] {
			continue
		}
		opened[name] = true
		w, err := openSink(name)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, w)
	}
	switch len(sinks) {
	case 0:
		return os.Stdout, nil
	case 1:
		return sinks[0], nil
	}
	return io.MultiWriter(sinks...), nil
}

func openSink(name string) (io.Writer, error) {
	switch name {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return nil, fmt.Errorf("ensure log dir for %s: %w", name, err)
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", name, err)
	}
	return f, nil
}

// consoleHandler renders
//
//	2026-01-02 15:04:05 INFO workflow: step completed job_id=j1 step=2
//
// Attributes bound through With are rendered once and reused for every
// record, so the per-record cost is only the record's own attributes.
type consoleHandler struct {
	out        *lockedWriter
	level      slog.Leveler
	withSource bool

	component string
	bound     string
	group     string
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) write(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.w.Write(p)
	return err
}

func newConsoleHandler(w io.Writer, level slog.Leveler, withSource bool) *consoleHandler {
	return &consoleHandler{out: &lockedWriter{w: w}, level: level, withSource: withSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	component := h.component
	var fields strings.Builder
	fields.WriteString(h.bound)
	r.Attrs(func(a slog.Attr) bool {
		if c, ok := componentOf(h.group, a); ok {
			if component == "" {
				component = c
			}
			return true
		}
		writeField(&fields, h.group, a)
		return true
	})

	line := make([]byte, 0, 96+fields.Len())
	line = append(line, formatTimestamp(ts)...)
	line = append(line, ' ')
	line = append(line, levelName(r.Level)...)
	line = append(line, ' ')
	if component != "" {
		line = append(line, component...)
		line = append(line, ": "...)
	}
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		msg = "(no message)"
	}
	line = append(line, msg...)
	if h.withSource {
		if src := r.Source(); src != nil && src.File != "" {
			line = append(line, " ["...)
			line = append(line, filepath.Base(src.File)...)
			line = append(line, ':')
			line = strconv.AppendInt(line, int64(src.Line), 10)
			line = append(line, ']')
		}
	}
	line = append(line, fields.String()...)
	line = append(line, '\n')
	return h.out.write(line)
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	var fields strings.Builder
	fields.WriteString(h.bound)
	for _, a := range attrs {
		if c, ok := componentOf(h.group, a); ok {
			next.component = c
			continue
		}
		writeField(&fields, h.group, a)
	}
	next.bound = fields.String()
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = joinKey(h.group, name)
	return &next
}

// componentOf reports whether a is the top-level component attribute, which
// the console layout prints before the message instead of as a field.
func componentOf(group string, a slog.Attr) (string, bool) {
	if group != "" || a.Key != FieldComponent {
		return "", false
	}
	return attrString(a.Value), true
}

func writeField(b *strings.Builder, group string, a slog.Attr) {
	v := a.Value.Resolve()
	if a.Key == "" && v.Kind() != slog.KindGroup {
		return
	}
	if v.Kind() == slog.KindGroup {
		prefix := joinKey(group, a.Key)
		for _, member := range v.Group() {
			writeField(b, prefix, member)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(joinKey(group, a.Key))
	b.WriteByte('=')
	b.WriteString(formatValue(v))
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}
