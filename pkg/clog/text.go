package clog

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/fatih/color"
)

type TextHandlerConfig struct {
	Color bool
	Level *slog.Level
}

type TextHandlerOption func(*TextHandlerConfig)

func WithColor(c bool) TextHandlerOption {
	return func(cfg *TextHandlerConfig) {
		cfg.Color = c
	}
}

func WithLevel(level slog.Level) TextHandlerOption {
	return func(cfg *TextHandlerConfig) {
		cfg.Level = &level
	}
}

// TextHandler is a human oriented slog handler for local development. The
// leading columns are printed inline, the message is quoted, and every other
// attribute follows on its own indented line.
type TextHandler struct {
	cfg     TextHandlerConfig
	columns []string
	attrs   []slog.Attr
	group   string
	mu      *sync.Mutex
	w       io.Writer
}

// NewConnectTextHandler renders RPC logs and orchestrator pass logs.
func NewConnectTextHandler(w io.Writer, opts ...TextHandlerOption) *TextHandler {
	return newTextHandler(w, []string{"method", "procedure", "project_id"}, opts)
}

// NewHTTPTextHandler renders chi access logs.
func NewHTTPTextHandler(w io.Writer, opts ...TextHandlerOption) *TextHandler {
	return newTextHandler(w, []string{"proto", "method", "path", "status"}, opts)
}

func newTextHandler(w io.Writer, columns []string, opts []TextHandlerOption) *TextHandler {
	cfg := TextHandlerConfig{Color: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &TextHandler{cfg: cfg, columns: columns, mu: &sync.Mutex{}, w: w}
}

func (h *TextHandler) Enabled(_ context.Context, l slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.cfg.Level != nil {
		minLevel = *h.cfg.Level
	}
	return l >= minLevel
}

func (h *TextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	nh.attrs = append(nh.attrs, h.attrs...)
	for _, a := range attrs {
		nh.attrs = append(nh.attrs, h.qualify(a))
	}
	return &nh
}

func (h *TextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.group = h.qualify(slog.String(name, "")).Key
	return &nh
}

func (h *TextHandler) qualify(a slog.Attr) slog.Attr {
	if h.group != "" {
		a.Key = h.group + "." + a.Key
	}
	return a
}

func (h *TextHandler) paint(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if h.cfg.Color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

func levelColor(l slog.Level) color.Attribute {
	switch {
	case l >= slog.LevelError:
		return color.FgRed
	case l >= slog.LevelWarn:
		return color.FgYellow
	case l >= slog.LevelInfo:
		return color.FgBlue
	default:
		return color.FgCyan
	}
}

func (h *TextHandler) Handle(_ context.Context, record slog.Record) error {
	kv := make(map[string]slog.Value, len(h.attrs)+record.NumAttrs())
	for _, a := range h.attrs {
		kv[a.Key] = a.Value
	}
	record.Attrs(func(a slog.Attr) bool {
		a = h.qualify(a)
		kv[a.Key] = a.Value
		return true
	})

	var buf bytes.Buffer
	plain := h.paint()
	plain.Fprintf(&buf, "%s ", record.Time.Format(time.RFC3339))
	h.paint(levelColor(record.Level)).Fprintf(&buf, "%s ", record.Level)
	for _, key := range h.columns {
		if v, ok := kv[key]; ok {
			plain.Fprintf(&buf, "%s ", v)
			delete(kv, key)
		}
	}

	msg := h.paint(color.FgGreen)
	msg.Fprint(&buf, "\"")
	if v, ok := kv["code"]; ok {
		msg.Fprintf(&buf, "[%s] ", v)
		delete(kv, "code")
	}
	msg.Fprintf(&buf, "%s\"", record.Message)
	if e, ok := kv[ErrorAttributeKey]; ok {
		h.paint(color.FgRed).Fprintf(&buf, " \"%s\"", e)
		delete(kv, ErrorAttributeKey)
	}
	buf.WriteByte('\n')

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		plain.Fprintf(&buf, "    %s=%s\n", k, kv[k])
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}
