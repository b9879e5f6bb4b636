package clog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// DefaultColumns are printed in front of the message, in order, when present.
var DefaultColumns = []string{"proto", "method", "path", "status", "operation", "provider_key"}

type TextHandlerConfig struct {
	Color   bool
	Level   *slog.Level
	Columns []string
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

func WithColumns(columns ...string) TextHandlerOption {
	return func(cfg *TextHandlerConfig) {
		cfg.Columns = columns
	}
}

// TextHandler is a human oriented slog.Handler for local development: one
// coloured header line followed by the remaining attributes, one per line.
type TextHandler struct {
	cfg   TextHandlerConfig
	attrs []slog.Attr
	group string

	mu *sync.Mutex
	w  io.Writer
}

func NewTextHandler(w io.Writer, opts ...TextHandlerOption) *TextHandler {
	cfg := TextHandlerConfig{
		Color:   true,
		Columns: DefaultColumns,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &TextHandler{
		cfg: cfg,
		mu:  &sync.Mutex{},
		w:   w,
	}
}

func (h *TextHandler) clone() *TextHandler {
	nh := *h
	nh.attrs = make([]slog.Attr, len(h.attrs))
	copy(nh.attrs, h.attrs)
	return &nh
}

func (h *TextHandler) Enabled(_ context.Context, l slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.cfg.Level != nil {
		minLevel = h.cfg.Level.Level()
	}
	return l >= minLevel
}

func (h *TextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	if h2.group != "" {
		h2.group += "."
	}
	h2.group += name
	return h2
}

func (h *TextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h.clone()
	for _, a := range attrs {
		nh.attrs = append(nh.attrs, h.qualify(a))
	}
	return nh
}

func (h *TextHandler) qualify(a slog.Attr) slog.Attr {
	if h.group == "" {
		return a
	}
	return slog.Attr{Key: h.group + "." + a.Key, Value: a.Value}
}

func (h *TextHandler) newColor(attrs ...color.Attribute) *color.Color {
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

func (h *TextHandler) Handle(ctx context.Context, record slog.Record) error {
	buf := bytes.NewBuffer(make([]byte, 0, 1024))

	plain := h.newColor()
	if _, err := plain.Fprintf(buf, "%s ", record.Time.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("can't write time: %w", err)
	}
	if _, err := h.newColor(levelColor(record.Level)).Fprintf(buf, "%s ", record.Level); err != nil {
		return fmt.Errorf("can't write level: %w", err)
	}

	kv := map[string]slog.Value{}
	for _, attr := range h.attrs {
		kv[attr.Key] = attr.Value
	}
	record.Attrs(func(attr slog.Attr) bool {
		attr = h.qualify(attr)
		kv[attr.Key] = attr.Value
		return true
	})
	for _, key := range h.cfg.Columns {
		if v, ok := kv[key]; ok {
			if _, err := plain.Fprintf(buf, "%s ", v); err != nil {
				return fmt.Errorf("can't write %s: %w", key, err)
			}
			delete(kv, key)
		}
	}

	if _, err := h.newColor(color.FgGreen).Fprintf(buf, "%q", record.Message); err != nil {
		return fmt.Errorf("can't write message: %w", err)
	}
	if e, ok := kv[ErrorAttributeKey]; ok {
		delete(kv, ErrorAttributeKey)
		if _, err := h.newColor(color.FgRed).Fprintf(buf, " %q", e.String()); err != nil {
			return fmt.Errorf("can't write err: %w", err)
		}
	}
	buf.WriteByte('\n')

	delete(kv, StackAttributeKey)
	if stack := GetStack(ctx); stack != "" && record.Level >= slog.LevelError {
		for _, line := range strings.Split(strings.TrimRight(stack, "\n"), "\n") {
			if _, err := h.newColor(color.FgRed).Fprintf(buf, "    | %s\n", line); err != nil {
				return fmt.Errorf("can't write stack: %w", err)
			}
		}
	}

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := plain.Fprintf(buf, "    %s=%s\n", k, kv[k]); err != nil {
			return fmt.Errorf("can't write %s: %w", k, err)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}
