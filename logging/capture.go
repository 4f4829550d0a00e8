package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultHistory is the number of entries a Collector keeps per key.
const DefaultHistory = 20

// LogEntry represents a single log record with structured data.
type LogEntry struct {
	Time       time.Time      `json:"time"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Collector keeps the most recent log entries for each key.
type Collector struct {
	mu      sync.RWMutex
	history int
	logs    map[string][]LogEntry
}

// NewCollector creates a Collector keeping up to history entries per key.
// A non-positive history uses DefaultHistory.
func NewCollector(history int) *Collector {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Collector{
		history: history,
		logs:    make(map[string][]LogEntry),
	}
}

// Add records an entry for key, evicting the oldest entry when full.
func (c *Collector) Add(key string, entry LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	logs := append(c.logs[key], entry)
	if len(logs) > c.history {
		logs = logs[len(logs)-c.history:]
	}
	c.logs[key] = logs
}

// Get returns a copy of the entries recorded for key, oldest first.
func (c *Collector) Get(key string) []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	logs, ok := c.logs[key]
	if !ok {
		return nil
	}
	result := make([]LogEntry, len(logs))
	copy(result, logs)
	return result
}

// NewCapturingLogger returns a logger that writes through base and records
// every entry, at any level, in collector under key.
func NewCapturingLogger(base *slog.Logger, collector *Collector, key string) *slog.Logger {
	return slog.New(&capturingHandler{
		underlying: base.Handler(),
		collector:  collector,
		key:        key,
	})
}

// capturingHandler records log records in a Collector and forwards the ones
// the underlying handler accepts.
type capturingHandler struct {
	underlying slog.Handler
	collector  *Collector
	key        string
	attrs      []slog.Attr
	group      string
}

func (h *capturingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *capturingHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := LogEntry{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
	}
	if n := r.NumAttrs() + len(h.attrs); n > 0 {
		entry.Attributes = make(map[string]any, n)
	}
	for _, attr := range h.attrs {
		entry.Attributes[attr.Key] = resolveValue(attr.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		entry.Attributes[h.group+a.Key] = resolveValue(a.Value)
		return true
	})
	h.collector.Add(h.key, entry)

	if !h.underlying.Enabled(ctx, r.Level) {
		return nil
	}
	return h.underlying.Handle(ctx, r)
}

func (h *capturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	newAttrs = append(newAttrs, h.attrs...)
	for _, a := range attrs {
		newAttrs = append(newAttrs, slog.Attr{Key: h.group + a.Key, Value: a.Value})
	}
	return &capturingHandler{
		underlying: h.underlying.WithAttrs(attrs),
		collector:  h.collector,
		key:        h.key,
		attrs:      newAttrs,
		group:      h.group,
	}
}

func (h *capturingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &capturingHandler{
		underlying: h.underlying.WithGroup(name),
		collector:  h.collector,
		key:        h.key,
		attrs:      h.attrs,
		group:      h.group + name + ".",
	}
}

// resolveValue converts a slog.Value to a JSON-serializable value.
func resolveValue(v slog.Value) any {
	v = v.Resolve()

	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time()
	case slog.KindGroup:
		attrs := v.Group()
		group := make(map[string]any, len(attrs))
		for _, attr := range attrs {
			group[attr.Key] = resolveValue(attr.Value)
		}
		return group
	default:
		a := v.Any()
		if err, ok := a.(error); ok {
			return err.Error()
		}
		if s, ok := a.(interface{ String() string }); ok {
			return s.String()
		}
		return a
	}
}
