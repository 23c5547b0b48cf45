package logs

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Entry is one log line retained in memory.
type Entry struct {
	TimeStamp time.Time      `json:"timestamp"`
	Level     zapcore.Level  `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Buffer keeps the most recent log entries.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	maxSize int
}

// NewBuffer creates a ring buffer holding at most maxSize entries.
func NewBuffer(maxSize int) *Buffer {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Buffer{
		entries: make([]Entry, 0, maxSize),
		maxSize: maxSize,
	}
}

func (b *Buffer) add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) >= b.maxSize {
		// remove oldest entry (ring behavior)
		b.entries = b.entries[1:]
	}
	b.entries = append(b.entries, e)
}

// GetLast returns up to n of the newest entries, oldest first.
func (b *Buffer) GetLast(n int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > len(b.entries) {
		n = len(b.entries)
	}
	if n < 0 {
		n = 0
	}

	start := len(b.entries) - n
	out := make([]Entry, n)
	copy(out, b.entries[start:])
	return out
}

// Core returns a zapcore.Core that records entries enabled by level into b.
func (b *Buffer) Core(level zapcore.LevelEnabler) zapcore.Core {
	return &bufferCore{LevelEnabler: level, buf: b}
}

type bufferCore struct {
	zapcore.LevelEnabler
	buf    *Buffer
	fields []zapcore.Field
}

func (c *bufferCore) With(fields []zapcore.Field) zapcore.Core {
	return &bufferCore{
		LevelEnabler: c.LevelEnabler,
		buf:          c.buf,
		fields:       append(append([]zapcore.Field{}, c.fields...), fields...),
	}
}

func (c *bufferCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *bufferCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	var kv map[string]any
	if len(enc.Fields) > 0 {
		kv = enc.Fields
	}
	c.buf.add(Entry{
		TimeStamp: ent.Time,
		Level:     ent.Level,
		Message:   ent.Message,
		Fields:    kv,
	})
	return nil
}

func (c *bufferCore) Sync() error { return nil }

// Options configures New.
type Options struct {
	Level      string // debug, info, warn, error
	BufferSize int    // entries kept in memory
	Output     zapcore.WriteSyncer
}

// New builds a JSON logger writing to opts.Output (stderr by default) and
// mirroring every enabled entry into the returned Buffer.
func New(opts Options) (*zap.Logger, *Buffer, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		lvl, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = lvl
	}

	out := opts.Output
	if out == nil {
		out = zapcore.Lock(os.Stderr)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	buf := NewBuffer(opts.BufferSize)
	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), out, level),
		buf.Core(level),
	)
	return zap.New(core), buf, nil
}
