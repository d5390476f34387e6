// Package journal writes an audit trail of rule store changes as JSON lines
// into a rotating, compressed file.
package journal

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"underwriting/internal/store"

	"gopkg.in/natefinch/lumberjack.v2"
)

const timeFormat = "2006-01-02 15:04:05"

// lineHandler is a slog handler writing one flat JSON object per record: the
// record time, the message as "event" and every non-empty attribute at the
// top level. The level is omitted.
type lineHandler struct {
	mu    *sync.Mutex
	out   io.Writer
	attrs []slog.Attr
}

func newLineHandler(out io.Writer) *lineHandler {
	return &lineHandler{mu: &sync.Mutex{}, out: out}
}

func (h *lineHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]any, r.NumAttrs()+len(h.attrs)+2)
	fields["time"] = r.Time.Format(timeFormat)
	if r.Message != "" {
		fields["event"] = r.Message
	}

	add := func(a slog.Attr) bool {
		v := a.Value.Resolve().Any()
		if a.Key == "" || v == nil || v == "" {
			return true
		}
		fields[a.Key] = v
		return true
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(add)

	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.out.Write(append(data, '\n'))
	return err
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &lineHandler{mu: h.mu, out: h.out, attrs: merged}
}

// WithGroup keeps the output flat.
func (h *lineHandler) WithGroup(string) slog.Handler {
	return h
}

func (h *lineHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

// Journal is the audit trail of store changes.
type Journal struct {
	closer io.Closer
	logger *slog.Logger
}

// New creates a journal writing to file, rotated at maxSize megabytes and
// keeping maxBackups compressed old files.
func New(file string, maxSize, maxBackups int) *Journal {
	lj := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	return NewWithWriter(lj)
}

// NewWithWriter creates a journal on an arbitrary writer. The writer is
// closed by Close when it implements io.Closer.
func NewWithWriter(w io.Writer) *Journal {
	j := &Journal{logger: slog.New(newLineHandler(w))}
	if c, ok := w.(io.Closer); ok {
		j.closer = c
	}
	return j
}

// Record appends a change. It has the signature of a store subscriber.
func (j *Journal) Record(c store.Change) {
	j.logger.Info(c.Operation,
		"category", string(c.Category),
		"rule", c.RuleID,
		"previousVersion", c.PreviousVersion,
		"version", c.Version,
		"rules", c.Rules,
		"modifiedBy", c.ModifiedBy,
		"description", c.Description,
		"changedAt", c.Timestamp,
	)
}

// Close flushes and closes the underlying file.
func (j *Journal) Close() error {
	if j.closer == nil {
		return nil
	}
	return j.closer.Close()
}
