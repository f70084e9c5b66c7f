package appender

import (
	"context"
	"fmt"
	"slices"

	"github.com/fyrsmithlabs/runlogd/pkg/event"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field keys the core reads instead of copying them into event attributes.
const (
	FieldThread   = "thread"
	FieldKind     = "event_kind"
	FieldEntityID = "entity_id"
	FieldName     = "name"
)

// Thread tags a log entry with the producer thread key.
func Thread(key string) zap.Field { return zap.String(FieldThread, key) }

// Kind marks a log entry as a lifecycle event.
func Kind(k event.Kind) zap.Field { return zap.Stringer(FieldKind, k) }

// EntityID sets the run, suite or test-case ID of a lifecycle entry.
func EntityID(id int64) zap.Field { return zap.Int64(FieldEntityID, id) }

// Name sets the run name of a StartRun or UpdateRun entry.
func Name(name string) zap.Field { return zap.String(FieldName, name) }

// Core is a zapcore.Core that turns log entries into events and submits
// them to an Appender. Use it with zapcore.NewTee to keep regular output.
type Core struct {
	zapcore.LevelEnabler
	app    *Appender
	fields []zapcore.Field
}

// NewCore returns a core submitting entries at or above enab to a.
func NewCore(a *Appender, enab zapcore.LevelEnabler) *Core {
	return &Core{LevelEnabler: enab, app: a}
}

// With implements zapcore.Core.
func (c *Core) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(slices.Clip(c.fields), fields...)
	return &clone
}

// Check implements zapcore.Core.
func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

// Write implements zapcore.Core. It blocks when the target channel is full
// under the block policy.
func (c *Core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	ev, err := entryEvent(ent, enc.Fields)
	if err == nil {
		err = c.app.Submit(context.Background(), ev)
	}
	if err != nil {
		CoreWriteErrors.Inc()
		return err
	}
	return nil
}

// Sync implements zapcore.Core. Channels persist asynchronously; use
// Appender.Close to flush them.
func (c *Core) Sync() error { return nil }

func entryEvent(ent zapcore.Entry, fields map[string]any) (event.Event, error) {
	kind := event.KindMessage
	if v, ok := fields[FieldKind]; ok {
		k, err := event.ParseKind(fmt.Sprint(v))
		if err != nil {
			return event.Event{}, err
		}
		kind = k
		delete(fields, FieldKind)
	}

	thread, _ := fields[FieldThread].(string)
	delete(fields, FieldThread)

	opts := []event.Option{event.WithTimestamp(ent.Time), event.WithLogger(ent.LoggerName)}
	if id, ok := fields[FieldEntityID].(int64); ok {
		opts = append(opts, event.WithEntityID(id))
		delete(fields, FieldEntityID)
	}
	if name, ok := fields[FieldName].(string); ok && kind.Boundary() {
		opts = append(opts, event.WithName(name))
		delete(fields, FieldName)
	}
	if len(fields) > 0 {
		attrs := make(map[string]string, len(fields))
		for k, v := range fields {
			attrs[k] = fmt.Sprint(v)
		}
		opts = append(opts, event.WithAttributes(attrs))
	}

	return event.New(kind, thread, ent.Level, ent.Message, opts...), nil
}
