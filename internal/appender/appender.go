// Package appender is the producer-facing entry point: it filters events by
// severity, routes them through the channel registry and exposes the
// lifecycle operations hosts call at shutdown.
package appender

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/runlogd/internal/channel"
	"github.com/fyrsmithlabs/runlogd/internal/logging"
	"github.com/fyrsmithlabs/runlogd/internal/registry"
	"github.com/fyrsmithlabs/runlogd/pkg/event"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultThreadKey is used for events that carry no thread key and whose
// context has none either.
const DefaultThreadKey = "main"

// ErrControlKind is returned when a producer submits a control query as an
// event. Control queries go through CurrentTestCaseState.
var ErrControlKind = errors.New("control queries cannot be submitted as events")

// Appender submits events to the channels of a registry.
type Appender struct {
	registry *registry.Registry
	logger   *zap.Logger
	now      func() time.Time
}

// New returns an appender over r. A nil logger is replaced by a no-op one.
func New(r *registry.Registry, logger *zap.Logger) *Appender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Appender{
		registry: r,
		logger:   logger.Named("appender"),
		now:      time.Now,
	}
}

// Registry returns the underlying channel registry.
func (a *Appender) Registry() *registry.Registry {
	return a.registry
}

// Submit enqueues ev on the channel it resolves to. Events below the
// configured threshold are discarded and report nil. An empty thread key
// falls back to the context's thread key, then to DefaultThreadKey.
func (a *Appender) Submit(ctx context.Context, ev event.Event) error {
	if ev.Kind == event.KindControlQuery {
		return ErrControlKind
	}
	if ev.Severity < a.registry.Configuration().Threshold {
		EventsFiltered.Inc()
		return nil
	}
	if ev.ThreadKey == "" {
		ev.ThreadKey = logging.ThreadKeyFromContext(ctx)
		if ev.ThreadKey == "" {
			ev.ThreadKey = DefaultThreadKey
		}
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = a.now()
	}

	c, err := a.registry.Resolve(ev.ThreadKey, ev.Kind)
	if err != nil {
		return err
	}
	err = c.Enqueue(ctx, ev)
	if errors.Is(err, channel.ErrChannelClosed) {
		// The channel was destroyed between resolution and enqueue; the
		// next resolution creates a fresh one.
		if c, err = a.registry.Resolve(ev.ThreadKey, ev.Kind); err != nil {
			return err
		}
		err = c.Enqueue(ctx, ev)
	}
	if err != nil {
		return fmt.Errorf("submitting %s event for thread %q: %w", ev.Kind, ev.ThreadKey, err)
	}
	return nil
}

// RecordLineage records parent as the thread that spawned child. It reports
// whether the entry is new.
func (a *Appender) RecordLineage(child, parent string) (bool, error) {
	added, err := a.registry.Lineage().Record(child, parent)
	if err != nil {
		return false, fmt.Errorf("recording lineage %q -> %q: %w", child, parent, err)
	}
	if added {
		a.logger.Debug("thread lineage recorded", zap.String("child", child), zap.String("parent", parent))
	}
	return added, nil
}

// CurrentTestCaseState queries the channel serving key (empty key: the
// default channel).
func (a *Appender) CurrentTestCaseState(ctx context.Context, key string) (channel.TestCaseState, error) {
	return a.registry.CurrentTestCaseState(ctx, key)
}

// CalculateTimeOffset records the producer clock reading ts for key's channel.
func (a *Appender) CalculateTimeOffset(key string, ts time.Time) (time.Duration, error) {
	return a.registry.CalculateTimeOffset(key, ts)
}

// Close shuts every channel down, draining first when waitForDrain is set.
func (a *Appender) Close(ctx context.Context, waitForDrain bool) error {
	return a.registry.DestroyAll(ctx, waitForDrain)
}
