// Package registry maps channel keys to live channels and decides which
// channel an event is routed to.
//
// Resolution order for a key:
//  1. the channel registered under the key;
//  2. in serial mode with channel sharing, the default (oldest live) channel;
//  3. in parallel or passive mode, for message events, the channel of the
//     nearest ancestor in the thread lineage;
//  4. a new channel for the key.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fyrsmithlabs/runlogd/internal/channel"
	"github.com/fyrsmithlabs/runlogd/internal/config"
	"github.com/fyrsmithlabs/runlogd/internal/lineage"
	"github.com/fyrsmithlabs/runlogd/pkg/event"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrChannelNotFound is returned when no channel is registered for a key.
var ErrChannelNotFound = errors.New("channel not found")

// Registry is safe for concurrent use. Lookups take the read lock; only
// creation and removal take the write lock.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*channel.Channel
	order    []string // live keys, oldest first; order[0] is the default channel
	cfg      config.AppenderConfig

	lineage *lineage.Map
	sink    channel.Persister
	logger  *zap.Logger
	tracer  trace.Tracer
	seq     atomic.Int64
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger for the registry and the channels it creates.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTracer sets the tracer handed to new channels.
func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) {
		r.tracer = t
	}
}

// WithLineage shares an existing lineage map.
func WithLineage(m *lineage.Map) Option {
	return func(r *Registry) {
		if m != nil {
			r.lineage = m
		}
	}
}

// New returns an empty registry. cfg is validated when the first channel is
// created, not here.
func New(cfg config.AppenderConfig, sink channel.Persister, opts ...Option) *Registry {
	r := &Registry{
		channels: make(map[string]*channel.Channel),
		cfg:      cfg,
		lineage:  lineage.New(),
		sink:     sink,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("registry")
	return r
}

// Lineage returns the thread lineage map consulted by Resolve.
func (r *Registry) Lineage() *lineage.Map {
	return r.lineage
}

// Configuration returns the configuration used for new channels.
func (r *Registry) Configuration() config.AppenderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// SetConfiguration replaces the configuration for channels created from now
// on. Existing channels keep theirs. An invalid cfg is rejected and the
// current one kept.
func (r *Registry) SetConfiguration(cfg config.AppenderConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
	r.logger.Info("appender configuration replaced",
		zap.Int("max_number_log_events", cfg.MaxNumberLogEvents),
		zap.Bool("parallel", cfg.Parallel),
		zap.Bool("batch", cfg.BatchMode()))
	return nil
}

// sharesDefault reports whether every key collapses onto the default channel.
func sharesDefault(cfg config.AppenderConfig) bool {
	return !cfg.Parallel && cfg.AllowChannelSharing
}

// Resolve returns the channel an event of the given kind from key belongs
// to, creating one if needed. It only fails when a channel must be created
// and the configuration is invalid.
func (r *Registry) Resolve(key string, kind event.Kind) (*channel.Channel, error) {
	r.mu.RLock()
	if c, ok := r.channels[key]; ok {
		r.mu.RUnlock()
		return c, nil
	}
	cfg := r.cfg
	if sharesDefault(cfg) && len(r.order) > 0 {
		c := r.channels[r.order[0]]
		r.mu.RUnlock()
		return c, nil
	}
	r.mu.RUnlock()

	if kind.Inheritable() {
		if c := r.inherit(key, cfg.MaxLineageDepth); c != nil {
			return c, nil
		}
	}

	return r.create(key)
}

// inherit walks the lineage of key and returns the nearest ancestor's channel.
func (r *Registry) inherit(key string, maxDepth int) *channel.Channel {
	ancestors, overrun := r.lineage.Ancestors(key, maxDepth)
	if len(ancestors) > 0 {
		r.mu.RLock()
		for _, a := range ancestors {
			if c, ok := r.channels[a]; ok {
				r.mu.RUnlock()
				return c
			}
		}
		r.mu.RUnlock()
	}
	if overrun {
		r.logger.Error("thread lineage exceeds max depth, lineage populator may be cyclic",
			zap.String("thread", key),
			zap.Int("max_lineage_depth", maxDepth))
	}
	return nil
}

func (r *Registry) create(key string) (*channel.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.channels[key]; ok {
		return c, nil
	}
	// Another resolver may have created the default channel meanwhile.
	if sharesDefault(r.cfg) && len(r.order) > 0 {
		return r.channels[r.order[0]], nil
	}

	c, err := channel.New(key, r.cfg, r.sink,
		channel.WithLogger(r.logger.Named("channel")),
		channel.WithTracer(r.tracer),
		channel.WithIDSource(r.nextID),
	)
	if err != nil {
		return nil, fmt.Errorf("creating channel %q: %w", key, err)
	}
	r.channels[key] = c
	r.order = append(r.order, key)

	r.logger.Debug("channel created",
		zap.String("channel", key),
		zap.Int("capacity", r.cfg.MaxNumberLogEvents),
		zap.Int("live_channels", len(r.channels)))
	return c, nil
}

func (r *Registry) nextID() int64 {
	return r.seq.Add(1)
}

// Lookup returns the channel registered under key. The empty key addresses
// the default channel.
func (r *Registry) Lookup(key string) (*channel.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupLocked(key)
}

func (r *Registry) lookupLocked(key string) (*channel.Channel, error) {
	if key == "" {
		if len(r.order) == 0 {
			return nil, ErrChannelNotFound
		}
		key = r.order[0]
	}
	c, ok := r.channels[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrChannelNotFound, key)
	}
	return c, nil
}

// Destroy unregisters the channel for key and closes it without waiting for
// it to drain. The next event for key creates a fresh channel.
func (r *Registry) Destroy(key string) error {
	r.mu.Lock()
	c, err := r.lookupLocked(key)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.removeLocked(c)
	r.mu.Unlock()

	c.Close()
	r.logger.Debug("channel destroyed", zap.String("channel", c.Key()), zap.Int("pending", c.Pending()))
	return nil
}

// removeLocked drops c if it is still the channel registered under its key.
func (r *Registry) removeLocked(c *channel.Channel) {
	if cur, ok := r.channels[c.Key()]; !ok || cur != c {
		return
	}
	delete(r.channels, c.Key())
	for i, k := range r.order {
		if k == c.Key() {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// DestroyAll shuts down every channel that exists when it is called. With
// waitForDrain it first waits for each queue to empty, then closes the
// channels and waits for their consumers to finish. Without it the channels
// are closed and left to drain in the background. ctx bounds the waiting.
func (r *Registry) DestroyAll(ctx context.Context, waitForDrain bool) error {
	r.mu.RLock()
	snapshot := make([]*channel.Channel, 0, len(r.order))
	for _, k := range r.order {
		snapshot = append(snapshot, r.channels[k])
	}
	r.mu.RUnlock()

	start := time.Now()
	var errs []error

	if waitForDrain {
		for _, c := range snapshot {
			if err := c.WaitForDrain(ctx); err != nil {
				errs = append(errs, fmt.Errorf("draining channel %q: %w", c.Key(), err))
			}
		}
	}

	r.mu.Lock()
	for _, c := range snapshot {
		r.removeLocked(c)
	}
	r.mu.Unlock()

	for _, c := range snapshot {
		c.Close()
	}

	if waitForDrain {
		for _, c := range snapshot {
			select {
			case <-c.Done():
			case <-ctx.Done():
				errs = append(errs, fmt.Errorf("closing channel %q: %w", c.Key(), ctx.Err()))
			}
		}
	}

	r.logger.Info("channels destroyed",
		zap.Int("count", len(snapshot)),
		zap.Bool("wait_for_drain", waitForDrain),
		zap.Duration("duration", time.Since(start)))
	return errors.Join(errs...)
}

// Len returns the number of live channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// DefaultKey returns the key of the default channel, or "".
func (r *Registry) DefaultKey() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) == 0 {
		return ""
	}
	return r.order[0]
}

// Channels returns snapshots of every live channel, oldest first.
func (r *Registry) Channels() []channel.Snapshot {
	r.mu.RLock()
	live := make([]*channel.Channel, 0, len(r.order))
	for _, k := range r.order {
		live = append(live, r.channels[k])
	}
	r.mu.RUnlock()

	out := make([]channel.Snapshot, len(live))
	for i, c := range live {
		out[i] = c.Snapshot()
	}
	return out
}
