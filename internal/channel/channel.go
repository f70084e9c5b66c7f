// Package channel implements the per-key event pipeline: a bounded queue
// fed by any number of producers and drained in order by one consumer
// goroutine that batches records and hands them to a Persister.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fyrsmithlabs/runlogd/internal/config"
	"github.com/fyrsmithlabs/runlogd/pkg/event"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrChannelClosed is returned by Enqueue once Close has been called.
	ErrChannelClosed = errors.New("channel closed")
	// ErrQueueFull is returned by Enqueue under the drop policy.
	ErrQueueFull = errors.New("channel queue full")
)

// Persister stores a batch of records for one channel.
type Persister interface {
	PersistBatch(ctx context.Context, channelKey string, records []event.Record) error
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(ctx context.Context, channelKey string, records []event.Record) error

// PersistBatch calls f.
func (f PersisterFunc) PersistBatch(ctx context.Context, channelKey string, records []event.Record) error {
	return f(ctx, channelKey, records)
}

type item struct {
	ev    event.Event
	reply chan TestCaseState // non-nil for control queries
}

// Channel owns one bounded queue and its consumer goroutine.
type Channel struct {
	key     string
	cfg     config.AppenderConfig
	sink    Persister
	logger  *zap.Logger
	tracer  trace.Tracer
	nextID  func() int64
	created time.Time
	now     func() time.Time

	queue chan item

	// mu is read-held by every in-flight Enqueue and write-held by Close, so
	// the queue is never closed under a sender.
	mu        sync.RWMutex
	closed    bool
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	state     atomic.Int32

	pendingMu sync.Mutex
	pending   int
	idle      chan struct{} // closed while pending == 0

	dropped   atomic.Int64
	lost      atomic.Int64
	persisted atomic.Int64
	dropWarn  rate.Sometimes

	idsMu                  sync.RWMutex
	runID                  int64
	runName                string
	runUserNote            string
	suiteID                int64
	testCaseID             int64
	lastExecutedTestCaseID int64
	offset                 atomic.Int64 // time.Duration
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the logger for consumer diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Channel) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracer sets the tracer used for persist spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Channel) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithIDSource sets the allocator for run, suite and test-case IDs of
// boundary events that carry no EntityID.
func WithIDSource(next func() int64) Option {
	return func(c *Channel) {
		if next != nil {
			c.nextID = next
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Channel) {
		if now != nil {
			c.now = now
		}
	}
}

// New validates cfg and returns a channel whose consumer is already running.
func New(key string, cfg config.AppenderConfig, sink Persister, opts ...Option) (*Channel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, fmt.Errorf("channel %q: nil persister", key)
	}

	var seq atomic.Int64
	c := &Channel{
		key:      key,
		cfg:      cfg,
		sink:     sink,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer("runlogd/channel"),
		nextID:   func() int64 { return seq.Add(1) },
		now:      time.Now,
		queue:    make(chan item, cfg.MaxNumberLogEvents),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
		idle:     make(chan struct{}),
		dropWarn: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
	close(c.idle)
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("channel", key))
	c.created = c.now()

	OpenChannels.Inc()
	go c.run()
	return c, nil
}

// Key returns the channel key.
func (c *Channel) Key() string { return c.key }

// Config returns the configuration the channel was created with.
func (c *Channel) Config() config.AppenderConfig { return c.cfg }

// CreatedAt returns the creation time.
func (c *Channel) CreatedAt() time.Time { return c.created }

// State returns the current lifecycle state.
func (c *Channel) State() State { return State(c.state.Load()) }

// Done is closed once the consumer has drained the queue and exited.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Enqueue adds ev to the queue. Under the block policy it waits for space,
// Close, or ctx; under the drop policy a full queue returns ErrQueueFull.
func (c *Channel) Enqueue(ctx context.Context, ev event.Event) error {
	return c.send(ctx, item{ev: ev})
}

func (c *Channel) send(ctx context.Context, it item) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		EventsRejected.WithLabelValues(reasonClosed).Inc()
		return ErrChannelClosed
	}
	select {
	case <-c.closing:
		EventsRejected.WithLabelValues(reasonClosed).Inc()
		return ErrChannelClosed
	default:
	}

	counted := it.reply == nil
	if counted {
		c.addPending()
	}

	select {
	case c.queue <- it:
		if counted {
			EventsEnqueued.Inc()
		}
		return nil
	default:
	}

	if c.cfg.CapacityPolicy == config.CapacityDrop && counted {
		c.donePending(1)
		n := c.dropped.Add(1)
		EventsRejected.WithLabelValues(reasonFull).Inc()
		c.dropWarn.Do(func() {
			c.logger.Warn("channel queue full, dropping events",
				zap.Int("capacity", c.cfg.MaxNumberLogEvents),
				zap.Int64("dropped_total", n))
		})
		return ErrQueueFull
	}

	select {
	case c.queue <- it:
		if counted {
			EventsEnqueued.Inc()
		}
		return nil
	case <-c.closing:
		if counted {
			c.donePending(1)
		}
		EventsRejected.WithLabelValues(reasonClosed).Inc()
		return ErrChannelClosed
	case <-ctx.Done():
		if counted {
			c.donePending(1)
		}
		EventsRejected.WithLabelValues(reasonCanceled).Inc()
		return ctx.Err()
	}
}

// CurrentTestCaseState asks the consumer for its test-case state. The query
// travels through the queue, so the answer reflects every event enqueued
// before it.
func (c *Channel) CurrentTestCaseState(ctx context.Context) (TestCaseState, error) {
	reply := make(chan TestCaseState, 1)
	if err := c.send(ctx, item{ev: event.Event{Kind: event.KindControlQuery}, reply: reply}); err != nil {
		return TestCaseState{}, err
	}
	select {
	case st := <-reply:
		return st, nil
	case <-c.done:
		// The consumer answers everything it dequeues before exiting.
		select {
		case st := <-reply:
			return st, nil
		default:
			return TestCaseState{}, ErrChannelClosed
		}
	case <-ctx.Done():
		return TestCaseState{}, ctx.Err()
	}
}

// Close stops accepting events. Producers blocked in Enqueue return
// ErrChannelClosed; the consumer keeps draining what is already queued.
// Close does not wait; use Done or WaitForDrain.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
		close(c.closing)
		c.mu.Lock()
		c.closed = true
		close(c.queue)
		c.mu.Unlock()
	})
}

// WaitForDrain blocks until no events are queued or in flight.
func (c *Channel) WaitForDrain(ctx context.Context) error {
	for {
		c.pendingMu.Lock()
		idle := c.idle
		c.pendingMu.Unlock()

		select {
		case <-idle:
			if c.Pending() == 0 {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pending returns the number of events queued or being persisted.
func (c *Channel) Pending() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return c.pending
}

// Dropped returns the number of events refused under the drop policy.
func (c *Channel) Dropped() int64 { return c.dropped.Load() }

// Lost returns the number of records in batches the sink failed to persist.
func (c *Channel) Lost() int64 { return c.lost.Load() }

// Persisted returns the number of records persisted successfully.
func (c *Channel) Persisted() int64 { return c.persisted.Load() }

func (c *Channel) addPending() {
	c.pendingMu.Lock()
	if c.pending == 0 {
		c.idle = make(chan struct{})
	}
	c.pending++
	c.pendingMu.Unlock()
}

func (c *Channel) donePending(n int) {
	if n <= 0 {
		return
	}
	c.pendingMu.Lock()
	c.pending -= n
	if c.pending == 0 {
		close(c.idle)
	}
	c.pendingMu.Unlock()
}

// CalculateTimeOffset stores the difference between local time and the
// producer's clock reading ts, and returns it. Persisted records are shifted
// by this offset.
func (c *Channel) CalculateTimeOffset(ts time.Time) time.Duration {
	d := c.now().Sub(ts)
	c.offset.Store(int64(d))
	return d
}

// TimeOffset returns the current clock offset.
func (c *Channel) TimeOffset() time.Duration {
	return time.Duration(c.offset.Load())
}

// RunID returns the current run ID, or 0.
func (c *Channel) RunID() int64 {
	c.idsMu.RLock()
	defer c.idsMu.RUnlock()
	return c.runID
}

// RunName returns the current run name.
func (c *Channel) RunName() string {
	c.idsMu.RLock()
	defer c.idsMu.RUnlock()
	return c.runName
}

// RunUserNote returns the current run user note.
func (c *Channel) RunUserNote() string {
	c.idsMu.RLock()
	defer c.idsMu.RUnlock()
	return c.runUserNote
}

// SuiteID returns the current suite ID, or 0.
func (c *Channel) SuiteID() int64 {
	c.idsMu.RLock()
	defer c.idsMu.RUnlock()
	return c.suiteID
}

// TestCaseID returns the running test-case ID, or 0.
func (c *Channel) TestCaseID() int64 {
	c.idsMu.RLock()
	defer c.idsMu.RUnlock()
	return c.testCaseID
}

// LastExecutedTestCaseID returns the most recently ended test case, or 0.
func (c *Channel) LastExecutedTestCaseID() int64 {
	c.idsMu.RLock()
	defer c.idsMu.RUnlock()
	return c.lastExecutedTestCaseID
}

// Snapshot returns a point-in-time view of the channel.
func (c *Channel) Snapshot() Snapshot {
	c.idsMu.RLock()
	s := Snapshot{
		Key:                    c.key,
		RunID:                  c.runID,
		RunName:                c.runName,
		RunUserNote:            c.runUserNote,
		SuiteID:                c.suiteID,
		TestCaseID:             c.testCaseID,
		LastExecutedTestCaseID: c.lastExecutedTestCaseID,
	}
	c.idsMu.RUnlock()
	s.State = c.State()
	s.Pending = c.Pending()
	s.Capacity = c.cfg.MaxNumberLogEvents
	s.Dropped = c.Dropped()
	s.Lost = c.Lost()
	s.Persisted = c.Persisted()
	s.TimeOffsetMillis = c.TimeOffset().Milliseconds()
	return s
}

func (c *Channel) testCaseState() TestCaseState {
	c.idsMu.RLock()
	defer c.idsMu.RUnlock()
	return TestCaseState{
		RunID:                  c.runID,
		SuiteID:                c.suiteID,
		TestCaseID:             c.testCaseID,
		LastExecutedTestCaseID: c.lastExecutedTestCaseID,
		Running:                c.testCaseID != 0,
	}
}

func (c *Channel) entityID(ev event.Event) int64 {
	if ev.EntityID != 0 {
		return ev.EntityID
	}
	return c.nextID()
}
