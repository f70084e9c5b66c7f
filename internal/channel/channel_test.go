package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fyrsmithlabs/runlogd/internal/config"
	"github.com/fyrsmithlabs/runlogd/internal/telemetry"
	"github.com/fyrsmithlabs/runlogd/pkg/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// recordingSink captures batches. When gate is non-nil every call signals
// started and then waits for gate to be closed.
type recordingSink struct {
	mu      sync.Mutex
	batches [][]event.Record
	fail    func(call int) error
	calls   int

	started chan struct{}
	gate    chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{}
}

func newGatedSink() *recordingSink {
	return &recordingSink{started: make(chan struct{}, 64), gate: make(chan struct{})}
}

func (s *recordingSink) PersistBatch(ctx context.Context, key string, records []event.Record) error {
	if s.gate != nil {
		s.started <- struct{}{}
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail != nil {
		if err := s.fail(s.calls); err != nil {
			return err
		}
	}
	s.batches = append(s.batches, append([]event.Record(nil), records...))
	return nil
}

func (s *recordingSink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, b := range s.batches {
		for _, r := range b {
			out = append(out, r.Message)
		}
	}
	return out
}

func (s *recordingSink) records() []event.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []event.Record
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

func (s *recordingSink) batchSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes := make([]int, len(s.batches))
	for i, b := range s.batches {
		sizes[i] = len(b)
	}
	return sizes
}

func immediateConfig(capacity int) config.AppenderConfig {
	cfg := config.NewDefaultAppenderConfig()
	cfg.MaxNumberLogEvents = capacity
	cfg.Mode = "immediate"
	return cfg
}

func msg(text string) event.Event {
	return event.New(event.KindMessage, "worker-1", zapcore.InfoLevel, text)
}

func closeAndWait(t *testing.T, c *Channel) {
	t.Helper()
	c.Close()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("channel did not drain")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := immediateConfig(0)

	_, err := New("c1", cfg, newRecordingSink())
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfiguration)

	_, err = New("c1", immediateConfig(1), nil)
	assert.Error(t, err)
}

func TestChannel_FIFO(t *testing.T) {
	sink := newRecordingSink()
	c, err := New("c1", immediateConfig(8), sink)
	require.NoError(t, err)

	var want []string
	for i := 0; i < 200; i++ {
		m := fmt.Sprintf("e%d", i)
		want = append(want, m)
		require.NoError(t, c.Enqueue(context.Background(), msg(m)))
	}
	closeAndWait(t, c)

	assert.Equal(t, want, sink.messages())
	assert.Equal(t, StateDrained, c.State())
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, int64(200), c.Persisted())
}

func TestChannel_ConcurrentProducersKeepPerProducerOrder(t *testing.T) {
	sink := newRecordingSink()
	c, err := New("c1", immediateConfig(4), sink)
	require.NoError(t, err)

	const producers, perProducer = 8, 50
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				ev := event.New(event.KindMessage, fmt.Sprintf("p%d", p), zapcore.InfoLevel, fmt.Sprint(i))
				assert.NoError(t, c.Enqueue(context.Background(), ev))
			}
		}(p)
	}
	wg.Wait()
	require.NoError(t, c.WaitForDrain(context.Background()))
	closeAndWait(t, c)

	last := map[string]int{}
	recs := sink.records()
	require.Len(t, recs, producers*perProducer)
	for _, r := range recs {
		var n int
		_, _ = fmt.Sscan(r.Message, &n)
		prev, seen := last[r.ThreadKey]
		if seen {
			assert.Greater(t, n, prev, "producer %s out of order", r.ThreadKey)
		}
		last[r.ThreadKey] = n
	}
}

func TestChannel_BatchBySize(t *testing.T) {
	sink := newRecordingSink()
	cfg := config.NewDefaultAppenderConfig()
	cfg.BatchSize = 3
	cfg.FlushInterval = config.Duration(time.Hour)

	c, err := New("c1", cfg, sink)
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		require.NoError(t, c.Enqueue(context.Background(), msg(fmt.Sprintf("e%d", i))))
	}
	require.Eventually(t, func() bool { return len(sink.batchSizes()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, c.Pending(), "partial batch stays pending until flush")

	closeAndWait(t, c)
	assert.Equal(t, []int{3, 3, 1}, sink.batchSizes())
	assert.Equal(t, []string{"e0", "e1", "e2", "e3", "e4", "e5", "e6"}, sink.messages())
}

func TestChannel_BatchByInterval(t *testing.T) {
	sink := newRecordingSink()
	cfg := config.NewDefaultAppenderConfig()
	cfg.BatchSize = 100
	cfg.FlushInterval = config.Duration(20 * time.Millisecond)

	c, err := New("c1", cfg, sink)
	require.NoError(t, err)
	defer closeAndWait(t, c)

	require.NoError(t, c.Enqueue(context.Background(), msg("a")))
	require.NoError(t, c.Enqueue(context.Background(), msg("b")))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.WaitForDrain(ctx))

	assert.Equal(t, []int{2}, sink.batchSizes())
}

func TestChannel_DropPolicy(t *testing.T) {
	sink := newGatedSink()
	cfg := immediateConfig(1)
	cfg.CapacityPolicy = config.CapacityDrop
	core, logs := observer.New(zapcore.WarnLevel)

	c, err := New("c1", cfg, sink, WithLogger(zap.New(core)))
	require.NoError(t, err)

	require.NoError(t, c.Enqueue(context.Background(), msg("e1")))
	<-sink.started // consumer holds e1
	require.NoError(t, c.Enqueue(context.Background(), msg("e2")))

	err = c.Enqueue(context.Background(), msg("e3"))
	assert.ErrorIs(t, err, ErrQueueFull)
	err = c.Enqueue(context.Background(), msg("e4"))
	assert.ErrorIs(t, err, ErrQueueFull)

	assert.Equal(t, int64(2), c.Dropped())
	assert.Equal(t, 2, c.Pending())
	assert.Equal(t, 1, logs.FilterMessage("channel queue full, dropping events").Len(), "warning is rate limited")

	close(sink.gate)
	closeAndWait(t, c)
	assert.Equal(t, []string{"e1", "e2"}, sink.messages())
}

func TestChannel_BlockPolicyWaitsForSpace(t *testing.T) {
	sink := newGatedSink()
	c, err := New("c1", immediateConfig(1), sink)
	require.NoError(t, err)

	require.NoError(t, c.Enqueue(context.Background(), msg("e1")))
	<-sink.started
	require.NoError(t, c.Enqueue(context.Background(), msg("e2")))

	result := make(chan error, 1)
	go func() { result <- c.Enqueue(context.Background(), msg("e3")) }()

	select {
	case err := <-result:
		t.Fatalf("Enqueue returned %v before space was available", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(sink.gate)
	require.NoError(t, <-result)
	closeAndWait(t, c)
	assert.Equal(t, []string{"e1", "e2", "e3"}, sink.messages())
	assert.Equal(t, int64(0), c.Dropped())
}

func TestChannel_BlockedProducerWokenByClose(t *testing.T) {
	sink := newGatedSink()
	c, err := New("c1", immediateConfig(1), sink)
	require.NoError(t, err)

	require.NoError(t, c.Enqueue(context.Background(), msg("e1")))
	<-sink.started
	require.NoError(t, c.Enqueue(context.Background(), msg("e2")))

	result := make(chan error, 1)
	go func() { result <- c.Enqueue(context.Background(), msg("e3")) }()
	time.Sleep(20 * time.Millisecond)

	c.Close()
	assert.ErrorIs(t, <-result, ErrChannelClosed)
	assert.Equal(t, StateClosing, c.State())

	close(sink.gate)
	<-c.Done()
	assert.Equal(t, []string{"e1", "e2"}, sink.messages())
	assert.Equal(t, 0, c.Pending())
}

func TestChannel_BlockPolicyHonorsContext(t *testing.T) {
	sink := newGatedSink()
	c, err := New("c1", immediateConfig(1), sink)
	require.NoError(t, err)

	require.NoError(t, c.Enqueue(context.Background(), msg("e1")))
	<-sink.started
	require.NoError(t, c.Enqueue(context.Background(), msg("e2")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = c.Enqueue(ctx, msg("e3"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, c.Pending())

	close(sink.gate)
	closeAndWait(t, c)
}

func TestChannel_EnqueueAfterClose(t *testing.T) {
	c, err := New("c1", immediateConfig(4), newRecordingSink())
	require.NoError(t, err)

	closeAndWait(t, c)
	c.Close() // idempotent

	assert.ErrorIs(t, c.Enqueue(context.Background(), msg("late")), ErrChannelClosed)
	_, err = c.CurrentTestCaseState(context.Background())
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestChannel_PersistFailureIsCountedAndLoopContinues(t *testing.T) {
	sink := newRecordingSink()
	sink.fail = func(call int) error {
		if call == 1 {
			return errors.New("disk full")
		}
		return nil
	}
	core, logs := observer.New(zapcore.ErrorLevel)

	c, err := New("c1", immediateConfig(4), sink, WithLogger(zap.New(core)))
	require.NoError(t, err)

	require.NoError(t, c.Enqueue(context.Background(), msg("lost")))
	require.NoError(t, c.Enqueue(context.Background(), msg("kept")))
	closeAndWait(t, c)

	assert.Equal(t, int64(1), c.Lost())
	assert.Equal(t, []string{"kept"}, sink.messages())
	require.Equal(t, 1, logs.FilterMessage("failed to persist batch").Len())
	assert.Equal(t, "c1", logs.All()[0].ContextMap()["channel"])
}

func TestChannel_PersisterPanicIsRecovered(t *testing.T) {
	var calls int
	var mu sync.Mutex
	var kept []string
	sink := PersisterFunc(func(_ context.Context, _ string, records []event.Record) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			panic("driver bug")
		}
		for _, r := range records {
			kept = append(kept, r.Message)
		}
		return nil
	})

	c, err := New("c1", immediateConfig(4), sink)
	require.NoError(t, err)

	require.NoError(t, c.Enqueue(context.Background(), msg("boom")))
	require.NoError(t, c.Enqueue(context.Background(), msg("after")))
	closeAndWait(t, c)

	assert.Equal(t, int64(1), c.Lost())
	assert.Equal(t, []string{"after"}, kept)
}

func TestChannel_WaitForDrainTimeout(t *testing.T) {
	sink := newGatedSink()
	c, err := New("c1", immediateConfig(4), sink)
	require.NoError(t, err)

	require.NoError(t, c.Enqueue(context.Background(), msg("stuck")))
	<-sink.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.WaitForDrain(ctx), context.DeadlineExceeded)

	close(sink.gate)
	require.NoError(t, c.WaitForDrain(context.Background()))
	closeAndWait(t, c)
}

func TestChannel_PersistSpan(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	c, err := New("c9", immediateConfig(4), newRecordingSink(), WithTracer(tt.Tracer("test")))
	require.NoError(t, err)

	require.NoError(t, c.Enqueue(context.Background(), msg("traced")))
	closeAndWait(t, c)

	tt.AssertSpanExists(t, "channel.persist_batch")
	tt.AssertSpanAttribute(t, "channel.persist_batch", "channel.key", "c9")
	tt.AssertSpanAttribute(t, "channel.persist_batch", "batch.size", int64(1))
}
