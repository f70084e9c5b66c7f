package channel

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/fyrsmithlabs/runlogd/pkg/event"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// run is the consumer loop. It exits once the queue is closed and empty.
func (c *Channel) run() {
	defer func() {
		c.state.Store(int32(StateDrained))
		OpenChannels.Dec()
		close(c.done)
	}()

	batchMode := c.cfg.BatchMode()
	size := 1
	if batchMode {
		size = c.cfg.BatchSize
	}

	var (
		batch  []event.Record
		timer  *time.Timer
		timerC <-chan time.Time
	)
	if batchMode {
		timer = time.NewTimer(c.cfg.FlushInterval.Duration())
		timer.Stop()
		defer timer.Stop()
	}

	flush := func() {
		if len(batch) == 0 {
			return
		}
		c.persist(batch)
		batch = nil
		if timer != nil {
			timer.Stop()
			timerC = nil
		}
	}

	for {
		select {
		case it, ok := <-c.queue:
			if !ok {
				flush()
				return
			}
			if it.reply != nil {
				it.reply <- c.testCaseState()
				continue
			}
			rec, keep := c.apply(it.ev)
			if !keep {
				c.donePending(1)
				continue
			}
			batch = append(batch, rec)
			if len(batch) >= size {
				flush()
			} else if timerC == nil && timer != nil {
				timer.Reset(c.cfg.FlushInterval.Duration())
				timerC = timer.C
			}
		case <-timerC:
			timerC = nil
			flush()
		}
	}
}

// apply updates run, suite and test-case state for boundary events and
// stamps the record. Start events are stamped with the new identifiers, end
// events with the ones they close.
func (c *Channel) apply(ev event.Event) (event.Record, bool) {
	if ev.Kind == event.KindCheckpoint && !c.cfg.EnableCheckpoints {
		return event.Record{}, false
	}

	c.idsMu.Lock()
	switch ev.Kind {
	case event.KindStartRun:
		c.runID = c.entityID(ev)
		c.runName = ev.Name
		c.runUserNote = ev.Attr(event.AttrUserNote)
		c.suiteID, c.testCaseID = 0, 0
	case event.KindUpdateRun:
		if ev.Name != "" {
			c.runName = ev.Name
		}
		if note, ok := ev.Attributes[event.AttrUserNote]; ok {
			c.runUserNote = note
		}
	case event.KindStartSuite:
		c.suiteID = c.entityID(ev)
	case event.KindStartTestCase:
		c.testCaseID = c.entityID(ev)
	}

	rec := event.Record{
		Event:         ev,
		RunID:         c.runID,
		SuiteID:       c.suiteID,
		TestCaseID:    c.testCaseID,
		CorrectedTime: ev.Timestamp.Add(c.TimeOffset()),
	}

	switch ev.Kind {
	case event.KindEndTestCase:
		if c.testCaseID != 0 {
			c.lastExecutedTestCaseID = c.testCaseID
		}
		c.testCaseID = 0
	case event.KindEndSuite:
		c.suiteID, c.testCaseID = 0, 0
	case event.KindEndRun:
		c.runID, c.suiteID, c.testCaseID = 0, 0, 0
	}
	c.idsMu.Unlock()

	return rec, true
}

func (c *Channel) persist(batch []event.Record) {
	defer c.donePending(len(batch))

	ctx := context.Background()
	var cancel context.CancelFunc
	if d := c.cfg.PersistTimeout.Duration(); d > 0 {
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	ctx, span := c.tracer.Start(ctx, "channel.persist_batch",
		trace.WithAttributes(
			attribute.String("channel.key", c.key),
			attribute.Int("batch.size", len(batch)),
		))
	defer span.End()

	start := time.Now()
	err := c.safePersist(ctx, batch)
	PersistDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		n := int64(len(batch))
		c.lost.Add(n)
		EventsLost.Add(float64(n))
		Batches.WithLabelValues(resultError).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		c.logger.Error("failed to persist batch",
			zap.Int("batch_size", len(batch)),
			zap.Int64("lost_total", c.lost.Load()),
			zap.Error(err))
		return
	}

	c.persisted.Add(int64(len(batch)))
	EventsPersisted.Add(float64(len(batch)))
	Batches.WithLabelValues(resultSuccess).Inc()
}

// safePersist converts a sink panic into an error so the consumer survives.
func (c *Channel) safePersist(ctx context.Context, batch []event.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("persister panic recovered",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("persister panic: %v", r)
		}
	}()
	return c.sink.PersistBatch(ctx, c.key, batch)
}
