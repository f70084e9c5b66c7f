package registry

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/runlogd/internal/channel"
)

// Accessors below address the default channel when key is empty and return
// ErrChannelNotFound when no channel matches.

func read[T any](r *Registry, key string, fn func(*channel.Channel) T) (T, error) {
	c, err := r.Lookup(key)
	if err != nil {
		var zero T
		return zero, err
	}
	return fn(c), nil
}

// NumberPendingLogEvents returns the events queued or in flight on key's channel.
func (r *Registry) NumberPendingLogEvents(key string) (int, error) {
	return read(r, key, (*channel.Channel).Pending)
}

// RunID returns the current run ID of key's channel.
func (r *Registry) RunID(key string) (int64, error) {
	return read(r, key, (*channel.Channel).RunID)
}

// RunName returns the current run name of key's channel.
func (r *Registry) RunName(key string) (string, error) {
	return read(r, key, (*channel.Channel).RunName)
}

// RunUserNote returns the current run user note of key's channel.
func (r *Registry) RunUserNote(key string) (string, error) {
	return read(r, key, (*channel.Channel).RunUserNote)
}

// SuiteID returns the current suite ID of key's channel.
func (r *Registry) SuiteID(key string) (int64, error) {
	return read(r, key, (*channel.Channel).SuiteID)
}

// TestCaseID returns the running test-case ID of key's channel.
func (r *Registry) TestCaseID(key string) (int64, error) {
	return read(r, key, (*channel.Channel).TestCaseID)
}

// LastExecutedTestCaseID returns the last ended test case of key's channel.
func (r *Registry) LastExecutedTestCaseID(key string) (int64, error) {
	return read(r, key, (*channel.Channel).LastExecutedTestCaseID)
}

// CalculateTimeOffset records the producer clock reading ts on key's channel
// and returns the resulting offset.
func (r *Registry) CalculateTimeOffset(key string, ts time.Time) (time.Duration, error) {
	c, err := r.Lookup(key)
	if err != nil {
		return 0, err
	}
	return c.CalculateTimeOffset(ts), nil
}

// CurrentTestCaseState queries key's channel in stream order.
func (r *Registry) CurrentTestCaseState(ctx context.Context, key string) (channel.TestCaseState, error) {
	c, err := r.Lookup(key)
	if err != nil {
		return channel.TestCaseState{}, err
	}
	return c.CurrentTestCaseState(ctx)
}

// Snapshot returns the status of key's channel.
func (r *Registry) Snapshot(key string) (channel.Snapshot, error) {
	return read(r, key, (*channel.Channel).Snapshot)
}
