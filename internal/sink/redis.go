package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/runlogd/pkg/event"
	"github.com/redis/go-redis/v9"
)

// RedisSink appends each record to the stream <prefix>:<channel key>.
type RedisSink struct {
	client redis.UniversalClient
	prefix string
	maxLen int64
}

// RedisOption configures a RedisSink.
type RedisOption func(*RedisSink)

// WithMaxLen caps each stream at roughly n entries (XADD MAXLEN ~).
func WithMaxLen(n int64) RedisOption {
	return func(s *RedisSink) { s.maxLen = n }
}

// NewRedisSink writes through client.
func NewRedisSink(client redis.UniversalClient, prefix string, opts ...RedisOption) *RedisSink {
	s := &RedisSink{client: client, prefix: prefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DialRedis connects to a redis:// URL (or a bare host:port) and pings it.
func DialRedis(ctx context.Context, url, password, prefix string) (*RedisSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	if password != "" {
		opts.Password = password
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisSink(client, prefix), nil
}

// Stream returns the stream key for channelKey.
func (s *RedisSink) Stream(channelKey string) string {
	return s.prefix + ":" + subjectToken(channelKey)
}

// PersistBatch pipelines one XADD per record.
func (s *RedisSink) PersistBatch(ctx context.Context, channelKey string, records []event.Record) error {
	stream := s.Stream(channelKey)
	args := make([]*redis.XAddArgs, len(records))
	for i, r := range records {
		a, err := streamArgs(stream, channelKey, r, s.maxLen)
		if err != nil {
			return err
		}
		args[i] = a
	}

	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, a := range args {
			p.XAdd(ctx, a)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append to stream %s: %w", stream, err)
	}
	return nil
}

func streamArgs(stream, channelKey string, r event.Record, maxLen int64) (*redis.XAddArgs, error) {
	values := map[string]any{
		"event_id":       r.ID.String(),
		"channel":        channelKey,
		"thread":         r.ThreadKey,
		"kind":           r.Kind.String(),
		"severity":       r.Severity.String(),
		"message":        r.Message,
		"timestamp":      r.Timestamp.UTC().Format(time.RFC3339Nano),
		"corrected_time": r.CorrectedTime.UTC().Format(time.RFC3339Nano),
		"run_id":         strconv.FormatInt(r.RunID, 10),
		"suite_id":       strconv.FormatInt(r.SuiteID, 10),
		"testcase_id":    strconv.FormatInt(r.TestCaseID, 10),
	}
	if r.Logger != "" {
		values["logger"] = r.Logger
	}
	if r.Name != "" {
		values["name"] = r.Name
	}
	if len(r.Attributes) > 0 {
		attrs, err := json.Marshal(r.Attributes)
		if err != nil {
			return nil, fmt.Errorf("failed to encode attributes of event %s: %w", r.ID, err)
		}
		values["attributes"] = string(attrs)
	}

	a := &redis.XAddArgs{Stream: stream, Values: values}
	if maxLen > 0 {
		a.MaxLen = maxLen
		a.Approx = true
	}
	return a, nil
}

// Close closes the client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
