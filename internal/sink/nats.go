package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/runlogd/pkg/event"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// BatchMessage is the JSON payload published for every batch.
type BatchMessage struct {
	Channel string         `json:"channel"`
	Records []event.Record `json:"records"`
}

// NATSSink publishes each batch to <prefix>.<channel key>.
type NATSSink struct {
	nc     *nats.Conn
	prefix string
	owns   bool
}

// NewNATSSink publishes on an existing connection. Close leaves nc open.
func NewNATSSink(nc *nats.Conn, prefix string) *NATSSink {
	return &NATSSink{nc: nc, prefix: prefix}
}

// DialNATS connects to url and returns a sink that drains the connection on
// Close.
func DialNATS(url, prefix string, logger *zap.Logger) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("runlogd"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrlRedacted()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	s := NewNATSSink(nc, prefix)
	s.owns = true
	return s, nil
}

// Subject returns the subject batches of channelKey are published on.
func (s *NATSSink) Subject(channelKey string) string {
	return s.prefix + "." + subjectToken(channelKey)
}

// PersistBatch publishes records as one message and flushes so that a
// failed connection is reported for this batch.
func (s *NATSSink) PersistBatch(ctx context.Context, channelKey string, records []event.Record) error {
	data, err := json.Marshal(BatchMessage{Channel: channelKey, Records: records})
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}
	if err := s.nc.Publish(s.Subject(channelKey), data); err != nil {
		return fmt.Errorf("failed to publish batch: %w", err)
	}
	if _, ok := ctx.Deadline(); ok {
		err = s.nc.FlushWithContext(ctx)
	} else {
		err = s.nc.Flush()
	}
	if err != nil {
		return fmt.Errorf("failed to flush batch: %w", err)
	}
	return nil
}

// Close drains the connection if the sink opened it.
func (s *NATSSink) Close() error {
	if s.owns {
		return s.nc.Drain()
	}
	return nil
}
