// Package sink provides the persistence collaborators channels hand their
// batches to: a zap log writer, SQL tables (SQLite or PostgreSQL), NATS
// subjects and Redis streams.
package sink

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/runlogd/internal/channel"
	"github.com/fyrsmithlabs/runlogd/internal/config"
	"go.uber.org/zap"
)

// Sink persists batches for a channel and releases its connection on Close.
type Sink interface {
	channel.Persister
	Close() error
}

// ErrInvalidTable is returned for table names that are not plain identifiers.
var ErrInvalidTable = errors.New("invalid table name")

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// New builds the sink selected by cfg.Kind. The caller owns the result and
// must Close it after every channel has drained.
func New(ctx context.Context, cfg config.SinkConfig, logger *zap.Logger) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("sink").With(zap.String("kind", cfg.Kind))

	var (
		s   Sink
		err error
	)
	switch cfg.Kind {
	case config.SinkLog:
		s = NewLogSink(logger)
	case config.SinkSQLite:
		s, err = OpenSQL(ctx, DialectSQLite, cfg.DSN.Value(), cfg.Table)
	case config.SinkPostgres:
		s, err = OpenSQL(ctx, DialectPostgres, cfg.DSN.Value(), cfg.Table)
	case config.SinkNATS:
		s, err = DialNATS(cfg.URL, cfg.Prefix, logger)
	case config.SinkRedis:
		s, err = DialRedis(ctx, cfg.URL, cfg.Password.Value(), cfg.Prefix)
	default:
		err = fmt.Errorf("unknown sink kind %q", cfg.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s sink: %w", cfg.Kind, err)
	}
	logger.Info("sink ready")
	return s, nil
}

// subjectToken turns a channel key into a single NATS subject token or Redis
// key segment.
func subjectToken(key string) string {
	if key == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r', ':':
			return '_'
		}
		return r
	}, key)
}
