package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/runlogd/pkg/event"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects driver, placeholders and column types.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) driver() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (d Dialect) timeType() string {
	if d == DialectPostgres {
		return "TIMESTAMPTZ"
	}
	return "TEXT"
}

var columns = []string{
	"event_id", "channel_key", "thread_key", "kind", "severity", "message", "logger", "name",
	"run_id", "suite_id", "testcase_id", "event_time", "corrected_time", "attributes",
}

// SQLSink inserts one row per record, one transaction per batch.
type SQLSink struct {
	db      *sql.DB
	dialect Dialect
	table   string
	insert  string
	ownsDB  bool
}

// OpenSQL opens dsn with the dialect's driver and returns a migrated sink
// that closes the database on Close.
func OpenSQL(ctx context.Context, dialect Dialect, dsn, table string) (*SQLSink, error) {
	db, err := sql.Open(dialect.driver(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == DialectSQLite {
		// A single connection serializes writers and keeps :memory: databases shared.
		db.SetMaxOpenConns(1)
	}
	s, err := NewSQLSink(ctx, db, dialect, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// NewSQLSink creates the table if needed. The caller keeps ownership of db.
func NewSQLSink(ctx context.Context, db *sql.DB, dialect Dialect, table string) (*SQLSink, error) {
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	s := &SQLSink{db: db, dialect: dialect, table: table}

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = dialect.placeholder(i + 1)
	}
	s.insert = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate %s: %w", table, err)
	}
	return s, nil
}

func (s *SQLSink) migrate(ctx context.Context) error {
	ts := s.dialect.timeType()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	event_id TEXT PRIMARY KEY,
	channel_key TEXT NOT NULL,
	thread_key TEXT NOT NULL,
	kind TEXT NOT NULL,
	severity TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	logger TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	run_id BIGINT NOT NULL DEFAULT 0,
	suite_id BIGINT NOT NULL DEFAULT 0,
	testcase_id BIGINT NOT NULL DEFAULT 0,
	event_time %s NOT NULL,
	corrected_time %s NOT NULL,
	attributes TEXT NOT NULL DEFAULT '{}'
)`, s.table, ts, ts),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_run_idx ON %s (run_id, testcase_id)", s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// PersistBatch inserts records in a single transaction. Either the whole
// batch is stored or none of it.
func (s *SQLSink) PersistBatch(ctx context.Context, channelKey string, records []event.Record) (err error) {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, s.insert)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		args, err := s.args(channelKey, r)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert event %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (s *SQLSink) args(channelKey string, r event.Record) ([]any, error) {
	attrs := []byte("{}")
	if len(r.Attributes) > 0 {
		var err error
		if attrs, err = json.Marshal(r.Attributes); err != nil {
			return nil, fmt.Errorf("failed to encode attributes of event %s: %w", r.ID, err)
		}
	}
	return []any{
		r.ID.String(), channelKey, r.ThreadKey, r.Kind.String(), r.Severity.String(),
		r.Message, r.Logger, r.Name,
		r.RunID, r.SuiteID, r.TestCaseID,
		s.timeArg(r.Timestamp), s.timeArg(r.CorrectedTime),
		string(attrs),
	}, nil
}

func (s *SQLSink) timeArg(t time.Time) any {
	if s.dialect == DialectPostgres {
		return t.UTC()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// DB returns the underlying database handle.
func (s *SQLSink) DB() *sql.DB {
	return s.db
}

// Close closes the database if the sink opened it.
func (s *SQLSink) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
