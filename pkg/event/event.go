// Package event defines the log events producers hand to runlogd and the
// records channels persist.
package event

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zapcore"
)

// Kind classifies an event.
type Kind int

const (
	KindMessage Kind = iota
	KindInsertMessage
	KindStartRun
	KindEndRun
	KindUpdateRun
	KindStartSuite
	KindEndSuite
	KindStartTestCase
	KindEndTestCase
	KindCheckpoint
	KindControlQuery
)

var kindNames = map[Kind]string{
	KindMessage:       "message",
	KindInsertMessage: "insert_message",
	KindStartRun:      "start_run",
	KindEndRun:        "end_run",
	KindUpdateRun:     "update_run",
	KindStartSuite:    "start_suite",
	KindEndSuite:      "end_suite",
	KindStartTestCase: "start_testcase",
	KindEndTestCase:   "end_testcase",
	KindCheckpoint:    "checkpoint",
	KindControlQuery:  "control_query",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("unknown event kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind returns the Kind with the given name.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// Inheritable reports whether events of this kind may be routed to an
// ancestor thread's channel. Lifecycle events always stay on their own key.
func (k Kind) Inheritable() bool {
	return k == KindMessage || k == KindInsertMessage
}

// Boundary reports whether the kind changes run, suite or test-case state.
func (k Kind) Boundary() bool {
	switch k {
	case KindStartRun, KindEndRun, KindUpdateRun,
		KindStartSuite, KindEndSuite,
		KindStartTestCase, KindEndTestCase:
		return true
	}
	return false
}

// AttrUserNote carries the run user note on StartRun and UpdateRun events.
const AttrUserNote = "user_note"

// Event is one log occurrence. Treat it as immutable once built; New copies
// the attribute map it is given.
type Event struct {
	ID         uuid.UUID         `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	Severity   zapcore.Level     `json:"severity"`
	Message    string            `json:"message,omitempty"`
	ThreadKey  string            `json:"thread_key"`
	Kind       Kind              `json:"kind"`
	Logger     string            `json:"logger,omitempty"`
	Name       string            `json:"name,omitempty"`
	EntityID   int64             `json:"entity_id,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Option customizes New.
type Option func(*Event)

// WithTimestamp overrides the creation time.
func WithTimestamp(ts time.Time) Option {
	return func(e *Event) { e.Timestamp = ts }
}

// WithLogger records the producing logger's name.
func WithLogger(name string) Option {
	return func(e *Event) { e.Logger = name }
}

// WithName sets the run, suite or test-case name of a boundary event.
func WithName(name string) Option {
	return func(e *Event) { e.Name = name }
}

// WithEntityID sets the run, suite or test-case ID of a boundary event.
// Without it the registry assigns one.
func WithEntityID(id int64) Option {
	return func(e *Event) { e.EntityID = id }
}

// WithAttributes attaches a copy of attrs.
func WithAttributes(attrs map[string]string) Option {
	return func(e *Event) {
		if len(attrs) > 0 {
			e.Attributes = maps.Clone(attrs)
		}
	}
}

// New builds an event with a fresh ID and the current time.
func New(kind Kind, threadKey string, severity zapcore.Level, message string, opts ...Option) Event {
	e := Event{
		ID:        uuid.New(),
		Timestamp: time.Now(),
		Severity:  severity,
		Message:   message,
		ThreadKey: threadKey,
		Kind:      kind,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Attr returns an attribute value or "".
func (e Event) Attr(key string) string {
	return e.Attributes[key]
}

// Record is the persisted form of an Event: the event plus the run, suite
// and test-case identifiers current when the channel consumed it.
type Record struct {
	Event
	RunID      int64 `json:"run_id,omitempty"`
	SuiteID    int64 `json:"suite_id,omitempty"`
	TestCaseID int64 `json:"testcase_id,omitempty"`
	// CorrectedTime is Timestamp shifted by the channel's time offset.
	CorrectedTime time.Time `json:"corrected_timestamp"`
}
