package channel

import (
	"fmt"
	"strconv"
	"strings"
)

// State is a channel's lifecycle position. Transitions only move forward.
type State int32

const (
	// StateOpen accepts events.
	StateOpen State = iota
	// StateClosing rejects events while the consumer drains the queue.
	StateClosing
	// StateDrained means the consumer has persisted everything and exited.
	StateDrained
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateDrained:
		return "drained"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	switch v := string(text); v {
	case "open":
		*s = StateOpen
	case "closing":
		*s = StateClosing
	case "drained":
		*s = StateDrained
	default:
		n, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(v, "State("), ")"), 10, 32)
		if err != nil {
			return fmt.Errorf("unknown channel state %q", v)
		}
		*s = State(n)
	}
	return nil
}

// TestCaseState answers a CurrentTestCaseState query.
type TestCaseState struct {
	RunID                  int64 `json:"run_id"`
	SuiteID                int64 `json:"suite_id"`
	TestCaseID             int64 `json:"testcase_id"`
	LastExecutedTestCaseID int64 `json:"last_executed_testcase_id"`
	Running                bool  `json:"running"`
}

// Snapshot is a point-in-time view of a channel for status endpoints.
type Snapshot struct {
	Key                    string `json:"key"`
	State                  State  `json:"state"`
	Pending                int    `json:"pending"`
	Capacity               int    `json:"capacity"`
	Dropped                int64  `json:"dropped"`
	Lost                   int64  `json:"lost"`
	Persisted              int64  `json:"persisted"`
	RunID                  int64  `json:"run_id"`
	RunName                string `json:"run_name,omitempty"`
	RunUserNote            string `json:"run_user_note,omitempty"`
	SuiteID                int64  `json:"suite_id"`
	TestCaseID             int64  `json:"testcase_id"`
	LastExecutedTestCaseID int64  `json:"last_executed_testcase_id"`
	TimeOffsetMillis       int64  `json:"time_offset_ms"`
}
