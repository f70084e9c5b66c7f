// Package lineage maps child thread keys to the thread that spawned them.
//
// The map is populated by whatever tracks thread creation in the producer
// (a test framework hook, an HTTP client) and read by the channel registry
// when it routes events in parallel mode. Reads never block.
package lineage

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrSelfLineage is returned when a key is recorded as its own parent.
var ErrSelfLineage = errors.New("thread cannot be its own parent")

// ErrEmptyKey is returned when either key is empty.
var ErrEmptyKey = errors.New("thread key cannot be empty")

// Map is a concurrent child→parent map. An entry is written at most once.
// The zero value is ready to use.
type Map struct {
	parents sync.Map // string -> string
	size    atomic.Int64
}

// New returns an empty Map.
func New() *Map {
	return &Map{}
}

// Record stores parent as the parent of child. Re-recording an existing
// child is a no-op and reports false.
func (m *Map) Record(child, parent string) (bool, error) {
	if child == "" || parent == "" {
		return false, ErrEmptyKey
	}
	if child == parent {
		return false, ErrSelfLineage
	}
	if _, loaded := m.parents.LoadOrStore(child, parent); loaded {
		return false, nil
	}
	m.size.Add(1)
	return true, nil
}

// Parent returns the recorded parent of child.
func (m *Map) Parent(child string) (string, bool) {
	v, ok := m.parents.Load(child)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Len returns the number of recorded children.
func (m *Map) Len() int {
	return int(m.size.Load())
}

// Ancestors returns up to max ancestors of key, nearest first. The walk
// stops early at a root, and reports overrun when the chain is longer than
// max (including cycles).
func (m *Map) Ancestors(key string, max int) (ancestors []string, overrun bool) {
	cur := key
	for i := 0; i < max; i++ {
		parent, ok := m.Parent(cur)
		if !ok {
			return ancestors, false
		}
		ancestors = append(ancestors, parent)
		cur = parent
	}
	_, more := m.Parent(cur)
	return ancestors, more
}
