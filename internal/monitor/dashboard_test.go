package monitor

import (
	"fmt"
	"testing"
	"time"

	"github.com/fyrsmithlabs/runlogd/internal/channel"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModel() Model {
	return NewModel(NewClient("http://localhost:9191"), 5*time.Second)
}

func TestNewModel(t *testing.T) {
	model := testModel()
	assert.Equal(t, "http://localhost:9191", model.client.BaseURL())
	assert.Equal(t, 5*time.Second, model.interval)
	assert.False(t, model.quitting)
}

func TestModel_Init(t *testing.T) {
	assert.NotNil(t, testModel().Init())
}

func TestModel_Update_Keys(t *testing.T) {
	tests := []struct {
		key      rune
		quitting bool
	}{
		{'q', true},
		{'r', false},
	}
	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			updated, cmd := testModel().Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{tt.key}})
			m := updated.(Model)
			assert.Equal(t, tt.quitting, m.quitting)
			assert.NotNil(t, cmd)
		})
	}
}

func TestModel_Update_TickMsg(t *testing.T) {
	updated, cmd := testModel().Update(tickMsg(time.Now()))
	assert.False(t, updated.(Model).quitting)
	assert.NotNil(t, cmd)
}

func TestModel_Update_ChannelsMsg(t *testing.T) {
	model := testModel()
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	updated, cmd := model.Update(channelsMsg{at: t0, dflt: "a", channels: []channel.Snapshot{
		{Key: "a", Pending: 2, Capacity: 10, Persisted: 100},
		{Key: "b", Pending: 8, Capacity: 10, Persisted: 50, Lost: 3},
	}})
	assert.Nil(t, cmd)
	m := updated.(Model)
	assert.Equal(t, 2, m.stats.Channels)
	assert.Equal(t, 10, m.stats.Pending)
	assert.Equal(t, 20, m.stats.Capacity)
	assert.Equal(t, int64(150), m.stats.Persisted)
	assert.Equal(t, int64(3), m.stats.Lost)
	assert.Zero(t, m.stats.PersistRate, "no rate on the first poll")
	require.Len(t, m.stats.Rows, 2)
	assert.Equal(t, "b", m.stats.Rows[0].Key, "busiest channel first")
	assert.InDelta(t, 0.5, m.stats.Fill(), 1e-9)

	updated, _ = m.Update(channelsMsg{at: t0.Add(2 * time.Second), dflt: "a", channels: []channel.Snapshot{
		{Key: "a", Capacity: 10, Persisted: 130},
		{Key: "b", Capacity: 10, Persisted: 60},
	}})
	m = updated.(Model)
	assert.InDelta(t, 20.0, m.stats.PersistRate, 1e-9)
	assert.Equal(t, []float64{0, 20}, m.stats.PersistRateHistory)
	assert.Equal(t, []float64{10, 0}, m.stats.PendingHistory)
	assert.Equal(t, t0.Add(2*time.Second), m.lastUpdate)
}

func TestAggregate_TruncatesRowsAndHistory(t *testing.T) {
	var snaps []channel.Snapshot
	for i := 0; i < maxChannelRows+4; i++ {
		snaps = append(snaps, channel.Snapshot{Key: fmt.Sprintf("c%d", i), Pending: i, Capacity: 100})
	}
	s := Stats{}
	at := time.Now()
	var prevAt time.Time
	for i := 0; i < historySize+5; i++ {
		s = aggregate(s, prevAt, channelsMsg{at: at, channels: snaps})
		prevAt = at
		at = at.Add(time.Second)
	}
	assert.Len(t, s.Rows, maxChannelRows)
	assert.Equal(t, fmt.Sprintf("c%d", maxChannelRows+3), s.Rows[0].Key)
	assert.Len(t, s.PendingHistory, historySize)
}

func TestModel_Update_ErrMsg(t *testing.T) {
	updated, cmd := testModel().Update(errMsg(fmt.Errorf("connection refused")))
	m := updated.(Model)
	require.Error(t, m.err)
	assert.Contains(t, m.err.Error(), "connection refused")
	assert.Nil(t, cmd)
}

func TestModel_View_WithStats(t *testing.T) {
	model := testModel()
	updated, _ := model.Update(channelsMsg{
		at:   time.Date(2024, 1, 1, 12, 34, 56, 0, time.UTC),
		dflt: "main",
		channels: []channel.Snapshot{
			{Key: "main", State: channel.StateOpen, Pending: 3, Capacity: 64, Persisted: 12345, RunID: 7},
		},
	})
	view := updated.View()

	assert.Contains(t, view, "runlogd Monitor")
	assert.Contains(t, view, "12:34:56")
	assert.Contains(t, view, "Throughput")
	assert.Contains(t, view, "3 / 64")
	assert.Contains(t, view, "12.3k")
	assert.Contains(t, view, "run=7")
	assert.Contains(t, view, "[q]")
	assert.Contains(t, view, "[r]")
}

func TestModel_View_WithError(t *testing.T) {
	model := testModel()
	model.err = fmt.Errorf("connection refused")

	view := model.View()
	assert.Contains(t, view, "Cannot reach runlogd")
	assert.Contains(t, view, "connection refused")
	assert.Contains(t, view, "http://localhost:9191")
}

func TestModel_View_NoData(t *testing.T) {
	view := testModel().View()
	assert.Contains(t, view, "runlogd Monitor")
	assert.Contains(t, view, "no live channels")
}

func TestModel_View_Quitting(t *testing.T) {
	model := testModel()
	model.quitting = true
	assert.Empty(t, model.View())
}

func TestGetStatusBadge(t *testing.T) {
	assert.Contains(t, getStatusBadge(0.1, 0), "HEALTHY")
	assert.Contains(t, getStatusBadge(0.1, 1), "WARN")
	assert.Contains(t, getStatusBadge(0.6, 0), "WARN")
	assert.Contains(t, getStatusBadge(0.95, 0), "SATURATED")
}
