// Package monitor implements the runlogctl live dashboard and the control
// API client it polls.
package monitor

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fyrsmithlabs/runlogd/internal/channel"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
	maxChannelRows  = 8
)

// Model represents the BubbleTea dashboard model
type Model struct {
	client     *Client
	interval   time.Duration
	lastUpdate time.Time
	stats      Stats
	err        error
	quitting   bool

	backlogProgress progress.Model
	channelProgress progress.Model
}

// Stats aggregates one poll of /api/v1/channels.
type Stats struct {
	Channels  int
	Default   string
	Pending   int
	Capacity  int
	Persisted int64
	Lost      int64
	Dropped   int64

	// PersistRate is records per second since the previous poll.
	PersistRate float64

	// Rows holds the busiest channels, most pending first.
	Rows []channel.Snapshot

	PersistRateHistory []float64
	PendingHistory     []float64
}

// Fill returns pending/capacity across all channels.
func (s Stats) Fill() float64 {
	if s.Capacity == 0 {
		return 0
	}
	return min(float64(s.Pending)/float64(s.Capacity), 1.0)
}

// Lipgloss styles (k9s-inspired color scheme)
var (
	// Header style - bright cyan background, bold black text
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	// Section title style - bold bright cyan
	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	// Label style - dim cyan
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	// Value style - bright white
	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	// Dim style - for units and secondary info
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	// Status styles with unicode symbols
	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	// Container style - rounded border with dim gray
	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	// Footer style - bright keys on dim background
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	// Sparkline container
	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// NewModel creates a new dashboard model
func NewModel(client *Client, interval time.Duration) Model {
	return Model{
		client:   client,
		interval: interval,
		backlogProgress: progress.New(
			progress.WithGradient("#00ff00", "#ff0000"),
			progress.WithWidth(40),
		),
		channelProgress: progress.New(
			progress.WithGradient("#00ffff", "#ff00ff"),
			progress.WithWidth(16),
			progress.WithoutPercentage(),
		),
		stats: Stats{
			PersistRateHistory: make([]float64, 0, historySize),
			PendingHistory:     make([]float64, 0, historySize),
		},
	}
}

// Run starts the dashboard and blocks until the user quits or ctx ends.
func Run(ctx context.Context, client *Client, interval time.Duration) error {
	_, err := tea.NewProgram(NewModel(client, interval), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

// getStatusBadge returns the overall badge from backlog fill and losses.
func getStatusBadge(fill float64, lost int64) string {
	switch {
	case fill >= 0.9:
		return errorStyle.Render("✗ SATURATED")
	case fill >= 0.5 || lost > 0:
		return warningStyle.Render("⚠ WARN")
	}
	return healthyStyle.Render("✓ HEALTHY")
}

// getFillBadge returns a badge for one channel's queue fill.
func getFillBadge(fill float64) string {
	if fill < 0.5 {
		return healthyStyle.Render("[✓]")
	} else if fill < 0.9 {
		return warningStyle.Render("[⚠]")
	}
	return errorStyle.Render("[✗]")
}

// appendToHistory appends a value to history, maintaining max size
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// createSparkline creates a sparkline chart from historical data
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	spark.Draw()

	return sparklineStyle.Render(spark.View())
}

// Message types
type tickMsg time.Time
type errMsg error

type channelsMsg struct {
	at       time.Time
	dflt     string
	channels []channel.Snapshot
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		fetchChannels(m.client),
	)
}

// tick creates a tick command for auto-refresh
func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchChannels(client *Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		resp, err := client.Channels(ctx)
		if err != nil {
			return errMsg(err)
		}
		return channelsMsg{at: time.Now(), dflt: resp.Default, channels: resp.Channels}
	}
}

// aggregate folds a poll into stats, deriving the persist rate from the
// previous totals.
func aggregate(prev Stats, prevAt time.Time, msg channelsMsg) Stats {
	s := Stats{
		Channels:           len(msg.channels),
		Default:            msg.dflt,
		PersistRateHistory: prev.PersistRateHistory,
		PendingHistory:     prev.PendingHistory,
	}
	for _, c := range msg.channels {
		s.Pending += c.Pending
		s.Capacity += c.Capacity
		s.Persisted += c.Persisted
		s.Lost += c.Lost
		s.Dropped += c.Dropped
	}

	// Totals drop when channels are destroyed; treat that as no progress.
	if !prevAt.IsZero() && s.Persisted >= prev.Persisted {
		if elapsed := msg.at.Sub(prevAt).Seconds(); elapsed > 0 {
			s.PersistRate = float64(s.Persisted-prev.Persisted) / elapsed
		}
	}
	s.PersistRateHistory = appendToHistory(s.PersistRateHistory, s.PersistRate)
	s.PendingHistory = appendToHistory(s.PendingHistory, float64(s.Pending))

	rows := slices.Clone(msg.channels)
	slices.SortStableFunc(rows, func(a, b channel.Snapshot) int {
		return cmp.Compare(b.Pending, a.Pending)
	})
	if len(rows) > maxChannelRows {
		rows = rows[:maxChannelRows]
	}
	s.Rows = rows
	return s
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchChannels(m.client)
		}

	case tickMsg:
		return m, tea.Batch(
			tick(m.interval),
			fetchChannels(m.client),
		)

	case channelsMsg:
		m.stats = aggregate(m.stats, m.lastUpdate, msg)
		m.lastUpdate = msg.at
		m.err = nil
		return m, nil

	case errMsg:
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

// View renders the dashboard
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.renderError()
	}
	return m.renderDashboard()
}

func (m Model) renderError() string {
	header := headerStyle.Render("runlogd Monitor")

	var content string
	content += "\n"
	content += errorStyle.Render("⚠ Cannot reach runlogd") + "\n"
	content += "\n"
	content += dimStyle.Render("URL: ") + valueStyle.Render(m.client.BaseURL()) + "\n"
	content += dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n"
	content += "\n"
	content += dimStyle.Render("Check that runlogd is running and --server points at its HTTP port.") + "\n"
	content += "\n"
	content += footerStyle.Render("[q] quit  [r] retry") + "\n"

	return containerStyle.Render(header + "\n" + content)
}

func (m Model) renderDashboard() string {
	var content string
	s := m.stats

	lastUpdateStr := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdateStr = m.lastUpdate.Format("3:04:05 PM")
	}
	dflt := s.Default
	if dflt == "" {
		dflt = "none"
	}

	content += headerStyle.Render(" runlogd Monitor ") + "\n"
	content += fmt.Sprintf("%s   %s %s   %s %s   %s",
		getStatusBadge(s.Fill(), s.Lost),
		dimStyle.Render("Channels:"), valueStyle.Render(fmt.Sprintf("%d", s.Channels)),
		dimStyle.Render("Default:"), valueStyle.Render(dflt),
		dimStyle.Render(lastUpdateStr)) + "\n"

	content += "\n" + sectionStyle.Render("┃ Throughput") + "\n"
	content += labelStyle.Render("  Persisted: ") +
		valueStyle.Render(FormatRate(s.PersistRate)) +
		"   " + createSparkline(s.PersistRateHistory) + "\n"

	content += "\n" + sectionStyle.Render("┃ Backlog") + "\n"
	content += labelStyle.Render("  Pending: ") +
		valueStyle.Render(fmt.Sprintf("%s / %s", FormatCount(int64(s.Pending)), FormatCount(int64(s.Capacity)))) +
		"   " + createSparkline(s.PendingHistory) + "\n"
	content += labelStyle.Render("  Fill: ") +
		m.backlogProgress.ViewAs(s.Fill()) + "\n"

	content += "\n" + sectionStyle.Render("┃ Totals") + "\n"
	content += labelStyle.Render("  Persisted: ") + valueStyle.Render(FormatCount(s.Persisted)) +
		labelStyle.Render("  Lost: ") + lossStyle(s.Lost).Render(FormatCount(s.Lost)) +
		labelStyle.Render("  Dropped: ") + lossStyle(s.Dropped).Render(FormatCount(s.Dropped)) + "\n"

	content += "\n" + sectionStyle.Render("┃ Channels") + "\n"
	if len(s.Rows) == 0 {
		content += dimStyle.Render("  no live channels") + "\n"
	}
	for _, c := range s.Rows {
		fill := 0.0
		if c.Capacity > 0 {
			fill = float64(c.Pending) / float64(c.Capacity)
		}
		content += "  " + valueStyle.Render(truncate(c.Key, 20)) + " " +
			dimStyle.Render(fmt.Sprintf("%-8s", c.State)) + " " +
			m.channelProgress.ViewAs(min(fill, 1.0)) + " " + getFillBadge(fill) + " " +
			dimStyle.Render(fmt.Sprintf("run=%d suite=%d tc=%d", c.RunID, c.SuiteID, c.TestCaseID)) + "\n"
	}

	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))
	content += "\n" + footer

	return containerStyle.Render(content)
}

func lossStyle(n int64) lipgloss.Style {
	if n > 0 {
		return errorStyle
	}
	return valueStyle
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return fmt.Sprintf("%-*s", n, s)
	}
	return string([]rune(s)[:n-1]) + "…"
}

