package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/runlogd/internal/channel"
	api "github.com/fyrsmithlabs/runlogd/internal/http"
	"github.com/fyrsmithlabs/runlogd/internal/monitor"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// channelTable renders snapshots one row per channel; the default channel is
// marked with "*".
func channelTable(dflt string, snaps []channel.Snapshot) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("KEY", "STATE", "PENDING", "PERSISTED", "LOST", "DROPPED", "RUN", "SUITE", "TESTCASE")
	for _, s := range snaps {
		key := s.Key
		if key == dflt {
			key += " *"
		}
		t.Row(key, s.State.String(),
			fmt.Sprintf("%d/%d", s.Pending, s.Capacity),
			monitor.FormatCount(s.Persisted),
			strconv.FormatInt(s.Lost, 10),
			strconv.FormatInt(s.Dropped, 10),
			idOrDash(s.RunID), idOrDash(s.SuiteID), idOrDash(s.TestCaseID))
	}
	return t.String()
}

func idOrDash(id int64) string {
	if id == 0 {
		return "-"
	}
	return strconv.FormatInt(id, 10)
}

func printSnapshot(w io.Writer, s channel.Snapshot) {
	fmt.Fprintf(w, "Channel:      %s\n", s.Key)
	fmt.Fprintf(w, "State:        %s\n", s.State)
	fmt.Fprintf(w, "Pending:      %d / %d\n", s.Pending, s.Capacity)
	fmt.Fprintf(w, "Persisted:    %d\n", s.Persisted)
	fmt.Fprintf(w, "Lost:         %d\n", s.Lost)
	fmt.Fprintf(w, "Dropped:      %d\n", s.Dropped)
	fmt.Fprintf(w, "Run:          %s %s\n", idOrDash(s.RunID), s.RunName)
	if s.RunUserNote != "" {
		fmt.Fprintf(w, "Note:         %s\n", s.RunUserNote)
	}
	fmt.Fprintf(w, "Suite:        %s\n", idOrDash(s.SuiteID))
	fmt.Fprintf(w, "Test case:    %s (last %s)\n", idOrDash(s.TestCaseID), idOrDash(s.LastExecutedTestCaseID))
	fmt.Fprintf(w, "Time offset:  %s\n", time.Duration(s.TimeOffsetMillis)*time.Millisecond)
}

// keyArg returns the channel key argument, or "" for the default channel.
func keyArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status [key]",
		Short: "Show live channels",
		Long: `List every live channel, or show one channel in detail. Use "-" for the
default channel.

Examples:
  runlogctl status
  runlogctl status worker-1
  runlogctl status - --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				s, err := c.client().Channel(ctx, args[0])
				if err != nil {
					return err
				}
				return c.print(out, s, func() { printSnapshot(out, s) })
			}

			list, err := c.client().Channels(ctx)
			if err != nil {
				return err
			}
			return c.print(out, list, func() {
				if len(list.Channels) == 0 {
					fmt.Fprintln(out, "no live channels")
					return
				}
				fmt.Fprintln(out, channelTable(list.Default, list.Channels))
			})
		},
	}
}

func newTestCaseCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "testcase [key]",
		Short: "Query a channel's current test case",
		Long: `Ask a channel for its run, suite and test case. The answer reflects every
event submitted to the channel before the query.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			st, err := c.client().TestCase(ctx, keyArg(args))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return c.print(out, st, func() {
				state := "idle"
				if st.Running {
					state = "running"
				}
				fmt.Fprintf(out, "run=%s suite=%s testcase=%s last=%s %s\n",
					idOrDash(st.RunID), idOrDash(st.SuiteID), idOrDash(st.TestCaseID),
					idOrDash(st.LastExecutedTestCaseID), state)
			})
		},
	}
}

func newOffsetCmd(c *cli) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "offset [key]",
		Short: "Synchronize a channel's clock offset",
		Long: `Send a producer clock reading to a channel. Records persisted afterwards
are shifted by the difference between the server clock and the reading.

Examples:
  # Use this machine's clock
  runlogctl offset worker-1

  # Use an explicit reading
  runlogctl offset worker-1 --at 2026-03-14T09:26:53Z`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts := time.Now()
			if at != "" {
				var err error
				if ts, err = time.Parse(time.RFC3339Nano, at); err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
			}

			ctx, cancel := c.context(cmd)
			defer cancel()

			offset, err := c.client().TimeOffset(ctx, keyArg(args), ts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return c.print(out, api.TimeOffsetResponse{OffsetMillis: offset.Milliseconds()}, func() {
				fmt.Fprintf(out, "offset: %s\n", offset)
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "producer timestamp (RFC3339, default: now)")
	return cmd
}

func newDestroyCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "destroy <key>",
		Short: "Close one channel",
		Long: `Close a channel. Events already queued are still persisted; later events
for the key open a fresh channel.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			if err := c.client().Destroy(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "channel %s destroyed\n", args[0])
			return nil
		},
	}
}

func newShutdownCmd(c *cli) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Destroy every channel",
		Long: `Destroy every live channel. With --wait (the default) the call returns once
every queued event has been persisted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			resp, err := c.client().Shutdown(ctx, wait)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return c.print(out, resp, func() {
				fmt.Fprintf(out, "destroyed %d channel(s)\n", resp.Destroyed)
			})
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", true, "wait for queued events to be persisted")
	return cmd
}

func newMonitorCmd(c *cli) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Open the live channel dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return monitor.Run(cmd.Context(), c.client(), interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "refresh interval")
	return cmd
}
