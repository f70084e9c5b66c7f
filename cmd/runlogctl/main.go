// Package main implements runlogctl, the command-line client for the runlogd
// control API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/runlogd/internal/monitor"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli holds the flags shared by every subcommand.
type cli struct {
	serverURL string
	timeout   time.Duration
	asJSON    bool
}

func (c *cli) client() *monitor.Client {
	return monitor.NewClient(c.serverURL)
}

func (c *cli) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), c.timeout)
}

// print writes v as indented JSON when --json is set, otherwise calls text.
func (c *cli) print(w io.Writer, v any, text func()) error {
	if !c.asJSON {
		text()
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "runlogctl",
		Short: "CLI for runlogd operations",
		Long: `runlogctl is a command-line interface for the runlogd daemon.
It submits events, records thread lineage, inspects channels and drives shutdown.`,
		Version:       version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.serverURL, "server", "http://localhost:9191", "runlogd server URL")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 30*time.Second, "request timeout")
	root.PersistentFlags().BoolVar(&c.asJSON, "json", false, "print responses as JSON")

	root.AddCommand(
		newHealthCmd(c),
		newSubmitCmd(c),
		newLineageCmd(c),
		newStatusCmd(c),
		newTestCaseCmd(c),
		newOffsetCmd(c),
		newDestroyCmd(c),
		newShutdownCmd(c),
		newMonitorCmd(c),
	)
	return root
}

func newHealthCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check runlogd server health",
		Long: `Check the health status of the runlogd server.

Examples:
  # Check health
  runlogctl health

  # Check health on a different server
  runlogctl health --server http://localhost:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			h, err := c.client().Health(ctx)
			if err != nil {
				return fmt.Errorf("failed to reach %s: %w", c.serverURL, err)
			}
			out := cmd.OutOrStdout()
			return c.print(out, h, func() {
				fmt.Fprintf(out, "Server Status: %s\n", h.Status)
				fmt.Fprintf(out, "Server URL: %s\n", c.serverURL)
				fmt.Fprintf(out, "Channels: %d\n", h.Channels)
				if h.Telemetry != nil && h.Telemetry.Degraded {
					fmt.Fprintln(out, "Telemetry: degraded")
				}
			})
		},
	}
}
