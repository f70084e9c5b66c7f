package main

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	api "github.com/fyrsmithlabs/runlogd/internal/http"
)

type submitFlags struct {
	thread    string
	kind      string
	severity  string
	logger    string
	name      string
	entityID  int64
	timestamp string
	attrs     map[string]string
}

func (f *submitFlags) request(message string) (api.SubmitRequest, error) {
	req := api.SubmitRequest{
		ThreadKey:  f.thread,
		Kind:       f.kind,
		Severity:   f.severity,
		Message:    message,
		Logger:     f.logger,
		Name:       f.name,
		EntityID:   f.entityID,
		Attributes: f.attrs,
	}
	if f.timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, f.timestamp)
		if err != nil {
			return req, fmt.Errorf("invalid --timestamp: %w", err)
		}
		req.Timestamp = &ts
	}
	return req, nil
}

func newSubmitCmd(c *cli) *cobra.Command {
	f := &submitFlags{}
	cmd := &cobra.Command{
		Use:   "submit [message...]",
		Short: "Submit a log event",
		Long: `Submit one event to runlogd. With "-" as the only argument every line
of stdin is submitted as a separate message, in order.

Examples:
  # Log a message on a thread
  runlogctl submit --thread worker-1 "connected to db"

  # Start a run and a test case
  runlogctl submit --thread worker-1 --kind start_run --name nightly --entity-id 42
  runlogctl submit --thread worker-1 --kind start_testcase --name login --entity-id 7

  # Pipe a log file
  cat build.log | runlogctl submit --thread ci -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			client := c.client()
			out := cmd.OutOrStdout()

			if len(args) == 1 && args[0] == "-" {
				n := 0
				scanner := bufio.NewScanner(cmd.InOrStdin())
				for scanner.Scan() {
					req, err := f.request(scanner.Text())
					if err != nil {
						return err
					}
					if _, err := client.Submit(ctx, req); err != nil {
						return fmt.Errorf("submitting line %d: %w", n+1, err)
					}
					n++
				}
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("failed to read from stdin: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "[runlogctl] submitted %d event(s)\n", n)
				return nil
			}

			req, err := f.request(strings.Join(args, " "))
			if err != nil {
				return err
			}
			resp, err := client.Submit(ctx, req)
			if err != nil {
				return err
			}
			return c.print(out, resp, func() {
				fmt.Fprintln(out, resp.ID)
			})
		},
	}

	cmd.Flags().StringVarP(&f.thread, "thread", "t", "", "producer thread key (default: main)")
	cmd.Flags().StringVarP(&f.kind, "kind", "k", "", "event kind (message, start_run, end_testcase, ...)")
	cmd.Flags().StringVarP(&f.severity, "severity", "s", "", "severity (debug, info, warn, error)")
	cmd.Flags().StringVar(&f.logger, "logger", "", "originating logger name")
	cmd.Flags().StringVar(&f.name, "name", "", "run, suite or test case name")
	cmd.Flags().Int64Var(&f.entityID, "entity-id", 0, "run, suite or test case ID")
	cmd.Flags().StringVar(&f.timestamp, "timestamp", "", "producer timestamp (RFC3339)")
	cmd.Flags().StringToStringVar(&f.attrs, "attr", nil, "event attribute key=value (repeatable)")
	return cmd
}

func newLineageCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "lineage <child> <parent>",
		Short: "Record that parent spawned child",
		Long: `Record a thread lineage entry. Events from child inherit the channel of
the nearest ancestor that already has one.

Examples:
  runlogctl lineage worker-1-pool-3 worker-1`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			added, err := c.client().RecordLineage(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return c.print(out, api.LineageResponse{Added: added}, func() {
				if added {
					fmt.Fprintf(out, "%s -> %s recorded\n", args[0], args[1])
				} else {
					fmt.Fprintf(out, "%s already has a parent\n", args[0])
				}
			})
		},
	}
}
