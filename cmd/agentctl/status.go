package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/agentlink/internal/agent"
	"github.com/rickgao/agentlink/internal/eventbus"
)

var errNoReply = errors.New("no reply from agent before timeout")

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var (
		timeout time.Duration
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Request one status report from the agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			// One-shot commands do not retry.
			cfg.Agent.MaxReconnectAttempts = -1
			logger := newLogger(cfg.Log, os.Stderr)

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			client := newAgentClient(cfg, false, logger)
			statuses, _ := client.Events().Channel(eventbus.EventStatus, 1)
			errs, _ := client.Events().Channel(eventbus.EventError, 1)

			if err := client.Connect(ctx); err != nil {
				return err
			}
			defer client.Disconnect()

			if err := client.GetStatus(); err != nil {
				return err
			}

			if err := awaitReply(ctx, timeout, statuses, errs); err != nil {
				return err
			}

			snap := client.LatestStatus()
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			printStatus(out, snap)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "how long to wait for the reply")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}

// awaitReply waits for a frame on ok, or turns an error event into an error.
func awaitReply(ctx context.Context, timeout time.Duration, ok, errs <-chan eventbus.Event) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ok:
		return nil
	case ev := <-errs:
		e := ev.Data.(eventbus.Error)
		if e.Type == eventbus.ErrorTypeServer {
			return &agent.ServerError{Message: e.Message}
		}
		return fmt.Errorf("%s: %s", e.Type, e.Message)
	case <-timer.C:
		return errNoReply
	case <-ctx.Done():
		return ctx.Err()
	}
}
