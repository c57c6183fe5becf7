package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/agentlink/internal/agent"
	"github.com/rickgao/agentlink/internal/eventbus"
	"github.com/rickgao/agentlink/internal/protocol"
)

func newSetTargetCmd(opts *rootOptions) *cobra.Command {
	var (
		at      string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "set-target LAT LON DEPTH",
		Short: "Send a new navigation target to the agent",
		Example: `  agentctl set-target 21.3 -157.8 50
  agentctl set-target 36.8 -122.0 150 --time 2024-06-01T08:00:00Z`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseTarget(args, at)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := agent.ValidateTarget(target); err != nil {
				var verr *agent.ValidationError
				if errors.As(err, &verr) {
					for _, p := range verr.Problems {
						red.Fprintln(out, p)
					}
				}
				return err
			}

			cfg, err := opts.load()
			if err != nil {
				return err
			}
			cfg.Agent.MaxReconnectAttempts = -1
			logger := newLogger(cfg.Log, os.Stderr)

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			client := newAgentClient(cfg, false, logger)
			echoes, _ := client.Events().Channel(eventbus.EventTargetUpdated, 1)
			errs, _ := client.Events().Channel(eventbus.EventError, 1)

			if err := client.Connect(ctx); err != nil {
				return err
			}
			defer client.Disconnect()

			if err := client.SetTarget(target); err != nil {
				return err
			}
			if err := awaitReply(ctx, timeout, echoes, errs); err != nil {
				return err
			}

			green.Fprint(out, "target set ")
			fmt.Fprintln(out, formatPosition(&target))
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "time", "", "optional ISO-8601 arrival time")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "how long to wait for the agent to confirm")
	return cmd
}

// parseTarget converts LAT LON DEPTH arguments into a position.
func parseTarget(args []string, at string) (protocol.Position, error) {
	names := [3]string{"latitude", "longitude", "depth"}
	var vals [3]float64
	for i, arg := range args {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return protocol.Position{}, fmt.Errorf("%s %q is not a number", names[i], arg)
		}
		vals[i] = v
	}

	return protocol.Position{Lat: vals[0], Lon: vals[1], Depth: vals[2], Time: at}, nil
}
