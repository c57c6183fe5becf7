package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/rickgao/agentlink/internal/connection"
	"github.com/rickgao/agentlink/internal/eventbus"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var noSubscribe bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream agent status and link events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log, os.Stderr)

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			client := newAgentClient(cfg, !noSubscribe, logger)
			defer client.Disconnect()

			events := make(chan eventbus.Event, 64)
			for _, name := range []string{
				eventbus.EventConnected,
				eventbus.EventDisconnected,
				eventbus.EventConnectionError,
				eventbus.EventStatus,
				eventbus.EventTargetUpdated,
				eventbus.EventError,
			} {
				ch, sub := client.Events().Channel(name, 16)
				defer client.Off(sub)
				go forward(ctx, ch, events)
			}

			// A failed first dial is retried by the reconnect policy.
			if err := client.Connect(ctx); err != nil {
				logger.Warn("initial connect failed", "error", err)
			}

			out := cmd.OutOrStdout()
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-events:
					printEvent(out, ev)
					if ce, ok := ev.Data.(eventbus.ConnectionError); ok && ce.Exhausted {
						return connection.ErrReconnectExhausted
					}
				}
			}
		},
	}

	cmd.Flags().BoolVar(&noSubscribe, "no-subscribe", false, "do not subscribe; only show events")
	return cmd
}

// forward copies events from one bus channel into the shared stream.
func forward(ctx context.Context, in <-chan eventbus.Event, out chan<- eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-in:
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}
