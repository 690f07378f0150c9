package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/harvest/internal/events"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Follow run lifecycle events on NATS",
	GroupID: "inspect",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.NATSURL == "" {
			return errors.New("no event bus configured (set HARVEST_NATS_URL or nats_url)")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		sub, err := events.NewNATSSubscriber(cfg.NATSURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("NATS disconnected", "err", err)
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
			}),
		)
		if err != nil {
			return err
		}
		defer sub.Close()

		ch, cancel, err := sub.Subscribe(events.TopicAll)
		if err != nil {
			return err
		}
		defer cancel()

		out := cmd.OutOrStdout()
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-ch:
				if !ok {
					return nil
				}
				if jsonOutput {
					fmt.Fprintf(out, "%s\n", msg.Data)
					continue
				}
				line, err := events.Describe(msg)
				if err != nil {
					logger.Warn("undecodable event", "topic", msg.Topic, "err", err)
					continue
				}
				fmt.Fprintln(out, line)
			}
		}
	},
}
