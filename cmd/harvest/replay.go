package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/harvest/internal/replay"
)

var replayCmd = &cobra.Command{
	Use:     "replay <capture.jsonl>",
	Short:   "Serve a recorded capture as a local stream endpoint",
	GroupID: "dev",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		addr, _ := cmd.Flags().GetString("addr")
		interval, _ := cmd.Flags().GetDuration("interval")
		keepalive, _ := cmd.Flags().GetDuration("keepalive")
		token, _ := cmd.Flags().GetString("token")
		loop, _ := cmd.Flags().GetBool("loop")

		lines, err := replay.LoadFile(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		handler := replay.NewHandler(lines, replay.Options{
			Interval:  interval,
			Keepalive: keepalive,
			Token:     token,
			Loop:      loop,
		}, logger)

		mux := http.NewServeMux()
		mux.Handle("/", handler)
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			// Streams end when the server shuts down.
			BaseContext: func(net.Listener) context.Context { return ctx },
		}

		errc := make(chan error, 1)
		go func() {
			logger.Info("replay server listening", "addr", addr, "lines", len(lines), "loop", loop)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
			close(errc)
		}()

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}
		logger.Info("shutting down replay server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("replay server shutdown error", "err", err)
		}
		return nil
	},
}

func init() {
	f := replayCmd.Flags()
	f.String("addr", "127.0.0.1:8089", "listen address")
	f.Duration("interval", 50*time.Millisecond, "pause between lines")
	f.Duration("keepalive", replay.DefaultKeepaliveInterval, "keep-alive interval once the capture is exhausted")
	f.String("token", "", "require this bearer token")
	f.Bool("loop", false, "restart the capture when it ends")
}
