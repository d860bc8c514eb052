package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/ipybridge/bridge"
	"github.com/tailored-agentic-units/ipybridge/surface"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve [-- connect args]",
		Short: "serve the bridge over connect RPC",
		Long: "Starts the " + surface.ServiceName + " RPC service. With connect args the\n" +
			"kernel is connected before the listener opens; otherwise clients call Connect.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.config.Surface.Addr = addr
			}
			return a.serve(cmd.Context(), args, len(args) > 0 || cmd.ArgsLenAtDash() >= 0)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func (a *app) serve(ctx context.Context, argv []string, connect bool) error {
	b := bridge.New(a.config, bridge.WithObserver(a.observer))

	loopCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Loop().Run(loopCtx)

	if connect {
		info, err := b.Connect(ctx, argv)
		if err != nil {
			return err
		}
		slog.Info("connected", "language", info.LanguageInfo.Name, "version", info.LanguageInfo.Version)
	}

	srv := surface.NewServer(b, a.config.Surface, a.observer)
	errc := make(chan error, 1)
	go func() {
		slog.Info("serving", "addr", srv.Addr, "service", surface.ServiceName)
		errc <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errc:
		serveErr = fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		serveErr = errors.Join(serveErr, err)
	}
	return errors.Join(serveErr, b.Close(shutdownCtx))
}
