package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/indentrecon/indentrecon/internal/server"
)

const shutdownTimeout = 5 * time.Second

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the reconciliation HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				cfg := server.Config{
					DB:      a.db,
					Catalog: a.catalog,
					Indents: a.indents,
					Issues:  a.issues,
					Sweeps:  a.sweeps,
					Version: Version,
					Logger:  a.logger,
				}
				if a.cfg.Metrics.Enabled {
					cfg.Metrics = a.metrics
					cfg.MetricsPath = a.cfg.Metrics.Path
				}

				handler, err := server.New(cfg)
				if err != nil {
					return fmt.Errorf("building API: %w", err)
				}

				srv := &http.Server{
					Addr:              a.cfg.HTTP.Addr,
					Handler:           handler,
					ReadTimeout:       a.cfg.HTTP.ReadTimeout(),
					ReadHeaderTimeout: a.cfg.HTTP.ReadTimeout(),
				}
				return listenAndServe(ctx, srv)
			})
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides config)")
	bindFlag(cmd, "http.addr", "addr")
	return cmd
}

// listenAndServe runs srv until ctx is cancelled, then shuts it down.
func listenAndServe(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving API", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	slog.Info("shutting down API")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down API: %w", err)
	}
	return nil
}
