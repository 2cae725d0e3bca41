package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/CodeTease/custom404/pkg/logger"
	"github.com/CodeTease/custom404/pkg/metrics"
	"github.com/CodeTease/custom404/pkg/telemetry"
)

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve not-found pages over HTTP",
		Long: `Starts the not-found page server.

Every unknown path renders a fresh page. Page options are read from
OPTIONS_PATH and reloaded on SIGHUP.`,
		Example: `  # Serve on PORT (default 8080)
  custom404 serve

  # Serve on a custom port
  custom404 serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := newService(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			cfg := svc.config.Get()
			if port == "" {
				port = cfg.Port
			}

			if cfg.EnableMetrics {
				metrics.Init()
				slog.Info("Metrics enabled at /metrics")
			}
			if cfg.EnableTracing {
				shutdown, err := telemetry.InitTracer(ctx, telemetry.ServiceName)
				if err != nil {
					return err
				}
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := shutdown(shutdownCtx); err != nil {
						slog.Error("Tracer shutdown failed", "err", err)
					}
				}()
			}

			addr := ":" + port
			server := &http.Server{
				Addr:              addr,
				Handler:           svc.handler().Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				slog.Info("custom404 available", "addr", addr, "url", "http://localhost"+addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			})
			g.Go(func() error {
				hup := make(chan os.Signal, 1)
				signal.Notify(hup, syscall.SIGHUP)
				defer signal.Stop(hup)
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-hup:
						if err := svc.config.Reload(); err != nil {
							slog.Error("Reload failed, keeping previous configuration", "err", err)
							continue
						}
						cfg := svc.config.Get()
						logger.Init(cfg.Debug, cfg.LogFormat)
						slog.Info("Configuration reloaded")
					}
				}
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (default $PORT)")

	return cmd
}
