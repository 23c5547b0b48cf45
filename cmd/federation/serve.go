package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"registry-federation/internal/api"
	"registry-federation/internal/ttl"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the federation HTTP service",
		Long: `Serve the additions, sync and peer admin APIs, answer peer requests on the
additions endpoint, and expose /metrics and /health.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var opts []api.Option
			if a.memory != nil {
				opts = append(opts, api.WithCacheView(a.memory))
				cleaner := ttl.NewCleaner(a.memory, cfg.Cache.SweepInterval.Duration, a.logger, a.metrics)
				go cleaner.Start(ctx)
			}

			handler := api.NewHandler(a.engine, a.registry, a.baseline, a.metrics, a.logs, a.logger, opts...)
			server := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           api.RegisterRoutes(http.NewServeMux(), handler),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("server started", zap.String("addr", cfg.ListenAddr), zap.Int("peers", len(a.registry.Peers())))
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			a.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides listen_addr)")
	return cmd
}
