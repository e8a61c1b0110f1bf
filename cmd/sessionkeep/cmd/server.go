package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jmcleod/sessionkeep/api"
	"github.com/jmcleod/sessionkeep/config"
	"github.com/jmcleod/sessionkeep/tokenstore/kv"
)

func newServerCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the ops HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts, os.Environ)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := newLogger(cfg, os.Stderr)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := openServices(ctx, cfg, logger, opts.auth)
			if err != nil {
				return err
			}
			defer func() {
				if err := svc.Close(); err != nil {
					logger.Error("closing stores failed", slog.String("error", err.Error()))
				}
			}()

			printBanner(cmd.OutOrStdout())
			return serve(ctx, cfg, svc, logger)
		},
	}
	cmd.Flags().String("host", config.DefaultServerHost, "Address to listen on")
	cmd.Flags().Uint16P("port", "p", config.DefaultServerPort, "Port to listen on")
	cmd.Flags().String("shared-backend", "", "Shared token store backend (memory|bbolt|postgres)")
	cmd.Flags().String("credentials-backend", "", "Credential store backend (memory|bbolt|postgres)")
	return cmd
}

func newRouter(svc *services, logger *slog.Logger) http.Handler {
	a := api.New(svc.vault, svc.factory, api.WithLogger(logger), api.WithManager(svc.manager))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(api.SecurityHeaders)

	r.Get("/health", api.Health)
	r.Mount("/api/v1", a.Router())
	return r
}

// serve runs the HTTP server and the shared store sweeper until ctx is
// cancelled or one of them fails.
func serve(ctx context.Context, cfg *config.Config, svc *services, logger *slog.Logger) error {
	address := net.JoinHostPort(cfg.Server.Host, strconv.FormatUint(uint64(cfg.Server.Port), 10))
	server := &http.Server{
		Addr:              address,
		Handler:           newRouter(svc, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.InfoContext(gCtx, "starting server", slog.String("address", address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.InfoContext(shutdownCtx, "shutting down")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if sweeper, ok := svc.backend.(kv.Sweeper); ok && cfg.Shared.SweepInterval > 0 {
		g.Go(func() error {
			runSweeper(gCtx, sweeper, cfg.Shared.SweepInterval, logger)
			return nil
		})
	}

	return g.Wait()
}

// runSweeper purges expired shared entries every interval until ctx is done.
func runSweeper(ctx context.Context, sweeper kv.Sweeper, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sweeper.Sweep(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.WarnContext(ctx, "sweeping shared token store failed", slog.String("error", err.Error()))
				}
				continue
			}
			if n > 0 {
				logger.DebugContext(ctx, "swept expired shared tokens", slog.Int("removed", n))
			}
		}
	}
}
