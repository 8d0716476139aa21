package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rubberbot/internal/httpapi"
	"rubberbot/internal/metrics"
	"rubberbot/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat API over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		exporter := metrics.NewExporter(metrics.DefaultConfig())
		sessions := session.NewStore(cfg.Session.Capacity, cfg.Session.IdleTimeout())
		engine, err := buildEngine(ctx, cfg, sessions, exporter)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr: cfg.Server.Addr,
			Handler: httpapi.NewRouter(engine, httpapi.Options{
				RequestTimeout: cfg.Server.RequestTimeout(),
				AllowedOrigins: cfg.Server.AllowedOrigins,
				Metrics:        exporter.Handler(),
				Logger:         logger,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			sessions.Run(gctx, cfg.Session.SweepInterval())
			return nil
		})
		g.Go(func() error {
			logger.Info("rubberbot listening",
				zap.String("addr", cfg.Server.Addr),
				zap.String("variant", string(engine.Variant())))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			logger.Info("shutting down")
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}
