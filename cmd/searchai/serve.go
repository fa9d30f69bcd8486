package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mng48301/searchai/internal/api"
	"github.com/mng48301/searchai/internal/jobs"
	"github.com/mng48301/searchai/internal/metrics"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, metrics endpoint and job janitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx, cfg, slog.Default())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(); cerr != nil {
					a.logger.Error("shutdown cleanup failed", "err", cerr)
				}
			}()
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	janitor, err := jobs.NewJanitor(a.tracker, a.cfg.Jobs.SweepSpec, a.logger)
	if err != nil {
		return err
	}
	metricsSrv, err := metrics.Start(a.cfg.HTTP.MetricsAddr, a.logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: a.cfg.HTTP.Addr,
		Handler: api.NewRouter(&api.Handlers{
			Tracker:  a.tracker,
			Searches: a.pipeline,
			Store:    a.store,
			Answers:  a.answers,
			Logger:   a.logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("api listening", "addr", srv.Addr, "metrics_addr", metricsSrv.Addr(), "storage", a.cfg.Storage.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return janitor.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		err := errors.Join(srv.Shutdown(shutdownCtx), metricsSrv.Stop(shutdownCtx))
		a.pipeline.Wait()
		a.logger.Info("server stopped")
		return err
	})
	return g.Wait()
}
