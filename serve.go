package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"fundholdings/cache"
	"fundholdings/config"
	"fundholdings/scraper"
	"fundholdings/server"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *options, env config.Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve holdings and the workbook over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.port, "port", env.Port, "Port to listen on")
	return cmd
}

func runServe(ctx context.Context, opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	loader, err := openLoader(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer loader.Close()

	pages := cache.New(opts.redisAddr, opts.cacheTTL)
	defer pages.Close()
	if err := pages.Ping(ctx); err != nil {
		logrus.WithError(err).Warn("Redis unreachable, pages will not be cached")
	}

	svc := scraper.NewService(loader, pages, rowPolicy(cfg, opts))
	if err := svc.Establish(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    ":" + opts.port,
		Handler: server.New(svc, cfg.Funds).Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logrus.Infof("Server is running on port %s", opts.port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
