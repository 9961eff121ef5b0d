package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bcnelson/opnsense-access-control/internal/api"
	"github.com/bcnelson/opnsense-access-control/internal/app"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the state poller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, func(a *app.App) error {
				return serve(ctx, a)
			})
		},
	}
}

func serve(ctx context.Context, a *app.App) error {
	cfg := a.Config
	logger := a.Logger

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	router := api.NewRouter(a.Service, a.Metrics.Gatherer(), cfg.API.Token, logger)
	if cfg.API.Token == "" {
		logger.Warn("API_TOKEN not set, API authentication disabled")
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		a.Service.Start(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting access control server", "addr", cfg.Server.Addr(), "devices", a.Registry.Len())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			cancel()
			<-pollDone
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-pollDone

	logger.Info("server stopped")
	return nil
}
