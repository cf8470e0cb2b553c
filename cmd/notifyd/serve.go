package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"
)

type ServeCmd struct {
	ShutdownTimeout time.Duration `name:"shutdown-timeout" default:"10s" help:"Grace period for in-flight requests."`
}

func (c *ServeCmd) Run(g *Globals, rt *runtime) error {
	ctx, stop := signal.NotifyContext(rt.ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := bootstrap(g, rt)
	if err != nil {
		return err
	}
	defer func() { _ = env.Close() }()

	srv := &http.Server{
		Addr:              env.config.HTTP.Addr,
		Handler:           env.app.Handler(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		env.logger.Info("notifyd listening",
			"addr", srv.Addr,
			"webhook_path", env.config.HTTP.WebhookPath,
			"metrics", env.config.Metrics.Enabled,
			"ledger", env.stores != nil,
			"dead_letters", env.queue != nil,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	env.logger.Info("notifyd shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
