// cmd/hubview/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hubview/hubview/internal/cache"
	"github.com/hubview/hubview/internal/config"
	"github.com/hubview/hubview/internal/gateway"
	"github.com/hubview/hubview/internal/github"
	"github.com/hubview/hubview/internal/http/routes"
	"github.com/hubview/hubview/internal/session"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration error")
	}

	sessions := session.NewStore([]byte(cfg.SessionKey), cfg.SessionCookieName, !cfg.IsDevelopment())
	store := cache.NewStore()
	upstream := github.New(
		github.WithBaseURL(cfg.GitHub.BaseURL),
		github.WithTimeout(cfg.GitHub.Timeout),
	)

	gate := gateway.NewGate(sessions, upstream, logger)
	gw := gateway.New(store, upstream, logger)

	s := routes.New(routes.ServerOptions{
		Sessions:      sessions,
		Gate:          gate,
		Gateway:       gw,
		Log:           logger,
		AllowedOrigin: cfg.AllowedOrigin,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("starting hubview")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}
