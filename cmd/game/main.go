package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pefman/poke-duel/internal/api"
	"github.com/pefman/poke-duel/internal/config"
	"github.com/pefman/poke-duel/internal/engine"
	"github.com/pefman/poke-duel/internal/logging"
	"github.com/pefman/poke-duel/internal/server"
	"github.com/pefman/poke-duel/internal/stats"
)

// Build metadata injected via -ldflags at build time
var (
	buildVersion = "dev"
	buildTime    = ""
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		logging.Fatal("Missing or invalid configuration", err, logging.Fields{"config_path": os.Getenv(config.EnvConfigPath)})
	}

	client := api.NewClient(cfg.APIConfig())
	srv := server.New(client, stats.NewRecorder(), engine.Options{Timings: cfg.Timings})
	srv.SetLimits(server.Limits{MaxSessions: cfg.Server.MaxSessions, SessionTTL: cfg.Server.SessionTTL})
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logging.Info("Server started", logging.Fields{
		logging.FieldAddr: cfg.Server.Address,
		"version":         buildVersion,
		"built":           buildTime,
		"provider":        cfg.Provider.BaseURL,
	})
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Fatal("Failed to start server", err, nil)
	}
	logging.Info("Server stopped", nil)
}
