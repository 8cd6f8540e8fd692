// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/hitline/internal/auth"
	"github.com/jason-s-yu/hitline/internal/cache"
	"github.com/jason-s-yu/hitline/internal/command"
	"github.com/jason-s-yu/hitline/internal/config"
	"github.com/jason-s-yu/hitline/internal/deck"
	"github.com/jason-s-yu/hitline/internal/game"
	"github.com/jason-s-yu/hitline/internal/handlers"
	"github.com/jason-s-yu/hitline/internal/telemetry"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.Warnf("unknown LOG_LEVEL %q, using info", cfg.LogLevel)
	}

	cards, err := deck.Load(cfg.DeckPath)
	if err != nil {
		logger.Fatalf("deck: %v", err)
	}
	logger.Infof("loaded %d cards from %s", len(cards), cfg.DeckPath)

	issuer, err := newIssuer(cfg)
	if err != nil {
		logger.Fatalf("session keys: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks := telemetry.Fanout{telemetry.Log{Logger: logger.WithField("component", "telemetry")}}
	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		sinks = append(sinks, cache.NewPublisher(rdb, cfg.TelemetryQueue, logger.WithField("component", "publisher")))
		logger.Infof("publishing telemetry to %s/%s", cfg.RedisAddr, cfg.TelemetryQueue)
	}

	hub := handlers.NewHub(logger)
	rt := game.NewRuntime(game.Options{
		TurnDuration:   cfg.TurnDuration,
		RevealDuration: cfg.RevealDuration,
		WinCardCount:   cfg.WinCardCount,
		MinPlayers:     cfg.MinPlayers,
		TerminationTTL: cfg.TerminationTTL,
		TeardownDelay:  cfg.TeardownDelay,
	}, cards, game.Deps{
		Transport: hub,
		Sessions:  issuer,
		Telemetry: sinks,
		Logger:    logger,
	})
	api := command.NewAPI(rt, game.NewTurnRuntime(rt))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(logger, hub, api, rt),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server exited: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("shutdown: %v", err)
	}
}

func newIssuer(cfg *config.Config) (*auth.Issuer, error) {
	if cfg.SessionPrivateKeyPath != "" {
		return auth.NewIssuerFromPath(cfg.SessionPrivateKeyPath, cfg.SessionPublicKeyPath)
	}
	return auth.NewIssuer()
}
