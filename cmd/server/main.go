package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/joshyvodetaene/chatual-sub000/internal/bus"
	"github.com/joshyvodetaene/chatual-sub000/internal/config"
	"github.com/joshyvodetaene/chatual-sub000/internal/server"
	"github.com/joshyvodetaene/chatual-sub000/internal/storage/sqlite"
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadServerConfig()
	logger := newLogger(cfg.Env)

	store, err := sqlite.NewStore(cfg.Database)
	if err != nil {
		log.Fatalf("init storage: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var relay *bus.RedisBus
	if cfg.Redis.Addr != "" {
		relay, err = bus.NewRedisBus(ctx, cfg.Redis, logger)
		if err != nil {
			log.Fatalf("init redis relay: %v", err)
		}
		defer relay.Close()
	}

	app := server.NewApp(cfg, store, relay, logger)
	if err := app.Run(ctx); err != nil {
		log.Fatalf("server shutdown: %v", err)
	}
}

func newLogger(env string) *slog.Logger {
	if env == "prod" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
