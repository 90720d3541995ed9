package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/abhijiths101/flowsurface/internal/chartengine"
	"github.com/abhijiths101/flowsurface/internal/logger"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	logger.Init("chartd", logLevel())

	cfg := chartengine.LoadConfig()
	slog.Info("starting",
		slog.Int("sessions", len(cfg.Sessions)),
		slog.Int("indicators", len(cfg.Indicators)),
		slog.String("redis", cfg.RedisAddr))

	svc, err := chartengine.New(cfg)
	if err != nil {
		slog.Error("init failed", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutdown signal received")
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		slog.Error("fatal", slog.Any("err", err))
		os.Exit(1)
	}
}

func logLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
