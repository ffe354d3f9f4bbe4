package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/communibot/app"
	"github.com/m3rciful/communibot/core/buildinfo"
	"github.com/m3rciful/communibot/core/logger"
	coretelegram "github.com/m3rciful/communibot/core/telegram"
	"log/slog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("communibot: %v", err)
	}
}

func run() error {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := app.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	application, err := app.Bootstrap(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = application.Close()
		if err := logger.Shutdown(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	logger.L.With("component", "app").Info("starting",
		slog.String("event", "start"),
		slog.String("version", buildinfo.Version),
		slog.String("commit", buildinfo.Commit),
	)

	runOpts, err := application.TelegramRunOptions()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return application.Verify().Run(ctx)
	})
	g.Go(func() error {
		return coretelegram.Run(ctx, runOpts)
	})
	return g.Wait()
}
