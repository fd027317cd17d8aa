package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ride-dispatcher/internal/app"
	"ride-dispatcher/internal/config"
	"ride-dispatcher/internal/handlers"
	"ride-dispatcher/internal/logger"
	"ride-dispatcher/internal/server"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a config file (default: search ./data and .)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	lg, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer lg.Sync()

	if !cfg.EnvFileLoaded {
		lg.Debug("No .env file found, using environment and defaults")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer a.Close()

	h := &handlers.Handler{
		Dispatcher: a.Dispatcher,
		Runs:       a.Store.Runs(),
		Cache:      a.Cache,
		Health:     a,
		Log:        lg,
	}
	srv := server.New(server.Config{Addr: cfg.ServerAddr}, h, lg)

	actualAddr, err := srv.Start()
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	lg.Info("Dispatch API ready", zap.String("url", "http://"+actualAddr))

	<-ctx.Done()
	lg.Info("Received shutdown signal, starting graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("could not gracefully shutdown the server: %w", err)
	}

	lg.Info("Server stopped")
	return nil
}
