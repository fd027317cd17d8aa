// Command dispatch assigns a day's rides to drivers and prints the manifest as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"ride-dispatcher/internal/app"
	"ride-dispatcher/internal/config"
	"ride-dispatcher/internal/dispatch"
	"ride-dispatcher/internal/logger"
	"ride-dispatcher/internal/records"
)

const (
	exitFailure    = 1
	exitInputError = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("dispatch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	ridesPath := fs.String("rides", "", "path to the rides JSON file")
	driversPath := fs.String("drivers", "", "path to the drivers JSON file")
	configPath := fs.String("config", "", "path to a config file")
	save := fs.Bool("save", false, "record the run in history")
	outPath := fs.String("out", "", "write the manifest here instead of stdout")
	if err := fs.Parse(args); err != nil {
		return exitInputError
	}
	if *ridesPath == "" || *driversPath == "" {
		fmt.Fprintln(stderr, "dispatch: -rides and -drivers are required")
		fs.Usage()
		return exitInputError
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "dispatch: %v\n", err)
		return exitFailure
	}
	lg, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(stderr, "dispatch: %v\n", err)
		return exitFailure
	}
	defer lg.Sync()

	rides, err := records.LoadRides(*ridesPath)
	if err != nil {
		return reportError(stderr, lg, err)
	}
	drivers, err := records.LoadDrivers(*driversPath)
	if err != nil {
		return reportError(stderr, lg, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		return reportError(stderr, lg, err)
	}
	defer a.Close()

	res, err := a.Dispatcher.Dispatch(ctx, rides, drivers)
	if res == nil {
		return reportError(stderr, lg, err)
	}
	status := 0
	if err != nil {
		lg.Warn("Run stopped early, writing partial manifest", zap.Error(err))
		status = exitFailure
	}

	if *save && status == 0 {
		if err := a.Dispatcher.Save(ctx, res); err != nil {
			return reportError(stderr, lg, err)
		}
	}

	if err := writeManifest(*outPath, stdout, res); err != nil {
		return reportError(stderr, lg, err)
	}
	return status
}

func writeManifest(path string, stdout io.Writer, res *dispatch.Result) error {
	data, err := json.MarshalIndent(res.Manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func reportError(stderr io.Writer, lg *zap.Logger, err error) int {
	var ierr *records.InputError
	if errors.As(err, &ierr) {
		fmt.Fprintf(stderr, "dispatch: %v\n", ierr)
		return exitInputError
	}
	lg.Error("Dispatch failed", zap.Error(err))
	fmt.Fprintf(stderr, "dispatch: %v\n", err)
	return exitFailure
}
