package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/do"
	"github.com/tuhinmallick/grounded-sam-replicate/config"
	"github.com/tuhinmallick/grounded-sam-replicate/inject"
	"github.com/tuhinmallick/grounded-sam-replicate/janitor"
	"github.com/tuhinmallick/grounded-sam-replicate/log"
	"github.com/tuhinmallick/grounded-sam-replicate/models"
	"github.com/tuhinmallick/grounded-sam-replicate/profiler"
	"github.com/tuhinmallick/grounded-sam-replicate/server"
	"github.com/tuhinmallick/grounded-sam-replicate/weights"
)

// shutdownTimeout bounds how long in-flight predictions may drain.
const shutdownTimeout = 30 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to the YAML config file")
	flag.Parse()

	logger := log.New(os.Stderr)
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("loading config", "error", err)
		os.Exit(1)
	}
	logger = log.NewWithLevel(os.Stderr, log.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.NewContext(ctx, logger)

	injector := inject.Setup(ctx, cfg)
	code := 0
	if err := serve(ctx, injector, cfg); err != nil {
		logger.Error("server failed", "error", err)
		code = 1
	}
	if err := injector.Shutdown(); err != nil {
		logger.Warn("shutting down services", "error", err)
	}
	os.Exit(code)
}

func serve(ctx context.Context, injector *do.Injector, cfg *config.Config) error {
	logger := log.FromContextOrDiscard(ctx)

	if cfg.Weights.DownloadOnStart {
		d := do.MustInvoke[*weights.Downloader](injector)
		if _, err := d.Download(ctx, cfg.Models, cfg.Weights.Files); err != nil {
			return err
		}
	}

	m, err := do.Invoke[*models.Models](injector)
	if err != nil {
		return err
	}
	logger.Info("ready", "device", m.Device)

	if cfg.Janitor.Enabled {
		j, err := do.Invoke[*janitor.Janitor](injector)
		if err != nil {
			return err
		}
		if err := j.Start(ctx); err != nil {
			return err
		}
	}

	do.MustInvoke[*profiler.RuntimeProfiler](injector).Start(ctx)

	srv, err := do.Invoke[*server.Server](injector)
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, shutdownTimeout)
}
