package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/samber/do"
	"github.com/tuhinmallick/grounded-sam-replicate/config"
	"github.com/tuhinmallick/grounded-sam-replicate/inference"
	"github.com/tuhinmallick/grounded-sam-replicate/inject"
	"github.com/tuhinmallick/grounded-sam-replicate/log"
)

func main() {
	var (
		configPath string
		req        inference.Request
	)
	flag.StringVar(&configPath, "config", "", "Path to the YAML config file")
	flag.StringVar(&req.Image, "image", "", "Input image path or http(s) URL")
	flag.StringVar(&req.MaskPrompt, "prompt", inference.DefaultMaskPrompt, "Prompt selecting the regions to keep")
	flag.StringVar(&req.NegativeMaskPrompt, "negative", "", "Prompt selecting regions removed from the selection")
	flag.IntVar(&req.AdjustmentFactor, "adjust", inference.DefaultAdjustmentFactor, "Erode (negative) or dilate (positive) the mask by this many pixels")
	flag.Parse()

	if err := run(configPath, req); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string, req inference.Request) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = log.NewContext(ctx, log.NewWithLevel(os.Stderr, log.ParseLevel(cfg.LogLevel)))

	injector := inject.Setup(ctx, cfg)
	defer func() { _ = injector.Shutdown() }()

	predictor, err := do.Invoke[*inference.Predictor](injector)
	if err != nil {
		return fmt.Errorf("loading models: %w", err)
	}

	for path, err := range predictor.Predict(ctx, req) {
		if err != nil {
			return err
		}
		fmt.Println(path)
	}
	return nil
}
