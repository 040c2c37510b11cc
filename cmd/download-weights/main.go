package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/samber/do"
	"github.com/tuhinmallick/grounded-sam-replicate/config"
	"github.com/tuhinmallick/grounded-sam-replicate/inject"
	"github.com/tuhinmallick/grounded-sam-replicate/log"
	"github.com/tuhinmallick/grounded-sam-replicate/weights"
)

func main() {
	var (
		configPath string
		parallel   int
	)
	flag.StringVar(&configPath, "config", "", "Path to the YAML config file listing weights.files")
	flag.IntVar(&parallel, "parallel", weights.DefaultParallelism, "Maximum simultaneous downloads")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = log.NewContext(ctx, log.NewWithLevel(os.Stderr, log.ParseLevel(cfg.LogLevel)))

	injector := inject.Setup(ctx, cfg)
	d := do.MustInvoke[*weights.Downloader](injector)
	d.Parallelism = parallel

	results, err := d.Download(ctx, cfg.Models, cfg.Weights.Files)
	for _, r := range results {
		state := "present"
		if r.Downloaded {
			state = fmt.Sprintf("downloaded %d bytes", r.Bytes)
		}
		fmt.Printf("%s\t%s\t%s\n", r.Name, r.Path, state)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
