// Package inject - Wires the services every host binary is built from.
package inject

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/samber/do"
	"github.com/tuhinmallick/grounded-sam-replicate/compose"
	"github.com/tuhinmallick/grounded-sam-replicate/config"
	"github.com/tuhinmallick/grounded-sam-replicate/inference"
	"github.com/tuhinmallick/grounded-sam-replicate/janitor"
	"github.com/tuhinmallick/grounded-sam-replicate/log"
	"github.com/tuhinmallick/grounded-sam-replicate/models"
	"github.com/tuhinmallick/grounded-sam-replicate/models/model"
	"github.com/tuhinmallick/grounded-sam-replicate/profiler"
	"github.com/tuhinmallick/grounded-sam-replicate/server"
	"github.com/tuhinmallick/grounded-sam-replicate/store"
	"github.com/tuhinmallick/grounded-sam-replicate/weights"
)

// Setup registers every service lazily. Nothing is loaded until it is
// invoked, so binaries that never ask for the predictor never load models.
func Setup(ctx context.Context, cfg *config.Config) *do.Injector {
	log := log.FromContextOrDiscard(ctx)

	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			log.Debug(fmt.Sprintf(format, args...))
		},
	})
	do.ProvideValue[*config.Config](injector, cfg)
	do.ProvideValue[*http.Client](injector, http.DefaultClient)

	do.Provide[aws.Config](injector, func(i *do.Injector) (aws.Config, error) {
		return awsconfig.LoadDefaultConfig(ctx)
	})
	do.Provide[*s3.Client](injector, func(i *do.Injector) (*s3.Client, error) {
		return s3.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})

	do.Provide[*profiler.RuntimeProfiler](injector, func(i *do.Injector) (*profiler.RuntimeProfiler, error) {
		return profiler.NewRuntimeProfiler(profiler.ProfilingOptions{}), nil
	})
	do.Provide[*models.Models](injector, func(i *do.Injector) (*models.Models, error) {
		return models.Load(ctx, do.MustInvoke[*config.Config](i).Models)
	})
	do.Provide[model.Composer](injector, func(i *do.Injector) (model.Composer, error) {
		m := do.MustInvoke[*models.Models](i)
		return compose.New(m.Detector, m.Segmenter), nil
	})
	do.Provide[store.Writer](injector, NewWriter)
	do.Provide[*inference.Predictor](injector, NewPredictor)
	do.Provide[*janitor.Janitor](injector, func(i *do.Injector) (*janitor.Janitor, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return janitor.New(cfg.Output.Root, cfg.Janitor.Schedule, cfg.Janitor.MaxAge)
	})
	do.Provide[*weights.Downloader](injector, func(i *do.Injector) (*weights.Downloader, error) {
		return &weights.Downloader{Client: do.MustInvoke[*http.Client](i)}, nil
	})
	do.Provide[*server.Server](injector, func(i *do.Injector) (*server.Server, error) {
		cfg := do.MustInvoke[*config.Config](i)
		m := do.MustInvoke[*models.Models](i)
		return server.New(do.MustInvoke[*inference.Predictor](i), server.Options{
			Addr:   cfg.Server.Addr,
			Device: string(m.Device),
			Stats:  do.MustInvoke[*profiler.RuntimeProfiler](i),
		}), nil
	})

	return injector
}

// NewWriter stores outputs under output.root and mirrors them to the S3
// bucket when one is configured, or else to mirror_dir.
func NewWriter(i *do.Injector) (store.Writer, error) {
	out := do.MustInvoke[*config.Config](i).Output

	var mirror store.Uploader
	switch {
	case out.Bucket != "":
		client, err := do.Invoke[*s3.Client](i)
		if err != nil {
			return nil, err
		}
		mirror = store.NewS3Uploader(client, out.Bucket, out.Prefix)
	case out.MirrorDir != "":
		mirror = &store.FileUploader{Root: out.MirrorDir}
	}
	return store.NewFileStore(out.Root, mirror), nil
}

// NewPredictor builds the predictor from the composer, the writer and the
// output options.
func NewPredictor(i *do.Injector) (*inference.Predictor, error) {
	out := do.MustInvoke[*config.Config](i).Output
	return inference.NewPredictorBuilder().
		WithComposer(do.MustInvoke[model.Composer](i)).
		WithWriter(do.MustInvoke[store.Writer](i)).
		WithTimer(do.MustInvoke[*profiler.RuntimeProfiler](i)).
		WithOptions(inference.Options{
			CleanupOnFailure:   out.CleanupOnFailure,
			SerializeInference: out.SerializeInference,
		}).
		Build()
}
