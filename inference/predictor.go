// Package inference - Runs one grounded segmentation per request and writes its outputs.
package inference

import (
	"context"
	"errors"
	"fmt"
	"image"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tuhinmallick/grounded-sam-replicate/log"
	"github.com/tuhinmallick/grounded-sam-replicate/models/model"
	"github.com/tuhinmallick/grounded-sam-replicate/profiler"
	"github.com/tuhinmallick/grounded-sam-replicate/store"
	"github.com/tuhinmallick/grounded-sam-replicate/util"
)

// ErrInvalidRequest is returned for requests that cannot be attempted.
var ErrInvalidRequest = errors.New("invalid prediction request")

const (
	// DefaultMaskPrompt is bound by hosts when no prompt is given.
	DefaultMaskPrompt = "object"
	// DefaultAdjustmentFactor erodes the mask slightly.
	DefaultAdjustmentFactor = -15
)

// Request is a single prediction.
type Request struct {
	// Image is a local path or an http(s) URL.
	Image string `json:"image"`
	// MaskPrompt selects the regions to keep.
	MaskPrompt string `json:"mask_prompt"`
	// NegativeMaskPrompt selects regions removed from the selection. Empty
	// means none.
	NegativeMaskPrompt string `json:"negative_mask_prompt"`
	// AdjustmentFactor erodes (negative) or dilates (positive) the mask.
	AdjustmentFactor int `json:"adjustment_factor"`
}

// NewRequest returns a request for image with the default prompt and
// adjustment.
func NewRequest(image string) Request {
	return Request{
		Image:            image,
		MaskPrompt:       DefaultMaskPrompt,
		AdjustmentFactor: DefaultAdjustmentFactor,
	}
}

// Validate rejects requests without an image or a mask prompt.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Image) == "" {
		return fmt.Errorf("%w: image is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.MaskPrompt) == "" {
		return fmt.Errorf("%w: mask_prompt is required", ErrInvalidRequest)
	}
	return nil
}

// Options tune the predictor.
type Options struct {
	// CleanupOnFailure removes the request directory when a prediction fails
	// after it was created.
	CleanupOnFailure bool
	// SerializeInference allows at most one composition at a time.
	SerializeInference bool
}

// ImageLoader resolves an image reference.
type ImageLoader func(ctx context.Context, ref string) (image.Image, error)

// Predictor runs predictions against shared, already loaded models.
type Predictor struct {
	composer model.Composer
	writer   store.Writer
	load     ImageLoader
	timer    profiler.Timer
	opts     Options

	// mu serializes compositions when opts.SerializeInference is set.
	mu sync.Mutex
}

// PredictorBuilder helps build a predictor with a fluent API.
type PredictorBuilder struct {
	composer model.Composer
	writer   store.Writer
	load     ImageLoader
	timer    profiler.Timer
	opts     Options
}

// NewPredictorBuilder creates a new predictor builder.
//
// Returns:
//   - *PredictorBuilder: The predictor builder.
func NewPredictorBuilder() *PredictorBuilder {
	return &PredictorBuilder{load: util.LoadImage}
}

// WithComposer sets the composition routine.
func (b *PredictorBuilder) WithComposer(c model.Composer) *PredictorBuilder {
	b.composer = c
	return b
}

// WithWriter sets the output store.
func (b *PredictorBuilder) WithWriter(w store.Writer) *PredictorBuilder {
	b.writer = w
	return b
}

// WithImageLoader replaces util.LoadImage.
func (b *PredictorBuilder) WithImageLoader(l ImageLoader) *PredictorBuilder {
	b.load = l
	return b
}

// WithTimer records the duration of every stage.
func (b *PredictorBuilder) WithTimer(t profiler.Timer) *PredictorBuilder {
	b.timer = t
	return b
}

// WithOptions sets the predictor options.
func (b *PredictorBuilder) WithOptions(opts Options) *PredictorBuilder {
	b.opts = opts
	return b
}

// Build builds the predictor.
//
// Returns:
//   - *Predictor: The predictor.
//   - error: The error if any.
func (b *PredictorBuilder) Build() (*Predictor, error) {
	if b.composer == nil {
		return nil, errors.New("composer not configured")
	}
	if b.writer == nil {
		return nil, errors.New("writer not configured")
	}
	if b.load == nil {
		return nil, errors.New("image loader not configured")
	}
	return &Predictor{
		composer: b.composer,
		writer:   b.writer,
		load:     b.load,
		timer:    b.timer,
		opts:     b.opts,
	}, nil
}

// MustBuild builds the predictor and panics if there is an error.
func (b *PredictorBuilder) MustBuild() *Predictor {
	p, err := b.Build()
	if err != nil {
		panic(err)
	}
	return p
}

// Predict runs req under a fresh random id. See PredictID.
func (p *Predictor) Predict(ctx context.Context, req Request) iter.Seq2[string, error] {
	return p.PredictID(ctx, uuid.NewString(), req)
}

// PredictID runs req and yields the path of every output as soon as it is on
// disk, in the order of model.OutputNames.
//
// Each iteration is one attempt: the image is loaded, composed once, and the
// outputs are written under <root>/<id>. A failure yields ("", err) once and
// ends the sequence, so a consumer sees a prefix of the paths followed by the
// error. Outputs are written lazily; stopping early leaves the remaining
// outputs unwritten.
//
// Arguments:
//   - ctx: Carries the logger; checked between stages and writes.
//   - id: The request id naming the output directory.
//   - req: The prediction request.
//
// Returns:
//   - iter.Seq2[string, error]: The output paths.
func (p *Predictor) PredictID(ctx context.Context, id string, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		logger := log.FromContextOrDiscard(ctx).With("request_id", id)
		ctx := log.NewContext(ctx, logger)
		start := time.Now()
		finished := p.stage("predict")

		prepared := false
		fail := func(stage string, err error) {
			logger.Error("prediction failed", "stage", stage, "error", err)
			if prepared && p.opts.CleanupOnFailure {
				if rmErr := p.writer.Remove(ctx, id); rmErr != nil {
					logger.Warn("removing partial outputs", "error", rmErr)
				}
			}
			yield("", err)
		}

		if err := req.Validate(); err != nil {
			fail("validate", err)
			return
		}
		logger.Info("running prediction",
			"image", req.Image,
			"mask_prompt", req.MaskPrompt,
			"negative_mask_prompt", req.NegativeMaskPrompt,
			"adjustment_factor", req.AdjustmentFactor)

		done := p.stage("load")
		img, err := p.load(ctx, req.Image)
		done()
		if err != nil {
			fail("load", fmt.Errorf("loading image: %w", err))
			return
		}

		done = p.stage("compose")
		composition, err := p.compose(ctx, model.CompositionInput{
			Image:              img,
			MaskPrompt:         req.MaskPrompt,
			NegativeMaskPrompt: req.NegativeMaskPrompt,
			AdjustmentFactor:   req.AdjustmentFactor,
		})
		done()
		if err != nil {
			fail("compose", err)
			return
		}
		if composition == nil {
			fail("compose", errors.New("composer returned no composition"))
			return
		}

		dir, err := p.writer.Prepare(ctx, id)
		if err != nil {
			fail("prepare", err)
			return
		}
		prepared = true

		for i, named := range composition.Named() {
			if err := ctx.Err(); err != nil {
				fail("write", err)
				return
			}
			if named.Image == nil {
				fail("write", fmt.Errorf("composition is missing %s", named.Name))
				return
			}
			done := p.stage("write")
			path, err := p.writer.Write(ctx, id, named.Name, named.Image)
			done()
			if err != nil {
				fail("write", err)
				return
			}
			logger.Info("wrote output", "name", named.Name, "path", path, "index", i)
			if !yield(path, nil) {
				logger.Info("consumer stopped early", "written", i+1)
				return
			}
		}

		logger.Info("prediction finished", "dir", dir, "duration", time.Since(start))
		finished()
	}
}

// Run drives Predict to completion and collects the paths produced before
// any failure.
func (p *Predictor) Run(ctx context.Context, req Request) ([]string, error) {
	return Collect(p.Predict(ctx, req))
}

// Collect gathers the paths of seq, stopping at the first error.
func Collect(seq iter.Seq2[string, error]) ([]string, error) {
	var paths []string
	for path, err := range seq {
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (p *Predictor) stage(name string) func() {
	if p.timer == nil {
		return func() {}
	}
	return p.timer.StartOperation(name)
}

func (p *Predictor) compose(ctx context.Context, in model.CompositionInput) (*model.Composition, error) {
	if p.opts.SerializeInference {
		p.mu.Lock()
		defer p.mu.Unlock()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.composer.Compose(ctx, in)
}
