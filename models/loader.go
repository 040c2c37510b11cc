// Package models - Loads the detector and the segmenter once per process.
package models

import (
	"context"
	"os"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/tuhinmallick/grounded-sam-replicate/config"
	"github.com/tuhinmallick/grounded-sam-replicate/inference/providers"
	"github.com/tuhinmallick/grounded-sam-replicate/log"
	"github.com/tuhinmallick/grounded-sam-replicate/models/groundingdino"
	"github.com/tuhinmallick/grounded-sam-replicate/models/model"
	"github.com/tuhinmallick/grounded-sam-replicate/models/sam"
)

var (
	// ErrMissingWeights is returned when a checkpoint, config or tokenizer
	// file does not exist.
	ErrMissingWeights = errors.New("model weights not found")
	// ErrBadConfig is returned when the detector config cannot be parsed.
	ErrBadConfig = errors.New("invalid model config")
)

var (
	_ model.Detector  = (*groundingdino.Model)(nil)
	_ model.Segmenter = (*sam.Model)(nil)
)

// Models holds the loaded model handles. Both are bound to Device and are
// read-only after Load returns.
type Models struct {
	Detector  *groundingdino.Model
	Segmenter *sam.Model
	Device    providers.ProviderBackend
	// Reports lists the tensor name mismatches found while binding.
	Reports []KeyReport
}

// KeyReport lists the differences between the tensor names a graph declares
// and the names the loader expected.
type KeyReport struct {
	Model model.Name
	Graph string
	// Missing names were expected but are not declared by the graph.
	Missing []string
	// Unexpected names are declared by the graph but were not expected.
	Unexpected []string
}

// Clean reports whether the graph matched exactly.
func (r KeyReport) Clean() bool {
	return len(r.Missing) == 0 && len(r.Unexpected) == 0
}

// bindNames returns the expected names the graph declares, in expected order,
// and the mismatches between both lists.
func bindNames(expected, declared []string) ([]string, []string, []string) {
	bound := make([]string, 0, len(expected))
	var missing, unexpected []string
	for _, name := range expected {
		if slices.Contains(declared, name) {
			bound = append(bound, name)
		} else {
			missing = append(missing, name)
		}
	}
	for _, name := range declared {
		if !slices.Contains(expected, name) {
			unexpected = append(unexpected, name)
		}
	}
	return bound, missing, unexpected
}

// graphInfo is swapped in tests.
var graphInfo = providers.GraphInfo

// bind reads the graph at path and binds the expected inputs and outputs
// non-strictly. Mismatches are logged and reported, never fatal.
func bind(ctx context.Context, name model.Name, path string, inputs, outputs []string) ([]string, []string, KeyReport, error) {
	declaredIn, declaredOut, err := graphInfo(path)
	if err != nil {
		return nil, nil, KeyReport{}, errors.Wrapf(ErrMissingWeights, "%s is not a readable graph: %v", path, err)
	}

	boundIn, missingIn, unexpectedIn := bindNames(inputs, declaredIn)
	boundOut, missingOut, unexpectedOut := bindNames(outputs, declaredOut)
	report := KeyReport{
		Model:      name,
		Graph:      path,
		Missing:    append(missingIn, missingOut...),
		Unexpected: append(unexpectedIn, unexpectedOut...),
	}
	if !report.Clean() {
		log.FromContextOrDiscard(ctx).Warn("graph tensor names do not match",
			"model", name, "graph", path, "missing", report.Missing, "unexpected", report.Unexpected)
	}
	return boundIn, boundOut, report, nil
}

// checkFiles returns ErrMissingWeights naming every path that does not exist.
func checkFiles(paths ...string) error {
	var missing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return errors.Wrap(ErrMissingWeights, strings.Join(missing, ", "))
	}
	return nil
}

// Load loads GroundingDINO and SAM onto the selected device.
//
// Order of operations:
//  1. Every file is checked before the native runtime is touched.
//  2. The detector config is parsed.
//  3. The ORT environment is initialized and the device is selected.
//  4. Graph tensor names are bound non-strictly.
//  5. The detector and segmenter sessions are created on the same provider.
//
// Arguments:
//   - ctx: Carries the logger.
//   - cfg: The model configuration.
//
// Returns:
//   - *Models: The loaded models; Close releases them.
//   - error: ErrMissingWeights, ErrBadConfig, or a runtime error.
func Load(ctx context.Context, cfg config.Models) (*Models, error) {
	logger := log.FromContextOrDiscard(ctx).WithGroup("models")

	var (
		graphPath  = cfg.Path(cfg.Grounding.Config)
		checkpoint = cfg.Path(cfg.Grounding.Checkpoint)
		tokenizer  = cfg.Path(cfg.Grounding.Tokenizer)
		encoder    = cfg.Path(cfg.SAM.Encoder)
		decoder    = cfg.Path(cfg.SAM.Decoder)
	)
	if err := checkFiles(graphPath, checkpoint, tokenizer, encoder, decoder); err != nil {
		return nil, err
	}

	graph, err := groundingdino.LoadGraphConfig(graphPath)
	if err != nil {
		return nil, errors.Wrapf(ErrBadConfig, "%v", err)
	}
	tk, err := groundingdino.LoadTokenizer(tokenizer)
	if err != nil {
		return nil, errors.Wrapf(ErrBadConfig, "%v", err)
	}

	backend, err := providers.ParseBackend(cfg.Device)
	if err != nil {
		return nil, err
	}

	if err := providers.InitializeEnvironment(cfg.SharedLibraryPath); err != nil {
		return nil, err
	}
	loaded := false
	defer func() {
		if !loaded {
			_ = providers.DestroyEnvironment()
		}
	}()

	session := providers.DefaultSessionConfig()
	session.IntraOpThreads = cfg.IntraOpThreads

	provider, err := providers.Select(ctx, backend, session)
	if err != nil {
		return nil, err
	}

	dinoIn, dinoOut, dinoReport, err := bind(ctx, model.ModelNameGroundingDINO, checkpoint,
		graph.InputNames(), graph.OutputNames())
	if err != nil {
		return nil, err
	}

	segGraph := sam.DefaultGraph()
	encIn, encOut := segGraph.EncoderNames()
	encIn, encOut, encReport, err := bind(ctx, model.ModelNameSAM, encoder, encIn, encOut)
	if err != nil {
		return nil, err
	}
	decIn, decOut := segGraph.DecoderNames()
	decIn, decOut, decReport, err := bind(ctx, model.ModelNameSAM, decoder, decIn, decOut)
	if err != nil {
		return nil, err
	}

	detector, err := groundingdino.New(provider, groundingdino.Options{
		ModelPath: checkpoint,
		Graph:     graph,
		Tokenizer: tk,
		Thresholds: groundingdino.Thresholds{
			Box:  cfg.Grounding.BoxThreshold,
			Text: cfg.Grounding.TextThreshold,
			NMS:  cfg.Grounding.NMSThreshold,
		},
		Inputs:  dinoIn,
		Outputs: dinoOut,
		Session: session,
	})
	if err != nil {
		return nil, err
	}

	segmenter, err := sam.New(provider, sam.Options{
		EncoderPath:    encoder,
		DecoderPath:    decoder,
		Graph:          segGraph,
		MaskThreshold:  cfg.SAM.MaskThreshold,
		EncoderInputs:  encIn,
		EncoderOutputs: encOut,
		DecoderInputs:  decIn,
		DecoderOutputs: decOut,
		Session:        session,
	})
	if err != nil {
		_ = detector.Close()
		return nil, err
	}

	loaded = true
	logger.Info("models loaded",
		"device", provider.Backend(),
		"groundingdino", checkpoint,
		"sam_encoder", encoder,
		"sam_decoder", decoder)

	return &Models{
		Detector:  detector,
		Segmenter: segmenter,
		Device:    provider.Backend(),
		Reports:   []KeyReport{dinoReport, encReport, decReport},
	}, nil
}

// Close releases both models and the ORT environment reference taken by Load.
func (m *Models) Close() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if m.Detector != nil {
		keep(m.Detector.Close())
	}
	if m.Segmenter != nil {
		keep(m.Segmenter.Close())
	}
	keep(providers.DestroyEnvironment())
	return first
}

// Shutdown implements do.Shutdownable.
func (m *Models) Shutdown() error {
	return m.Close()
}
