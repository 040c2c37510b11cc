package sam

import (
	"context"
	"image"
	"slices"

	"github.com/pkg/errors"
	"github.com/tuhinmallick/grounded-sam-replicate/common"
	"github.com/tuhinmallick/grounded-sam-replicate/images"
	"github.com/tuhinmallick/grounded-sam-replicate/inference/providers"
	"github.com/tuhinmallick/grounded-sam-replicate/log"
	"github.com/tuhinmallick/grounded-sam-replicate/models/model/preprocess"
	ort "github.com/yalue/onnxruntime_go"
)

// Options configures a segmenter.
type Options struct {
	EncoderPath string
	DecoderPath string
	Graph       Graph
	// MaskThreshold binarizes the decoder logits.
	MaskThreshold float32
	// EncoderInputs, EncoderOutputs, DecoderInputs and DecoderOutputs are
	// the tensor names to bind. Empty means every name of Graph.
	EncoderInputs, EncoderOutputs []string
	DecoderInputs, DecoderOutputs []string
	Session                       providers.SessionConfig
}

// Model is a loaded SAM encoder and decoder pair.
type Model struct {
	encoder   *providers.Session
	decoder   *providers.Session
	graph     Graph
	threshold float32
	pre       *preprocess.ModelConfig
}

// New creates the encoder and decoder sessions on provider.
//
// Arguments:
//   - provider: The execution provider.
//   - opts: The segmenter options.
//
// Returns:
//   - *Model: The segmenter.
//   - error: An error if either graph cannot be loaded.
func New(provider providers.ExecutionProvider, opts Options) (*Model, error) {
	g := opts.Graph
	encIn, encOut := g.EncoderNames()
	decIn, decOut := g.DecoderNames()
	encIn = orDefault(opts.EncoderInputs, encIn)
	encOut = orDefault(opts.EncoderOutputs, encOut)
	decIn = orDefault(opts.DecoderInputs, decIn)
	decOut = orDefault(opts.DecoderOutputs, decOut)

	if !slices.Contains(encOut, g.EncoderOutput) {
		return nil, errors.Errorf("encoder %s must bind output %q", opts.EncoderPath, g.EncoderOutput)
	}
	if !slices.Contains(decOut, g.Masks) {
		return nil, errors.Errorf("decoder %s must bind output %q", opts.DecoderPath, g.Masks)
	}

	encoder, err := providers.NewSession(provider, providers.NewSessionArgs{
		ModelPath: opts.EncoderPath,
		Inputs:    encIn,
		Outputs:   encOut,
		Config:    opts.Session,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating sam encoder session")
	}
	decoder, err := providers.NewSession(provider, providers.NewSessionArgs{
		ModelPath: opts.DecoderPath,
		Inputs:    decIn,
		Outputs:   decOut,
		Config:    opts.Session,
	})
	if err != nil {
		_ = encoder.Close()
		return nil, errors.Wrap(err, "creating sam decoder session")
	}

	return &Model{
		encoder:   encoder,
		decoder:   decoder,
		graph:     g,
		threshold: opts.MaskThreshold,
		pre:       preprocess.GetSAMConfig(g.ImageSize),
	}, nil
}

// Segment returns the union of the masks of every box, with the bounds of
// img. No boxes yields an empty mask without running the graphs.
func (m *Model) Segment(ctx context.Context, img image.Image, boxes []common.BoundingBox) (*image.Gray, error) {
	logger := log.FromContextOrDiscard(ctx).WithGroup("sam")

	b := img.Bounds()
	mask := images.NewMask(b)
	if len(boxes) == 0 {
		return mask, nil
	}

	pre, err := preprocess.Preprocess(m.pre, img)
	if err != nil {
		return nil, errors.Wrap(err, "preprocessing image")
	}

	var values providers.Values
	defer values.Destroy()

	size := int64(m.graph.ImageSize)
	pixels, err := ort.NewTensor(ort.NewShape(1, 3, size, size), pre.Tensor)
	if err != nil {
		return nil, errors.Wrap(err, "creating image tensor")
	}
	values.Add(pixels)

	es := m.graph.EmbeddingShape
	embeddings, err := ort.NewEmptyTensor[float32](ort.NewShape(1, es[0], es[1], es[2]))
	if err != nil {
		return nil, errors.Wrap(err, "creating embeddings tensor")
	}
	values.Add(embeddings)

	if err := m.encoder.Run(
		map[string]ort.Value{m.graph.EncoderInput: pixels},
		map[string]ort.Value{m.graph.EncoderOutput: embeddings},
	); err != nil {
		return nil, errors.Wrap(err, "running sam encoder")
	}

	lr := m.graph.LowResMaskSize
	maskInput, err := ort.NewTensor(ort.NewShape(1, 1, lr, lr), make([]float32, lr*lr))
	if err != nil {
		return nil, errors.Wrap(err, "creating mask prompt tensor")
	}
	values.Add(maskInput)
	hasMask, err := ort.NewTensor(ort.NewShape(1), []float32{0})
	if err != nil {
		return nil, errors.Wrap(err, "creating mask flag tensor")
	}
	values.Add(hasMask)
	origSize, err := ort.NewTensor(ort.NewShape(2), []float32{float32(b.Dy()), float32(b.Dx())})
	if err != nil {
		return nil, errors.Wrap(err, "creating size tensor")
	}
	values.Add(origSize)

	for i, box := range boxes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		set, err := m.decode(embeddings, maskInput, hasMask, origSize, box, b, pre.ScaleX, mask)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding box %d", i)
		}
		logger.Debug("segmented box", "label", box.Label, "pixels", set)
	}
	return mask, nil
}

func (m *Model) decode(
	embeddings, maskInput, hasMask, origSize ort.Value,
	box common.BoundingBox,
	bounds image.Rectangle,
	scale float64,
	dst *image.Gray,
) (int, error) {
	var values providers.Values
	defer values.Destroy()

	coords, labels := BoxPrompt(box, bounds.Min, scale)
	pc, err := ort.NewTensor(ort.NewShape(1, 2, 2), coords)
	if err != nil {
		return 0, errors.Wrap(err, "creating point tensor")
	}
	values.Add(pc)
	pl, err := ort.NewTensor(ort.NewShape(1, 2), labels)
	if err != nil {
		return 0, errors.Wrap(err, "creating label tensor")
	}
	values.Add(pl)

	masks, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1, int64(bounds.Dy()), int64(bounds.Dx())))
	if err != nil {
		return 0, errors.Wrap(err, "creating mask tensor")
	}
	values.Add(masks)

	g := m.graph
	if err := m.decoder.Run(map[string]ort.Value{
		g.Embeddings:   embeddings,
		g.PointCoords:  pc,
		g.PointLabels:  pl,
		g.MaskInput:    maskInput,
		g.HasMaskInput: hasMask,
		g.OrigImSize:   origSize,
	}, map[string]ort.Value{g.Masks: masks}); err != nil {
		return 0, errors.Wrap(err, "running sam decoder")
	}

	return MergeLogits(dst, masks.GetData(), m.threshold), nil
}

// Close releases both sessions.
func (m *Model) Close() error {
	encErr := m.encoder.Close()
	decErr := m.decoder.Close()
	if encErr != nil {
		return encErr
	}
	return decErr
}

func orDefault(bound, all []string) []string {
	if len(bound) == 0 {
		return all
	}
	return bound
}
