package groundingdino

import (
	"context"
	"image"
	"slices"

	"github.com/pkg/errors"
	"github.com/tuhinmallick/grounded-sam-replicate/common"
	"github.com/tuhinmallick/grounded-sam-replicate/inference/providers"
	"github.com/tuhinmallick/grounded-sam-replicate/log"
	"github.com/tuhinmallick/grounded-sam-replicate/models/model/preprocess"
	ort "github.com/yalue/onnxruntime_go"
)

// Options configures a detector.
type Options struct {
	// ModelPath is the exported ONNX graph.
	ModelPath string
	// Graph describes the exported graph.
	Graph GraphConfig
	// Tokenizer encodes captions.
	Tokenizer Tokenizer
	// Thresholds filter the raw queries.
	Thresholds Thresholds
	// Inputs and Outputs are the tensor names to bind. Empty means every
	// name of Graph.
	Inputs, Outputs []string
	// Session controls threading and optimisation.
	Session providers.SessionConfig
}

// Model is a loaded GroundingDINO detector.
type Model struct {
	session    *providers.Session
	graph      GraphConfig
	tokenizer  Tokenizer
	thresholds Thresholds
	pre        *preprocess.ModelConfig
}

// New creates a detector session on provider.
//
// Arguments:
//   - provider: The execution provider.
//   - opts: The detector options.
//
// Returns:
//   - *Model: The detector.
//   - error: An error if the graph cannot be loaded or lacks a tensor the
//     detector cannot run without.
func New(provider providers.ExecutionProvider, opts Options) (*Model, error) {
	if opts.Tokenizer == nil {
		return nil, errors.New("groundingdino needs a tokenizer")
	}
	if err := opts.Graph.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid graph config")
	}

	inputs := opts.Inputs
	if len(inputs) == 0 {
		inputs = opts.Graph.InputNames()
	}
	outputs := opts.Outputs
	if len(outputs) == 0 {
		outputs = opts.Graph.OutputNames()
	}

	t := opts.Graph.Tensors
	if !slices.Contains(inputs, t.Image) || !slices.Contains(inputs, t.InputIDs) {
		return nil, errors.Errorf("graph %s must bind %q and %q", opts.ModelPath, t.Image, t.InputIDs)
	}
	for _, name := range opts.Graph.OutputNames() {
		if !slices.Contains(outputs, name) {
			return nil, errors.Errorf("graph %s must bind output %q", opts.ModelPath, name)
		}
	}

	session, err := providers.NewSession(provider, providers.NewSessionArgs{
		ModelPath: opts.ModelPath,
		Inputs:    inputs,
		Outputs:   outputs,
		Config:    opts.Session,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating groundingdino session")
	}

	return &Model{
		session:    session,
		graph:      opts.Graph,
		tokenizer:  opts.Tokenizer,
		thresholds: opts.Thresholds,
		pre: preprocess.GetGroundingDINOConfig(
			opts.Graph.ImageSize[0], opts.Graph.ImageSize[1], opts.Graph.Mean, opts.Graph.Std),
	}, nil
}

// Detect locates the regions of img matching prompt.
func (m *Model) Detect(ctx context.Context, img image.Image, prompt string) ([]common.BoundingBox, error) {
	logger := log.FromContextOrDiscard(ctx).WithGroup("groundingdino")

	caption := Caption(prompt)
	if caption == "" {
		return nil, errors.New("prompt is empty")
	}

	enc, err := m.tokenizer.Encode(caption)
	if err != nil {
		return nil, err
	}
	text := BuildTextInputs(enc, m.graph.MaxTextLen)

	pre, err := preprocess.Preprocess(m.pre, img)
	if err != nil {
		return nil, errors.Wrap(err, "preprocessing image")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var values providers.Values
	defer values.Destroy()

	t := m.graph.Tensors
	n := int64(text.Len())
	w, h := int64(m.graph.ImageSize[0]), int64(m.graph.ImageSize[1])

	inputs := map[string]ort.Value{}
	var bindErr error
	bind := func(name string) func(ort.Value, error) {
		return func(v ort.Value, err error) {
			if err != nil {
				if bindErr == nil {
					bindErr = errors.Wrapf(err, "creating tensor %s", name)
				}
				return
			}
			values.Add(v)
			inputs[name] = v
		}
	}

	bind(t.Image)(asValue(ort.NewTensor(ort.NewShape(1, 3, h, w), pre.Tensor)))
	bind(t.InputIDs)(asValue(ort.NewTensor(ort.NewShape(1, n), text.InputIDs)))
	bind(t.PositionIDs)(asValue(ort.NewTensor(ort.NewShape(1, n), text.PositionIDs)))
	bind(t.TokenTypeIDs)(asValue(ort.NewTensor(ort.NewShape(1, n), text.TokenTypeIDs)))
	bind(t.AttentionMask)(m.maskTensor(ort.NewShape(1, n), nonZero(text.AttentionMask)))
	bind(t.TextTokenMask)(m.maskTensor(ort.NewShape(1, n, n), text.SelfAttention))
	if bindErr != nil {
		return nil, bindErr
	}

	q, tl := int64(m.graph.NumQueries), int64(m.graph.MaxTextLen)
	logits, err := ort.NewEmptyTensor[float32](ort.NewShape(1, q, tl))
	if err != nil {
		return nil, errors.Wrap(err, "creating logits tensor")
	}
	values.Add(logits)
	boxes, err := ort.NewEmptyTensor[float32](ort.NewShape(1, q, 4))
	if err != nil {
		return nil, errors.Wrap(err, "creating boxes tensor")
	}
	values.Add(boxes)

	if err := m.session.Run(inputs, map[string]ort.Value{t.Logits: logits, t.Boxes: boxes}); err != nil {
		return nil, errors.Wrap(err, "running groundingdino")
	}

	b := img.Bounds()
	detections, err := Decode(Output{Logits: logits.GetData(), Boxes: boxes.GetData()},
		m.graph, text, b.Dx(), b.Dy(), m.thresholds)
	if err != nil {
		return nil, err
	}

	// Decoded boxes are relative to the picture origin.
	for i := range detections {
		detections[i].X1 += float32(b.Min.X)
		detections[i].X2 += float32(b.Min.X)
		detections[i].Y1 += float32(b.Min.Y)
		detections[i].Y2 += float32(b.Min.Y)
	}

	logger.Debug("detected", "caption", caption, "tokens", n, "detections", len(detections))
	return detections, nil
}

// Close releases the session.
func (m *Model) Close() error {
	return m.session.Close()
}

func (m *Model) maskTensor(shape ort.Shape, mask []bool) (ort.Value, error) {
	if m.graph.MaskType == MaskTypeInt64 {
		data := make([]int64, len(mask))
		for i, v := range mask {
			if v {
				data[i] = 1
			}
		}
		return asValue(ort.NewTensor(shape, data))
	}

	data := make([]byte, len(mask))
	for i, v := range mask {
		if v {
			data[i] = 1
		}
	}
	t, err := ort.NewCustomDataTensor(shape, data, ort.TensorElementDataTypeBool)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func asValue[T ort.TensorData](t *ort.Tensor[T], err error) (ort.Value, error) {
	if err != nil {
		return nil, err
	}
	return t, nil
}

func nonZero(v []int64) []bool {
	out := make([]bool, len(v))
	for i, x := range v {
		out[i] = x != 0
	}
	return out
}
