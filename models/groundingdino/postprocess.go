package groundingdino

import (
	"strings"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"github.com/tuhinmallick/grounded-sam-replicate/common"
	"github.com/tuhinmallick/grounded-sam-replicate/models/postprocess"
	"gorgonia.org/tensor"
)

// Thresholds filter the raw decoder queries.
type Thresholds struct {
	// Box keeps a query when its best token score exceeds it.
	Box float32
	// Text selects the tokens that make up the phrase of a kept query.
	Text float32
	// NMS is the IoU above which overlapping boxes are suppressed.
	NMS float32
}

// Output is the raw result of one detector run.
type Output struct {
	// Logits are laid out as [NumQueries, MaxTextLen].
	Logits []float32
	// Boxes are laid out as [NumQueries, 4], normalized cx, cy, w, h.
	Boxes []float32
}

// sigmoid activates the per-token logits.
func sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

// Decode turns detector output into source-pixel boxes, highest confidence
// first.
//
// Arguments:
//   - out: The raw detector output.
//   - cfg: The graph the output was produced by.
//   - text: The text inputs of the caption.
//   - width, height: The source picture size.
//   - th: The filtering thresholds.
//
// Returns:
//   - []common.BoundingBox: The kept boxes.
//   - error: An error if the output does not match the graph shape.
func Decode(out Output, cfg GraphConfig, text *TextInputs, width, height int, th Thresholds) ([]common.BoundingBox, error) {
	q, t := cfg.NumQueries, cfg.MaxTextLen
	if len(out.Logits) != q*t {
		return nil, errors.Errorf("logits have %d values, want %dx%d", len(out.Logits), q, t)
	}
	if len(out.Boxes) != q*4 {
		return nil, errors.Errorf("boxes have %d values, want %dx4", len(out.Boxes), q)
	}

	logits := tensor.New(tensor.WithShape(q, t), tensor.WithBacking(out.Logits))
	activated, err := logits.Apply(sigmoid)
	if err != nil {
		return nil, errors.Wrap(err, "activating logits")
	}
	probs, ok := activated.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("unexpected logits type %T", activated.Data())
	}

	n := min(text.Len(), t)
	selected := make([]bool, n)
	detections := make([]common.BoundingBox, 0, 16)

	for i := 0; i < q; i++ {
		row := probs[i*t : i*t+n]

		var best float32
		for j, p := range row {
			if !text.Special[j] && p > best {
				best = p
			}
		}
		if best <= th.Box {
			continue
		}

		for j, p := range row {
			selected[j] = p > th.Text
		}
		label := strings.ReplaceAll(text.Phrase(selected), ".", "")

		cx, cy := out.Boxes[i*4+0], out.Boxes[i*4+1]
		bw, bh := out.Boxes[i*4+2], out.Boxes[i*4+3]
		fw, fh := float32(width), float32(height)

		box := common.BoundingBox{
			Label:      strings.TrimSpace(label),
			Confidence: best,
			X1:         (cx - bw/2) * fw,
			Y1:         (cy - bh/2) * fh,
			X2:         (cx + bw/2) * fw,
			Y2:         (cy + bh/2) * fh,
		}
		box.Clamp(width, height)
		if box.X2 <= box.X1 || box.Y2 <= box.Y1 {
			continue
		}
		detections = append(detections, box)
	}

	postprocess.SortByConfidence(detections)
	if th.NMS > 0 {
		detections = postprocess.ApplyGreedyNMS(detections, &postprocess.NMSConfig{IoUThreshold: th.NMS})
	}
	return detections, nil
}
