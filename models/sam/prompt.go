package sam

import (
	"image"

	"github.com/tuhinmallick/grounded-sam-replicate/common"
	"github.com/tuhinmallick/grounded-sam-replicate/images"
)

// Point labels of a box prompt: top-left and bottom-right corners.
const (
	LabelBoxTopLeft     float32 = 2
	LabelBoxBottomRight float32 = 3
)

// BoxPrompt converts a source-pixel box into decoder point coordinates in
// the resized encoder frame.
//
// Arguments:
//   - box: The box in source pixels.
//   - origin: The top-left corner of the source picture.
//   - scale: The longest-side resize factor applied by the encoder.
//
// Returns:
//   - []float32: x1, y1, x2, y2 of the two corner points.
//   - []float32: The matching point labels.
func BoxPrompt(box common.BoundingBox, origin image.Point, scale float64) ([]float32, []float32) {
	s := float32(scale)
	ox, oy := float32(origin.X), float32(origin.Y)
	coords := []float32{
		(box.X1 - ox) * s, (box.Y1 - oy) * s,
		(box.X2 - ox) * s, (box.Y2 - oy) * s,
	}
	return coords, []float32{LabelBoxTopLeft, LabelBoxBottomRight}
}

// MergeLogits sets every pixel of dst whose logit exceeds threshold. Logits
// are laid out row major over the bounds of dst.
//
// Returns:
//   - int: The number of pixels newly set.
func MergeLogits(dst *image.Gray, logits []float32, threshold float32) int {
	b := dst.Bounds()
	w, h := b.Dx(), b.Dy()
	if len(logits) < w*h {
		return 0
	}

	set := 0
	for y := 0; y < h; y++ {
		row := y * dst.Stride
		for x := 0; x < w; x++ {
			if logits[y*w+x] > threshold && dst.Pix[row+x] != images.MaskOn {
				dst.Pix[row+x] = images.MaskOn
				set++
			}
		}
	}
	return set
}
