package test

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/tuhinmallick/grounded-sam-replicate/common"
	"github.com/tuhinmallick/grounded-sam-replicate/images"
	"github.com/tuhinmallick/grounded-sam-replicate/models/model"
)

var (
	_ model.Detector  = (*FakeDetector)(nil)
	_ model.Segmenter = (*FakeSegmenter)(nil)
	_ model.Composer  = (*FakeComposer)(nil)
)

// FakeDetector answers prompts from a fixed table.
type FakeDetector struct {
	// Boxes maps a prompt onto its detections. Unknown prompts match nothing.
	Boxes map[string][]common.BoundingBox
	// Err, when set, is returned by every call.
	Err error

	mu      sync.Mutex
	prompts []string
}

// NewSceneDetector returns a detector that finds the garments of scene.
func NewSceneDetector(scene *Scene) *FakeDetector {
	box := func(label string, r image.Rectangle, confidence float32) common.BoundingBox {
		return common.BoundingBox{
			Label:      label,
			Confidence: confidence,
			X1:         float32(r.Min.X),
			Y1:         float32(r.Min.Y),
			X2:         float32(r.Max.X),
			Y2:         float32(r.Max.Y),
		}
	}
	return &FakeDetector{Boxes: map[string][]common.BoundingBox{
		"person": {box("person", scene.Person, 0.93)},
		"jacket": {box("jacket", scene.Jacket, 0.88)},
		"shirt":  {box("shirt", scene.Shirt, 0.74)},
		"face":   {box("face", scene.Head, 0.81)},
	}}
}

// Detect records prompt and returns its table entry.
func (d *FakeDetector) Detect(_ context.Context, _ image.Image, prompt string) ([]common.BoundingBox, error) {
	d.mu.Lock()
	d.prompts = append(d.prompts, prompt)
	d.mu.Unlock()

	if d.Err != nil {
		return nil, d.Err
	}
	boxes := d.Boxes[prompt]
	out := make([]common.BoundingBox, len(boxes))
	copy(out, boxes)
	return out, nil
}

// Prompts returns every prompt seen so far, in call order.
func (d *FakeDetector) Prompts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.prompts...)
}

// FakeSegmenter fills every box.
type FakeSegmenter struct {
	Err   error
	calls atomic.Int32
}

// Segment returns a mask with the rectangle of every box set.
func (s *FakeSegmenter) Segment(_ context.Context, img image.Image, boxes []common.BoundingBox) (*image.Gray, error) {
	s.calls.Add(1)
	if s.Err != nil {
		return nil, s.Err
	}
	mask := images.NewMask(img.Bounds())
	for i := range boxes {
		images.FillRect(mask, boxes[i].ToRect())
	}
	return mask, nil
}

// Calls returns the number of Segment calls.
func (s *FakeSegmenter) Calls() int {
	return int(s.calls.Load())
}

// FakeComposer returns a fixed composition.
type FakeComposer struct {
	// Size of every output image.
	Size image.Rectangle
	// Err, when set, is returned by every call.
	Err error
	// Hold, when set, blocks every call until it is closed.
	Hold chan struct{}

	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
}

// Compose returns six solid images of Size.
func (c *FakeComposer) Compose(ctx context.Context, _ model.CompositionInput) (*model.Composition, error) {
	c.calls.Add(1)
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if c.Hold != nil {
		select {
		case <-c.Hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.Err != nil {
		return nil, c.Err
	}

	size := c.Size
	if size.Empty() {
		size = image.Rect(0, 0, 8, 8)
	}
	solid := func(col color.Color) image.Image {
		img := image.NewRGBA(size)
		for y := size.Min.Y; y < size.Max.Y; y++ {
			for x := size.Min.X; x < size.Max.X; x++ {
				img.Set(x, y, col)
			}
		}
		return img
	}
	mask := images.NewMask(size)
	images.FillRect(mask, image.Rect(size.Min.X, size.Min.Y, size.Min.X+size.Dx()/2, size.Max.Y))

	return &model.Composition{
		AnnotatedPictureMask:       solid(color.RGBA{R: 255, A: 255}),
		NegAnnotatedPictureMask:    solid(color.RGBA{G: 255, A: 255}),
		Mask:                       mask,
		InvertedMask:               images.Invert(mask),
		MaskRemoved:                images.ApplyAlpha(solid(color.RGBA{B: 255, A: 255}), mask),
		MaskRemovedWhiteBackground: solid(color.White),
	}, nil
}

// Calls returns the number of Compose calls.
func (c *FakeComposer) Calls() int {
	return int(c.calls.Load())
}

// PeakConcurrency returns the highest number of simultaneous Compose calls.
func (c *FakeComposer) PeakConcurrency() int {
	return int(c.peak.Load())
}
