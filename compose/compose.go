// Package compose - Combines detection and segmentation into the six output images.
package compose

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/tuhinmallick/grounded-sam-replicate/common"
	"github.com/tuhinmallick/grounded-sam-replicate/images"
	"github.com/tuhinmallick/grounded-sam-replicate/log"
	"github.com/tuhinmallick/grounded-sam-replicate/models/model"
)

var _ model.Composer = (*Composer)(nil)

// Composer runs the grounded segmentation of one picture.
type Composer struct {
	Detector  model.Detector
	Segmenter model.Segmenter
}

// New returns a Composer over the given models.
func New(detector model.Detector, segmenter model.Segmenter) *Composer {
	return &Composer{Detector: detector, Segmenter: segmenter}
}

// Compose detects and segments in.MaskPrompt, removes the regions matching
// in.NegativeMaskPrompt, and renders the six outputs.
//
// Arguments:
//   - ctx: Carries the logger; checked between stages.
//   - in: The picture, the prompts and the mask adjustment.
//
// Returns:
//   - *model.Composition: The six images.
//   - error: model.ErrNoDetections when the mask prompt matches nothing, or
//     the first detection, segmentation or drawing error.
func (c *Composer) Compose(ctx context.Context, in model.CompositionInput) (*model.Composition, error) {
	logger := log.FromContextOrDiscard(ctx).WithGroup("compose")

	if in.Image == nil {
		return nil, errors.New("composition needs an image")
	}
	src := in.Image

	boxes, mask, err := c.segment(ctx, src, in.MaskPrompt)
	if err != nil {
		return nil, err
	}
	if len(boxes) == 0 {
		return nil, fmt.Errorf("%w: %q", model.ErrNoDetections, in.MaskPrompt)
	}
	logger.Info("mask prompt matched", "prompt", in.MaskPrompt, "boxes", len(boxes),
		"coverage", images.Coverage(mask))

	var negAnnotated image.Image = images.Clone(src)
	if in.NegativeMaskPrompt != "" {
		negBoxes, negMask, err := c.segment(ctx, src, in.NegativeMaskPrompt)
		if err != nil {
			return nil, err
		}
		if len(negBoxes) == 0 {
			logger.Info("negative prompt matched nothing", "prompt", in.NegativeMaskPrompt)
		} else {
			images.Subtract(mask, negMask)
			negAnnotated, err = images.Annotate(src, common.Annotations(negBoxes), negMask)
			if err != nil {
				return nil, fmt.Errorf("annotating negative regions: %w", err)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	annotated, err := images.Annotate(src, common.Annotations(boxes), mask)
	if err != nil {
		return nil, fmt.Errorf("annotating regions: %w", err)
	}

	adjusted, err := images.AdjustMask(mask, in.AdjustmentFactor)
	if err != nil {
		return nil, fmt.Errorf("adjusting mask by %d: %w", in.AdjustmentFactor, err)
	}

	removed := images.ApplyAlpha(src, adjusted)
	return &model.Composition{
		AnnotatedPictureMask:       annotated,
		NegAnnotatedPictureMask:    negAnnotated,
		Mask:                       adjusted,
		InvertedMask:               images.Invert(adjusted),
		MaskRemoved:                removed,
		MaskRemovedWhiteBackground: images.Flatten(removed, color.White),
	}, nil
}

// segment detects prompt and, when anything matched, segments the boxes.
// No match returns no boxes and a nil mask.
func (c *Composer) segment(ctx context.Context, src image.Image, prompt string) ([]common.BoundingBox, *image.Gray, error) {
	boxes, err := c.Detector.Detect(ctx, src, prompt)
	if err != nil {
		return nil, nil, fmt.Errorf("detecting %q: %w", prompt, err)
	}
	if len(boxes) == 0 {
		return nil, nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	mask, err := c.Segmenter.Segment(ctx, src, boxes)
	if err != nil {
		return nil, nil, fmt.Errorf("segmenting %q: %w", prompt, err)
	}
	if mask.Bounds() != src.Bounds() {
		return nil, nil, fmt.Errorf("segmenting %q: mask bounds %v differ from image bounds %v",
			prompt, mask.Bounds(), src.Bounds())
	}
	return boxes, mask, nil
}
