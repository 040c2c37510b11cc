// Package model - Contracts between the loaded models, composition and the orchestrator.
package model

import (
	"context"
	"errors"
	"image"

	"github.com/tuhinmallick/grounded-sam-replicate/common"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameGroundingDINO is the open-vocabulary detector.
	ModelNameGroundingDINO Name = "groundingdino"
	// ModelNameSAM is the promptable segmenter.
	ModelNameSAM Name = "sam"
)

// ErrNoDetections is returned when a prompt matches no region of the image.
var ErrNoDetections = errors.New("no regions match the prompt")

// Detector locates the regions of an image matching a free-text prompt.
type Detector interface {
	// Detect returns boxes in source pixel coordinates, highest confidence
	// first. An empty result is not an error.
	Detect(ctx context.Context, img image.Image, prompt string) ([]common.BoundingBox, error)
}

// Segmenter produces a per-pixel mask for a set of box prompts.
type Segmenter interface {
	// Segment returns the union of the masks of every box as a two-valued
	// mask with the bounds of img.
	Segment(ctx context.Context, img image.Image, boxes []common.BoundingBox) (*image.Gray, error)
}

// CompositionInput is a single call into the composition routine.
type CompositionInput struct {
	Image              image.Image
	MaskPrompt         string
	NegativeMaskPrompt string
	AdjustmentFactor   int
}

// Composer combines detection and segmentation into the six output images.
type Composer interface {
	Compose(ctx context.Context, in CompositionInput) (*Composition, error)
}

// Output names, in the order they are written.
const (
	AnnotatedPictureMask       = "annotated_picture_mask"
	NegAnnotatedPictureMask    = "neg_annotated_picture_mask"
	Mask                       = "mask"
	InvertedMask               = "inverted_mask"
	MaskRemoved                = "mask_removed"
	MaskRemovedWhiteBackground = "mask_removed_white_background"
)

// OutputNames lists every output name in write order.
var OutputNames = []string{
	AnnotatedPictureMask,
	NegAnnotatedPictureMask,
	Mask,
	InvertedMask,
	MaskRemoved,
	MaskRemovedWhiteBackground,
}

// Composition is the six-image result of one composition call.
type Composition struct {
	AnnotatedPictureMask       image.Image
	NegAnnotatedPictureMask    image.Image
	Mask                       image.Image
	InvertedMask               image.Image
	MaskRemoved                image.Image
	MaskRemovedWhiteBackground image.Image
}

// NamedImage pairs an output name with its image.
type NamedImage struct {
	Name  string
	Image image.Image
}

// Named returns the images in write order.
func (c *Composition) Named() []NamedImage {
	return []NamedImage{
		{AnnotatedPictureMask, c.AnnotatedPictureMask},
		{NegAnnotatedPictureMask, c.NegAnnotatedPictureMask},
		{Mask, c.Mask},
		{InvertedMask, c.InvertedMask},
		{MaskRemoved, c.MaskRemoved},
		{MaskRemovedWhiteBackground, c.MaskRemovedWhiteBackground},
	}
}
