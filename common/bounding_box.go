// Package common - Detection records shared across models and composition.
package common

import (
	"fmt"
	"image"

	"github.com/tuhinmallick/grounded-sam-replicate/images"
)

// BoundingBox represents a detected region with its phrase, confidence and
// source-pixel coordinates.
type BoundingBox struct {
	// Label is the prompt phrase the region was grounded to.
	Label          string
	Confidence     float32
	X1, Y1, X2, Y2 float32
}

func (b *BoundingBox) String() string {
	return fmt.Sprintf("Object %s (confidence %f): (%f, %f), (%f, %f)",
		b.Label, b.Confidence, b.X1, b.Y1, b.X2, b.Y2)
}

// Caption is the short label drawn next to the box, e.g. "jacket(0.91)".
func (b *BoundingBox) Caption() string {
	return fmt.Sprintf("%s(%.2f)", b.Label, b.Confidence)
}

// ToRect converts the bounding box to an image.Rectangle.
//
// Coordinates are truncated towards zero, so the rectangle may be up to one
// pixel smaller than the floating point box.
//
// Returns:
// - An image.Rectangle with canonicalized coordinates.
func (b *BoundingBox) ToRect() image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2)).Canon()
}

// Rect returns the box as an images.Rect for IoU computations.
func (b *BoundingBox) Rect() images.Rect {
	return images.RectFromRectangle(b.ToRect())
}

// IoU calculates the Intersection over Union between two bounding boxes.
//
// Arguments:
// - other: The other bounding box to calculate IoU with.
//
// Returns:
// - The IoU value between 0 and 1.
func (b *BoundingBox) IoU(other *BoundingBox) float32 {
	return images.CalculateIoU(b.Rect(), other.Rect())
}

// Clamp restricts the box to the bounds of a width x height frame.
func (b *BoundingBox) Clamp(width, height int) {
	clamp := func(v, hi float32) float32 {
		return max(0, min(v, hi))
	}
	b.X1 = clamp(b.X1, float32(width))
	b.X2 = clamp(b.X2, float32(width))
	b.Y1 = clamp(b.Y1, float32(height))
	b.Y2 = clamp(b.Y2, float32(height))
}

// Annotations converts boxes into drawable annotations.
func Annotations(boxes []BoundingBox) []images.Annotation {
	out := make([]images.Annotation, 0, len(boxes))
	for i := range boxes {
		out = append(out, images.Annotation{Rect: boxes[i].ToRect(), Label: boxes[i].Caption()})
	}
	return out
}
