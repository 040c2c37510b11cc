package common

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoundingBoxIoU(t *testing.T) {
	box1 := BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100}
	box2 := BoundingBox{X1: 50, Y1: 50, X2: 150, Y2: 150}

	assert.InDelta(t, 2500.0/17500.0, box1.IoU(&box2), 0.001)
	assert.InDelta(t, 1.0, box1.IoU(&box1), 0.001)
}

func TestBoundingBoxToRect(t *testing.T) {
	box := BoundingBox{X1: 200.5, Y1: 300.5, X2: 100.5, Y2: 100.5}
	assert.Equal(t, image.Rect(100, 100, 200, 300), box.ToRect())
}

func TestBoundingBoxClamp(t *testing.T) {
	box := BoundingBox{X1: -10, Y1: 5, X2: 700, Y2: 900}
	box.Clamp(640, 480)
	assert.Equal(t, BoundingBox{X1: 0, Y1: 5, X2: 640, Y2: 480}, box)
}

func TestAnnotations(t *testing.T) {
	boxes := []BoundingBox{{Label: "jacket", Confidence: 0.912, X1: 1, Y1: 2, X2: 3, Y2: 4}}
	got := Annotations(boxes)
	assert.Len(t, got, 1)
	assert.Equal(t, "jacket(0.91)", got[0].Label)
	assert.Equal(t, image.Rect(1, 2, 3, 4), got[0].Rect)
}
