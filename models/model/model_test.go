package model

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompositionNamedOrder(t *testing.T) {
	imgs := make([]image.Image, 6)
	for i := range imgs {
		imgs[i] = image.NewGray(image.Rect(0, 0, i+1, 1))
	}
	c := &Composition{
		AnnotatedPictureMask:       imgs[0],
		NegAnnotatedPictureMask:    imgs[1],
		Mask:                       imgs[2],
		InvertedMask:               imgs[3],
		MaskRemoved:                imgs[4],
		MaskRemovedWhiteBackground: imgs[5],
	}

	named := c.Named()
	assert.Len(t, named, len(OutputNames))
	for i, n := range named {
		assert.Equal(t, OutputNames[i], n.Name)
		assert.Same(t, imgs[i], n.Image)
	}
}
