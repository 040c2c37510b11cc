package images

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjustMask(t *testing.T) {
	region := image.Rect(20, 20, 44, 44)

	tests := []struct {
		name    string
		factor  int
		compare func(t *testing.T, before, after float64)
	}{
		{"erosion shrinks", -5, func(t *testing.T, before, after float64) { assert.Less(t, after, before) }},
		{"dilation grows", 5, func(t *testing.T, before, after float64) { assert.Greater(t, after, before) }},
		{"zero keeps", 0, func(t *testing.T, before, after float64) { assert.Equal(t, before, after) }},
		{"unit kernel keeps", -1, func(t *testing.T, before, after float64) { assert.Equal(t, before, after) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mask := squareMask(64, region)
			adjusted, err := AdjustMask(mask, tt.factor)
			require.NoError(t, err)

			assert.Equal(t, mask.Bounds(), adjusted.Bounds())
			assert.True(t, IsBinary(adjusted))
			tt.compare(t, Coverage(mask), Coverage(adjusted))
		})
	}
}

func TestAdjustMaskErodesSmallRegionAway(t *testing.T) {
	mask := squareMask(32, image.Rect(10, 10, 14, 14))
	adjusted, err := AdjustMask(mask, -15)
	require.NoError(t, err)
	assert.Zero(t, Coverage(adjusted))
}

func TestAnnotateKeepsSize(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 80, 60))
	mask := squareMask(80, image.Rect(10, 10, 30, 30))

	out, err := Annotate(src, []Annotation{{Rect: image.Rect(10, 10, 30, 30), Label: "jacket(0.91)"}}, mask)
	require.NoError(t, err)
	assert.Equal(t, src.Bounds().Size(), out.Bounds().Size())

	plain, err := Annotate(src, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, Clone(plain).Pix)
}

func TestAdjustMaskHugeFactor(t *testing.T) {
	tests := []struct {
		name   string
		factor int
		want   float64
	}{
		{"erosion empties", -200000, 0},
		{"dilation fills", 200000, 1},
		{"min int erodes", math.MinInt, 0},
		{"max int dilates", math.MaxInt, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mask := squareMask(48, image.Rect(8, 8, 24, 30))
			adjusted, err := AdjustMask(mask, tt.factor)
			require.NoError(t, err)
			assert.Equal(t, mask.Bounds(), adjusted.Bounds())
			assert.InDelta(t, tt.want, Coverage(adjusted), 1e-9)
		})
	}
}
