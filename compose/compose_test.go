package compose_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuhinmallick/grounded-sam-replicate/compose"
	"github.com/tuhinmallick/grounded-sam-replicate/images"
	"github.com/tuhinmallick/grounded-sam-replicate/models/model"
	"github.com/tuhinmallick/grounded-sam-replicate/test"
)

func newComposer(scene *test.Scene) (*compose.Composer, *test.FakeDetector, *test.FakeSegmenter) {
	detector := test.NewSceneDetector(scene)
	segmenter := &test.FakeSegmenter{}
	return compose.New(detector, segmenter), detector, segmenter
}

func sameRGBA(t *testing.T, a, b image.Image, p image.Point) bool {
	t.Helper()
	r1, g1, b1, a1 := a.At(p.X, p.Y).RGBA()
	r2, g2, b2, a2 := b.At(p.X, p.Y).RGBA()
	return r1 == r2 && g1 == g2 && b1 == b2 && a1 == a2
}

func center(r image.Rectangle) image.Point {
	return image.Pt((r.Min.X+r.Max.X)/2, (r.Min.Y+r.Max.Y)/2)
}

func TestComposeJacketWithoutShirt(t *testing.T) {
	scene := test.NewMockPictureGenerator(320, 480).GeneratePerson()
	c, detector, _ := newComposer(scene)

	out, err := c.Compose(context.Background(), model.CompositionInput{
		Image:              scene.Image,
		MaskPrompt:         "jacket",
		NegativeMaskPrompt: "shirt",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"jacket", "shirt"}, detector.Prompts())

	mask, ok := out.Mask.(*image.Gray)
	require.True(t, ok)
	assert.True(t, images.IsBinary(mask))
	assert.InDelta(t, float64(160*168-40*168)/float64(320*480), images.Coverage(mask), 1e-9)

	jacketPanel := image.Pt(scene.Jacket.Min.X+10, scene.Jacket.Min.Y+10)
	assert.Equal(t, images.MaskOn, mask.GrayAt(jacketPanel.X, jacketPanel.Y).Y)
	assert.Equal(t, images.MaskOff, mask.GrayAt(center(scene.Shirt).X, center(scene.Shirt).Y).Y)
	assert.Equal(t, images.MaskOff, mask.GrayAt(5, 5).Y)

	inverted, ok := out.InvertedMask.(*image.Gray)
	require.True(t, ok)
	for i := range mask.Pix {
		require.Equal(t, 255-mask.Pix[i], inverted.Pix[i])
	}

	removed := images.ToNRGBA(out.MaskRemoved)
	assert.Equal(t, uint8(0), removed.NRGBAAt(5, 5).A)
	assert.Equal(t, color.NRGBA{R: test.JacketColor.R, G: test.JacketColor.G, B: test.JacketColor.B, A: 255},
		removed.NRGBAAt(jacketPanel.X, jacketPanel.Y))

	r, g, b, a := out.MaskRemovedWhiteBackground.At(5, 5).RGBA()
	assert.Equal(t, [4]uint32{0xffff, 0xffff, 0xffff, 0xffff}, [4]uint32{r, g, b, a})

	assert.False(t, sameRGBA(t, scene.Image, out.NegAnnotatedPictureMask, center(scene.Shirt)),
		"the negative region is highlighted")
	assert.False(t, sameRGBA(t, scene.Image, out.AnnotatedPictureMask, jacketPanel),
		"the positive region is highlighted")

	for _, named := range out.Named() {
		assert.Equal(t, scene.Image.Bounds().Size(), named.Image.Bounds().Size(), named.Name)
	}
}

func TestComposeWithoutNegativePrompt(t *testing.T) {
	scene := test.NewMockPictureGenerator(160, 240).GeneratePerson()

	for name, negative := range map[string]string{"absent": "", "unmatched": "hat"} {
		t.Run(name, func(t *testing.T) {
			c, detector, segmenter := newComposer(scene)
			out, err := c.Compose(context.Background(), model.CompositionInput{
				Image:              scene.Image,
				MaskPrompt:         "jacket",
				NegativeMaskPrompt: negative,
			})
			require.NoError(t, err)
			assert.Equal(t, 1, segmenter.Calls())
			if negative == "" {
				assert.Equal(t, []string{"jacket"}, detector.Prompts())
			}

			for _, p := range []image.Point{{1, 1}, center(scene.Shirt), center(scene.Head)} {
				assert.True(t, sameRGBA(t, scene.Image, out.NegAnnotatedPictureMask, p), "%v", p)
			}
			mask := out.Mask.(*image.Gray)
			assert.InDelta(t, float64(scene.Jacket.Dx()*scene.Jacket.Dy())/float64(160*240), images.Coverage(mask), 1e-9)
		})
	}
}

func TestComposeErodeShrinksMask(t *testing.T) {
	scene := test.NewMockPictureGenerator(320, 480).GeneratePerson()
	c, _, _ := newComposer(scene)

	plain, err := c.Compose(context.Background(), model.CompositionInput{Image: scene.Image, MaskPrompt: "person"})
	require.NoError(t, err)
	eroded, err := c.Compose(context.Background(), model.CompositionInput{
		Image: scene.Image, MaskPrompt: "person", AdjustmentFactor: -15,
	})
	require.NoError(t, err)
	dilated, err := c.Compose(context.Background(), model.CompositionInput{
		Image: scene.Image, MaskPrompt: "person", AdjustmentFactor: 15,
	})
	require.NoError(t, err)

	base := images.Coverage(plain.Mask.(*image.Gray))
	assert.Less(t, images.Coverage(eroded.Mask.(*image.Gray)), base)
	assert.Greater(t, images.Coverage(dilated.Mask.(*image.Gray)), base)
	assert.True(t, images.IsBinary(eroded.Mask.(*image.Gray)))
}

func TestComposeNoDetections(t *testing.T) {
	gen := test.NewMockPictureGenerator(64, 64)
	scene := gen.GeneratePerson()
	c, _, segmenter := newComposer(scene)

	_, err := c.Compose(context.Background(), model.CompositionInput{Image: gen.GenerateBackground(), MaskPrompt: "car"})
	assert.True(t, errors.Is(err, model.ErrNoDetections))
	assert.Equal(t, 0, segmenter.Calls())
}

func TestComposePropagatesModelErrors(t *testing.T) {
	scene := test.NewMockPictureGenerator(64, 64).GeneratePerson()
	boom := errors.New("device out of memory")

	detector := test.NewSceneDetector(scene)
	detector.Err = boom
	_, err := compose.New(detector, &test.FakeSegmenter{}).Compose(context.Background(),
		model.CompositionInput{Image: scene.Image, MaskPrompt: "jacket"})
	assert.ErrorIs(t, err, boom)

	_, err = compose.New(test.NewSceneDetector(scene), &test.FakeSegmenter{Err: boom}).Compose(context.Background(),
		model.CompositionInput{Image: scene.Image, MaskPrompt: "jacket"})
	assert.ErrorIs(t, err, boom)

	_, err = compose.New(test.NewSceneDetector(scene), &test.FakeSegmenter{}).Compose(context.Background(),
		model.CompositionInput{MaskPrompt: "jacket"})
	assert.Error(t, err)
}
