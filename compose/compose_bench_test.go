package compose_test

import (
	"context"
	"testing"

	"github.com/tuhinmallick/grounded-sam-replicate/models/model"
	"github.com/tuhinmallick/grounded-sam-replicate/test"
)

func BenchmarkCompose(b *testing.B) {
	scene := test.NewMockPictureGenerator(640, 960).GeneratePerson()
	c, _, _ := newComposer(scene)

	for _, factor := range []int{-15, 0, 15} {
		in := model.CompositionInput{
			Image:              scene.Image,
			MaskPrompt:         "jacket",
			NegativeMaskPrompt: "shirt",
			AdjustmentFactor:   factor,
		}
		b.Run(benchName(factor), func(b *testing.B) {
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := c.Compose(context.Background(), in); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func benchName(factor int) string {
	switch {
	case factor < 0:
		return "erode"
	case factor > 0:
		return "dilate"
	default:
		return "none"
	}
}
