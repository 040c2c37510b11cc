package postprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tuhinmallick/grounded-sam-replicate/common"
)

func TestApplyGreedyNMS(t *testing.T) {
	detections := []common.BoundingBox{
		{Label: "jacket", Confidence: 0.9, X1: 0, Y1: 0, X2: 100, Y2: 100},
		{Label: "jacket", Confidence: 0.8, X1: 2, Y1: 2, X2: 100, Y2: 100},
		{Label: "person", Confidence: 0.7, X1: 1, Y1: 1, X2: 99, Y2: 99},
		{Label: "jacket", Confidence: 0.6, X1: 200, Y1: 200, X2: 300, Y2: 300},
	}

	tests := []struct {
		name   string
		config NMSConfig
		want   []float32
	}{
		{"class agnostic", NMSConfig{IoUThreshold: 0.8}, []float32{0.9, 0.6}},
		{"class aware", NMSConfig{IoUThreshold: 0.8, ClassAware: true}, []float32{0.9, 0.7, 0.6}},
		{"permissive threshold", NMSConfig{IoUThreshold: 1.0}, []float32{0.9, 0.8, 0.7, 0.6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyGreedyNMS(detections, &tt.config)
			scores := make([]float32, 0, len(got))
			for _, d := range got {
				scores = append(scores, d.Confidence)
			}
			assert.Equal(t, tt.want, scores)
		})
	}

	assert.Nil(t, ApplyGreedyNMS(nil, &NMSConfig{IoUThreshold: 0.5}))
}

func TestSortByConfidence(t *testing.T) {
	d := []common.BoundingBox{{Confidence: 0.2}, {Confidence: 0.9}, {Confidence: 0.5}}
	SortByConfidence(d)
	assert.Equal(t, []float32{0.9, 0.5, 0.2}, []float32{d[0].Confidence, d[1].Confidence, d[2].Confidence})
}
