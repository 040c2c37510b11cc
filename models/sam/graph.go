// Package sam - Segment Anything encoder and prompt decoder over ONNX Runtime.
package sam

// Graph names the tensors of the exported encoder and decoder.
type Graph struct {
	// ImageSize is the encoder input side.
	ImageSize int
	// EmbeddingShape is the encoder output shape without the batch dimension.
	EmbeddingShape [3]int64
	// LowResMaskSize is the side of the decoder mask prompt.
	LowResMaskSize int64

	EncoderInput  string
	EncoderOutput string

	Embeddings   string
	PointCoords  string
	PointLabels  string
	MaskInput    string
	HasMaskInput string
	OrigImSize   string
	Masks        string
}

// DefaultGraph matches the official ViT-H encoder and decoder exports.
func DefaultGraph() Graph {
	return Graph{
		ImageSize:      1024,
		EmbeddingShape: [3]int64{256, 64, 64},
		LowResMaskSize: 256,
		EncoderInput:   "image",
		EncoderOutput:  "image_embeddings",
		Embeddings:     "image_embeddings",
		PointCoords:    "point_coords",
		PointLabels:    "point_labels",
		MaskInput:      "mask_input",
		HasMaskInput:   "has_mask_input",
		OrigImSize:     "orig_im_size",
		Masks:          "masks",
	}
}

// EncoderNames returns the encoder inputs and outputs.
func (g Graph) EncoderNames() ([]string, []string) {
	return []string{g.EncoderInput}, []string{g.EncoderOutput}
}

// DecoderNames returns the decoder inputs and outputs.
func (g Graph) DecoderNames() ([]string, []string) {
	return []string{g.Embeddings, g.PointCoords, g.PointLabels, g.MaskInput, g.HasMaskInput, g.OrigImSize},
		[]string{g.Masks}
}
