package preprocess

import (
	"image"
	"image/draw"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	xdraw "golang.org/x/image/draw"
)

// NormalizationType defines how pixel values are normalized.
type NormalizationType int

const (
	// NormalizeNone keeps pixel values as 0-255.
	NormalizeNone NormalizationType = iota
	// NormalizeZeroToOne scales pixel values to [0, 1].
	NormalizeZeroToOne
	// NormalizeStandardize scales to [0, 1], then applies mean and std.
	NormalizeStandardize
	// NormalizeStandardizeRaw applies mean and std on 0-255 values.
	NormalizeStandardizeRaw
)

// ResizeMode defines how the source is fitted into the model input.
type ResizeMode int

const (
	// ResizeStretch scales both axes independently to the input size.
	ResizeStretch ResizeMode = iota
	// ResizeLongestSide scales the longest side to the input size, keeps the
	// aspect ratio and zero-pads the bottom and right edges.
	ResizeLongestSide
)

// ModelConfig defines preprocessing configuration for a specific model.
type ModelConfig struct {
	// Name of the model for debugging purposes.
	Name string
	// InputWidth is the expected width of the model input.
	InputWidth int
	// InputHeight is the expected height of the model input.
	InputHeight int
	// NormalizationType defines how to normalize pixel values.
	NormalizationType NormalizationType
	// MeanValues for standardization, one per RGB channel.
	MeanValues [3]float32
	// StdValues for standardization, one per RGB channel.
	StdValues [3]float32
	// ResizeMode defines how the picture is fitted to the input.
	ResizeMode ResizeMode
}

// Result is a CHW float32 tensor and the geometry needed to map model
// coordinates back onto the source picture.
type Result struct {
	// Tensor is laid out as [3, InputHeight, InputWidth].
	Tensor []float32
	// ScaleX and ScaleY map source pixels onto input pixels.
	ScaleX, ScaleY float64
	// ResizedWidth and ResizedHeight are the picture extent inside the input,
	// smaller than the input only when padding was applied.
	ResizedWidth, ResizedHeight int
}

// GetGroundingDINOConfig returns the detector configuration: a plain stretch
// to the exported input size with ImageNet statistics.
func GetGroundingDINOConfig(width, height int, mean, std [3]float32) *ModelConfig {
	return &ModelConfig{
		Name:              "groundingdino",
		InputWidth:        width,
		InputHeight:       height,
		NormalizationType: NormalizeStandardize,
		MeanValues:        mean,
		StdValues:         std,
		ResizeMode:        ResizeStretch,
	}
}

// GetSAMConfig returns the segmenter encoder configuration.
//
// Arguments:
// - size: The encoder input side, 1024 for every published SAM checkpoint.
//
// Returns:
// - A configured ModelConfig for SAM.
func GetSAMConfig(size int) *ModelConfig {
	return &ModelConfig{
		Name:              "sam",
		InputWidth:        size,
		InputHeight:       size,
		NormalizationType: NormalizeStandardizeRaw,
		MeanValues:        [3]float32{123.675, 116.28, 103.53},
		StdValues:         [3]float32{58.395, 57.12, 57.375},
		ResizeMode:        ResizeLongestSide,
	}
}

// Preprocess resizes img and converts it into a normalized CHW tensor.
//
// Arguments:
// - config: The model preprocessing configuration.
// - img: The source picture.
//
// Returns:
// - *Result: The tensor and its geometry.
// - error: An error if the configuration or the picture is unusable.
func Preprocess(config *ModelConfig, img image.Image) (*Result, error) {
	if config.InputWidth <= 0 || config.InputHeight <= 0 {
		return nil, errors.Errorf("invalid input size %dx%d for %s", config.InputWidth, config.InputHeight, config.Name)
	}
	if img == nil {
		return nil, errors.New("image is nil")
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, errors.New("image is empty")
	}

	var (
		fitted image.Image
		result = &Result{}
	)
	switch config.ResizeMode {
	case ResizeStretch:
		// Lanczos3 matches the reference PIL resize closely enough for detection.
		fitted = resize.Resize(uint(config.InputWidth), uint(config.InputHeight), img, resize.Lanczos3)
		result.ScaleX = float64(config.InputWidth) / float64(b.Dx())
		result.ScaleY = float64(config.InputHeight) / float64(b.Dy())
		result.ResizedWidth, result.ResizedHeight = config.InputWidth, config.InputHeight
	case ResizeLongestSide:
		w, h, scale := LongestSideSize(b.Dx(), b.Dy(), max(config.InputWidth, config.InputHeight))
		canvas := image.NewRGBA(image.Rect(0, 0, config.InputWidth, config.InputHeight))
		xdraw.BiLinear.Scale(canvas, image.Rect(0, 0, w, h), img, b, draw.Src, nil)
		fitted = canvas
		result.ScaleX, result.ScaleY = scale, scale
		result.ResizedWidth, result.ResizedHeight = w, h
	default:
		return nil, errors.Errorf("unsupported resize mode %d", config.ResizeMode)
	}

	result.Tensor = imageToTensor(config, fitted, result.ResizedWidth, result.ResizedHeight)
	return result, nil
}

// LongestSideSize returns the size of a w x h picture whose longest side is
// scaled to target, and the scale applied.
func LongestSideSize(w, h, target int) (int, int, float64) {
	scale := float64(target) / float64(max(w, h))
	nw := int(float64(w)*scale + 0.5)
	nh := int(float64(h)*scale + 0.5)
	return nw, nh, scale
}

// imageToTensor converts the fitted picture into a CHW tensor. Pixels outside
// the resized extent are padding and stay 0 after normalization.
func imageToTensor(config *ModelConfig, img image.Image, validW, validH int) []float32 {
	width, height := config.InputWidth, config.InputHeight
	plane := width * height
	tensor := make([]float32, plane*3)

	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(image.Rect(0, 0, width, height))
		draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	}

	for y := 0; y < validH; y++ {
		row := rgba.PixOffset(0, y)
		for x := 0; x < validW; x++ {
			px := rgba.Pix[row+x*4 : row+x*4+3]
			for c := 0; c < 3; c++ {
				tensor[c*plane+y*width+x] = normalize(config, c, float32(px[c]))
			}
		}
	}
	return tensor
}

func normalize(config *ModelConfig, c int, v float32) float32 {
	switch config.NormalizationType {
	case NormalizeZeroToOne:
		return v / 255.0
	case NormalizeStandardize:
		return (v/255.0 - config.MeanValues[c]) / config.StdValues[c]
	case NormalizeStandardizeRaw:
		return (v - config.MeanValues[c]) / config.StdValues[c]
	default:
		return v
	}
}
