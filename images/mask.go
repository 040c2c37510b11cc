package images

import (
	"image"
	"image/color"
	"image/draw"
)

const (
	// MaskOn is the value of a selected mask pixel.
	MaskOn uint8 = 255
	// MaskOff is the value of an unselected mask pixel.
	MaskOff uint8 = 0
)

// NewMask returns an all-off mask covering r.
func NewMask(r image.Rectangle) *image.Gray {
	return image.NewGray(r)
}

// Binarize maps every pixel of src with luminance above threshold to MaskOn
// and every other pixel to MaskOff.
//
// Arguments:
//   - src: Any image; it is converted to grayscale first.
//   - threshold: Luminance values strictly greater than this are selected.
//
// Returns:
//   - *image.Gray: A two-valued mask with the bounds of src.
func Binarize(src image.Image, threshold uint8) *image.Gray {
	b := src.Bounds()
	gray, ok := src.(*image.Gray)
	if !ok {
		gray = image.NewGray(b)
		draw.Draw(gray, b, src, b.Min, draw.Src)
	}

	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		si := gray.PixOffset(b.Min.X, y)
		di := out.PixOffset(b.Min.X, y)
		for x := 0; x < b.Dx(); x++ {
			if gray.Pix[si+x] > threshold {
				out.Pix[di+x] = MaskOn
			}
		}
	}
	return out
}

// Invert returns the pixel-wise complement of m.
func Invert(m *image.Gray) *image.Gray {
	b := m.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		si := m.PixOffset(b.Min.X, y)
		di := out.PixOffset(b.Min.X, y)
		for x := 0; x < b.Dx(); x++ {
			out.Pix[di+x] = 255 - m.Pix[si+x]
		}
	}
	return out
}

// Union sets every pixel of dst that is on in src. Pixels of src outside the
// bounds of dst are ignored.
func Union(dst, src *image.Gray) {
	combine(dst, src, func(d, s uint8) uint8 {
		if s != MaskOff {
			return MaskOn
		}
		return d
	})
}

// Subtract clears every pixel of dst that is on in src.
func Subtract(dst, src *image.Gray) {
	combine(dst, src, func(d, s uint8) uint8 {
		if s != MaskOff {
			return MaskOff
		}
		return d
	})
}

func combine(dst, src *image.Gray, fn func(d, s uint8) uint8) {
	r := dst.Bounds().Intersect(src.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		di := dst.PixOffset(r.Min.X, y)
		si := src.PixOffset(r.Min.X, y)
		for x := 0; x < r.Dx(); x++ {
			dst.Pix[di+x] = fn(dst.Pix[di+x], src.Pix[si+x])
		}
	}
}

// IsBinary reports whether every pixel of m is MaskOn or MaskOff.
func IsBinary(m *image.Gray) bool {
	b := m.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		i := m.PixOffset(b.Min.X, y)
		for _, v := range m.Pix[i : i+b.Dx()] {
			if v != MaskOn && v != MaskOff {
				return false
			}
		}
	}
	return true
}

// Coverage returns the fraction of pixels that are on.
func Coverage(m *image.Gray) float64 {
	b := m.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}
	on := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		i := m.PixOffset(b.Min.X, y)
		for _, v := range m.Pix[i : i+b.Dx()] {
			if v != MaskOff {
				on++
			}
		}
	}
	return float64(on) / float64(total)
}

// FillRect turns on every pixel of m inside r.
func FillRect(m *image.Gray, r image.Rectangle) {
	draw.Draw(m, r.Intersect(m.Bounds()), &image.Uniform{C: color.Gray{Y: MaskOn}}, image.Point{}, draw.Src)
}
