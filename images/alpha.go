package images

import (
	"image"
	"image/color"
	"image/draw"
)

// ToNRGBA returns img as *image.NRGBA, converting only when needed.
func ToNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok {
		return nrgba
	}
	b := img.Bounds()
	dst := image.NewNRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

// Clone copies img into a new RGBA image with the same bounds.
func Clone(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

// ApplyAlpha copies the colour of src and takes the alpha channel from mask,
// so unselected pixels become fully transparent.
//
// Arguments:
//   - src: The source picture.
//   - mask: The selection, expected to share the bounds of src.
//
// Returns:
//   - *image.NRGBA: The background-removed image.
func ApplyAlpha(src image.Image, mask *image.Gray) *image.NRGBA {
	// Copy so the caller's image is never modified.
	b := src.Bounds()
	out := image.NewNRGBA(b)
	draw.Draw(out, b, src, b.Min, draw.Src)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := out.PixOffset(b.Min.X, y)
		for x := b.Min.X; x < b.Max.X; x++ {
			a := MaskOff
			if (image.Point{X: x, Y: y}).In(mask.Bounds()) {
				a = mask.GrayAt(x, y).Y
			}
			out.Pix[row+(x-b.Min.X)*4+3] = a
		}
	}
	return out
}

// Flatten composites src over an opaque background colour.
func Flatten(src image.Image, bg color.Color) *image.RGBA {
	b := src.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, &image.Uniform{C: bg}, image.Point{}, draw.Src)
	draw.Draw(out, b, src, b.Min, draw.Over)
	return out
}

// Overlay blends c over dst wherever mask is on, at the given opacity.
func Overlay(dst draw.Image, mask *image.Gray, c color.Color, opacity uint8) {
	b := mask.Bounds().Intersect(dst.Bounds())
	alpha := image.NewAlpha(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if mask.GrayAt(x, y).Y != MaskOff {
				alpha.SetAlpha(x, y, color.Alpha{A: opacity})
			}
		}
	}
	draw.DrawMask(dst, b, &image.Uniform{C: c}, image.Point{}, alpha, b.Min, draw.Over)
}
