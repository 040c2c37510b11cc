package images

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	// BoxColor is the outline and label colour of annotated detections.
	BoxColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	// MaskColor is the overlay colour of the selected region.
	MaskColor = color.RGBA{R: 30, G: 144, B: 255, A: 255}
)

// Annotation is a labelled region drawn onto a picture.
type Annotation struct {
	Rect  image.Rectangle
	Label string
}

// Annotate draws a translucent mask overlay, then each annotation's box and
// label, onto a copy of src.
//
// Arguments:
//   - src: The source picture, left untouched.
//   - annotations: The boxes and labels to draw.
//   - mask: The region to overlay, or nil for none.
//
// Returns:
//   - image.Image: The annotated copy.
//   - error: An error if the OpenCV drawing fails.
func Annotate(src image.Image, annotations []Annotation, mask *image.Gray) (image.Image, error) {
	canvas := Clone(src)
	if mask != nil {
		Overlay(canvas, mask, MaskColor, 110)
	}
	if len(annotations) == 0 {
		return canvas, nil
	}

	mat, err := gocv.ImageToMatRGBA(canvas)
	if err != nil {
		return nil, fmt.Errorf("converting picture to mat: %w", err)
	}
	defer mat.Close()

	origin := canvas.Bounds().Min
	thickness := max(2, min(canvas.Bounds().Dx(), canvas.Bounds().Dy())/320)
	for _, a := range annotations {
		r := a.Rect.Sub(origin)
		gocv.Rectangle(&mat, r, BoxColor, thickness)
		if a.Label == "" {
			continue
		}
		// Keep the label inside the frame when the box touches the top edge.
		org := image.Pt(r.Min.X+2, max(r.Min.Y-6, 14))
		gocv.PutText(&mat, a.Label, org, gocv.FontHersheySimplex, 0.5, BoxColor, 1)
	}

	out, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("converting mat to picture: %w", err)
	}
	return out, nil
}
