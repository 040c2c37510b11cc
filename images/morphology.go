// Package images - This file contains the mask boundary adjustment using
// OpenCV (via gocv).
//
// Pipeline Overview:
//
// ┌──────────────────┐
// │ Binary mask      │
// └──────┬───────────┘
// ┌────────────────────────────────────────────┐
// │ Morphology (erode < 0 < dilate, |f| x |f|) │
// └──────┬─────────────────────────────────────┘
// ┌────────────────────────────┐
// │ Thresholding (binary mask) │
// └──────┬─────────────────────┘
// ┌────────────────────────────┐
// │ Adjusted mask output       │
// └────────────────────────────┘
package images

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// AdjustMask grows or shrinks the selected region of mask.
//
// A negative factor erodes and a positive factor dilates, using a square
// structuring element whose side is the absolute factor. A factor of 0 (or
// ±1, whose kernel is a single pixel) only re-binarizes the mask. The side is
// capped at 2*max(width, height)+1: any larger kernel already covers the
// whole mask from every pixel, so the result is the same.
//
// Arguments:
//   - mask: The binary mask to adjust.
//   - factor: The signed adjustment factor.
//
// Returns:
//   - *image.Gray: A new two-valued mask with the bounds of the input.
//   - error: An error if an OpenCV operation fails.
func AdjustMask(mask *image.Gray, factor int) (*image.Gray, error) {
	b := mask.Bounds()
	limit := 2*max(b.Dx(), b.Dy()) + 1

	var size int
	switch {
	case factor < -limit || factor > limit:
		size = limit
	case factor < 0:
		size = -factor
	default:
		size = factor
	}
	if size <= 1 {
		return Binarize(mask, 127), nil
	}

	src, err := gocv.ImageGrayToMatGray(mask)
	if err != nil {
		return nil, fmt.Errorf("converting mask to mat: %w", err)
	}
	defer src.Close()

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(size, size))
	defer kernel.Close()

	dst := gocv.NewMat()
	defer dst.Close()

	if factor < 0 {
		if err := gocv.Erode(src, &dst, kernel); err != nil {
			return nil, fmt.Errorf("eroding mask: %w", err)
		}
	} else {
		if err := gocv.Dilate(src, &dst, kernel); err != nil {
			return nil, fmt.Errorf("dilating mask: %w", err)
		}
	}

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(dst, &binary, 127, 255, gocv.ThresholdBinary)

	out, err := binary.ToImage()
	if err != nil {
		return nil, fmt.Errorf("converting mat to mask: %w", err)
	}

	// Mats always start at the origin; put the result back on the input bounds.
	adjusted := Binarize(out, 127)
	adjusted.Rect = adjusted.Rect.Add(mask.Bounds().Min)
	return adjusted, nil
}
