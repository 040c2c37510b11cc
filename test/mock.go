// Package test - Deterministic pictures and fake models for tests.
package test

import (
	"image"
	"image/color"
	"image/draw"
)

// Colours of the synthetic scene.
var (
	BackgroundColor = color.RGBA{R: 235, G: 235, B: 230, A: 255}
	SkinColor       = color.RGBA{R: 224, G: 172, B: 105, A: 255}
	JacketColor     = color.RGBA{R: 40, G: 60, B: 120, A: 255}
	ShirtColor      = color.RGBA{R: 250, G: 250, B: 250, A: 255}
	TrousersColor   = color.RGBA{R: 60, G: 60, B: 60, A: 255}
)

// Scene is a synthetic picture of a person wearing an open jacket over a
// shirt, with the region of every garment.
type Scene struct {
	Image  *image.RGBA
	Person image.Rectangle
	Head   image.Rectangle
	Jacket image.Rectangle
	Shirt  image.Rectangle
	Legs   image.Rectangle
}

// MockPictureGenerator creates deterministic test pictures.
//
// @example
// gen := NewMockPictureGenerator(320, 480)
// scene := gen.GeneratePerson()
type MockPictureGenerator struct {
	width  int
	height int
}

// NewMockPictureGenerator creates a generator for pictures of the given size.
//
// Arguments:
// - width: Picture width in pixels.
// - height: Picture height in pixels.
//
// Returns:
// - A configured MockPictureGenerator instance.
func NewMockPictureGenerator(width, height int) *MockPictureGenerator {
	return &MockPictureGenerator{width: width, height: height}
}

// GenerateBackground creates a plain picture with nothing to detect.
func (g *MockPictureGenerator) GenerateBackground() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, g.width, g.height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: BackgroundColor}, image.Point{}, draw.Src)
	return img
}

// GeneratePerson creates a standing person centred in the picture. The shirt
// lies inside the jacket region, so removing it leaves the jacket panels.
func (g *MockPictureGenerator) GeneratePerson() *Scene {
	img := g.GenerateBackground()
	w, h := g.width, g.height
	cx := w / 2

	s := &Scene{
		Image:  img,
		Head:   image.Rect(cx-w/10, h/20, cx+w/10, h/5),
		Jacket: image.Rect(cx-w/4, h/5, cx+w/4, h*11/20),
		Legs:   image.Rect(cx-w/6, h*11/20, cx+w/6, h*19/20),
	}
	s.Shirt = image.Rect(cx-w/16, s.Jacket.Min.Y, cx+w/16, s.Jacket.Max.Y)
	s.Person = s.Head.Union(s.Jacket).Union(s.Legs)

	fill := func(r image.Rectangle, c color.Color) {
		draw.Draw(img, r, &image.Uniform{C: c}, image.Point{}, draw.Src)
	}
	fill(s.Head, SkinColor)
	fill(s.Jacket, JacketColor)
	fill(s.Shirt, ShirtColor)
	fill(s.Legs, TrousersColor)
	return s
}
