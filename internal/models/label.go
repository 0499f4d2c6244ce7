package models

import (
	"fmt"
)

// LabelImage is a 2-D grid of object-instance ids stored in row-major order.
// Id 0 is background; every other value names one object within the image.
type LabelImage struct {
	// Pix holds Width*Height labels, row by row
	Pix []uint32

	// Width is the number of columns
	Width int

	// Height is the number of rows
	Height int
}

// NewLabelImage allocates a zeroed (all background) label image.
func NewLabelImage(width, height int) *LabelImage {
	return &LabelImage{
		Pix:    make([]uint32, width*height),
		Width:  width,
		Height: height,
	}
}

// At returns the label at column x, row y.
func (m *LabelImage) At(x, y int) uint32 {
	return m.Pix[y*m.Width+x]
}

// Set stores label v at column x, row y.
func (m *LabelImage) Set(x, y int, v uint32) {
	m.Pix[y*m.Width+x] = v
}

// Max returns the largest label in the image, 0 for an empty image.
func (m *LabelImage) Max() uint32 {
	var hi uint32
	for _, v := range m.Pix {
		if v > hi {
			hi = v
		}
	}
	return hi
}

// Crop copies the rectangle b into a new image.
func (m *LabelImage) Crop(b Box) (*LabelImage, error) {
	if b.X0 < 0 || b.Y0 < 0 || b.X1 > m.Width || b.Y1 > m.Height || b.X0 > b.X1 || b.Y0 > b.Y1 {
		return nil, fmt.Errorf("crop %v outside %dx%d image", b, m.Width, m.Height)
	}
	out := NewLabelImage(b.Dx(), b.Dy())
	for y := b.Y0; y < b.Y1; y++ {
		copy(out.Pix[(y-b.Y0)*out.Width:(y-b.Y0+1)*out.Width], m.Pix[y*m.Width+b.X0:y*m.Width+b.X1])
	}
	return out, nil
}

// Axis selects the direction along which strips are laid out and stitched.
type Axis int

const (
	// AxisX stitches tiles left to right (columns of one row of tiles)
	AxisX Axis = iota
	// AxisY stitches row strips top to bottom
	AxisY
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	}
	return fmt.Sprintf("Axis(%d)", int(a))
}

// Box is a half-open pixel rectangle [X0,X1) x [Y0,Y1) in image coordinates.
type Box struct {
	X0, Y0, X1, Y1 int
}

// Dx returns the width of the box.
func (b Box) Dx() int { return b.X1 - b.X0 }

// Dy returns the height of the box.
func (b Box) Dy() int { return b.Y1 - b.Y0 }

// Contains reports whether pixel (x, y) lies inside the box.
func (b Box) Contains(x, y int) bool {
	return x >= b.X0 && x < b.X1 && y >= b.Y0 && y < b.Y1
}

func (b Box) String() string {
	return fmt.Sprintf("[%d,%d)-[%d,%d)", b.X0, b.Y0, b.X1, b.Y1)
}
