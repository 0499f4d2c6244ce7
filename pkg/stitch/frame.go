package stitch

import "tilestitch/internal/models"

// frame maps (along, across) strip coordinates onto row-major label images
// so that one implementation serves both stitching directions. Along is the
// stitching axis, across the axis every strip shares.
type frame struct {
	axis models.Axis
}

func (f frame) dims(m *models.LabelImage) (along, across int) {
	if f.axis == models.AxisX {
		return m.Width, m.Height
	}
	return m.Height, m.Width
}

func (f frame) index(m *models.LabelImage, a, c int) int {
	if f.axis == models.AxisX {
		return c*m.Width + a
	}
	return a*m.Width + c
}

func (f frame) canvas(along, across int) *models.LabelImage {
	if f.axis == models.AxisX {
		return models.NewLabelImage(along, across)
	}
	return models.NewLabelImage(across, along)
}

// band is a window [lo, hi) along the axis, stored along-major:
// pixel (a, c) lives at a*across + c.
type band struct {
	lo, hi int
	across int
}

func (b band) width() int { return b.hi - b.lo }

func (b band) size() int { return b.width() * b.across }

// extract copies the band out of strip m, whose first pixel along the axis
// sits at start, adding offset to every non-zero id.
func (f frame) extract(m *models.LabelImage, start int, b band, offset uint32) []uint32 {
	out := make([]uint32, b.size())
	for a := 0; a < b.width(); a++ {
		for c := 0; c < b.across; c++ {
			if v := m.Pix[f.index(m, b.lo-start+a, c)]; v != 0 {
				out[a*b.across+c] = v + offset
			}
		}
	}
	return out
}

// store writes band values into the canvas.
func (f frame) store(canvas *models.LabelImage, b band, vals []uint32) {
	for a := 0; a < b.width(); a++ {
		for c := 0; c < b.across; c++ {
			canvas.Pix[f.index(canvas, b.lo+a, c)] = vals[a*b.across+c]
		}
	}
}
