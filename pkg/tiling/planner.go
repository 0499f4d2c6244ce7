// Package tiling computes the padded tile grid that both the tiling step and
// the stitcher agree on.
//
// Each axis is cut at multiples of the tile size. A tile starts pad pixels
// before its cut and ends pad pixels after the next cut, clamped to the
// image, so the first tile has no leading padding and the last tile stops at
// the image edge:
//
//	cut:    0         S         2S        3S   D
//	tile 0: [---------+--)
//	tile 1:         (-+---------+--)
//	tile 2:                   (-+---------+----]
//
// The region of a tile outside every overlap is its core; the overlap between
// tiles k and k+1 is seam k, centred on cut k+1. Cores and seams partition
// [0, D) exactly, which the stitcher relies on.
package tiling

import (
	"fmt"
	"slices"
	"sync"

	flatbush "github.com/bmharper/flatbush-go"

	"tilestitch/internal/models"
	"tilestitch/pkg/config"
	stitcherr "tilestitch/pkg/errors"
)

// Span is the extent of one tile along one axis.
type Span struct {
	Index int // Position of the tile along the axis
	Cut   int // Unpadded grid position, Index*Size
	Start int // First covered pixel, max(0, Cut-Pad)
	End   int // One past the last covered pixel, min(Cut+Size+Pad, Dim)
}

// Len returns the number of pixels covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// AxisPlan is the tiling of one axis.
type AxisPlan struct {
	Dim   int // Image extent along the axis
	Size  int // Unpadded tile size
	Pad   int // Padding on each interior side
	Spans []Span
}

// PlanAxis tiles one axis of length dim.
func PlanAxis(dim, size, pad int) (AxisPlan, error) {
	if dim <= 0 {
		return AxisPlan{}, stitcherr.Configuration("image dimension must be positive, got %d", dim)
	}
	if size <= 0 || pad < 0 {
		return AxisPlan{}, stitcherr.Configuration("invalid tile size %d with padding %d", size, pad)
	}
	if size <= 2*pad {
		return AxisPlan{}, stitcherr.Configuration("tile size %d leaves no interior with padding %d", size, pad)
	}

	a := AxisPlan{Dim: dim, Size: size, Pad: pad}
	for i, cut := 0, 0; cut < dim; i, cut = i+1, cut+size {
		a.Spans = append(a.Spans, Span{
			Index: i,
			Cut:   cut,
			Start: max(0, cut-pad),
			End:   min(cut+size+pad, dim),
		})
	}
	return a, nil
}

// Len returns the number of tiles along the axis.
func (a AxisPlan) Len() int { return len(a.Spans) }

// Core returns the part of tile i that no neighbour overlaps.
func (a AxisPlan) Core(i int) (lo, hi int) {
	lo, hi = 0, a.Dim
	if i > 0 {
		lo = min(a.Spans[i].Cut+a.Pad, a.Dim)
	}
	if i < len(a.Spans)-1 {
		hi = a.Spans[i+1].Cut - a.Pad
	}
	return lo, hi
}

// Seam returns the overlap between tiles i and i+1.
func (a AxisPlan) Seam(i int) (lo, hi int) {
	cut := a.Spans[i+1].Cut
	return cut - a.Pad, min(cut+a.Pad, a.Dim)
}

// Tile is one padded tile of the grid.
type Tile struct {
	Row int
	Col int
	Box models.Box
}

// X0 is the left edge of the tile; together with Y0 it names the tile file.
func (t Tile) X0() int { return t.Box.X0 }

// Y0 is the top edge of the tile.
func (t Tile) Y0() int { return t.Box.Y0 }

func (t Tile) String() string {
	return fmt.Sprintf("tile(%d,%d)%v", t.Row, t.Col, t.Box)
}

// Plan is the full 2-D tile grid of one image.
type Plan struct {
	Width  int
	Height int
	X      AxisPlan
	Y      AxisPlan

	mu    sync.Mutex
	index *flatbush.Flatbush[float64]
}

// NewPlan tiles a width x height image.
func NewPlan(width, height int, t config.Tiling) (*Plan, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	xs, err := PlanAxis(width, t.TileWidth, t.PadX)
	if err != nil {
		return nil, fmt.Errorf("x axis: %w", err)
	}
	ys, err := PlanAxis(height, t.TileHeight, t.PadY)
	if err != nil {
		return nil, fmt.Errorf("y axis: %w", err)
	}

	p := &Plan{Width: width, Height: height, X: xs, Y: ys}

	// Boxes are stored inclusive so that a point query on a shared edge only
	// returns the tiles that really contain the pixel.
	p.index = flatbush.NewFlatbush[float64]()
	p.index.Reserve(xs.Len() * ys.Len())
	for _, tile := range p.Tiles() {
		b := tile.Box
		p.index.Add(float64(b.X0), float64(b.Y0), float64(b.X1-1), float64(b.Y1-1))
	}
	p.index.Finish()

	return p, nil
}

// Rows returns the number of tile rows.
func (p *Plan) Rows() int { return p.Y.Len() }

// Cols returns the number of tile columns.
func (p *Plan) Cols() int { return p.X.Len() }

// Tile returns the tile at grid position (row, col).
func (p *Plan) Tile(row, col int) Tile {
	xs, ys := p.X.Spans[col], p.Y.Spans[row]
	return Tile{
		Row: row,
		Col: col,
		Box: models.Box{X0: xs.Start, Y0: ys.Start, X1: xs.End, Y1: ys.End},
	}
}

// Row returns the tiles of one row, left to right.
func (p *Plan) Row(row int) []Tile {
	tiles := make([]Tile, p.Cols())
	for col := range tiles {
		tiles[col] = p.Tile(row, col)
	}
	return tiles
}

// Tiles returns every tile in row-major order. The order is total and
// deterministic; index i corresponds to row i/Cols, column i%Cols.
func (p *Plan) Tiles() []Tile {
	tiles := make([]Tile, 0, p.Rows()*p.Cols())
	for row := 0; row < p.Rows(); row++ {
		tiles = append(tiles, p.Row(row)...)
	}
	return tiles
}

// TilesAt returns the tiles whose padded box contains pixel (x, y), in
// row-major order. A pixel in a seam belongs to two tiles, one in a seam
// crossing up to four.
func (p *Plan) TilesAt(x, y int) []Tile {
	if x < 0 || y < 0 || x >= p.Width || y >= p.Height {
		return nil
	}
	p.mu.Lock()
	hits := p.index.SearchFast(float64(x), float64(y), float64(x), float64(y), nil)
	p.mu.Unlock()

	tiles := make([]Tile, 0, len(hits))
	slices.Sort(hits)
	for _, i := range hits {
		tiles = append(tiles, p.Tile(i/p.Cols(), i%p.Cols()))
	}
	return tiles
}
