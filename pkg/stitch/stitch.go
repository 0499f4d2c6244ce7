// Package stitch merges an ordered sequence of overlapping label strips along
// one axis into a single strip with globally unique ids.
//
// A run has four steps:
//
//  1. Offsets: strip i's ids are shifted by the sum of the maximum ids of
//     strips 0..i-1, so ids from different strips never collide.
//  2. Placement: each strip's core (the part no neighbour overlaps) is
//     copied into the canvas.
//  3. Seams: each overlap band is resolved from both strips' views by the
//     centre-line ownership rule, then orphaned fragments are recovered or
//     dropped by size.
//  4. Unification: ids the seams found to name one object are collapsed to
//     the smallest of them across the whole canvas.
//
// Offsets are fixed before any pixel is written, so placement and seams run
// concurrently; they touch disjoint parts of the canvas.
package stitch

import (
	"context"
	"fmt"
	"math"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"tilestitch/internal/models"
	stitcherr "tilestitch/pkg/errors"
	"tilestitch/pkg/tiling"
)

// DefaultHoleFillMinPixels is the smallest seam fragment kept as an object.
const DefaultHoleFillMinPixels = 50

// Options controls one axis run.
type Options struct {
	// HoleFillMinPixels is the smallest recovered fragment that gets a new id
	HoleFillMinPixels int

	// NumWorkers bounds concurrent placements and seams; < 1 means 1
	NumWorkers int

	// Logger receives progress and hole-fill decisions; nil uses log.Default()
	Logger *log.Logger
}

func (o Options) withDefaults() Options {
	if o.HoleFillMinPixels < 1 {
		o.HoleFillMinPixels = DefaultHoleFillMinPixels
	}
	if o.NumWorkers < 1 {
		o.NumWorkers = 1
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}

// Result is the merged strip and what happened while building it.
type Result struct {
	Canvas *models.LabelImage
	Report Report
}

// Stitch merges strips laid out along axis according to plan: strip i must
// cover exactly plan.Spans[i] along the axis, and all strips must share the
// same extent across it. The input strips are not modified.
func Stitch(ctx context.Context, axis models.Axis, plan tiling.AxisPlan, strips []*models.LabelImage, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	f := frame{axis: axis}

	across, err := checkGeometry(f, plan, strips)
	if err != nil {
		return nil, err
	}

	offsets, total, err := computeOffsets(strips)
	if err != nil {
		return nil, err
	}

	canvas := f.canvas(plan.Dim, across)
	report := Report{
		Axis:    axis.String(),
		Strips:  len(strips),
		Offsets: offsets,
	}

	// Step 2: cores
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.NumWorkers)
	for i := range strips {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			lo, hi := plan.Core(i)
			if lo >= hi {
				return nil
			}
			b := band{lo: lo, hi: hi, across: across}
			f.store(canvas, b, f.extract(strips[i], plan.Spans[i].Start, b, offsets[i]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Step 3: seams
	var bands []band
	var seamIdx []int
	for k := 0; k+1 < len(strips); k++ {
		lo, hi := plan.Seam(k)
		if lo >= hi {
			continue
		}
		bands = append(bands, band{lo: lo, hi: hi, across: across})
		seamIdx = append(seamIdx, k)
	}

	seams := make([]*seam, len(bands))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(opts.NumWorkers)
	for j, b := range bands {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			k := seamIdx[j]
			s := newSeam(k, b,
				f.extract(strips[k], plan.Spans[k].Start, b, offsets[k]),
				f.extract(strips[k+1], plan.Spans[k+1].Start, b, offsets[k+1]))
			s.resolve()
			s.fillHoles(opts.HoleFillMinPixels)
			opts.Logger.Debug("resolved seam",
				"axis", axis, "seam", k, "band", fmt.Sprintf("[%d,%d)", b.lo, b.hi),
				"claimed", s.claimed, "joined", len(s.joins), "filled", len(s.fills), "discarded", s.discarded)
			seams[j] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Fresh ids for recovered fragments are handed out after every offset
	// range, in seam order, so the result does not depend on scheduling.
	next := uint64(total) + 1
	var joins [][2]uint32
	for _, s := range seams {
		for _, px := range s.fills {
			if next > math.MaxUint32 {
				return nil, stitcherr.New(stitcherr.ErrCodeInternal, "label id space exhausted while filling seam %d", s.index)
			}
			for _, i := range px {
				s.out[i] = uint32(next)
			}
			next++
		}
		f.store(canvas, s.band, s.out)
		joins = append(joins, s.joins...)
		report.Seams = append(report.Seams, s.report(opts.HoleFillMinPixels))

		for _, size := range s.discardedSizes {
			opts.Logger.Debug("discarded seam fragment",
				"axis", axis, "seam", s.index, "pixels", size, "threshold", opts.HoleFillMinPixels)
		}
	}

	// Step 4: one id per object
	report.Unified = unify(canvas, joins)
	report.MaxID = canvas.Max()

	return &Result{Canvas: canvas, Report: report}, nil
}

func checkGeometry(f frame, plan tiling.AxisPlan, strips []*models.LabelImage) (int, error) {
	if len(strips) == 0 {
		return 0, stitcherr.GeometryMismatch("no strips to stitch")
	}
	if len(strips) != plan.Len() {
		return 0, stitcherr.GeometryMismatch("got %d strips, plan has %d", len(strips), plan.Len())
	}
	for i, m := range strips {
		if m == nil {
			return 0, stitcherr.GeometryMismatch("strip %d is missing", i)
		}
	}
	_, across := f.dims(strips[0])
	for i, m := range strips {
		along, c := f.dims(m)
		if c != across {
			return 0, stitcherr.GeometryMismatch("strip %d is %d pixels across, strip 0 is %d", i, c, across)
		}
		if want := plan.Spans[i].Len(); along != want {
			return 0, stitcherr.GeometryMismatch("strip %d is %d pixels along the axis, plan expects %d", i, along, want)
		}
	}
	return across, nil
}

// computeOffsets returns, per strip, the sum of the maximum ids of all
// earlier strips, plus the sum over all strips.
func computeOffsets(strips []*models.LabelImage) ([]uint32, uint32, error) {
	offsets := make([]uint32, len(strips))
	var sum uint64
	for i, m := range strips {
		offsets[i] = uint32(sum)
		sum += uint64(m.Max())
		if sum > math.MaxUint32 {
			return nil, 0, stitcherr.New(stitcherr.ErrCodeInternal, "label id space exhausted at strip %d", i)
		}
	}
	return offsets, uint32(sum), nil
}

// unify collapses every group of joined ids to its smallest member and
// returns how many ids were replaced.
func unify(canvas *models.LabelImage, joins [][2]uint32) int {
	if len(joins) == 0 {
		return 0
	}
	g := simple.NewUndirectedGraph()
	for _, j := range joins {
		if j[0] == j[1] {
			continue
		}
		// SetEdge adds missing nodes
		g.SetEdge(g.NewEdge(simple.Node(int64(j[0])), simple.Node(int64(j[1]))))
	}

	remap := make(map[uint32]uint32)
	for _, comp := range topo.ConnectedComponents(g) {
		root := comp[0].ID()
		for _, n := range comp[1:] {
			root = min(root, n.ID())
		}
		for _, n := range comp {
			if n.ID() != root {
				remap[uint32(n.ID())] = uint32(root)
			}
		}
	}

	for i, v := range canvas.Pix {
		if v == 0 {
			continue
		}
		if to, ok := remap[v]; ok {
			canvas.Pix[i] = to
		}
	}
	return len(remap)
}
