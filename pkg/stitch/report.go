package stitch

import (
	"gonum.org/v1/gonum/stat"
)

// SeamReport describes how one overlap band was resolved.
type SeamReport struct {
	Index           int `yaml:"index"`
	Lo              int `yaml:"lo"`
	Hi              int `yaml:"hi"`
	Claimed         int `yaml:"claimed"`         // left objects crossing the centre line
	Joined          int `yaml:"joined"`          // right ids merged into a left object
	Filled          int `yaml:"filled"`          // fragments recovered with a fresh id
	FilledPixels    int `yaml:"filledPixels"`    // pixels of recovered fragments
	Discarded       int `yaml:"discarded"`       // fragments below the size threshold
	DiscardedPixels int `yaml:"discardedPixels"` // pixels of discarded fragments
	Threshold       int `yaml:"threshold"`
}

func (s *seam) report(threshold int) SeamReport {
	r := SeamReport{
		Index:           s.index,
		Lo:              s.band.lo,
		Hi:              s.band.hi,
		Claimed:         s.claimed,
		Joined:          len(s.joins),
		Filled:          len(s.fills),
		Discarded:       s.discarded,
		DiscardedPixels: s.discardedPixels,
		Threshold:       threshold,
	}
	for _, px := range s.fills {
		r.FilledPixels += len(px)
	}
	return r
}

// Report summarizes one axis run.
type Report struct {
	Axis    string       `yaml:"axis"`
	Strips  int          `yaml:"strips"`
	Offsets []uint32     `yaml:"offsets"`
	Seams   []SeamReport `yaml:"seams"`
	Unified int          `yaml:"unified"` // ids replaced by a joined object's smallest id
	MaxID   uint32       `yaml:"maxID"`
}

// Totals sums the per-seam counters.
func (r Report) Totals() SeamReport {
	var t SeamReport
	t.Index = -1
	for _, s := range r.Seams {
		t.Claimed += s.Claimed
		t.Joined += s.Joined
		t.Filled += s.Filled
		t.FilledPixels += s.FilledPixels
		t.Discarded += s.Discarded
		t.DiscardedPixels += s.DiscardedPixels
		t.Threshold = s.Threshold
	}
	return t
}

// Merge folds the seam counters of other runs into r, as the orchestrator
// does for the rows of pass X.
func (r Report) Merge(others ...Report) Report {
	out := r
	out.Seams = append([]SeamReport(nil), r.Seams...)
	for _, o := range others {
		out.Strips += o.Strips
		out.Unified += o.Unified
		out.Seams = append(out.Seams, o.Seams...)
		out.MaxID = max(out.MaxID, o.MaxID)
	}
	return out
}

// MeanFilledSize is the mean and standard deviation of recovered fragment
// sizes, averaged over seams weighted by their fill count. Both are 0 when
// nothing was filled.
func (r Report) MeanFilledSize() (mean, std float64) {
	var sizes, weights []float64
	for _, s := range r.Seams {
		if s.Filled == 0 {
			continue
		}
		sizes = append(sizes, float64(s.FilledPixels)/float64(s.Filled))
		weights = append(weights, float64(s.Filled))
	}
	if len(sizes) == 0 {
		return 0, 0
	}
	if len(sizes) == 1 {
		return sizes[0], 0
	}
	return stat.MeanStdDev(sizes, weights)
}
