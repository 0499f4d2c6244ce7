package stitch

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// fillHoles recovers fragments the ownership rule left as background.
//
// The candidate region is every band pixel still background in the resolved
// band but labeled on either side. Neighbouring candidates (4-connected) are
// joined when they carry the same left id or the same right id, which groups
// each orphaned footprint into one component. A component is a fragment
// only if it contains a seed: a pixel claimed by neither mask and labeled on
// both sides. Fragments of at least minPixels pixels are kept for fresh ids;
// smaller ones are dropped and counted.
func (s *seam) fillHoles(minPixels int) {
	b := s.band
	n := b.size()

	g := simple.NewUndirectedGraph()
	cand := make([]bool, n)
	for i := 0; i < n; i++ {
		if s.out[i] == 0 && (s.left[i] != 0 || s.right[i] != 0) {
			cand[i] = true
			g.AddNode(simple.Node(int64(i)))
		}
	}
	if g.Nodes().Len() == 0 {
		return
	}

	sameObject := func(i, j int) bool {
		return (s.left[i] != 0 && s.left[i] == s.left[j]) ||
			(s.right[i] != 0 && s.right[i] == s.right[j])
	}
	for i := 0; i < n; i++ {
		if !cand[i] {
			continue
		}
		// next pixel across, then next pixel along
		if c := i % b.across; c+1 < b.across && cand[i+1] && sameObject(i, i+1) {
			g.SetEdge(g.NewEdge(simple.Node(int64(i)), simple.Node(int64(i+1))))
		}
		if j := i + b.across; j < n && cand[j] && sameObject(i, j) {
			g.SetEdge(g.NewEdge(simple.Node(int64(i)), simple.Node(int64(j))))
		}
	}

	seed := func(i int) bool {
		return !s.lmask[i] && !s.rmask[i] && s.left[i] != 0 && s.right[i] != 0
	}

	var fragments [][]int
	for _, comp := range topo.ConnectedComponents(g) {
		px := make([]int, 0, len(comp))
		seeded := false
		for _, node := range comp {
			i := int(node.ID())
			px = append(px, i)
			seeded = seeded || seed(i)
		}
		if !seeded {
			continue
		}
		slices.Sort(px)
		fragments = append(fragments, px)
	}

	// scan order of each fragment's first pixel
	slices.SortFunc(fragments, func(p, q []int) int { return cmp.Compare(p[0], q[0]) })

	for _, px := range fragments {
		if len(px) >= minPixels {
			s.fills = append(s.fills, px)
			continue
		}
		s.discarded++
		s.discardedPixels += len(px)
		s.discardedSizes = append(s.discardedSizes, len(px))
	}
}
