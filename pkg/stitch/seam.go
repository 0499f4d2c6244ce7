package stitch

// seam is the overlap band between strips k and k+1 once both have been
// offset. left and right hold the same canvas pixels as seen by each strip.
type seam struct {
	index int
	band  band
	left  []uint32
	right []uint32

	// resolved band contents and the pixels each side claimed
	out   []uint32
	lmask []bool
	rmask []bool

	claimed int         // left ids crossing the centre line
	joins   [][2]uint32 // (left id, right id) pairs naming one object
	fills   [][]int     // recovered fragments, as band pixel indices

	discarded       int
	discardedPixels int
	discardedSizes  []int
}

func newSeam(index int, b band, left, right []uint32) *seam {
	n := b.size()
	return &seam{
		index: index,
		band:  b,
		left:  left,
		right: right,
		out:   make([]uint32, n),
		lmask: make([]bool, n),
		rmask: make([]bool, n),
	}
}

// centreIDs collects the non-zero ids on the band's centre line.
func centreIDs(vals []uint32, b band) map[uint32]struct{} {
	ids := make(map[uint32]struct{})
	mid := b.width() / 2
	for c := 0; c < b.across; c++ {
		if v := vals[mid*b.across+c]; v != 0 {
			ids[v] = struct{}{}
		}
	}
	return ids
}

// resolve applies the ownership rule. An object crossing the centre line in
// the left strip keeps its left footprint across the whole band. The right
// strip owns the rest of the far half, except for objects that cross the
// centre line in the right strip or that match a claimed left object; those
// are ceded to the left side.
//
// A right object matches a claimed left object when their shared pixels are
// a majority of both footprints. Objects that only touch the claimed
// footprint, as a neighbour drawn a few pixels wider by the right tile's
// labeler would, keep their own id.
func (s *seam) resolve() {
	b := s.band
	mid := b.width() / 2

	leftIDs := centreIDs(s.left, b)
	s.claimed = len(leftIDs)

	overlap := make([]bool, len(s.left))
	for i, v := range s.left {
		if v == 0 {
			continue
		}
		if _, ok := leftIDs[v]; ok {
			overlap[i] = true
		}
	}

	matched := s.match(overlap)
	ceded := centreIDs(s.right, b)
	for r := range matched {
		ceded[r] = struct{}{}
	}

	for i := range s.out {
		a := i / b.across
		s.lmask[i] = a < mid || overlap[i]
		if a >= mid && !overlap[i] {
			_, isCeded := ceded[s.right[i]]
			s.rmask[i] = !isCeded
		}

		if s.lmask[i] {
			s.out[i] = s.left[i]
		}
		if s.rmask[i] {
			s.out[i] = s.right[i]
		}
	}

	s.joins = make([][2]uint32, 0, len(matched))
	for r, l := range matched {
		s.joins = append(s.joins, [2]uint32{l, r})
	}
}

// match pairs right ids with the claimed left id they share most pixels
// with, keeping only pairs whose shared area is more than half of each
// footprint in the band. Ties go to the smaller left id.
func (s *seam) match(overlap []bool) map[uint32]uint32 {
	rsize := make(map[uint32]int)
	lsize := make(map[uint32]int)
	shared := make(map[[2]uint32]int)
	for i, r := range s.right {
		if r != 0 {
			rsize[r]++
		}
		if !overlap[i] {
			continue
		}
		l := s.left[i]
		lsize[l]++
		if r != 0 {
			shared[[2]uint32{r, l}]++
		}
	}

	type pick struct {
		left uint32
		n    int
	}
	best := make(map[uint32]pick)
	for k, n := range shared {
		r, l := k[0], k[1]
		cur, ok := best[r]
		if !ok || n > cur.n || (n == cur.n && l < cur.left) {
			best[r] = pick{left: l, n: n}
		}
	}

	matched := make(map[uint32]uint32)
	for r, p := range best {
		if 2*p.n > rsize[r] && 2*p.n > lsize[p.left] {
			matched[r] = p.left
		}
	}
	return matched
}
