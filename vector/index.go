package vector

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"
)

const (
	maxBands     = 1 << 16
	maxGridCells = 1 << 22
)

type segment struct {
	a, b r2.Vec
}

func (s segment) bounds() (lo, hi r2.Vec) {
	lo = r2.Vec{X: math.Min(s.a.X, s.b.X), Y: math.Min(s.a.Y, s.b.Y)}
	hi = r2.Vec{X: math.Max(s.a.X, s.b.X), Y: math.Max(s.a.Y, s.b.Y)}
	return
}

func ringSegments(r Ring) []segment {
	n := len(r)
	segs := make([]segment, 0, n)
	for i := 0; i < n; i++ {
		segs = append(segs, segment{r[i], r[(i+1)%n]})
	}
	return segs
}

// bandIndex 沿某一坐标轴将线段分带，用于射线求交
type bandIndex struct {
	lo, h float64
	bands [][]int32
}

func newBandIndex(segs []segment, axis func(r2.Vec) float64) *bandIndex {
	ix := &bandIndex{lo: math.Inf(1)}
	hi := math.Inf(-1)
	for _, s := range segs {
		ix.lo = math.Min(ix.lo, math.Min(axis(s.a), axis(s.b)))
		hi = math.Max(hi, math.Max(axis(s.a), axis(s.b)))
	}
	n := len(segs) / 2
	if n < 1 {
		n = 1
	} else if n > maxBands {
		n = maxBands
	}
	ix.bands = make([][]int32, n)
	ix.h = (hi - ix.lo) / float64(n)
	if !(ix.h > 0) {
		ix.h = 1
	}
	for i, s := range segs {
		b0 := ix.band(math.Min(axis(s.a), axis(s.b)))
		b1 := ix.band(math.Max(axis(s.a), axis(s.b)))
		for b := b0; b <= b1; b++ {
			ix.bands[b] = append(ix.bands[b], int32(i))
		}
	}
	return ix
}

func (ix *bandIndex) band(v float64) int {
	b := int((v - ix.lo) / ix.h)
	if b < 0 {
		return 0
	}
	if b >= len(ix.bands) {
		return len(ix.bands) - 1
	}
	return b
}

func (ix *bandIndex) candidates(v float64) []int32 {
	return ix.bands[ix.band(v)]
}

func axisX(v r2.Vec) float64 { return v.X }
func axisY(v r2.Vec) float64 { return v.Y }

// ringIndex 支持大环的快速点面关系判断
type ringIndex struct {
	segs []segment
	ix   *bandIndex
}

func newRingIndex(r Ring) *ringIndex {
	segs := ringSegments(r)
	return &ringIndex{segs: segs, ix: newBandIndex(segs, axisY)}
}

// 点与环的关系：1在内，0在边上，-1在外
func (ri *ringIndex) locate(p r2.Vec) int {
	return locateIn(p, ri.segs, ri.ix.candidates(p.Y))
}

func pointInRing(p r2.Vec, r Ring) int {
	segs := ringSegments(r)
	ids := make([]int32, len(segs))
	for i := range ids {
		ids[i] = int32(i)
	}
	return locateIn(p, segs, ids)
}

func locateIn(p r2.Vec, segs []segment, ids []int32) int {
	inside := false
	for _, i := range ids {
		s := segs[i]
		if onSegment(p, s) {
			return 0
		}
		a, b := s.a, s.b
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := a.X + (p.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
			if x > p.X {
				inside = !inside
			}
		}
	}
	if inside {
		return 1
	}
	return -1
}

func onSegment(p r2.Vec, s segment) bool {
	if r2.Cross(r2.Sub(s.b, s.a), r2.Sub(p, s.a)) != 0 {
		return false
	}
	lo, hi := s.bounds()
	return p.X >= lo.X && p.X <= hi.X && p.Y >= lo.Y && p.Y <= hi.Y
}

// segmentGrid 为线段的均匀网格哈希，用于求交候选对
type segmentGrid struct {
	min    r2.Vec
	cell   float64
	nx, ny int64
	segs   []segment
	cells  map[int64][]int32
}

func newSegmentGrid(segs []segment) *segmentGrid {
	g := &segmentGrid{segs: segs, cells: map[int64][]int32{}}
	if len(segs) == 0 {
		return g
	}
	lo := r2.Vec{X: math.Inf(1), Y: math.Inf(1)}
	hi := r2.Vec{X: math.Inf(-1), Y: math.Inf(-1)}
	var total float64
	for _, s := range segs {
		l, h := s.bounds()
		lo.X, lo.Y = math.Min(lo.X, l.X), math.Min(lo.Y, l.Y)
		hi.X, hi.Y = math.Max(hi.X, h.X), math.Max(hi.Y, h.Y)
		total += r2.Norm(r2.Sub(s.b, s.a))
	}
	g.min = lo
	g.cell = 2 * total / float64(len(segs))
	w, h := hi.X-lo.X, hi.Y-lo.Y
	if c := math.Sqrt(w * h / maxGridCells); c > g.cell {
		g.cell = c
	}
	if c := math.Max(w, h) / maxBands; c > g.cell {
		g.cell = c
	}
	if !(g.cell > 0) {
		g.cell = 1
	}
	g.nx = int64(w/g.cell) + 1
	g.ny = int64(h/g.cell) + 1
	for i, s := range segs {
		x0, y0, x1, y1 := g.span(s)
		for cy := y0; cy <= y1; cy++ {
			for cx := x0; cx <= x1; cx++ {
				k := cy*g.nx + cx
				g.cells[k] = append(g.cells[k], int32(i))
			}
		}
	}
	return g
}

func (g *segmentGrid) span(s segment) (x0, y0, x1, y1 int64) {
	lo, hi := s.bounds()
	x0 = int64((lo.X - g.min.X) / g.cell)
	y0 = int64((lo.Y - g.min.Y) / g.cell)
	x1 = int64((hi.X - g.min.X) / g.cell)
	y1 = int64((hi.Y - g.min.Y) / g.cell)
	return
}

// 遍历所有候选线段对（每对只出现一次，顺序确定），fn返回false时停止
func (g *segmentGrid) pairs(fn func(i, j int32) bool) {
	keys := make([]int64, 0, len(g.cells))
	for k := range g.cells {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		ids := g.cells[k]
		cx, cy := k%g.nx, k/g.nx
		for m := 0; m < len(ids); m++ {
			ax0, ay0, _, _ := g.span(g.segs[ids[m]])
			for n := m + 1; n < len(ids); n++ {
				bx0, by0, _, _ := g.span(g.segs[ids[n]])
				// 仅在两线段包围盒交集的首个网格处理
				if max(ax0, bx0) != cx || max(ay0, by0) != cy {
					continue
				}
				if !fn(ids[m], ids[n]) {
					return
				}
			}
		}
	}
}

// snapper 将容差内的点归并为同一坐标
type snapper struct {
	tol   float64
	cells map[[2]int64][]r2.Vec
}

func newSnapper(tol float64) *snapper {
	return &snapper{tol: tol, cells: map[[2]int64][]r2.Vec{}}
}

func (s *snapper) snap(p r2.Vec) r2.Vec {
	cx, cy := int64(math.Floor(p.X/s.tol)), int64(math.Floor(p.Y/s.tol))
	for dy := int64(-1); dy <= 1; dy++ {
		for dx := int64(-1); dx <= 1; dx++ {
			for _, q := range s.cells[[2]int64{cx + dx, cy + dy}] {
				if q == p || r2.Norm(r2.Sub(q, p)) <= s.tol {
					return q
				}
			}
		}
	}
	k := [2]int64{cx, cy}
	s.cells[k] = append(s.cells[k], p)
	return p
}
