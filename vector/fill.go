package vector

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"
)

// FillRule 决定平面剖分后哪些面属于多边形内部
type FillRule int

const (
	EvenOdd  FillRule = iota // 穿越次数为奇数
	Positive                 // 环绕数大于0
)

func (f FillRule) inside(w int) bool {
	if f == Positive {
		return w > 0
	}
	return w%2 != 0
}

// 有向边，c为a->b方向的净计数
type arc struct {
	a, b r2.Vec
	c    int
}

func lessVec(a, b r2.Vec) bool {
	return a.X < b.X || a.X == b.X && a.Y < b.Y
}

// 将一组闭合环打断于交点，按填充规则重建为合法多边形（外环逆时针、内环顺时针）
func fill(rings []Ring, rule FillRule, value int, tol float64) (ps []Polygon, err error) {
	for _, r := range rings {
		if !r.finite() {
			err = ErrUnrepairable
			return
		}
	}
	sn := newSnapper(tol)
	var segs []segment
	for _, r := range rings {
		for _, s := range ringSegments(r) {
			s.a, s.b = sn.snap(s.a), sn.snap(s.b)
			if s.a != s.b {
				segs = append(segs, s)
			}
		}
	}
	arcs := mergeArcs(node(segs, sn, tol))
	edges := boundaryEdges(arcs, rule)
	loops, err := traceLoops(edges)
	if err != nil {
		return
	}
	var shells, holes []Ring
	for _, l := range loops {
		for _, r := range splitLoops(l) {
			r = simplifyRing(r, tol)
			if len(r) < 3 {
				continue
			}
			a := r.SignedArea()
			if math.Abs(a) <= tol*ringLength(r) {
				continue
			}
			if a > 0 {
				shells = append(shells, r)
			} else {
				holes = append(holes, r)
			}
		}
	}
	return assembleRings(shells, holes, value)
}

// 求出所有交点并打断线段
func node(segs []segment, sn *snapper, tol float64) []segment {
	splits := make([][]r2.Vec, len(segs))
	newSegmentGrid(segs).pairs(func(i, j int32) bool {
		p, q := intersect(segs[i], segs[j], tol)
		splits[i] = append(splits[i], p...)
		splits[j] = append(splits[j], q...)
		return true
	})
	out := make([]segment, 0, len(segs))
	for i, s := range segs {
		if len(splits[i]) == 0 {
			out = append(out, s)
			continue
		}
		d := r2.Sub(s.b, s.a)
		l2 := r2.Dot(d, d)
		pts := splits[i]
		sort.Slice(pts, func(m, n int) bool {
			return r2.Dot(r2.Sub(pts[m], s.a), d)/l2 < r2.Dot(r2.Sub(pts[n], s.a), d)/l2
		})
		prev := s.a
		for _, p := range append(pts, s.b) {
			p = sn.snap(p)
			if p != prev {
				out = append(out, segment{prev, p})
				prev = p
			}
		}
	}
	return out
}

// 两线段的打断点：p位于s内部，q位于t内部
func intersect(s, t segment, tol float64) (p, q []r2.Vec) {
	r, u := r2.Sub(s.b, s.a), r2.Sub(t.b, t.a)
	rl, ul := r2.Norm(r), r2.Norm(u)
	if rl == 0 || ul == 0 {
		return
	}
	interior := func(x r2.Vec, seg segment, d r2.Vec, l float64) bool {
		if x == seg.a || x == seg.b {
			return false
		}
		k := r2.Dot(r2.Sub(x, seg.a), d) / (l * l)
		dist := math.Abs(r2.Cross(d, r2.Sub(x, seg.a))) / l
		return k*l > tol && (1-k)*l > tol && dist <= tol
	}
	// 端点落在对方线段上（T形或共线重叠）
	for _, x := range [2]r2.Vec{t.a, t.b} {
		if interior(x, s, r, rl) {
			p = append(p, x)
		}
	}
	for _, x := range [2]r2.Vec{s.a, s.b} {
		if interior(x, t, u, ul) {
			q = append(q, x)
		}
	}
	if len(p) > 0 || len(q) > 0 {
		return
	}
	den := r2.Cross(r, u)
	if math.Abs(den) <= 1e-12*rl*ul {
		return
	}
	w := r2.Sub(t.a, s.a)
	ts := r2.Cross(w, u) / den
	tu := r2.Cross(w, r) / den
	if ts*rl <= tol || (1-ts)*rl <= tol || tu*ul <= tol || (1-tu)*ul <= tol {
		return
	}
	x := r2.Add(s.a, r2.Scale(ts, r))
	p = append(p, x)
	q = append(q, x)
	return
}

// 合并重合边并累计方向计数，丢弃净计数为0的边
func mergeArcs(segs []segment) (arcs []arc) {
	idx := map[[2]r2.Vec]int{}
	for _, s := range segs {
		a, b, c := s.a, s.b, 1
		if lessVec(b, a) {
			a, b, c = b, a, -1
		}
		k := [2]r2.Vec{a, b}
		if i, ok := idx[k]; ok {
			arcs[i].c += c
			continue
		}
		idx[k] = len(arcs)
		arcs = append(arcs, arc{a, b, c})
	}
	out := arcs[:0]
	for _, e := range arcs {
		if e.c != 0 {
			out = append(out, e)
		}
	}
	return out
}

// 以射线法求每条边左右两侧面的环绕数，保留内外分界边（内部在左）
func boundaryEdges(arcs []arc, rule FillRule) (edges []segment) {
	segs := make([]segment, len(arcs))
	for i, e := range arcs {
		segs[i] = segment{e.a, e.b}
	}
	var byY, byX *bandIndex
	for i, e := range arcs {
		m := r2.Scale(0.5, r2.Add(e.a, e.b))
		var wl, wr int
		if e.a.Y != e.b.Y {
			if byY == nil {
				byY = newBandIndex(segs, axisY)
			}
			w := 0
			for _, j := range byY.candidates(m.Y) {
				f := arcs[j]
				if int(j) == i {
					continue
				}
				lo, hi := f.a, f.b
				sgn := f.c
				if lo.Y > hi.Y {
					lo, hi, sgn = hi, lo, -sgn
				}
				if !(lo.Y <= m.Y && m.Y < hi.Y) {
					continue
				}
				if x := lo.X + (m.Y-lo.Y)*(hi.X-lo.X)/(hi.Y-lo.Y); x > m.X {
					w += sgn
				}
			}
			if e.a.Y < e.b.Y {
				wr, wl = w, w+e.c
			} else {
				wl, wr = w, w-e.c
			}
		} else {
			if byX == nil {
				byX = newBandIndex(segs, axisX)
			}
			w := 0
			for _, j := range byX.candidates(m.X) {
				f := arcs[j]
				if int(j) == i {
					continue
				}
				lo, hi := f.a, f.b // lessVec保证lo.X <= hi.X
				if !(lo.X <= m.X && m.X < hi.X) {
					continue
				}
				if y := lo.Y + (m.X-lo.X)*(hi.Y-lo.Y)/(hi.X-lo.X); y > m.Y {
					w -= f.c // a->b向右穿过上方射线计为-1
				}
			}
			wl, wr = w, w-e.c
		}
		il, ir := rule.inside(wl), rule.inside(wr)
		switch {
		case il && !ir:
			edges = append(edges, segment{e.a, e.b})
		case ir && !il:
			edges = append(edges, segment{e.b, e.a})
		}
	}
	return
}

func turnAngle(u, v r2.Vec) float64 {
	return math.Atan2(r2.Cross(u, v), r2.Dot(u, v))
}

// 连接分界边为闭合环，每个顶点处取最左转的出边，使环紧贴同一内部扇区
func traceLoops(edges []segment) (loops []Ring, err error) {
	out := make(map[r2.Vec][]int, len(edges))
	for i, e := range edges {
		out[e.a] = append(out[e.a], i)
	}
	used := make([]bool, len(edges))
	for s := range edges {
		if used[s] {
			continue
		}
		ring := Ring{edges[s].a}
		cur := s
		for {
			used[cur] = true
			v := edges[cur].b
			in := r2.Sub(v, edges[cur].a)
			next, best := -1, math.Inf(-1)
			for _, n := range out[v] {
				if used[n] && n != s {
					continue
				}
				if t := turnAngle(in, r2.Sub(edges[n].b, v)); t > best {
					next, best = n, t
				}
			}
			if next < 0 {
				err = ErrUnrepairable
				return
			}
			if next == s {
				break
			}
			ring = append(ring, v)
			cur = next
		}
		loops = append(loops, ring)
	}
	return
}

// 在重复顶点处拆分为简单环
func splitLoops(r Ring) (loops []Ring) {
	pos := make(map[r2.Vec]int, len(r))
	stack := make(Ring, 0, len(r))
	for _, p := range r {
		if i, ok := pos[p]; ok {
			loops = append(loops, append(Ring(nil), stack[i:]...))
			for _, q := range stack[i+1:] {
				delete(pos, q)
			}
			stack = stack[:i+1]
			continue
		}
		pos[p] = len(stack)
		stack = append(stack, p)
	}
	return append(loops, stack)
}

// 去除重复点、共线点及尖刺
func simplifyRing(r Ring, tol float64) Ring {
	out := append(Ring(nil), r...)
	for changed := true; changed && len(out) >= 3; {
		changed = false
		n := len(out)
		keep := out[:0:0]
		for i := 0; i < n; i++ {
			a, b, c := out[(i+n-1)%n], out[i], out[(i+1)%n]
			if len(keep) > 0 {
				a = keep[len(keep)-1]
			}
			ac := r2.Sub(c, a)
			l := r2.Norm(ac)
			if b == a || b == c {
				changed = true
				continue
			}
			if l == 0 || math.Abs(r2.Cross(ac, r2.Sub(b, a)))/l <= tol {
				changed = true
				continue
			}
			keep = append(keep, b)
		}
		out = keep
	}
	return out
}

func ringLength(r Ring) (s float64) {
	for _, seg := range ringSegments(r) {
		s += r2.Norm(r2.Sub(seg.b, seg.a))
	}
	return
}

// 将内环归入包含它的最小外环
func assembleRings(shells, holes []Ring, value int) (ps []Polygon, err error) {
	ps = make([]Polygon, len(shells))
	boxes := make([]r2.Box, len(shells))
	areas := make([]float64, len(shells))
	idx := make([]*ringIndex, len(shells))
	for i, s := range shells {
		ps[i] = Polygon{Shell: s, Value: value}
		boxes[i] = s.Bounds()
		areas[i] = s.Area()
	}
	for _, h := range holes {
		hb := h.Bounds()
		owner := -1
		for i, s := range shells {
			if owner >= 0 && areas[i] >= areas[owner] {
				continue
			}
			if !boxContains(boxes[i], hb) {
				continue
			}
			if idx[i] == nil {
				idx[i] = newRingIndex(s)
			}
			if holeInside(h, idx[i]) {
				owner = i
			}
		}
		if owner < 0 {
			err = ErrUnrepairable
			return
		}
		ps[owner].Holes = append(ps[owner].Holes, h)
	}
	return
}

func boxContains(b, o r2.Box) bool {
	return o.Min.X >= b.Min.X && o.Min.Y >= b.Min.Y && o.Max.X <= b.Max.X && o.Max.Y <= b.Max.Y
}

func holeInside(h Ring, ri *ringIndex) bool {
	for _, p := range h {
		switch ri.locate(p) {
		case 1:
			return true
		case -1:
			return false
		}
	}
	// 全部顶点在边上时取首边中点
	m := r2.Scale(0.5, r2.Add(h[0], h[1]))
	return ri.locate(m) >= 0
}
