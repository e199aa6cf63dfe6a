package vector

import (
	"fmt"
	"math"

	"github.com/wgdzlh/gdalfade/log"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"
)

const (
	relTolerance    = 1e-9
	offsetTolerance = 1e-6
)

// NativeGeometry 为纯Go实现的几何修复与内缩
type NativeGeometry struct {
	Tolerance float64 // 顶点归并容差，0表示按多边形自身范围的1e-9自动取值
}

// 容差只取决于多边形的宽高，与其所在的绝对坐标无关
func (g NativeGeometry) tolerance(p Polygon) float64 {
	if g.Tolerance > 0 {
		return g.Tolerance
	}
	b := p.Shell.Bounds()
	ext := math.Max(b.Max.X-b.Min.X, b.Max.Y-b.Min.Y)
	if !(ext > 0) {
		ext = 1
	}
	return ext * relTolerance
}

// 以外环包围盒左下角为原点的平移，计算在局部坐标中进行
func localFrame(p Polygon) (toLocal, toWorld func(r2.Vec) r2.Vec) {
	o := p.Shell.Bounds().Min
	if math.IsInf(o.X, 0) || math.IsInf(o.Y, 0) {
		o = r2.Vec{}
	}
	toLocal = func(v r2.Vec) r2.Vec { return r2.Sub(v, o) }
	toWorld = func(v r2.Vec) r2.Vec { return r2.Add(v, o) }
	return
}

func mapAll(ps []Polygon, f func(r2.Vec) r2.Vec) []Polygon {
	for i := range ps {
		ps[i] = ps[i].Map(f)
	}
	return ps
}

// 修复多边形：去重复点、共线点及尖刺，打断自相交，按奇偶规则重建外环/内环
func (g NativeGeometry) Repair(ps []Polygon) (out []Polygon, err error) {
	for i, p := range ps {
		for _, r := range p.Rings() {
			if !r.finite() {
				err = fmt.Errorf("polygon %d: %w", i, ErrUnrepairable)
				return
			}
		}
		if simple(p) {
			out = append(out, p.Normalized())
			continue
		}
		toLocal, toWorld := localFrame(p)
		fixed, e := fill(p.Map(toLocal).Rings(), EvenOdd, p.Value, g.tolerance(p))
		if e != nil {
			err = fmt.Errorf("polygon %d: %w", i, e)
			return
		}
		if len(fixed) == 0 {
			log.Debug("drop zero-area polygon", zap.Int("index", i), zap.Int("points", p.PointCount()))
			continue
		}
		out = append(out, mapAll(fixed, toWorld)...)
	}
	return
}

// 判断多边形是否已合法：环无重复顶点、边无相交、内环位于外环内且互不包含
func simple(p Polygon) bool {
	rings := p.Rings()
	seen := map[r2.Vec]struct{}{}
	var segs []segment
	var owner, pos []int
	for ri, r := range rings {
		if len(r) < 3 || r.SignedArea() == 0 {
			return false
		}
		for i, v := range r {
			if _, ok := seen[v]; ok {
				return false
			}
			seen[v] = struct{}{}
			segs = append(segs, segment{v, r[(i+1)%len(r)]})
			owner = append(owner, ri)
			pos = append(pos, i)
		}
	}
	ok := true
	newSegmentGrid(segs).pairs(func(i, j int32) bool {
		s, t := segs[i], segs[j]
		if owner[i] == owner[j] {
			n := len(rings[owner[i]])
			d := pos[i] - pos[j]
			if d == 1 || d == -1 || d == n-1 || d == 1-n {
				// 相邻边只允许共享端点，且不能反向共线
				if r2.Cross(r2.Sub(s.b, s.a), r2.Sub(t.b, t.a)) == 0 && r2.Dot(r2.Sub(s.b, s.a), r2.Sub(t.b, t.a)) < 0 {
					ok = false
				}
				return ok
			}
		}
		if segmentsTouch(s, t) {
			ok = false
		}
		return ok
	})
	if !ok {
		return false
	}
	if len(p.Holes) == 0 {
		return true
	}
	si := newRingIndex(p.Shell)
	boxes := make([]r2.Box, len(p.Holes))
	for i, h := range p.Holes {
		boxes[i] = h.Bounds()
	}
	for i, h := range p.Holes {
		if si.locate(h[0]) != 1 {
			return false
		}
		for j, o := range p.Holes {
			if i == j || !boxContains(boxes[j], r2.Box{Min: h[0], Max: h[0]}) {
				continue
			}
			if pointInRing(h[0], o) >= 0 {
				return false
			}
		}
	}
	return true
}

func orient(a, b, c r2.Vec) int {
	v := r2.Cross(r2.Sub(b, a), r2.Sub(c, a))
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// 两线段是否相交或接触
func segmentsTouch(s, t segment) bool {
	o1, o2 := orient(s.a, s.b, t.a), orient(s.a, s.b, t.b)
	o3, o4 := orient(t.a, t.b, s.a), orient(t.a, t.b, s.b)
	if o1*o2 < 0 && o3*o4 < 0 {
		return true
	}
	return o1 == 0 && onSegment(t.a, s) ||
		o2 == 0 && onSegment(t.b, s) ||
		o3 == 0 && onSegment(s.a, t) ||
		o4 == 0 && onSegment(s.b, t)
}
