// Package vector 实现掩膜矢量化、几何修复、内缩缓冲及边界线转换
package vector

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

var (
	ErrUnrepairable = errors.New("unrepairable geometry")
	ErrEmptyRing    = errors.New("empty ring")
)

// Ring 为不重复首点的闭合环
type Ring []r2.Vec

// LineString 为折线，闭合时首尾点相同
type LineString []r2.Vec

// Polygon 为带属性值的多边形（外环+内环）
type Polygon struct {
	Shell Ring
	Holes []Ring
	Value int
}

// 有向面积，逆时针为正
func (r Ring) SignedArea() float64 {
	n := len(r)
	if n < 3 {
		return 0
	}
	// 以首点为原点，减小大坐标下的舍入误差
	o := r[0]
	var s float64
	for i := 1; i < n-1; i++ {
		a := r2.Sub(r[i], o)
		b := r2.Sub(r[i+1], o)
		s += r2.Cross(a, b)
	}
	return s / 2
}

func (r Ring) Area() float64 {
	return math.Abs(r.SignedArea())
}

func (r Ring) Reverse() Ring {
	out := make(Ring, len(r))
	for i, p := range r {
		out[len(r)-1-i] = p
	}
	return out
}

func (r Ring) Clone() Ring {
	return append(Ring(nil), r...)
}

func (r Ring) Bounds() r2.Box {
	b := r2.Box{
		Min: r2.Vec{X: math.Inf(1), Y: math.Inf(1)},
		Max: r2.Vec{X: math.Inf(-1), Y: math.Inf(-1)},
	}
	for _, p := range r {
		b.Min.X = math.Min(b.Min.X, p.X)
		b.Min.Y = math.Min(b.Min.Y, p.Y)
		b.Max.X = math.Max(b.Max.X, p.X)
		b.Max.Y = math.Max(b.Max.Y, p.Y)
	}
	return b
}

// 按指定方向返回环（ccw=true为逆时针）
func (r Ring) Oriented(ccw bool) Ring {
	if (r.SignedArea() > 0) != ccw {
		return r.Reverse()
	}
	return r
}

// 闭合为折线
func (r Ring) Line() LineString {
	if len(r) == 0 {
		return nil
	}
	l := make(LineString, len(r)+1)
	copy(l, r)
	l[len(r)] = r[0]
	return l
}

func (r Ring) finite() bool {
	for _, p := range r {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return false
		}
	}
	return true
}

// 所有环（外环在前）
func (p Polygon) Rings() []Ring {
	rs := make([]Ring, 0, len(p.Holes)+1)
	rs = append(rs, p.Shell)
	return append(rs, p.Holes...)
}

func (p Polygon) Area() float64 {
	a := p.Shell.Area()
	for _, h := range p.Holes {
		a -= h.Area()
	}
	return a
}

func (p Polygon) PointCount() (n int) {
	for _, r := range p.Rings() {
		n += len(r)
	}
	return
}

// 外环逆时针、内环顺时针
func (p Polygon) Normalized() Polygon {
	out := Polygon{
		Shell: p.Shell.Oriented(true),
		Value: p.Value,
	}
	if len(p.Holes) > 0 {
		out.Holes = make([]Ring, len(p.Holes))
		for i, h := range p.Holes {
			out.Holes[i] = h.Oriented(false)
		}
	}
	return out
}

// 对所有顶点做坐标变换
func (p Polygon) Map(f func(r2.Vec) r2.Vec) Polygon {
	mapRing := func(r Ring) Ring {
		out := make(Ring, len(r))
		for i, v := range r {
			out[i] = f(v)
		}
		return out
	}
	out := Polygon{Shell: mapRing(p.Shell), Value: p.Value}
	for _, h := range p.Holes {
		out.Holes = append(out.Holes, mapRing(h))
	}
	return out
}

func (l LineString) Closed() bool {
	return len(l) > 2 && l[0] == l[len(l)-1]
}

func (l LineString) Length() (s float64) {
	for i := 1; i < len(l); i++ {
		s += r2.Norm(r2.Sub(l[i], l[i-1]))
	}
	return
}

// 仅保留属性值为value的多边形
func FilterValue(ps []Polygon, value int) []Polygon {
	out := make([]Polygon, 0, len(ps))
	for _, p := range ps {
		if p.Value == value {
			out = append(out, p)
		}
	}
	return out
}

// 将多边形退化为边界线（每个环一条闭合折线，不保留面）
func BoundaryLines(ps []Polygon) (ls []LineString) {
	for _, p := range ps {
		for _, r := range p.Rings() {
			if len(r) < 2 {
				continue
			}
			ls = append(ls, r.Line())
		}
	}
	return
}
