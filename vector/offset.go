package vector

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

func leftNormal(u r2.Vec) r2.Vec {
	return r2.Vec{X: -u.Y, Y: u.X}
}

func rotate(v r2.Vec, a float64) r2.Vec {
	s, c := math.Sincos(a)
	return r2.Vec{X: v.X*c - v.Y*s, Y: v.X*s + v.Y*c}
}

// 将环向其行进方向左侧平移d：凸顶点取斜接点，凹顶点按quadSegs插入圆弧
func offsetRing(r Ring, d float64, quadSegs int) Ring {
	n := len(r)
	out := make(Ring, 0, 2*n)
	for i := 0; i < n; i++ {
		prev, p, next := r[(i+n-1)%n], r[i], r[(i+1)%n]
		u1, u2 := r2.Unit(r2.Sub(p, prev)), r2.Unit(r2.Sub(next, p))
		n1, n2 := leftNormal(u1), leftNormal(u2)
		turn := r2.Cross(u1, u2)
		cos := r2.Dot(n1, n2)
		switch {
		case turn > 0 && 1+cos > 1e-3:
			out = append(out, r2.Add(p, r2.Scale(d/(1+cos), r2.Add(n1, n2))))
		case turn > 0:
			// 近乎折返的尖角，经原顶点连接，多余部分由填充规则去除
			out = append(out, r2.Add(p, r2.Scale(d, n1)), p, r2.Add(p, r2.Scale(d, n2)))
		case turn == 0 && cos > 0:
			out = append(out, r2.Add(p, r2.Scale(d, n1)))
		default:
			theta := math.Acos(math.Max(-1, math.Min(1, cos)))
			if turn == 0 {
				theta = math.Pi
			}
			steps := int(math.Ceil(theta / (math.Pi / 2) * float64(quadSegs)))
			if steps < 1 {
				steps = 1
			}
			for k := 0; k <= steps; k++ {
				out = append(out, r2.Add(p, r2.Scale(d, rotate(n1, -theta*float64(k)/float64(steps)))))
			}
		}
	}
	return out
}

// 多边形向内缩d（外环逆时针、内环顺时针时左侧即内部），按正环绕数规则合并，
// 被完全侵蚀或方向翻转的部分随之去除；多边形之间不做融合
func (g NativeGeometry) Offset(ps []Polygon, d float64, quadSegs int) (out []Polygon, err error) {
	if quadSegs < 1 {
		quadSegs = 1
	}
	for i, p := range ps {
		p = p.Normalized()
		// 容差不超过内缩距离的1e-6，凹角圆弧的顶点不得被归并
		h := g
		if h.Tolerance <= 0 {
			h.Tolerance = g.tolerance(p)
			if d > 0 {
				h.Tolerance = math.Min(h.Tolerance, d*offsetTolerance)
			}
		}
		toLocal, toWorld := localFrame(p)
		var raw []Ring
		for _, r := range p.Map(toLocal).Rings() {
			r = simplifyRing(r, 0)
			if len(r) < 3 {
				continue
			}
			raw = append(raw, offsetRing(r, d, quadSegs))
		}
		shrunk, e := fill(raw, Positive, p.Value, h.Tolerance)
		if e != nil {
			err = fmt.Errorf("offset polygon %d: %w", i, e)
			return
		}
		fixed, e := h.Repair(mapAll(shrunk, toWorld))
		if e != nil {
			err = fmt.Errorf("offset polygon %d: %w", i, e)
			return
		}
		out = append(out, fixed...)
	}
	return
}
