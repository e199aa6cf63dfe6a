package rasalg

import (
	"math"

	"github.com/wgdzlh/gdalfade/grid"
	"github.com/wgdzlh/gdalfade/vector"

	"gonum.org/v1/gonum/spatial/r2"
)

type pixSeg struct {
	a, b r2.Vec
}

// Rasterizer 将线串扫描转换到网格（像元坐标按floor归属，左闭右开）
type Rasterizer struct {
	width, height int
	stripRows     int
	inv           grid.GeoTransform
	buckets       [][]pixSeg
}

func NewRasterizer(g grid.Grid, stripRows int) (rz *Rasterizer, err error) {
	inv, err := g.Transform.Invert()
	if err != nil {
		return
	}
	if stripRows <= 0 {
		stripRows = g.Height
	}
	rz = &Rasterizer{
		width:     g.Width,
		height:    g.Height,
		stripRows: stripRows,
		inv:       inv,
		buckets:   make([][]pixSeg, (g.Height+stripRows-1)/stripRows),
	}
	return
}

// 将地理坐标下的线串转换为像元坐标并按条带分桶
func (rz *Rasterizer) AddLines(ls []vector.LineString) {
	for _, l := range ls {
		for i := 1; i < len(l); i++ {
			var s pixSeg
			s.a.X, s.a.Y = rz.inv.Apply(l[i-1].X, l[i-1].Y)
			s.b.X, s.b.Y = rz.inv.Apply(l[i].X, l[i].Y)
			rz.add(s)
		}
		if len(l) == 1 {
			var s pixSeg
			s.a.X, s.a.Y = rz.inv.Apply(l[0].X, l[0].Y)
			s.b = s.a
			rz.add(s)
		}
	}
}

func (rz *Rasterizer) add(s pixSeg) {
	if len(rz.buckets) == 0 {
		return
	}
	lo := math.Floor(math.Min(s.a.Y, s.b.Y))
	hi := math.Floor(math.Max(s.a.Y, s.b.Y))
	if hi < 0 || lo >= float64(rz.height) || math.IsNaN(lo) || math.IsNaN(hi) {
		return
	}
	b0 := int(math.Max(lo, 0)) / rz.stripRows
	b1 := int(math.Min(hi, float64(rz.height-1))) / rz.stripRows
	for b := b0; b <= b1; b++ {
		rz.buckets[b] = append(rz.buckets[b], s)
	}
}

// 烧录窗口内的线段，dst为窗口对应的行（先清零），返回烧录像元数
func (rz *Rasterizer) Burn(w grid.Window, dst []uint8) (burned int) {
	for i := range dst {
		dst[i] = 0
	}
	if w.Rows <= 0 {
		return
	}
	y0, y1 := w.Y0, w.End()
	visit := func(x, y int) {
		if x >= 0 && x < rz.width && y >= y0 && y < y1 {
			dst[(y-y0)*rz.width+x] = 1
		}
	}
	lo := r2.Vec{X: -1, Y: float64(y0 - 1)}
	hi := r2.Vec{X: float64(rz.width + 1), Y: float64(y1 + 1)}
	for b := y0 / rz.stripRows; b <= (y1-1)/rz.stripRows && b < len(rz.buckets); b++ {
		for _, s := range rz.buckets[b] {
			a, e, ok := clipBox(s, lo, hi)
			if !ok {
				continue
			}
			traverse(a, e, visit)
		}
	}
	for _, v := range dst {
		if v != 0 {
			burned++
		}
	}
	return
}

// 线段超出窗口范围时裁剪，完全在范围内的线段原样返回以保持格点判断精确
func clipBox(s pixSeg, lo, hi r2.Vec) (a, b r2.Vec, ok bool) {
	a, b = s.a, s.b
	in := func(p r2.Vec) bool {
		return p.X >= lo.X && p.X <= hi.X && p.Y >= lo.Y && p.Y <= hi.Y
	}
	if in(a) && in(b) {
		ok = true
		return
	}
	d := r2.Sub(b, a)
	t0, t1 := 0.0, 1.0
	for _, c := range [4][2]float64{{-d.X, a.X - lo.X}, {d.X, hi.X - a.X}, {-d.Y, a.Y - lo.Y}, {d.Y, hi.Y - a.Y}} {
		p, q := c[0], c[1]
		if p == 0 {
			if q < 0 {
				return
			}
			continue
		}
		r := q / p
		if p < 0 {
			t0 = math.Max(t0, r)
		} else {
			t1 = math.Min(t1, r)
		}
	}
	if t0 > t1 {
		return
	}
	a, b, ok = r2.Add(s.a, r2.Scale(t0, d)), r2.Add(s.a, r2.Scale(t1, d)), true
	return
}

// 网格遍历：访问线段上任一点所在的所有像元；经过格点时两轴同时步进
func traverse(a, b r2.Vec, visit func(x, y int)) {
	cx, cy := int(math.Floor(a.X)), int(math.Floor(a.Y))
	dx, dy := b.X-a.X, b.Y-a.Y
	sx, sy := 0, 0
	tmx, tmy := math.Inf(1), math.Inf(1)
	tdx, tdy := math.Inf(1), math.Inf(1)
	if dx > 0 {
		sx, tmx, tdx = 1, (float64(cx+1)-a.X)/dx, 1/dx
	} else if dx < 0 {
		sx, tmx, tdx = -1, (a.X-float64(cx))/-dx, -1/dx
	}
	if dy > 0 {
		sy, tmy, tdy = 1, (float64(cy+1)-a.Y)/dy, 1/dy
	} else if dy < 0 {
		sy, tmy, tdy = -1, (a.Y-float64(cy))/-dy, -1/dy
	}
	visit(cx, cy)
	for {
		// 正向越过边界即进入新像元，负向需严格越过
		okx := tmx < 1 || sx > 0 && tmx == 1
		oky := tmy < 1 || sy > 0 && tmy == 1
		switch {
		case !okx && !oky:
			return
		case okx && (!oky || tmx < tmy):
			cx += sx
			tmx += tdx
		case oky && (!okx || tmy < tmx):
			cy += sy
			tmy += tdy
		default:
			// 格点归属于坐标取floor后的像元
			if sx > 0 && sy < 0 {
				visit(cx+1, cy)
			} else if sx < 0 && sy > 0 {
				visit(cx, cy+1)
			}
			cx += sx
			cy += sy
			tmx += tdx
			tmy += tdy
		}
		visit(cx, cy)
	}
}
