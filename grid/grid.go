package grid

import (
	"errors"
	"math"
)

var ErrSingularTransform = errors.New("singular geo transform")

// GeoTransform 为GDAL六参数仿射变换：
// Xgeo = T[0] + col*T[1] + row*T[2]
// Ygeo = T[3] + col*T[4] + row*T[5]
type GeoTransform [6]float64

// 像素坐标转地理坐标
func (t GeoTransform) Apply(col, row float64) (x, y float64) {
	x = t[0] + col*t[1] + row*t[2]
	y = t[3] + col*t[4] + row*t[5]
	return
}

func (t GeoTransform) det() float64 {
	return t[1]*t[5] - t[2]*t[4]
}

// 求逆变换（地理坐标转像素坐标）
func (t GeoTransform) Invert() (inv GeoTransform, err error) {
	d := t.det()
	if d == 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		err = ErrSingularTransform
		return
	}
	inv[1] = t[5] / d
	inv[2] = -t[2] / d
	inv[4] = -t[4] / d
	inv[5] = t[1] / d
	inv[0] = -(inv[1]*t[0] + inv[2]*t[3])
	inv[3] = -(inv[4]*t[0] + inv[5]*t[3])
	return
}

// 变换是否翻转了坐标系手性（北朝上的影像像元高度为负，会翻转）
func (t GeoTransform) Flips() bool {
	return t.det() < 0
}

// 像元宽高（地面单位，取绝对值）
func (t GeoTransform) PixelSize() (w, h float64) {
	w = math.Hypot(t[1], t[4])
	h = math.Hypot(t[2], t[5])
	return
}

// Grid 描述流水线中所有栅格共享的网格
type Grid struct {
	Width      int
	Height     int
	Transform  GeoTransform
	Projection string // WKT
}

// 平均像元尺寸
func (g Grid) AvgPixelSize() float64 {
	w, h := g.PixelSize()
	return (w + h) / 2
}

func (g Grid) PixelSize() (w, h float64) {
	return g.Transform.PixelSize()
}

// 地理范围 [minX, maxX, minY, maxY]
func (g Grid) Span() (span [4]float64) {
	span[0], span[2] = math.Inf(1), math.Inf(1)
	span[1], span[3] = math.Inf(-1), math.Inf(-1)
	for _, c := range [4][2]float64{{0, 0}, {float64(g.Width), 0}, {0, float64(g.Height)}, {float64(g.Width), float64(g.Height)}} {
		x, y := g.Transform.Apply(c[0], c[1])
		span[0] = math.Min(span[0], x)
		span[1] = math.Max(span[1], x)
		span[2] = math.Min(span[2], y)
		span[3] = math.Max(span[3], y)
	}
	return
}

// 尺寸一致，且变换参数在1e-9像元内一致
func (g Grid) SameShape(o Grid) bool {
	if g.Width != o.Width || g.Height != o.Height {
		return false
	}
	tol := g.AvgPixelSize() * 1e-9
	for i, v := range g.Transform {
		if math.Abs(v-o.Transform[i]) > tol && math.Abs(v-o.Transform[i]) > 1e-12 {
			return false
		}
	}
	return true
}

// 网格一致且投影文本相同
func (g Grid) Equal(o Grid) bool {
	return g.SameShape(o) && g.Projection == o.Projection
}

func (g Grid) Pixels() int64 {
	return int64(g.Width) * int64(g.Height)
}
