package gdalfade

import (
	"fmt"
	"math"

	"github.com/wgdzlh/gdalfade/log"
	"github.com/wgdzlh/gdalfade/vector"

	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

// OGRGeometry 基于OGR(GEOS)的面修复与缓冲
type OGRGeometry struct {
	logTag string
}

func NewOGRGeometry() OGRGeometry {
	registerDrivers()
	return OGRGeometry{logTag: "OGRGeometry:"}
}

// 对每个面单独处理，保留原值
func (o OGRGeometry) each(ps []vector.Polygon, op func(geo gdal.Geometry) gdal.Geometry) (out []vector.Polygon, err error) {
	var (
		geo gdal.Geometry
		sub []vector.Polygon
	)
	for _, p := range ps {
		for _, r := range p.Rings() {
			for _, v := range r {
				if math.IsNaN(v.X) || math.IsNaN(v.Y) || math.IsInf(v.X, 0) || math.IsInf(v.Y, 0) {
					err = fmt.Errorf("%w: non-finite coordinate", ErrUnrepairableGeometry)
					return
				}
			}
		}
		if geo, err = polygonToGeo(p); err != nil {
			return
		}
		res := op(geo)
		if res != geo {
			geo.Destroy()
		}
		sub, err = geoToPolygons(res, p.Value)
		res.Destroy()
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrUnrepairableGeometry, err)
			return
		}
		for _, s := range sub {
			if s.Area() == 0 {
				log.Debug(o.logTag+"drop zero-area polygon", zap.Int("value", s.Value))
				continue
			}
			out = append(out, s.Normalized())
		}
	}
	return
}

// 无效面通过Buffer(0)修复
func (o OGRGeometry) Repair(ps []vector.Polygon) (out []vector.Polygon, err error) {
	fixed := 0
	out, err = o.each(ps, func(geo gdal.Geometry) gdal.Geometry {
		if geo.IsValid() {
			return geo
		}
		fixed++
		return geo.Buffer(0, DefaultQuadSegs)
	})
	if fixed > 0 {
		log.Info(o.logTag+"repaired invalid polygons", zap.Int("fixed", fixed), zap.Int("total", len(ps)))
	}
	return
}

// 向内缓冲d，完全腐蚀的面被丢弃
func (o OGRGeometry) Offset(ps []vector.Polygon, d float64, quadSegs int) (out []vector.Polygon, err error) {
	shrunk, err := o.each(ps, func(geo gdal.Geometry) gdal.Geometry {
		return geo.Buffer(-d, quadSegs)
	})
	if err != nil {
		return
	}
	log.Debug(o.logTag+"offset polygons", zap.Float64("d", d), zap.Int("in", len(ps)), zap.Int("out", len(shrunk)))
	return o.Repair(shrunk)
}
