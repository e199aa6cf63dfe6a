package gdalfade

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wgdzlh/gdalfade/log"
	"github.com/wgdzlh/gdalfade/vector"

	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"
)

// GdalToolbox 基于GDAL实现RasterStore与VectorStore
type GdalToolbox struct {
	refMap map[string]gdal.SpatialReference
	rLock  sync.Mutex
	logTag string
}

// 由GDAL库C语言创建的内存对象，需要手动调用Destroy回收
type destroyable interface {
	Destroy()
}

var (
	emptyRef     = gdal.SpatialReference{}
	registerOnce sync.Once
)

func registerDrivers() {
	registerOnce.Do(func() {
		gdal.AllRegister()
		registerRasterDrivers()
	})
}

func NewGdalToolbox() *GdalToolbox {
	registerDrivers()
	return &GdalToolbox{
		refMap: map[string]gdal.SpatialReference{},
		logTag: "GdalToolbox:",
	}
}

// 获取WKT对应的坐标系（可复用，故无需回收）
func (g *GdalToolbox) getRef(wkt string) (ref gdal.SpatialReference, err error) {
	if wkt == "" {
		ref = emptyRef
		return
	}
	g.rLock.Lock()
	defer g.rLock.Unlock()
	ref, ok := g.refMap[wkt]
	if ok {
		return
	}
	ref = gdal.CreateSpatialReference("")
	if err = ref.FromWKT(wkt); err != nil {
		log.Error(g.logTag+"parse ref wkt failed", zap.Error(err))
		ref.Destroy()
		err = fmt.Errorf("%w: invalid srs: %v", ErrStorage, err)
		return
	}
	// 数据轴次序固定为(x, y)，与栅格仿射变换一致
	ref.SetAxisMappingStrategy(gdal.OAMS_TraditionalGisOrder)
	g.refMap[wkt] = ref
	return
}

func (g *GdalToolbox) SameCRS(a, b string) bool {
	if a == b {
		return true
	}
	if a == "" || b == "" {
		return false
	}
	ra, err := g.getRef(a)
	if err != nil {
		return false
	}
	rb, err := g.getRef(b)
	if err != nil {
		return false
	}
	return ra.IsSame(rb)
}

func vectorDriver(path string) string {
	if strings.EqualFold(filepath.Ext(path), FILE_EXT_SHP) {
		return SHP_DRIVER_NAME
	}
	return GPKG_DRIVER_NAME
}

func layerName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func ringToGeo(r vector.Ring) gdal.Geometry {
	ring := gdal.Create(gdal.GT_LinearRing)
	for _, v := range r {
		ring.AddPoint2D(v.X, v.Y)
	}
	if len(r) > 0 {
		ring.AddPoint2D(r[0].X, r[0].Y)
	}
	return ring
}

func polygonToGeo(p vector.Polygon) (geo gdal.Geometry, err error) {
	geo = gdal.Create(gdal.GT_Polygon)
	for _, r := range p.Rings() {
		ring := ringToGeo(r)
		if err = geo.AddGeometryDirectly(ring); err != nil {
			ring.Destroy()
			geo.Destroy()
			return
		}
	}
	return
}

func lineToGeo(l vector.LineString) gdal.Geometry {
	geo := gdal.Create(gdal.GT_LineString)
	for _, v := range l {
		geo.AddPoint2D(v.X, v.Y)
	}
	return geo
}

func geoPoints(geo gdal.Geometry) []r2.Vec {
	n := geo.PointCount()
	pts := make([]r2.Vec, n)
	for i := range pts {
		x, y, _ := geo.Point(i)
		pts[i] = r2.Vec{X: x, Y: y}
	}
	return pts
}

func geoToRing(geo gdal.Geometry) vector.Ring {
	pts := geoPoints(geo)
	if n := len(pts); n > 1 && pts[0] == pts[n-1] {
		pts = pts[:n-1]
	}
	return pts
}

// 解析面或多面（不回收geo）
func geoToPolygons(geo gdal.Geometry, value int) (ps []vector.Polygon, err error) {
	switch geo.Type() {
	case gdal.GT_Polygon:
		nr := geo.GeometryCount()
		if nr == 0 {
			return
		}
		p := vector.Polygon{Shell: geoToRing(geo.Geometry(0)), Value: value}
		for i := 1; i < nr; i++ {
			p.Holes = append(p.Holes, geoToRing(geo.Geometry(i)))
		}
		ps = append(ps, p)
	case gdal.GT_MultiPolygon, gdal.GT_GeometryCollection:
		var sub []vector.Polygon
		for i, n := 0, geo.GeometryCount(); i < n; i++ {
			sg := geo.Geometry(i)
			switch sg.Type() {
			case gdal.GT_Polygon, gdal.GT_MultiPolygon:
			default:
				continue
			}
			if sub, err = geoToPolygons(sg, value); err != nil {
				return
			}
			ps = append(ps, sub...)
		}
	default:
		err = fmt.Errorf("%w: %d", ErrGdalWrongGeoType, geo.Type())
	}
	return
}

// 解析线、多线或面边界（不回收geo）
func geoToLines(geo gdal.Geometry) (ls []vector.LineString, err error) {
	switch geo.Type() {
	case gdal.GT_LineString, gdal.GT_LinearRing:
		if l := vector.LineString(geoPoints(geo)); len(l) > 0 {
			ls = append(ls, l)
		}
	case gdal.GT_Polygon, gdal.GT_MultiLineString, gdal.GT_MultiPolygon, gdal.GT_GeometryCollection:
		var sub []vector.LineString
		for i, n := 0, geo.GeometryCount(); i < n; i++ {
			if sub, err = geoToLines(geo.Geometry(i)); err != nil {
				return
			}
			ls = append(ls, sub...)
		}
	default:
		err = fmt.Errorf("%w: %d", ErrGdalWrongGeoType, geo.Type())
	}
	return
}
