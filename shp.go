package gdalfade

import (
	"errors"
	"fmt"

	"github.com/wgdzlh/gdalfade/log"
	"github.com/wgdzlh/gdalfade/utils"
	"github.com/wgdzlh/gdalfade/vector"

	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

func (g *GdalToolbox) createLayer(path, srs string, gt gdal.GeometryType) (ds gdal.DataSource, layer gdal.Layer, err error) {
	if err = utils.RemoveDataset(path); err != nil {
		err = fmt.Errorf("%w: %v", ErrStorage, err)
		return
	}
	ref, err := g.getRef(srs)
	if err != nil {
		return
	}
	name := vectorDriver(path)
	log.Info(g.logTag+"output vector file", zap.String("file", path), zap.String("driver", name))
	driver := gdal.OGRDriverByName(name)
	ds, ok := driver.Create(path, nil)
	if !ok {
		err = fmt.Errorf("%w: %w: %s", ErrStorage, ErrGdalDriverCreate, path)
		return
	}
	var lco []string
	if name == SHP_DRIVER_NAME {
		lco = []string{ENCODING_OPTION}
	}
	layer = ds.CreateLayer(layerName(path), ref, gt, lco)
	return
}

func (g *GdalToolbox) openLayer(path string) (ds gdal.DataSource, layer gdal.Layer, err error) {
	driver := gdal.OGRDriverByName(vectorDriver(path))
	ds, ok := driver.Open(path, 0)
	if !ok {
		err = fmt.Errorf("%w: %w: %s", ErrStorage, ErrGdalDriverOpen, path)
		return
	}
	if ds.LayerCount() == 0 {
		ds.Destroy()
		err = fmt.Errorf("%w: %s has no layer", ErrStorage, path)
		return
	}
	layer = ds.LayerByIndex(0)
	return
}

// 将面写入矢量文件，值写入DN字段
func (g *GdalToolbox) WritePolygons(path, srs string, ps []vector.Polygon) (err error) {
	ds, layer, err := g.createLayer(path, srs, gdal.GT_Polygon)
	if err != nil {
		return
	}
	defer ds.Destroy() // 写出文件 + 释放资源
	fd := gdal.CreateFieldDefinition(FIELD_DN, gdal.FT_Integer)
	err = layer.CreateField(fd, false)
	fd.Destroy()
	if err != nil {
		return fmt.Errorf("%w: create field %s: %v", ErrStorage, FIELD_DN, err)
	}
	var (
		def     = layer.Definition()
		dnIdx   = def.FieldIndex(FIELD_DN)
		feature gdal.Feature
		geo     gdal.Geometry
	)
	for i, p := range ps {
		feature = def.Create()
		feature.SetFieldInteger(dnIdx, p.Value)
		if geo, err = polygonToGeo(p); err == nil {
			if err = feature.SetGeometryDirectly(geo); err == nil {
				err = layer.Create(feature)
			}
		}
		feature.Destroy()
		if err != nil {
			log.Error(g.logTag+"err in create feature of layer", zap.Int("idx", i), zap.Error(err))
			return fmt.Errorf("%w: write %s: %v", ErrStorage, path, err)
		}
	}
	log.Info(g.logTag+"polygons written", zap.String("file", path), zap.Int("total", len(ps)))
	return
}

// 读取面，DN字段缺失时值为1
func (g *GdalToolbox) ReadPolygons(path string) (ps []vector.Polygon, err error) {
	ds, layer, err := g.openLayer(path)
	if err != nil {
		return
	}
	defer ds.Destroy()
	var (
		dnIdx   = layer.Definition().FieldIndex(FIELD_DN)
		feature *gdal.Feature
		sub     []vector.Polygon
		value   int
		gc      []destroyable
	)
	defer func() {
		for _, v := range gc {
			v.Destroy()
		}
	}()
	for {
		if feature = layer.NextFeature(); feature == nil {
			break
		}
		gc = append(gc, *feature)
		value = 1
		if dnIdx >= 0 {
			value = feature.FieldAsInteger(dnIdx)
		}
		if sub, err = geoToPolygons(feature.Geometry(), value); err != nil {
			err = fmt.Errorf("%w: read %s fid %d: %w", ErrStorage, path, feature.FID(), err)
			return
		}
		ps = append(ps, sub...)
	}
	log.Info(g.logTag+"polygons read", zap.String("file", path), zap.Int("total", len(ps)))
	return
}

// 将闭合线写入矢量文件
func (g *GdalToolbox) WriteLines(path, srs string, ls []vector.LineString) (err error) {
	ds, layer, err := g.createLayer(path, srs, gdal.GT_LineString)
	if err != nil {
		return
	}
	defer ds.Destroy()
	var (
		def     = layer.Definition()
		feature gdal.Feature
	)
	for i, l := range ls {
		feature = def.Create()
		if err = feature.SetGeometryDirectly(lineToGeo(l)); err == nil {
			err = layer.Create(feature)
		}
		feature.Destroy()
		if err != nil {
			log.Error(g.logTag+"err in create feature of layer", zap.Int("idx", i), zap.Error(err))
			return fmt.Errorf("%w: write %s: %v", ErrStorage, path, err)
		}
	}
	log.Info(g.logTag+"lines written", zap.String("file", path), zap.Int("total", len(ls)))
	return
}

// 读取线及图层坐标系WKT，面按边界线读取，其他几何类型跳过
func (g *GdalToolbox) ReadLines(path string) (ls []vector.LineString, srs string, err error) {
	ds, layer, err := g.openLayer(path)
	if err != nil {
		return
	}
	defer ds.Destroy()
	// 无坐标系的图层（如缺少.prj）导出失败，按空串返回，由调用方判定为坐标系不一致
	if srs, _ = layer.SpatialReference().ToWKT(); srs == "" {
		log.Warn(g.logTag+"lines layer has no srs", zap.String("file", path))
	}
	var (
		feature *gdal.Feature
		sub     []vector.LineString
		skipped int
		e       error
		gc      []destroyable
	)
	defer func() {
		for _, v := range gc {
			v.Destroy()
		}
	}()
	for {
		if feature = layer.NextFeature(); feature == nil {
			break
		}
		gc = append(gc, *feature)
		if sub, e = geoToLines(feature.Geometry()); e != nil {
			if !errors.Is(e, ErrGdalWrongGeoType) {
				err = fmt.Errorf("%w: read %s: %v", ErrStorage, path, e)
				return
			}
			skipped++
			continue
		}
		ls = append(ls, sub...)
	}
	if skipped > 0 {
		log.Warn(g.logTag+"skip non-line features", zap.String("file", path), zap.Int("skipped", skipped))
	}
	log.Info(g.logTag+"lines read", zap.String("file", path), zap.Int("total", len(ls)))
	return
}
