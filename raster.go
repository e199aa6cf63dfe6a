package gdalfade

import (
	"fmt"
	"os"
	"strconv"

	"github.com/wgdzlh/gdalfade/grid"
	"github.com/wgdzlh/gdalfade/log"
	"github.com/wgdzlh/gdalfade/utils"

	gdal "github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

func registerRasterDrivers() {
	gdal.RegisterAll()
}

type gdalRaster struct {
	ds     *gdal.Dataset
	bands  []gdal.Band
	info   RasterInfo
	path   string
	logTag string
}

func (r *gdalRaster) Info() RasterInfo {
	return r.info
}

func (r *gdalRaster) band(i int) (b gdal.Band, err error) {
	if i < 1 || i > len(r.bands) {
		err = fmt.Errorf("%w: %s has no band %d", ErrStorage, r.path, i)
		return
	}
	b = r.bands[i-1]
	return
}

func (r *gdalRaster) io(op gdal.IOOperation, band int, w grid.Window, buf any) (err error) {
	b, err := r.band(band)
	if err != nil {
		return
	}
	width := r.info.Grid.Width
	if w.Y0 < 0 || w.End() > r.info.Grid.Height {
		return fmt.Errorf("%w: %s rows [%d, %d)", grid.ErrWindow, r.path, w.Y0, w.End())
	}
	switch v := buf.(type) {
	case []uint8:
		if len(v) < width*w.Rows {
			return fmt.Errorf("%w: buffer %d < %d", grid.ErrWindow, len(v), width*w.Rows)
		}
	case []float32:
		if len(v) < width*w.Rows {
			return fmt.Errorf("%w: buffer %d < %d", grid.ErrWindow, len(v), width*w.Rows)
		}
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, buf)
	}
	if err = b.IO(op, 0, w.Y0, buf, width, w.Rows); err != nil {
		log.Error(r.logTag+"band io failed", zap.String("tif", r.path), zap.Int("band", band), zap.Int("y0", w.Y0), zap.Error(err))
		err = fmt.Errorf("%w: %s band %d: %v", ErrStorage, r.path, band, err)
	}
	return
}

func (r *gdalRaster) Read(band int, w grid.Window, buf any) error {
	return r.io(gdal.IORead, band, w, buf)
}

func (r *gdalRaster) Write(band int, w grid.Window, buf any) error {
	return r.io(gdal.IOWrite, band, w, buf)
}

func (r *gdalRaster) Close() (err error) {
	if r.ds == nil {
		return
	}
	if err = r.ds.Close(); err != nil {
		err = fmt.Errorf("%w: close %s: %v", ErrStorage, r.path, err)
	}
	r.ds = nil
	return
}

func fileVersion(path string) string {
	fi, err := os.Stat(path)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%d-%d", fi.Size(), fi.ModTime().UnixNano())
}

func (g *GdalToolbox) wrapDataset(ds *gdal.Dataset, path string) *gdalRaster {
	st := ds.Structure()
	r := &gdalRaster{
		ds:     ds,
		bands:  ds.Bands(),
		path:   path,
		logTag: g.logTag,
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		gt = [6]float64{0, 1, 0, 0, 0, 1}
	}
	r.info = RasterInfo{
		Grid: grid.Grid{
			Width:      st.SizeX,
			Height:     st.SizeY,
			Transform:  grid.GeoTransform(gt),
			Projection: ds.Projection(),
		},
		Bands:   st.NBands,
		Version: fileVersion(path),
	}
	for i, b := range r.bands {
		if b.ColorInterp() == gdal.CIAlpha {
			r.info.AlphaBand = i + 1
			break
		}
	}
	return r
}

// 打开GeoTIFF
func (g *GdalToolbox) Open(path string) (ret Raster, err error) {
	ds, err := gdal.Open(path, gdal.RasterOnly())
	if err != nil {
		log.Error(g.logTag+"open tif failed", zap.String("tif", path), zap.Error(err))
		err = fmt.Errorf("%w: open %s: %v", ErrStorage, path, err)
		return
	}
	r := g.wrapDataset(ds, path)
	log.Debug(g.logTag+"tif opened", zap.String("tif", path), zap.Int("width", r.info.Grid.Width),
		zap.Int("height", r.info.Grid.Height), zap.Int("bands", r.info.Bands), zap.Int("alpha", r.info.AlphaBand))
	ret = r
	return
}

func godalType(dt DataType) (ret gdal.DataType, err error) {
	switch dt {
	case Byte:
		ret = gdal.Byte
	case Float32:
		ret = gdal.Float32
	default:
		err = fmt.Errorf("%w: %v", ErrUnsupportedType, dt)
	}
	return
}

// 创建分块压缩的GeoTIFF，已存在的同名文件被替换
func (g *GdalToolbox) Create(path string, gd grid.Grid, bands int, dt DataType, options []string) (ret Raster, err error) {
	gdt, err := godalType(dt)
	if err != nil {
		return
	}
	if err = utils.RemoveDataset(path); err != nil {
		err = fmt.Errorf("%w: %v", ErrStorage, err)
		return
	}
	log.Info(g.logTag+"create tif", zap.String("tif", path), zap.Int("bands", bands), zap.Stringer("dt", dt), zap.Strings("co", options))
	ds, err := gdal.Create(gdal.GTiff, path, bands, gdt, gd.Width, gd.Height, gdal.CreationOption(options...))
	if err != nil {
		log.Error(g.logTag+"create tif failed", zap.String("tif", path), zap.Error(err))
		err = fmt.Errorf("%w: create %s: %v", ErrStorage, path, err)
		return
	}
	if err = ds.SetGeoTransform(gd.Transform); err == nil && gd.Projection != "" {
		err = ds.SetProjection(gd.Projection)
	}
	if err != nil {
		ds.Close()
		err = fmt.Errorf("%w: georeference %s: %v", ErrStorage, path, err)
		return
	}
	r := g.wrapDataset(ds, path)
	r.info.Grid = gd
	ret = r
	return
}

func (g *GdalToolbox) Exists(path string) bool {
	return utils.Exists(path)
}

func (g *GdalToolbox) Remove(path string) (err error) {
	if err = utils.RemoveDataset(path); err != nil {
		err = fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return
}

// 生成单波段VRT
func (g *GdalToolbox) BandVRT(src string, band int, dst string) (err error) {
	ds, err := gdal.BuildVRT(dst, []string{src}, []string{"-b", strconv.Itoa(band), "-overwrite"})
	if err != nil {
		log.Error(g.logTag+"failed to build band vrt", zap.String("src", src), zap.Int("band", band), zap.Error(err))
		err = fmt.Errorf("%w: band vrt %s: %v", ErrStorage, dst, err)
		return
	}
	if err = ds.Close(); err != nil {
		err = fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return
}

// 各源按波段叠加为VRT，再转为GeoTIFF，最后一个波段为alpha
func (g *GdalToolbox) Composite(vrt, dst string, srcs []string, options []string) (err error) {
	log.Info(g.logTag+"composite rasters", zap.Strings("srcs", srcs), zap.String("out", dst))
	vds, err := gdal.BuildVRT(vrt, srcs, []string{"-separate", "-overwrite"})
	if err != nil {
		log.Error(g.logTag+"failed to build vrt", zap.Error(err))
		return fmt.Errorf("%w: composite vrt %s: %v", ErrStorage, vrt, err)
	}
	defer vds.Close()
	switches := []string{"-of", "GTiff"}
	for _, o := range options {
		switches = append(switches, "-co", o)
	}
	switches = append(switches, "-co", "ALPHA=YES")
	ods, err := vds.Translate(dst, switches)
	if err != nil {
		log.Error(g.logTag+"failed to translate vrt", zap.Error(err))
		return fmt.Errorf("%w: translate %s: %v", ErrStorage, dst, err)
	}
	bands := ods.Bands()
	if len(bands) > 0 {
		if err = bands[len(bands)-1].SetColorInterp(gdal.CIAlpha); err != nil {
			ods.Close()
			return fmt.Errorf("%w: tag alpha band: %v", ErrStorage, err)
		}
	}
	if err = ods.Close(); err != nil {
		err = fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return
}

// 建立金字塔（最近邻重采样）
func (g *GdalToolbox) BuildOverviews(path string, levels []int, compression string) (err error) {
	if len(levels) == 0 {
		return
	}
	ds, err := gdal.Open(path, gdal.RasterOnly(), gdal.Update())
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrStorage, path, err)
	}
	defer ds.Close()
	opts := []gdal.BuildOverviewsOption{gdal.Levels(levels...), gdal.Resampling(gdal.Nearest)}
	if compression != "" {
		opts = append(opts, gdal.ConfigOption("COMPRESS_OVERVIEW="+compression))
	}
	log.Info(g.logTag+"build overviews", zap.String("tif", path), zap.Ints("levels", levels), zap.String("compress", compression))
	if err = ds.BuildOverviews(opts...); err != nil {
		log.Error(g.logTag+"build overviews failed", zap.Error(err))
		err = fmt.Errorf("%w: overviews %s: %v", ErrStorage, path, err)
	}
	return
}
