package gdalfade

import (
	"context"

	"github.com/wgdzlh/gdalfade/grid"
	"github.com/wgdzlh/gdalfade/vector"
)

type DataType int

const (
	Byte DataType = iota + 1
	Float32
)

func (d DataType) String() string {
	switch d {
	case Byte:
		return "Byte"
	case Float32:
		return "Float32"
	}
	return "Unknown"
}

// 栅格元数据
type RasterInfo struct {
	Grid      grid.Grid
	Bands     int
	AlphaBand int    // 颜色解释为alpha的波段（从1开始），0为无
	Version   string // 文件大小与修改时间，输入变化时缓存失效
}

// Raster 为打开的栅格数据集，按条带窗口读写。非并发安全
type Raster interface {
	Info() RasterInfo
	// buf为[]uint8或[]float32，长度为宽度×窗口行数
	Read(band int, w grid.Window, buf any) error
	Write(band int, w grid.Window, buf any) error
	Close() error
}

type RasterStore interface {
	Open(path string) (Raster, error)
	Create(path string, g grid.Grid, bands int, dt DataType, options []string) (Raster, error)
	Exists(path string) bool
	Remove(path string) error
	// 单波段VRT
	BandVRT(src string, band int, dst string) error
	// 将srcs按序叠加为vrt后转为dst，最后一个波段标记为alpha
	Composite(vrt, dst string, srcs []string, options []string) error
	BuildOverviews(path string, levels []int, compression string) error
}

type VectorStore interface {
	WritePolygons(path, srs string, ps []vector.Polygon) error
	ReadPolygons(path string) ([]vector.Polygon, error)
	WriteLines(path, srs string, ls []vector.LineString) error
	ReadLines(path string) (ls []vector.LineString, srs string, err error)
	Exists(path string) bool
	// 两个WKT是否表示同一坐标系
	SameCRS(a, b string) bool
}

// GeometryBackend 负责面修复与向内缓冲
type GeometryBackend interface {
	Repair(ps []vector.Polygon) ([]vector.Polygon, error)
	Offset(ps []vector.Polygon, d float64, quadSegs int) ([]vector.Polygon, error)
}

// EditCheckpoint 在边界线生成后等待人工编辑，返回即表示确认
type EditCheckpoint interface {
	Await(ctx context.Context, linesPath string) error
}
