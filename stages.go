package gdalfade

import (
	"fmt"
	"sync/atomic"

	"github.com/wgdzlh/gdalfade/grid"
	"github.com/wgdzlh/gdalfade/rasalg"
	"github.com/wgdzlh/gdalfade/vector"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"
)

type maskParams struct {
	Input     string
	Version   string
	Grid      grid.Grid
	AlphaBand int
	Threshold int
}

type extentParams struct {
	Connectivity int
}

type offsetParams struct {
	OffsetFactor float64
	QuadSegs     int
	Backend      string
	Format       string
}

type boundaryParams struct {
	Grid grid.Grid
}

type distanceParams struct {
	FadeDistance int
	Backend      string
}

type alphaParams struct {
	FadeDistance int
}

type compositeParams struct {
	Input        string
	Version      string
	AlphaBand    int
	Output       string
	Options      []string
	Levels       []int
	OverviewComp string
}

func closeAll(err *error, rs ...Raster) {
	for _, r := range rs {
		if e := r.Close(); e != nil && *err == nil {
			*err = e
		}
	}
}

func countOnes(buf []uint8) (n int64) {
	for _, v := range buf {
		if v == 1 {
			n++
		}
	}
	return
}

// 提取不透明掩膜
func (r *run) maskStage() (fp Fingerprint, err error) {
	out := r.path(ALPHA_MASK_TIF)
	params := maskParams{
		Input:     r.input,
		Version:   r.info.Version,
		Grid:      r.info.Grid,
		AlphaBand: r.alphaBand,
		Threshold: rasalg.AlphaThreshold,
	}
	fp, stats, err := r.stage(StageMask, params, nil, []string{out}, func(stats map[string]int64) (err error) {
		src, err := r.rasters.Open(r.input)
		if err != nil {
			return
		}
		dst, err := r.rasters.Create(out, r.info.Grid, 1, Byte, r.cfg.WorkingCompression.CreationOptions())
		if err != nil {
			closeAll(&err, src)
			return
		}
		defer closeAll(&err, src, dst)
		var (
			io     stripIO
			opaque atomic.Int64
			width  = r.info.Grid.Width
		)
		err = forStrips(r.ctx, r.strips(), r.cfg.Workers, func(w grid.Window) error {
			alpha := make([]uint8, width*w.Rows)
			if err := io.do(func() error { return src.Read(r.alphaBand, w, alpha) }); err != nil {
				return err
			}
			mask := make([]uint8, len(alpha))
			rasalg.ExtractMask(alpha, mask)
			opaque.Add(countOnes(mask))
			return io.do(func() error { return dst.Write(1, w, mask) })
		})
		stats["opaque"] = opaque.Load()
		return
	})
	r.sum.OpaquePixels = stats["opaque"]
	return
}

// 逐行矢量化掩膜并转为地理坐标
func (r *run) extentStage(maskFp Fingerprint) (fp Fingerprint, err error) {
	out := r.vectorPath(EXTENT_VEC)
	params := extentParams{Connectivity: r.cfg.Connectivity}
	fp, stats, err := r.stage(StageExtent, params, []Fingerprint{maskFp}, []string{out}, func(stats map[string]int64) (err error) {
		src, err := r.rasters.Open(r.path(ALPHA_MASK_TIF))
		if err != nil {
			return
		}
		defer closeAll(&err, src)
		g := r.info.Grid
		pz := vector.NewPolygonizer(g.Width, r.cfg.Connectivity, 1)
		for _, w := range r.strips() {
			if err = r.ctx.Err(); err != nil {
				return
			}
			b := grid.NewBand[uint8](g.Width, w.Rows)
			if err = src.Read(1, w, b.Pix); err != nil {
				return
			}
			for y := 0; y < w.Rows; y++ {
				if err = pz.AddRow(b.Row(y)); err != nil {
					return
				}
			}
		}
		ps, err := pz.Finish()
		if err != nil {
			return
		}
		for i := range ps {
			ps[i] = ps[i].Map(func(v r2.Vec) r2.Vec {
				x, y := g.Transform.Apply(v.X, v.Y)
				return r2.Vec{X: x, Y: y}
			}).Normalized()
		}
		stats["polygons"] = int64(len(ps))
		stats["foreground"] = int64(len(vector.FilterValue(ps, 1)))
		return r.vectors.WritePolygons(out, g.Projection, ps)
	})
	r.sum.Polygons = stats["foreground"]
	return
}

// 修复、筛选并向内缓冲，输出供人工编辑的边界线
func (r *run) offsetStage(extentFp Fingerprint) (fp Fingerprint, err error) {
	out := r.vectorPath(EXTENT_OFFSET_VEC)
	lines := r.vectorPath(BOUNDARY_LINE_VEC)
	params := offsetParams{
		OffsetFactor: r.cfg.OffsetFactor,
		QuadSegs:     r.cfg.QuadSegs,
		Backend:      r.cfg.GeometryBackend,
		Format:       r.cfg.VectorFormat,
	}
	fp, _, err = r.stage(StageOffset, params, []Fingerprint{extentFp}, []string{out, lines}, func(stats map[string]int64) (err error) {
		ps, err := r.vectors.ReadPolygons(r.vectorPath(EXTENT_VEC))
		if err != nil {
			return
		}
		fixed, err := r.geometry.Repair(ps)
		if err != nil {
			return
		}
		fg := vector.FilterValue(fixed, 1)
		if len(fg) == 0 {
			return fmt.Errorf("%w: no opaque polygon", ErrEmptyBoundary)
		}
		d := r.cfg.OffsetFactor * r.info.Grid.AvgPixelSize()
		shrunk, err := r.geometry.Offset(fg, d, r.cfg.QuadSegs)
		if err != nil {
			return
		}
		if len(shrunk) == 0 {
			return fmt.Errorf("%w: offset by %g eroded every polygon", ErrEmptyBoundary, d)
		}
		stats["repaired"] = int64(len(fixed))
		stats["offset"] = int64(len(shrunk))
		if err = r.vectors.WritePolygons(out, r.info.Grid.Projection, shrunk); err != nil {
			return
		}
		return r.vectors.WriteLines(lines, r.info.Grid.Projection, vector.BoundaryLines(shrunk))
	})
	return
}

// 人工编辑检查点，之后总是重新读取边界线
func (r *run) editedLines() (fp Fingerprint, ls []vector.LineString, err error) {
	path := r.vectorPath(BOUNDARY_LINE_VEC)
	if r.cfg.InteractiveEdit {
		r.log.Info(r.logTag+"waiting for manual edit", zap.String("lines", path))
		if err = r.checkpoint.Await(r.ctx, path); err != nil {
			err = fmt.Errorf("%w: %w", ErrEditAborted, err)
			return
		}
	}
	ls, srs, err := r.vectors.ReadLines(path)
	if err != nil {
		return
	}
	if !r.vectors.SameCRS(srs, r.info.Grid.Projection) {
		err = fmt.Errorf("%w: %s is not in the raster CRS", ErrGridMismatch, path)
		return
	}
	fp = linesFingerprint(ls)
	r.log.Info(r.logTag+"boundary lines loaded", zap.Int("lines", len(ls)), zap.Stringer("fp", fp))
	return
}

// 栅格化边界线
func (r *run) boundaryStage(linesFp Fingerprint, ls []vector.LineString) (fp Fingerprint, err error) {
	out := r.path(BOUNDARY_TIF)
	params := boundaryParams{Grid: r.info.Grid}
	fp, stats, err := r.stage(StageBoundary, params, []Fingerprint{linesFp}, []string{out}, func(stats map[string]int64) (err error) {
		rz, err := rasalg.NewRasterizer(r.info.Grid, r.cfg.StripRows)
		if err != nil {
			return
		}
		rz.AddLines(ls)
		dst, err := r.rasters.Create(out, r.info.Grid, 1, Byte, r.cfg.WorkingCompression.CreationOptions())
		if err != nil {
			return
		}
		defer closeAll(&err, dst)
		var (
			io     stripIO
			burned atomic.Int64
		)
		err = forStrips(r.ctx, r.strips(), r.cfg.Workers, func(w grid.Window) error {
			buf := make([]uint8, r.info.Grid.Width*w.Rows)
			burned.Add(int64(rz.Burn(w, buf)))
			return io.do(func() error { return dst.Write(1, w, buf) })
		})
		if err != nil {
			return
		}
		if stats["burned"] = burned.Load(); stats["burned"] == 0 {
			err = fmt.Errorf("%w: no pixel burned", ErrEmptyBoundary)
		}
		return
	})
	r.sum.BoundaryPixels = stats["burned"]
	return
}

// 带缓冲行的分条带距离变换
func (r *run) distanceStage(boundaryFp Fingerprint) (fp Fingerprint, err error) {
	out := r.path(DISTANCE_TIF)
	params := distanceParams{FadeDistance: r.cfg.FadeDistancePixels, Backend: r.cfg.DistanceBackend}
	fp, _, err = r.stage(StageDistance, params, []Fingerprint{boundaryFp}, []string{out}, func(stats map[string]int64) (err error) {
		src, err := r.rasters.Open(r.path(BOUNDARY_TIF))
		if err != nil {
			return
		}
		dst, err := r.rasters.Create(out, r.info.Grid, 1, Float32, r.cfg.WorkingCompression.CreationOptions())
		if err != nil {
			closeAll(&err, src)
			return
		}
		defer closeAll(&err, src, dst)
		var (
			io     stripIO
			g      = r.info.Grid
			maxD   = r.cfg.fadeDistance()
			halo   = rasalg.Halo(maxD)
			haloed atomic.Int64
		)
		err = forStrips(r.ctx, r.strips(), r.cfg.Workers, func(w grid.Window) error {
			e := w.Expand(halo, g.Height)
			haloed.Add(int64(e.Rows - w.Rows))
			in := grid.NewBand[uint8](g.Width, e.Rows)
			if err := io.do(func() error { return src.Read(1, e, in.Pix) }); err != nil {
				return err
			}
			d := grid.NewBand[float32](g.Width, w.Rows)
			if err := r.distance.Transform(in, d, w.Y0-e.Y0, maxD); err != nil {
				return err
			}
			return io.do(func() error { return dst.Write(1, w, d.Pix) })
		})
		stats["halo_rows"] = haloed.Load()
		return
	})
	return
}

// 距离映射为透明度
func (r *run) alphaStage(maskFp, distanceFp Fingerprint) (fp Fingerprint, err error) {
	out := r.path(ALPHA_TIF)
	params := alphaParams{FadeDistance: r.cfg.FadeDistancePixels}
	fp, _, err = r.stage(StageAlpha, params, []Fingerprint{maskFp, distanceFp}, []string{out}, func(stats map[string]int64) (err error) {
		mask, err := r.rasters.Open(r.path(ALPHA_MASK_TIF))
		if err != nil {
			return
		}
		dist, err := r.rasters.Open(r.path(DISTANCE_TIF))
		if err != nil {
			closeAll(&err, mask)
			return
		}
		dst, err := r.rasters.Create(out, r.info.Grid, 1, Byte, r.cfg.WorkingCompression.CreationOptions())
		if err != nil {
			closeAll(&err, mask, dist)
			return
		}
		defer closeAll(&err, mask, dist, dst)
		var (
			io    stripIO
			maxD  = r.cfg.fadeDistance()
			width = r.info.Grid.Width
			full  atomic.Int64
		)
		err = forStrips(r.ctx, r.strips(), r.cfg.Workers, func(w grid.Window) error {
			n := width * w.Rows
			m := make([]uint8, n)
			d := make([]float32, n)
			err := io.do(func() error {
				if err := mask.Read(1, w, m); err != nil {
					return err
				}
				return dist.Read(1, w, d)
			})
			if err != nil {
				return err
			}
			a := make([]uint8, n)
			rasalg.ComposeAlpha(m, d, maxD, a)
			var opaque int64
			for _, v := range a {
				if v == 255 {
					opaque++
				}
			}
			full.Add(opaque)
			return io.do(func() error { return dst.Write(1, w, a) })
		})
		stats["opaque_255"] = full.Load()
		return
	})
	return
}

// 颜色波段与新alpha合成输出，并建金字塔
func (r *run) compositeStage(alphaFp Fingerprint) (err error) {
	alphaPath := r.path(ALPHA_TIF)
	levels := r.cfg.OverviewLevels
	if len(levels) == 0 {
		levels = OverviewLevels(r.info.Grid.Width, r.info.Grid.Height, r.cfg.ColorCompression.BlockSize)
	}
	var (
		srcs      []string
		artifacts []string
	)
	for b := 1; b <= r.info.Bands; b++ {
		if b == r.alphaBand {
			continue
		}
		srcs = append(srcs, r.path(bandVRTName(b)))
	}
	vrt := r.path(COMPOSITE_VRT)
	artifacts = append(artifacts, srcs...)
	artifacts = append(artifacts, vrt, r.output)
	params := compositeParams{
		Input:        r.input,
		Version:      r.info.Version,
		AlphaBand:    r.alphaBand,
		Output:       r.output,
		Options:      r.cfg.ColorCompression.CreationOptions(),
		Levels:       levels,
		OverviewComp: r.cfg.OverviewCompression,
	}
	_, _, err = r.stage(StageComposite, params, []Fingerprint{alphaFp}, artifacts, func(stats map[string]int64) (err error) {
		if r.rasters.Exists(r.output) {
			if err = r.checkOutput(); err != nil {
				return
			}
			if err = r.rasters.Remove(r.output); err != nil {
				return
			}
		}
		alpha, err := r.rasters.Open(alphaPath)
		if err != nil {
			return
		}
		ag := alpha.Info().Grid
		if err = alpha.Close(); err != nil {
			return
		}
		if !ag.SameShape(r.info.Grid) || !r.vectors.SameCRS(ag.Projection, r.info.Grid.Projection) {
			return fmt.Errorf("%w: alpha raster does not match the input grid", ErrGridMismatch)
		}
		j := 0
		for b := 1; b <= r.info.Bands; b++ {
			if b == r.alphaBand {
				continue
			}
			if err = r.rasters.BandVRT(r.input, b, srcs[j]); err != nil {
				return
			}
			j++
		}
		if err = r.rasters.Composite(vrt, r.output, append(srcs[:len(srcs):len(srcs)], alphaPath), params.Options); err != nil {
			return
		}
		stats["bands"] = int64(len(srcs) + 1)
		stats["overviews"] = int64(len(levels))
		return r.rasters.BuildOverviews(r.output, levels, r.cfg.OverviewCompression)
	})
	return
}
