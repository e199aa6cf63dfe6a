package gdalfade

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/wgdzlh/gdalfade/grid"
	"github.com/wgdzlh/gdalfade/log"
	"github.com/wgdzlh/gdalfade/rasalg"
	"github.com/wgdzlh/gdalfade/vector"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	StageMask      = "mask"
	StageExtent    = "extent"
	StageOffset    = "offset"
	StageBoundary  = "boundary"
	StageDistance  = "distance"
	StageAlpha     = "alpha"
	StageComposite = "composite"
)

// 像元长宽比超过此值时告警
const anisotropyRatio = 2

// Fader 按顺序执行边缘渐变流水线
type Fader struct {
	cfg        Config
	rasters    RasterStore
	vectors    VectorStore
	geometry   GeometryBackend
	distance   rasalg.DistanceTransform
	checkpoint EditCheckpoint
	logTag     string
}

type Option func(*Fader)

func WithCheckpoint(c EditCheckpoint) Option {
	return func(f *Fader) {
		f.checkpoint = c
	}
}

func WithGeometryBackend(b GeometryBackend) Option {
	return func(f *Fader) {
		f.geometry = b
	}
}

func WithDistanceTransform(d rasalg.DistanceTransform) Option {
	return func(f *Fader) {
		f.distance = d
	}
}

func NewFader(cfg Config, rasters RasterStore, vectors VectorStore, opts ...Option) (f *Fader, err error) {
	if err = cfg.Validate(); err != nil {
		return
	}
	f = &Fader{
		cfg:        cfg,
		rasters:    rasters,
		vectors:    vectors,
		checkpoint: NoopCheckpoint{},
		logTag:     "Fader:",
	}
	if f.distance, err = rasalg.Backend(cfg.DistanceBackend); err != nil {
		return
	}
	switch cfg.GeometryBackend {
	case BackendOGR:
		f.geometry = NewOGRGeometry()
	default:
		f.geometry = vector.NativeGeometry{}
	}
	for _, o := range opts {
		o(f)
	}
	return
}

func (f *Fader) Config() Config {
	return f.cfg
}

// Summary 为一次运行的结果
type Summary struct {
	RunID          string
	Input          string
	Output         string
	ScratchDir     string
	Width          int
	Height         int
	OpaquePixels   int64
	Polygons       int64
	BoundaryPixels int64
	Ran            []string
	Skipped        []string
	Elapsed        time.Duration
}

// 单次运行的状态
type run struct {
	*Fader
	ctx       context.Context
	input     string
	info      RasterInfo
	alphaBand int
	dir       string
	output    string
	manifest  *Manifest
	sum       *Summary
	log       *zap.Logger
}

func (r *run) path(name string) string {
	return filepath.Join(r.dir, name)
}

func (r *run) vectorPath(name string) string {
	return r.path(name + vectorExt(r.cfg.VectorFormat))
}

func (r *run) strips() []grid.Window {
	return grid.Strips(r.info.Grid.Height, r.cfg.StripRows)
}

func (r *run) present(artifacts []string) bool {
	for _, a := range artifacts {
		if !r.rasters.Exists(a) && !r.vectors.Exists(a) {
			return false
		}
	}
	return true
}

// 执行一个阶段；指纹与产物均未变化时跳过
func (r *run) stage(name string, params any, upstream []Fingerprint, artifacts []string, exec func(stats map[string]int64) error) (fp Fingerprint, stats map[string]int64, err error) {
	if fp, err = fingerprint(name, params, upstream...); err != nil {
		return
	}
	if rec, ok := r.manifest.Lookup(name, fp); ok && r.present(artifacts) {
		r.log.Info(r.logTag+"stage cached, skip", zap.String("stage", name), zap.Stringer("fp", fp))
		r.sum.Skipped = append(r.sum.Skipped, name)
		stats = rec.Stats
		return
	}
	if err = r.ctx.Err(); err != nil {
		return
	}
	start := time.Now()
	r.log.Info(r.logTag+"stage start", zap.String("stage", name), zap.Stringer("fp", fp))
	stats = map[string]int64{}
	if err = exec(stats); err != nil {
		r.log.Error(r.logTag+"stage failed", zap.String("stage", name), zap.Error(err))
		err = fmt.Errorf("stage %s: %w", name, err)
		return
	}
	if err = r.manifest.Record(name, StageRecord{Fingerprint: fp, Artifacts: artifacts, Stats: stats}); err != nil {
		return
	}
	r.sum.Ran = append(r.sum.Ran, name)
	r.log.Info(r.logTag+"stage done", zap.String("stage", name), zap.Duration("elapsed", time.Since(start)), zap.Any("stats", stats))
	return
}

// 对input执行完整流水线
func (f *Fader) Run(ctx context.Context, input string) (sum Summary, err error) {
	start := time.Now()
	r := &run{
		Fader: f,
		ctx:   ctx,
		input: input,
		sum:   &sum,
	}
	sum.RunID = uuid.NewString()
	sum.Input = input
	r.log = log.L().WithOptions(zap.AddCallerSkip(-1)).With(zap.String("run", sum.RunID))
	defer func() {
		sum.Elapsed = time.Since(start)
	}()

	if err = r.inspect(); err != nil {
		return
	}
	r.dir = f.cfg.ScratchDir
	if r.dir == "" {
		r.dir = DefaultScratchDir(input)
	}
	r.output = f.cfg.Output
	if r.output == "" {
		r.output = DefaultOutputPath(input)
	}
	sum.ScratchDir, sum.Output = r.dir, r.output
	if r.manifest, err = LoadManifest(r.dir); err != nil {
		return
	}
	if err = r.checkOutput(); err != nil {
		return
	}
	if err = os.MkdirAll(r.dir, os.ModePerm); err != nil {
		err = fmt.Errorf("%w: scratch dir: %v", ErrStorage, err)
		return
	}
	r.log.Info(f.logTag+"start fading", zap.String("input", input), zap.String("scratch", r.dir),
		zap.String("output", r.output), zap.Int("fade", f.cfg.FadeDistancePixels))

	maskFp, err := r.maskStage()
	if err != nil {
		return
	}
	extentFp, err := r.extentStage(maskFp)
	if err != nil {
		return
	}
	if _, err = r.offsetStage(extentFp); err != nil {
		return
	}
	linesFp, lines, err := r.editedLines()
	if err != nil {
		return
	}
	boundaryFp, err := r.boundaryStage(linesFp, lines)
	if err != nil {
		return
	}
	distanceFp, err := r.distanceStage(boundaryFp)
	if err != nil {
		return
	}
	alphaFp, err := r.alphaStage(maskFp, distanceFp)
	if err != nil {
		return
	}
	if err = r.compositeStage(alphaFp); err != nil {
		return
	}
	r.log.Info(f.logTag+"fading done", zap.String("output", r.output), zap.Duration("elapsed", time.Since(start)),
		zap.Strings("ran", sum.Ran), zap.Strings("skipped", sum.Skipped))
	return
}

// 检查输入并确定alpha波段，在创建中间目录前完成
func (r *run) inspect() (err error) {
	src, err := r.rasters.Open(r.input)
	if err != nil {
		return
	}
	r.info = src.Info()
	if err = src.Close(); err != nil {
		return
	}
	if r.info.Bands < 4 {
		return fmt.Errorf("%w: %s has %d bands", ErrMissingBand, r.input, r.info.Bands)
	}
	r.alphaBand = r.info.AlphaBand
	if r.alphaBand == 0 {
		r.alphaBand = r.cfg.AlphaBand
	}
	if r.alphaBand > r.info.Bands {
		return fmt.Errorf("%w: alpha band %d of %d", ErrMissingBand, r.alphaBand, r.info.Bands)
	}
	r.sum.Width, r.sum.Height = r.info.Grid.Width, r.info.Grid.Height
	// 内缩距离按平均像元尺寸计算，长宽差异过大时短边方向可能超过半个像元
	if w, h := r.info.Grid.PixelSize(); math.Max(w, h) > anisotropyRatio*math.Min(w, h) {
		r.log.Warn(r.logTag+"anisotropic pixels, offset may miss the edge on the short axis",
			zap.Float64("pixel_w", w), zap.Float64("pixel_h", h),
			zap.Float64("offset", r.cfg.OffsetFactor*r.info.Grid.AvgPixelSize()))
	}
	return
}

// 输出是否由本中间目录此前的运行生成
func (r *run) ownsOutput() bool {
	if rec, ok := r.manifest.Stages[StageComposite]; ok {
		for _, a := range rec.Artifacts {
			if a == r.output {
				return true
			}
		}
	}
	return false
}

// 输出已存在且不是本中间目录生成的结果时，需要overwrite
func (r *run) checkOutput() error {
	if r.cfg.Overwrite || !r.rasters.Exists(r.output) || r.ownsOutput() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrOutputExists, r.output)
}
