package gdalfade

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/wgdzlh/gdalfade/grid"
	"github.com/wgdzlh/gdalfade/vector"
)

// 内存中的栅格/矢量存储，用于不依赖GDAL的流水线测试
type memStore struct {
	mu         sync.Mutex
	rasters    map[string]*memData
	vrts       map[string]memBandRef
	polys      map[string]memPolys
	lines      map[string]memLines
	created    map[string]int
	overviews  map[string][]int
	options    map[string][]string
	openFailAt   string
	createFailAt string
}

type memData struct {
	info RasterInfo
	dt   DataType
	b8   [][]uint8
	f32  [][]float32
	open atomic.Int32 // 未关闭的句柄数
}

type memBandRef struct {
	src  string
	band int
}

type memPolys struct {
	srs string
	ps  []vector.Polygon
}

type memLines struct {
	srs string
	ls  []vector.LineString
}

func newMemStore() *memStore {
	return &memStore{
		rasters:   map[string]*memData{},
		vrts:      map[string]memBandRef{},
		polys:     map[string]memPolys{},
		lines:     map[string]memLines{},
		created:   map[string]int{},
		overviews: map[string][]int{},
		options:   map[string][]string{},
	}
}

func newMemData(g grid.Grid, bands int, dt DataType) *memData {
	d := &memData{info: RasterInfo{Grid: g, Bands: bands, Version: "mem"}, dt: dt}
	for i := 0; i < bands; i++ {
		switch dt {
		case Float32:
			d.f32 = append(d.f32, make([]float32, g.Width*g.Height))
		default:
			d.b8 = append(d.b8, make([]uint8, g.Width*g.Height))
		}
	}
	return d
}

// 带alpha的输入：颜色波段填充可区分的值，alpha放在alphaBand
func (s *memStore) addInput(path string, g grid.Grid, bands, alphaBand int, alpha []uint8) *memData {
	d := newMemData(g, bands, Byte)
	for b := range d.b8 {
		if b+1 == alphaBand {
			copy(d.b8[b], alpha)
			continue
		}
		for i := range d.b8[b] {
			d.b8[b][i] = uint8(10*(b+1) + i%7)
		}
	}
	d.info.AlphaBand = alphaBand
	s.mu.Lock()
	s.rasters[path] = d
	s.mu.Unlock()
	return d
}

func (s *memStore) raster(path string) *memData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rasters[path]
}

func (s *memStore) createCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created[path]
}

type memRaster struct {
	d *memData
}

func (r memRaster) Info() RasterInfo {
	return r.d.info
}

func (r memRaster) span(band int, w grid.Window, n int) (lo, hi int, err error) {
	g := r.d.info.Grid
	if band < 1 || band > r.d.info.Bands {
		err = fmt.Errorf("%w: band %d", ErrMissingBand, band)
		return
	}
	if w.Y0 < 0 || w.Rows <= 0 || w.End() > g.Height || n != g.Width*w.Rows {
		err = grid.ErrWindow
		return
	}
	lo, hi = w.Y0*g.Width, w.End()*g.Width
	return
}

func (r memRaster) Read(band int, w grid.Window, buf any) error {
	return r.io(band, w, buf, false)
}

func (r memRaster) Write(band int, w grid.Window, buf any) error {
	return r.io(band, w, buf, true)
}

func (r memRaster) io(band int, w grid.Window, buf any, write bool) error {
	switch b := buf.(type) {
	case []uint8:
		if r.d.dt != Byte {
			return ErrUnsupportedType
		}
		lo, hi, err := r.span(band, w, len(b))
		if err != nil {
			return err
		}
		if write {
			copy(r.d.b8[band-1][lo:hi], b)
		} else {
			copy(b, r.d.b8[band-1][lo:hi])
		}
	case []float32:
		if r.d.dt != Float32 {
			return ErrUnsupportedType
		}
		lo, hi, err := r.span(band, w, len(b))
		if err != nil {
			return err
		}
		if write {
			copy(r.d.f32[band-1][lo:hi], b)
		} else {
			copy(b, r.d.f32[band-1][lo:hi])
		}
	default:
		return ErrUnsupportedType
	}
	return nil
}

func (r memRaster) Close() error {
	r.d.open.Add(-1)
	return nil
}

func (s *memStore) Open(path string) (Raster, error) {
	d := s.raster(path)
	if d == nil || path == s.openFailAt {
		return nil, fmt.Errorf("%w: open %s", ErrStorage, path)
	}
	d.open.Add(1)
	return memRaster{d}, nil
}

func (s *memStore) Create(path string, g grid.Grid, bands int, dt DataType, options []string) (Raster, error) {
	if path == s.createFailAt {
		return nil, fmt.Errorf("%w: create %s", ErrStorage, path)
	}
	d := newMemData(g, bands, dt)
	d.open.Add(1)
	s.mu.Lock()
	s.rasters[path] = d
	s.created[path]++
	s.options[path] = options
	s.mu.Unlock()
	return memRaster{d}, nil
}

func (s *memStore) Exists(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, r := s.rasters[path]
	_, v := s.vrts[path]
	_, p := s.polys[path]
	_, l := s.lines[path]
	return r || v || p || l
}

func (s *memStore) Remove(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rasters, path)
	delete(s.vrts, path)
	return nil
}

func (s *memStore) BandVRT(src string, band int, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.rasters[src]
	if !ok || band < 1 || band > d.info.Bands {
		return fmt.Errorf("%w: band %d of %s", ErrStorage, band, src)
	}
	s.vrts[dst] = memBandRef{src, band}
	return nil
}

// 按序叠加各来源的波段，最后一个为alpha
func (s *memStore) Composite(vrt, dst string, srcs []string, options []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		bands [][]uint8
		g     grid.Grid
	)
	for _, src := range srcs {
		ref, ok := s.vrts[src]
		if !ok {
			ref = memBandRef{src, 1}
		}
		d, ok := s.rasters[ref.src]
		if !ok || d.dt != Byte {
			return fmt.Errorf("%w: composite source %s", ErrStorage, src)
		}
		g = d.info.Grid
		bands = append(bands, append([]uint8(nil), d.b8[ref.band-1]...))
	}
	s.vrts[vrt] = memBandRef{}
	s.rasters[dst] = &memData{
		info: RasterInfo{Grid: g, Bands: len(bands), AlphaBand: len(bands), Version: "mem"},
		dt:   Byte,
		b8:   bands,
	}
	s.created[dst]++
	s.options[dst] = options
	return nil
}

func (s *memStore) BuildOverviews(path string, levels []int, compression string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rasters[path]; !ok {
		return fmt.Errorf("%w: overviews of %s", ErrStorage, path)
	}
	s.overviews[path] = levels
	return nil
}

func (s *memStore) WritePolygons(path, srs string, ps []vector.Polygon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polys[path] = memPolys{srs, ps}
	return nil
}

func (s *memStore) ReadPolygons(path string) ([]vector.Polygon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polys[path]
	if !ok {
		return nil, fmt.Errorf("%w: open %s", ErrStorage, path)
	}
	return p.ps, nil
}

func (s *memStore) WriteLines(path, srs string, ls []vector.LineString) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[path] = memLines{srs, ls}
	return nil
}

func (s *memStore) ReadLines(path string) ([]vector.LineString, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lines[path]
	if !ok {
		return nil, "", fmt.Errorf("%w: open %s", ErrStorage, path)
	}
	return l.ls, l.srs, nil
}

func (s *memStore) SameCRS(a, b string) bool {
	return a == b
}
