package rasalg

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/wgdzlh/gdalfade/grid"
)

var (
	ErrUnknownBackend = errors.New("unknown distance backend")
	ErrDistanceRange  = errors.New("fade distance out of range")
)

// 竖向距离以uint16保存，距离上限需小于该值
const MaxFadeDistance = math.MaxUint16 - 1

// DistanceTransform 计算每个像元到最近前景像元(值为1)的欧氏距离（像元单位），超过maxDist记为maxDist。
// src为带缓冲行的窗口，dst为输出条带，其首行对应src的第y0行。
type DistanceTransform interface {
	Transform(src *grid.Band[uint8], dst *grid.Band[float32], y0 int, maxDist float64) error
}

var (
	backendMu sync.RWMutex
	backends  = map[string]func() DistanceTransform{
		"native": func() DistanceTransform { return Euclidean{} },
	}
)

// 注册距离变换实现
func RegisterBackend(name string, f func() DistanceTransform) {
	backendMu.Lock()
	defer backendMu.Unlock()
	backends[name] = f
}

func Backend(name string) (DistanceTransform, error) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	f, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	return f(), nil
}

func Backends() (names []string) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	for k := range backends {
		names = append(names, k)
	}
	sort.Strings(names)
	return
}

// 计算距离所需的上下缓冲行数
func Halo(maxDist float64) int {
	return int(math.Ceil(maxDist))
}

// Euclidean 为精确欧氏距离变换：逐列求竖向最近距离，再逐行求下包络（Felzenszwalb-Huttenlocher）
type Euclidean struct{}

func (Euclidean) Transform(src *grid.Band[uint8], dst *grid.Band[float32], y0 int, maxDist float64) error {
	if !(maxDist > 0) || maxDist > MaxFadeDistance {
		return fmt.Errorf("%w: %v", ErrDistanceRange, maxDist)
	}
	w, rows := src.Width, dst.Height
	if dst.Width != w || y0 < 0 || y0+rows > src.Height {
		return fmt.Errorf("%w: window %dx%d at %d, source %dx%d", grid.ErrWindow, dst.Width, rows, y0, src.Width, src.Height)
	}
	capV := uint16(math.Min(math.Ceil(maxDist)+1, MaxFadeDistance))
	vert := verticalDistances(src, y0, rows, capV)

	f := make([]float64, w)
	sites := make([]int, 0, w)
	z := make([]float64, w+1)
	d := float32(maxDist)
	for y := 0; y < rows; y++ {
		g := vert[y*w : (y+1)*w]
		sites = sites[:0]
		for x, v := range g {
			if v < capV {
				f[x] = float64(v) * float64(v)
				sites = append(sites, x)
			}
		}
		out := dst.Row(y)
		if len(sites) == 0 {
			for x := range out {
				out[x] = d
			}
			continue
		}
		env := lowerEnvelope(f, sites, z)
		k := 0
		for x := 0; x < w; x++ {
			for k < len(env)-1 && z[k+1] < float64(x) {
				k++
			}
			q := env[k]
			dx := float64(x - q)
			dist := math.Sqrt(dx*dx + f[q])
			if dist >= maxDist {
				out[x] = d
			} else {
				out[x] = float32(dist)
			}
		}
	}
	return nil
}

// 每列向上、向下两次扫描，得到输出行上到最近前景的竖向距离（截断到capV）
func verticalDistances(src *grid.Band[uint8], y0, rows int, capV uint16) []uint16 {
	w := src.Width
	vert := make([]uint16, w*rows)
	last := make([]int, w)
	for x := range last {
		last[x] = -1 << 30
	}
	for y := 0; y < y0+rows; y++ {
		row := src.Row(y)
		for x, v := range row {
			if v == 1 {
				last[x] = y
			}
		}
		if y < y0 {
			continue
		}
		out := vert[(y-y0)*w : (y-y0+1)*w]
		for x := range out {
			out[x] = clampU16(y-last[x], capV)
		}
	}
	for x := range last {
		last[x] = 1 << 30
	}
	for y := src.Height - 1; y >= y0; y-- {
		row := src.Row(y)
		for x, v := range row {
			if v == 1 {
				last[x] = y
			}
		}
		if y >= y0+rows {
			continue
		}
		out := vert[(y-y0)*w : (y-y0+1)*w]
		for x := range out {
			if d := clampU16(last[x]-y, capV); d < out[x] {
				out[x] = d
			}
		}
	}
	return vert
}

func clampU16(v int, c uint16) uint16 {
	if v >= int(c) {
		return c
	}
	return uint16(v)
}

// 抛物线下包络，返回包络上的站点，z[k]为第k段的左边界
func lowerEnvelope(f []float64, sites []int, z []float64) (env []int) {
	env = make([]int, 0, len(sites))
	for _, q := range sites {
		var s float64
		for len(env) > 0 {
			p := env[len(env)-1]
			s = ((f[q] + float64(q*q)) - (f[p] + float64(p*p))) / float64(2*q-2*p)
			if len(env) > 1 && s <= z[len(env)-1] {
				env = env[:len(env)-1]
				continue
			}
			break
		}
		if len(env) == 0 {
			z[0] = math.Inf(-1)
		} else {
			z[len(env)] = s
		}
		env = append(env, q)
		z[len(env)] = math.Inf(1)
	}
	return
}
