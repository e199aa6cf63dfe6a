package vector

import (
	"errors"
	"fmt"
	"sort"

	"github.com/wgdzlh/gdalfade/grid"

	"gonum.org/v1/gonum/spatial/r2"
)

var (
	ErrRowWidth    = errors.New("row width mismatch")
	ErrBrokenChain = errors.New("broken boundary chain")
)

type run struct {
	x0, x1 int
	v      uint8
	label  int32
}

type vertex struct {
	x, y int32
}

// 像元裂缝边，区域位于前进方向左侧
type crack struct {
	from, to vertex
	label    int32
}

// Polygonizer 逐行读入掩膜，按连通区域输出多边形（像素坐标）。
// 前景值使用配置的连通性，其它值使用互补连通性，保证环之间不会交叉。
type Polygonizer struct {
	width      int
	row        int
	foreground uint8
	eight      bool

	prev   []run
	cur    []run
	parent []int32
	value  []uint8
	cracks []crack
}

// connectivity为4或8，作用于前景值
func NewPolygonizer(width, connectivity int, foreground uint8) *Polygonizer {
	return &Polygonizer{
		width:      width,
		foreground: foreground,
		eight:      connectivity == 8,
	}
}

func (pz *Polygonizer) eightFor(v uint8) bool {
	return (v == pz.foreground) == pz.eight
}

func (pz *Polygonizer) newLabel(v uint8) int32 {
	id := int32(len(pz.parent))
	pz.parent = append(pz.parent, id)
	pz.value = append(pz.value, v)
	return id
}

func (pz *Polygonizer) find(a int32) int32 {
	for pz.parent[a] != a {
		pz.parent[a] = pz.parent[pz.parent[a]]
		a = pz.parent[a]
	}
	return a
}

// 合并时保留较小的标号，使根标号即区域在扫描顺序中的首个像元
func (pz *Polygonizer) union(a, b int32) int32 {
	ra, rb := pz.find(a), pz.find(b)
	if ra == rb {
		return ra
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	pz.parent[rb] = ra
	return ra
}

func (pz *Polygonizer) addCrack(x0, y0, x1, y1 int, label int32) {
	pz.cracks = append(pz.cracks, crack{
		from:  vertex{int32(x0), int32(y0)},
		to:    vertex{int32(x1), int32(y1)},
		label: label,
	})
}

// 读入下一行
func (pz *Polygonizer) AddRow(row []uint8) error {
	if len(row) != pz.width {
		return fmt.Errorf("%w: got %d, want %d", ErrRowWidth, len(row), pz.width)
	}
	if pz.width == 0 {
		pz.row++
		return nil
	}
	pz.cur = pz.cur[:0]
	x0 := 0
	for x := 1; x <= pz.width; x++ {
		if x == pz.width || row[x] != row[x0] {
			pz.cur = append(pz.cur, run{x0: x0, x1: x, v: row[x0], label: -1})
			x0 = x
		}
	}
	pz.label()
	pz.emitRow()
	pz.prev, pz.cur = pz.cur, pz.prev
	pz.row++
	return nil
}

// 与上一行的游程做连通合并
func (pz *Polygonizer) label() {
	j := 0
	for i := range pz.cur {
		c := &pz.cur[i]
		eight := pz.eightFor(c.v)
		for j > 0 && pz.prev[j-1].x1 >= c.x0 {
			j-- // 8连通时上一行的游程可能与相邻两个当前游程都接触
		}
		for ; j < len(pz.prev); j++ {
			p := pz.prev[j]
			if eight {
				if p.x0 > c.x1 {
					break
				}
				if p.x1 < c.x0 {
					continue
				}
			} else {
				if p.x0 >= c.x1 {
					break
				}
				if p.x1 <= c.x0 {
					continue
				}
			}
			if p.v != c.v {
				continue
			}
			if c.label < 0 {
				c.label = pz.find(p.label)
			} else {
				c.label = pz.union(c.label, p.label)
			}
		}
		if c.label < 0 {
			c.label = pz.newLabel(c.v)
		}
	}
}

func (pz *Polygonizer) emitRow() {
	y := pz.row
	cur := pz.cur
	// 左右边界及行内竖向裂缝
	pz.addCrack(0, y+1, 0, y, cur[0].label)
	for i := 1; i < len(cur); i++ {
		x := cur[i].x0
		pz.addCrack(x, y, x, y+1, cur[i-1].label)
		pz.addCrack(x, y+1, x, y, cur[i].label)
	}
	pz.addCrack(pz.width, y, pz.width, y+1, cur[len(cur)-1].label)

	if y == 0 {
		for _, c := range cur {
			pz.addCrack(c.x0, 0, c.x1, 0, c.label)
		}
		return
	}
	// 与上一行之间的横向裂缝
	i, j := 0, 0
	for i < len(pz.prev) && j < len(cur) {
		p, c := pz.prev[i], cur[j]
		a, b := max(p.x0, c.x0), min(p.x1, c.x1)
		if p.v != c.v && a < b {
			pz.addCrack(a, y, b, y, c.label)
			pz.addCrack(b, y, a, y, p.label)
		}
		if p.x1 == b {
			i++
		}
		if c.x1 == b {
			j++
		}
	}
}

// 结束读入，追踪各连通区域的环并组装多边形
func (pz *Polygonizer) Finish() (ps []Polygon, err error) {
	if pz.row == 0 || pz.width == 0 {
		return
	}
	for _, p := range pz.prev {
		pz.addCrack(p.x1, pz.row, p.x0, pz.row, p.label)
	}
	groups := map[int32][]crack{}
	var roots []int32
	for _, c := range pz.cracks {
		r := pz.find(c.label)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], c)
	}
	pz.cracks = nil
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	for _, r := range roots {
		v := pz.value[r]
		rings, e := traceRings(groups[r], pz.eightFor(v))
		if e != nil {
			err = fmt.Errorf("trace region %d: %w", r, e)
			return
		}
		ps = append(ps, assemble(rings, int(v))...)
		delete(groups, r)
	}
	return
}

func key(v vertex) int64 {
	return int64(v.y)<<32 | int64(uint32(v.x))
}

func dir(c crack) (dx, dy int32) {
	dx, dy = sign(c.to.x-c.from.x), sign(c.to.y-c.from.y)
	return
}

func sign(v int32) int32 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// 沿裂缝追踪闭合环；鞍点处4连通左转（紧贴当前像元），8连通右转（跨到对角像元）
func traceRings(cs []crack, eight bool) (rings [][]vertex, err error) {
	out := make(map[int64][]int, len(cs))
	for i, c := range cs {
		k := key(c.from)
		out[k] = append(out[k], i)
	}
	used := make([]bool, len(cs))
	for s := range cs {
		if used[s] {
			continue
		}
		ring := []vertex{cs[s].from}
		cur := s
		for {
			used[cur] = true
			v := cs[cur].to
			next := -1
			for _, n := range out[key(v)] {
				if used[n] && n != s {
					continue
				}
				if next < 0 {
					next = n
					continue
				}
				ix, iy := dir(cs[cur])
				nx, ny := dir(cs[n])
				left := ix*ny-iy*nx > 0
				if left != eight {
					next = n
				}
			}
			if next < 0 {
				err = ErrBrokenChain
				return
			}
			if next == s {
				break
			}
			ring = append(ring, v)
			cur = next
		}
		rings = append(rings, simplifyGridRing(ring))
	}
	return
}

// 去除共线顶点，并从最小(y,x)顶点开始
func simplifyGridRing(ring []vertex) []vertex {
	n := len(ring)
	out := make([]vertex, 0, n)
	for i := 0; i < n; i++ {
		a, b, c := ring[(i+n-1)%n], ring[i], ring[(i+1)%n]
		abx, aby := b.x-a.x, b.y-a.y
		bcx, bcy := c.x-b.x, c.y-b.y
		if int64(abx)*int64(bcy)-int64(aby)*int64(bcx) == 0 && int64(abx)*int64(bcx)+int64(aby)*int64(bcy) > 0 {
			continue
		}
		out = append(out, b)
	}
	m := 0
	for i, v := range out {
		if v.y < out[m].y || v.y == out[m].y && v.x < out[m].x {
			m = i
		}
	}
	return append(out[m:], out[:m]...)
}

func gridArea2(ring []vertex) (s int64) {
	n := len(ring)
	for i := 0; i < n; i++ {
		a, b := ring[i], ring[(i+1)%n]
		s += int64(a.x)*int64(b.y) - int64(b.x)*int64(a.y)
	}
	return
}

func toRing(ring []vertex) Ring {
	r := make(Ring, len(ring))
	for i, v := range ring {
		r[i] = r2.Vec{X: float64(v.x), Y: float64(v.y)}
	}
	return r
}

// 内侧像元中心：首条边左侧半个像元
func innerPoint(ring []vertex) r2.Vec {
	a, b := ring[0], ring[1%len(ring)]
	dx, dy := float64(sign(b.x-a.x)), float64(sign(b.y-a.y))
	return r2.Vec{X: float64(a.x) + dx/2 - dy/2, Y: float64(a.y) + dy/2 + dx/2}
}

// 正面积环为外环，负面积环为内环
func assemble(rings [][]vertex, value int) (ps []Polygon) {
	var holes [][]vertex
	for _, r := range rings {
		if gridArea2(r) > 0 {
			ps = append(ps, Polygon{Shell: toRing(r), Value: value})
		} else {
			holes = append(holes, r)
		}
	}
	sort.SliceStable(holes, func(i, j int) bool {
		a, b := holes[i][0], holes[j][0]
		return a.y < b.y || a.y == b.y && a.x < b.x
	})
	for _, h := range holes {
		owner := 0
		if len(ps) > 1 {
			p := innerPoint(h)
			for i := range ps {
				if pointInRing(p, ps[i].Shell) > 0 {
					owner = i
					break
				}
			}
		}
		if len(ps) == 0 {
			continue
		}
		ps[owner].Holes = append(ps[owner].Holes, toRing(h))
	}
	return
}

// 对整块内存掩膜做矢量化（多用于测试及小影像）
func Polygonize(b *grid.Band[uint8], connectivity int, foreground uint8) ([]Polygon, error) {
	pz := NewPolygonizer(b.Width, connectivity, foreground)
	for y := 0; y < b.Height; y++ {
		if err := pz.AddRow(b.Row(y)); err != nil {
			return nil, err
		}
	}
	return pz.Finish()
}
