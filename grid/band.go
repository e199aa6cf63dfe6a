package grid

import "golang.org/x/exp/constraints"

// Sample 为波段像元可用的数值类型
type Sample interface {
	constraints.Integer | constraints.Float
}

// Band 为内存中的单波段栅格块（行优先）
type Band[T Sample] struct {
	Width  int
	Height int
	Pix    []T
}

func NewBand[T Sample](width, height int) *Band[T] {
	return &Band[T]{
		Width:  width,
		Height: height,
		Pix:    make([]T, width*height),
	}
}

func (b *Band[T]) At(x, y int) T {
	return b.Pix[y*b.Width+x]
}

func (b *Band[T]) Set(x, y int, v T) {
	b.Pix[y*b.Width+x] = v
}

func (b *Band[T]) Row(y int) []T {
	return b.Pix[y*b.Width : (y+1)*b.Width]
}

// 截取[y0, y0+rows)行（共享底层数组）
func (b *Band[T]) Rows(y0, rows int) *Band[T] {
	return &Band[T]{
		Width:  b.Width,
		Height: rows,
		Pix:    b.Pix[y0*b.Width : (y0+rows)*b.Width],
	}
}

func (b *Band[T]) Fill(v T) {
	for i := range b.Pix {
		b.Pix[i] = v
	}
}

func (b *Band[T]) Count(v T) (n int) {
	for _, p := range b.Pix {
		if p == v {
			n++
		}
	}
	return
}
