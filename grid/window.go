package grid

import "errors"

var ErrWindow = errors.New("window out of range")

// Window 为整行宽度的条带窗口 [Y0, Y0+Rows)
type Window struct {
	Y0   int
	Rows int
}

func (w Window) End() int {
	return w.Y0 + w.Rows
}

// 按固定行数切分条带，最后一条可能较短
func Strips(height, rows int) (ws []Window) {
	if rows <= 0 {
		rows = height
	}
	for y := 0; y < height; y += rows {
		n := rows
		if y+n > height {
			n = height - y
		}
		ws = append(ws, Window{Y0: y, Rows: n})
	}
	return
}

// 向上下各扩展halo行，并裁剪到[0, height)
func (w Window) Expand(halo, height int) Window {
	y0 := w.Y0 - halo
	if y0 < 0 {
		y0 = 0
	}
	y1 := w.End() + halo
	if y1 > height {
		y1 = height
	}
	return Window{Y0: y0, Rows: y1 - y0}
}
