// Package rasalg 包含渐变掩膜流水线中的逐像元栅格算法
package rasalg

import "github.com/wgdzlh/gdalfade/grid"

// 透明度阈值（0-255的中点），大于该值视为不透明
const AlphaThreshold = 127

// 由透明度波段提取二值掩膜：alpha>127为1，否则为0
func ExtractMask(alpha []uint8, mask []uint8) {
	for i, a := range alpha {
		if a > AlphaThreshold {
			mask[i] = 1
		} else {
			mask[i] = 0
		}
	}
}

// 对内存波段提取掩膜
func MaskBand(alpha *grid.Band[uint8]) *grid.Band[uint8] {
	m := grid.NewBand[uint8](alpha.Width, alpha.Height)
	ExtractMask(alpha.Pix, m.Pix)
	return m
}
