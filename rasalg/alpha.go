package rasalg

import "math"

// 生成渐变透明度：掩膜为0处为0，否则为round(d*255/D)并截断到[0,255]
func ComposeAlpha(mask []uint8, dist []float32, maxDist float64, alpha []uint8) {
	scale := 255 / maxDist
	for i, m := range mask {
		if m == 0 {
			alpha[i] = 0
			continue
		}
		v := math.Round(float64(dist[i]) * scale)
		switch {
		case v <= 0 || math.IsNaN(v):
			alpha[i] = 0
		case v >= 255:
			alpha[i] = 255
		default:
			alpha[i] = uint8(v)
		}
	}
}
