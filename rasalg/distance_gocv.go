//go:build gocv

package rasalg

import (
	"fmt"
	"math"

	"github.com/wgdzlh/gdalfade/grid"

	"gocv.io/x/gocv"
)

func init() {
	RegisterBackend("opencv", func() DistanceTransform { return OpenCV{} })
}

// OpenCV 使用cv::distanceTransform（DIST_L2，精确掩膜）计算距离
type OpenCV struct{}

func (OpenCV) Transform(src *grid.Band[uint8], dst *grid.Band[float32], y0 int, maxDist float64) error {
	if !(maxDist > 0) || maxDist > MaxFadeDistance {
		return fmt.Errorf("%w: %v", ErrDistanceRange, maxDist)
	}
	w, rows := src.Width, dst.Height
	if dst.Width != w || y0 < 0 || y0+rows > src.Height {
		return fmt.Errorf("%w: window %dx%d at %d", grid.ErrWindow, dst.Width, rows, y0)
	}
	// OpenCV计算到0值像元的距离，需反转前景
	inv := make([]byte, len(src.Pix))
	for i, v := range src.Pix {
		if v != 1 {
			inv[i] = 255
		}
	}
	in, err := gocv.NewMatFromBytes(src.Height, w, gocv.MatTypeCV8U, inv)
	if err != nil {
		return err
	}
	defer in.Close()
	out := gocv.NewMat()
	defer out.Close()
	labels := gocv.NewMat()
	defer labels.Close()
	gocv.DistanceTransform(in, &out, &labels, gocv.DistL2, gocv.DistanceMaskPrecise, gocv.DistanceLabelCComp)
	d, err := out.DataPtrFloat32()
	if err != nil {
		return err
	}
	md := float32(maxDist)
	for y := 0; y < rows; y++ {
		row := d[(y0+y)*w : (y0+y+1)*w]
		o := dst.Row(y)
		for x, v := range row {
			if float64(v) >= maxDist || math.IsInf(float64(v), 0) {
				o[x] = md
			} else {
				o[x] = v
			}
		}
	}
	return nil
}
