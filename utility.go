package gdalfade

import (
	"fmt"
	"path/filepath"

	"github.com/wgdzlh/gdalfade/utils"
)

const defaultBlockSize = 256

// 金字塔层级：2的幂，直到短边不足一个块
func OverviewLevels(width, height, blockSize int) (levels []int) {
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}
	side := min(width, height)
	for l := 2; side/l >= blockSize; l *= 2 {
		levels = append(levels, l)
	}
	return
}

// 默认输出：<输入目录>/<名称>Faded.tif
func DefaultOutputPath(input string) string {
	return filepath.Join(filepath.Dir(input), utils.GetFilenameWithoutExt(input)+OutputSuffix+FILE_EXT_TIF)
}

// 默认中间目录：<输入目录>/<名称>FadeProcess
func DefaultScratchDir(input string) string {
	return filepath.Join(filepath.Dir(input), utils.GetFilenameWithoutExt(input)+ScratchSuffix)
}

func vectorExt(format string) string {
	if format == VectorSHP {
		return FILE_EXT_SHP
	}
	return FILE_EXT_GPKG
}

func bandVRTName(band int) string {
	return fmt.Sprintf(BAND_VRT, band)
}
