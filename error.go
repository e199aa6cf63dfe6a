package gdalfade

import (
	"errors"

	"github.com/wgdzlh/gdalfade/vector"
)

var (
	ErrMissingBand          = errors.New("input raster has no alpha band")
	ErrUnrepairableGeometry = vector.ErrUnrepairable
	ErrEmptyBoundary        = errors.New("boundary is empty")
	ErrGridMismatch         = errors.New("grid mismatch")
	ErrStorage              = errors.New("storage err")
	ErrEditAborted          = errors.New("manual edit aborted")
	ErrOutputExists         = errors.New("output already exists")
	ErrInvalidConfig        = errors.New("invalid config")

	ErrGdalDriverCreate = errors.New("gdal driver create err")
	ErrGdalDriverOpen   = errors.New("gdal driver open err")
	ErrGdalWrongGeoType = errors.New("gdal wrong geo type")
	ErrUnsupportedType  = errors.New("unsupported raster buffer type")
)
