package gdalfade

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/wgdzlh/gdalfade/rasalg"

	"gopkg.in/yaml.v3"
)

const (
	FILE_EXT_TIF  = ".tif"
	FILE_EXT_VRT  = ".vrt"
	FILE_EXT_GPKG = ".gpkg"
	FILE_EXT_SHP  = ".shp"

	GPKG_DRIVER_NAME = "GPKG"
	SHP_DRIVER_NAME  = "ESRI Shapefile"
	SHAPE_ENCODING   = "UTF-8"
	ENCODING_OPTION  = "ENCODING=" + SHAPE_ENCODING

	FIELD_DN = "DN"

	VectorGPKG = "gpkg"
	VectorSHP  = "shp"

	BackendNative = "native"
	BackendOGR    = "ogr"

	OutputSuffix  = "Faded"
	ScratchSuffix = "FadeProcess"

	ALPHA_MASK_TIF    = "alpha_mask" + FILE_EXT_TIF
	EXTENT_VEC        = "extent"
	EXTENT_OFFSET_VEC = "extent_offset"
	BOUNDARY_LINE_VEC = "boundary_lines"
	BOUNDARY_TIF      = "boundary" + FILE_EXT_TIF
	DISTANCE_TIF      = "distance" + FILE_EXT_TIF
	ALPHA_TIF         = "alpha" + FILE_EXT_TIF
	BAND_VRT          = "band_%d" + FILE_EXT_VRT
	COMPOSITE_VRT     = "composite" + FILE_EXT_VRT
	MANIFEST_FILE     = "manifest.cbor"

	DefaultFadeDistance = 200
	DefaultOffsetFactor = 0.25
	DefaultQuadSegs     = 5
	DefaultStripRows    = 256
	DefaultAlphaBand    = 4
)

// Compression 为GeoTIFF创建参数
type Compression struct {
	Codec       string   `yaml:"codec"`
	Level       int      `yaml:"level"`
	Predictor   int      `yaml:"predictor"`
	Threads     string   `yaml:"threads"`
	Tiled       bool     `yaml:"tiled"`
	BlockSize   int      `yaml:"block_size"`
	BigTIFF     string   `yaml:"bigtiff"`
	Photometric string   `yaml:"photometric"`
	Extra       []string `yaml:"extra"` // 其他KEY=VALUE创建选项
}

var levelKeys = map[string]string{
	"ZSTD":    "ZSTD_LEVEL",
	"DEFLATE": "ZLEVEL",
	"LZMA":    "LZMA_PRESET",
	"JPEG":    "JPEG_QUALITY",
	"WEBP":    "WEBP_LEVEL",
}

var codecs = map[string]bool{
	"NONE": true, "LZW": true, "PACKBITS": true, "ZSTD": true, "DEFLATE": true,
	"LZMA": true, "JPEG": true, "WEBP": true, "LERC": true,
}

// 转为GDAL GTiff驱动的创建选项
func (c Compression) CreationOptions() (opts []string) {
	codec := strings.ToUpper(c.Codec)
	if codec != "" {
		opts = append(opts, "COMPRESS="+codec)
	}
	if key, ok := levelKeys[codec]; ok && c.Level > 0 {
		opts = append(opts, key+"="+strconv.Itoa(c.Level))
	}
	if c.Predictor > 0 {
		opts = append(opts, "PREDICTOR="+strconv.Itoa(c.Predictor))
	}
	if c.Threads != "" {
		opts = append(opts, "NUM_THREADS="+c.Threads)
	}
	if c.BigTIFF != "" {
		opts = append(opts, "BIGTIFF="+c.BigTIFF)
	}
	if c.Tiled {
		opts = append(opts, "TILED=YES")
		if c.BlockSize > 0 {
			bs := strconv.Itoa(c.BlockSize)
			opts = append(opts, "BLOCKXSIZE="+bs, "BLOCKYSIZE="+bs)
		}
	}
	if c.Photometric != "" {
		opts = append(opts, "PHOTOMETRIC="+c.Photometric)
	}
	opts = append(opts, c.Extra...)
	return
}

func (c Compression) validate(name string) error {
	if codec := strings.ToUpper(c.Codec); codec != "" && !codecs[codec] {
		return fmt.Errorf("%w: %s codec %q", ErrInvalidConfig, name, c.Codec)
	}
	if c.Level < 0 || c.Predictor < 0 || c.Predictor > 3 {
		return fmt.Errorf("%w: %s level/predictor", ErrInvalidConfig, name)
	}
	if c.BlockSize != 0 && (c.BlockSize < 16 || c.BlockSize%16 != 0) {
		return fmt.Errorf("%w: %s block size must be a multiple of 16", ErrInvalidConfig, name)
	}
	for _, o := range c.Extra {
		if k, _, ok := strings.Cut(o, "="); !ok || k == "" {
			return fmt.Errorf("%w: %s option %q", ErrInvalidConfig, name, o)
		}
	}
	return nil
}

// Config 为流水线参数，创建Fader后只读
type Config struct {
	FadeDistancePixels  int         `yaml:"fade_distance_pixels"`
	InteractiveEdit     bool        `yaml:"interactive_edit"`
	Connectivity        int         `yaml:"connectivity"`
	ColorCompression    Compression `yaml:"color_compression"`
	WorkingCompression  Compression `yaml:"working_compression"`
	OverviewCompression string      `yaml:"overview_compression"`
	OverviewLevels      []int       `yaml:"overview_levels"` // 为空时自动计算
	OffsetFactor        float64     `yaml:"offset_factor"`
	QuadSegs            int         `yaml:"quad_segs"`
	StripRows           int         `yaml:"strip_rows"`
	Workers             int         `yaml:"workers"` // 0为GOMAXPROCS
	AlphaBand           int         `yaml:"alpha_band"`
	Overwrite           bool        `yaml:"overwrite"`
	ScratchDir          string      `yaml:"scratch_dir"`
	Output              string      `yaml:"output"`
	VectorFormat        string      `yaml:"vector_format"`
	GeometryBackend     string      `yaml:"geometry_backend"`
	DistanceBackend     string      `yaml:"distance_backend"`
	LogLevel            string      `yaml:"log_level"`
	LogJSON             bool        `yaml:"log_json"`
}

func DefaultConfig() Config {
	return Config{
		FadeDistancePixels: DefaultFadeDistance,
		Connectivity:       4,
		ColorCompression: Compression{
			Codec:       "LZW",
			Predictor:   2,
			Threads:     "ALL_CPUS",
			Tiled:       true,
			BigTIFF:     "IF_SAFER",
			Photometric: "RGB",
		},
		WorkingCompression: Compression{
			Codec:     "ZSTD",
			Level:     1,
			Predictor: 1,
			Threads:   "ALL_CPUS",
			Tiled:     true,
			BigTIFF:   "IF_SAFER",
		},
		OverviewCompression: "DEFLATE",
		OffsetFactor:        DefaultOffsetFactor,
		QuadSegs:            DefaultQuadSegs,
		StripRows:           DefaultStripRows,
		AlphaBand:           DefaultAlphaBand,
		VectorFormat:        VectorGPKG,
		GeometryBackend:     BackendNative,
		DistanceBackend:     BackendNative,
		LogLevel:            "info",
	}
}

// 读取YAML配置文件，未出现的字段取默认值
func LoadConfig(path string) (c Config, err error) {
	c = DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err = dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			err = nil
		} else {
			err = fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
			return
		}
	}
	err = c.Validate()
	return
}

func (c Config) Validate() error {
	if c.FadeDistancePixels <= 0 || c.FadeDistancePixels > rasalg.MaxFadeDistance {
		return fmt.Errorf("%w: fade_distance_pixels %d out of (0, %d]", ErrInvalidConfig, c.FadeDistancePixels, rasalg.MaxFadeDistance)
	}
	if c.Connectivity != 4 && c.Connectivity != 8 {
		return fmt.Errorf("%w: connectivity must be 4 or 8", ErrInvalidConfig)
	}
	if !(c.OffsetFactor > 0 && c.OffsetFactor < 0.5) {
		return fmt.Errorf("%w: offset_factor %v out of (0, 0.5)", ErrInvalidConfig, c.OffsetFactor)
	}
	if c.QuadSegs < 1 {
		return fmt.Errorf("%w: quad_segs must be positive", ErrInvalidConfig)
	}
	if c.StripRows < 1 {
		return fmt.Errorf("%w: strip_rows must be positive", ErrInvalidConfig)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", ErrInvalidConfig)
	}
	if c.AlphaBand < 1 {
		return fmt.Errorf("%w: alpha_band must be positive", ErrInvalidConfig)
	}
	for _, l := range c.OverviewLevels {
		if l < 2 {
			return fmt.Errorf("%w: overview level %d", ErrInvalidConfig, l)
		}
	}
	switch c.VectorFormat {
	case VectorGPKG, VectorSHP:
	default:
		return fmt.Errorf("%w: vector_format %q", ErrInvalidConfig, c.VectorFormat)
	}
	switch c.GeometryBackend {
	case BackendNative, BackendOGR:
	default:
		return fmt.Errorf("%w: geometry_backend %q", ErrInvalidConfig, c.GeometryBackend)
	}
	if _, err := rasalg.Backend(c.DistanceBackend); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if oc := strings.ToUpper(c.OverviewCompression); oc != "" && !codecs[oc] {
		return fmt.Errorf("%w: overview_compression %q", ErrInvalidConfig, c.OverviewCompression)
	}
	if err := c.ColorCompression.validate("color_compression"); err != nil {
		return err
	}
	return c.WorkingCompression.validate("working_compression")
}

// 渐变距离（像元）
func (c Config) fadeDistance() float64 {
	return float64(c.FadeDistancePixels)
}
