package gdalfade

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"COMPRESS=LZW", "PREDICTOR=2", "NUM_THREADS=ALL_CPUS", "BIGTIFF=IF_SAFER",
		"TILED=YES", "PHOTOMETRIC=RGB",
	}
	if diff := cmp.Diff(want, cfg.ColorCompression.CreationOptions()); diff != "" {
		t.Errorf("color options (-want +got):\n%s", diff)
	}
	want = []string{
		"COMPRESS=ZSTD", "ZSTD_LEVEL=1", "PREDICTOR=1", "NUM_THREADS=ALL_CPUS", "BIGTIFF=IF_SAFER", "TILED=YES",
	}
	if diff := cmp.Diff(want, cfg.WorkingCompression.CreationOptions()); diff != "" {
		t.Errorf("working options (-want +got):\n%s", diff)
	}
}

func TestCreationOptions(t *testing.T) {
	c := Compression{Codec: "deflate", Level: 6, Tiled: true, BlockSize: 512, Extra: []string{"SPARSE_OK=TRUE"}}
	want := []string{"COMPRESS=DEFLATE", "ZLEVEL=6", "TILED=YES", "BLOCKXSIZE=512", "BLOCKYSIZE=512", "SPARSE_OK=TRUE"}
	if diff := cmp.Diff(want, c.CreationOptions()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	// LZW没有级别参数
	c = Compression{Codec: "LZW", Level: 9}
	if diff := cmp.Diff([]string{"COMPRESS=LZW"}, c.CreationOptions()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(c *Config)
	}{
		{"zero fade", func(c *Config) { c.FadeDistancePixels = 0 }},
		{"huge fade", func(c *Config) { c.FadeDistancePixels = 1 << 20 }},
		{"connectivity", func(c *Config) { c.Connectivity = 6 }},
		{"offset zero", func(c *Config) { c.OffsetFactor = 0 }},
		{"offset half", func(c *Config) { c.OffsetFactor = 0.5 }},
		{"quad segs", func(c *Config) { c.QuadSegs = 0 }},
		{"strip rows", func(c *Config) { c.StripRows = 0 }},
		{"workers", func(c *Config) { c.Workers = -1 }},
		{"alpha band", func(c *Config) { c.AlphaBand = 0 }},
		{"overview level", func(c *Config) { c.OverviewLevels = []int{2, 1} }},
		{"vector format", func(c *Config) { c.VectorFormat = "kml" }},
		{"geometry backend", func(c *Config) { c.GeometryBackend = "geos" }},
		{"distance backend", func(c *Config) { c.DistanceBackend = "gpu" }},
		{"overview codec", func(c *Config) { c.OverviewCompression = "RAR" }},
		{"color codec", func(c *Config) { c.ColorCompression.Codec = "GZIP" }},
		{"predictor", func(c *Config) { c.WorkingCompression.Predictor = 4 }},
		{"block size", func(c *Config) { c.ColorCompression.BlockSize = 100 }},
		{"extra option", func(c *Config) { c.ColorCompression.Extra = []string{"SPARSE_OK"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.edit(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fade.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
fade_distance_pixels: 120
connectivity: 8
interactive_edit: true
vector_format: shp
overview_levels: [2, 4, 8]
color_compression:
  codec: JPEG
  level: 85
  photometric: YCBCR
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	want := DefaultConfig()
	want.FadeDistancePixels = 120
	want.Connectivity = 8
	want.InteractiveEdit = true
	want.VectorFormat = VectorSHP
	want.OverviewLevels = []int{2, 4, 8}
	cc := cfg.ColorCompression
	if cc.Codec != "JPEG" || cc.Level != 85 || cc.Photometric != "YCBCR" {
		t.Errorf("color compression = %+v", cc)
	}
	want.ColorCompression = cc
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestLoadConfigEmpty(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestLoadConfigRejects(t *testing.T) {
	for name, content := range map[string]string{
		"unknown field": "fade_distance: 10\n",
		"bad type":      "connectivity: eight\n",
		"invalid value": "offset_factor: 0.9\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, content)); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file loaded")
	}
}
