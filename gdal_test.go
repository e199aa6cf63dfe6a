package gdalfade

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/wgdzlh/gdalfade/grid"
	"github.com/wgdzlh/gdalfade/vector"

	"github.com/google/go-cmp/cmp"
	"github.com/lukeroth/gdal"
)

func utmWKT(t *testing.T) string {
	t.Helper()
	registerDrivers()
	ref := gdal.CreateSpatialReference("")
	defer ref.Destroy()
	if err := ref.FromEPSG(32650); err != nil {
		t.Fatal(err)
	}
	wkt, err := ref.ToWKT()
	if err != nil {
		t.Fatal(err)
	}
	return wkt
}

func square(x0, y0, side float64) vector.Ring {
	return vector.Ring{{X: x0, Y: y0}, {X: x0 + side, Y: y0}, {X: x0 + side, Y: y0 + side}, {X: x0, Y: y0 + side}}
}

func TestGdalRasterRoundTrip(t *testing.T) {
	g := NewGdalToolbox()
	gd := testGrid(17, 9)
	gd.Projection = utmWKT(t)
	path := filepath.Join(t.TempDir(), "rgba.tif")

	r, err := g.Create(path, gd, 4, Byte, DefaultConfig().WorkingCompression.CreationOptions())
	if err != nil {
		t.Fatal(err)
	}
	w := grid.Window{Y0: 3, Rows: 4}
	buf := make([]uint8, gd.Width*w.Rows)
	for i := range buf {
		buf[i] = uint8(i)
	}
	if err = r.Write(4, w, buf); err != nil {
		t.Fatal(err)
	}
	if err = r.Write(4, grid.Window{Y0: 8, Rows: 2}, make([]uint8, gd.Width*2)); err == nil {
		t.Error("window past the last row accepted")
	}
	if err = r.Write(1, w, make([]int16, len(buf))); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("int16 buffer: err = %v", err)
	}
	if err = r.Close(); err != nil {
		t.Fatal(err)
	}

	r, err = g.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	info := r.Info()
	if info.Bands != 4 || info.Version == "" {
		t.Errorf("info = %+v", info)
	}
	if !info.Grid.SameShape(gd) || info.Grid.Transform != gd.Transform || !g.SameCRS(info.Grid.Projection, gd.Projection) {
		t.Errorf("grid = %+v, want %+v", info.Grid, gd)
	}
	got := make([]uint8, len(buf))
	if err = r.Read(4, w, got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(buf, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestGdalFloatRaster(t *testing.T) {
	g := NewGdalToolbox()
	gd := testGrid(5, 5)
	path := filepath.Join(t.TempDir(), "dist.tif")
	r, err := g.Create(path, gd, 1, Float32, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	w := grid.Window{Y0: 0, Rows: 5}
	want := make([]float32, 25)
	for i := range want {
		want[i] = float32(i) / 4
	}
	if err = r.Write(1, w, want); err != nil {
		t.Fatal(err)
	}
	got := make([]float32, 25)
	if err = r.Read(1, w, got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestGdalComposite(t *testing.T) {
	g := NewGdalToolbox()
	dir := t.TempDir()
	gd := testGrid(64, 48)
	gd.Projection = utmWKT(t)
	input := filepath.Join(dir, "in.tif")
	alphaPath := filepath.Join(dir, ALPHA_TIF)
	all := grid.Window{Y0: 0, Rows: gd.Height}

	in, err := g.Create(input, gd, 4, Byte, nil)
	if err != nil {
		t.Fatal(err)
	}
	for b := 1; b <= 4; b++ {
		if err = in.Write(b, all, filled(gd.Width, gd.Height, uint8(40*b))); err != nil {
			t.Fatal(err)
		}
	}
	if err = in.Close(); err != nil {
		t.Fatal(err)
	}
	a, err := g.Create(alphaPath, gd, 1, Byte, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err = a.Write(1, all, filled(gd.Width, gd.Height, 7)); err != nil {
		t.Fatal(err)
	}
	if err = a.Close(); err != nil {
		t.Fatal(err)
	}

	var srcs []string
	for b := 1; b <= 3; b++ {
		vrt := filepath.Join(dir, bandVRTName(b))
		if err = g.BandVRT(input, b, vrt); err != nil {
			t.Fatal(err)
		}
		srcs = append(srcs, vrt)
	}
	out := filepath.Join(dir, "out.tif")
	if err = g.Composite(filepath.Join(dir, COMPOSITE_VRT), out, append(srcs, alphaPath), DefaultConfig().ColorCompression.CreationOptions()); err != nil {
		t.Fatal(err)
	}
	if err = g.BuildOverviews(out, []int{2, 4}, "DEFLATE"); err != nil {
		t.Fatal(err)
	}

	r, err := g.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	info := r.Info()
	if info.Bands != 4 || info.AlphaBand != 4 {
		t.Fatalf("bands = %d, alpha = %d", info.Bands, info.AlphaBand)
	}
	for b, want := range []uint8{40, 80, 120, 7} {
		buf := make([]uint8, gd.Width)
		if err = r.Read(b+1, grid.Window{Y0: 10, Rows: 1}, buf); err != nil {
			t.Fatal(err)
		}
		if buf[0] != want || buf[gd.Width-1] != want {
			t.Errorf("band %d = %d, want %d", b+1, buf[0], want)
		}
	}
}

func TestGdalVectorRoundTrip(t *testing.T) {
	g := NewGdalToolbox()
	srs := utmWKT(t)
	ps := []vector.Polygon{
		{Shell: square(500000, 3999000, 100), Holes: []vector.Ring{square(500040, 3999040, 20).Oriented(false)}, Value: 1},
		{Shell: square(500200, 3999000, 50), Value: 0},
	}
	ls := []vector.LineString{
		{{X: 500000, Y: 3999000}, {X: 500100, Y: 3999000}, {X: 500100, Y: 3999100}},
		{{X: 500010, Y: 3999010}, {X: 500020, Y: 3999010}},
	}
	for _, ext := range []string{FILE_EXT_GPKG, FILE_EXT_SHP} {
		t.Run(ext, func(t *testing.T) {
			dir := t.TempDir()
			polyPath := filepath.Join(dir, EXTENT_VEC+ext)
			if err := g.WritePolygons(polyPath, srs, ps); err != nil {
				t.Fatal(err)
			}
			got, err := g.ReadPolygons(polyPath)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 || got[0].Value != 1 || got[1].Value != 0 || len(got[0].Holes) != 1 {
				t.Fatalf("polygons = %+v", got)
			}
			if a := got[0].Area(); math.Abs(a-(10000-400)) > 1e-6 {
				t.Errorf("area = %v", a)
			}

			linePath := filepath.Join(dir, BOUNDARY_LINE_VEC+ext)
			if err = g.WriteLines(linePath, srs, ls); err != nil {
				t.Fatal(err)
			}
			gotLines, gotSRS, err := g.ReadLines(linePath)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(ls, gotLines); diff != "" {
				t.Errorf("lines (-want +got):\n%s", diff)
			}
			if !g.SameCRS(srs, gotSRS) {
				t.Errorf("srs changed: %s", gotSRS)
			}
			if !g.Exists(linePath) {
				t.Error("lines file missing")
			}
		})
	}
}

func TestGdalLinesWithoutSRS(t *testing.T) {
	g := NewGdalToolbox()
	path := filepath.Join(t.TempDir(), BOUNDARY_LINE_VEC+FILE_EXT_SHP)
	ls := []vector.LineString{{{X: 1, Y: 1}, {X: 4, Y: 1}, {X: 4, Y: 3}}}
	if err := g.WriteLines(path, "", ls); err != nil {
		t.Fatal(err)
	}
	got, srs, err := g.ReadLines(path)
	if err != nil {
		t.Fatalf("lines without srs: %v", err)
	}
	if srs != "" {
		t.Errorf("srs = %q, want empty", srs)
	}
	if diff := cmp.Diff(ls, got); diff != "" {
		t.Errorf("lines (-want +got):\n%s", diff)
	}
	if g.SameCRS(utmWKT(t), srs) {
		t.Error("empty srs matches a projected one")
	}
}

func TestSameCRS(t *testing.T) {
	g := NewGdalToolbox()
	utm := utmWKT(t)
	ref := gdal.CreateSpatialReference("")
	defer ref.Destroy()
	if err := ref.FromEPSG(4326); err != nil {
		t.Fatal(err)
	}
	wgs, err := ref.ToWKT()
	if err != nil {
		t.Fatal(err)
	}
	if !g.SameCRS(utm, utm) || g.SameCRS(utm, wgs) || g.SameCRS(utm, "") || g.SameCRS(utm, "not a wkt") {
		t.Error("SameCRS")
	}
}

func TestOGRGeometry(t *testing.T) {
	o := NewOGRGeometry()
	bowtie := vector.Polygon{Shell: vector.Ring{{X: 0, Y: 0}, {X: 2, Y: 2}, {X: 2, Y: 0}, {X: 0, Y: 2}}, Value: 1}
	fixed, err := o.Repair([]vector.Polygon{bowtie})
	if err != nil {
		t.Fatal(err)
	}
	var area float64
	for _, p := range fixed {
		area += p.Area()
		if p.Value != 1 || p.Shell.SignedArea() <= 0 {
			t.Errorf("repaired polygon %+v", p)
		}
	}
	// Buffer(0)只保留与首个环绕方向一致的一半
	if area <= 0 || area > 2+1e-9 {
		t.Errorf("repaired area = %v", area)
	}

	sq := vector.Polygon{Shell: square(0, 0, 10), Value: 1}
	shrunk, err := o.Offset([]vector.Polygon{sq}, 1, DefaultQuadSegs)
	if err != nil {
		t.Fatal(err)
	}
	if len(shrunk) != 1 || math.Abs(shrunk[0].Area()-64) > 1e-6 {
		t.Fatalf("offset = %+v", shrunk)
	}
	for _, v := range shrunk[0].Shell {
		if v.X < 1-1e-9 || v.X > 9+1e-9 || v.Y < 1-1e-9 || v.Y > 9+1e-9 {
			t.Errorf("vertex %v outside the shrunk square", v)
		}
	}
	gone, err := o.Offset([]vector.Polygon{sq}, 6, DefaultQuadSegs)
	if err != nil {
		t.Fatal(err)
	}
	if len(gone) != 0 {
		t.Errorf("fully eroded square gave %+v", gone)
	}
	if _, err = o.Repair([]vector.Polygon{{Shell: vector.Ring{{X: math.NaN(), Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}}}); err == nil {
		t.Error("NaN coordinate accepted")
	}
}
