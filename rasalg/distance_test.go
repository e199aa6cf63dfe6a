package rasalg

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/wgdzlh/gdalfade/grid"
)

func bruteDistance(src *grid.Band[uint8], maxDist float64) *grid.Band[float32] {
	out := grid.NewBand[float32](src.Width, src.Height)
	for y := 0; y < src.Height; y++ {
		for x := 0; x < src.Width; x++ {
			best := maxDist
			for v := 0; v < src.Height; v++ {
				for u := 0; u < src.Width; u++ {
					if src.At(u, v) == 1 {
						best = math.Min(best, math.Hypot(float64(u-x), float64(v-y)))
					}
				}
			}
			out.Set(x, y, float32(best))
		}
	}
	return out
}

func randomLines(w, h int, density float64, seed int64) *grid.Band[uint8] {
	r := rand.New(rand.NewSource(seed))
	b := grid.NewBand[uint8](w, h)
	for i := range b.Pix {
		if r.Float64() < density {
			b.Pix[i] = 1
		}
	}
	return b
}

func TestEuclideanMatchesBruteForce(t *testing.T) {
	for _, tc := range []struct {
		density float64
		maxDist float64
	}{
		{0.02, 5},
		{0.1, 3},
		{0.005, 7.5},
		{0, 4},
	} {
		src := randomLines(23, 17, tc.density, 42)
		want := bruteDistance(src, tc.maxDist)
		got := grid.NewBand[float32](src.Width, src.Height)
		if err := (Euclidean{}).Transform(src, got, 0, tc.maxDist); err != nil {
			t.Fatal(err)
		}
		if d := cmp.Diff(want.Pix, got.Pix, cmpopts.EquateApprox(0, 1e-5)); d != "" {
			t.Errorf("density %v: (-want +got):\n%s", tc.density, d)
		}
	}
}

func TestEuclideanStripsWithHalo(t *testing.T) {
	const maxDist = 4.5
	src := randomLines(31, 40, 0.01, 7)
	whole := grid.NewBand[float32](src.Width, src.Height)
	if err := (Euclidean{}).Transform(src, whole, 0, maxDist); err != nil {
		t.Fatal(err)
	}
	got := grid.NewBand[float32](src.Width, src.Height)
	for _, w := range grid.Strips(src.Height, 6) {
		e := w.Expand(Halo(maxDist), src.Height)
		dst := got.Rows(w.Y0, w.Rows)
		if err := (Euclidean{}).Transform(src.Rows(e.Y0, e.Rows), dst, w.Y0-e.Y0, maxDist); err != nil {
			t.Fatal(err)
		}
	}
	if d := cmp.Diff(whole.Pix, got.Pix); d != "" {
		t.Fatal(d)
	}
}

func TestEuclideanMonotone(t *testing.T) {
	src := grid.NewBand[uint8](20, 1)
	src.Set(0, 0, 1)
	dst := grid.NewBand[float32](20, 1)
	if err := (Euclidean{}).Transform(src, dst, 0, 10); err != nil {
		t.Fatal(err)
	}
	for x := 0; x < 20; x++ {
		want := math.Min(float64(x), 10)
		if float64(dst.At(x, 0)) != want {
			t.Fatalf("x=%d: %v, want %v", x, dst.At(x, 0), want)
		}
	}
}

func TestEuclideanBadWindow(t *testing.T) {
	src := grid.NewBand[uint8](4, 4)
	dst := grid.NewBand[float32](4, 3)
	if err := (Euclidean{}).Transform(src, dst, 2, 3); !errors.Is(err, grid.ErrWindow) {
		t.Fatalf("got %v", err)
	}
	if err := (Euclidean{}).Transform(src, dst, 0, 0); !errors.Is(err, ErrDistanceRange) {
		t.Fatalf("got %v", err)
	}
}

func TestBackend(t *testing.T) {
	if _, err := Backend("native"); err != nil {
		t.Fatal(err)
	}
	if _, err := Backend("nope"); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("got %v", err)
	}
}
