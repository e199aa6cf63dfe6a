package grid

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestInvert(t *testing.T) {
	gt := GeoTransform{500000, 2, 0.5, 4000000, 0.25, -2}
	inv, err := gt.Invert()
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range [][2]float64{{0, 0}, {10.5, 3.25}, {-4, 7}} {
		x, y := gt.Apply(p[0], p[1])
		c, r := inv.Apply(x, y)
		if math.Abs(c-p[0]) > 1e-6 || math.Abs(r-p[1]) > 1e-6 {
			t.Errorf("round trip %v = (%v, %v)", p, c, r)
		}
	}
	if _, err = (GeoTransform{0, 1, 1, 0, 1, 1}).Invert(); !errors.Is(err, ErrSingularTransform) {
		t.Errorf("err = %v, want ErrSingularTransform", err)
	}
	if !gt.Flips() || (GeoTransform{0, 1, 0, 0, 0, 1}).Flips() {
		t.Error("Flips")
	}
}

func TestGrid(t *testing.T) {
	g := Grid{Width: 4, Height: 3, Transform: GeoTransform{100, 2, 0, 50, 0, -4}, Projection: "p"}
	if s := g.AvgPixelSize(); s != 3 {
		t.Errorf("avg pixel size = %v", s)
	}
	if diff := cmp.Diff([4]float64{100, 108, 38, 50}, g.Span()); diff != "" {
		t.Errorf("span (-want +got):\n%s", diff)
	}
	o := g
	o.Transform[0] += 1e-12
	if !g.SameShape(o) || !g.Equal(o) {
		t.Error("tiny shift should keep the grid")
	}
	o.Projection = "q"
	if !g.SameShape(o) || g.Equal(o) {
		t.Error("projection ignored")
	}
	o.Transform[0] += 0.5
	if g.SameShape(o) {
		t.Error("half pixel shift accepted")
	}
	if g.Pixels() != 12 {
		t.Errorf("pixels = %d", g.Pixels())
	}
}

func TestStrips(t *testing.T) {
	want := []Window{{0, 4}, {4, 4}, {8, 2}}
	if diff := cmp.Diff(want, Strips(10, 4)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Window{{0, 10}}, Strips(10, 0)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Window(nil), Strips(0, 4), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestExpand(t *testing.T) {
	tests := []struct {
		w    Window
		halo int
		want Window
	}{
		{Window{4, 4}, 2, Window{2, 8}},
		{Window{0, 4}, 3, Window{0, 7}},
		{Window{8, 2}, 5, Window{3, 7}},
		{Window{0, 10}, 1, Window{0, 10}},
	}
	for _, tt := range tests {
		if got := tt.w.Expand(tt.halo, 10); got != tt.want {
			t.Errorf("%v.Expand(%d) = %v, want %v", tt.w, tt.halo, got, tt.want)
		}
	}
}

func TestBandRows(t *testing.T) {
	b := NewBand[uint8](3, 4)
	b.Set(1, 2, 7)
	sub := b.Rows(2, 2)
	if sub.At(1, 0) != 7 {
		t.Errorf("sub row = %v", sub.Row(0))
	}
	sub.Fill(1)
	if b.Count(1) != 6 || b.At(0, 3) != 1 || b.At(0, 1) != 0 {
		t.Errorf("shared rows not written: %v", b.Pix)
	}
}
