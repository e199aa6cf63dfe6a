package rasalg

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestComposeAlpha(t *testing.T) {
	mask := []uint8{1, 1, 1, 1, 1, 0, 0, 1}
	dist := []float32{0, 1, 2, 3, 3, 3, 0, 1.5}
	got := make([]uint8, len(mask))
	ComposeAlpha(mask, dist, 3, got)
	want := []uint8{0, 85, 170, 255, 255, 0, 0, 128}
	if d := cmp.Diff(want, got); d != "" {
		t.Fatalf("(-want +got):\n%s", d)
	}
}

func TestComposeAlphaRounding(t *testing.T) {
	mask := []uint8{1, 1, 1}
	// 200像元渐变：1像元=1.275，2像元=2.55
	dist := []float32{1, 2, 200}
	got := make([]uint8, 3)
	ComposeAlpha(mask, dist, 200, got)
	if d := cmp.Diff([]uint8{1, 3, 255}, got); d != "" {
		t.Fatal(d)
	}
}

func TestExtractMask(t *testing.T) {
	alpha := []uint8{0, 127, 128, 255, 200}
	mask := make([]uint8, len(alpha))
	ExtractMask(alpha, mask)
	if d := cmp.Diff([]uint8{0, 0, 1, 1, 1}, mask); d != "" {
		t.Fatal(d)
	}
}
