package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/medveriground/bbox-annotator/pkg/types"
)

func TestDenormalizeKnownBox(t *testing.T) {
	g := types.BoxGrounding(types.Box{CX: 0.5, CY: 0.5, W: 0.2, H: 0.4})

	got := Denormalize(g, 200, 100)

	assert.Equal(t, types.Boxed, got.Kind)
	assert.Equal(t, types.PixelBox{X1: 40, Y1: 60, X2: 60, Y2: 140}, got.Box)
}

func TestDenormalizePassesSentinelAndAbsent(t *testing.T) {
	assert.Equal(t, types.Sentinel, Denormalize(types.SentinelGrounding(), 100, 100).Kind)
	assert.Equal(t, types.Absent, Denormalize(types.Grounding{}, 100, 100).Kind)
}

func TestDenormalizeTruncatesTowardZero(t *testing.T) {
	// left edge at -4.95px must truncate to -4, not floor to -5
	g := types.BoxGrounding(types.Box{CX: 0.05, CY: 0.5, W: 0.2, H: 0.2})
	got := Denormalize(g, 99, 99)
	assert.Equal(t, -4, got.Box.X1)
}

func TestRoundTrip(t *testing.T) {
	sizes := [][2]int{{100, 200}, {512, 512}, {1024, 768}, {37, 913}}
	steps := []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1}

	for _, sz := range sizes {
		h, w := sz[0], sz[1]
		// each corner may lose up to one pixel, on either side of zero
		tol := 2/float64(min(w, h)) + 1e-9
		for _, cx := range steps {
			for _, cy := range steps {
				for _, bw := range steps {
					for _, bh := range steps {
						b := types.Box{CX: cx, CY: cy, W: bw, H: bh}
						p := Denormalize(types.BoxGrounding(b), h, w)
						got := Normalize(p.Box, h, w)

						if math.Abs(got.CX-b.CX) > tol || math.Abs(got.CY-b.CY) > tol ||
							math.Abs(got.W-b.W) > tol || math.Abs(got.H-b.H) > tol {
							t.Fatalf("round trip %v at %dx%d gave %v", b, w, h, got)
						}
					}
				}
			}
		}
	}
}

func TestNormalizeAlwaysInUnitRange(t *testing.T) {
	boxes := []types.PixelBox{
		{X1: -500, Y1: -500, X2: 2000, Y2: 3000},
		{X1: 90, Y1: 10, X2: 10, Y2: 90},
		{X1: 5000, Y1: 5000, X2: 6000, Y2: 7000},
		{X1: -100, Y1: -100, X2: -50, Y2: -20},
		{X1: 0, Y1: 0, X2: 0, Y2: 0},
	}
	for _, p := range boxes {
		b := Normalize(p, 100, 100)
		for _, v := range []float64{b.CX, b.CY, b.W, b.H} {
			assert.GreaterOrEqual(t, v, 0.0, "box %v", p)
			assert.LessOrEqual(t, v, 1.0, "box %v", p)
		}
	}
}

func TestNormalizeReordersInvertedCorners(t *testing.T) {
	got := Normalize(types.PixelBox{X1: 60, Y1: 140, X2: 40, Y2: 60}, 200, 100)
	assert.InDelta(t, 0.5, got.CX, 1e-9)
	assert.InDelta(t, 0.5, got.CY, 1e-9)
	assert.InDelta(t, 0.2, got.W, 1e-9)
	assert.InDelta(t, 0.4, got.H, 1e-9)
}

func TestMove(t *testing.T) {
	p := types.PixelBox{X1: 10, Y1: 10, X2: 30, Y2: 50}

	got, changed := Move(p, 5, -3, 100, 100)
	assert.True(t, changed)
	assert.Equal(t, types.PixelBox{X1: 15, Y1: 7, X2: 35, Y2: 47}, got)

	// saturates at the image edge and keeps size
	got, _ = Move(p, 500, 500, 100, 100)
	assert.Equal(t, types.PixelBox{X1: 80, Y1: 60, X2: 100, Y2: 100}, got)

	got, _ = Move(p, -500, -500, 100, 100)
	assert.Equal(t, types.PixelBox{X1: 0, Y1: 0, X2: 20, Y2: 40}, got)
}

func TestMoveFullSpanAxisIsNoop(t *testing.T) {
	full := types.PixelBox{X1: 0, Y1: 0, X2: 100, Y2: 100}
	got, changed := Move(full, 10, 10, 100, 100)
	assert.False(t, changed)
	assert.Equal(t, full, got)

	// only the horizontal axis is locked
	wide := types.PixelBox{X1: 0, Y1: 10, X2: 100, Y2: 30}
	got, changed = Move(wide, 10, 10, 100, 100)
	assert.True(t, changed)
	assert.Equal(t, types.PixelBox{X1: 0, Y1: 20, X2: 100, Y2: 40}, got)
}

func TestMoveLeavesUnmovedAxisAlone(t *testing.T) {
	outside := types.PixelBox{X1: -10, Y1: 10, X2: 40, Y2: 50}

	got, changed := Move(outside, 0, 0, 100, 100)
	assert.False(t, changed)
	assert.Equal(t, outside, got)

	// a vertical move does not pull the box in horizontally
	got, changed = Move(outside, 0, 5, 100, 100)
	assert.True(t, changed)
	assert.Equal(t, types.PixelBox{X1: -10, Y1: 15, X2: 40, Y2: 55}, got)

	// a horizontal move clamps as usual
	got, _ = Move(outside, 1, 0, 100, 100)
	assert.Equal(t, types.PixelBox{X1: 0, Y1: 10, X2: 50, Y2: 50}, got)
}

func TestResize(t *testing.T) {
	tests := []struct {
		name string
		in   types.PixelBox
		want types.PixelBox
	}{
		{"inside", types.PixelBox{X1: 10, Y1: 10, X2: 50, Y2: 60}, types.PixelBox{X1: 10, Y1: 10, X2: 50, Y2: 60}},
		{"clamped", types.PixelBox{X1: -20, Y1: -5, X2: 150, Y2: 300}, types.PixelBox{X1: 0, Y1: 0, X2: 100, Y2: 200}},
		{"min size grows far edge", types.PixelBox{X1: 20, Y1: 20, X2: 22, Y2: 25}, types.PixelBox{X1: 20, Y1: 20, X2: 30, Y2: 30}},
		{"min size at far border", types.PixelBox{X1: 98, Y1: 199, X2: 100, Y2: 200}, types.PixelBox{X1: 90, Y1: 190, X2: 100, Y2: 200}},
		{"inverted", types.PixelBox{X1: 50, Y1: 60, X2: 10, Y2: 10}, types.PixelBox{X1: 10, Y1: 10, X2: 50, Y2: 60}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resize(tt.in, 100, 200)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got.Width(), MinBoxSize)
			assert.GreaterOrEqual(t, got.Height(), MinBoxSize)
		})
	}
}

func TestResizeTinyImage(t *testing.T) {
	got := Resize(types.PixelBox{X1: 2, Y1: 2, X2: 3, Y2: 3}, 6, 8)
	assert.Equal(t, types.PixelBox{X1: 0, Y1: 0, X2: 6, Y2: 8}, got)
}

func TestAdjustmentOf(t *testing.T) {
	orig := types.PixelBoxGrounding(types.PixelBox{X1: 10, Y1: 10, X2: 50, Y2: 50})

	assert.Equal(t, types.AdjustmentNone, AdjustmentOf(orig, orig))
	assert.Equal(t, types.AdjustmentMove,
		AdjustmentOf(orig, types.PixelBoxGrounding(types.PixelBox{X1: 20, Y1: 10, X2: 60, Y2: 50})))
	assert.Equal(t, types.AdjustmentResize,
		AdjustmentOf(orig, types.PixelBoxGrounding(types.PixelBox{X1: 10, Y1: 10, X2: 70, Y2: 50})))
	assert.Equal(t, types.AdjustmentBoth,
		AdjustmentOf(orig, types.PixelBoxGrounding(types.PixelBox{X1: 0, Y1: 0, X2: 80, Y2: 90})))
	assert.Equal(t, types.AdjustmentNone,
		AdjustmentOf(types.PixelGrounding{Kind: types.Sentinel}, types.PixelGrounding{Kind: types.Sentinel}))
}
