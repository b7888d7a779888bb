// Package geometry converts boxes between the normalized center form used in
// proposal and annotation files and the pixel corner form used while editing.
package geometry

import (
	"github.com/medveriground/bbox-annotator/pkg/types"
)

// MinBoxSize is the smallest edge, in pixels, a resized box may have
const MinBoxSize = 10

// Denormalize converts a normalized [cx, cy, w, h] box into pixel corners
// against an image of the given height and width. Coordinates are truncated
// toward zero. The sentinel and absent values pass through unchanged.
func Denormalize(g types.Grounding, height, width int) types.PixelGrounding {
	if g.Kind != types.Boxed {
		return types.PixelGrounding{Kind: g.Kind}
	}

	b := g.Box
	fw, fh := float64(width), float64(height)

	return types.PixelBoxGrounding(types.PixelBox{
		X1: int((b.CX - b.W/2) * fw),
		Y1: int((b.CY - b.H/2) * fh),
		X2: int((b.CX + b.W/2) * fw),
		Y2: int((b.CY + b.H/2) * fh),
	})
}

// Normalize converts pixel corners into a normalized center box. Inverted
// corners are reordered first, then every component is clamped to [0,1]
// independently, so boxes partly or wholly outside the image still yield a
// valid (possibly degenerate) result.
func Normalize(p types.PixelBox, height, width int) types.Box {
	if width <= 0 || height <= 0 {
		return types.Box{}
	}
	p = Canonical(p)
	fw, fh := float64(width), float64(height)

	return types.Box{
		CX: clamp(float64(p.X1+p.X2)/2/fw, 0, 1),
		CY: clamp(float64(p.Y1+p.Y2)/2/fh, 0, 1),
		W:  clamp(float64(p.X2-p.X1)/fw, 0, 1),
		H:  clamp(float64(p.Y2-p.Y1)/fh, 0, 1),
	}
}

// NormalizeGrounding applies Normalize to a pixel box and passes the
// sentinel and absent values through
func NormalizeGrounding(p types.PixelGrounding, height, width int) types.Grounding {
	if p.Kind != types.Boxed {
		return types.Grounding{Kind: p.Kind}
	}
	return types.BoxGrounding(Normalize(p.Box, height, width))
}

// Canonical orders the corners so that X1 <= X2 and Y1 <= Y2
func Canonical(p types.PixelBox) types.PixelBox {
	if p.X1 > p.X2 {
		p.X1, p.X2 = p.X2, p.X1
	}
	if p.Y1 > p.Y2 {
		p.Y1, p.Y2 = p.Y2, p.Y1
	}
	return p
}

// Move translates the box by (dx, dy) while keeping it inside the image.
// An axis with a zero delta, or along which the box already spans the whole
// image, is left as it is.
// The second result reports whether the box changed.
func Move(p types.PixelBox, dx, dy, width, height int) (types.PixelBox, bool) {
	p = Canonical(p)
	out := p

	if bw := p.Width(); dx != 0 && bw < width {
		x1 := clampInt(p.X1+dx, 0, width-bw)
		out.X1, out.X2 = x1, x1+bw
	}
	if bh := p.Height(); dy != 0 && bh < height {
		y1 := clampInt(p.Y1+dy, 0, height-bh)
		out.Y1, out.Y2 = y1, y1+bh
	}

	return out, out != p
}

// Resize clamps the requested corners to the image and enforces MinBoxSize
// on both axes. When the image itself is smaller than MinBoxSize along an
// axis, the box spans that whole axis.
func Resize(p types.PixelBox, width, height int) types.PixelBox {
	p = Canonical(p)
	p.X1, p.X2 = resizeAxis(p.X1, p.X2, width)
	p.Y1, p.Y2 = resizeAxis(p.Y1, p.Y2, height)
	return p
}

func resizeAxis(lo, hi, limit int) (int, int) {
	if limit <= MinBoxSize {
		return 0, max(limit, 0)
	}
	lo = clampInt(lo, 0, limit)
	hi = clampInt(hi, 0, limit)
	if hi-lo >= MinBoxSize {
		return lo, hi
	}
	// grow the far edge first, then pull the near edge back
	hi = lo + MinBoxSize
	if hi > limit {
		hi = limit
		lo = limit - MinBoxSize
	}
	return lo, hi
}

// AdjustmentOf classifies the edit between the box shown at step entry and
// the box being submitted
func AdjustmentOf(original, final types.PixelGrounding) types.Adjustment {
	if !original.IsBoxed() || !final.IsBoxed() || original.Box == final.Box {
		return types.AdjustmentNone
	}

	o, f := original.Box, final.Box
	resized := o.Width() != f.Width() || o.Height() != f.Height()
	moved := (o.X1 != f.X1 || o.Y1 != f.Y1) && (o.X2 != f.X2 || o.Y2 != f.Y2)

	switch {
	case moved && resized:
		return types.AdjustmentBoth
	case resized:
		return types.AdjustmentResize
	default:
		return types.AdjustmentMove
	}
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
