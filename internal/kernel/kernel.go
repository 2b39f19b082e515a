// Package kernel holds the per-point escape-time computation and the mapping
// from pixel coordinates to the complex plane.
package kernel

import "github.com/refrantz/paralellMandelbrot/pkg/types"

// escapeRadiusSq is |z|^2 beyond which a point is known to diverge.
const escapeRadiusSq = 4.0

// Escape iterates z = z^2 + c from z = 0 and returns the number of
// iterations performed before |z|^2 reached 4 or maxIter was hit.
// The result is in [0, maxIter].
func Escape(cr, ci float64, maxIter int) int {
	var zr, zi, lengthSq float64
	count := 0
	for count < maxIter && lengthSq < escapeRadiusSq {
		tmp := zr*zr - zi*zi + cr
		zi = 2*zr*zi + ci
		zr = tmp
		lengthSq = zr*zr + zi*zi
		count++
	}
	return count
}

// Mapper converts a pixel (col, row) into a point of the complex plane.
type Mapper struct {
	vp     types.Viewport
	width  float64
	height float64
}

// NewMapper returns the affine pixel-to-plane transform for a width x height
// grid over vp.
func NewMapper(vp types.Viewport, width, height int) Mapper {
	return Mapper{vp: vp, width: float64(width), height: float64(height)}
}

// Point returns the plane coordinates of pixel (col, row).
func (m Mapper) Point(col, row int) (float64, float64) {
	re := m.vp.XMin + float64(col)*m.vp.XSpan/m.width
	im := m.vp.YMin + float64(row)*m.vp.YSpan/m.height
	return re, im
}

// Row fills dst[0:width] with the escape counts of one grid row.
func (m Mapper) Row(dst []int32, row, maxIter int) {
	for col := range dst {
		re, im := m.Point(col, row)
		dst[col] = int32(Escape(re, im, maxIter))
	}
}

// Compute renders the whole grid sequentially into a fresh row-major slice.
func Compute(spec types.GridSpec, vp types.Viewport) []int32 {
	out := make([]int32, spec.Cells())
	m := NewMapper(vp, spec.Width, spec.Height)
	for row := 0; row < spec.Height; row++ {
		m.Row(out[row*spec.Width:(row+1)*spec.Width], row, spec.MaxIter)
	}
	return out
}
