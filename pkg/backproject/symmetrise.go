package backproject

import (
	"math"
	"math/cmplx"

	"fourierslicesto3d/pkg/grid"
)

type (
	gridComplex = grid.Array[complex128]
	gridReal    = grid.Array[float64]
)

// EnforceHermitianSymmetry repairs the redundancy boundary of the half-stored
// grids. Interpolated scatter breaks exact conjugate symmetry on the x == 0
// plane, where the stored hemisphere is self-adjacent; each boundary voxel is
// replaced by the average of itself and the conjugate of its Friedel mate,
// and the two mates' weights by their average. The operation is idempotent.
func (bp *BackProjector) EnforceHermitianSymmetry() {
	half := bp.padSize / 2
	zhi := 0
	if bp.p.RefDim == 3 {
		zhi = half
	}
	// Visit each Friedel pair once: the positive-z half of the plane, and
	// on the z == 0 line only non-negative y.
	for iz := 0; iz <= zhi; iz++ {
		ylo := -half
		if iz == 0 {
			ylo = 0
		}
		for iy := ylo; iy <= half; iy++ {
			fsum := 0.5 * (bp.data.At(iz, iy, 0) + cmplx.Conj(bp.data.At(-iz, -iy, 0)))
			bp.data.Set(iz, iy, 0, fsum)
			bp.data.Set(-iz, -iy, 0, cmplx.Conj(fsum))
			wsum := 0.5 * (bp.weight.At(iz, iy, 0) + bp.weight.At(-iz, -iy, 0))
			bp.weight.Set(iz, iy, 0, wsum)
			bp.weight.Set(-iz, -iy, 0, wsum)
		}
	}
}

// Symmetrise distributes signal among symmetry-equivalent Fourier
// coefficients: for every operator in the point group, the (data, weight)
// grids restricted to squared radius rmax2 are rotated by that operator and
// summed, and the sum is divided by the group order. A group of order 1 is a
// no-op.
func (bp *BackProjector) Symmetrise(rmax2 int) {
	order := bp.sym.Order()
	if order <= 1 {
		return
	}

	srcData := bp.data.Clone()
	srcWeight := bp.weight.Clone()
	sumData := bp.data.Clone()
	sumWeight := bp.weight.Clone()
	half := bp.padSize / 2

	for _, op := range bp.sym.Operators()[1:] {
		r := op.R
		zlo, zhi := 0, 0
		if bp.p.RefDim == 3 {
			zlo, zhi = -half, half
		}
		for k := zlo; k <= zhi; k++ {
			for i := -half; i <= half; i++ {
				for j := 0; j <= half; j++ {
					if k*k+i*i+j*j > rmax2 {
						continue
					}
					x, y, z := float64(j), float64(i), float64(k)
					xp := x*r.At(0, 0) + y*r.At(0, 1) + z*r.At(0, 2)
					yp := x*r.At(1, 0) + y*r.At(1, 1) + z*r.At(1, 2)
					zp := x*r.At(2, 0) + y*r.At(2, 1) + z*r.At(2, 2)
					d, w := gatherTrilinear(srcData, srcWeight, xp, yp, zp)
					sumData.Add(k, i, j, d)
					sumWeight.Add(k, i, j, w)
				}
			}
		}
	}

	// Voxels beyond the cutoff received no rotated contributions and keep
	// their original values.
	scale := 1 / float64(order)
	zlo, zhi := 0, 0
	if bp.p.RefDim == 3 {
		zlo, zhi = -half, half
	}
	for k := zlo; k <= zhi; k++ {
		for i := -half; i <= half; i++ {
			for j := 0; j <= half; j++ {
				if k*k+i*i+j*j > rmax2 {
					continue
				}
				sumData.Set(k, i, j, sumData.At(k, i, j)*complex(scale, 0))
				sumWeight.Set(k, i, j, sumWeight.At(k, i, j)*scale)
			}
		}
	}
	bp.data = sumData
	bp.weight = sumWeight
}

// gatherTrilinear samples the half-stored pair at a continuous frequency
// coordinate, folding negative-x lookups onto conjugated Friedel mates.
// Out-of-grid neighbours contribute zero.
func gatherTrilinear(data *gridComplex, weight *gridReal, xp, yp, zp float64) (complex128, float64) {
	conjugate := false
	if xp < 0 {
		xp, yp, zp = -xp, -yp, -zp
		conjugate = true
	}
	x0 := int(math.Floor(xp))
	fx := xp - float64(x0)
	y0 := int(math.Floor(yp))
	fy := yp - float64(y0)
	z0 := 0
	fz := 0.0
	if data.Dim == 3 {
		z0 = int(math.Floor(zp))
		fz = zp - float64(z0)
	}

	var d complex128
	var w float64
	zSteps := 1
	if data.Dim == 3 {
		zSteps = 2
	}
	for dz := 0; dz < zSteps; dz++ {
		wz := 1.0
		if data.Dim == 3 {
			wz = 1 - fz
			if dz == 1 {
				wz = fz
			}
		}
		for dy := 0; dy < 2; dy++ {
			wy := 1 - fy
			if dy == 1 {
				wy = fy
			}
			for dx := 0; dx < 2; dx++ {
				wx := 1 - fx
				if dx == 1 {
					wx = fx
				}
				xc, yc, zc := x0+dx, y0+dy, z0+dz
				flip := false
				if xc < 0 {
					xc, yc, zc = -xc, -yc, -zc
					flip = true
				}
				if !data.Contains(zc, yc, xc) {
					continue
				}
				dv := data.At(zc, yc, xc)
				if flip {
					dv = cmplx.Conj(dv)
				}
				cw := wx * wy * wz
				d += dv * complex(cw, 0)
				w += weight.At(zc, yc, xc) * cw
			}
		}
	}
	if conjugate {
		d = cmplx.Conj(d)
	}
	return d, w
}
