package backproject

import (
	"fmt"
	"math"
	"math/cmplx"

	"fourierslicesto3d/pkg/grid"
)

// LowResDataAndWeight extracts the central sub-cube of the grid pair out to
// lowResRMax pixels of resolution. Two independent half-set jobs exchange
// these sub-cubes to force convergence in the same orientation.
func (bp *BackProjector) LowResDataAndWeight(lowResRMax int) (*gridComplex, *gridReal, error) {
	lowPad, lowR2Max, err := bp.lowResShape(lowResRMax)
	if err != nil {
		return nil, nil, err
	}
	lowData := grid.NewCentered[complex128](lowPad, bp.p.RefDim)
	lowWeight := grid.NewCentered[float64](lowPad, bp.p.RefDim)

	bp.forEachLowRes(lowData, lowR2Max, func(k, i, j int) {
		lowData.Set(k, i, j, bp.data.At(k, i, j))
		lowWeight.Set(k, i, j, bp.weight.At(k, i, j))
	})
	return lowData, lowWeight, nil
}

// SetLowResDataAndWeight injects a previously extracted low-resolution
// sub-cube back into the grid pair, overwriting all voxels within the
// extraction radius. Injecting into a freshly zeroed job of matching
// configuration reproduces the sub-cube exactly.
func (bp *BackProjector) SetLowResDataAndWeight(lowData *gridComplex, lowWeight *gridReal, lowResRMax int) error {
	lowPad, lowR2Max, err := bp.lowResShape(lowResRMax)
	if err != nil {
		return err
	}
	if lowData.Pad != lowPad || lowData.Dim != bp.p.RefDim {
		return fmt.Errorf("backproject: low-res data has pad %d dim %d, want %d/%d",
			lowData.Pad, lowData.Dim, lowPad, bp.p.RefDim)
	}
	if lowWeight.Pad != lowData.Pad || lowWeight.Dim != lowData.Dim ||
		len(lowWeight.Data) != len(lowData.Data) {
		return fmt.Errorf("backproject: low-res weight shape does not match data")
	}

	bp.forEachLowRes(lowData, lowR2Max, func(k, i, j int) {
		bp.data.Set(k, i, j, lowData.At(k, i, j))
		bp.weight.Set(k, i, j, lowWeight.At(k, i, j))
	})
	return nil
}

func (bp *BackProjector) lowResShape(lowResRMax int) (lowPad, lowR2Max int, err error) {
	if lowResRMax <= 0 {
		return 0, 0, fmt.Errorf("backproject: low-res radius must be positive, got %d", lowResRMax)
	}
	if lowResRMax > bp.rMax {
		return 0, 0, fmt.Errorf("backproject: low-res radius %d exceeds current r_max %d", lowResRMax, bp.rMax)
	}
	pf := bp.p.PaddingFactor
	return 2*(pf*lowResRMax+1) + 1, pf * pf * lowResRMax * lowResRMax, nil
}

// forEachLowRes visits every stored voxel of the low-resolution shape whose
// squared radius is within the cutoff.
func (bp *BackProjector) forEachLowRes(shape *gridComplex, lowR2Max int, fn func(k, i, j int)) {
	half := shape.Pad / 2
	zlo, zhi := 0, 0
	if shape.Dim == 3 {
		zlo, zhi = -half, half
	}
	for k := zlo; k <= zhi; k++ {
		for i := -half; i <= half; i++ {
			for j := 0; j <= half; j++ {
				if k*k+i*i+j*j > lowR2Max {
					continue
				}
				fn(k, i, j)
			}
		}
	}
}

// DownsampledAverage produces a non-oversampled proxy of the current
// reconstruction by averaging each block of padding_factor^dim grid voxels
// into one output voxel: each accumulated data sample is folded onto the
// nearest unpadded frequency and divided by the weight collected there.
// The proxy is meant for resolution estimation, not for final output.
func (bp *BackProjector) DownsampledAverage() *gridComplex {
	downPad := 2*(bp.rMax+1) + 1
	down := grid.NewCentered[complex128](downPad, bp.p.RefDim)
	downWeight := grid.NewCentered[float64](downPad, bp.p.RefDim)

	pf := float64(bp.p.PaddingFactor)
	half := bp.padSize / 2
	zlo, zhi := 0, 0
	if bp.p.RefDim == 3 {
		zlo, zhi = -half, half
	}
	for k := zlo; k <= zhi; k++ {
		kp := int(math.Round(float64(k) / pf))
		for i := -half; i <= half; i++ {
			ip := int(math.Round(float64(i) / pf))
			for j := 0; j <= half; j++ {
				jp := int(math.Round(float64(j) / pf))
				if !down.Contains(kp, ip, jp) {
					continue
				}
				down.Add(kp, ip, jp, bp.data.At(k, i, j))
				downWeight.Add(kp, ip, jp, bp.weight.At(k, i, j))
			}
		}
	}

	for idx, w := range downWeight.Data {
		if w > 0 {
			down.Data[idx] /= complex(w, 0)
		} else {
			down.Data[idx] = 0
		}
	}
	return down
}

// FourierShellCorrelation computes the resolution-shell correlation between
// two downsampled proxy volumes from independently accumulated half-sets.
// Voxels are partitioned into shells by integer radius; each shell reports
// Re(sum a*conj(b)) / sqrt(sum |a|^2 * sum |b|^2). Shells without signal
// report zero. A proxy correlated against itself yields 1 at every shell
// that carries signal.
func (bp *BackProjector) FourierShellCorrelation(avg1, avg2 *gridComplex) ([]float64, error) {
	if !avg1.SameShape(avg2) {
		return nil, fmt.Errorf("backproject: proxy volumes have different shapes")
	}
	nshell := bp.p.OriSize/2 + 1
	num := make([]float64, nshell)
	den1 := make([]float64, nshell)
	den2 := make([]float64, nshell)

	half := avg1.Pad / 2
	zlo, zhi := 0, 0
	if avg1.Dim == 3 {
		zlo, zhi = -half, half
	}
	for k := zlo; k <= zhi; k++ {
		for i := -half; i <= half; i++ {
			for j := 0; j <= half; j++ {
				ires := int(math.Round(math.Sqrt(float64(k*k + i*i + j*j))))
				if ires >= nshell {
					continue
				}
				a := avg1.At(k, i, j)
				b := avg2.At(k, i, j)
				num[ires] += real(a * cmplx.Conj(b))
				den1[ires] += real(a)*real(a) + imag(a)*imag(a)
				den2[ires] += real(b)*real(b) + imag(b)*imag(b)
			}
		}
	}

	fsc := make([]float64, nshell)
	for s := range fsc {
		den := math.Sqrt(den1[s] * den2[s])
		if den > 0 {
			fsc[s] = num[s] / den
		}
	}
	return fsc, nil
}
