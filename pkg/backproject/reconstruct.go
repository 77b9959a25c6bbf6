package backproject

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/floats"

	"fourierslicesto3d/internal/models"
	"fourierslicesto3d/pkg/grid"
	"fourierslicesto3d/pkg/transform"
)

// ReconstructOptions controls the regularized inversion of a finalized grid
// pair. Zero values select the documented defaults; the spectra slices are
// indexed by integer resolution shell and must span OriSize/2+1 shells when
// provided.
type ReconstructOptions struct {
	// MaxIterPreweight is the number of gridding preweighting iterations.
	// Zero or negative selects 10.
	MaxIterPreweight int

	// DoMAP enables Wiener-type regularization of the sampling weights
	// from the tau2 spectrum.
	DoMAP bool

	// Tau2Fudge scales the signal-power spectrum in the regularization
	// term. Zero or negative selects 1.
	Tau2Fudge float64

	// Tau2 is the signal-power spectrum, read by DoMAP and rewritten from
	// the output map when UpdateTau2WithFSC is set.
	Tau2 []float64

	// Sigma2 is the noise-power spectrum consumed by the FSC conversion.
	Sigma2 []float64

	// EvidenceVsPrior receives the per-shell ratio of experimental to
	// prior weight when DoMAP and UpdateTau2WithFSC are both set.
	EvidenceVsPrior []float64

	// FSC is the resolution-correlation curve converted into Tau2 when
	// UpdateTau2WithFSC is set.
	FSC []float64

	// Normalise is the normalization constant applied to the output map.
	// Zero selects 1.
	Normalise float64

	// UpdateTau2WithFSC derives Tau2 from FSC and Sigma2 before inversion
	// and refreshes it from the output power spectrum afterwards.
	UpdateTau2WithFSC bool

	// IsWholeInsteadOfHalf marks the job as covering the full dataset, in
	// which case the FSC is rescaled for the doubled particle count.
	IsWholeInsteadOfHalf bool

	// Threads is the worker count for the transform passes. Zero or
	// negative selects 1.
	Threads int

	// MinResMap is the lowest shell to which the regularization term is
	// applied. Use a negative value to regularize every shell.
	MinResMap int
}

func (o *ReconstructOptions) applyDefaults() {
	if o.MaxIterPreweight <= 0 {
		o.MaxIterPreweight = 10
	}
	if o.Tau2Fudge <= 0 {
		o.Tau2Fudge = 1
	}
	if o.Normalise == 0 {
		o.Normalise = 1
	}
	if o.Threads <= 0 {
		o.Threads = 1
	}
}

// Reconstruct inverts the finalized grid pair into a real-space density map.
// The sampling weights are optionally regularized (DoMAP), corrected for the
// irregular sampling density of interpolated scatter by iterative
// preweighting, applied to the data, and the result is inverse-transformed,
// cropped to OriSize, compensated for the scatter kernel's amplitude taper
// and scaled by the normalization constant. A job with no accumulated signal
// yields an all-zero map.
func (bp *BackProjector) Reconstruct(opts ReconstructOptions) (*models.Volume, error) {
	opts.applyDefaults()

	pf := bp.p.PaddingFactor
	maxR2 := bp.rMax * bp.rMax * pf * pf
	nshell := bp.p.OriSize/2 + 1

	if opts.UpdateTau2WithFSC {
		if len(opts.FSC) == 0 || len(opts.Sigma2) < nshell {
			return nil, fmt.Errorf("backproject: tau2 update requires an FSC curve and %d sigma2 shells", nshell)
		}
		if len(opts.Tau2) < nshell {
			return nil, fmt.Errorf("backproject: tau2 spectrum has %d shells, need %d", len(opts.Tau2), nshell)
		}
		convertFSCToTau2(opts)
	}

	fweight := grid.NewHalf[float64](bp.padSize, bp.p.RefDim)
	grid.Decenter(bp.weight, fweight, maxR2, func(v float64) float64 { return v })

	if opts.DoMAP {
		if err := bp.regularizeWeights(fweight, &opts, maxR2); err != nil {
			return nil, err
		}
	}

	tr := transform.New(bp.padSize, bp.p.RefDim)
	fnew := bp.preweight(tr, fweight, opts.MaxIterPreweight, opts.Threads, maxR2)

	// Apply the converged inverse weights to the data.
	fconv := grid.NewHalf[complex128](bp.padSize, bp.p.RefDim)
	grid.Decenter(bp.data, fconv, maxR2, func(v complex128) complex128 { return v })
	for idx := range fconv.Data {
		fconv.Data[idx] *= complex(fnew.Data[idx], 0)
	}

	vol := bp.windowToOridimRealSpace(fconv, opts.Threads)
	bp.griddingCorrect(vol)
	if opts.Normalise != 1 {
		floats.Scale(opts.Normalise, vol.Data)
	}

	if opts.UpdateTau2WithFSC {
		spectrum := bp.powerSpectrum(vol)
		// The power of the complex plane is split over two components.
		floats.Scale(opts.Tau2Fudge*opts.Normalise/2, spectrum)
		copy(opts.Tau2[:nshell], spectrum)
	}
	return vol, nil
}

// convertFSCToTau2 turns the resolution-correlation curve into a signal-power
// spectrum: fsc/(1-fsc) estimates the spectral SNR, which multiplied by the
// noise power gives the signal power. Whole-dataset jobs rescale the curve
// for the doubled particle count first.
func convertFSCToTau2(opts ReconstructOptions) {
	for ires := range opts.Tau2 {
		f := 0.0
		if ires < len(opts.FSC) {
			f = opts.FSC[ires]
		}
		if opts.IsWholeInsteadOfHalf {
			f = math.Sqrt(2 * f / (1 + f))
		}
		f = math.Min(0.999, math.Max(0.001, f))
		ssnr := f / (1 - f)
		opts.Tau2[ires] = ssnr * opts.Sigma2[ires]
	}
}

// regularizeWeights adds the Wiener-type inverse prior term 1/(fudge*tau2) to
// every sampling weight at or above the minimum-resolution shell. Shells with
// zero signal power fall back to a small fraction of the experimental weight,
// which suppresses them almost entirely.
func (bp *BackProjector) regularizeWeights(fweight *grid.Half[float64], opts *ReconstructOptions, maxR2 int) error {
	nshell := bp.p.OriSize/2 + 1
	if len(opts.Tau2) < nshell {
		return fmt.Errorf("backproject: MAP regularization requires %d tau2 shells, have %d", nshell, len(opts.Tau2))
	}
	oversampling := math.Pow(float64(bp.p.PaddingFactor), float64(bp.p.RefDim))
	pf := float64(bp.p.PaddingFactor)

	evidence := make([]float64, nshell)
	counter := make([]float64, nshell)

	xdim := fweight.XDim()
	for k := 0; k < fweight.ZDim(); k++ {
		kp := 0
		if fweight.Dim == 3 {
			kp = fweight.Freq(k)
		}
		for i := 0; i < fweight.N; i++ {
			ip := fweight.Freq(i)
			for j := 0; j < xdim; j++ {
				r2 := kp*kp + ip*ip + j*j
				if r2 >= maxR2 {
					continue
				}
				ires := int(math.Round(math.Sqrt(float64(r2)) / pf))
				idx := fweight.Index(k, i, j)
				invw := oversampling * fweight.Data[idx]

				tau2 := opts.Tau2[ires]
				var invtau2 float64
				switch {
				case tau2 > 0:
					invtau2 = 1 / (oversampling * opts.Tau2Fudge * tau2)
				case tau2 == 0 && invw > 0:
					invtau2 = 1 / (0.001 * invw)
				case tau2 == 0:
					continue
				default:
					return fmt.Errorf("backproject: negative tau2 value %g at shell %d", tau2, ires)
				}

				if opts.UpdateTau2WithFSC {
					evidence[ires] += invw / invtau2
				}
				counter[ires]++

				if ires >= opts.MinResMap {
					fweight.Data[idx] = invw + invtau2
				}
			}
		}
	}

	if opts.UpdateTau2WithFSC && opts.EvidenceVsPrior != nil {
		for ires := 0; ires < nshell && ires < len(opts.EvidenceVsPrior); ires++ {
			switch {
			case ires > bp.rMax:
				opts.EvidenceVsPrior[ires] = 0
			case counter[ires] < 0.001:
				opts.EvidenceVsPrior[ires] = 999
			default:
				opts.EvidenceVsPrior[ires] = evidence[ires] / counter[ires]
			}
		}
	}
	return nil
}

// preweight iterates the Pipe & Menon density-compensation scheme: the
// current inverse-weight estimate times the sampling weights is convolved
// with the blob kernel (a real-space multiplication round-trip), and the
// estimate is divided by the magnitude of the result. At convergence the
// product of sampling weight and estimate, blob-convolved, is flat.
func (bp *BackProjector) preweight(tr *transform.Transformer, fweight *grid.Half[float64], iters, threads, maxR2 int) *grid.Half[float64] {
	fnew := grid.NewHalf[float64](bp.padSize, bp.p.RefDim)
	forEachHalfFreq(fnew, func(idx, r2 int) {
		if r2 < maxR2 {
			fnew.Data[idx] = 1
		}
	})

	fconv := grid.NewHalf[complex128](bp.padSize, bp.p.RefDim)
	for iter := 0; iter < iters; iter++ {
		for idx := range fconv.Data {
			fconv.Data[idx] = complex(fnew.Data[idx]*fweight.Data[idx], 0)
		}
		bp.convoluteBlobRealSpace(tr, fconv, false, threads)
		forEachHalfFreq(fnew, func(idx, r2 int) {
			if r2 < maxR2 {
				fnew.Data[idx] /= math.Max(1e-6, cmplx.Abs(fconv.Data[idx]))
			}
		})
	}
	return fnew
}

// forEachHalfFreq visits every stored sample of a half grid with its squared
// logical radius.
func forEachHalfFreq(h *grid.Half[float64], fn func(idx, r2 int)) {
	xdim := h.XDim()
	for k := 0; k < h.ZDim(); k++ {
		kp := 0
		if h.Dim == 3 {
			kp = h.Freq(k)
		}
		for i := 0; i < h.N; i++ {
			ip := h.Freq(i)
			for j := 0; j < xdim; j++ {
				fn(h.Index(k, i, j), kp*kp+ip*ip+j*j)
			}
		}
	}
}

// convoluteBlobRealSpace convolves a frequency grid with the blob kernel by
// round-tripping through real space: inverse transform, multiplication of
// every voxel by the blob's transform value at its fractional radius, forward
// transform. With doMask set, voxels beyond the Nyquist radius of the
// unpadded grid are zeroed instead.
func (bp *BackProjector) convoluteBlobRealSpace(tr *transform.Transformer, fconv *grid.Half[complex128], doMask bool, threads int) {
	pad := bp.padSize
	cube := tr.Inverse(fconv, threads)

	norm := bp.blob.FT(0)
	maskR := 1 / (2 * float64(bp.p.PaddingFactor))
	scale := 1 / float64(bp.p.OriSize*bp.p.PaddingFactor)

	zdim := 1
	if bp.p.RefDim == 3 {
		zdim = pad
	}
	for k := 0; k < zdim; k++ {
		kp := wrapFreq(k, pad)
		for i := 0; i < pad; i++ {
			ip := wrapFreq(i, pad)
			for j := 0; j < pad; j++ {
				jp := wrapFreq(j, pad)
				rval := math.Sqrt(float64(kp*kp+ip*ip+jp*jp)) * scale
				idx := (k*pad+i)*pad + j
				if doMask && rval > maskR {
					cube[idx] = 0
				} else {
					cube[idx] *= bp.blob.FT(rval) / norm
				}
			}
		}
	}

	out := tr.Forward(cube)
	copy(fconv.Data, out.Data)
}

func wrapFreq(i, n int) int {
	if i <= n/2 {
		return i
	}
	return i - n
}

// windowToOridimRealSpace crops the padded spectrum to padding_factor *
// ori_size, inverse-transforms it with the given worker count, recenters the
// origin and crops the real-space cube to ori_size. The result absorbs the
// transform-size normalization between the input slices and the padded grid.
func (bp *BackProjector) windowToOridimRealSpace(fin *grid.Half[complex128], threads int) *models.Volume {
	n := bp.p.OriSize
	pf := bp.p.PaddingFactor
	padOriDim := pf * n

	fpad := grid.WindowHalf(fin, padOriDim)
	tr := transform.New(padOriDim, bp.p.RefDim)
	cube := tr.Inverse(fpad, threads)

	var normfft float64
	if bp.p.RefDim == 2 {
		normfft = float64(pf * pf)
		if bp.p.DataDim == 3 {
			normfft = float64(pf * pf * n)
		}
	} else {
		normfft = float64(pf * pf * pf * n)
		if bp.p.DataDim == 3 {
			normfft = float64(pf * pf * pf)
		}
	}

	// Move the object center from sample 0 to the cube center, then take
	// the central ori_size window.
	vol := models.NewVolume(n, bp.p.RefDim)
	off := padOriDim/2 - n/2
	zdim := 1
	if bp.p.RefDim == 3 {
		zdim = n
	}
	shift := padOriDim / 2
	for k := 0; k < zdim; k++ {
		ks := k + off
		if bp.p.RefDim == 3 {
			ks = (ks + shift) % padOriDim
		} else {
			ks = 0
		}
		for i := 0; i < n; i++ {
			is := (i + off + shift) % padOriDim
			for j := 0; j < n; j++ {
				js := (j + off + shift) % padOriDim
				vol.Set(k, i, j, cube[(ks*padOriDim+is)*padOriDim+js]/normfft)
			}
		}
	}
	return vol
}

// griddingCorrect divides the real-space map by the transform of the scatter
// kernel, undoing the amplitude taper interpolated scatter imposes on the
// object. The center voxel, where every kernel transform equals 1, is left
// untouched.
func (bp *BackProjector) griddingCorrect(vol *models.Volume) {
	n := vol.N
	half := n / 2
	scale := 1 / float64(bp.p.OriSize*bp.p.PaddingFactor)
	blobNorm := bp.blob.FT(0)

	zdim := 1
	if vol.Dim == 3 {
		zdim = n
	}
	for k := 0; k < zdim; k++ {
		kc := 0
		if vol.Dim == 3 {
			kc = k - half
		}
		for i := 0; i < n; i++ {
			ic := i - half
			for j := 0; j < n; j++ {
				jc := j - half
				r := math.Sqrt(float64(kc*kc + ic*ic + jc*jc))
				if r == 0 {
					continue
				}
				rval := r * scale
				var corr float64
				switch {
				case bp.p.Interpolator == NearestNeighbour && bp.p.RMinNN == 0:
					corr = sinc(rval)
				case bp.p.Interpolator == Trilinear || bp.p.Interpolator == NearestNeighbour:
					s := sinc(rval)
					corr = s * s
				default: // Blob
					corr = bp.blob.FT(rval) / blobNorm
				}
				if corr != 0 {
					vol.Set(k, i, j, vol.At(k, i, j)/corr)
				}
			}
		}
	}
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

// powerSpectrum computes the rotationally averaged power of the map, indexed
// by integer resolution shell.
func (bp *BackProjector) powerSpectrum(vol *models.Volume) []float64 {
	n := vol.N
	tr := transform.New(n, vol.Dim)
	h := tr.Forward(vol.Data)

	nshell := n/2 + 1
	spectrum := make([]float64, nshell)
	count := make([]float64, nshell)

	xdim := h.XDim()
	for k := 0; k < h.ZDim(); k++ {
		kp := 0
		if h.Dim == 3 {
			kp = h.Freq(k)
		}
		for i := 0; i < n; i++ {
			ip := h.Freq(i)
			for j := 0; j < xdim; j++ {
				ires := int(math.Round(math.Sqrt(float64(kp*kp + ip*ip + j*j))))
				if ires >= nshell {
					continue
				}
				v := h.Data[h.Index(k, i, j)]
				spectrum[ires] += real(v)*real(v) + imag(v)*imag(v)
				count[ires]++
			}
		}
	}
	for s := range spectrum {
		if count[s] > 0 {
			spectrum[s] /= count[s]
		}
	}
	return spectrum
}
