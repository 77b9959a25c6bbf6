// Package backproject implements Fourier-space weighted backprojection and
// 3D density reconstruction for single-particle structural imaging.
//
// Frequency-domain projection images, each tagged with a pose and optional
// per-frequency confidence weights, are scattered into a padded 3D (or 2D)
// frequency-domain accumulator and a parallel weight accumulator following
// the projection-slice theorem in reverse. After all projections have been
// accumulated, point-group symmetry averaging and Hermitian-redundancy repair
// normalize the grids, and an iterative regularized inversion recovers an
// unbiased real-space density map.
package backproject

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"fourierslicesto3d/internal/models"
	"fourierslicesto3d/pkg/blob"
	"fourierslicesto3d/pkg/grid"
	"fourierslicesto3d/pkg/symmetry"
)

// Interpolator selects the scatter policy used during accumulation.
type Interpolator int

const (
	// NearestNeighbour adds each sample to exactly one voxel.
	NearestNeighbour Interpolator = iota

	// Trilinear distributes each sample linearly over the surrounding
	// voxel cell; the distribution weights sum to 1.
	Trilinear

	// Blob distributes each sample over all voxels within the blob
	// support radius, weighted by the tabulated blob footprint.
	Blob
)

// String returns the interpolator name.
func (ip Interpolator) String() string {
	switch ip {
	case NearestNeighbour:
		return "nearest"
	case Trilinear:
		return "trilinear"
	case Blob:
		return "blob"
	}
	return fmt.Sprintf("Interpolator(%d)", int(ip))
}

// Params is the immutable configuration of one reconstruction job, consumed
// once at construction.
type Params struct {
	// OriSize is the unpadded output side length in pixels. Must be even.
	OriSize int

	// RefDim is the dimensionality of the reconstructed object, 2 or 3.
	RefDim int

	// DataDim is the dimensionality of the input projections, 2 or 3.
	DataDim int

	// PaddingFactor is the oversampling ratio of the working grid,
	// typically 2.
	PaddingFactor int

	// Interpolator is the scatter policy.
	Interpolator Interpolator

	// RMinNN is the radius in pixels below which nearest-neighbour
	// scatter is forced regardless of Interpolator, avoiding
	// interpolation bias near the origin. Must be 0 when Interpolator
	// is Blob: the gridding correction divides the whole map by one
	// kernel transform, which cannot match mixed deposits.
	RMinNN int

	// RMax is the maximum resolution radius considered, in pixels.
	// Zero or negative selects OriSize/2.
	RMax int

	// BlobRadius, BlobAlpha and BlobOrder parameterize the scatter blob.
	// Zero values select the canonical 1.9 / 15 / 0.
	BlobRadius float64
	BlobAlpha  float64
	BlobOrder  int
}

func (p *Params) applyDefaults() {
	if p.PaddingFactor < 1 {
		p.PaddingFactor = 2
	}
	if p.BlobRadius == 0 {
		p.BlobRadius = 1.9
	}
	if p.BlobAlpha == 0 {
		p.BlobAlpha = 15
	}
	if p.DataDim == 0 {
		p.DataDim = 2
	}
}

// BackProjector owns one Grid Pair: the padded frequency-domain data
// accumulator and its parallel weight accumulator, together with the blob
// table and symmetry list needed to normalize and invert them.
type BackProjector struct {
	p       Params
	padSize int
	rMax    int

	data   *grid.Array[complex128]
	weight *grid.Array[float64]

	blob *blob.Table
	sym  *symmetry.List
}

// New constructs a zeroed backprojection job. The symmetry list may be nil,
// which denotes no symmetry.
func New(p Params, sym *symmetry.List) (*BackProjector, error) {
	p.applyDefaults()
	if p.OriSize < 2 || p.OriSize%2 != 0 {
		return nil, fmt.Errorf("backproject: ori size must be even and positive, got %d", p.OriSize)
	}
	if p.RefDim != 2 && p.RefDim != 3 {
		return nil, fmt.Errorf("backproject: ref dim must be 2 or 3, got %d", p.RefDim)
	}
	if p.DataDim != 2 && p.DataDim != 3 {
		return nil, fmt.Errorf("backproject: data dim must be 2 or 3, got %d", p.DataDim)
	}
	if p.RMinNN < 0 {
		return nil, fmt.Errorf("backproject: r_min_nn must be non-negative, got %d", p.RMinNN)
	}
	if p.Interpolator == Blob && p.RMinNN > 0 {
		return nil, fmt.Errorf("backproject: blob scatter cannot be combined with a forced nearest-neighbour radius (r_min_nn %d), set r_min_nn to 0", p.RMinNN)
	}
	if sym == nil {
		sym = symmetry.Identity()
	}

	tab, err := blob.NewTable(p.BlobRadius*float64(p.PaddingFactor), p.BlobAlpha, p.BlobOrder, 10000)
	if err != nil {
		return nil, err
	}

	bp := &BackProjector{
		p:       p,
		padSize: 2*(p.PaddingFactor*p.OriSize/2) + 1,
		blob:    tab,
		sym:     sym,
	}
	bp.data = grid.NewCentered[complex128](bp.padSize, p.RefDim)
	bp.weight = grid.NewCentered[float64](bp.padSize, p.RefDim)
	bp.resetRMax(p.RMax)
	return bp, nil
}

func (bp *BackProjector) resetRMax(requested int) {
	r := bp.p.OriSize / 2
	if requested > 0 && requested < r {
		r = requested
	}
	bp.rMax = r
}

// Params returns the job configuration.
func (bp *BackProjector) Params() Params { return bp.p }

// PadSize returns the padded grid side length.
func (bp *BackProjector) PadSize() int { return bp.padSize }

// RMax returns the current maximum resolution radius in pixels.
func (bp *BackProjector) RMax() int { return bp.rMax }

// InitZeros zeroes the data and weight grids for a new accumulation pass.
// A positive currentSize restricts the pass to currentSize/2 pixels of
// resolution; a non-positive value restores the configured maximum.
func (bp *BackProjector) InitZeros(currentSize int) {
	if currentSize > 0 {
		size := currentSize
		if size > bp.p.OriSize {
			size = bp.p.OriSize
		}
		bp.rMax = size / 2
	} else {
		bp.resetRMax(bp.p.RMax)
	}
	bp.data.Zero()
	bp.weight.Zero()
}

// Clone returns an independent deep copy of the job, sharing only the
// immutable blob table and symmetry list.
func (bp *BackProjector) Clone() *BackProjector {
	c := *bp
	c.data = bp.data.Clone()
	c.weight = bp.weight.Clone()
	return &c
}

// Merge sums another job's accumulators into this one. Summation commutes
// and associates, so worker-private accumulators may be merged in any order.
func (bp *BackProjector) Merge(other *BackProjector) error {
	if bp.p != other.p {
		return fmt.Errorf("backproject: cannot merge jobs with different configurations")
	}
	if err := bp.data.AddFrom(other.data); err != nil {
		return err
	}
	return bp.weight.AddFrom(other.weight)
}

// Accumulate injects one frequency-domain projection into the grid pair
// under the given pose. A nil weightMap is equivalent to uniform weight 1;
// otherwise it must hold one scalar per projection sample. A dimension
// mismatch between the projection and the configured ref/data dimensionality
// is a fatal precondition violation reported immediately.
func (bp *BackProjector) Accumulate(img *grid.Half[complex128], pose models.Pose, weightMap []float64) error {
	if img == nil {
		return fmt.Errorf("backproject: nil projection")
	}
	if weightMap != nil && len(weightMap) != len(img.Data) {
		return fmt.Errorf("backproject: weight map has %d samples, projection has %d",
			len(weightMap), len(img.Data))
	}
	if img.Dim != bp.p.DataDim {
		return fmt.Errorf("backproject: projection dimension %d does not match configured data dimension %d",
			img.Dim, bp.p.DataDim)
	}

	if img.Dim == 3 {
		if bp.p.RefDim != 3 {
			return fmt.Errorf("backproject: 3D input requires a 3D reference, have ref dim %d", bp.p.RefDim)
		}
		return bp.backRotate3D(img, pose, weightMap)
	}
	switch bp.p.RefDim {
	case 2:
		return bp.backRotate2D(img, pose, weightMap)
	case 3:
		return bp.backProject(img, pose, weightMap)
	}
	return fmt.Errorf("backproject: ref dim must be 2 or 3, got %d", bp.p.RefDim)
}

// poseMatrix resolves the pose into the slice-to-grid transform: the matrix
// itself when flagged as already inverted, its transpose otherwise, scaled by
// the padding factor so slice pixels land on padded grid coordinates.
func (bp *BackProjector) poseMatrix(pose models.Pose, needRows, needCols int) (*mat.Dense, error) {
	if pose.Rotation == nil {
		return nil, fmt.Errorf("backproject: pose has no rotation matrix")
	}
	rows, cols := pose.Rotation.Dims()
	if rows < needRows || cols < needCols {
		return nil, fmt.Errorf("backproject: pose matrix is %dx%d, need at least %dx%d",
			rows, cols, needRows, needCols)
	}
	var a mat.Dense
	if pose.Invert {
		a.CloneFrom(pose.Rotation)
	} else {
		a.CloneFrom(pose.Rotation.T())
	}
	a.Scale(float64(bp.p.PaddingFactor), &a)
	return &a, nil
}

// backProject scatters a 2D slice into the 3D grid: the canonical
// single-particle backprojection.
func (bp *BackProjector) backProject(img *grid.Half[complex128], pose models.Pose, weightMap []float64) error {
	a, err := bp.poseMatrix(pose, 3, 2)
	if err != nil {
		return err
	}
	myRMax := bp.rMax
	if half := img.N / 2; half < myRMax {
		myRMax = half
	}
	maxR2 := myRMax * myRMax
	xdim := img.XDim()

	for i := 0; i < img.N; i++ {
		y := img.Freq(i)
		if y > myRMax || y < -myRMax {
			continue
		}
		for x := 0; x < xdim && x <= myRMax; x++ {
			if x*x+y*y > maxR2 {
				continue
			}
			idx := img.Index(0, i, x)
			w := 1.0
			if weightMap != nil {
				w = weightMap[idx]
			}
			if w <= 0 {
				continue
			}
			fx, fy := float64(x), float64(y)
			xp := a.At(0, 0)*fx + a.At(0, 1)*fy
			yp := a.At(1, 0)*fx + a.At(1, 1)*fy
			zp := a.At(2, 0)*fx + a.At(2, 1)*fy
			bp.scatter(xp, yp, zp, img.Data[idx], w)
		}
	}
	return nil
}

// backRotate2D scatters an in-plane rotated 2D slice into the 2D grid,
// e.g. for class averaging.
func (bp *BackProjector) backRotate2D(img *grid.Half[complex128], pose models.Pose, weightMap []float64) error {
	a, err := bp.poseMatrix(pose, 2, 2)
	if err != nil {
		return err
	}
	myRMax := bp.rMax
	if half := img.N / 2; half < myRMax {
		myRMax = half
	}
	maxR2 := myRMax * myRMax
	xdim := img.XDim()

	for i := 0; i < img.N; i++ {
		y := img.Freq(i)
		if y > myRMax || y < -myRMax {
			continue
		}
		for x := 0; x < xdim && x <= myRMax; x++ {
			if x*x+y*y > maxR2 {
				continue
			}
			idx := img.Index(0, i, x)
			w := 1.0
			if weightMap != nil {
				w = weightMap[idx]
			}
			if w <= 0 {
				continue
			}
			fx, fy := float64(x), float64(y)
			xp := a.At(0, 0)*fx + a.At(0, 1)*fy
			yp := a.At(1, 0)*fx + a.At(1, 1)*fy
			bp.scatter(xp, yp, 0, img.Data[idx], w)
		}
	}
	return nil
}

// backRotate3D merges a whole 3D volume into the 3D grid under a relative
// rotation.
func (bp *BackProjector) backRotate3D(img *grid.Half[complex128], pose models.Pose, weightMap []float64) error {
	a, err := bp.poseMatrix(pose, 3, 3)
	if err != nil {
		return err
	}
	myRMax := bp.rMax
	if half := img.N / 2; half < myRMax {
		myRMax = half
	}
	maxR2 := myRMax * myRMax
	xdim := img.XDim()

	for k := 0; k < img.ZDim(); k++ {
		z := img.Freq(k)
		if z > myRMax || z < -myRMax {
			continue
		}
		for i := 0; i < img.N; i++ {
			y := img.Freq(i)
			if y > myRMax || y < -myRMax {
				continue
			}
			for x := 0; x < xdim && x <= myRMax; x++ {
				if x*x+y*y+z*z > maxR2 {
					continue
				}
				idx := img.Index(k, i, x)
				w := 1.0
				if weightMap != nil {
					w = weightMap[idx]
				}
				if w <= 0 {
					continue
				}
				fx, fy, fz := float64(x), float64(y), float64(z)
				xp := a.At(0, 0)*fx + a.At(0, 1)*fy + a.At(0, 2)*fz
				yp := a.At(1, 0)*fx + a.At(1, 1)*fy + a.At(1, 2)*fz
				zp := a.At(2, 0)*fx + a.At(2, 1)*fy + a.At(2, 2)*fz
				bp.scatter(xp, yp, zp, img.Data[idx], w)
			}
		}
	}
	return nil
}

// scatter distributes one weighted complex sample around the transformed
// grid coordinate (xp, yp, zp). The same distribution weights are applied to
// the data and weight grids so that data/weight later estimates a properly
// normalized Fourier coefficient.
func (bp *BackProjector) scatter(xp, yp, zp float64, val complex128, w float64) {
	interp := bp.p.Interpolator
	minRNN := float64(bp.p.RMinNN * bp.p.PaddingFactor)
	if xp*xp+yp*yp+zp*zp < minRNN*minRNN {
		// Interpolation bias near the origin outweighs the smoother
		// kernels; force single-voxel deposits there.
		interp = NearestNeighbour
	}

	switch interp {
	case Trilinear:
		conjugate := false
		if xp < 0 {
			xp, yp, zp = -xp, -yp, -zp
			conjugate = true
		}
		x0 := int(math.Floor(xp))
		fx := xp - float64(x0)
		y0 := int(math.Floor(yp))
		fy := yp - float64(y0)
		z0, fz := 0, 0.0
		if bp.p.RefDim == 3 {
			z0 = int(math.Floor(zp))
			fz = zp - float64(z0)
		}
		zSteps := 1
		if bp.p.RefDim == 3 {
			zSteps = 2
		}
		for dz := 0; dz < zSteps; dz++ {
			wz := 1.0
			if bp.p.RefDim == 3 {
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
					bp.deposit(z0+dz, y0+dy, x0+dx, val, w, wx*wy*wz, conjugate)
				}
			}
		}

	case Blob:
		conjugate := false
		if xp < 0 {
			xp, yp, zp = -xp, -yp, -zp
			conjugate = true
		}
		s := bp.blob.Radius
		zlo, zhi := 0, 0
		if bp.p.RefDim == 3 {
			zlo = int(math.Ceil(zp - s))
			zhi = int(math.Floor(zp + s))
		}
		for vz := zlo; vz <= zhi; vz++ {
			dz := float64(vz) - zp
			for vy := int(math.Ceil(yp - s)); vy <= int(math.Floor(yp+s)); vy++ {
				dy := float64(vy) - yp
				for vx := int(math.Ceil(xp - s)); vx <= int(math.Floor(xp+s)); vx++ {
					dx := float64(vx) - xp
					d := math.Sqrt(dx*dx + dy*dy + dz*dz)
					bw := bp.blob.Value(d)
					if bw <= 0 {
						continue
					}
					bp.deposit(vz, vy, vx, val, w, bw, conjugate)
				}
			}
		}

	default: // NearestNeighbour
		x0 := int(math.Round(xp))
		y0 := int(math.Round(yp))
		z0 := 0
		if bp.p.RefDim == 3 {
			z0 = int(math.Round(zp))
		}
		bp.deposit(z0, y0, x0, val, w, 1, false)
	}
}

// deposit adds one weighted contribution at logical voxel (zc, yc, xc),
// folding negative-x targets onto their Friedel mates.
func (bp *BackProjector) deposit(zc, yc, xc int, val complex128, w, dw float64, conjugate bool) {
	if conjugate {
		val = cmplx.Conj(val)
	}
	if xc < 0 {
		xc, yc, zc = -xc, -yc, -zc
		val = cmplx.Conj(val)
	}
	if !bp.data.Contains(zc, yc, xc) {
		return
	}
	bp.data.Add(zc, yc, xc, val*complex(dw, 0))
	bp.weight.Add(zc, yc, xc, w*dw)
}
