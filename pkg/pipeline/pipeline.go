// Package pipeline runs the end-to-end demonstration of the backprojection
// core: a synthetic phantom is sectioned in Fourier space at a set of
// orientations, the sections are accumulated into two independent half-set
// jobs in parallel, the half-sets exchange their low-resolution content,
// their agreement is measured by Fourier shell correlation, and a regularized
// reconstruction is inverted back to real space.
package pipeline

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"fourierslicesto3d/internal/models"
	"fourierslicesto3d/pkg/backproject"
	"fourierslicesto3d/pkg/grid"
	"fourierslicesto3d/pkg/symmetry"
	"fourierslicesto3d/pkg/transform"
	"fourierslicesto3d/pkg/visualization"
)

// ValidationMetrics holds the quality measures reported after a run.
type ValidationMetrics struct {
	// Correlation is the Pearson correlation between the phantom and the
	// reconstructed map. Values close to 1 indicate a faithful inversion.
	Correlation float64

	// ResolutionShell is the first shell at which the half-set FSC drops
	// below 0.143, the conventional resolution criterion. Equal to the
	// shell count when the curve never drops.
	ResolutionShell int

	// MapMean and MapStddev summarize the output density distribution.
	MapMean   float64
	MapStddev float64
}

// Params holds the demonstration run configuration.
type Params struct {
	// Job is the backprojection configuration shared by both half-sets.
	Job backproject.Params

	// NumProjections is the number of synthetic projection orientations.
	NumProjections int

	// SymOrder is the order of the cyclic group applied to the phantom
	// and imposed during symmetrisation.
	SymOrder int

	// NumWorkers is the number of parallel accumulation workers per
	// half-set.
	NumWorkers int

	// Reconstruct carries the inversion options for the final map.
	Reconstruct backproject.ReconstructOptions

	// OutputFile is the path of the raw float64 volume dump.
	OutputFile string

	// SaveSlices enables central-slice JPEG output into SliceDir.
	SaveSlices bool
	SliceDir   string
}

// Runner executes the demonstration pipeline and retains its products.
type Runner struct {
	params *Params

	phantom *models.Volume
	volume  *models.Volume
	fsc     []float64
	metrics ValidationMetrics
}

// NewRunner creates a pipeline runner with the provided parameters.
func NewRunner(params *Params) *Runner {
	return &Runner{params: params}
}

// Process runs the complete demonstration pipeline.
func (r *Runner) Process() error {
	p := r.params
	n := p.Job.OriSize

	sym, err := symmetry.Cyclic(p.SymOrder)
	if err != nil {
		return fmt.Errorf("failed to build symmetry group: %w", err)
	}

	// Step 1: Build the phantom and its Fourier spectrum.
	fmt.Println("Step 1: Generating synthetic phantom...")
	r.phantom = Phantom(n, p.SymOrder)
	// The accumulation convention keeps the object center at sample 0, so
	// the spectrum carries no checkerboard phase; the reconstruction's
	// final windowing shifts it back.
	spectrum := transform.New(n, 3).Forward(centerToOrigin(r.phantom))

	// Step 2: Section the spectrum at the projection orientations.
	fmt.Println("Step 2: Extracting central sections...")
	poses := ProjectionPoses(p.NumProjections)
	sections := make([]*grid.Half[complex128], len(poses))
	for i, pose := range poses {
		sections[i] = CentralSection(spectrum, pose)
	}

	// Step 3: Accumulate the sections into two half-set jobs.
	fmt.Println("Step 3: Accumulating projections into half-sets...")
	half1, err := backproject.New(p.Job, sym)
	if err != nil {
		return fmt.Errorf("failed to create half-set job: %w", err)
	}
	half2 := half1.Clone()

	mid := len(sections) / 2
	if err := r.accumulate(half1, sections[:mid], poses[:mid]); err != nil {
		return err
	}
	if err := r.accumulate(half2, sections[mid:], poses[mid:]); err != nil {
		return err
	}

	// Step 4: Repair Hermitian redundancy and impose symmetry.
	fmt.Println("Step 4: Symmetrising half-sets...")
	padF := half1.Params().PaddingFactor
	rmax2 := half1.RMax() * half1.RMax() * padF * padF
	for _, h := range []*backproject.BackProjector{half1, half2} {
		h.EnforceHermitianSymmetry()
		h.Symmetrise(rmax2)
	}

	// Step 5: Exchange low-resolution content between the half-sets.
	fmt.Println("Step 5: Exchanging low-resolution content...")
	lowRes := half1.RMax() / 4
	if lowRes > 0 {
		d1, w1, err := half1.LowResDataAndWeight(lowRes)
		if err != nil {
			return fmt.Errorf("failed to extract low-res content: %w", err)
		}
		d2, w2, err := half2.LowResDataAndWeight(lowRes)
		if err != nil {
			return fmt.Errorf("failed to extract low-res content: %w", err)
		}
		averageLowRes(d1, w1, d2, w2)
		if err := half1.SetLowResDataAndWeight(d1, w1, lowRes); err != nil {
			return fmt.Errorf("failed to inject low-res content: %w", err)
		}
		if err := half2.SetLowResDataAndWeight(d2, w2, lowRes); err != nil {
			return fmt.Errorf("failed to inject low-res content: %w", err)
		}
	}

	// Step 6: Estimate resolution from the half-set agreement.
	fmt.Println("Step 6: Computing Fourier shell correlation...")
	avg1 := half1.DownsampledAverage()
	avg2 := half2.DownsampledAverage()
	r.fsc, err = half1.FourierShellCorrelation(avg1, avg2)
	if err != nil {
		return fmt.Errorf("failed to compute FSC: %w", err)
	}

	// Step 7: Invert the first half-set into a density map.
	fmt.Println("Step 7: Reconstructing density map...")
	opts := p.Reconstruct
	opts.Threads = p.NumWorkers
	r.volume, err = half1.Reconstruct(opts)
	if err != nil {
		return fmt.Errorf("reconstruction failed: %w", err)
	}

	// Step 8: Write outputs and compute metrics.
	fmt.Println("Step 8: Writing output volume...")
	if p.OutputFile != "" {
		if err := r.saveVolume(p.OutputFile); err != nil {
			return fmt.Errorf("failed to write volume: %w", err)
		}
	}
	if p.SaveSlices {
		viewer := visualization.NewViewer(r.volume)
		if err := viewer.SaveCentralSlices(p.SliceDir); err != nil {
			fmt.Printf("Warning: Failed to save central slices: %v\n", err)
		}
	}
	r.calculateValidationMetrics()

	return nil
}

// accumulate distributes the sections over worker-private clones of the job
// and merges the clones back. Summation commutes, so the merge order does not
// influence the result.
func (r *Runner) accumulate(bp *backproject.BackProjector, sections []*grid.Half[complex128], poses []models.Pose) error {
	workers := r.params.NumWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > len(sections) {
		workers = len(sections)
	}
	if workers <= 1 {
		for i, s := range sections {
			if err := bp.Accumulate(s, poses[i], nil); err != nil {
				return fmt.Errorf("accumulation failed: %w", err)
			}
		}
		return nil
	}

	clones := make([]*backproject.BackProjector, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	per := (len(sections) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * per
		end := start + per
		if end > len(sections) {
			end = len(sections)
		}
		if start >= end {
			break
		}
		clone := bp.Clone()
		clones[w] = clone
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				if err := clones[w].Accumulate(sections[i], poses[i], nil); err != nil {
					errs[w] = err
					return
				}
			}
		}(w, start, end)
	}
	wg.Wait()

	for w, clone := range clones {
		if errs[w] != nil {
			return fmt.Errorf("accumulation failed: %w", errs[w])
		}
		if clone == nil {
			continue
		}
		if err := bp.Merge(clone); err != nil {
			return fmt.Errorf("merge failed: %w", err)
		}
	}
	return nil
}

// averageLowRes replaces both low-resolution extracts by their mean so the
// two half-sets share identical low-frequency content afterwards.
func averageLowRes(d1 *grid.Array[complex128], w1 *grid.Array[float64], d2 *grid.Array[complex128], w2 *grid.Array[float64]) {
	for idx := range d1.Data {
		avg := 0.5 * (d1.Data[idx] + d2.Data[idx])
		d1.Data[idx], d2.Data[idx] = avg, avg
	}
	for idx := range w1.Data {
		avg := 0.5 * (w1.Data[idx] + w2.Data[idx])
		w1.Data[idx], w2.Data[idx] = avg, avg
	}
}

// saveVolume dumps the map as little-endian float64 voxels, x fastest.
func (r *Runner) saveVolume(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return binary.Write(file, binary.LittleEndian, r.volume.Data)
}

func (r *Runner) calculateValidationMetrics() {
	r.metrics.Correlation = stat.Correlation(r.phantom.Data, r.volume.Data, nil)
	r.metrics.MapMean, r.metrics.MapStddev = stat.MeanStdDev(r.volume.Data, nil)
	r.metrics.ResolutionShell = len(r.fsc)
	for s, f := range r.fsc {
		if s > 0 && f < 0.143 {
			r.metrics.ResolutionShell = s
			break
		}
	}
}

// GetMetrics returns the validation metrics of the last run.
func (r *Runner) GetMetrics() ValidationMetrics {
	return r.metrics
}

// GetFSC returns the half-set correlation curve of the last run.
func (r *Runner) GetFSC() []float64 {
	return r.fsc
}

// GetVolume returns the reconstructed map of the last run.
func (r *Runner) GetVolume() *models.Volume {
	return r.volume
}

// Phantom builds a synthetic test object: a soft spherical shell with
// symOrder density bumps arranged symmetrically about the z axis, so the
// object is invariant under the cyclic group of that order.
func Phantom(n, symOrder int) *models.Volume {
	vol := models.NewVolume(n, 3)
	c := float64(n) / 2
	shellR := float64(n) / 4
	bumpR := float64(n) / 10
	bumpD := float64(n) / 3.2

	if symOrder < 1 {
		symOrder = 1
	}
	type center struct{ x, y, z float64 }
	bumps := make([]center, 0, symOrder)
	for s := 0; s < symOrder; s++ {
		phi := 2 * math.Pi * float64(s) / float64(symOrder)
		bumps = append(bumps, center{
			x: c + bumpD*math.Cos(phi),
			y: c + bumpD*math.Sin(phi),
			z: c,
		})
	}

	for z := 0; z < n; z++ {
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				dx, dy, dz := float64(x)-c, float64(y)-c, float64(z)-c
				rr := math.Sqrt(dx*dx + dy*dy + dz*dz)
				v := math.Exp(-(rr - shellR) * (rr - shellR) / (2 * bumpR * bumpR))
				for _, b := range bumps {
					bx, by, bz := float64(x)-b.x, float64(y)-b.y, float64(z)-b.z
					d2 := bx*bx + by*by + bz*bz
					v += 2 * math.Exp(-d2/(2*bumpR*bumpR/4))
				}
				vol.Set(z, y, x, v)
			}
		}
	}
	return vol
}

// centerToOrigin cyclically shifts a volume so the voxel at the cube center
// moves to sample 0.
func centerToOrigin(vol *models.Volume) []float64 {
	n := vol.N
	c := n / 2
	out := make([]float64, len(vol.Data))
	for z := 0; z < n; z++ {
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				out[(z*n+y)*n+x] = vol.At((z+c)%n, (y+c)%n, (x+c)%n)
			}
		}
	}
	return out
}

// ProjectionPoses spreads orientations over tilt and azimuth so the sections
// cover Fourier space reasonably evenly.
func ProjectionPoses(count int) []models.Pose {
	poses := make([]models.Pose, 0, count)
	for i := 0; i < count; i++ {
		// Tilt angles sample cos(tilt) uniformly over (0, 1], reaching
		// close enough to the equator that no Fourier cone stays empty.
		frac := (float64(i) + 0.5) / float64(count)
		tilt := math.Acos(1 - frac)
		phi := math.Pi * (1 + math.Sqrt(5)) * float64(i)
		var rot mat.Dense
		rot.Mul(symmetry.RotationZ(phi), symmetry.RotationY(tilt))
		poses = append(poses, models.NewPose(&rot, false))
	}
	return poses
}

// CentralSection gathers the plane through the origin of a 3D half-stored
// spectrum at the given pose, producing the frequency-domain projection that
// the accumulation engine expects for that same pose.
func CentralSection(spectrum *grid.Half[complex128], pose models.Pose) *grid.Half[complex128] {
	n := spectrum.N
	slice := grid.NewHalf[complex128](n, 2)

	var a mat.Dense
	if pose.Invert {
		a.CloneFrom(pose.Rotation)
	} else {
		a.CloneFrom(pose.Rotation.T())
	}

	half := n / 2
	xdim := slice.XDim()
	for i := 0; i < n; i++ {
		y := slice.Freq(i)
		for x := 0; x < xdim; x++ {
			if x*x+y*y > half*half {
				continue
			}
			fx, fy := float64(x), float64(y)
			xp := a.At(0, 0)*fx + a.At(0, 1)*fy
			yp := a.At(1, 0)*fx + a.At(1, 1)*fy
			zp := a.At(2, 0)*fx + a.At(2, 1)*fy
			slice.Data[slice.Index(0, i, x)] = gatherHalf(spectrum, xp, yp, zp)
		}
	}
	return slice
}

// gatherHalf trilinearly samples a half-stored spectrum at a continuous
// frequency coordinate, folding negative-x lookups onto conjugated mates.
func gatherHalf(h *grid.Half[complex128], xp, yp, zp float64) complex128 {
	conjugate := false
	if xp < 0 {
		xp, yp, zp = -xp, -yp, -zp
		conjugate = true
	}
	x0 := int(math.Floor(xp))
	fx := xp - float64(x0)
	y0 := int(math.Floor(yp))
	fy := yp - float64(y0)
	z0 := int(math.Floor(zp))
	fz := zp - float64(z0)

	half := h.N / 2
	var out complex128
	for dz := 0; dz < 2; dz++ {
		wz := 1 - fz
		if dz == 1 {
			wz = fz
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
				if xc > half || yc < -half || yc > half || zc < -half || zc > half {
					continue
				}
				ys, zs := yc, zc
				if ys < 0 {
					ys += h.N
				}
				if zs < 0 {
					zs += h.N
				}
				v := h.Data[h.Index(zs, ys, xc)]
				if flip {
					v = cmplx.Conj(v)
				}
				out += v * complex(wx*wy*wz, 0)
			}
		}
	}
	if conjugate {
		out = cmplx.Conj(out)
	}
	return out
}
