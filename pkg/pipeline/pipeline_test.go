package pipeline

import (
	"math"
	"math/cmplx"
	"path/filepath"
	"testing"

	"fourierslicesto3d/pkg/backproject"
	"fourierslicesto3d/pkg/grid"
	"fourierslicesto3d/pkg/transform"
)

func TestPhantomSymmetry(t *testing.T) {
	const n = 16
	vol := Phantom(n, 4)
	c := n / 2

	// A quarter turn about the center axis maps the phantom onto itself.
	for z := 0; z < n; z++ {
		for y := 1; y < n; y++ {
			for x := 1; x < n; x++ {
				dx, dy := x-c, y-c
				rx, ry := c-dy, c+dx
				if rx < 0 || rx >= n || ry < 0 || ry >= n {
					continue
				}
				a, b := vol.At(z, y, x), vol.At(z, ry, rx)
				if math.Abs(a-b) > 1e-12 {
					t.Fatalf("phantom not C4 symmetric at (%d,%d,%d): %g vs %g", z, y, x, a, b)
				}
			}
		}
	}
}

func TestProjectionPosesAreRotations(t *testing.T) {
	for i, pose := range ProjectionPoses(32) {
		r := pose.Rotation
		var sum float64
		for a := 0; a < 3; a++ {
			for b := 0; b < 3; b++ {
				dot := 0.0
				for k := 0; k < 3; k++ {
					dot += r.At(a, k) * r.At(b, k)
				}
				want := 0.0
				if a == b {
					want = 1
				}
				sum += math.Abs(dot - want)
			}
		}
		if sum > 1e-9 {
			t.Errorf("pose %d is not orthonormal (deviation %g)", i, sum)
		}
	}
}

func TestCentralSectionIdentityPose(t *testing.T) {
	const n = 16
	vol := Phantom(n, 1)
	spectrum := transform.New(n, 3).Forward(centerToOrigin(vol))

	pose := ProjectionPoses(1)[0]
	// Replace by the identity orientation.
	for a := 0; a < 3; a++ {
		for b := 0; b < 3; b++ {
			v := 0.0
			if a == b {
				v = 1
			}
			pose.Rotation.Set(a, b, v)
		}
	}

	slice := CentralSection(spectrum, pose)
	half := n / 2
	for i := 0; i < n; i++ {
		y := slice.Freq(i)
		for x := 0; x <= half; x++ {
			if x*x+y*y > half*half {
				continue
			}
			got := slice.Data[slice.Index(0, i, x)]
			want := spectrum.Data[spectrum.Index(0, i, x)]
			if cmplx.Abs(got-want) > 1e-12 {
				t.Fatalf("identity section differs at (%d,%d): %v vs %v", y, x, got, want)
			}
		}
	}
}

func TestProcessEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("end-to-end reconstruction is slow")
	}

	params := &Params{
		Job: backproject.Params{
			OriSize:       32,
			RefDim:        3,
			DataDim:       2,
			PaddingFactor: 2,
			Interpolator:  backproject.Trilinear,
			RMinNN:        2,
		},
		NumProjections: 160,
		SymOrder:       2,
		NumWorkers:     2,
		Reconstruct: backproject.ReconstructOptions{
			MaxIterPreweight: 3,
		},
		OutputFile: filepath.Join(t.TempDir(), "volume.raw"),
	}

	runner := NewRunner(params)
	if err := runner.Process(); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	metrics := runner.GetMetrics()
	if metrics.Correlation < 0.7 {
		t.Errorf("phantom correlation = %.3f, want >= 0.7", metrics.Correlation)
	}

	fsc := runner.GetFSC()
	if len(fsc) != params.Job.OriSize/2+1 {
		t.Fatalf("FSC has %d shells, want %d", len(fsc), params.Job.OriSize/2+1)
	}
	// Both half-sets observe the same noiseless phantom, so they agree at
	// low resolution.
	for s := 1; s <= 4; s++ {
		if fsc[s] < 0.9 {
			t.Errorf("FSC at shell %d = %.3f, want >= 0.9", s, fsc[s])
		}
	}

	vol := runner.GetVolume()
	if vol == nil || vol.N != params.Job.OriSize {
		t.Fatal("missing or mis-sized output volume")
	}
}

func TestProcessEndToEndBlob(t *testing.T) {
	if testing.Short() {
		t.Skip("end-to-end reconstruction is slow")
	}

	// Blob scatter requires r_min_nn 0 so that one kernel covers the whole
	// grid and the gridding correction matches every deposit.
	params := &Params{
		Job: backproject.Params{
			OriSize:       32,
			RefDim:        3,
			DataDim:       2,
			PaddingFactor: 2,
			Interpolator:  backproject.Blob,
			RMinNN:        0,
		},
		NumProjections: 160,
		SymOrder:       2,
		NumWorkers:     2,
		Reconstruct: backproject.ReconstructOptions{
			MaxIterPreweight: 5,
		},
		OutputFile: filepath.Join(t.TempDir(), "volume.raw"),
	}

	runner := NewRunner(params)
	if err := runner.Process(); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	metrics := runner.GetMetrics()
	if metrics.Correlation < 0.8 {
		t.Errorf("phantom correlation = %.3f, want >= 0.8", metrics.Correlation)
	}
}

func TestAccumulateSerialMatchesParallel(t *testing.T) {
	const n = 16
	vol := Phantom(n, 1)
	spectrum := transform.New(n, 3).Forward(centerToOrigin(vol))
	poses := ProjectionPoses(12)
	sections := make([]*grid.Half[complex128], len(poses))
	for i, pose := range poses {
		sections[i] = CentralSection(spectrum, pose)
	}

	job := backproject.Params{
		OriSize:       n,
		RefDim:        3,
		DataDim:       2,
		PaddingFactor: 2,
		Interpolator:  backproject.Trilinear,
		RMinNN:        2,
	}

	build := func(workers int) *backproject.BackProjector {
		bp, err := backproject.New(job, nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		r := &Runner{params: &Params{Job: job, NumWorkers: workers}}
		if err := r.accumulate(bp, sections, poses); err != nil {
			t.Fatalf("accumulate failed: %v", err)
		}
		return bp
	}

	serial := build(1)
	parallel := build(4)

	d1, w1, err := serial.LowResDataAndWeight(serial.RMax())
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	d2, w2, err := parallel.LowResDataAndWeight(parallel.RMax())
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	// Worker-private accumulation groups the additions differently, so
	// agreement is up to rounding, not bitwise.
	for idx := range d1.Data {
		if cmplx.Abs(d1.Data[idx]-d2.Data[idx]) > 1e-9 {
			t.Fatalf("data voxel %d differs between serial and parallel accumulation: %v vs %v",
				idx, d1.Data[idx], d2.Data[idx])
		}
	}
	for idx := range w1.Data {
		if math.Abs(w1.Data[idx]-w2.Data[idx]) > 1e-9 {
			t.Fatalf("weight voxel %d differs between serial and parallel accumulation: %g vs %g",
				idx, w1.Data[idx], w2.Data[idx])
		}
	}
}
