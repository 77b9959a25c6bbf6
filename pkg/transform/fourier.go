// Package transform provides the Fourier transform service used by the
// reconstruction core: forward (real to Hermitian half-complex) and inverse
// transforms of square 2D and cubic 3D grids, composed from gonum's 1D plans
// axis by axis.
//
// A Transformer may be reused across calls to avoid reallocation, but it must
// not be invoked concurrently; callers serialize their own transform calls.
// The inverse transform optionally fans its independent lines out over a
// worker pool, with a barrier between axis passes.
package transform

import (
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	"fourierslicesto3d/pkg/grid"
)

// Transformer computes transforms for one fixed grid size and dimensionality.
type Transformer struct {
	n   int
	dim int

	rfft *fourier.FFT
	cfft *fourier.CmplxFFT

	row  []float64
	line []complex128
	out  []complex128
}

// New returns a Transformer for n^dim grids, dim 2 or 3.
func New(n, dim int) *Transformer {
	return &Transformer{
		n:    n,
		dim:  dim,
		rfft: fourier.NewFFT(n),
		cfft: fourier.NewCmplxFFT(n),
		row:  make([]float64, n),
		line: make([]complex128, n),
		out:  make([]complex128, n),
	}
}

// N returns the logical grid side length.
func (t *Transformer) N() int { return t.n }

// Forward computes the Hermitian half-stored spectrum of a real n^dim grid,
// normalized so that the zero-frequency sample equals the grid mean. The
// input layout is row-major with x fastest.
func (t *Transformer) Forward(data []float64) *grid.Half[complex128] {
	n := t.n
	xdim := n/2 + 1
	h := grid.NewHalf[complex128](n, t.dim)
	zdim := h.ZDim()

	// x pass: real rows to half-complex rows.
	coeff := t.out[:xdim]
	for k := 0; k < zdim; k++ {
		for i := 0; i < n; i++ {
			copy(t.row, data[(k*n+i)*n:(k*n+i)*n+n])
			t.rfft.Coefficients(coeff, t.row)
			copy(h.Data[h.Index(k, i, 0):h.Index(k, i, 0)+xdim], coeff)
		}
	}

	// y pass.
	for k := 0; k < zdim; k++ {
		for j := 0; j < xdim; j++ {
			for i := 0; i < n; i++ {
				t.line[i] = h.Data[h.Index(k, i, j)]
			}
			t.cfft.Coefficients(t.out, t.line)
			for i := 0; i < n; i++ {
				h.Data[h.Index(k, i, j)] = t.out[i]
			}
		}
	}

	// z pass.
	if t.dim == 3 {
		for i := 0; i < n; i++ {
			for j := 0; j < xdim; j++ {
				for k := 0; k < n; k++ {
					t.line[k] = h.Data[h.Index(k, i, j)]
				}
				t.cfft.Coefficients(t.out, t.line)
				for k := 0; k < n; k++ {
					h.Data[h.Index(k, i, j)] = t.out[k]
				}
			}
		}
	}

	norm := 1.0 / float64(total(n, t.dim))
	for idx := range h.Data {
		h.Data[idx] *= complex(norm, 0)
	}
	return h
}

// Inverse computes the real n^dim grid from a Hermitian half-stored spectrum.
// The transform is unnormalized relative to Forward, so Inverse(Forward(x))
// reproduces x. Up to workers goroutines process independent lines of each
// axis pass; each pass completes before the next begins.
func (t *Transformer) Inverse(h *grid.Half[complex128], workers int) []float64 {
	n := t.n
	xdim := n/2 + 1
	zdim := h.ZDim()
	work := h.Clone()

	// z pass.
	if t.dim == 3 {
		parallelLines(n*xdim, workers, func(start, end int) {
			cfft := fourier.NewCmplxFFT(n)
			line := make([]complex128, n)
			out := make([]complex128, n)
			for li := start; li < end; li++ {
				i, j := li/xdim, li%xdim
				for k := 0; k < n; k++ {
					line[k] = work.Data[work.Index(k, i, j)]
				}
				cfft.Sequence(out, line)
				for k := 0; k < n; k++ {
					work.Data[work.Index(k, i, j)] = out[k]
				}
			}
		})
	}

	// y pass.
	parallelLines(zdim*xdim, workers, func(start, end int) {
		cfft := fourier.NewCmplxFFT(n)
		line := make([]complex128, n)
		out := make([]complex128, n)
		for li := start; li < end; li++ {
			k, j := li/xdim, li%xdim
			for i := 0; i < n; i++ {
				line[i] = work.Data[work.Index(k, i, j)]
			}
			cfft.Sequence(out, line)
			for i := 0; i < n; i++ {
				work.Data[work.Index(k, i, j)] = out[i]
			}
		}
	})

	// x pass: half-complex rows back to real rows.
	out := make([]float64, total(n, t.dim))
	parallelLines(zdim*n, workers, func(start, end int) {
		rfft := fourier.NewFFT(n)
		coeff := make([]complex128, xdim)
		row := make([]float64, n)
		for li := start; li < end; li++ {
			k, i := li/n, li%n
			copy(coeff, work.Data[work.Index(k, i, 0):work.Index(k, i, 0)+xdim])
			rfft.Sequence(row, coeff)
			copy(out[(k*n+i)*n:(k*n+i)*n+n], row)
		}
	})

	return out
}

func total(n, dim int) int {
	if dim == 3 {
		return n * n * n
	}
	return n * n
}

// parallelLines splits [0, count) into contiguous ranges, one goroutine per
// range, and waits for all of them.
func parallelLines(count, workers int, fn func(start, end int)) {
	if workers <= 1 || count < 2 {
		fn(0, count)
		return
	}
	if workers > count {
		workers = count
	}
	per := (count + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * per
		end := start + per
		if end > count {
			end = count
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}
