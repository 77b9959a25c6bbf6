// Package grid provides the frequency-domain accumulator buffers used by the
// backprojection core: centered, Hermitian half-stored arrays for the padded
// accumulation grid, and transform-ordered half arrays for the Fourier
// transform service. Both are owned, explicitly cloneable buffer types with
// contiguous storage plus shape metadata; duplication is always a deep copy.
package grid

import (
	"fmt"
)

// Element is the set of sample types a frequency grid can hold.
type Element interface {
	~float32 | ~float64 | ~complex64 | ~complex128
}

// Array is a centered, Hermitian half-stored frequency grid of odd logical
// side length Pad. The stored hemisphere covers x in [0, Pad/2]; y and z run
// over centered logical indices [-Pad/2, Pad/2]. For 2D grids ZDim is 1 and
// the z index is always 0.
type Array[T Element] struct {
	Data []T

	Pad  int
	Dim  int
	XDim int
	YDim int
	ZDim int

	// YInit and ZInit are the logical indices of stored row/plane 0.
	YInit int
	ZInit int
}

// NewCentered allocates a zeroed centered grid with odd logical side pad.
func NewCentered[T Element](pad, dim int) *Array[T] {
	half := pad / 2
	a := &Array[T]{
		Pad:   pad,
		Dim:   dim,
		XDim:  half + 1,
		YDim:  pad,
		YInit: -half,
		ZDim:  1,
		ZInit: 0,
	}
	if dim == 3 {
		a.ZDim = pad
		a.ZInit = -half
	}
	a.Data = make([]T, a.XDim*a.YDim*a.ZDim)
	return a
}

func (a *Array[T]) index(k, i, j int) int {
	return ((k-a.ZInit)*a.YDim+(i-a.YInit))*a.XDim + j
}

// Contains reports whether logical coordinate (k, i, j) lies in the stored
// hemisphere.
func (a *Array[T]) Contains(k, i, j int) bool {
	return j >= 0 && j < a.XDim &&
		i >= a.YInit && i < a.YInit+a.YDim &&
		k >= a.ZInit && k < a.ZInit+a.ZDim
}

// At returns the sample at logical coordinate (k, i, j), j >= 0.
func (a *Array[T]) At(k, i, j int) T {
	return a.Data[a.index(k, i, j)]
}

// Set stores a sample at logical coordinate (k, i, j).
func (a *Array[T]) Set(k, i, j int, v T) {
	a.Data[a.index(k, i, j)] = v
}

// Add accumulates v into the sample at logical coordinate (k, i, j).
func (a *Array[T]) Add(k, i, j int, v T) {
	a.Data[a.index(k, i, j)] += v
}

// Zero resets every sample.
func (a *Array[T]) Zero() {
	clear(a.Data)
}

// Clone returns an independent deep copy.
func (a *Array[T]) Clone() *Array[T] {
	b := *a
	b.Data = make([]T, len(a.Data))
	copy(b.Data, a.Data)
	return &b
}

// SameShape reports whether b has identical dimensions and offsets.
func (a *Array[T]) SameShape(b *Array[T]) bool {
	return a.Pad == b.Pad && a.Dim == b.Dim &&
		a.XDim == b.XDim && a.YDim == b.YDim && a.ZDim == b.ZDim &&
		a.YInit == b.YInit && a.ZInit == b.ZInit
}

// AddFrom accumulates b into a voxel by voxel. Summation is associative and
// commutative, so merging worker-private accumulators in any order yields
// identical results.
func (a *Array[T]) AddFrom(b *Array[T]) error {
	if !a.SameShape(b) {
		return fmt.Errorf("grid: shape mismatch in merge: pad %d/%d dim %d/%d",
			a.Pad, b.Pad, a.Dim, b.Dim)
	}
	for idx, v := range b.Data {
		a.Data[idx] += v
	}
	return nil
}

// Half is a transform-ordered, Hermitian half-stored frequency grid of
// logical side length N. Stored x indices are the non-negative logical
// frequencies [0, N/2]; stored y and z indices wrap, with index i holding
// logical frequency i for i <= N/2 and i-N otherwise. For 2D grids the z
// extent is 1.
type Half[T Element] struct {
	Data []T
	N    int
	Dim  int
}

// NewHalf allocates a zeroed transform-ordered half grid.
func NewHalf[T Element](n, dim int) *Half[T] {
	size := n * (n/2 + 1)
	if dim == 3 {
		size *= n
	}
	return &Half[T]{
		Data: make([]T, size),
		N:    n,
		Dim:  dim,
	}
}

// XDim returns the stored extent along x.
func (h *Half[T]) XDim() int { return h.N/2 + 1 }

// ZDim returns the stored extent along z (1 for 2D grids).
func (h *Half[T]) ZDim() int {
	if h.Dim == 3 {
		return h.N
	}
	return 1
}

// Index returns the flat offset of storage coordinate (k, i, j).
func (h *Half[T]) Index(k, i, j int) int {
	return (k*h.N+i)*h.XDim() + j
}

// Freq maps a stored y or z index to its logical frequency.
func (h *Half[T]) Freq(i int) int {
	if i <= h.N/2 {
		return i
	}
	return i - h.N
}

// Zero resets every sample.
func (h *Half[T]) Zero() {
	clear(h.Data)
}

// Clone returns an independent deep copy.
func (h *Half[T]) Clone() *Half[T] {
	b := *h
	b.Data = make([]T, len(h.Data))
	copy(b.Data, h.Data)
	return &b
}

// Decenter copies a centered grid into a transform-ordered half grid,
// converting element types through conv. Every destination sample whose
// squared logical radius exceeds rmax2 is zeroed; every sample within the
// cutoff is copied exactly (modulo the declared conversion). This one generic
// routine covers all precision pairings.
func Decenter[S, D Element](src *Array[S], dst *Half[D], rmax2 int, conv func(S) D) {
	dst.Zero()
	xdim := dst.XDim()
	for k := 0; k < dst.ZDim(); k++ {
		kp := 0
		if dst.Dim == 3 {
			kp = dst.Freq(k)
		}
		for i := 0; i < dst.N; i++ {
			ip := dst.Freq(i)
			for j := 0; j < xdim; j++ {
				if kp*kp+ip*ip+j*j > rmax2 {
					continue
				}
				if !src.Contains(kp, ip, j) {
					continue
				}
				dst.Data[dst.Index(k, i, j)] = conv(src.At(kp, ip, j))
			}
		}
	}
}

// WindowHalf resizes a transform-ordered half grid to logical side n2,
// cropping or zero-padding in the frequency domain. Logical frequencies
// representable in both grids are copied exactly.
func WindowHalf(src *Half[complex128], n2 int) *Half[complex128] {
	dst := NewHalf[complex128](n2, src.Dim)
	xdim := dst.XDim()
	// Most negative and most positive logical frequencies held by src.
	srcNeg := -((src.N - 1) / 2)
	srcPos := src.N / 2
	for k := 0; k < dst.ZDim(); k++ {
		kp := 0
		if dst.Dim == 3 {
			kp = dst.Freq(k)
			if kp < srcNeg || kp > srcPos {
				continue
			}
		}
		for i := 0; i < dst.N; i++ {
			ip := dst.Freq(i)
			if ip < srcNeg || ip > srcPos {
				continue
			}
			for j := 0; j < xdim; j++ {
				if j > srcPos {
					continue
				}
				ks, is := kp, ip
				if ks < 0 {
					ks += src.N
				}
				if is < 0 {
					is += src.N
				}
				dst.Data[dst.Index(k, i, j)] = src.Data[src.Index(ks, is, j)]
			}
		}
	}
	return dst
}
