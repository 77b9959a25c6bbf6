package models

import (
	"gonum.org/v1/gonum/mat"
)

// Pose describes the estimated orientation of one projection image.
type Pose struct {
	// Rotation is the pose rotation matrix (3x3 for volume targets,
	// the upper-left 2x2 is used for planar targets).
	Rotation *mat.Dense

	// Invert indicates that Rotation is already the image-to-reference
	// mapping and is used as-is. Otherwise Rotation maps reference
	// coordinates to image coordinates and is transposed before use.
	Invert bool
}

// NewPose wraps a rotation matrix in a Pose with the given inversion flag.
func NewPose(r *mat.Dense, invert bool) Pose {
	return Pose{Rotation: r, Invert: invert}
}

// Volume is a real-space density map.
type Volume struct {
	// Data is the volume data as a 1D array in row-major order
	// (z slowest, x fastest for 3D; y slowest for 2D).
	Data []float64

	// N is the side length of the volume in voxels.
	N int

	// Dim is the dimensionality of the map, 2 or 3.
	Dim int
}

// NewVolume allocates a zeroed N^dim volume.
func NewVolume(n, dim int) *Volume {
	size := n * n
	if dim == 3 {
		size *= n
	}
	return &Volume{
		Data: make([]float64, size),
		N:    n,
		Dim:  dim,
	}
}

// At returns the voxel value at (z, y, x). For 2D volumes z must be 0.
func (v *Volume) At(z, y, x int) float64 {
	return v.Data[(z*v.N+y)*v.N+x]
}

// Set stores a voxel value at (z, y, x). For 2D volumes z must be 0.
func (v *Volume) Set(z, y, x int, val float64) {
	v.Data[(z*v.N+y)*v.N+x] = val
}
