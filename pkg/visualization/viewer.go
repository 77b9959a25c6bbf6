// Package visualization renders central slices of reconstructed density maps
// as grayscale images for quick visual inspection.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"

	"fourierslicesto3d/internal/models"
)

// Viewer extracts and saves 2D slices of a real-space density volume.
// Density values are mapped linearly from the volume's observed range onto
// the grayscale range, so maps of any scale render with full contrast.
type Viewer struct {
	vol *models.Volume

	// lo and hi are the density values mapped to black and white.
	lo, hi float64
}

// NewViewer creates a viewer for a reconstructed volume.
func NewViewer(vol *models.Volume) *Viewer {
	lo, hi := vol.Data[0], vol.Data[0]
	for _, d := range vol.Data {
		if d < lo {
			lo = d
		}
		if d > hi {
			hi = d
		}
	}
	return &Viewer{vol: vol, lo: lo, hi: hi}
}

func (v *Viewer) gray(d float64) color.Gray16 {
	if v.hi <= v.lo {
		return color.Gray16{}
	}
	t := (d - v.lo) / (v.hi - v.lo)
	return color.Gray16{Y: uint16(t * 65535)}
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis.
// For 2D volumes only the z axis at position 0 is valid.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	n := v.vol.N
	depth := 1
	if v.vol.Dim == 3 {
		depth = n
	}

	var img *image.Gray16

	switch axis {
	case "x", "X":
		// Slice along the YZ plane
		if position >= n {
			return nil, fmt.Errorf("position %d exceeds side length %d", position, n)
		}
		img = image.NewGray16(image.Rect(0, 0, depth, n))
		for y := 0; y < n; y++ {
			for z := 0; z < depth; z++ {
				img.SetGray16(z, y, v.gray(v.vol.At(z, y, position)))
			}
		}

	case "y", "Y":
		// Slice along the XZ plane
		if position >= n {
			return nil, fmt.Errorf("position %d exceeds side length %d", position, n)
		}
		img = image.NewGray16(image.Rect(0, 0, n, depth))
		for z := 0; z < depth; z++ {
			for x := 0; x < n; x++ {
				img.SetGray16(x, z, v.gray(v.vol.At(z, position, x)))
			}
		}

	case "z", "Z":
		// Slice along the XY plane
		if position >= depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, depth)
		}
		img = image.NewGray16(image.Rect(0, 0, n, n))
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				img.SetGray16(x, y, v.gray(v.vol.At(position, y, x)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveCentralSlices saves the three orthogonal central slices of the volume
// into outputDir.
func (v *Viewer) SaveCentralSlices(outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}
	center := v.vol.N / 2
	axes := []string{"x", "y", "z"}
	if v.vol.Dim == 2 {
		axes = []string{"z"}
	}
	for _, axis := range axes {
		pos := center
		if axis == "z" && v.vol.Dim == 2 {
			pos = 0
		}
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("central_%s.jpg", axis))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}
	return nil
}

// SaveSliceSequence extracts and saves a sequence of slices along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	maxPos := v.vol.N
	if (axis == "z" || axis == "Z") && v.vol.Dim == 2 {
		maxPos = 1
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
