package visualization

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"fourierslicesto3d/internal/models"
)

func gradientVolume(n int) *models.Volume {
	vol := models.NewVolume(n, 3)
	for z := 0; z < n; z++ {
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				vol.Set(z, y, x, float64(x+y+z))
			}
		}
	}
	return vol
}

func TestExtractSliceDimensions(t *testing.T) {
	v := NewViewer(gradientVolume(8))

	for _, axis := range []string{"x", "y", "z"} {
		img, err := v.ExtractSlice(axis, 4)
		if err != nil {
			t.Fatalf("ExtractSlice(%s) failed: %v", axis, err)
		}
		b := img.Bounds()
		if b.Dx() != 8 || b.Dy() != 8 {
			t.Errorf("axis %s: slice is %dx%d, want 8x8", axis, b.Dx(), b.Dy())
		}
	}
}

func TestExtractSliceScaling(t *testing.T) {
	// Densities far outside [0,1] must still span the gray range.
	vol := models.NewVolume(4, 3)
	for i := range vol.Data {
		vol.Data[i] = -500
	}
	vol.Set(2, 1, 1, 500)
	v := NewViewer(vol)

	img, err := v.ExtractSlice("z", 2)
	if err != nil {
		t.Fatalf("ExtractSlice failed: %v", err)
	}
	bright := color.Gray16Model.Convert(img.At(1, 1)).(color.Gray16)
	dark := color.Gray16Model.Convert(img.At(0, 0)).(color.Gray16)
	if bright.Y != 65535 {
		t.Errorf("maximum density rendered as %d, want 65535", bright.Y)
	}
	if dark.Y != 0 {
		t.Errorf("minimum density rendered as %d, want 0", dark.Y)
	}
}

func TestExtractSliceConstantVolume(t *testing.T) {
	vol := models.NewVolume(4, 3)
	v := NewViewer(vol)
	img, err := v.ExtractSlice("z", 0)
	if err != nil {
		t.Fatalf("ExtractSlice failed: %v", err)
	}
	got := color.Gray16Model.Convert(img.At(0, 0)).(color.Gray16)
	if got.Y != 0 {
		t.Errorf("constant volume rendered as %d, want 0", got.Y)
	}
}

func TestExtractSliceErrors(t *testing.T) {
	v := NewViewer(gradientVolume(8))

	if _, err := v.ExtractSlice("w", 0); err == nil {
		t.Error("invalid axis should fail")
	}
	if _, err := v.ExtractSlice("x", -1); err == nil {
		t.Error("negative position should fail")
	}
	if _, err := v.ExtractSlice("x", 8); err == nil {
		t.Error("out-of-range position should fail")
	}
}

func TestSaveCentralSlices(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "slices")
	v := NewViewer(gradientVolume(8))

	if err := v.SaveCentralSlices(dir); err != nil {
		t.Fatalf("SaveCentralSlices failed: %v", err)
	}
	for _, axis := range []string{"x", "y", "z"} {
		path := filepath.Join(dir, "central_"+axis+".jpg")
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("missing slice image %s: %v", path, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("slice image %s is empty", path)
		}
	}
}

func TestSaveSliceSequence(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "seq")
	v := NewViewer(gradientVolume(4))

	if err := v.SaveSliceSequence("z", dir); err != nil {
		t.Fatalf("SaveSliceSequence failed: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		t.Errorf("saved %d slices, want 4", len(entries))
	}
}
