package config

import (
	"os"
	"path/filepath"
	"testing"

	"fourierslicesto3d/pkg/backproject"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Reconstruction.OriSize != 64 {
		t.Errorf("default oriSize = %d, want 64", cfg.Reconstruction.OriSize)
	}
	if cfg.Reconstruction.PaddingFactor != 2 {
		t.Errorf("default paddingFactor = %d, want 2", cfg.Reconstruction.PaddingFactor)
	}
	if cfg.Runtime.NumWorkers < 1 {
		t.Error("default worker count should be at least 1")
	}

	params, err := cfg.ToParams()
	if err != nil {
		t.Fatalf("default config should convert: %v", err)
	}
	if params.Interpolator != backproject.Trilinear {
		t.Errorf("default interpolator = %v, want trilinear", params.Interpolator)
	}
	if _, err := backproject.New(params, nil); err != nil {
		t.Errorf("default params should build a job: %v", err)
	}
}

func TestToParamsInterpolator(t *testing.T) {
	cfg := DefaultConfig()

	for name, want := range map[string]backproject.Interpolator{
		"nearest":   backproject.NearestNeighbour,
		"trilinear": backproject.Trilinear,
		"blob":      backproject.Blob,
		"":          backproject.Trilinear,
	} {
		cfg.Reconstruction.Interpolator = name
		params, err := cfg.ToParams()
		if err != nil {
			t.Errorf("interpolator %q: %v", name, err)
			continue
		}
		if params.Interpolator != want {
			t.Errorf("interpolator %q mapped to %v, want %v", name, params.Interpolator, want)
		}
	}

	cfg.Reconstruction.Interpolator = "cubic"
	if _, err := cfg.ToParams(); err == nil {
		t.Error("unknown interpolator should fail")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Reconstruction.OriSize = 128
	cfg.Reconstruction.Interpolator = "blob"
	cfg.Regularization.DoMAP = true
	cfg.Output.SliceDir = "out"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Reconstruction.OriSize != 128 {
		t.Errorf("loaded oriSize = %d, want 128", loaded.Reconstruction.OriSize)
	}
	if loaded.Reconstruction.Interpolator != "blob" {
		t.Errorf("loaded interpolator = %q, want blob", loaded.Reconstruction.Interpolator)
	}
	if !loaded.Regularization.DoMAP {
		t.Error("loaded doMAP = false, want true")
	}
	if loaded.Output.SliceDir != "out" {
		t.Errorf("loaded sliceDir = %q, want out", loaded.Output.SliceDir)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig on missing file failed: %v", err)
	}
	if cfg.Reconstruction.OriSize != DefaultConfig().Reconstruction.OriSize {
		t.Error("missing file should yield defaults")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("reconstruction: ["), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("invalid YAML should fail")
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("CreateDefaultConfigFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not written: %v", err)
	}
}
