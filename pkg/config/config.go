// Package config provides configuration loading and management for
// fourierslicesto3d. It handles loading configuration from YAML files and
// provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"fourierslicesto3d/pkg/backproject"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Reconstruction parameters
	Reconstruction struct {
		// OriSize is the unpadded output side length in pixels (even)
		OriSize int `yaml:"oriSize"`

		// RefDim is the dimensionality of the reconstructed object, 2 or 3
		RefDim int `yaml:"refDim"`

		// DataDim is the dimensionality of the input projections, 2 or 3
		DataDim int `yaml:"dataDim"`

		// PaddingFactor is the oversampling ratio of the working grid
		PaddingFactor int `yaml:"paddingFactor"`

		// Interpolator selects the scatter policy: nearest, trilinear or blob
		Interpolator string `yaml:"interpolator"`

		// RMinNN is the radius below which nearest-neighbour scatter is forced;
		// must be 0 when the interpolator is blob
		RMinNN int `yaml:"rMinNN"`

		// RMax caps the resolution radius in pixels; 0 selects oriSize/2
		RMax int `yaml:"rMax"`
	} `yaml:"reconstruction"`

	// Blob kernel parameters
	Blob struct {
		// Radius is the blob support radius in pixels
		Radius float64 `yaml:"radius"`

		// Alpha is the Kaiser-Bessel smoothness parameter
		Alpha float64 `yaml:"alpha"`

		// Order is the Bessel function order, 0 or 2
		Order int `yaml:"order"`
	} `yaml:"blob"`

	// Regularization parameters
	Regularization struct {
		// DoMAP enables Wiener-type regularization during reconstruction
		DoMAP bool `yaml:"doMAP"`

		// Tau2Fudge scales the signal-power spectrum
		Tau2Fudge float64 `yaml:"tau2Fudge"`

		// MaxIterPreweight is the number of gridding preweighting iterations
		MaxIterPreweight int `yaml:"maxIterPreweight"`

		// MinResMap is the lowest shell regularization applies to
		MinResMap int `yaml:"minResMap"`
	} `yaml:"regularization"`

	// Runtime parameters
	Runtime struct {
		// NumWorkers specifies how many CPU cores to use for parallel accumulation
		NumWorkers int `yaml:"numWorkers"`
	} `yaml:"runtime"`

	// Output parameters
	Output struct {
		// SaveSlices determines whether to save central-slice images of the result
		SaveSlices bool `yaml:"saveSlices"`

		// SliceDir is the directory for slice images
		SliceDir string `yaml:"sliceDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Reconstruction.OriSize = 64
	cfg.Reconstruction.RefDim = 3
	cfg.Reconstruction.DataDim = 2
	cfg.Reconstruction.PaddingFactor = 2
	cfg.Reconstruction.Interpolator = "trilinear"
	cfg.Reconstruction.RMinNN = 10
	cfg.Reconstruction.RMax = 0

	cfg.Blob.Radius = 1.9
	cfg.Blob.Alpha = 15
	cfg.Blob.Order = 0

	cfg.Regularization.DoMAP = false
	cfg.Regularization.Tau2Fudge = 1.0
	cfg.Regularization.MaxIterPreweight = 10
	cfg.Regularization.MinResMap = -1

	cfg.Runtime.NumWorkers = runtime.NumCPU() // Use all available cores by default

	cfg.Output.SaveSlices = true
	cfg.Output.SliceDir = "slices"
	cfg.Output.Verbose = true

	return cfg
}

// ToParams converts the reconstruction and blob sections into backprojection
// job parameters.
func (cfg *Config) ToParams() (backproject.Params, error) {
	var ip backproject.Interpolator
	switch cfg.Reconstruction.Interpolator {
	case "nearest":
		ip = backproject.NearestNeighbour
	case "trilinear", "":
		ip = backproject.Trilinear
	case "blob":
		ip = backproject.Blob
	default:
		return backproject.Params{}, fmt.Errorf("unknown interpolator %q", cfg.Reconstruction.Interpolator)
	}
	return backproject.Params{
		OriSize:       cfg.Reconstruction.OriSize,
		RefDim:        cfg.Reconstruction.RefDim,
		DataDim:       cfg.Reconstruction.DataDim,
		PaddingFactor: cfg.Reconstruction.PaddingFactor,
		Interpolator:  ip,
		RMinNN:        cfg.Reconstruction.RMinNN,
		RMax:          cfg.Reconstruction.RMax,
		BlobRadius:    cfg.Blob.Radius,
		BlobAlpha:     cfg.Blob.Alpha,
		BlobOrder:     cfg.Blob.Order,
	}, nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
