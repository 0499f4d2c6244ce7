// Package config provides configuration loading and management for tilestitch.
// It handles loading configuration from YAML or TOML files and provides default values.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	stitcherr "tilestitch/pkg/errors"
)

// Tiling holds the grid geometry shared by the tiling step and the stitcher.
type Tiling struct {
	// TileWidth is the unpadded width of one tile in pixels
	TileWidth int `yaml:"tileWidth" toml:"tileWidth"`

	// TileHeight is the unpadded height of one tile in pixels
	TileHeight int `yaml:"tileHeight" toml:"tileHeight"`

	// PadX is the number of pixels each tile extends left and right of its cell
	PadX int `yaml:"padX" toml:"padX"`

	// PadY is the number of pixels each tile extends above and below its cell
	PadY int `yaml:"padY" toml:"padY"`
}

// Validate checks that some interior remains in every tile once padding is
// removed from both sides.
func (t Tiling) Validate() error {
	if t.TileWidth <= 0 || t.TileHeight <= 0 {
		return stitcherr.Configuration("tile size must be positive, got %dx%d", t.TileWidth, t.TileHeight)
	}
	if t.PadX < 0 || t.PadY < 0 {
		return stitcherr.Configuration("padding must not be negative, got x=%d y=%d", t.PadX, t.PadY)
	}
	if t.TileWidth <= 2*t.PadX {
		return stitcherr.Configuration("tile width %d leaves no interior with padding %d", t.TileWidth, t.PadX)
	}
	if t.TileHeight <= 2*t.PadY {
		return stitcherr.Configuration("tile height %d leaves no interior with padding %d", t.TileHeight, t.PadY)
	}
	return nil
}

// Labeler describes the external per-tile labeling run. Its values only
// feed the basename under which the labeler wrote its tiles.
type Labeler struct {
	Compartment       string  `yaml:"compartment" toml:"compartment"`
	NucleusChannel    string  `yaml:"nucleusChannel" toml:"nucleusChannel"`
	MembraneChannel   string  `yaml:"membraneChannel" toml:"membraneChannel"`
	InteriorThreshold float64 `yaml:"interiorThreshold" toml:"interiorThreshold"`
	MaximaThreshold   float64 `yaml:"maximaThreshold" toml:"maximaThreshold"`

	// TileExt is the extension of the labeler's output tiles (.tif, .png or .lbl)
	TileExt string `yaml:"tileExt" toml:"tileExt"`
}

// Basename returns the stem shared by every tile, strip and final map of
// one labeled image, e.g. "S1_whole-cell_DAPI_ECad_200_100".
func (l Labeler) Basename(name string) string {
	return fmt.Sprintf("%s_%s_%s_%s_%d_%d", name, l.Compartment, l.NucleusChannel, l.MembraneChannel,
		int(l.InteriorThreshold*1000), int(l.MaximaThreshold*1000))
}

// Config represents the application configuration loaded from YAML or TOML
type Config struct {
	Tiling Tiling `yaml:"tiling" toml:"tiling"`

	// Stitching parameters
	Stitch struct {
		// HoleFillMinPixels is the smallest seam fragment that is kept as a new object
		HoleFillMinPixels int `yaml:"holeFillMinPixels" toml:"holeFillMinPixels"`

		// NumWorkers bounds how many rows or seams are processed at once;
		// values below 1 mean 1
		NumWorkers int `yaml:"numWorkers" toml:"numWorkers"`
	} `yaml:"stitch" toml:"stitch"`

	Labeler Labeler `yaml:"labeler" toml:"labeler"`

	// Directory roots; every stage nests <folder>/<name> below its root
	Paths struct {
		Unstacked        string `yaml:"unstacked" toml:"unstacked"`
		TiledForLabeling string `yaml:"tiledForLabeling" toml:"tiledForLabeling"`
		LabelledTiles    string `yaml:"labelledTiles" toml:"labelledTiles"`
		RowStrips        string `yaml:"rowStrips" toml:"rowStrips"`
		Labelled         string `yaml:"labelled" toml:"labelled"`
	} `yaml:"paths" toml:"paths"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose" toml:"verbose"`

		// ExportTIFF also writes the final map as a 16-bit TIFF when it fits
		ExportTIFF bool `yaml:"exportTIFF" toml:"exportTIFF"`
	} `yaml:"output" toml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Tiling = Tiling{TileWidth: 4000, TileHeight: 4000, PadX: 100, PadY: 100}

	cfg.Stitch.HoleFillMinPixels = 50
	cfg.Stitch.NumWorkers = runtime.NumCPU()

	cfg.Labeler = Labeler{
		Compartment:       "whole-cell",
		NucleusChannel:    "DAPI",
		MembraneChannel:   "ECad",
		InteriorThreshold: 0.2,
		MaximaThreshold:   0.1,
		TileExt:           ".tif",
	}

	cfg.Paths.Unstacked = "unstacked"
	cfg.Paths.TiledForLabeling = "tiled_for_labeling"
	cfg.Paths.LabelledTiles = "labelled_tiles"
	cfg.Paths.RowStrips = "labelled_tiles_x_stitched"
	cfg.Paths.Labelled = "labelled"

	cfg.Output.Verbose = false
	cfg.Output.ExportTIFF = false

	return cfg
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := c.Tiling.Validate(); err != nil {
		return err
	}
	if c.Stitch.HoleFillMinPixels < 1 {
		return stitcherr.Configuration("holeFillMinPixels must be at least 1, got %d", c.Stitch.HoleFillMinPixels)
	}
	return nil
}

// Workers returns Stitch.NumWorkers, or 1 when it is not positive.
func (c *Config) Workers() int {
	return max(1, c.Stitch.NumWorkers)
}

// LoadConfig loads configuration from a YAML or TOML file, picked by extension.
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	return cfg, nil
}

// SaveConfig saves the configuration as TOML when the path ends in .toml,
// as YAML otherwise
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	var data []byte
	var err error
	if strings.ToLower(filepath.Ext(configPath)) == ".toml" {
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(cfg)
		data = buf.Bytes()
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

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
