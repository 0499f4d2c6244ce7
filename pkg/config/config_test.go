package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	stitcherr "tilestitch/pkg/errors"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 50, cfg.Stitch.HoleFillMinPixels)
	require.Equal(t, "S1_whole-cell_DAPI_ECad_200_100", cfg.Labeler.Basename("S1"))
}

func TestTilingValidate(t *testing.T) {
	cases := []struct {
		name   string
		tiling Tiling
		ok     bool
	}{
		{"default", Tiling{4000, 4000, 100, 100}, true},
		{"zero pad", Tiling{100, 100, 0, 0}, true},
		{"pad fills tile", Tiling{100, 100, 50, 10}, false},
		{"pad exceeds tile", Tiling{100, 100, 10, 60}, false},
		{"zero width", Tiling{0, 100, 0, 0}, false},
		{"negative pad", Tiling{100, 100, -1, 0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.tiling.Validate()
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.True(t, stitcherr.Is(err, stitcherr.ErrCodeConfiguration))
		})
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().Tiling, cfg.Tiling)
}

func TestLoadConfigYAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tilestitch.yaml")
	cfg := DefaultConfig()
	cfg.Tiling = Tiling{TileWidth: 512, TileHeight: 256, PadX: 16, PadY: 8}
	cfg.Stitch.HoleFillMinPixels = 20
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Tiling, loaded.Tiling)
	require.Equal(t, 20, loaded.Stitch.HoleFillMinPixels)
}

func TestLoadConfigTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tilestitch.toml")
	doc := `
[tiling]
tileWidth = 300
tileHeight = 200
padX = 10
padY = 5

[stitch]
holeFillMinPixels = 12
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, Tiling{TileWidth: 300, TileHeight: 200, PadX: 10, PadY: 5}, cfg.Tiling)
	require.Equal(t, 12, cfg.Stitch.HoleFillMinPixels)
	// untouched sections keep their defaults
	require.Equal(t, "DAPI", cfg.Labeler.NucleusChannel)
}

func TestValidateRejectsZeroHoleThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Stitch.HoleFillMinPixels = 0
	err := cfg.Validate()
	require.Error(t, err)
	require.Equal(t, stitcherr.ErrCodeConfiguration, stitcherr.CodeOf(err))
}

func TestValidateLeavesWorkersAlone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Stitch.NumWorkers = 0
	require.NoError(t, cfg.Validate())
	require.Equal(t, 0, cfg.Stitch.NumWorkers)
	require.Equal(t, 1, cfg.Workers())

	cfg.Stitch.NumWorkers = 6
	require.Equal(t, 6, cfg.Workers())
}

func TestSaveConfigTOMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tilestitch.toml")
	cfg := DefaultConfig()
	cfg.Tiling.PadY = 64
	cfg.Labeler.TileExt = ".lbl"
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}
