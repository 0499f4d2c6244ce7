package orchestrator

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"tilestitch/internal/models"
	"tilestitch/pkg/config"
	stitcherr "tilestitch/pkg/errors"
	"tilestitch/pkg/labelio"
	"tilestitch/pkg/tiling"
)

const (
	testWidth  = 100
	testHeight = 90
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Tiling = config.Tiling{TileWidth: 40, TileHeight: 30, PadX: 5, PadY: 4}
	cfg.Stitch.NumWorkers = 4
	cfg.Labeler.TileExt = ".lbl"
	cfg.Paths.Unstacked = filepath.Join(root, "unstacked")
	cfg.Paths.TiledForLabeling = filepath.Join(root, "tiled")
	cfg.Paths.LabelledTiles = filepath.Join(root, "tiles")
	cfg.Paths.RowStrips = filepath.Join(root, "strips")
	cfg.Paths.Labelled = filepath.Join(root, "labelled")
	return cfg
}

func quietLogger() *log.Logger { return log.New(io.Discard) }

func fill(m *models.LabelImage, id uint32, in func(x, y int) bool) {
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if in(x, y) {
				m.Set(x, y, id)
			}
		}
	}
}

// groundTruth has objects in cores, across X seams, across Y seams, across
// a seam crossing, and inside one half of a seam.
func groundTruth() *models.LabelImage {
	m := models.NewLabelImage(testWidth, testHeight)
	disk := func(cx, cy, r int) func(x, y int) bool {
		return func(x, y int) bool { return (x-cx)*(x-cx)+(y-cy)*(y-cy) <= r*r }
	}
	rect := func(x0, y0, x1, y1 int) func(x, y int) bool {
		return func(x, y int) bool { return x >= x0 && x < x1 && y >= y0 && y < y1 }
	}
	fill(m, 1, disk(40, 30, 8))
	fill(m, 2, rect(10, 5, 20, 15))
	fill(m, 3, disk(80, 62, 6))
	fill(m, 4, rect(2, 45, 98, 49))
	fill(m, 5, rect(42, 10, 45, 20))
	return m
}

func writeTiles(t *testing.T, layout Layout, plan *tiling.Plan, truth *models.LabelImage) {
	t.Helper()
	for _, tile := range plan.Tiles() {
		crop, err := truth.Crop(tile.Box)
		require.NoError(t, err)
		require.NoError(t, labelio.Write(layout.TilePath(tile), crop))
	}
}

func samePartition(a, b *models.LabelImage) bool {
	if a.Width != b.Width || a.Height != b.Height {
		return false
	}
	fwd := map[uint32]uint32{}
	back := map[uint32]uint32{}
	for i := range a.Pix {
		x, y := a.Pix[i], b.Pix[i]
		if (x == 0) != (y == 0) {
			return false
		}
		if x == 0 {
			continue
		}
		if v, ok := fwd[x]; ok && v != y {
			return false
		}
		if v, ok := back[y]; ok && v != x {
			return false
		}
		fwd[x], back[y] = y, x
	}
	return true
}

func setup(t *testing.T, cfg *config.Config) (*Orchestrator, Layout) {
	t.Helper()
	layout := NewLayout(cfg, "run1", "S1")
	store := NewDirStore(layout, cfg.Output.ExportTIFF, quietLogger())
	o, err := New(cfg, testWidth, testHeight, store, store, quietLogger())
	require.NoError(t, err)
	return o, layout
}

func TestRunStitchesWholeImage(t *testing.T) {
	cfg := testConfig(t)
	o, layout := setup(t, cfg)
	require.Equal(t, 3, o.Plan().Rows())
	require.Equal(t, 3, o.Plan().Cols())

	truth := groundTruth()
	writeTiles(t, layout, o.Plan(), truth)

	man, err := o.Run(context.Background())
	require.NoError(t, err)

	final, err := labelio.Read(layout.FinalPath())
	require.NoError(t, err)
	require.Equal(t, testWidth, final.Width)
	require.Equal(t, testHeight, final.Height)
	require.True(t, samePartition(truth, final))

	for _, span := range o.Plan().Y.Spans {
		strip, err := labelio.Read(layout.RowStripPath(span.Start))
		require.NoError(t, err)
		require.Equal(t, testWidth, strip.Width)
		require.Equal(t, span.Len(), strip.Height)
	}

	require.NotEmpty(t, man.RunID)
	require.NotNil(t, man.PassX)
	require.Equal(t, 0, man.Discarded)
	require.Equal(t, final.Max(), man.MaxID)

	saved, err := LoadManifest(layout.ManifestPath())
	require.NoError(t, err)
	require.Equal(t, man.RunID, saved.RunID)
	require.Equal(t, cfg.Tiling, saved.Tiling)
	require.Equal(t, 3, saved.Rows)
}

func TestRunYResumesFromRowStrips(t *testing.T) {
	cfg := testConfig(t)
	o, layout := setup(t, cfg)
	truth := groundTruth()
	writeTiles(t, layout, o.Plan(), truth)

	_, err := o.PassX(context.Background())
	require.NoError(t, err)
	_, err = os.Stat(layout.FinalPath())
	require.True(t, os.IsNotExist(err))

	man, err := o.RunY(context.Background())
	require.NoError(t, err)
	require.Nil(t, man.PassX)

	final, err := labelio.Read(layout.FinalPath())
	require.NoError(t, err)
	require.True(t, samePartition(truth, final))
}

func TestMissingTileFailsRun(t *testing.T) {
	cfg := testConfig(t)
	o, layout := setup(t, cfg)
	writeTiles(t, layout, o.Plan(), groundTruth())
	require.NoError(t, os.Remove(layout.TilePath(o.Plan().Tile(1, 2))))

	_, err := o.Run(context.Background())
	require.Error(t, err)
	require.True(t, stitcherr.Is(err, stitcherr.ErrCodeMissingTile), "got %v", err)

	_, err = os.Stat(layout.RowStripPath(o.Plan().Y.Spans[1].Start))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(layout.FinalPath())
	require.True(t, os.IsNotExist(err))
}

func TestMissingRowStrip(t *testing.T) {
	cfg := testConfig(t)
	o, layout := setup(t, cfg)

	_, err := o.RunY(context.Background())
	require.True(t, stitcherr.Is(err, stitcherr.ErrCodeMissingRowStrip), "got %v", err)
	_, err = os.Stat(layout.FinalPath())
	require.True(t, os.IsNotExist(err))
}

func TestWrongTileShape(t *testing.T) {
	cfg := testConfig(t)
	o, layout := setup(t, cfg)
	writeTiles(t, layout, o.Plan(), groundTruth())
	require.NoError(t, labelio.Write(layout.TilePath(o.Plan().Tile(0, 0)), models.NewLabelImage(44, 34)))

	_, err := o.Run(context.Background())
	require.True(t, stitcherr.Is(err, stitcherr.ErrCodeGeometryMismatch), "got %v", err)
}

func TestNewRejectsBadTiling(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tiling.PadX = 20

	_, err := New(cfg, testWidth, testHeight, nil, nil, quietLogger())
	require.True(t, stitcherr.Is(err, stitcherr.ErrCodeConfiguration))

	cfg = testConfig(t)
	_, err = New(cfg, 0, testHeight, nil, nil, quietLogger())
	require.True(t, stitcherr.Is(err, stitcherr.ErrCodeConfiguration))
}

func TestExportTIFF(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.ExportTIFF = true
	o, layout := setup(t, cfg)
	truth := groundTruth()
	writeTiles(t, layout, o.Plan(), truth)

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	exported, err := labelio.Read(layout.ExportPath())
	require.NoError(t, err)
	require.True(t, samePartition(truth, exported))
}

func TestReferenceDimensions(t *testing.T) {
	cfg := testConfig(t)
	layout := NewLayout(cfg, "run1", "S1")

	_, _, err := layout.ReferenceDimensions()
	require.True(t, stitcherr.Is(err, stitcherr.ErrCodeConfiguration))

	require.NoError(t, labelio.Write(layout.ReferencePath(), models.NewLabelImage(testWidth, testHeight)))
	w, h, err := layout.ReferenceDimensions()
	require.NoError(t, err)
	require.Equal(t, testWidth, w)
	require.Equal(t, testHeight, h)
}

func TestLayoutNaming(t *testing.T) {
	cfg := config.DefaultConfig()
	layout := NewLayout(cfg, "batch", "S1")
	tile := tiling.Tile{Box: models.Box{X0: 3900, Y0: 7900, X1: 8100, Y1: 12100}}

	base := "S1_whole-cell_DAPI_ECad_200_100"
	require.Equal(t, base, layout.Base())
	require.Equal(t, filepath.Join("unstacked", "batch", "S1_DAPI.tif"), layout.ReferencePath())
	require.Equal(t, filepath.Join("tiled_for_labeling", "batch", "S1_ECad", "S1_ECad_3900_7900.tif"),
		layout.ChannelTilePath("ECad", tile))
	require.Equal(t, filepath.Join("labelled_tiles", "batch", "S1", base, base+"_3900_7900.tif"), layout.TilePath(tile))
	require.Equal(t, filepath.Join("labelled_tiles_x_stitched", "batch", "S1", base, base+"_7900.lbl"),
		layout.RowStripPath(7900))
	require.Equal(t, filepath.Join("labelled", "batch", "S1", base+".lbl"), layout.FinalPath())
	require.Equal(t, filepath.Join("labelled", "batch", "S1", base+".manifest.yaml"), layout.ManifestPath())
}
