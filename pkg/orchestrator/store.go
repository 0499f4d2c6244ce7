package orchestrator

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"tilestitch/internal/models"
	"tilestitch/pkg/labelio"
	"tilestitch/pkg/tiling"
)

// TileSource yields the labeled tiles of one image. An absent tile is
// reported with an error satisfying errors.Is(err, fs.ErrNotExist).
type TileSource interface {
	LoadTile(ctx context.Context, t tiling.Tile) (*models.LabelImage, error)
}

// StripStore persists what the passes produce. LoadRowStrip reports an
// absent strip with an error satisfying errors.Is(err, fs.ErrNotExist).
type StripStore interface {
	SaveRowStrip(ctx context.Context, y0 int, m *models.LabelImage) error
	LoadRowStrip(ctx context.Context, y0 int) (*models.LabelImage, error)
	SaveFinal(ctx context.Context, m *models.LabelImage) error
	SaveManifest(ctx context.Context, man *Manifest) error
}

// DirStore reads tiles and writes strips, the final map and the manifest
// under a Layout. It serves as both TileSource and StripStore.
type DirStore struct {
	Layout Layout

	// ExportTIFF also writes the final map as a 16-bit TIFF when its ids fit
	ExportTIFF bool

	Logger *log.Logger
}

// NewDirStore returns a store rooted at layout.
func NewDirStore(layout Layout, exportTIFF bool, logger *log.Logger) *DirStore {
	if logger == nil {
		logger = log.Default()
	}
	return &DirStore{Layout: layout, ExportTIFF: exportTIFF, Logger: logger}
}

func (d *DirStore) LoadTile(ctx context.Context, t tiling.Tile) (*models.LabelImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return labelio.Read(d.Layout.TilePath(t))
}

func (d *DirStore) SaveRowStrip(ctx context.Context, y0 int, m *models.LabelImage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return labelio.Write(d.Layout.RowStripPath(y0), m)
}

func (d *DirStore) LoadRowStrip(ctx context.Context, y0 int) (*models.LabelImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return labelio.Read(d.Layout.RowStripPath(y0))
}

func (d *DirStore) SaveFinal(ctx context.Context, m *models.LabelImage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := labelio.Write(d.Layout.FinalPath(), m); err != nil {
		return err
	}
	if !d.ExportTIFF {
		return nil
	}
	if hi := m.Max(); hi > math.MaxUint16 {
		d.Logger.Warn("skipping TIFF export, ids exceed 16 bits", "maxID", hi, "path", d.Layout.ExportPath())
		return nil
	}
	return labelio.Write(d.Layout.ExportPath(), m)
}

func (d *DirStore) SaveManifest(ctx context.Context, man *Manifest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := yaml.Marshal(man)
	if err != nil {
		return fmt.Errorf("error marshaling manifest: %w", err)
	}
	path := d.Layout.ManifestPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing manifest: %w", err)
	}
	return nil
}
