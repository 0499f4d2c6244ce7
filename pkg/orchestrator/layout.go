package orchestrator

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"tilestitch/pkg/config"
	stitcherr "tilestitch/pkg/errors"
	"tilestitch/pkg/labelio"
	"tilestitch/pkg/tiling"
)

// Layout maps one image's inputs and stitching products onto the directory
// tree. Every stage nests <folder>/<name> below its configured root.
type Layout struct {
	cfg    *config.Config
	Folder string
	Name   string
}

// NewLayout returns the layout of image name in folder.
func NewLayout(cfg *config.Config, folder, name string) Layout {
	return Layout{cfg: cfg, Folder: folder, Name: name}
}

// Base is the stem shared by the labeled tiles, row strips and final map.
func (l Layout) Base() string {
	return l.cfg.Labeler.Basename(l.Name)
}

// ChannelPath is the untiled single-channel image of one marker.
func (l Layout) ChannelPath(channel string) string {
	return filepath.Join(l.cfg.Paths.Unstacked, l.Folder, fmt.Sprintf("%s_%s.tif", l.Name, channel))
}

// ReferencePath is the channel image the full dimensions are read from.
func (l Layout) ReferencePath() string {
	return l.ChannelPath(l.cfg.Labeler.NucleusChannel)
}

// ChannelTilePath is where the tiling step writes tile t of one marker,
// ready for the external labeler.
func (l Layout) ChannelTilePath(channel string, t tiling.Tile) string {
	stem := fmt.Sprintf("%s_%s", l.Name, channel)
	return filepath.Join(l.cfg.Paths.TiledForLabeling, l.Folder, stem,
		fmt.Sprintf("%s_%d_%d.tif", stem, t.X0(), t.Y0()))
}

// TilePath is the labeled tile the external labeler produced for t.
func (l Layout) TilePath(t tiling.Tile) string {
	base := l.Base()
	ext := l.cfg.Labeler.TileExt
	if ext == "" {
		ext = labelio.FormatTIFF.Ext()
	}
	return filepath.Join(l.cfg.Paths.LabelledTiles, l.Folder, l.Name, base,
		fmt.Sprintf("%s_%d_%d%s", base, t.X0(), t.Y0(), ext))
}

// RowStripPath is the pass X output for the row of tiles starting at y0.
func (l Layout) RowStripPath(y0 int) string {
	base := l.Base()
	return filepath.Join(l.cfg.Paths.RowStrips, l.Folder, l.Name, base,
		fmt.Sprintf("%s_%d%s", base, y0, labelio.FormatLBL.Ext()))
}

// FinalPath is the whole-image label map.
func (l Layout) FinalPath() string {
	return filepath.Join(l.cfg.Paths.Labelled, l.Folder, l.Name, l.Base()+labelio.FormatLBL.Ext())
}

// ExportPath is the 16-bit TIFF copy of the final map.
func (l Layout) ExportPath() string {
	return filepath.Join(l.cfg.Paths.Labelled, l.Folder, l.Name, l.Base()+labelio.FormatTIFF.Ext())
}

// ManifestPath is the run summary written next to the final map.
func (l Layout) ManifestPath() string {
	return filepath.Join(l.cfg.Paths.Labelled, l.Folder, l.Name, l.Base()+".manifest.yaml")
}

// ReferenceDimensions reads the full image size from the reference channel
// header.
func (l Layout) ReferenceDimensions() (width, height int, err error) {
	path := l.ReferencePath()
	width, height, err = labelio.ReadDimensions(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, 0, stitcherr.Wrap(stitcherr.ErrCodeConfiguration, err, "reference image %s", path)
	}
	return width, height, err
}
