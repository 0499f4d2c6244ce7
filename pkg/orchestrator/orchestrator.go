// Package orchestrator runs the two stitching passes over a labeled tile
// grid.
//
// A run moves through strictly ordered phases:
//
//	Init -> PassX (rows, concurrently) -> persist row strips
//	     -> PassY (one run over the strips) -> persist final map -> Done
//
// Pass Y only reads what pass X persisted, so it can be resumed on its own.
// Any failure stops the run before the final map is written.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tilestitch/internal/models"
	"tilestitch/pkg/config"
	stitcherr "tilestitch/pkg/errors"
	"tilestitch/pkg/stitch"
	"tilestitch/pkg/tiling"
)

// Orchestrator stitches the tiles of one image.
type Orchestrator struct {
	cfg    *config.Config
	plan   *tiling.Plan
	src    TileSource
	store  StripStore
	logger *log.Logger
}

// New validates cfg and plans the grid for a width x height image. It fails
// with a CONFIGURATION error before touching src or store.
func New(cfg *config.Config, width, height int, src TileSource, store StripStore, logger *log.Logger) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	plan, err := tiling.NewPlan(width, height, cfg.Tiling)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{cfg: cfg, plan: plan, src: src, store: store, logger: logger}, nil
}

// Plan returns the tile grid the passes follow.
func (o *Orchestrator) Plan() *tiling.Plan { return o.plan }

func (o *Orchestrator) options(workers int) stitch.Options {
	return stitch.Options{
		HoleFillMinPixels: o.cfg.Stitch.HoleFillMinPixels,
		NumWorkers:        workers,
		Logger:            o.logger,
	}
}

// Run executes both passes and writes the manifest.
func (o *Orchestrator) Run(ctx context.Context) (*Manifest, error) {
	start := time.Now()
	o.logger.Info("starting stitch", "width", o.plan.Width, "height", o.plan.Height,
		"rows", o.plan.Rows(), "cols", o.plan.Cols())

	x, err := o.PassX(ctx)
	if err != nil {
		return nil, err
	}
	man, err := o.finish(ctx, &x)
	if err != nil {
		return nil, err
	}
	o.logger.Info("stitch complete", "maxID", man.MaxID, "filled", man.Filled,
		"discarded", man.Discarded, "took", time.Since(start).Round(time.Millisecond))
	return man, nil
}

// RunY resumes a run from persisted row strips and writes the manifest.
func (o *Orchestrator) RunY(ctx context.Context) (*Manifest, error) {
	return o.finish(ctx, nil)
}

func (o *Orchestrator) finish(ctx context.Context, x *stitch.Report) (*Manifest, error) {
	y, err := o.PassY(ctx)
	if err != nil {
		return nil, err
	}
	man := &Manifest{
		RunID:             uuid.NewString(),
		CreatedAt:         time.Now().UTC(),
		Width:             o.plan.Width,
		Height:            o.plan.Height,
		Rows:              o.plan.Rows(),
		Cols:              o.plan.Cols(),
		Tiling:            o.cfg.Tiling,
		HoleFillMinPixels: o.cfg.Stitch.HoleFillMinPixels,
		PassX:             x,
		PassY:             y.Report,
	}
	man.summarize()
	if err := o.store.SaveManifest(ctx, man); err != nil {
		return nil, fmt.Errorf("failed to save manifest: %w", err)
	}
	return man, nil
}

// PassX stitches every row of tiles along X and persists each row strip.
// Rows run concurrently; the first failing row cancels the rest.
func (o *Orchestrator) PassX(ctx context.Context) (stitch.Report, error) {
	rows := o.plan.Rows()
	reports := make([]stitch.Report, rows)

	// Rows share the worker budget with the seams inside each row.
	inner := max(1, o.cfg.Workers()/rows)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers())
	for row := range rows {
		g.Go(func() error {
			r, err := o.stitchRow(gctx, row, inner)
			if err != nil {
				return err
			}
			reports[row] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stitch.Report{}, err
	}

	out := stitch.Report{Axis: models.AxisX.String()}.Merge(reports...)
	return out, nil
}

func (o *Orchestrator) stitchRow(ctx context.Context, row, workers int) (stitch.Report, error) {
	tiles := o.plan.Row(row)
	strips := make([]*models.LabelImage, len(tiles))
	for i, t := range tiles {
		m, err := o.src.LoadTile(ctx, t)
		if errors.Is(err, fs.ErrNotExist) {
			return stitch.Report{}, stitcherr.Wrap(stitcherr.ErrCodeMissingTile, err, "row %d: tile %s", row, t)
		}
		if err != nil {
			return stitch.Report{}, fmt.Errorf("row %d: tile %s: %w", row, t, err)
		}
		if m.Width != t.Box.Dx() || m.Height != t.Box.Dy() {
			return stitch.Report{}, stitcherr.GeometryMismatch("row %d: tile %s is %dx%d, grid expects %dx%d",
				row, t, m.Width, m.Height, t.Box.Dx(), t.Box.Dy())
		}
		strips[i] = m
	}

	res, err := stitch.Stitch(ctx, models.AxisX, o.plan.X, strips, o.options(workers))
	if err != nil {
		return stitch.Report{}, fmt.Errorf("row %d: %w", row, err)
	}

	y0 := o.plan.Y.Spans[row].Start
	if err := o.store.SaveRowStrip(ctx, y0, res.Canvas); err != nil {
		return stitch.Report{}, fmt.Errorf("row %d: failed to save strip: %w", row, err)
	}
	o.logger.Info("stitched row", "row", row, "y0", y0, "tiles", len(tiles),
		"maxID", res.Report.MaxID, "unified", res.Report.Unified)
	return res.Report, nil
}

// PassY stitches the persisted row strips along Y, checks the result
// against the image dimensions and persists the final map.
func (o *Orchestrator) PassY(ctx context.Context) (*stitch.Result, error) {
	strips := make([]*models.LabelImage, o.plan.Rows())
	for row, span := range o.plan.Y.Spans {
		m, err := o.store.LoadRowStrip(ctx, span.Start)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, stitcherr.Wrap(stitcherr.ErrCodeMissingRowStrip, err, "row strip %d at y=%d", row, span.Start)
		}
		if err != nil {
			return nil, fmt.Errorf("row strip %d: %w", row, err)
		}
		strips[row] = m
	}

	res, err := stitch.Stitch(ctx, models.AxisY, o.plan.Y, strips, o.options(o.cfg.Workers()))
	if err != nil {
		return nil, err
	}
	if res.Canvas.Width != o.plan.Width || res.Canvas.Height != o.plan.Height {
		return nil, stitcherr.GeometryMismatch("final map is %dx%d, image is %dx%d",
			res.Canvas.Width, res.Canvas.Height, o.plan.Width, o.plan.Height)
	}

	if err := o.store.SaveFinal(ctx, res.Canvas); err != nil {
		return nil, fmt.Errorf("failed to save final map: %w", err)
	}
	o.logger.Info("stitched rows", "strips", len(strips), "maxID", res.Report.MaxID)
	return res, nil
}
