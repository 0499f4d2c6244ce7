package tiling

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/sync/errgroup"

	stitcherr "tilestitch/pkg/errors"
)

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Extract returns the padded region of tile t. The result shares pixels with
// img and keeps img's coordinate system, so its Bounds().Min is the tile
// origin.
func Extract(img image.Image, t Tile) (image.Image, error) {
	sub, ok := img.(subImager)
	if !ok {
		return nil, fmt.Errorf("image type %T cannot be tiled", img)
	}
	r := image.Rect(t.Box.X0, t.Box.Y0, t.Box.X1, t.Box.Y1).Add(img.Bounds().Min)
	if !r.In(img.Bounds()) {
		return nil, stitcherr.GeometryMismatch("%v outside image bounds %v", t, img.Bounds())
	}
	return sub.SubImage(r), nil
}

// WriteFunc persists one extracted tile.
type WriteFunc func(ctx context.Context, t Tile, img image.Image) error

// Split cuts img into the tiles of p and hands each one to write, running at
// most workers writes at a time. The image must have exactly the planned
// dimensions.
func Split(ctx context.Context, img image.Image, p *Plan, workers int, write WriteFunc) error {
	b := img.Bounds()
	if b.Dx() != p.Width || b.Dy() != p.Height {
		return stitcherr.GeometryMismatch("image is %dx%d, plan expects %dx%d", b.Dx(), b.Dy(), p.Width, p.Height)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, workers))
	for _, t := range p.Tiles() {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sub, err := Extract(img, t)
			if err != nil {
				return err
			}
			if err := write(ctx, t, sub); err != nil {
				return fmt.Errorf("write %v: %w", t, err)
			}
			return nil
		})
	}
	return g.Wait()
}
