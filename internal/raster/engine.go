// Package raster turns HTML documents into greyscale pixel buffers.
package raster

import (
	"context"
	"image"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

// Engine captures an HTML document at a viewport size. Implementations are
// not safe for concurrent use; the Pool gives each worker its own engine.
type Engine interface {
	Capture(ctx context.Context, html string, width, height int) (image.Image, error)
	Close() error
}

// EngineFactory starts a fresh engine session
type EngineFactory func() (Engine, error)

// Rasterizer renders HTML into a greyscale raster of exactly width x height
type Rasterizer interface {
	Rasterize(ctx context.Context, html string, width, height int) (*image.Gray, error)
}

// toGray converts img to greyscale at exactly width x height, resampling when
// the capture does not match the requested viewport.
func toGray(img image.Image, width, height int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, width, height))
	src := img.Bounds()

	if src.Dx() == width && src.Dy() == height {
		draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Src)
		return dst
	}

	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, src, xdraw.Src, nil)
	return dst
}
