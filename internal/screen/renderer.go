// Package screen drives a screen through its full render pipeline and
// persists the encoded image for devices to fetch.
package screen

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/koios/trmnl-renderer/internal/dither"
	"github.com/koios/trmnl-renderer/internal/layout"
	"github.com/koios/trmnl-renderer/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PanelRenderer produces the markup for one panel reference. It never fails;
// problems come back as a Failed render.
type PanelRenderer interface {
	RenderPanel(ctx context.Context, name string, settings map[string]any) models.PanelRender
}

// Rasterizer turns a full HTML document into a greyscale raster
type Rasterizer interface {
	Rasterize(ctx context.Context, html string, width, height int) (*image.Gray, error)
}

// Renderer renders screens into the output directory
type Renderer struct {
	panels       PanelRenderer
	rasterizer   Rasterizer
	outputDir    string
	referenceDir string
	logger       *zap.Logger

	renders atomic.Uint64
}

// NewRenderer creates a screen renderer writing into outputDir and reading
// reference images from referenceDir.
func NewRenderer(panels PanelRenderer, rasterizer Rasterizer, outputDir, referenceDir string, logger *zap.Logger) (*Renderer, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Renderer{
		panels:       panels,
		rasterizer:   rasterizer,
		outputDir:    outputDir,
		referenceDir: referenceDir,
		logger:       logger,
	}, nil
}

// OutputDir returns the directory rendered images are written to
func (r *Renderer) OutputDir() string {
	return r.outputDir
}

func validName(name string) error {
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid file name: %q", name)
	}
	return nil
}

// RenderScreen renders s at the given viewport and bit depth. Every call
// returns a token distinct from all previous calls.
func (r *Renderer) RenderScreen(ctx context.Context, s models.Screen, viewport models.Viewport, bitDepth int) (*models.ScreenRender, error) {
	if err := validName(s.ScreenID()); err != nil {
		return nil, err
	}

	switch s := s.(type) {
	case *models.ComposedScreen:
		return r.renderComposed(ctx, s, viewport, bitDepth)
	case *models.ReferencedScreen:
		return r.renderReferenced(s)
	default:
		return nil, fmt.Errorf("unsupported screen type %T", s)
	}
}

func (r *Renderer) renderComposed(ctx context.Context, s *models.ComposedScreen, viewport models.Viewport, bitDepth int) (*models.ScreenRender, error) {
	l, err := layout.Get(s.Layout)
	if err != nil {
		return nil, err
	}
	if l.Arity() != len(s.Panels) {
		return nil, fmt.Errorf("%w: layout %s takes %d panels, screen %s has %d",
			models.ErrLayoutArityMismatch, l.Name(), l.Arity(), s.ID, len(s.Panels))
	}

	// RenderPanel never fails, so no panel can cancel its siblings and Wait
	// only joins the fan-out.
	renders := make([]models.PanelRender, len(s.Panels))
	var g errgroup.Group
	for i, ref := range s.Panels {
		i, ref := i, ref
		g.Go(func() error {
			renders[i] = r.panels.RenderPanel(ctx, ref.Name, ref.Settings)
			return nil
		})
	}
	g.Wait()

	failed := false
	fragments := make([]string, len(renders))
	for i, pr := range renders {
		fragments[i] = pr.HTML
		if pr.Failed {
			failed = true
		}
	}

	doc, err := l.Compose(fragments)
	if err != nil {
		return nil, err
	}

	raster, err := r.rasterizer.Rasterize(ctx, doc, viewport.Width, viewport.Height)
	if err != nil {
		if errors.Is(err, models.ErrRasterizationFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrRasterizationFailed, err)
	}

	data, err := dither.EncodeBytes(raster, bitDepth)
	if err != nil {
		return nil, err
	}

	file := s.ID + ".png"
	path := filepath.Join(r.outputDir, file)
	if err := writeFileAtomic(path, data); err != nil {
		return nil, err
	}

	result := &models.ScreenRender{
		ScreenID: s.ID,
		File:     file,
		Path:     path,
		Token:    r.token(xxhash.Sum64(data)),
		Duration: s.Duration,
		Failed:   failed,
	}

	r.logger.Debug("Rendered composed screen",
		zap.String("screen_id", s.ID),
		zap.String("layout", l.Name()),
		zap.Int("bit_depth", bitDepth),
		zap.Bool("failed", failed),
		zap.Int("output_size", len(data)))

	return result, nil
}

func (r *Renderer) renderReferenced(s *models.ReferencedScreen) (*models.ScreenRender, error) {
	if err := validName(s.Image); err != nil {
		return nil, err
	}

	src, err := os.Open(filepath.Join(r.referenceDir, s.Image+".png"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", models.ErrReferenceImageMissing, s.Image)
		}
		return nil, fmt.Errorf("failed to open reference image: %w", err)
	}
	defer src.Close()

	file := s.ID + ".png"
	path := filepath.Join(r.outputDir, file)
	digest := xxhash.New()
	if err := copyFileAtomic(path, io.TeeReader(src, digest)); err != nil {
		return nil, err
	}

	r.logger.Debug("Copied reference screen",
		zap.String("screen_id", s.ID),
		zap.String("image", s.Image))

	return &models.ScreenRender{
		ScreenID: s.ID,
		File:     file,
		Path:     path,
		Token:    r.token(digest.Sum64()),
		Duration: s.Duration,
	}, nil
}

// UpdateReferenceImage stores data as the reference image called name
func (r *Renderer) UpdateReferenceImage(name string, data []byte) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := os.MkdirAll(r.referenceDir, 0755); err != nil {
		return fmt.Errorf("failed to create reference directory: %w", err)
	}
	return writeFileAtomic(filepath.Join(r.referenceDir, name+".png"), data)
}

func (r *Renderer) token(sum uint64) string {
	return fmt.Sprintf("%d-%016x", r.renders.Add(1), sum)
}
