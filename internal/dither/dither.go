// Package dither quantizes greyscale rasters to the few grey levels an e-ink
// panel can show, using Floyd-Steinberg error diffusion.
package dither

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/koios/trmnl-renderer/pkg/models"
)

// MaxBitDepth is the deepest supported output (256 grey levels)
const MaxBitDepth = 8

// ValidBitDepth reports whether depth is a power of two between 1 and 8
func ValidBitDepth(depth int) bool {
	return depth > 0 && depth <= MaxBitDepth && depth&(depth-1) == 0
}

// Palette returns the 2^depth grey levels evenly spaced over [0, 255]
func Palette(depth int) (color.Palette, error) {
	if !ValidBitDepth(depth) {
		return nil, fmt.Errorf("%w: unsupported bit depth %d", models.ErrEncodingFailed, depth)
	}

	levels := 1 << depth
	step := 255.0 / float64(levels-1)

	palette := make(color.Palette, levels)
	for i := range palette {
		palette[i] = color.Gray{Y: uint8(math.Round(float64(i) * step))}
	}
	return palette, nil
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// Dither diffuses quantization error row by row, left to right, and returns a
// paletted image whose palette is exactly the 2^depth levels.
func Dither(src *image.Gray, depth int) (*image.Paletted, error) {
	palette, err := Palette(depth)
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: empty raster", models.ErrEncodingFailed)
	}

	buf := make([]float64, width*height)
	for y := 0; y < height; y++ {
		row := src.Pix[src.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
		for x := 0; x < width; x++ {
			buf[y*width+x] = float64(row[x])
		}
	}

	maxIndex := float64(len(palette) - 1)
	step := 255.0 / maxIndex
	out := image.NewPaletted(image.Rect(0, 0, width, height), palette)

	spread := func(pos int, weight float64) {
		buf[pos] = clamp(buf[pos] + weight)
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			old := buf[i]

			index := math.Floor(old/step + 0.5)
			if index > maxIndex {
				index = maxIndex
			}
			quantized := index * step
			diff := old - quantized

			out.Pix[y*out.Stride+x] = uint8(index)

			if x+1 < width {
				spread(i+1, diff*7/16)
			}
			if y+1 < height {
				if x > 0 {
					spread(i+width-1, diff*3/16)
				}
				spread(i+width, diff*5/16)
				if x+1 < width {
					spread(i+width+1, diff*1/16)
				}
			}
		}
	}

	return out, nil
}

// Encode dithers src and writes it as a paletted PNG
func Encode(w io.Writer, src *image.Gray, depth int) error {
	img, err := Dither(src, depth)
	if err != nil {
		return err
	}

	encoder := png.Encoder{CompressionLevel: png.BestCompression}
	if err := encoder.Encode(w, img); err != nil {
		return fmt.Errorf("%w: %v", models.ErrEncodingFailed, err)
	}
	return nil
}

// EncodeBytes is Encode into a fresh buffer
func EncodeBytes(src *image.Gray, depth int) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, src, depth); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
