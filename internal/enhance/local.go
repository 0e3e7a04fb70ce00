// Package enhance runs the in-process image enhancement used when no remote
// inference provider accepts the job.
package enhance

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Adjustments mirror multiplicative enhancement factors: 1.2 contrast is +20%.
type Adjustments struct {
	Contrast   float64
	Brightness float64
	Saturation float64
	Sharpen    float64
}

// DefaultAdjustments is the filter chain applied to uploads.
var DefaultAdjustments = Adjustments{
	Contrast:   20,
	Brightness: 10,
	Saturation: 30,
	Sharpen:    1.5,
}

// Enhancer applies a fixed adjustment chain to image files.
type Enhancer struct {
	adj Adjustments
}

func NewEnhancer(adj Adjustments) *Enhancer {
	return &Enhancer{adj: adj}
}

// OutputKey names the enhanced rendition of key. Formats that cannot be
// encoded are written as PNG.
func OutputKey(key string) string {
	ext := strings.ToLower(filepath.Ext(key))
	if _, err := imaging.FormatFromExtension(ext); err != nil {
		key = strings.TrimSuffix(key, filepath.Ext(key)) + ".png"
	}
	return "enhanced_" + key
}

// EnhanceFile reads src, applies the adjustments and writes the result to dst.
// The output format follows dst's extension.
func (e *Enhancer) EnhanceFile(ctx context.Context, src, dst string) error {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("enhance: open %s: %w", filepath.Base(src), err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	out := e.Apply(img)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := imaging.Save(out, dst, imaging.JPEGQuality(92)); err != nil {
		return fmt.Errorf("enhance: save %s: %w", filepath.Base(dst), err)
	}
	return nil
}

// Apply runs the adjustment chain in memory.
func (e *Enhancer) Apply(img image.Image) *image.NRGBA {
	out := imaging.AdjustContrast(img, e.adj.Contrast)
	out = imaging.AdjustBrightness(out, e.adj.Brightness)
	out = imaging.AdjustSaturation(out, e.adj.Saturation)
	if e.adj.Sharpen > 0 {
		out = imaging.Sharpen(out, e.adj.Sharpen)
	}
	return out
}
