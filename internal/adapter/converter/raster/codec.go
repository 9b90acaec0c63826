package raster

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bnema/mediaconv/internal/domain"
	"github.com/bnema/mediaconv/internal/port"
	"github.com/disintegration/imaging"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"go.uber.org/zap"

	// webp input
	_ "golang.org/x/image/webp"
)

const (
	defaultQuality = 80
	convertQuality = 95
	minQuality     = 10
	maxICOSize     = 256
	minICOSize     = 16
)

var qualityByLevel = map[string]int{
	"low":    90,
	"medium": 70,
	"high":   50,
}

func init() {
	pdfapi.DisableConfigDir()
}

// Codec converts and compresses raster images.
type Codec struct {
	logger *zap.Logger
}

func NewCodec(logger *zap.Logger) *Codec {
	return &Codec{logger: logger}
}

func (c *Codec) Transform(ctx context.Context, req domain.TransformRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := imaging.Open(req.InputPath, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}

	img := image.Image(src)
	if maxSize := parsePositive(req.Params.ImageMaxSize); maxSize > 0 {
		img = fitWithin(img, maxSize)
	}

	switch req.Action {
	case domain.ActionCompress:
		return c.compress(img, req)
	case domain.ActionConvert:
		return c.convert(img, req)
	}
	return fmt.Errorf("unsupported action %q", req.Action)
}

func (c *Codec) compress(img image.Image, req domain.TransformRequest) error {
	quality, lossless := compressQuality(req)
	ext := strings.ToLower(filepath.Ext(req.OutputPath))

	c.logger.Debug("compressing image",
		zap.String("output", req.OutputPath),
		zap.Int("quality", quality),
		zap.Bool("lossless", lossless),
	)

	switch ext {
	case ".png":
		level := png.DefaultCompression
		if lossless {
			level = png.BestCompression
		}
		return save(img, req.OutputPath, imaging.PNGCompressionLevel(level))
	case ".jpg", ".jpeg":
		return save(flatten(img), req.OutputPath, imaging.JPEGQuality(quality))
	}
	return save(img, req.OutputPath)
}

func (c *Codec) convert(img image.Image, req domain.TransformRequest) error {
	target := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(req.TargetFormat), "."))

	c.logger.Debug("converting image",
		zap.String("output", req.OutputPath),
		zap.String("target", target),
	)

	switch target {
	case "pdf":
		return writePDF(flatten(img), req.OutputPath)
	case "ico":
		size := icoSize(req.Params.ICOSize, img.Bounds())
		return writeICOFile(img, size, req.OutputPath)
	case "jpg", "jpeg":
		return save(flatten(img), req.OutputPath, imaging.JPEGQuality(convertQuality))
	case "png":
		return save(img, req.OutputPath, imaging.PNGCompressionLevel(png.DefaultCompression))
	}
	return save(img, req.OutputPath)
}

func save(img image.Image, path string, opts ...imaging.EncodeOption) error {
	if _, err := imaging.FormatFromFilename(path); err != nil {
		return fmt.Errorf("%w: image output %s", domain.ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err := imaging.Save(img, path, opts...); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}

// compressQuality resolves the encoder quality from image_quality, then the
// compression value. A percent mode overrides both.
func compressQuality(req domain.TransformRequest) (quality int, lossless bool) {
	raw := strings.TrimSpace(req.Params.ImageQuality)
	if raw == "" {
		raw = strings.TrimSpace(req.CompValue)
	}

	switch {
	case raw == "lossless":
		quality, lossless = 100, true
	case qualityByLevel[raw] > 0:
		quality = qualityByLevel[raw]
	default:
		q, err := strconv.Atoi(raw)
		if err != nil {
			q = defaultQuality
		}
		quality = min(max(q, minQuality), 100)
	}

	if req.CompMode == "percent" {
		if p, err := strconv.ParseFloat(strings.TrimSpace(req.CompValue), 64); err == nil {
			quality = max(minQuality, 100-int(p))
		}
		lossless = false
	}
	return quality, lossless
}

func icoSize(raw string, bounds image.Rectangle) int {
	raw = strings.TrimSpace(raw)
	size := maxICOSize
	if strings.EqualFold(raw, "original") {
		size = min(max(bounds.Dx(), bounds.Dy()), maxICOSize)
	} else if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		size = n
	}
	return min(max(size, minICOSize), maxICOSize)
}

// fitWithin downscales img to fit a maxDim square. Smaller images are
// returned untouched.
func fitWithin(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	if b.Dx() <= maxDim && b.Dy() <= maxDim {
		return img
	}
	return imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
}

// flatten composes img over a white background for formats without alpha.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

func writePDF(img image.Image, outputPath string) error {
	tmp, err := os.CreateTemp(filepath.Dir(outputPath), ".page-*.png")
	if err != nil {
		return fmt.Errorf("failed to create page image: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := png.Encode(tmp, img); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to encode page image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write page image: %w", err)
	}

	if err := pdfapi.ImportImagesFile([]string{tmpPath}, outputPath, nil, nil); err != nil {
		return fmt.Errorf("failed to build pdf: %w", err)
	}
	return nil
}

func parsePositive(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

var _ port.Transformer = (*Codec)(nil)
