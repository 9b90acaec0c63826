package pdf

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/bnema/mediaconv/internal/domain"
	"github.com/bnema/mediaconv/internal/port"
	pdftext "github.com/ledongthuc/pdf"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"go.uber.org/zap"
)

func init() {
	pdfapi.DisableConfigDir()
}

// Codec compresses PDF documents and extracts their text.
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

	pages, err := pdfapi.PageCountFile(req.InputPath)
	if err != nil {
		return fmt.Errorf("failed to read pdf: %w", err)
	}
	c.logger.Debug("processing pdf",
		zap.String("input", req.InputPath),
		zap.Int("pages", pages),
		zap.String("action", string(req.Action)),
	)

	switch req.Action {
	case domain.ActionCompress:
		if err := pdfapi.OptimizeFile(req.InputPath, req.OutputPath, nil); err != nil {
			return fmt.Errorf("failed to optimize pdf: %w", err)
		}
		return nil
	case domain.ActionConvert:
		target := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(req.TargetFormat), "."))
		if target != "txt" {
			return fmt.Errorf("%w: pdf to %q", domain.ErrUnsupportedFormat, req.TargetFormat)
		}
		return c.extractText(ctx, req.InputPath, req.OutputPath)
	}
	return fmt.Errorf("unsupported action %q", req.Action)
}

// extractText writes the plain text of every page, one page per block.
func (c *Codec) extractText(ctx context.Context, inputPath, outputPath string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to read pdf text: %v", r)
		}
	}()

	f, doc, err := pdftext.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	var text strings.Builder
	fonts := make(map[string]*pdftext.Font)
	for i := 1; i <= doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := page.Font(name)
				fonts[name] = &font
			}
		}
		content, err := page.GetPlainText(fonts)
		if err != nil {
			return fmt.Errorf("failed to read page %d: %w", i, err)
		}
		if content = strings.TrimSpace(content); content != "" {
			text.WriteString(content)
			text.WriteString("\n")
		}
	}

	if err := os.WriteFile(outputPath, []byte(text.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write text: %w", err)
	}
	c.logger.Debug("pdf text extracted", zap.Int("pages", doc.NumPage()), zap.Int("bytes", text.Len()))
	return nil
}

var _ port.Transformer = (*Codec)(nil)
