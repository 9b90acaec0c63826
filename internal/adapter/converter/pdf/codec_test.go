package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bnema/mediaconv/internal/domain"
	"github.com/disintegration/imaging"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// writeTestPDF builds a one-page document from a generated image.
func writeTestPDF(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	img := filepath.Join(dir, "page.png")
	require.NoError(t, imaging.Save(imaging.New(40, 60, color.White), img))

	out := filepath.Join(dir, "doc.pdf")
	require.NoError(t, pdfapi.ImportImagesFile([]string{img}, out, nil, nil))
	return out
}

func TestCodec_Compress(t *testing.T) {
	codec := NewCodec(zaptest.NewLogger(t))
	input := writeTestPDF(t)
	output := filepath.Join(t.TempDir(), "small.pdf")

	err := codec.Transform(context.Background(), domain.TransformRequest{
		InputPath: input, OutputPath: output, Ext: ".pdf", Action: domain.ActionCompress,
	})
	require.NoError(t, err)

	n, err := pdfapi.PageCountFile(output)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCodec_ConvertToText(t *testing.T) {
	codec := NewCodec(zaptest.NewLogger(t))
	input := writeTestPDF(t)
	outDir := t.TempDir()
	output := filepath.Join(outDir, "doc.txt")

	err := codec.Transform(context.Background(), domain.TransformRequest{
		InputPath: input, OutputPath: output, Ext: ".pdf",
		Action: domain.ActionConvert, TargetFormat: "TXT",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Empty(t, bytes.TrimSpace(data), "an image-only page has no text")

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// writeTextPDF builds a document with one Helvetica text line per page.
func writeTextPDF(t *testing.T, pages ...string) string {
	t.Helper()
	font := len(pages)*2 + 3
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"", // page tree, filled below
	}
	var kids []string
	for i, text := range pages {
		pageObj := 3 + i*2
		stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		kids = append(kids, fmt.Sprintf("%d 0 R", pageObj))
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>", font, pageObj+1),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}
	objects[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))
	objects = append(objects, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	path := filepath.Join(t.TempDir(), "text.pdf")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestCodec_ConvertToTextKeepsPageOrder(t *testing.T) {
	codec := NewCodec(zaptest.NewLogger(t))
	input := writeTextPDF(t, "Hello", "World")
	output := filepath.Join(t.TempDir(), "doc.txt")

	err := codec.Transform(context.Background(), domain.TransformRequest{
		InputPath: input, OutputPath: output, Ext: ".pdf",
		Action: domain.ActionConvert, TargetFormat: "txt",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "Hello")
	assert.Contains(t, text, "World")
	assert.Less(t, strings.Index(text, "Hello"), strings.Index(text, "World"))
}

func TestCodec_ConvertToTextCanceled(t *testing.T) {
	codec := NewCodec(zaptest.NewLogger(t))
	input := writeTextPDF(t, "Hello")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := codec.Transform(ctx, domain.TransformRequest{
		InputPath: input, OutputPath: filepath.Join(t.TempDir(), "doc.txt"), Ext: ".pdf",
		Action: domain.ActionConvert, TargetFormat: "txt",
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCodec_UnsupportedTarget(t *testing.T) {
	codec := NewCodec(zaptest.NewLogger(t))
	input := writeTestPDF(t)

	err := codec.Transform(context.Background(), domain.TransformRequest{
		InputPath: input, OutputPath: filepath.Join(t.TempDir(), "doc.docx"), Ext: ".pdf",
		Action: domain.ActionConvert, TargetFormat: "docx",
	})
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestCodec_InvalidDocument(t *testing.T) {
	codec := NewCodec(zaptest.NewLogger(t))
	input := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(input, []byte("definitely not a pdf"), 0o644))

	err := codec.Transform(context.Background(), domain.TransformRequest{
		InputPath: input, OutputPath: filepath.Join(t.TempDir(), "out.pdf"), Ext: ".pdf",
		Action: domain.ActionCompress,
	})
	assert.Error(t, err)
}

