package raster

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"github.com/disintegration/imaging"
)

type icoHeader struct {
	Reserved uint16
	Type     uint16
	Count    uint16
}

type icoDirEntry struct {
	Width       uint8
	Height      uint8
	ColorCount  uint8
	Reserved    uint8
	Planes      uint16
	BitCount    uint16
	BytesInRes  uint32
	ImageOffset uint32
}

// encodeICO writes a single-image icon holding a PNG payload. The image is
// fitted into a size square and centered on a transparent canvas.
func encodeICO(w io.Writer, img image.Image, size int) error {
	canvas := imaging.PasteCenter(
		imaging.New(size, size, color.Transparent),
		fitWithin(img, size),
	)

	var payload bytes.Buffer
	if err := png.Encode(&payload, canvas); err != nil {
		return fmt.Errorf("encode icon png: %w", err)
	}

	// 0 means 256 in the directory entry.
	dim := uint8(size % 256)
	header := icoHeader{Type: 1, Count: 1}
	entry := icoDirEntry{
		Width:       dim,
		Height:      dim,
		Planes:      1,
		BitCount:    32,
		BytesInRes:  uint32(payload.Len()),
		ImageOffset: uint32(binary.Size(header) + binary.Size(icoDirEntry{})),
	}

	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, entry); err != nil {
		return err
	}
	_, err := w.Write(payload.Bytes())
	return err
}

func writeICOFile(img image.Image, size int, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create icon: %w", err)
	}
	if err := encodeICO(f, img, size); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write icon: %w", err)
	}
	return f.Close()
}
