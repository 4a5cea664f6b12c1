// Package qr renders QR codes for terminal display using Unicode
// half-block characters, since terminal cells are roughly 2:1
// (height:width) and a 1-module-per-cell QR code would otherwise look
// squashed.
package qr

import (
	"strings"

	"github.com/skip2/go-qrcode"
)

var recoveryLevels = []qrcode.RecoveryLevel{qrcode.High, qrcode.Medium, qrcode.Low}

// GenerateLines renders data as a QR code, one string per terminal row,
// trying recovery levels from highest to lowest until the result fits
// within maxWidth x maxHeight. If nothing fits it returns a short
// human-readable error instead of QR lines.
func GenerateLines(data string, maxWidth, maxHeight uint16) []string {
	return render(data, maxWidth, maxHeight, false)
}

// GenerateLinesInverted is GenerateLines with dark/light swapped, for
// light-on-dark terminal themes.
func GenerateLinesInverted(data string, maxWidth, maxHeight uint16) []string {
	return render(data, maxWidth, maxHeight, true)
}

func render(data string, maxWidth, maxHeight uint16, invert bool) []string {
	for _, level := range recoveryLevels {
		bitmap, size, ok := bitmapFor(data, level)
		if !ok {
			continue
		}
		qrWidth := uint16(size)
		qrHeight := uint16((size + 1) / 2)
		if qrWidth > maxWidth || qrHeight > maxHeight {
			continue
		}
		return renderBitmap(bitmap, size, invert)
	}
	return []string{
		"QR code too large for terminal",
		"Please resize your terminal window",
		"(need at least 60x30 characters)",
	}
}

func bitmapFor(data string, level qrcode.RecoveryLevel) ([][]bool, int, bool) {
	q, err := qrcode.New(data, level)
	if err != nil {
		return nil, 0, false
	}
	bitmap := q.Bitmap()
	if len(bitmap) == 0 || len(bitmap[0]) == 0 {
		return nil, 0, false
	}
	return bitmap, len(bitmap), true
}

// renderBitmap packs two QR rows into each terminal row using half-block
// glyphs: ▀ top-dark, ▄ bottom-dark, █ both-dark, space both-light. In
// go-qrcode a true bitmap cell is a dark module.
func renderBitmap(bitmap [][]bool, size int, invert bool) []string {
	rowPairs := (size + 1) / 2
	lines := make([]string, 0, rowPairs)

	for rp := 0; rp < rowPairs; rp++ {
		upperY, lowerY := rp*2, rp*2+1
		var sb strings.Builder
		sb.Grow(size * 3) // block glyphs are 3 UTF-8 bytes each

		for x := 0; x < size; x++ {
			upper := bitmap[upperY][x]
			lower := lowerY < size && bitmap[lowerY][x]
			if invert {
				upper, lower = !upper, !lower
			}
			sb.WriteRune(halfBlock(upper, lower))
		}
		lines = append(lines, sb.String())
	}
	return lines
}

func halfBlock(upper, lower bool) rune {
	switch {
	case upper && lower:
		return '█'
	case upper:
		return '▀'
	case lower:
		return '▄'
	default:
		return ' '
	}
}

// Dimensions returns the rendered (width, height) in terminal cells for
// data at medium recovery, or (0, 0) if it cannot be encoded.
func Dimensions(data string) (uint16, uint16) {
	_, size, ok := bitmapFor(data, qrcode.Medium)
	if !ok {
		return 0, 0
	}
	return uint16(size), uint16((size + 1) / 2)
}
