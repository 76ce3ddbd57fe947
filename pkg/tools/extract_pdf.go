package tools

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// maxPDFPages bounds how many pages are extracted from one document.
const maxPDFPages = 20

// extractPDF returns cleaned text from the first pages of a PDF and its Info title.
// Pages whose text layer cannot be decoded fall back to raw positioned glyph runs.
func extractPDF(data []byte) (text, title string, err error) {
	defer func() {
		// The parser panics on some malformed cross-reference tables.
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", "", fmt.Errorf("open pdf: %w", err)
	}

	title = strings.TrimSpace(reader.Trailer().Key("Info").Key("Title").Text())

	pages := min(reader.NumPage(), maxPDFPages)
	parts := make([]string, 0, pages)
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		if part := pageText(page); part != "" {
			parts = append(parts, part)
		}
	}
	return CleanText(strings.Join(parts, "\n\n")), title, nil
}

func pageText(page pdf.Page) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = ""
		}
	}()
	if plain, err := page.GetPlainText(nil); err == nil && strings.TrimSpace(plain) != "" {
		return plain
	}
	return pageGlyphText(page)
}

// pageGlyphText joins glyph runs, starting a new line whenever the baseline moves.
func pageGlyphText(page pdf.Page) string {
	var sb strings.Builder
	lastY := -1.0
	for _, t := range page.Content().Text {
		if lastY >= 0 && t.Y != lastY {
			sb.WriteByte('\n')
		}
		sb.WriteString(t.S)
		lastY = t.Y
	}
	return sb.String()
}
