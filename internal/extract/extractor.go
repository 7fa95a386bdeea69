// Package extract converts source files into plain text, one entry per page.
package extract

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Page is the extracted text of a single page. Formats without a page concept
// (plain text, spreadsheets) map their natural units onto page numbers.
type Page struct {
	Number int
	Text   string
}

// Supported reports whether the file extension has an extractor.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".txt", ".md", ".docx", ".xlsx":
		return true
	}
	return false
}

// Extract reads the file at path and returns its pages. Pages with no
// extractable text are dropped.
func Extract(path string) ([]Page, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var pages []Page
	var err error
	switch ext {
	case ".pdf":
		pages, err = extractPDF(path)
	case ".txt", ".md":
		pages, err = extractPlain(path)
	case ".docx":
		pages, err = extractDocx(path)
	case ".xlsx":
		pages, err = extractExcel(path)
	default:
		return nil, fmt.Errorf("unsupported file type %q", ext)
	}
	if err != nil {
		return nil, err
	}

	out := pages[:0]
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no extractable text in %s", filepath.Base(path))
	}
	return out, nil
}
