package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// extractPlain reads a text or markdown file as a single page.
func extractPlain(path string) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s is not valid UTF-8", filepath.Base(path))
	}
	return []Page{{Number: 1, Text: string(data)}}, nil
}
