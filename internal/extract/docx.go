package extract

import (
	"fmt"

	"github.com/lu4p/cat"
)

// extractDocx returns the document text as a single page. Word's internal
// pagination is layout-dependent and not recoverable from the file.
func extractDocx(path string) ([]Page, error) {
	text, err := cat.File(path)
	if err != nil {
		return nil, fmt.Errorf("failed to extract docx text: %w", err)
	}
	return []Page{{Number: 1, Text: text}}, nil
}
