// Package fileid derives stable document IDs from file paths, so re-ingesting
// the same file updates the existing document instead of creating a duplicate.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// FileDocID returns a deterministic document ID for the given file path.
// The path is made absolute first, so relative and absolute references to the
// same file map to one ID.
func FileDocID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	sum := sha256.Sum256([]byte(abs))
	return "file:" + hex.EncodeToString(sum[:16])
}

// ContentHash returns the hex SHA-256 of the given bytes. Stored in document
// metadata to detect unchanged files during re-ingestion.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
