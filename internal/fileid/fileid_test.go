package fileid

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestFileDocIDStable(t *testing.T) {
	a := FileDocID("/data/docs/runbook.pdf")
	b := FileDocID("/data/docs/runbook.pdf")
	if a != b {
		t.Errorf("same path produced different IDs: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "file:") {
		t.Errorf("ID missing file: prefix: %s", a)
	}
}

func TestFileDocIDRelativeEqualsAbsolute(t *testing.T) {
	abs, err := filepath.Abs("runbook.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if FileDocID("runbook.pdf") != FileDocID(abs) {
		t.Error("relative and absolute paths should map to the same ID")
	}
}

func TestFileDocIDDistinct(t *testing.T) {
	if FileDocID("/a.pdf") == FileDocID("/b.pdf") {
		t.Error("different paths should produce different IDs")
	}
}

func TestContentHash(t *testing.T) {
	h1 := ContentHash([]byte("hello"))
	h2 := ContentHash([]byte("hello"))
	h3 := ContentHash([]byte("world"))
	if h1 != h2 {
		t.Error("hash not deterministic")
	}
	if h1 == h3 {
		t.Error("different content should hash differently")
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h1))
	}
}
