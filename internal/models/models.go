// Package models defines the core data types shared across packages.
package models

import (
	"errors"
	"strings"
	"time"
)

// Document represents an ingested source document.
type Document struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	SourcePath string            `json:"source_path,omitempty"`
	Pages      int               `json:"pages"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// DocumentChunk is a contiguous piece of a document with its embedding.
type DocumentChunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Page       int       `json:"page"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// DocumentInput is the payload for creating a document through the API.
type DocumentInput struct {
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks the input before ingestion.
func (d *DocumentInput) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return errors.New("title is required")
	}
	if strings.TrimSpace(d.Content) == "" {
		return errors.New("content is required")
	}
	return nil
}

// AskRequest is a question posed against the indexed documents.
type AskRequest struct {
	Question   string   `json:"question"`
	ActiveDocs []string `json:"active_docs,omitempty"`
	Stream     bool     `json:"stream,omitempty"`
}

// Validate checks the request fields.
func (r *AskRequest) Validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return errors.New("question is required")
	}
	return nil
}

// Source identifies where part of an answer came from.
type Source struct {
	Title string  `json:"title"`
	Page  int     `json:"page"`
	Score float64 `json:"score"`
}

// AskResponse is the generated answer with its supporting sources.
type AskResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// SearchResult is a single keyword search hit.
type SearchResult struct {
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Title      string  `json:"title"`
	Page       int     `json:"page"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

// Status summarizes the state of the index.
type Status struct {
	Documents      int    `json:"documents"`
	Chunks         int    `json:"chunks"`
	VectorSize     int    `json:"vector_size"`
	DiskUsageBytes int64  `json:"disk_usage_bytes"`
	EmbeddingModel string `json:"embedding_model"`
	LLMModel       string `json:"llm_model"`
}
