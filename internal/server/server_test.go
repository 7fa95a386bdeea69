package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/quokkadev/opsrag/internal/config"
	"github.com/quokkadev/opsrag/internal/embedding"
	"github.com/quokkadev/opsrag/internal/generation"
	"github.com/quokkadev/opsrag/internal/ingest"
	"github.com/quokkadev/opsrag/internal/keyword"
	"github.com/quokkadev/opsrag/internal/models"
	"github.com/quokkadev/opsrag/internal/retrieval"
	"github.com/quokkadev/opsrag/internal/storage"
	"github.com/quokkadev/opsrag/internal/vector"
)

// fakeModel answers every generation call with a fixed string.
type fakeModel struct {
	answer string
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent,
	options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	if opts.StreamingFunc != nil {
		for _, tok := range strings.SplitAfter(f.answer, " ") {
			if err := opts.StreamingFunc(ctx, []byte(tok)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.answer}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return f.answer, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Storage.DataDir = filepath.Join(dir, "data")
	cfg.Storage.DatabasePath = filepath.Join(dir, "test.db")
	cfg.Storage.VectorIndexPath = filepath.Join(dir, "vectors.bin")
	cfg.Storage.KeywordIndexPath = filepath.Join(dir, "keyword.bleve")
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimensions = 32
	cfg.Ingest.ChunkSize = 20
	cfg.Ingest.ChunkOverlap = 5

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	embedder := embedding.NewMockEmbedder(32)
	vectors := vector.NewMemoryIndex(cfg.Storage.VectorIndexPath, 32)
	keywords, err := keyword.OpenBleve(cfg.Storage.KeywordIndexPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { keywords.Close() })

	logger := zap.NewNop()
	ingestor := ingest.New(store, embedder, vectors, keywords, cfg.Ingest, logger)
	retriever := retrieval.New(store, embedder, vectors, cfg.Retrieval, logger)
	engine := generation.NewWithClient(&fakeModel{answer: "Commands: kubectl get pods"}, cfg.LLM, logger)

	return New(cfg, store, ingestor, retriever, engine, vectors, keywords, logger)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func createDoc(t *testing.T, h http.Handler, title, content string) models.Document {
	t.Helper()
	w := doJSON(t, h, http.MethodPost, "/api/v1/documents",
		models.DocumentInput{Title: title, Content: content})
	if w.Code != http.StatusCreated {
		t.Fatalf("create document: status %d, body %s", w.Code, w.Body.String())
	}
	var doc models.Document
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestUIServed(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<html") {
		t.Error("UI response is not HTML")
	}
}

func TestCreateAndListDocuments(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	doc := createDoc(t, h, "runbook", "how to restart nginx with systemctl")
	if doc.ID == "" || doc.Title != "runbook" {
		t.Errorf("doc = %+v", doc)
	}

	w := doJSON(t, h, http.MethodGet, "/api/v1/documents", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var docs []models.Document
	if err := json.Unmarshal(w.Body.Bytes(), &docs); err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].Title != "runbook" {
		t.Errorf("docs = %+v", docs)
	}
}

func TestCreateDocumentValidation(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/documents",
		models.DocumentInput{Title: "", Content: "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestUploadDocument(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	fmt.Fprint(fw, "drain the node before maintenance with kubectl drain")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body %s", w.Code, w.Body.String())
	}
	var doc models.Document
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Title != "notes.txt" {
		t.Errorf("title = %q", doc.Title)
	}
}

func TestUploadUnsupportedType(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "malware.exe")
	fmt.Fprint(fw, "binary")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d", w.Code)
	}
}

func TestDeleteDocument(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	doc := createDoc(t, h, "to-delete", "temporary document content")

	w := doJSON(t, h, http.MethodDelete, "/api/v1/documents/"+doc.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}

	w = doJSON(t, h, http.MethodDelete, "/api/v1/documents/"+doc.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("double delete status = %d", w.Code)
	}
}

func TestAsk(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	createDoc(t, h, "k8s", "kubectl get pods lists all pods in the namespace")

	w := doJSON(t, h, http.MethodPost, "/api/v1/ask",
		models.AskRequest{Question: "how do I list pods with kubectl"})
	if w.Code != http.StatusOK {
		t.Fatalf("ask status = %d, body %s", w.Code, w.Body.String())
	}
	var resp models.AskResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "Commands: kubectl get pods" {
		t.Errorf("answer = %q", resp.Answer)
	}
	if len(resp.Sources) == 0 {
		t.Error("no sources returned")
	}
}

func TestAskRefusesOffTopic(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	createDoc(t, h, "k8s", "kubectl get pods lists all pods")

	w := doJSON(t, h, http.MethodPost, "/api/v1/ask",
		models.AskRequest{Question: "zzzqqq xxyyy unrelatedwords"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp models.AskResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Answer != generation.RefusalMessage {
		t.Errorf("answer = %q, want refusal", resp.Answer)
	}
}

func TestAskValidation(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/ask",
		models.AskRequest{Question: "  "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestAskStream(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	createDoc(t, h, "k8s", "kubectl get pods lists all pods in the namespace")

	w := doJSON(t, h, http.MethodPost, "/api/v1/ask",
		models.AskRequest{Question: "how do I list pods with kubectl", Stream: true})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "event: token") {
		t.Error("no token events in stream")
	}
	if !strings.Contains(body, "event: done") {
		t.Error("no done event in stream")
	}
}

func TestSearch(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	createDoc(t, h, "tf", "terraform apply provisions the declared infrastructure")

	w := doJSON(t, h, http.MethodGet, "/api/v1/search?q=terraform", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var results []models.SearchResult
	if err := json.Unmarshal(w.Body.Bytes(), &results); err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("no search results")
	}
	if results[0].Title != "tf" {
		t.Errorf("result = %+v", results[0])
	}

	w = doJSON(t, h, http.MethodGet, "/api/v1/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing q status = %d", w.Code)
	}
}

func TestStatus(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	createDoc(t, h, "doc", "some indexed content for the status endpoint")

	w := doJSON(t, h, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var st models.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.Documents != 1 || st.Chunks == 0 || st.VectorSize != st.Chunks {
		t.Errorf("status = %+v", st)
	}
	if st.LLMModel == "" || st.EmbeddingModel == "" {
		t.Error("model names missing from status")
	}
}
