package docintake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// HTTPOCR calls an OCR service over HTTP. The service takes
// POST {base}/recognize with {"ref": ...} and answers {"text": ...}.
type HTTPOCR struct {
	BaseURL string
	Client  *http.Client
}

// Recognize implements OCRClient.
func (h *HTTPOCR) Recognize(ctx context.Context, ref string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	if err := postJSON(ctx, h.Client, h.BaseURL+"/recognize", map[string]any{"ref": ref}, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

// HTTPExtractor calls a field-extraction service over HTTP. The service
// takes POST {base}/extract with {"text": ...} and answers
// {"fields": {...}, "confidence": ...}.
type HTTPExtractor struct {
	BaseURL string
	Client  *http.Client
}

// Extract implements Extractor.
func (h *HTTPExtractor) Extract(ctx context.Context, text string) (map[string]any, float64, error) {
	var out struct {
		Fields     map[string]any `json:"fields"`
		Confidence float64        `json:"confidence"`
	}
	if err := postJSON(ctx, h.Client, h.BaseURL+"/extract", map[string]any{"text": text}, &out); err != nil {
		return nil, 0, err
	}
	return out.Fields, out.Confidence, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, in any, out any) error {
	if client == nil {
		client = http.DefaultClient
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// StubOCR returns canned text per document reference.
type StubOCR struct {
	Texts map[string]string
}

// Recognize implements OCRClient.
func (s *StubOCR) Recognize(ctx context.Context, ref string) (string, error) {
	text, ok := s.Texts[ref]
	if !ok {
		return "", fmt.Errorf("unknown ref %q", ref)
	}
	return text, nil
}

// StubExtractor returns fixed fields at a fixed confidence.
type StubExtractor struct {
	Fields     map[string]any
	Confidence float64
}

// Extract implements Extractor.
func (s *StubExtractor) Extract(ctx context.Context, text string) (map[string]any, float64, error) {
	if text == "" {
		return nil, 0, fmt.Errorf("no text to extract from")
	}
	return s.Fields, s.Confidence, nil
}

// MemoryStore keeps saved documents in memory, keyed by the id it hands
// out. Safe for concurrent runs.
type MemoryStore struct {
	mu    sync.Mutex
	seq   int
	saved map[string]map[string]any
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{saved: make(map[string]map[string]any)}
}

// Save implements Store.
func (m *MemoryStore) Save(ctx context.Context, doc Document, fields map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("doc-%d", m.seq)
	m.saved[id] = fields
	return id, nil
}

// Get returns the fields saved under an id.
func (m *MemoryStore) Get(id string) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fields, ok := m.saved[id]
	return fields, ok
}

// Len reports how many documents have been saved.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}
