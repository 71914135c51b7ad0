// Package docintake wires the document-intake pipeline: classify an
// incoming document, OCR scans or parse text, extract structured fields,
// then store the result or park it for review.
package docintake

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/relayworks/relay"
)

// Document is an incoming file to process. Content holds the raw text for
// textual formats; scans carry only a reference the OCR service can fetch.
type Document struct {
	ID      string
	Name    string
	Ref     string
	Content string
}

// OCRClient turns a scanned document reference into text.
type OCRClient interface {
	Recognize(ctx context.Context, ref string) (string, error)
}

// Extractor pulls structured fields out of document text and scores its
// own confidence in them.
type Extractor interface {
	Extract(ctx context.Context, text string) (fields map[string]any, confidence float64, err error)
}

// Store persists a processed document and returns its storage id.
type Store interface {
	Save(ctx context.Context, doc Document, fields map[string]any) (string, error)
}

// Config carries the pipeline's collaborators. All three services are
// required; MinConfidence below which extractions go to review defaults
// to 0.8.
type Config struct {
	OCR           OCRClient
	Extractor     Extractor
	Store         Store
	MinConfidence float64
}

// scan extensions routed through OCR rather than the text parser.
var scanExtensions = map[string]bool{
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tiff": true,
}

// NewPipeline builds the intake graph. The returned graph is immutable and
// safe to share across concurrent runs.
func NewPipeline(cfg Config) (*relay.Graph, error) {
	if cfg.OCR == nil || cfg.Extractor == nil || cfg.Store == nil {
		return nil, fmt.Errorf("docintake: OCR, Extractor and Store are required")
	}
	minConfidence := cfg.MinConfidence
	if minConfidence == 0 {
		minConfidence = 0.8
	}

	intake := relay.NewNode("intake", relay.Source, func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
		doc, err := documentFrom(s)
		if err != nil {
			return relay.Outcome{}, err
		}
		if doc.ID == "" || doc.Name == "" {
			return relay.Outcome{}, fmt.Errorf("document needs an id and a name")
		}
		return relay.Outcome{Success: true}, nil
	})

	classify := relay.NewNode("classify", relay.Decision, func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
		doc, err := documentFrom(s)
		if err != nil {
			return relay.Outcome{}, err
		}
		kind := "text"
		if scanExtensions[strings.ToLower(filepath.Ext(doc.Name))] {
			kind = "scan"
		}
		return relay.Outcome{Success: true, Patch: map[string]any{"kind": kind}}, nil
	})

	ocr := relay.NewNode("ocr", relay.Transform, func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
		doc, err := documentFrom(s)
		if err != nil {
			return relay.Outcome{}, err
		}
		text, err := cfg.OCR.Recognize(ctx, doc.Ref)
		if err != nil {
			return relay.Outcome{Success: false, Error: fmt.Sprintf("ocr: %v", err)}, nil
		}
		return relay.Outcome{Success: true, Patch: map[string]any{"text": text}}, nil
	})

	parse := relay.NewNode("parse", relay.Transform, func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
		doc, err := documentFrom(s)
		if err != nil {
			return relay.Outcome{}, err
		}
		text := strings.TrimSpace(doc.Content)
		if text == "" {
			return relay.Outcome{Success: false, Error: "document has no content"}, nil
		}
		return relay.Outcome{Success: true, Patch: map[string]any{"text": text}}, nil
	})

	extract := relay.NewNode("extract", relay.Transform, func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
		text, _ := s.Get("text")
		str, _ := text.(string)
		fields, confidence, err := cfg.Extractor.Extract(ctx, str)
		if err != nil {
			return relay.Outcome{Success: false, Error: fmt.Sprintf("extract: %v", err)}, nil
		}
		return relay.Outcome{Success: true, Patch: map[string]any{
			"fields":     fields,
			"confidence": confidence,
		}}, nil
	})

	validate := relay.NewNode("validate", relay.Decision, func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
		fields, _ := s.Get("fields")
		fieldMap, _ := fields.(map[string]any)
		confidence := 0.0
		if c, ok := s.Get("confidence"); ok {
			confidence, _ = c.(float64)
		}
		needsReview := len(fieldMap) == 0 || confidence < minConfidence
		return relay.Outcome{Success: true, Patch: map[string]any{"needs_review": needsReview}}, nil
	})

	store := relay.NewNode("store", relay.Sink, func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
		doc, err := documentFrom(s)
		if err != nil {
			return relay.Outcome{}, err
		}
		fields, _ := s.Get("fields")
		fieldMap, _ := fields.(map[string]any)
		id, err := cfg.Store.Save(ctx, doc, fieldMap)
		if err != nil {
			return relay.Outcome{Success: false, Error: fmt.Sprintf("store: %v", err)}, nil
		}
		return relay.Outcome{Success: true, Patch: map[string]any{
			"stored_id": id,
			"status":    "stored",
		}}, nil
	})

	review := relay.NewNode("review", relay.Sink, func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
		return relay.Outcome{Success: true, Patch: map[string]any{"status": "needs_review"}}, nil
	})

	return relay.NewBuilder("document-intake").
		Add(intake).
		Add(classify).
		Add(ocr).
		Add(parse).
		Add(extract).
		Add(validate).
		Add(store).
		Add(review).
		Connect("intake", "classify").
		Connect("classify", "ocr",
			relay.EdgeWhen(relay.DataEquals("kind", "scan")),
			relay.EdgePriority(10),
			relay.EdgeLabel("scan")).
		Connect("classify", "parse").
		Connect("ocr", "extract").
		Connect("parse", "extract").
		Connect("extract", "validate").
		Connect("validate", "review",
			relay.EdgeWhen(relay.DataTruthy("needs_review")),
			relay.EdgePriority(10),
			relay.EdgeLabel("low-confidence")).
		Connect("validate", "store").
		Entry("intake").
		Exit("store", "review").
		Build()
}

// documentFrom reads the document off the run's data. The intake graph is
// seeded with Input.
func documentFrom(s *relay.State) (Document, error) {
	v, ok := s.Get("document")
	if !ok {
		return Document{}, fmt.Errorf("no document in state")
	}
	switch doc := v.(type) {
	case Document:
		return doc, nil
	case map[string]any:
		get := func(key string) string {
			str, _ := doc[key].(string)
			return str
		}
		return Document{
			ID:      get("id"),
			Name:    get("name"),
			Ref:     get("ref"),
			Content: get("content"),
		}, nil
	default:
		return Document{}, fmt.Errorf("unexpected document type %T", v)
	}
}

// Input builds the initial data for one document run.
func Input(doc Document) map[string]any {
	return map[string]any{"document": doc}
}
