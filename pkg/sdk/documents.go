package transferguard

import (
	"context"
	"fmt"
	"time"

	domdoc "github.com/kailas-cloud/transferguard/internal/domain/document"
)

// DocumentType classifies an uploaded document.
type DocumentType string

// DocumentType constants.
const (
	DocumentRules     DocumentType = "rules"
	DocumentSanctions DocumentType = "sanctions"
	DocumentOther     DocumentType = "other"
)

// DocumentStats summarizes the knowledge store.
type DocumentStats struct {
	TotalDocuments int
	TotalChunks    int
	ByType         map[DocumentType]int
	IndexEntries   int
	Dimension      int
}

// SearchHit is a retrieved chunk.
type SearchHit struct {
	ChunkID    string
	DocumentID string
	Score      float64
	Text       string
}

// DocumentService manages the ingestion lifecycle.
type DocumentService struct {
	svc ingestionUseCase
	obs *observer
}

// Ingest extracts the file at path and indexes it. Returns the number of chunks.
func (s *DocumentService) Ingest(ctx context.Context, id, path string, t DocumentType) (n int, err error) {
	start := time.Now()
	defer func() { s.obs.observe("document.ingest", start, err) }()

	docType, err := domdoc.ParseType(string(t))
	if err != nil {
		return 0, err
	}
	n, err = s.svc.IngestDocument(ctx, id, path, docType)
	if err != nil {
		return 0, fmt.Errorf("ingest %s: %w", id, err)
	}
	return n, nil
}

// IngestText indexes already extracted text. Returns the number of chunks.
func (s *DocumentService) IngestText(ctx context.Context, id, text string, t DocumentType) (n int, err error) {
	start := time.Now()
	defer func() { s.obs.observe("document.ingest_text", start, err) }()

	docType, err := domdoc.ParseType(string(t))
	if err != nil {
		return 0, err
	}
	chunks, err := s.svc.Ingest(ctx, id, text, docType)
	if err != nil {
		return 0, fmt.Errorf("ingest %s: %w", id, err)
	}
	return len(chunks), nil
}

// DeleteVectors removes a document's chunks, vectors and rules. The record stays.
func (s *DocumentService) DeleteVectors(ctx context.Context, id string) (n int, err error) {
	start := time.Now()
	defer func() { s.obs.observe("document.delete_vectors", start, err) }()

	n, err = s.svc.DeleteDocumentVectors(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("delete vectors %s: %w", id, err)
	}
	return n, nil
}

// Delete removes the document and everything derived from it.
func (s *DocumentService) Delete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { s.obs.observe("document.delete", start, err) }()

	if err = s.svc.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// Stats reports document, chunk and index counts.
func (s *DocumentService) Stats(ctx context.Context) (out DocumentStats, err error) {
	start := time.Now()
	defer func() { s.obs.observe("document.stats", start, err) }()

	st, err := s.svc.Stats(ctx)
	if err != nil {
		return DocumentStats{}, fmt.Errorf("stats: %w", err)
	}
	byType := make(map[DocumentType]int, len(st.ByDocumentType))
	for k, v := range st.ByDocumentType {
		byType[DocumentType(k)] = v
	}
	return DocumentStats{
		TotalDocuments: st.TotalDocuments,
		TotalChunks:    st.TotalChunks,
		ByType:         byType,
		IndexEntries:   st.IndexEntries,
		Dimension:      st.Dimension,
	}, nil
}

// Search returns the k chunks most similar to query. An empty type searches everything.
func (s *DocumentService) Search(ctx context.Context, query string, k int, t DocumentType) (hits []SearchHit, err error) {
	start := time.Now()
	defer func() { s.obs.observe("document.search", start, err) }()

	var docType domdoc.Type
	if t != "" {
		if docType, err = domdoc.ParseType(string(t)); err != nil {
			return nil, err
		}
	}
	results, err := s.svc.Search(ctx, query, k, docType)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	hits = make([]SearchHit, len(results))
	for i, r := range results {
		hits[i] = SearchHit{ChunkID: r.ChunkID, DocumentID: r.DocumentID, Score: r.Score, Text: r.Text}
	}
	return hits, nil
}
