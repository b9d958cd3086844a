package ingestion

import (
	"context"

	"github.com/kailas-cloud/transferguard/internal/domain/chunk"
	domdoc "github.com/kailas-cloud/transferguard/internal/domain/document"
	"github.com/kailas-cloud/transferguard/internal/domain/rule"
	"github.com/kailas-cloud/transferguard/internal/repository/vector"
)

// DocumentRepository stores document records and their chunks.
type DocumentRepository interface {
	Save(ctx context.Context, doc domdoc.Document) error
	Get(ctx context.Context, id string) (domdoc.Document, error)
	List(ctx context.Context) ([]domdoc.Document, error)
	Delete(ctx context.Context, id string) error
	ReplaceChunks(ctx context.Context, documentID string, chunks []chunk.Chunk) error
	DeleteChunks(ctx context.Context, documentID string) error
	Chunk(ctx context.Context, chunkID string) (chunk.Chunk, error)
}

// RuleRepository publishes versioned rule batches.
type RuleRepository interface {
	Publish(ctx context.Context, b rule.Batch) error
	Delete(ctx context.Context, documentID string) error
	Warm(ctx context.Context, documentIDs []string) (int, error)
}

// Index is the vector index written by ingestion.
type Index interface {
	ReplaceSource(documentID, docType string, entries []vector.Entry) error
	DeleteBySource(documentID string) (int, error)
	Search(query []float32, topK int, f vector.Filter) ([]vector.Hit, error)
	Persist(ctx context.Context) error
	Load(ctx context.Context) error
	Stats() vector.Stats
	Dimension() int
}

// TextExtractor turns a stored file into text.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Chunker splits text into segments.
type Chunker interface {
	Split(text string) []string
}

// RuleExtractor derives rules from chunks.
type RuleExtractor interface {
	Extract(chunks []chunk.Chunk, docType domdoc.Type) []rule.Rule
}
