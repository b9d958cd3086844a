package compliance

import (
	"context"

	"github.com/kailas-cloud/transferguard/internal/domain/chunk"
	domdoc "github.com/kailas-cloud/transferguard/internal/domain/document"
	"github.com/kailas-cloud/transferguard/internal/domain/rule"
	"github.com/kailas-cloud/transferguard/internal/repository/vector"
)

// Index is the nearest-neighbour search the resolver queries.
type Index interface {
	Search(query []float32, topK int, f vector.Filter) ([]vector.Hit, error)
}

// ChunkReader loads indexed chunks.
type ChunkReader interface {
	Chunk(ctx context.Context, chunkID string) (chunk.Chunk, error)
}

// DocumentReader loads document records.
type DocumentReader interface {
	Get(ctx context.Context, id string) (domdoc.Document, error)
}

// RuleReader loads the published rule batch of a document.
type RuleReader interface {
	Get(ctx context.Context, documentID string) (rule.Batch, error)
}
