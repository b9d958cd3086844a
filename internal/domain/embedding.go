package domain

import (
	"context"
	"fmt"
)

// Embedder turns text into a fixed-dimensionality vector. D is fixed process-wide.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple texts in a single call.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries multiple embedding vectors and aggregate token usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// BatchFallback embeds texts one by one through Embed.
func BatchFallback(ctx context.Context, e Embedder, texts []string) (BatchEmbeddingResult, error) {
	out := BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i, text := range texts {
		res, err := e.Embed(ctx, text)
		if err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("fallback embed [%d]: %w", i, err)
		}
		out.Embeddings[i] = res.Embedding
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}
	return out, nil
}

// EmbedAll embeds texts natively when e supports batching and one by one otherwise.
// Every returned vector is checked against dim.
func EmbedAll(ctx context.Context, e Embedder, texts []string, dim int) ([][]float32, error) {
	var (
		res BatchEmbeddingResult
		err error
	)
	if be, ok := e.(BatchEmbedder); ok {
		res, err = be.BatchEmbed(ctx, texts)
	} else {
		res, err = BatchFallback(ctx, e, texts)
	}
	if err != nil {
		return nil, err
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed all: got %d vectors for %d texts: %w",
			len(res.Embeddings), len(texts), ErrEmbeddingProviderError)
	}
	for i, v := range res.Embeddings {
		if err := CheckDimensions(v, dim); err != nil {
			return nil, fmt.Errorf("embed all [%d]: %w", i, err)
		}
	}
	return res.Embeddings, nil
}

// CheckDimensions returns ErrVectorDimMismatch when len(v) != dim.
func CheckDimensions(v []float32, dim int) error {
	if len(v) != dim {
		return fmt.Errorf("%w: expected %d, got %d", ErrVectorDimMismatch, dim, len(v))
	}
	return nil
}
