package embedding

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/kailas-cloud/transferguard/internal/domain"
)

// DefaultDimensions is the vector size of the local hashing embedder.
const DefaultDimensions = 384

// HashEmbedder is an offline, deterministic embedder. Lower-cased word unigrams and
// bigrams are feature-hashed into signed buckets and the result is L2-normalized, so
// texts sharing vocabulary get a high cosine similarity.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hashing embedder producing dim-sized vectors.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultDimensions
	}
	return &HashEmbedder{dim: dim}
}

// Dimensions returns the vector size.
func (h *HashEmbedder) Dimensions() int { return h.dim }

// Embed implements domain.Embedder.
func (h *HashEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: h.vector(text)}, nil
}

// BatchEmbed implements domain.BatchEmbedder.
func (h *HashEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
		out.Embeddings[i] = h.vector(t)
	}
	return out, nil
}

// HealthCheck always succeeds; there is nothing remote to reach.
func (h *HashEmbedder) HealthCheck(_ context.Context) error { return nil }

func (h *HashEmbedder) vector(text string) []float32 {
	acc := make([]float64, h.dim)
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		// Punctuation-only input still gets a stable non-zero vector.
		h.add(acc, strings.TrimSpace(text), 1)
	}
	for i, tok := range tokens {
		h.add(acc, tok, 1)
		if i > 0 {
			h.add(acc, tokens[i-1]+" "+tok, 1)
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	out := make([]float32, h.dim)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range acc {
		out[i] = float32(v / norm)
	}
	return out
}

func (h *HashEmbedder) add(acc []float64, feature string, weight float64) {
	sum := xxhash.Sum64String(feature)
	bucket := sum % uint64(h.dim)
	if sum>>63 == 1 {
		weight = -weight
	}
	acc[bucket] += weight
}

// Tokenize lower-cases text and splits it on anything that is not a letter or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
