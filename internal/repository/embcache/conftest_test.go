package embcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/transferguard/internal/db/memory"
	"github.com/kailas-cloud/transferguard/internal/domain"
)

type mockEmbedder struct {
	result     domain.EmbeddingResult
	err        error
	calls      int
	batchCalls int
	batchSizes []int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	return m.result, m.err
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchCalls++
	m.batchSizes = append(m.batchSizes, len(texts))
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = m.result.Embedding
	}
	return domain.BatchEmbeddingResult{
		Embeddings:  embeddings,
		TotalTokens: m.result.TotalTokens * len(texts),
	}, nil
}

// recordingStore wraps the in-memory store and remembers TTLs and injected failures.
type recordingStore struct {
	*memory.Store
	ttls   []time.Duration
	getErr error
	setErr error
}

func (r *recordingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.Store.Get(ctx, key)
}

func (r *recordingStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	r.ttls = append(r.ttls, ttl)
	if r.setErr != nil {
		return r.setErr
	}
	return r.Store.SetWithTTL(ctx, key, value, ttl)
}

var errStoreDown = errors.New("store down")

func newTestCachedEmbedder(t *testing.T, inner *mockEmbedder) (*CachedEmbedder, *recordingStore) {
	t.Helper()
	rs := &recordingStore{Store: memory.NewStore()}
	return New(inner, rs, "hash/384", nil, zap.NewNop()), rs
}
