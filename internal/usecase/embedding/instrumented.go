package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/transferguard/internal/domain"
	"github.com/kailas-cloud/transferguard/internal/metrics"
)

// DefaultMaxBatchSize caps a single batch sent to the inner embedder.
const DefaultMaxBatchSize = 256

// InstrumentedEmbedder wraps an Embedder with logging, metrics and a dimension guard.
// Every vector leaving it has exactly dim components.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	provider string
	model    string
	dim      int
	logger   *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder with observability.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string, dim int, logger *zap.Logger,
) *InstrumentedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedEmbedder{
		inner:    inner,
		provider: provider,
		model:    model,
		dim:      dim,
		logger:   logger,
	}
}

// Dimensions returns the enforced vector size.
func (p *InstrumentedEmbedder) Dimensions() int { return p.dim }

// Embed delegates to the inner embedder and validates the vector size.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	start := time.Now()
	result, err := p.inner.Embed(ctx, text)
	duration := time.Since(start)

	if err != nil {
		p.observe("error", duration)
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	if err := domain.CheckDimensions(result.Embedding, p.dim); err != nil {
		p.observe("dimension_mismatch", duration)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	p.observe("success", duration)

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

// BatchEmbed splits texts into sub-batches of DefaultMaxBatchSize and validates every vector.
func (p *InstrumentedEmbedder) BatchEmbed(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()
	var out domain.BatchEmbeddingResult

	for offset := 0; offset < len(texts); offset += DefaultMaxBatchSize {
		end := min(offset+DefaultMaxBatchSize, len(texts))
		part := texts[offset:end]

		res, err := p.embedInner(ctx, part)
		if err != nil {
			p.observe("error", time.Since(start))
			p.logger.Error("Batch embedding request failed",
				zap.String("provider", p.provider),
				zap.Int("chunk_offset", offset),
				zap.Int("chunk_size", len(part)),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}
		if len(res.Embeddings) != len(part) {
			p.observe("error", time.Since(start))
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: got %d vectors for %d texts: %w",
				len(res.Embeddings), len(part), domain.ErrEmbeddingProviderError)
		}
		for i, v := range res.Embeddings {
			if err := domain.CheckDimensions(v, p.dim); err != nil {
				p.observe("dimension_mismatch", time.Since(start))
				return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed [%d]: %w", offset+i, err)
			}
		}

		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}

	duration := time.Since(start)
	p.observe("success", duration)
	p.logger.Debug("Batch embedding completed",
		zap.String("provider", p.provider),
		zap.Duration("duration", duration),
		zap.Int("batch_size", len(texts)),
		zap.Int("total_tokens", out.TotalTokens),
	)
	return out, nil
}

// HealthCheck delegates to the inner embedder when it supports health checks.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (p *InstrumentedEmbedder) embedInner(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	if be, ok := p.inner.(domain.BatchEmbedder); ok {
		res, err := be.BatchEmbed(ctx, texts)
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("inner batch embed: %w", err)
		}
		return res, nil
	}
	res, err := domain.BatchFallback(ctx, p.inner, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("inner batch fallback: %w", err)
	}
	return res, nil
}

func (p *InstrumentedEmbedder) observe(status string, d time.Duration) {
	metrics.EmbeddingRequestsTotal.WithLabelValues(p.provider, p.model, status).Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(p.provider, p.model).Observe(d.Seconds())
	if status != "success" {
		metrics.EmbeddingErrorsTotal.WithLabelValues(p.provider, p.model, status).Inc()
	}
}
