package compliance

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/transferguard/internal/domain"
	domdoc "github.com/kailas-cloud/transferguard/internal/domain/document"
	"github.com/kailas-cloud/transferguard/internal/domain/rule"
	"github.com/kailas-cloud/transferguard/internal/metrics"
	"github.com/kailas-cloud/transferguard/internal/repository/vector"
)

// Defaults for retrieval.
const (
	DefaultTopK      = 3
	DefaultThreshold = 0.35
)

// Sanction sources reported in SanctionResult.
const (
	SourceNone      = "none"
	SourceStatic    = "static"
	SourceRetrieval = "retrieval"
)

// ResolverConfig tunes retrieval.
type ResolverConfig struct {
	TopK      int
	Threshold float64
	// BlacklistedCountries are enforced without retrieval.
	BlacklistedCountries []string
	// MatchBeneficiaryName also checks the beneficiary name against name sanctions.
	MatchBeneficiaryName bool
}

// SanctionResult describes the outcome of a sanctions check.
type SanctionResult struct {
	Matched    bool
	Source     string
	EntityType rule.EntityType
	Value      string
	DocumentID string
	ChunkID    string
	Score      float64
}

// Resolver answers limit and sanctions questions from ingested documents.
type Resolver struct {
	index     Index
	embedder  domain.Embedder
	chunks    ChunkReader
	documents DocumentReader
	rules     RuleReader
	extractor *Extractor
	cfg       ResolverConfig
	blacklist map[string]struct{}
	logger    *zap.Logger
}

// NewResolver creates a Resolver. Zero config values fall back to the defaults.
func NewResolver(
	index Index, embedder domain.Embedder, chunks ChunkReader, documents DocumentReader,
	rules RuleReader, extractor *Extractor, cfg ResolverConfig, logger *zap.Logger,
) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if extractor == nil {
		extractor = NewExtractor()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	blacklist := make(map[string]struct{}, len(cfg.BlacklistedCountries))
	for _, c := range cfg.BlacklistedCountries {
		if n := rule.Normalize(c); n != "" {
			blacklist[n] = struct{}{}
		}
	}
	return &Resolver{
		index: index, embedder: embedder, chunks: chunks, documents: documents,
		rules: rules, extractor: extractor, cfg: cfg, blacklist: blacklist, logger: logger,
	}
}

// PerTransactionLimit returns the most relevant per-transaction limit rule, if any.
func (r *Resolver) PerTransactionLimit(ctx context.Context) (rule.LimitPayload, bool, error) {
	return r.limit(ctx, rule.ScopePerTransaction)
}

// DailyLimit returns the most relevant daily limit rule, if any.
func (r *Resolver) DailyLimit(ctx context.Context) (rule.LimitPayload, bool, error) {
	return r.limit(ctx, rule.ScopeDaily)
}

func (r *Resolver) limit(ctx context.Context, scope rule.Scope) (rule.LimitPayload, bool, error) {
	query := limitQuery(scope)
	hits, err := r.search(ctx, query, []string{string(domdoc.TypeRules)})
	if err != nil {
		return rule.LimitPayload{}, false, err
	}
	for _, h := range hits {
		rules, err := r.rulesForHit(ctx, h)
		if err != nil {
			return rule.LimitPayload{}, false, err
		}
		for _, rl := range rules {
			if rl.Kind() == rule.KindLimit && rl.Limit().Scope == scope {
				r.logger.Debug("limit rule resolved",
					zap.String("scope", string(scope)),
					zap.String("amount", rl.Limit().Amount.String()),
					zap.String("chunk_id", h.ChunkID),
					zap.Float64("score", h.Score),
				)
				return rl.Limit(), true, nil
			}
		}
	}
	return rule.LimitPayload{}, false, nil
}

// CheckSanctions checks the beneficiary country (and name, when enabled) against the
// static blacklist and against sanctions found in ingested documents. Retrieval below
// the similarity threshold never blocks.
func (r *Resolver) CheckSanctions(ctx context.Context, country, name string) (SanctionResult, error) {
	res, err := r.checkSanctions(ctx, country, name)
	if err != nil {
		return SanctionResult{}, err
	}
	result := "clear"
	if res.Matched {
		result = "match"
	}
	metrics.SanctionsChecksTotal.WithLabelValues(result, res.Source).Inc()
	return res, nil
}

func (r *Resolver) checkSanctions(ctx context.Context, country, name string) (SanctionResult, error) {
	if _, ok := r.blacklist[rule.Normalize(country)]; ok {
		return SanctionResult{
			Matched: true, Source: SourceStatic, EntityType: rule.EntityCountry,
			Value: rule.Normalize(country), Score: 1,
		}, nil
	}

	if rule.Normalize(country) != "" {
		res, err := r.retrieveSanction(ctx, rule.EntityCountry, country, countryQuery(country))
		if err != nil || res.Matched {
			return res, err
		}
	}
	if r.cfg.MatchBeneficiaryName && rule.Normalize(name) != "" {
		res, err := r.retrieveSanction(ctx, rule.EntityName, name, nameQuery(name))
		if err != nil || res.Matched {
			return res, err
		}
	}
	return SanctionResult{Source: SourceNone}, nil
}

func (r *Resolver) retrieveSanction(ctx context.Context, et rule.EntityType, value, query string) (SanctionResult, error) {
	hits, err := r.search(ctx, query, []string{string(domdoc.TypeSanctions), string(domdoc.TypeRules)})
	if err != nil {
		return SanctionResult{}, err
	}
	for _, h := range hits {
		rules, err := r.rulesForHit(ctx, h)
		if err != nil {
			return SanctionResult{}, err
		}
		for _, rl := range rules {
			if rl.Sanctions(et, value) {
				return SanctionResult{
					Matched: true, Source: SourceRetrieval, EntityType: et, Value: rl.Sanction().Value,
					DocumentID: h.DocumentID, ChunkID: h.ChunkID, Score: h.Score,
				}, nil
			}
		}
	}
	return SanctionResult{Source: SourceNone}, nil
}

// search embeds the query and returns hits at or above the threshold.
func (r *Resolver) search(ctx context.Context, query string, types []string) ([]vector.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb, err := r.embedder.Embed(ctx, query)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("embed query: %w: %w", domain.ErrEmbeddingProviderError, err)
	}
	hits, err := r.index.Search(emb.Embedding, r.cfg.TopK, vector.Filter{Types: types})
	if err != nil {
		if errors.Is(err, domain.ErrIndexUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("search: %w: %w", domain.ErrIndexUnavailable, err)
	}
	out := hits[:0]
	for _, h := range hits {
		if h.Score >= r.cfg.Threshold {
			out = append(out, h)
		}
	}
	return out, nil
}

// rulesForHit returns the rules of the hit's chunk. The published batch is used when it
// was built from the same document version as the chunk; otherwise the chunk is
// re-extracted, which gives the same result for the same text.
func (r *Resolver) rulesForHit(ctx context.Context, h vector.Hit) ([]rule.Rule, error) {
	c, err := r.chunks.Chunk(ctx, h.ChunkID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// removed between search and read: no evidence
			return nil, nil
		}
		return nil, fmt.Errorf("read chunk %s: %w: %w", h.ChunkID, domain.ErrIndexUnavailable, err)
	}

	batch, err := r.rules.Get(ctx, h.DocumentID)
	switch {
	case err == nil && batch.Version() == c.DocumentVersion():
		return batch.ForChunk(h.ChunkID), nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("read rules of %s: %w: %w", h.DocumentID, domain.ErrExtractionFault, err)
	}

	doc, err := r.documents.Get(ctx, h.DocumentID)
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read document %s: %w: %w", h.DocumentID, domain.ErrExtractionFault, err)
	}
	r.logger.Debug("re-extracting chunk rules",
		zap.String("chunk_id", h.ChunkID),
		zap.Int("chunk_version", c.DocumentVersion()),
		zap.Int("batch_version", batch.Version()),
	)
	return r.extractor.ExtractChunk(c, doc.Type()), nil
}

// Queries are phrased like the statements they look for, so a lexical embedder
// scores a matching statement segment well above the threshold.
func limitQuery(scope rule.Scope) string {
	if scope == rule.ScopeDaily {
		return "daily transfer limit"
	}
	return "per transaction limit"
}

func countryQuery(country string) string {
	return fmt.Sprintf("sanctioned countries: %[1]s. %[1]s is sanctioned.", country)
}

func nameQuery(name string) string {
	return fmt.Sprintf("sanctioned individuals and entities: %[1]s. %[1]s is sanctioned.", name)
}
