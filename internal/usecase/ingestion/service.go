package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/transferguard/internal/domain"
	"github.com/kailas-cloud/transferguard/internal/domain/chunk"
	domdoc "github.com/kailas-cloud/transferguard/internal/domain/document"
	"github.com/kailas-cloud/transferguard/internal/domain/rule"
	"github.com/kailas-cloud/transferguard/internal/metrics"
	"github.com/kailas-cloud/transferguard/internal/repository/vector"
)

// Failure reasons recorded on INGESTION_FAILED documents.
const (
	ReasonUnsupportedFormat = "unsupported_format"
	ReasonEmptyDocument     = "empty_document"
	ReasonDimensionMismatch = "dimension_mismatch"
	ReasonExtractionFault   = "extraction_fault"
	ReasonEmbeddingError    = "embedding_provider_error"
	ReasonIndexUnavailable  = "index_unavailable"
	ReasonCancelled         = "cancelled"
	ReasonInterrupted       = "interrupted"
	ReasonInternal          = "internal_error"
)

const inlineLocation = "inline"

// Stats summarises the knowledge store.
type Stats struct {
	TotalDocuments int
	TotalChunks    int
	// ByDocumentType counts documents, not chunks, per type.
	ByDocumentType map[string]int
	IndexEntries   int
	Dimension      int
}

// Result is one retrieved chunk.
type Result struct {
	ChunkID    string
	DocumentID string
	Score      float64
	Text       string
}

// Service drives the document lifecycle: extraction, chunking, embedding, rule
// extraction and the commit into the chunk store, rule store and vector index.
type Service struct {
	docs      DocumentRepository
	rules     RuleRepository
	index     Index
	text      TextExtractor
	chunker   Chunker
	extractor RuleExtractor
	embedder  domain.Embedder

	typeChunkers   map[domdoc.Type]Chunker
	guard          *inflight
	persistOnWrite bool
	now            func() time.Time
	logger         *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPersistOnWrite controls whether the index snapshot is written after every mutation.
func WithPersistOnWrite(v bool) Option {
	return func(s *Service) { s.persistOnWrite = v }
}

// WithTypeChunker splits documents of type t with c instead of the default chunker.
func WithTypeChunker(t domdoc.Type, c Chunker) Option {
	return func(s *Service) {
		if c != nil {
			s.typeChunkers[t] = c
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an ingestion service.
func New(
	docs DocumentRepository,
	rules RuleRepository,
	index Index,
	text TextExtractor,
	chunker Chunker,
	extractor RuleExtractor,
	embedder domain.Embedder,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		docs:           docs,
		rules:          rules,
		index:          index,
		text:           text,
		chunker:        chunker,
		extractor:      extractor,
		embedder:       embedder,
		typeChunkers:   make(map[domdoc.Type]Chunker),
		guard:          newInflight(),
		persistOnWrite: true,
		now:            time.Now,
		logger:         logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register records an uploaded file. An existing document is reset to UPLOADED.
func (s *Service) Register(ctx context.Context, id, location string, docType domdoc.Type) (domdoc.Document, error) {
	if s.guard.busy(id) {
		return domdoc.Document{}, fmt.Errorf("register %s: %w", id, domain.ErrIngestionInProgress)
	}
	docType, err := domdoc.ParseType(string(docType))
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("register %s: %w", id, err)
	}
	now := s.now()
	doc, err := s.docs.Get(ctx, id)
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound):
		doc, err = domdoc.New(id, location, docType, now)
		if err != nil {
			return domdoc.Document{}, fmt.Errorf("register %s: %w", id, err)
		}
	case err != nil:
		return domdoc.Document{}, fmt.Errorf("get document: %w", err)
	default:
		doc = doc.Reupload(location, docType, now)
	}
	if err := s.docs.Save(ctx, doc); err != nil {
		return domdoc.Document{}, fmt.Errorf("save document: %w", err)
	}
	return doc, nil
}

// IngestDocument extracts the file at filePath and runs the full pipeline.
// It returns the number of chunks indexed.
func (s *Service) IngestDocument(ctx context.Context, id, filePath string, docType domdoc.Type) (int, error) {
	chunks, err := s.run(ctx, id, filePath, docType, func(ctx context.Context) (string, error) {
		return s.text.Extract(ctx, filePath)
	})
	return len(chunks), err
}

// Ingest runs the pipeline over already extracted text and returns the stored chunks.
func (s *Service) Ingest(ctx context.Context, id, rawText string, docType domdoc.Type) ([]chunk.Chunk, error) {
	return s.run(ctx, id, "", docType, func(context.Context) (string, error) {
		if strings.TrimSpace(rawText) == "" {
			return "", domain.ErrEmptyDocument
		}
		return rawText, nil
	})
}

func (s *Service) run(
	ctx context.Context, id, location string, docType domdoc.Type,
	text func(context.Context) (string, error),
) ([]chunk.Chunk, error) {
	if !s.guard.acquire(id) {
		metrics.IngestionTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("ingest %s: %w", id, domain.ErrIngestionInProgress)
	}
	defer s.guard.release(id)

	start := s.now()
	doc, err := s.prepare(ctx, id, location, docType, start)
	if err != nil {
		metrics.IngestionTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	chunks, rules, committed, err := s.process(ctx, doc, text)
	if err != nil {
		s.fail(ctx, doc, err, committed)
		metrics.IngestionTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	doc, err = doc.MarkProcessed(len(chunks), s.now())
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", id, err)
	}
	if err := s.docs.Save(context.WithoutCancel(ctx), doc); err != nil {
		metrics.IngestionTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("save document: %w", err)
	}

	elapsed := s.now().Sub(start)
	metrics.IngestionTotal.WithLabelValues("processed").Inc()
	metrics.IngestionDuration.Observe(elapsed.Seconds())
	s.logger.Info("document ingested",
		zap.String("document_id", id),
		zap.String("document_type", string(doc.Type())),
		zap.Int("version", doc.Version()),
		zap.Int("chunks", len(chunks)),
		zap.Int("rules", rules),
		zap.Duration("duration", elapsed),
	)
	return chunks, nil
}

// prepare loads or registers the document and moves it into PROCESSING.
func (s *Service) prepare(
	ctx context.Context, id, location string, docType domdoc.Type, now time.Time,
) (domdoc.Document, error) {
	docType, err := domdoc.ParseType(string(docType))
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("ingest %s: %w", id, err)
	}
	doc, err := s.docs.Get(ctx, id)
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound):
		if location == "" {
			location = inlineLocation
		}
		doc, err = domdoc.New(id, location, docType, now)
		if err != nil {
			return domdoc.Document{}, fmt.Errorf("ingest %s: %w", id, err)
		}
	case err != nil:
		return domdoc.Document{}, fmt.Errorf("get document: %w", err)
	default:
		if location == "" {
			location = doc.Location()
		}
		if location != doc.Location() || docType != doc.Type() {
			doc = doc.Reupload(location, docType, now)
		}
	}

	doc, err = doc.StartProcessing(now)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("ingest %s: %w", id, err)
	}
	if err := s.docs.Save(ctx, doc); err != nil {
		return domdoc.Document{}, fmt.Errorf("save document: %w", err)
	}
	return doc, nil
}

// process builds chunks and rules for the next version and commits them.
// committed reports whether any store was written before the failure.
func (s *Service) process(
	ctx context.Context, doc domdoc.Document, text func(context.Context) (string, error),
) (chunks []chunk.Chunk, rules int, committed bool, err error) {
	raw, err := text(ctx)
	if err != nil {
		return nil, 0, false, classifyExtract(ctx, err)
	}
	segments := s.chunkerFor(doc.Type()).Split(raw)
	if len(segments) == 0 {
		return nil, 0, false, fmt.Errorf("chunk %s: %w", doc.ID(), domain.ErrEmptyDocument)
	}

	vecs, err := domain.EmbedAll(ctx, s.embedder, segments, s.index.Dimension())
	if err != nil {
		return nil, 0, false, classifyEmbed(ctx, err)
	}

	version := doc.Version() + 1
	chunks = make([]chunk.Chunk, len(segments))
	entries := make([]vector.Entry, len(segments))
	for i, seg := range segments {
		chunks[i] = chunk.New(doc.ID(), version, i, seg).WithVector(vecs[i])
		entries[i] = vector.Entry{ChunkID: chunks[i].ID(), DocumentID: doc.ID(), Vector: vecs[i]}
	}
	extracted := s.extractor.Extract(chunks, doc.Type())

	if err := ctx.Err(); err != nil {
		return nil, 0, false, err
	}
	if err := s.docs.ReplaceChunks(ctx, doc.ID(), chunks); err != nil {
		return nil, 0, true, fmt.Errorf("store chunks: %w", err)
	}
	if err := s.rules.Publish(ctx, rule.NewBatch(doc.ID(), version, extracted)); err != nil {
		return nil, 0, true, fmt.Errorf("publish rules: %w", err)
	}
	if err := s.index.ReplaceSource(doc.ID(), string(doc.Type()), entries); err != nil {
		return nil, 0, true, fmt.Errorf("index chunks: %w", err)
	}
	if s.persistOnWrite {
		if err := s.index.Persist(ctx); err != nil {
			return nil, 0, true, fmt.Errorf("persist index: %w", err)
		}
	}
	return chunks, len(extracted), true, nil
}

func (s *Service) chunkerFor(t domdoc.Type) Chunker {
	if c, ok := s.typeChunkers[t]; ok {
		return c
	}
	return s.chunker
}

// fail records INGESTION_FAILED. A partially committed version is removed so the
// stores never point at each other inconsistently.
func (s *Service) fail(ctx context.Context, doc domdoc.Document, cause error, committed bool) {
	ctx = context.WithoutCancel(ctx)
	reason := FailureReason(cause)
	if committed {
		if _, err := s.removeVectors(ctx, doc.ID()); err != nil {
			s.logger.Warn("cleanup after failed ingestion",
				zap.String("document_id", doc.ID()), zap.Error(err))
		}
		doc = doc.ClearChunks(s.now())
	}
	failed, err := doc.MarkFailed(reason, s.now())
	if err != nil {
		s.logger.Error("mark document failed", zap.String("document_id", doc.ID()), zap.Error(err))
		return
	}
	if err := s.docs.Save(ctx, failed); err != nil {
		s.logger.Error("save failed document", zap.String("document_id", doc.ID()), zap.Error(err))
		return
	}
	s.logger.Warn("document ingestion failed",
		zap.String("document_id", doc.ID()),
		zap.String("reason", reason),
		zap.Error(cause),
	)
}

// FailureReason maps an ingestion error to the reason stored on the document.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCancelled
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return ReasonUnsupportedFormat
	case errors.Is(err, domain.ErrEmptyDocument):
		return ReasonEmptyDocument
	case errors.Is(err, domain.ErrVectorDimMismatch):
		return ReasonDimensionMismatch
	case errors.Is(err, domain.ErrExtractionFault):
		return ReasonExtractionFault
	case errors.Is(err, domain.ErrEmbeddingProviderError):
		return ReasonEmbeddingError
	case errors.Is(err, domain.ErrIndexUnavailable):
		return ReasonIndexUnavailable
	default:
		return ReasonInternal
	}
}

func classifyExtract(ctx context.Context, err error) error {
	if ctx.Err() != nil ||
		errors.Is(err, domain.ErrUnsupportedFormat) ||
		errors.Is(err, domain.ErrEmptyDocument) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrExtractionFault, err)
}

func classifyEmbed(ctx context.Context, err error) error {
	if ctx.Err() != nil ||
		errors.Is(err, domain.ErrVectorDimMismatch) ||
		errors.Is(err, domain.ErrEmbeddingProviderError) {
		return err
	}
	return fmt.Errorf("embed chunks: %w: %w", domain.ErrEmbeddingProviderError, err)
}

// DeleteDocumentVectors removes the document's index entries, chunks and rule batch.
// The document record stays. Deleting twice is a no-op.
func (s *Service) DeleteDocumentVectors(ctx context.Context, id string) (int, error) {
	if !s.guard.acquire(id) {
		return 0, fmt.Errorf("delete vectors %s: %w", id, domain.ErrIngestionInProgress)
	}
	defer s.guard.release(id)

	n, err := s.removeVectors(ctx, id)
	if err != nil {
		return 0, err
	}
	doc, err := s.docs.Get(ctx, id)
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound):
		return n, nil
	case err != nil:
		return n, fmt.Errorf("get document: %w", err)
	}
	if doc.ChunkCount() != 0 {
		if err := s.docs.Save(ctx, doc.ClearChunks(s.now())); err != nil {
			return n, fmt.Errorf("save document: %w", err)
		}
	}
	s.logger.Info("document vectors deleted", zap.String("document_id", id), zap.Int("vectors", n))
	return n, nil
}

// DeleteDocument removes the vectors and then the document record.
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	if !s.guard.acquire(id) {
		return fmt.Errorf("delete %s: %w", id, domain.ErrIngestionInProgress)
	}
	defer s.guard.release(id)

	if _, err := s.removeVectors(ctx, id); err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	s.logger.Info("document deleted", zap.String("document_id", id))
	return nil
}

func (s *Service) removeVectors(ctx context.Context, id string) (int, error) {
	n, err := s.index.DeleteBySource(id)
	if err != nil {
		return 0, fmt.Errorf("delete from index: %w", err)
	}
	if err := s.docs.DeleteChunks(ctx, id); err != nil {
		return n, fmt.Errorf("delete chunks: %w", err)
	}
	if err := s.rules.Delete(ctx, id); err != nil {
		return n, fmt.Errorf("delete rules: %w", err)
	}
	if s.persistOnWrite && n > 0 {
		if err := s.index.Persist(ctx); err != nil {
			return n, fmt.Errorf("persist index: %w", err)
		}
	}
	return n, nil
}

// Reconcile marks documents left in PROCESSING by a crashed ingestion as failed.
// It returns the number of documents updated.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	docs, err := s.docs.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list documents: %w", err)
	}
	fixed := 0
	for _, doc := range docs {
		if doc.Status() != domdoc.StatusProcessing || !s.guard.acquire(doc.ID()) {
			continue
		}
		failed, err := doc.MarkFailed(ReasonInterrupted, s.now())
		if err == nil {
			err = s.docs.Save(ctx, failed)
		}
		s.guard.release(doc.ID())
		if err != nil {
			return fixed, fmt.Errorf("reconcile %s: %w", doc.ID(), err)
		}
		fixed++
		s.logger.Warn("interrupted ingestion marked failed", zap.String("document_id", doc.ID()))
	}
	return fixed, nil
}

// Restore loads the index snapshot and warms the rule snapshot for processed documents.
func (s *Service) Restore(ctx context.Context) error {
	if err := s.index.Load(ctx); err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	docs, err := s.docs.List(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Processed() {
			ids = append(ids, d.ID())
		}
	}
	warmed, err := s.rules.Warm(ctx, ids)
	if err != nil {
		return fmt.Errorf("warm rules: %w", err)
	}
	st := s.index.Stats()
	s.logger.Info("knowledge store restored",
		zap.Int("index_entries", st.Entries),
		zap.Int("rule_batches", warmed),
	)
	return nil
}

// Stats reports document and index counters.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	docs, err := s.docs.List(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list documents: %w", err)
	}
	out := Stats{TotalDocuments: len(docs), ByDocumentType: make(map[string]int)}
	for _, t := range domdoc.Types() {
		out.ByDocumentType[string(t)] = 0
	}
	for _, d := range docs {
		out.TotalChunks += d.ChunkCount()
		out.ByDocumentType[string(d.Type())]++
	}
	st := s.index.Stats()
	out.IndexEntries = st.Entries
	out.Dimension = st.Dimension
	return out, nil
}

// Search returns the chunks closest to query. An empty docType searches every type.
func (s *Service) Search(ctx context.Context, query string, topK int, docType domdoc.Type) ([]Result, error) {
	if strings.TrimSpace(query) == "" || topK <= 0 {
		return []Result{}, nil
	}
	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, classifyEmbed(ctx, err)
	}
	var f vector.Filter
	if docType != "" {
		f.Types = []string{string(docType)}
	}
	hits, err := s.index.Search(emb.Embedding, topK, f)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		c, err := s.docs.Chunk(ctx, h.ChunkID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read chunk: %w", err)
		}
		out = append(out, Result{ChunkID: h.ChunkID, DocumentID: h.DocumentID, Score: h.Score, Text: c.Text()})
	}
	return out, nil
}
