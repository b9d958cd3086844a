// Package vector holds the in-process nearest-neighbour index over chunk embeddings.
package vector

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/transferguard/internal/domain"
	"github.com/kailas-cloud/transferguard/internal/metrics"
)

// DefaultSnapshotKey is the KV key the snapshot is written under.
const DefaultSnapshotKey = domain.KeyPrefix + "index:snapshot"

// kvStore is the consumer interface for snapshot persistence (ISP).
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Entry is a vector bound to its chunk and source document.
type Entry struct {
	ChunkID    string
	DocumentID string
	Vector     []float32
}

// Hit is a single search result.
type Hit struct {
	ChunkID    string
	DocumentID string
	Score      float64
}

// Filter restricts a search. Empty fields match everything.
type Filter struct {
	DocumentIDs []string
	Types       []string
}

func (f Filter) empty() bool { return len(f.DocumentIDs) == 0 && len(f.Types) == 0 }

// Stats describes the index contents.
type Stats struct {
	Entries   int
	Dimension int
	Sources   int
}

type entry struct {
	seq        uint64
	chunkID    string
	documentID string
	vector     []float32 // L2-normalized
}

// Index is a flat cosine-similarity index. A single writer excludes readers,
// so a search never observes a partially applied write.
type Index struct {
	mu          sync.RWMutex
	dim         int
	entries     map[string]*entry // by chunk id
	sources     map[string]string // document id -> document type
	nextSeq     uint64
	closed      bool
	store       kvStore
	snapshotKey string
	logger      *zap.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithSnapshotKey overrides the KV key used by Persist and Load.
func WithSnapshotKey(key string) Option {
	return func(ix *Index) {
		if key != "" {
			ix.snapshotKey = key
		}
	}
}

// New creates an empty index of fixed dimensionality. The store may be nil,
// in which case Persist and Load are unavailable.
func New(dim int, s kvStore, logger *zap.Logger, opts ...Option) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("index dimension %d: %w", dim, domain.ErrVectorDimMismatch)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ix := &Index{
		dim:         dim,
		entries:     make(map[string]*entry),
		sources:     make(map[string]string),
		store:       s,
		snapshotKey: DefaultSnapshotKey,
		logger:      logger,
	}
	for _, o := range opts {
		o(ix)
	}
	return ix, nil
}

// Dimension returns the configured vector length.
func (ix *Index) Dimension() int { return ix.dim }

// Add inserts or replaces the entry for chunkID. A replacement takes a fresh sequence number.
func (ix *Index) Add(chunkID, documentID string, vec []float32) error {
	if err := domain.CheckDimensions(vec, ix.dim); err != nil {
		return err
	}
	norm := normalize(vec)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return domain.ErrIndexUnavailable
	}
	ix.insertLocked(chunkID, documentID, norm)
	if _, ok := ix.sources[documentID]; !ok {
		ix.sources[documentID] = ""
	}
	metrics.IndexEntries.Set(float64(len(ix.entries)))
	return nil
}

// ReplaceSource drops every entry of documentID and inserts entries in one write.
// All vectors are validated before anything is touched.
func (ix *Index) ReplaceSource(documentID, docType string, entries []Entry) error {
	norms := make([][]float32, len(entries))
	for i, e := range entries {
		if err := domain.CheckDimensions(e.Vector, ix.dim); err != nil {
			return fmt.Errorf("entry %s: %w", e.ChunkID, err)
		}
		norms[i] = normalize(e.Vector)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return domain.ErrIndexUnavailable
	}
	ix.deleteSourceLocked(documentID)
	for i, e := range entries {
		ix.insertLocked(e.ChunkID, documentID, norms[i])
	}
	if len(entries) > 0 {
		ix.sources[documentID] = docType
	}
	metrics.IndexEntries.Set(float64(len(ix.entries)))
	return nil
}

// DeleteBySource removes all entries of documentID and returns how many were removed.
// Deleting an unknown source is not an error.
func (ix *Index) DeleteBySource(documentID string) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return 0, domain.ErrIndexUnavailable
	}
	n := ix.deleteSourceLocked(documentID)
	metrics.IndexEntries.Set(float64(len(ix.entries)))
	return n, nil
}

// Search returns up to topK entries ordered by descending cosine similarity.
// Equal scores keep insertion order.
func (ix *Index) Search(query []float32, topK int, f Filter) ([]Hit, error) {
	if err := domain.CheckDimensions(query, ix.dim); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}
	q := normalize(query)

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return nil, domain.ErrIndexUnavailable
	}

	match := ix.matcher(f)
	type scored struct {
		e     *entry
		score float64
	}
	candidates := make([]scored, 0, len(ix.entries))
	for _, e := range ix.entries {
		if !match(e) {
			continue
		}
		candidates = append(candidates, scored{e: e, score: dot(q, e.vector)})
	}
	slices.SortFunc(candidates, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.e.seq, b.e.seq)
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	hits := make([]Hit, len(candidates))
	for i, c := range candidates {
		hits[i] = Hit{ChunkID: c.e.chunkID, DocumentID: c.e.documentID, Score: c.score}
	}
	return hits, nil
}

// Stats returns a point-in-time view of the index.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	sources := make(map[string]struct{}, len(ix.sources))
	for _, e := range ix.entries {
		sources[e.documentID] = struct{}{}
	}
	return Stats{Entries: len(ix.entries), Dimension: ix.dim, Sources: len(sources)}
}

// Ping reports ErrIndexUnavailable once the index is closed.
func (ix *Index) Ping(_ context.Context) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return domain.ErrIndexUnavailable
	}
	return nil
}

// Close makes every subsequent operation fail with ErrIndexUnavailable.
func (ix *Index) Close() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.closed = true
}

// insertLocked stores the entry. A chunk moved away from another document drops
// that document's source record once it owns no entries.
func (ix *Index) insertLocked(chunkID, documentID string, norm []float32) {
	prev, moved := ix.entries[chunkID]
	ix.nextSeq++
	ix.entries[chunkID] = &entry{seq: ix.nextSeq, chunkID: chunkID, documentID: documentID, vector: norm}
	if moved && prev.documentID != documentID && !ix.ownsEntriesLocked(prev.documentID) {
		delete(ix.sources, prev.documentID)
	}
}

func (ix *Index) ownsEntriesLocked(documentID string) bool {
	for _, e := range ix.entries {
		if e.documentID == documentID {
			return true
		}
	}
	return false
}

func (ix *Index) deleteSourceLocked(documentID string) int {
	n := 0
	for id, e := range ix.entries {
		if e.documentID == documentID {
			delete(ix.entries, id)
			n++
		}
	}
	delete(ix.sources, documentID)
	return n
}

func (ix *Index) matcher(f Filter) func(*entry) bool {
	if f.empty() {
		return func(*entry) bool { return true }
	}
	var ids, types map[string]struct{}
	if len(f.DocumentIDs) > 0 {
		ids = toSet(f.DocumentIDs)
	}
	if len(f.Types) > 0 {
		types = toSet(f.Types)
	}
	return func(e *entry) bool {
		if ids != nil {
			if _, ok := ids[e.documentID]; !ok {
				return false
			}
		}
		if types != nil {
			if _, ok := types[ix.sources[e.documentID]]; !ok {
				return false
			}
		}
		return true
	}
}

func toSet(vals []string) map[string]struct{} {
	m := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		m[v] = struct{}{}
	}
	return m
}

// normalize returns an L2-normalized copy. A zero vector stays zero.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
