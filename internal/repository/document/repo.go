package document

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kailas-cloud/transferguard/internal/domain"
	"github.com/kailas-cloud/transferguard/internal/domain/chunk"
	domdoc "github.com/kailas-cloud/transferguard/internal/domain/document"
)

// store is the consumer interface for documents and chunks (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

// Repo persists documents as hashes and their chunks as one hash per document.
type Repo struct {
	store store
}

// New creates a document repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Save creates or overwrites a document record.
func (r *Repo) Save(ctx context.Context, doc domdoc.Document) error {
	key := docKey(doc.ID())
	if err := r.store.HSet(ctx, key, buildHashFields(doc)); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	if err := r.store.SAdd(ctx, indexKey(), doc.ID()); err != nil {
		return fmt.Errorf("sadd %s: %w", doc.ID(), err)
	}
	return nil
}

// Get returns a document by ID.
func (r *Repo) Get(ctx context.Context, id string) (domdoc.Document, error) {
	key := docKey(id)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("hgetall %s: %w", key, err)
	}
	if len(m) == 0 {
		return domdoc.Document{}, domain.ErrDocumentNotFound
	}
	return parseHashFields(id, m)
}

// List returns all documents ordered by ID. IDs whose record vanished are skipped.
func (r *Repo) List(ctx context.Context) ([]domdoc.Document, error) {
	ids, err := r.store.SMembers(ctx, indexKey())
	if err != nil {
		return nil, fmt.Errorf("smembers: %w", err)
	}
	sort.Strings(ids)

	docs := make([]domdoc.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrDocumentNotFound) {
				continue
			}
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Delete removes a document and its chunks.
func (r *Repo) Delete(ctx context.Context, id string) error {
	key := docKey(id)
	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists %s: %w", key, err)
	}
	if !exists {
		return domain.ErrDocumentNotFound
	}
	if err := r.store.Del(ctx, key, chunksKey(id)); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	if err := r.store.SRem(ctx, indexKey(), id); err != nil {
		return fmt.Errorf("srem %s: %w", id, err)
	}
	return nil
}

// ReplaceChunks drops the stored chunks of documentID and writes chunks in their place.
func (r *Repo) ReplaceChunks(ctx context.Context, documentID string, chunks []chunk.Chunk) error {
	fields := make(map[string]string, len(chunks))
	for _, c := range chunks {
		raw, err := encodeChunk(c)
		if err != nil {
			return err
		}
		fields[c.ID()] = raw
	}

	key := chunksKey(documentID)
	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// DeleteChunks removes every chunk of documentID. Idempotent.
func (r *Repo) DeleteChunks(ctx context.Context, documentID string) error {
	key := chunksKey(documentID)
	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// Chunks returns the chunks of documentID ordered by ordinal.
func (r *Repo) Chunks(ctx context.Context, documentID string) ([]chunk.Chunk, error) {
	key := chunksKey(documentID)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", key, err)
	}
	out := make([]chunk.Chunk, 0, len(m))
	for id, raw := range m {
		c, err := decodeChunk(id, documentID, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal() < out[j].Ordinal() })
	return out, nil
}

// Chunk returns a single chunk by its identifier.
func (r *Repo) Chunk(ctx context.Context, chunkID string) (chunk.Chunk, error) {
	documentID, _, err := chunk.ParseID(chunkID)
	if err != nil {
		return chunk.Chunk{}, fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	}
	key := chunksKey(documentID)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return chunk.Chunk{}, fmt.Errorf("hgetall %s: %w", key, err)
	}
	raw, ok := m[chunkID]
	if !ok {
		return chunk.Chunk{}, fmt.Errorf("chunk %s: %w", chunkID, domain.ErrNotFound)
	}
	return decodeChunk(chunkID, documentID, raw)
}

func docKey(id string) string {
	return domain.KeyPrefix + "doc:" + id
}

func chunksKey(documentID string) string {
	return domain.KeyPrefix + "doc:" + documentID + ":chunks"
}

func indexKey() string {
	return domain.KeyPrefix + "docs"
}
