// Package rule stores versioned rule batches. Readers are served from an in-memory
// snapshot, so a batch is visible either entirely or not at all.
package rule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/kailas-cloud/transferguard/internal/db"
	"github.com/kailas-cloud/transferguard/internal/domain"
	domrule "github.com/kailas-cloud/transferguard/internal/domain/rule"
)

// store is the consumer interface for rule batches (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, keys ...string) error
}

// Repo persists one rule batch per document.
type Repo struct {
	store store

	mu      sync.RWMutex
	batches map[string]domrule.Batch
}

// New creates a rule repository with an empty snapshot.
func New(s store) *Repo {
	return &Repo{store: s, batches: make(map[string]domrule.Batch)}
}

// Publish stores the batch and swaps it into the snapshot. An older version never
// replaces a newer one.
func (r *Repo) Publish(ctx context.Context, b domrule.Batch) error {
	r.mu.RLock()
	cur, ok := r.batches[b.DocumentID()]
	r.mu.RUnlock()
	if ok && cur.Version() > b.Version() {
		return fmt.Errorf("publish %s v%d over v%d: %w", b.DocumentID(), b.Version(), cur.Version(), domain.ErrInvalidTransition)
	}

	data, err := json.Marshal(toRecord(b))
	if err != nil {
		return fmt.Errorf("marshal batch %s: %w", b.DocumentID(), err)
	}
	key := batchKey(b.DocumentID())
	if err := r.store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}

	r.mu.Lock()
	r.batches[b.DocumentID()] = b
	r.mu.Unlock()
	return nil
}

// Get returns the current batch of a document, reading through to the store on a snapshot miss.
func (r *Repo) Get(ctx context.Context, documentID string) (domrule.Batch, error) {
	r.mu.RLock()
	b, ok := r.batches[documentID]
	r.mu.RUnlock()
	if ok {
		return b, nil
	}

	b, err := r.load(ctx, documentID)
	if err != nil {
		return domrule.Batch{}, err
	}
	r.mu.Lock()
	if cur, ok := r.batches[documentID]; !ok || cur.Version() < b.Version() {
		r.batches[documentID] = b
	}
	r.mu.Unlock()
	return b, nil
}

// Delete removes the batch of a document. Idempotent.
func (r *Repo) Delete(ctx context.Context, documentID string) error {
	key := batchKey(documentID)
	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	r.mu.Lock()
	delete(r.batches, documentID)
	r.mu.Unlock()
	return nil
}

// Warm loads the batches of the given documents into the snapshot. Missing batches are skipped.
func (r *Repo) Warm(ctx context.Context, documentIDs []string) (int, error) {
	n := 0
	for _, id := range documentIDs {
		if _, err := r.Get(ctx, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

func (r *Repo) load(ctx context.Context, documentID string) (domrule.Batch, error) {
	key := batchKey(documentID)
	data, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domrule.Batch{}, fmt.Errorf("rules of %s: %w", documentID, domain.ErrNotFound)
		}
		return domrule.Batch{}, fmt.Errorf("get %s: %w", key, err)
	}
	var rec batchRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domrule.Batch{}, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return fromRecord(rec)
}

func batchKey(documentID string) string {
	return domain.KeyPrefix + "rules:" + documentID
}
