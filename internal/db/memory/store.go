package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kailas-cloud/transferguard/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Store is an in-process db.Store. State lives only as long as the process.
type Store struct {
	mu     sync.RWMutex
	kv     map[string]entry
	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}
	closed bool
	now    func() time.Time
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		kv:     make(map[string]entry),
		hashes: make(map[string]map[string]string),
		sets:   make(map[string]map[string]struct{}),
		now:    time.Now,
	}
}

// Ping fails only after Close.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return db.ErrClosed
	}
	return nil
}

// Close marks the store closed. Data is dropped.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.kv = make(map[string]entry)
	s.hashes = make(map[string]map[string]string)
	s.sets = make(map[string]map[string]struct{})
}

// WaitForReady returns immediately unless the store is closed.
func (s *Store) WaitForReady(ctx context.Context, _ time.Duration) error {
	return s.Ping(ctx)
}

// Get retrieves a value by key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, &db.Error{Op: db.OpGet, Err: db.ErrClosed}
	}
	e, ok := s.kv[key]
	if !ok || (!e.expiresAt.IsZero() && !s.now().Before(e.expiresAt)) {
		return nil, db.ErrKeyNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores a value at the given key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.SetWithTTL(ctx, key, value, 0)
}

// SetWithTTL stores a value with an expiration. A zero ttl never expires.
func (s *Store) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &db.Error{Op: db.OpSet, Err: db.ErrClosed}
	}
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	delete(s.hashes, key)
	delete(s.sets, key)
	s.kv[key] = e
	return nil
}

// Del deletes keys of any kind. Missing keys are ignored.
func (s *Store) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &db.Error{Op: db.OpDel, Err: db.ErrClosed}
	}
	for _, k := range keys {
		delete(s.kv, k)
		delete(s.hashes, k)
		delete(s.sets, k)
	}
	return nil
}

// Exists checks if a key of any kind exists.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, &db.Error{Op: db.OpExists, Err: db.ErrClosed}
	}
	if e, ok := s.kv[key]; ok {
		return e.expiresAt.IsZero() || s.now().Before(e.expiresAt), nil
	}
	_, h := s.hashes[key]
	_, st := s.sets[key]
	return h || st, nil
}

// HSet sets hash fields.
func (s *Store) HSet(_ context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &db.Error{Op: db.OpHSet, Err: db.ErrClosed}
	}
	if len(fields) == 0 {
		return nil
	}
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string, len(fields))
		s.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

// HGetAll returns a copy of all hash fields. A missing key yields an empty map.
func (s *Store) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, &db.Error{Op: db.OpHGetAll, Err: db.ErrClosed}
	}
	h := s.hashes[key]
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out, nil
}

// SAdd adds members to a set.
func (s *Store) SAdd(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &db.Error{Op: db.OpSAdd, Err: db.ErrClosed}
	}
	if len(members) == 0 {
		return nil
	}
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{}, len(members))
		s.sets[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return nil
}

// SRem removes members from a set. An emptied set is deleted.
func (s *Store) SRem(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &db.Error{Op: db.OpSRem, Err: db.ErrClosed}
	}
	set := s.sets[key]
	for _, m := range members {
		delete(set, m)
	}
	if set != nil && len(set) == 0 {
		delete(s.sets, key)
	}
	return nil
}

// SMembers lists set members sorted for reproducibility.
func (s *Store) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, &db.Error{Op: db.OpSMembers, Err: db.ErrClosed}
	}
	set := s.sets[key]
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}
