package document

import (
	"context"
	"testing"
	"time"

	domdoc "github.com/kailas-cloud/transferguard/internal/domain/document"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hsetFn     func(ctx context.Context, key string, fields map[string]string) error
	hgetAllFn  func(ctx context.Context, key string) (map[string]string, error)
	delFn      func(ctx context.Context, keys ...string) error
	existsFn   func(ctx context.Context, key string) (bool, error)
	saddFn     func(ctx context.Context, key string, members ...string) error
	sremFn     func(ctx context.Context, key string, members ...string) error
	smembersFn func(ctx context.Context, key string) ([]string, error)
}

func (m *mockStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	return nil
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	if m.delFn != nil {
		return m.delFn(ctx, keys...)
	}
	return nil
}

func (m *mockStore) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	return false, nil
}

func (m *mockStore) SAdd(ctx context.Context, key string, members ...string) error {
	if m.saddFn != nil {
		return m.saddFn(ctx, key, members...)
	}
	return nil
}

func (m *mockStore) SRem(ctx context.Context, key string, members ...string) error {
	if m.sremFn != nil {
		return m.sremFn(ctx, key, members...)
	}
	return nil
}

func (m *mockStore) SMembers(ctx context.Context, key string) ([]string, error) {
	if m.smembersFn != nil {
		return m.smembersFn(ctx, key)
	}
	return nil, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms), ms
}

var testNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func testDocument(t *testing.T) domdoc.Document {
	t.Helper()
	doc, err := domdoc.New("policy-1", "/uploads/policy.txt", domdoc.TypeRules, testNow)
	if err != nil {
		t.Fatalf("new document: %v", err)
	}
	return doc
}
