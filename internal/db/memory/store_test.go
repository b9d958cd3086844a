package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/transferguard/internal/db"
)

func TestKV_RoundTrip(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if _, err := s.Get(ctx, "k"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	buf := []byte("v1")
	if err := s.Set(ctx, "k", buf); err != nil {
		t.Fatalf("Set: %v", err)
	}
	buf[0] = 'X'
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v1" {
		t.Errorf("expected stored copy 'v1', got %q", got)
	}
}

func TestKV_TTL(t *testing.T) {
	s := NewStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_ = s.SetWithTTL(ctx, "k", []byte("v"), time.Minute)
	if _, err := s.Get(ctx, "k"); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}
	now = now.Add(time.Minute)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected expiry, got %v", err)
	}
	if ok, _ := s.Exists(ctx, "k"); ok {
		t.Error("expired key must not exist")
	}
}

func TestHash(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	m, err := s.HGetAll(ctx, "h")
	if err != nil || len(m) != 0 {
		t.Fatalf("missing hash: %v %v", m, err)
	}
	_ = s.HSet(ctx, "h", map[string]string{"a": "1"})
	_ = s.HSet(ctx, "h", map[string]string{"b": "2"})
	m, _ = s.HGetAll(ctx, "h")
	if m["a"] != "1" || m["b"] != "2" {
		t.Errorf("unexpected hash: %v", m)
	}
	if ok, _ := s.Exists(ctx, "h"); !ok {
		t.Error("hash must exist")
	}
	_ = s.Del(ctx, "h")
	if ok, _ := s.Exists(ctx, "h"); ok {
		t.Error("hash must be deleted")
	}
}

func TestSet_Members(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_ = s.SAdd(ctx, "docs", "b", "a", "b")
	got, _ := s.SMembers(ctx, "docs")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected members: %v", got)
	}
	_ = s.SRem(ctx, "docs", "a", "b", "zzz")
	if ok, _ := s.Exists(ctx, "docs"); ok {
		t.Error("empty set must be removed")
	}
}

func TestClose(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_ = s.Set(ctx, "k", []byte("v"))
	s.Close()

	if err := s.Ping(ctx); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Ping after close: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Get after close: %v", err)
	}
}
