package document

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/transferguard/internal/db/memory"
	"github.com/kailas-cloud/transferguard/internal/domain"
	"github.com/kailas-cloud/transferguard/internal/domain/chunk"
	domdoc "github.com/kailas-cloud/transferguard/internal/domain/document"
)

// --- Save / Get ---

func TestSave_KeysAndFields(t *testing.T) {
	repo, ms := newTestRepo(t)
	var hsetKey, saddKey, member string
	var fields map[string]string
	ms.hsetFn = func(_ context.Context, key string, f map[string]string) error {
		hsetKey, fields = key, f
		return nil
	}
	ms.saddFn = func(_ context.Context, key string, members ...string) error {
		saddKey, member = key, members[0]
		return nil
	}

	if err := repo.Save(context.Background(), testDocument(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hsetKey != "transferguard:doc:policy-1" {
		t.Errorf("unexpected hash key: %s", hsetKey)
	}
	if saddKey != "transferguard:docs" || member != "policy-1" {
		t.Errorf("unexpected set write: %s %s", saddKey, member)
	}
	if fields[fieldStatus] != "UPLOADED" || fields[fieldType] != "rules" || fields[fieldVersion] != "0" {
		t.Errorf("unexpected fields: %v", fields)
	}
	if fields[fieldProcessedAt] != "" {
		t.Errorf("zero time must be stored empty, got %q", fields[fieldProcessedAt])
	}
}

func TestSave_StoreError(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.hsetFn = func(context.Context, string, map[string]string) error { return errors.New("conn refused") }

	if err := repo.Save(context.Background(), testDocument(t)); err == nil {
		t.Fatal("expected error")
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestGet_CorruptVersion(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.hgetAllFn = func(context.Context, string) (map[string]string, error) {
		return map[string]string{fieldStatus: "PROCESSED", fieldVersion: "x"}, nil
	}

	if _, err := repo.Get(context.Background(), "policy-1"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveGet_RoundTrip(t *testing.T) {
	repo := New(memory.NewStore())
	ctx := context.Background()

	doc := testDocument(t)
	doc, _ = doc.StartProcessing(testNow)
	doc, err := doc.MarkProcessed(4, testNow.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(ctx, doc); err != nil {
		t.Fatal(err)
	}

	got, err := repo.Get(ctx, "policy-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status() != domdoc.StatusProcessed || got.Version() != 1 || got.ChunkCount() != 4 {
		t.Errorf("unexpected document: %+v", got)
	}
	if !got.ProcessedAt().Equal(testNow.Add(time.Second)) {
		t.Errorf("processed_at lost: %v", got.ProcessedAt())
	}
}

// --- List / Delete ---

func TestList_SkipsVanished(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.smembersFn = func(context.Context, string) ([]string, error) { return []string{"b", "a"}, nil }
	ms.hgetAllFn = func(_ context.Context, key string) (map[string]string, error) {
		if key == "transferguard:doc:b" {
			return map[string]string{}, nil
		}
		return map[string]string{fieldType: "sanctions", fieldStatus: "UPLOADED"}, nil
	}

	docs, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 || docs[0].ID() != "a" || docs[0].Type() != domdoc.TypeSanctions {
		t.Errorf("unexpected list: %+v", docs)
	}
}

func TestDelete_NotFound(t *testing.T) {
	repo, _ := newTestRepo(t)

	if err := repo.Delete(context.Background(), "missing"); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestDelete_CascadesChunks(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.existsFn = func(context.Context, string) (bool, error) { return true, nil }
	var deleted []string
	ms.delFn = func(_ context.Context, keys ...string) error {
		deleted = append(deleted, keys...)
		return nil
	}

	if err := repo.Delete(context.Background(), "policy-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deleted) != 2 || deleted[1] != "transferguard:doc:policy-1:chunks" {
		t.Errorf("unexpected deleted keys: %v", deleted)
	}
}

// --- chunks ---

func TestReplaceChunks_RoundTrip(t *testing.T) {
	repo := New(memory.NewStore())
	ctx := context.Background()

	first := []chunk.Chunk{
		chunk.New("policy-1", 1, 0, "old zero").WithVector([]float32{1, 0}),
		chunk.New("policy-1", 1, 1, "old one").WithVector([]float32{0, 1}),
		chunk.New("policy-1", 1, 2, "old two"),
	}
	if err := repo.ReplaceChunks(ctx, "policy-1", first); err != nil {
		t.Fatal(err)
	}
	second := []chunk.Chunk{
		chunk.New("policy-1", 2, 1, "new one").WithVector([]float32{0.25, -0.5}),
		chunk.New("policy-1", 2, 0, "new zero").WithVector([]float32{0.5, 0.5}),
	}
	if err := repo.ReplaceChunks(ctx, "policy-1", second); err != nil {
		t.Fatal(err)
	}

	got, err := repo.Chunks(ctx, "policy-1")
	if err != nil {
		t.Fatalf("chunks: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("replace must not append, got %d chunks", len(got))
	}
	if got[0].Text() != "new zero" || got[1].Ordinal() != 1 || got[1].DocumentVersion() != 2 {
		t.Errorf("unexpected chunks: %+v", got)
	}
	if got[1].Vector()[1] != -0.5 {
		t.Errorf("vector not restored: %v", got[1].Vector())
	}

	one, err := repo.Chunk(ctx, "policy-1_chunk_1")
	if err != nil || one.Text() != "new one" {
		t.Errorf("single chunk lookup: %+v %v", one, err)
	}
	if _, err := repo.Chunk(ctx, "policy-1_chunk_2"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for replaced chunk, got %v", err)
	}
}

func TestChunk_MalformedID(t *testing.T) {
	repo, _ := newTestRepo(t)

	if _, err := repo.Chunk(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteChunks_Idempotent(t *testing.T) {
	repo := New(memory.NewStore())
	ctx := context.Background()

	for range 2 {
		if err := repo.DeleteChunks(ctx, "never-ingested"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}
