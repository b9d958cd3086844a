package vector

import (
	"bytes"
	"cmp"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"

	"go.uber.org/zap"

	"github.com/kailas-cloud/transferguard/internal/db"
	"github.com/kailas-cloud/transferguard/internal/domain"
	"github.com/kailas-cloud/transferguard/internal/metrics"
)

// Snapshot layout, little-endian:
//
//	magic "TGVX" | version u16 | dim u32 | nextSeq u64
//	nSources u32 | { docID str | docType str }
//	nEntries u32 | { seq u64 | chunkID str | docID str | dim x f32 bits }
//
// str is a u32 length followed by raw bytes.
var snapshotMagic = [4]byte{'T', 'G', 'V', 'X'}

const snapshotVersion uint16 = 1

var errBadSnapshot = errors.New("malformed index snapshot")

// Persist writes the full index state under the snapshot key.
func (ix *Index) Persist(ctx context.Context) error {
	if ix.store == nil {
		return fmt.Errorf("persist: no snapshot store: %w", domain.ErrIndexUnavailable)
	}

	ix.mu.RLock()
	if ix.closed {
		ix.mu.RUnlock()
		return domain.ErrIndexUnavailable
	}
	data := ix.encodeLocked()
	entries := len(ix.entries)
	ix.mu.RUnlock()

	if err := ix.store.Set(ctx, ix.snapshotKey, data); err != nil {
		return fmt.Errorf("persist snapshot: %w: %w", domain.ErrIndexUnavailable, err)
	}
	ix.logger.Debug("index persisted", zap.Int("entries", entries), zap.Int("bytes", len(data)))
	return nil
}

// Load replaces the index state with the stored snapshot. A missing snapshot
// leaves an empty index. A snapshot of another dimensionality is rejected.
func (ix *Index) Load(ctx context.Context) error {
	if ix.store == nil {
		return fmt.Errorf("load: no snapshot store: %w", domain.ErrIndexUnavailable)
	}
	data, err := ix.store.Get(ctx, ix.snapshotKey)
	if err != nil && !errors.Is(err, db.ErrKeyNotFound) {
		return fmt.Errorf("load snapshot: %w: %w", domain.ErrIndexUnavailable, err)
	}

	entries := make(map[string]*entry)
	sources := make(map[string]string)
	var nextSeq uint64
	if err == nil {
		nextSeq, err = decodeSnapshot(data, ix.dim, entries, sources)
		if err != nil {
			return err
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return domain.ErrIndexUnavailable
	}
	ix.entries = entries
	ix.sources = sources
	ix.nextSeq = nextSeq
	metrics.IndexEntries.Set(float64(len(entries)))
	ix.logger.Info("index loaded", zap.Int("entries", len(entries)), zap.Int("sources", len(sources)))
	return nil
}

func (ix *Index) encodeLocked() []byte {
	var buf bytes.Buffer
	buf.Grow(32 + len(ix.entries)*(ix.dim*4+64))

	buf.Write(snapshotMagic[:])
	putU16(&buf, snapshotVersion)
	putU32(&buf, uint32(ix.dim))
	putU64(&buf, ix.nextSeq)

	sourceIDs := make([]string, 0, len(ix.sources))
	for id := range ix.sources {
		sourceIDs = append(sourceIDs, id)
	}
	slices.Sort(sourceIDs)
	putU32(&buf, uint32(len(sourceIDs)))
	for _, id := range sourceIDs {
		putStr(&buf, id)
		putStr(&buf, ix.sources[id])
	}

	ordered := make([]*entry, 0, len(ix.entries))
	for _, e := range ix.entries {
		ordered = append(ordered, e)
	}
	slices.SortFunc(ordered, func(a, b *entry) int { return cmp.Compare(a.seq, b.seq) })
	putU32(&buf, uint32(len(ordered)))
	for _, e := range ordered {
		putU64(&buf, e.seq)
		putStr(&buf, e.chunkID)
		putStr(&buf, e.documentID)
		for _, f := range e.vector {
			putU32(&buf, math.Float32bits(f))
		}
	}
	return buf.Bytes()
}

func decodeSnapshot(data []byte, dim int, entries map[string]*entry, sources map[string]string) (uint64, error) {
	r := bytes.NewReader(data)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != snapshotMagic {
		return 0, errBadSnapshot
	}
	var version uint16
	var storedDim uint32
	var nextSeq uint64
	if err := readAll(r, &version, &storedDim, &nextSeq); err != nil {
		return 0, err
	}
	if version != snapshotVersion {
		return 0, fmt.Errorf("%w: version %d", errBadSnapshot, version)
	}
	if int(storedDim) != dim {
		return 0, fmt.Errorf("snapshot dimension %d, index %d: %w", storedDim, dim, domain.ErrVectorDimMismatch)
	}

	var nSources uint32
	if err := readAll(r, &nSources); err != nil {
		return 0, err
	}
	for range nSources {
		id, err := readStr(r)
		if err != nil {
			return 0, err
		}
		typ, err := readStr(r)
		if err != nil {
			return 0, err
		}
		sources[id] = typ
	}

	var nEntries uint32
	if err := readAll(r, &nEntries); err != nil {
		return 0, err
	}
	for range nEntries {
		e := &entry{vector: make([]float32, dim)}
		if err := readAll(r, &e.seq); err != nil {
			return 0, err
		}
		var err error
		if e.chunkID, err = readStr(r); err != nil {
			return 0, err
		}
		if e.documentID, err = readStr(r); err != nil {
			return 0, err
		}
		for i := range e.vector {
			var bits uint32
			if err := readAll(r, &bits); err != nil {
				return 0, err
			}
			e.vector[i] = math.Float32frombits(bits)
		}
		entries[e.chunkID] = e
	}
	if r.Len() != 0 {
		return 0, fmt.Errorf("%w: %d trailing bytes", errBadSnapshot, r.Len())
	}
	return nextSeq, nil
}

func putU16(w *bytes.Buffer, v uint16) { _ = binary.Write(w, binary.LittleEndian, v) }
func putU32(w *bytes.Buffer, v uint32) { _ = binary.Write(w, binary.LittleEndian, v) }
func putU64(w *bytes.Buffer, v uint64) { _ = binary.Write(w, binary.LittleEndian, v) }

func putStr(w *bytes.Buffer, s string) {
	putU32(w, uint32(len(s)))
	w.WriteString(s)
}

func readAll(r io.Reader, vals ...any) error {
	for _, v := range vals {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("%w: %w", errBadSnapshot, err)
		}
	}
	return nil
}

func readStr(r *bytes.Reader) (string, error) {
	var n uint32
	if err := readAll(r, &n); err != nil {
		return "", err
	}
	if int(n) > r.Len() {
		return "", fmt.Errorf("%w: string length %d", errBadSnapshot, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("%w: %w", errBadSnapshot, err)
	}
	return string(b), nil
}
