package document

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/kailas-cloud/transferguard/internal/domain/chunk"
	domdoc "github.com/kailas-cloud/transferguard/internal/domain/document"
)

const (
	fieldLocation      = "location"
	fieldType          = "type"
	fieldStatus        = "status"
	fieldVersion       = "version"
	fieldChunkCount    = "chunk_count"
	fieldFailureReason = "failure_reason"
	fieldCreatedAt     = "created_at"
	fieldUpdatedAt     = "updated_at"
	fieldProcessedAt   = "processed_at"
)

// buildHashFields converts a domain Document into a flat map[string]string for HSET.
func buildHashFields(doc domdoc.Document) map[string]string {
	return map[string]string{
		fieldLocation:      doc.Location(),
		fieldType:          string(doc.Type()),
		fieldStatus:        string(doc.Status()),
		fieldVersion:       strconv.Itoa(doc.Version()),
		fieldChunkCount:    strconv.Itoa(doc.ChunkCount()),
		fieldFailureReason: doc.FailureReason(),
		fieldCreatedAt:     formatTime(doc.CreatedAt()),
		fieldUpdatedAt:     formatTime(doc.UpdatedAt()),
		fieldProcessedAt:   formatTime(doc.ProcessedAt()),
	}
}

// parseHashFields converts a flat hash map back into a domain Document.
func parseHashFields(id string, m map[string]string) (domdoc.Document, error) {
	version, err := atoi(m, fieldVersion)
	if err != nil {
		return domdoc.Document{}, err
	}
	chunks, err := atoi(m, fieldChunkCount)
	if err != nil {
		return domdoc.Document{}, err
	}
	return domdoc.Reconstruct(
		id, m[fieldLocation], domdoc.Type(m[fieldType]), domdoc.Status(m[fieldStatus]),
		version, chunks, m[fieldFailureReason],
		parseTime(m[fieldCreatedAt]), parseTime(m[fieldUpdatedAt]), parseTime(m[fieldProcessedAt]),
	), nil
}

func atoi(m map[string]string, field string) (int, error) {
	v, ok := m[field]
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", field, err)
	}
	return n, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// chunkRecord is the stored form of a chunk inside the per-document chunk hash.
type chunkRecord struct {
	DocumentVersion int    `json:"document_version"`
	Ordinal         int    `json:"ordinal"`
	Text            string `json:"text"`
	Vector          []byte `json:"vector,omitempty"`
}

func encodeChunk(c chunk.Chunk) (string, error) {
	data, err := json.Marshal(chunkRecord{
		DocumentVersion: c.DocumentVersion(),
		Ordinal:         c.Ordinal(),
		Text:            c.Text(),
		Vector:          vectorToBytes(c.Vector()),
	})
	if err != nil {
		return "", fmt.Errorf("marshal chunk %s: %w", c.ID(), err)
	}
	return string(data), nil
}

func decodeChunk(id, documentID, raw string) (chunk.Chunk, error) {
	var rec chunkRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return chunk.Chunk{}, fmt.Errorf("unmarshal chunk %s: %w", id, err)
	}
	return chunk.Reconstruct(id, documentID, rec.DocumentVersion, rec.Ordinal, rec.Text, bytesToVector(rec.Vector)), nil
}

// vectorToBytes serializes []float32 (4 bytes per float, little-endian).
func vectorToBytes(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToVector deserializes little-endian float32 bytes.
func bytesToVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
