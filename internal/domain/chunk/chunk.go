package chunk

import (
	"fmt"
	"strconv"
	"strings"
)

// Chunk is a bounded segment of a document's text, the unit of embedding and retrieval.
// Owned by its document and deleted with it.
type Chunk struct {
	id              string
	documentID      string
	documentVersion int
	ordinal         int
	text            string
	vector          []float32
}

// ID builds the chunk identifier for the n-th segment of a document.
func ID(documentID string, ordinal int) string {
	return documentID + "_chunk_" + strconv.Itoa(ordinal)
}

// ParseID splits a chunk identifier into document ID and ordinal.
func ParseID(id string) (string, int, error) {
	i := strings.LastIndex(id, "_chunk_")
	if i <= 0 {
		return "", 0, fmt.Errorf("malformed chunk ID %q", id)
	}
	n, err := strconv.Atoi(id[i+len("_chunk_"):])
	if err != nil || n < 0 {
		return "", 0, fmt.Errorf("malformed chunk ID %q", id)
	}
	return id[:i], n, nil
}

// New creates a chunk. The vector may be attached later with WithVector.
func New(documentID string, documentVersion, ordinal int, text string) Chunk {
	return Chunk{
		id:              ID(documentID, ordinal),
		documentID:      documentID,
		documentVersion: documentVersion,
		ordinal:         ordinal,
		text:            text,
	}
}

// Reconstruct creates a Chunk without validation (storage hydration).
func Reconstruct(id, documentID string, documentVersion, ordinal int, text string, vector []float32) Chunk {
	return Chunk{
		id: id, documentID: documentID, documentVersion: documentVersion,
		ordinal: ordinal, text: text, vector: vector,
	}
}

// ID returns the chunk identifier.
func (c Chunk) ID() string { return c.id }

// DocumentID returns the owning document.
func (c Chunk) DocumentID() string { return c.documentID }

// DocumentVersion returns the document version that produced this chunk.
func (c Chunk) DocumentVersion() int { return c.documentVersion }

// Ordinal returns the zero-based position inside the document.
func (c Chunk) Ordinal() int { return c.ordinal }

// Text returns the raw segment text.
func (c Chunk) Text() string { return c.text }

// Vector returns the embedding vector.
func (c Chunk) Vector() []float32 { return c.vector }

// WithVector returns a copy with the given vector set.
func (c Chunk) WithVector(v []float32) Chunk {
	c.vector = v
	return c
}
