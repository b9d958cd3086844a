package rule

// Batch is the rule set produced by one ingestion of one document version.
// Batches are published and replaced as a whole so readers never see a mix of versions.
type Batch struct {
	documentID string
	version    int
	rules      []Rule
}

// NewBatch creates a batch. The rule slice is copied.
func NewBatch(documentID string, version int, rules []Rule) Batch {
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return Batch{documentID: documentID, version: version, rules: cp}
}

// DocumentID returns the source document.
func (b Batch) DocumentID() string { return b.documentID }

// Version returns the document version that produced the batch.
func (b Batch) Version() int { return b.version }

// Rules returns all rules in extraction order.
func (b Batch) Rules() []Rule { return b.rules }

// Len returns the number of rules.
func (b Batch) Len() int { return len(b.rules) }

// ForChunk returns the rules extracted from one chunk, in extraction order.
func (b Batch) ForChunk(chunkID string) []Rule {
	var out []Rule
	for _, r := range b.rules {
		if r.source.ChunkID == chunkID {
			out = append(out, r)
		}
	}
	return out
}
