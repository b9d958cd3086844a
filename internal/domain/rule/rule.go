package rule

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind distinguishes numeric limits from categorical sanctions.
type Kind string

const (
	KindLimit    Kind = "limit"
	KindSanction Kind = "sanction"
)

// Scope is the window a limit applies to.
type Scope string

const (
	ScopeDaily          Scope = "daily"
	ScopePerTransaction Scope = "per_transaction"
)

// EntityType is what a sanction targets.
type EntityType string

const (
	EntityCountry EntityType = "country"
	EntityName    EntityType = "name"
)

// LimitPayload is the structured body of a limit rule.
type LimitPayload struct {
	Scope    Scope
	Amount   decimal.Decimal
	Currency string
}

// SanctionPayload is the structured body of a sanction rule.
type SanctionPayload struct {
	EntityType EntityType
	Value      string
}

// Source points back to where a rule was extracted from. The document reference is weak:
// rules outlive their source until the batch is explicitly removed.
type Source struct {
	DocumentID      string
	ChunkID         string
	DocumentVersion int
	// Position is the byte offset of the match inside the chunk text.
	Position int
}

// Rule is a compliance rule extracted from a document chunk.
type Rule struct {
	id          string
	kind        Kind
	limit       LimitPayload
	sanction    SanctionPayload
	source      Source
	confidence  float64
	matchedText string
}

// NewLimit creates a limit rule with a content-derived ID.
func NewLimit(p LimitPayload, src Source, confidence float64, matched string) Rule {
	r := Rule{kind: KindLimit, limit: p, source: src, confidence: confidence, matchedText: matched}
	r.id = r.fingerprint()
	return r
}

// NewSanction creates a sanction rule with a content-derived ID.
func NewSanction(p SanctionPayload, src Source, confidence float64, matched string) Rule {
	r := Rule{kind: KindSanction, sanction: p, source: src, confidence: confidence, matchedText: matched}
	r.id = r.fingerprint()
	return r
}

// Reconstruct creates a Rule without recomputing the ID (storage hydration).
func Reconstruct(
	id string, kind Kind, limit LimitPayload, sanction SanctionPayload,
	src Source, confidence float64, matched string,
) Rule {
	return Rule{
		id: id, kind: kind, limit: limit, sanction: sanction,
		source: src, confidence: confidence, matchedText: matched,
	}
}

func (r Rule) ID() string { return r.id }
func (r Rule) Kind() Kind { return r.kind }
func (r Rule) Limit() LimitPayload { return r.limit }
func (r Rule) Sanction() SanctionPayload { return r.sanction }
func (r Rule) Source() Source { return r.source }
func (r Rule) Confidence() float64 { return r.confidence }
func (r Rule) MatchedText() string { return r.matchedText }

// Sanctions reports whether the rule marks the given entity as sanctioned.
func (r Rule) Sanctions(entityType EntityType, value string) bool {
	if r.kind != KindSanction || r.sanction.EntityType != entityType {
		return false
	}
	v := Normalize(value)
	return v != "" && Normalize(r.sanction.Value) == v
}

func (r Rule) fingerprint() string {
	var payload string
	switch r.kind {
	case KindLimit:
		payload = fmt.Sprintf("%s|%s|%s", r.limit.Scope, r.limit.Amount.String(), r.limit.Currency)
	case KindSanction:
		payload = fmt.Sprintf("%s|%s", r.sanction.EntityType, Normalize(r.sanction.Value))
	}
	h := sha256.Sum256([]byte(strings.Join([]string{
		r.source.DocumentID, r.source.ChunkID, string(r.kind), payload,
	}, "\x00")))
	return hex.EncodeToString(h[:16])
}

// Normalize folds an entity name for comparison: lower case, single spaces, no
// surrounding punctuation or leading article.
func Normalize(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	s = strings.Trim(s, " .,;:!?\"'()[]")
	s = strings.TrimPrefix(s, "the ")
	return s
}
