package rule

import (
	"fmt"

	"github.com/shopspring/decimal"

	domrule "github.com/kailas-cloud/transferguard/internal/domain/rule"
)

type batchRecord struct {
	DocumentID string       `json:"document_id"`
	Version    int          `json:"version"`
	Rules      []ruleRecord `json:"rules"`
}

type ruleRecord struct {
	ID              string  `json:"id"`
	Kind            string  `json:"kind"`
	Scope           string  `json:"scope,omitempty"`
	Amount          string  `json:"amount,omitempty"`
	Currency        string  `json:"currency,omitempty"`
	EntityType      string  `json:"entity_type,omitempty"`
	Value           string  `json:"value,omitempty"`
	ChunkID         string  `json:"chunk_id"`
	DocumentVersion int     `json:"document_version"`
	Position        int     `json:"position"`
	Confidence      float64 `json:"confidence"`
	MatchedText     string  `json:"matched_text"`
}

func toRecord(b domrule.Batch) batchRecord {
	rec := batchRecord{DocumentID: b.DocumentID(), Version: b.Version(), Rules: make([]ruleRecord, 0, b.Len())}
	for _, r := range b.Rules() {
		rr := ruleRecord{
			ID:              r.ID(),
			Kind:            string(r.Kind()),
			ChunkID:         r.Source().ChunkID,
			DocumentVersion: r.Source().DocumentVersion,
			Position:        r.Source().Position,
			Confidence:      r.Confidence(),
			MatchedText:     r.MatchedText(),
		}
		switch r.Kind() {
		case domrule.KindLimit:
			rr.Scope = string(r.Limit().Scope)
			rr.Amount = r.Limit().Amount.String()
			rr.Currency = r.Limit().Currency
		case domrule.KindSanction:
			rr.EntityType = string(r.Sanction().EntityType)
			rr.Value = r.Sanction().Value
		}
		rec.Rules = append(rec.Rules, rr)
	}
	return rec
}

func fromRecord(rec batchRecord) (domrule.Batch, error) {
	rules := make([]domrule.Rule, 0, len(rec.Rules))
	for _, rr := range rec.Rules {
		src := domrule.Source{
			DocumentID:      rec.DocumentID,
			ChunkID:         rr.ChunkID,
			DocumentVersion: rr.DocumentVersion,
			Position:        rr.Position,
		}
		var limit domrule.LimitPayload
		var sanction domrule.SanctionPayload
		switch domrule.Kind(rr.Kind) {
		case domrule.KindLimit:
			amount, err := decimal.NewFromString(rr.Amount)
			if err != nil {
				return domrule.Batch{}, fmt.Errorf("rule %s amount: %w", rr.ID, err)
			}
			limit = domrule.LimitPayload{Scope: domrule.Scope(rr.Scope), Amount: amount, Currency: rr.Currency}
		case domrule.KindSanction:
			sanction = domrule.SanctionPayload{EntityType: domrule.EntityType(rr.EntityType), Value: rr.Value}
		default:
			return domrule.Batch{}, fmt.Errorf("rule %s: unknown kind %q", rr.ID, rr.Kind)
		}
		rules = append(rules, domrule.Reconstruct(
			rr.ID, domrule.Kind(rr.Kind), limit, sanction, src, rr.Confidence, rr.MatchedText,
		))
	}
	return domrule.NewBatch(rec.DocumentID, rec.Version, rules), nil
}
