// Package compliance turns ingested chunks into structured rules and answers
// limit and sanctions questions over the vector index.
package compliance

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/kailas-cloud/transferguard/internal/domain/chunk"
	"github.com/kailas-cloud/transferguard/internal/domain/document"
	"github.com/kailas-cloud/transferguard/internal/domain/rule"
)

// ExtractionConfidence is attached to every extracted rule. A statement either
// parses unambiguously or yields nothing.
const ExtractionConfidence = 1.0

var (
	limitVocabRe  = regexp.MustCompile(`(?i)\b(limit|limits|maximum|max|cap|capped|exceed|exceeds|up to)\b`)
	dailyScopeRe  = regexp.MustCompile(`(?i)\b(daily|per[\s-]day|each day|a day|per calendar day)\b`)
	perTxScopeRe  = regexp.MustCompile(`(?i)\b(per|single|each|individual|one)[\s-](transaction|transfer|payment)s?\b`)
	numberRe      = regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`)
	amountAfterRe = regexp.MustCompile(
		`(?i)(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)\s*(BHD|BD|USD|EUR|GBP|bahraini\s+dinars?|dinars?)\b`)
	amountBeforeRe = regexp.MustCompile(
		`(?i)\b(BHD|BD|USD|EUR|GBP)\s*(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)`)

	sanctionStmtRe = regexp.MustCompile(
		`(?i)^(?:the\s+)?(.{1,120}?)\s+(?:is|are)\s+(?:currently\s+|strictly\s+|fully\s+)?` +
			`(?:sanctioned|blacklisted|embargoed|prohibited|under\s+sanctions)\b`)
	sanctionListRe = regexp.MustCompile(
		`(?i)\b(?:sanctioned|blacklisted|prohibited|restricted|embargoed)\s+` +
			`(countries|nations|jurisdictions|individuals|entities|persons)\b[^:]*?` +
			`(?::|\binclude[sd]?\b|\bincluding\b)\s*(.*)$`)
	sanctionListTailRe = regexp.MustCompile(
		`(?i)\b(countries|nations|jurisdictions|individuals|entities|persons)\s+(?:are|is)\s+` +
			`(?:currently\s+)?(?:sanctioned|blacklisted|prohibited|restricted|embargoed)\s*:\s*(.*)$`)
	nameHintRe = regexp.MustCompile(`(?i)\b(individual|individuals|person|persons|entity|entities|company|organi[sz]ation)\b`)
	itemSepRe  = regexp.MustCompile(`(?i)\s*[,;]\s*(?:and\s+|or\s+)?|\s+and\s+|\s+or\s+`)
	bulletRe   = regexp.MustCompile(`^\s*[-*•]\s+`)
)

// Subjects that start a prohibition about an action rather than naming an entity.
var nonEntityWords = map[string]struct{}{
	"any": {}, "all": {}, "transfers": {}, "transfer": {}, "payments": {}, "payment": {},
	"transactions": {}, "transaction": {}, "it": {}, "this": {}, "that": {}, "these": {},
	"those": {}, "such": {}, "each": {}, "every": {}, "no": {}, "there": {}, "which": {},
	"what": {}, "funds": {}, "sending": {}, "remittances": {}, "remittance": {},
}

var prepositions = map[string]struct{}{
	"to": {}, "from": {}, "for": {}, "with": {}, "by": {}, "in": {}, "into": {},
}

var nameTypeWords = map[string]struct{}{
	"individual": {}, "person": {}, "entity": {}, "company": {}, "organisation": {}, "organization": {},
}

const maxEntityWords = 6

// statement is one sentence or clause of a chunk with its byte offset.
type statement struct {
	text   string
	offset int
}

// ruleFunc derives rules from the statements of a single chunk.
type ruleFunc func(src rule.Source, stmts []statement) []rule.Rule

// Extractor derives rules from chunk text. Parsing is selected per document type.
type Extractor struct {
	table map[document.Type][]ruleFunc
}

// NewExtractor creates an Extractor with the built-in per-type table.
func NewExtractor() *Extractor {
	return &Extractor{table: map[document.Type][]ruleFunc{
		document.TypeRules:     {limitRules, sanctionStatements},
		document.TypeSanctions: {sanctionStatements, sanctionLists},
		document.TypeOther:     nil,
	}}
}

// Extract returns the rules found in chunks, deduplicated and ordered by
// chunk ordinal then position. Identical input yields an identical result.
func (e *Extractor) Extract(chunks []chunk.Chunk, docType document.Type) []rule.Rule {
	funcs := e.table[docType]
	if len(funcs) == 0 {
		return nil
	}

	ordered := make([]chunk.Chunk, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Ordinal() < ordered[j].Ordinal() })

	var out []rule.Rule
	seen := make(map[string]struct{})
	for _, c := range ordered {
		src := rule.Source{DocumentID: c.DocumentID(), ChunkID: c.ID(), DocumentVersion: c.DocumentVersion()}
		stmts := splitStatements(c.Text())

		var found []rule.Rule
		for _, fn := range funcs {
			found = append(found, fn(src, stmts)...)
		}
		sort.SliceStable(found, func(i, j int) bool {
			a, b := found[i], found[j]
			if a.Source().Position != b.Source().Position {
				return a.Source().Position < b.Source().Position
			}
			return a.ID() < b.ID()
		})
		for _, r := range found {
			if _, dup := seen[r.ID()]; dup {
				continue
			}
			seen[r.ID()] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// ExtractChunk returns the rules of a single chunk.
func (e *Extractor) ExtractChunk(c chunk.Chunk, docType document.Type) []rule.Rule {
	return e.Extract([]chunk.Chunk{c}, docType)
}

// splitStatements cuts text at newlines, semicolons and sentence-ending
// punctuation followed by whitespace. Decimal points are not boundaries.
func splitStatements(text string) []statement {
	var out []statement
	start := 0
	emit := func(end int) {
		seg := text[start:end]
		trimmed := strings.TrimLeftFunc(seg, unicode.IsSpace)
		offset := start + len(seg) - len(trimmed)
		trimmed = strings.TrimRightFunc(trimmed, unicode.IsSpace)
		if trimmed != "" {
			out = append(out, statement{text: trimmed, offset: offset})
		}
	}
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n', ';':
			emit(i)
			start = i + 1
		case '.', '!', '?':
			if i+1 == len(text) || isSpaceByte(text[i+1]) {
				emit(i)
				start = i + 1
			}
		}
	}
	if start < len(text) {
		emit(len(text))
	}
	return out
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// limitRules finds "<scope> limit ... <amount> <currency>" statements. A statement
// with more than one distinct number, or naming both scopes, is discarded.
func limitRules(src rule.Source, stmts []statement) []rule.Rule {
	var out []rule.Rule
	for _, st := range stmts {
		if !limitVocabRe.MatchString(st.text) {
			continue
		}
		daily, perTx := dailyScopeRe.MatchString(st.text), perTxScopeRe.MatchString(st.text)
		if daily == perTx {
			continue
		}
		scope := rule.ScopeDaily
		if perTx {
			scope = rule.ScopePerTransaction
		}

		amount, currency, ok := parseAmount(st.text)
		if !ok {
			continue
		}
		s := src
		s.Position = st.offset
		out = append(out, rule.NewLimit(rule.LimitPayload{
			Scope: scope, Amount: amount, Currency: currency,
		}, s, ExtractionConfidence, st.text))
	}
	return out
}

// parseAmount returns the single number of the statement when it is attached to a currency.
func parseAmount(text string) (decimal.Decimal, string, bool) {
	distinct := make(map[string]struct{})
	for _, n := range numberRe.FindAllString(text, -1) {
		v, err := decimal.NewFromString(strings.ReplaceAll(n, ",", ""))
		if err != nil {
			return decimal.Decimal{}, "", false
		}
		distinct[v.String()] = struct{}{}
	}
	if len(distinct) != 1 {
		return decimal.Decimal{}, "", false
	}

	var raw, cur string
	if m := amountAfterRe.FindStringSubmatch(text); m != nil {
		raw, cur = m[1], m[2]
	} else if m := amountBeforeRe.FindStringSubmatch(text); m != nil {
		raw, cur = m[2], m[1]
	} else {
		return decimal.Decimal{}, "", false
	}
	v, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil || !v.IsPositive() {
		return decimal.Decimal{}, "", false
	}
	return v, normalizeCurrency(cur), true
}

func normalizeCurrency(c string) string {
	c = strings.ToUpper(strings.Join(strings.Fields(c), " "))
	switch {
	case c == "BD", strings.Contains(c, "DINAR"):
		return "BHD"
	}
	return c
}

// sanctionStatements finds "<Entity> is|are sanctioned|blacklisted|embargoed|prohibited".
func sanctionStatements(src rule.Source, stmts []statement) []rule.Rule {
	var out []rule.Rule
	for _, st := range stmts {
		m := sanctionStmtRe.FindStringSubmatchIndex(st.text)
		if m == nil {
			continue
		}
		et := rule.EntityCountry
		if nameHintRe.MatchString(st.text) {
			et = rule.EntityName
		}
		out = append(out, sanctionItems(src, st, m[2], m[3], et, false)...)
	}
	return out
}

// sanctionLists finds "sanctioned countries: A, B and C" and the bulleted form
// where the items follow on separate lines.
func sanctionLists(src rule.Source, stmts []statement) []rule.Rule {
	var out []rule.Rule
	for i := 0; i < len(stmts); i++ {
		st := stmts[i]
		m := sanctionListRe.FindStringSubmatchIndex(st.text)
		if m == nil {
			m = sanctionListTailRe.FindStringSubmatchIndex(st.text)
		}
		if m == nil {
			continue
		}
		et := rule.EntityCountry
		switch strings.ToLower(st.text[m[2]:m[3]]) {
		case "individuals", "entities", "persons":
			et = rule.EntityName
		}

		if strings.TrimSpace(st.text[m[4]:m[5]]) != "" {
			out = append(out, sanctionItems(src, st, m[4], m[5], et, true)...)
			continue
		}
		for i+1 < len(stmts) && bulletRe.MatchString(stmts[i+1].text) {
			i++
			b := stmts[i]
			loc := bulletRe.FindStringIndex(b.text)
			out = append(out, sanctionItems(src, b, loc[1], len(b.text), et, true)...)
		}
	}
	return out
}

// sanctionItems splits st.text[from:to] into entity names and builds a rule per name.
func sanctionItems(src rule.Source, st statement, from, to int, et rule.EntityType, list bool) []rule.Rule {
	segment := st.text[from:to]
	var out []rule.Rule
	pos := 0
	for _, loc := range append(itemSepRe.FindAllStringIndex(segment, -1), []int{len(segment), len(segment)}) {
		item := segment[pos:loc[0]]
		itemOffset := pos
		pos = loc[1]

		lead := len(item) - len(strings.TrimLeft(item, " :-\t"))
		item = strings.TrimSpace(strings.Trim(item, " :-\t"))
		if et == rule.EntityName {
			item = stripTypeWord(item)
		}
		if !plausibleEntity(item, list) {
			continue
		}
		s := src
		s.Position = st.offset + from + itemOffset + lead
		out = append(out, rule.NewSanction(rule.SanctionPayload{
			EntityType: et, Value: rule.Normalize(item),
		}, s, ExtractionConfidence, st.text))
	}
	return out
}

func stripTypeWord(item string) string {
	fields := strings.Fields(item)
	for len(fields) > 1 {
		w := strings.ToLower(fields[0])
		if w == "the" || w == "a" || w == "an" {
			fields = fields[1:]
			continue
		}
		if _, ok := nameTypeWords[w]; ok {
			fields = fields[1:]
			continue
		}
		break
	}
	return strings.Join(fields, " ")
}

// plausibleEntity filters subjects that describe actions instead of naming an entity.
// Free-standing statements must also start with an upper-case letter.
func plausibleEntity(item string, list bool) bool {
	fields := strings.Fields(item)
	if len(fields) == 0 || len(fields) > maxEntityWords {
		return false
	}
	first, _ := utf8.DecodeRuneInString(item)
	if !unicode.IsLetter(first) {
		return false
	}
	if !list && !unicode.IsUpper(first) {
		return false
	}
	if _, ok := nonEntityWords[strings.ToLower(fields[0])]; ok {
		return false
	}
	for _, f := range fields {
		if _, ok := prepositions[strings.ToLower(f)]; ok {
			return false
		}
	}
	return rule.Normalize(item) != ""
}
