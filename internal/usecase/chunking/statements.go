package chunking

import (
	"strings"
	"unicode/utf8"
)

// DefaultStatementMaxChars bounds a segment in statement mode.
const DefaultStatementMaxChars = 400

// ListGroupSize is the number of list items a statement segment carries. Longer
// lists are cut into groups that each repeat the heading.
const ListGroupSize = 3

var bulletMarkers = map[string]struct{}{"-": {}, "*": {}, "•": {}}

// splitStatements emits one segment per sentence. A heading that ends with a colon
// keeps the bullet lines that follow it, and an inline "heading: a, b, c" list
// longer than ListGroupSize is regrouped so every segment names its heading.
func (c *Chunker) splitStatements(text string) []string {
	sents := sentences(text)
	var out []string
	for i := 0; i < len(sents); i++ {
		st := sents[i]
		if st.lineEnd && endsWithColon(st.words) {
			var items []string
			for i+1 < len(sents) && isBullet(sents[i+1].words) {
				i++
				items = append(items, strings.Join(sents[i].words[1:], " "))
			}
			if len(items) > 0 {
				out = append(out, c.bulletGroups(strings.Join(st.words, " "), items)...)
				continue
			}
		}
		if head, items, end, ok := inlineList(st.words); ok {
			out = append(out, c.inlineGroups(head, items, end)...)
			continue
		}
		out = append(out, c.bounded(strings.Join(st.words, " "))...)
	}
	return out
}

func (c *Chunker) bulletGroups(head string, items []string) []string {
	var out []string
	for _, g := range groupItems(items) {
		var b strings.Builder
		b.WriteString(head)
		for _, it := range g {
			b.WriteString("\n- ")
			b.WriteString(it)
		}
		out = append(out, c.bounded(b.String())...)
	}
	return out
}

func (c *Chunker) inlineGroups(head string, items []string, end string) []string {
	var out []string
	for _, g := range groupItems(items) {
		out = append(out, c.bounded(head+" "+strings.Join(g, ", ")+end)...)
	}
	return out
}

// bounded returns seg as is when it fits, otherwise packs it into windows.
func (c *Chunker) bounded(seg string) []string {
	if utf8.RuneCountInString(seg) <= c.maxChars {
		return []string{seg}
	}
	return c.pack(sentences(seg), 0)
}

// inlineList splits "heading: a, b, c." into its parts. Only lists longer than
// ListGroupSize are reported.
func inlineList(words []string) (head string, items []string, end string, ok bool) {
	k := -1
	for i, w := range words[:max(len(words)-1, 0)] {
		if strings.HasSuffix(w, ":") {
			k = i
			break
		}
	}
	if k < 0 {
		return "", nil, "", false
	}
	for _, it := range strings.Split(strings.Join(words[k+1:], " "), ",") {
		if it = strings.TrimSpace(it); it != "" {
			items = append(items, it)
		}
	}
	if len(items) <= ListGroupSize {
		return "", nil, "", false
	}
	last := items[len(items)-1]
	if n := len(last); strings.ContainsAny(last[n-1:], ".!?") {
		end = last[n-1:]
		if last = strings.TrimSpace(last[:n-1]); last == "" {
			items = items[:len(items)-1]
		} else {
			items[len(items)-1] = last
		}
	}
	return strings.Join(words[:k+1], " "), items, end, true
}

func groupItems(items []string) [][]string {
	var out [][]string
	for len(items) > ListGroupSize {
		out = append(out, items[:ListGroupSize])
		items = items[ListGroupSize:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

func endsWithColon(words []string) bool {
	return len(words) > 0 && strings.HasSuffix(words[len(words)-1], ":")
}

func isBullet(words []string) bool {
	if len(words) < 2 {
		return false
	}
	_, ok := bulletMarkers[words[0]]
	return ok
}
