// Package chunking splits extracted document text into bounded segments.
package chunking

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxChars is the default upper bound of a chunk in characters.
const DefaultMaxChars = 1000

// Chunker packs whole sentences into windows of at most maxChars characters.
// Sentences longer than a window are split on word boundaries, words longer than a
// window are hard-split. Without overlap the windows are disjoint.
type Chunker struct {
	maxChars   int
	overlap    int
	statements bool
}

// Option configures the chunker.
type Option func(*Chunker)

// WithMaxChars sets the window size in characters.
func WithMaxChars(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxChars = n
		}
	}
}

// WithOverlap carries trailing words of the previous window, up to n characters,
// into the next one.
func WithOverlap(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlap = n
		}
	}
}

// WithStatements switches to statement mode: every sentence becomes its own
// segment and lists stay under their heading. Overlap is not applied.
func WithStatements() Option {
	return func(c *Chunker) { c.statements = true }
}

// New creates a chunker. Overlap is clamped below the window size.
func New(opts ...Option) *Chunker {
	c := &Chunker{maxChars: DefaultMaxChars}
	for _, o := range opts {
		o(c)
	}
	if c.overlap >= c.maxChars {
		c.overlap = c.maxChars / 4
	}
	return c
}

// MaxChars returns the window size.
func (c *Chunker) MaxChars() int { return c.maxChars }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Statements reports whether the chunker runs in statement mode.
func (c *Chunker) Statements() bool { return c.statements }

// Split returns the segments of text in order. Blank text yields no segments.
// Line breaks between sentences are kept inside a segment.
func (c *Chunker) Split(text string) []string {
	if c.statements {
		return c.splitStatements(text)
	}
	return c.pack(sentences(text), c.overlap)
}

// pack fills windows with whole sentences.
func (c *Chunker) pack(sents []sentence, overlap int) []string {
	w := &window{limit: c.maxChars, overlap: overlap}
	sep := " "
	for _, st := range sents {
		words := st.words
		if w.fits(words) {
			w.addAll(words, sep)
		} else if n := wordsLen(words); n <= c.maxChars {
			w.flush()
			w.makeRoom(n)
			w.addAll(words, sep)
		} else {
			for i, word := range words {
				for _, piece := range hardSplit(word, c.maxChars) {
					if !w.fits([]string{piece}) {
						w.flush()
						w.makeRoom(utf8.RuneCountInString(piece))
					}
					if i == 0 {
						w.add(piece, sep)
					} else {
						w.add(piece, " ")
					}
				}
			}
		}
		sep = " "
		if st.lineEnd {
			sep = "\n"
		}
	}
	w.flush()
	return w.out
}

type window struct {
	limit   int
	overlap int
	words   []string
	// seps[i] precedes words[i]; seps[0] is never written out.
	seps []string
	size int
	// fresh is false while the window holds only carried-over words.
	fresh bool
	out   []string
}

func (w *window) fits(words []string) bool {
	n := wordsLen(words)
	if len(w.words) == 0 {
		return n <= w.limit
	}
	return w.size+1+n <= w.limit
}

func (w *window) add(word, sep string) {
	if len(w.words) > 0 {
		w.size++
	}
	w.words = append(w.words, word)
	w.seps = append(w.seps, sep)
	w.size += utf8.RuneCountInString(word)
	w.fresh = true
}

// addAll appends a sentence. lead separates it from the window's previous word.
func (w *window) addAll(words []string, lead string) {
	for i, word := range words {
		if i == 0 {
			w.add(word, lead)
			continue
		}
		w.add(word, " ")
	}
}

func (w *window) flush() {
	if !w.fresh {
		return
	}
	var b strings.Builder
	for i, word := range w.words {
		if i > 0 {
			b.WriteString(w.seps[i])
		}
		b.WriteString(word)
	}
	w.out = append(w.out, b.String())

	keep := len(w.words)
	n := 0
	for i := len(w.words) - 1; i >= 0 && w.overlap > 0; i-- {
		l := utf8.RuneCountInString(w.words[i])
		if n > 0 {
			l++
		}
		if n+l > w.overlap {
			break
		}
		n += l
		keep = i
	}
	w.words = append([]string(nil), w.words[keep:]...)
	w.seps = append([]string(nil), w.seps[keep:]...)
	w.size = n
	w.fresh = false
}

// makeRoom drops carried words from the front until n more characters fit.
func (w *window) makeRoom(n int) {
	for len(w.words) > 0 && w.size+1+n > w.limit {
		dropped := utf8.RuneCountInString(w.words[0])
		w.words = w.words[1:]
		w.seps = w.seps[1:]
		w.size -= dropped
		if len(w.words) > 0 {
			w.size--
		}
	}
}

type sentence struct {
	words []string
	// lineEnd is set when the sentence is the last one on its line.
	lineEnd bool
}

// sentences groups words into sentences. A sentence ends at terminal punctuation or
// at a line break.
func sentences(text string) []sentence {
	var out []sentence
	for _, line := range strings.Split(text, "\n") {
		var cur []string
		start := len(out)
		for _, word := range strings.Fields(line) {
			cur = append(cur, word)
			if strings.ContainsAny(word[len(word)-1:], ".!?") {
				out = append(out, sentence{words: cur})
				cur = nil
			}
		}
		if len(cur) > 0 {
			out = append(out, sentence{words: cur})
		}
		if len(out) > start {
			out[len(out)-1].lineEnd = true
		}
	}
	return out
}

func wordsLen(words []string) int {
	if len(words) == 0 {
		return 0
	}
	n := len(words) - 1
	for _, w := range words {
		n += utf8.RuneCountInString(w)
	}
	return n
}

func hardSplit(word string, size int) []string {
	if utf8.RuneCountInString(word) <= size {
		return []string{word}
	}
	runes := []rune(word)
	var out []string
	for len(runes) > size {
		out = append(out, string(runes[:size]))
		runes = runes[size:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
