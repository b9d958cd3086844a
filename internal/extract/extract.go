// Package extract turns uploaded files into plain text. The extractor is picked by file
// extension from a fixed lookup table.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kailas-cloud/transferguard/internal/domain"
)

// Func extracts raw text from the file at path.
type Func func(ctx context.Context, path string) (string, error)

// Registry maps lower-case file extensions to extractors.
type Registry struct {
	byExt map[string]Func
}

// Option configures a Registry.
type Option func(*Registry)

// WithExtractor registers or overrides the extractor for ext (".pdf", ".txt", ...).
func WithExtractor(ext string, fn Func) Option {
	return func(r *Registry) {
		r.byExt[strings.ToLower(ext)] = fn
	}
}

// New creates a registry with the default table: plain text, Markdown, DOCX and PDF.
func New(opts ...Option) *Registry {
	pdf := NewPDF(ExecRunner{})
	r := &Registry{byExt: map[string]Func{
		".txt":  plainText,
		".text": plainText,
		".md":   plainText,
		".docx": docxText,
		".pdf":  pdf.Extract,
	}}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Supports reports whether path has a known extension.
func (r *Registry) Supports(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extract returns normalized text. Unknown extensions yield ErrUnsupportedFormat,
// files without any text yield ErrEmptyDocument.
func (r *Registry) Extract(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	fn, ok := r.byExt[ext]
	if !ok {
		return "", fmt.Errorf("extension %q: %w", ext, domain.ErrUnsupportedFormat)
	}
	raw, err := fn(ctx, path)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", filepath.Base(path), err)
	}
	text := Normalize(raw)
	if text == "" {
		return "", fmt.Errorf("extract %s: %w", filepath.Base(path), domain.ErrEmptyDocument)
	}
	return text, nil
}

// Normalize collapses runs of whitespace and trims the result. Paragraph breaks become a
// single newline so sentence boundaries survive.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	paras := strings.Split(s, "\n")
	out := make([]string, 0, len(paras))
	for _, p := range paras {
		if f := strings.Fields(p); len(f) > 0 {
			out = append(out, strings.Join(f, " "))
		}
	}
	return strings.Join(out, "\n")
}

func plainText(_ context.Context, path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return string(b), nil
}
