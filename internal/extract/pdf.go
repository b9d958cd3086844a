package extract

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/kailas-cloud/transferguard/internal/domain"
)

// ErrPDFToolNotFound signals that pdftotext (poppler-utils) is not installed.
var ErrPDFToolNotFound = errors.New("pdftotext not found in PATH; install poppler-utils")

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

// Run executes name with args.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// PDF extracts text with the pdftotext CLI.
type PDF struct {
	runner   CommandRunner
	lookPath func(string) (string, error)
}

// NewPDF creates a PDF extractor around runner.
func NewPDF(runner CommandRunner) *PDF {
	return &PDF{runner: runner, lookPath: exec.LookPath}
}

// CheckAvailable returns ErrPDFToolNotFound when pdftotext is missing.
func (p *PDF) CheckAvailable() error {
	if _, err := p.lookPath("pdftotext"); err != nil {
		return ErrPDFToolNotFound
	}
	return nil
}

// Extract runs pdftotext and returns its output. A missing tool is reported as an
// unsupported format since nothing else can read the file.
func (p *PDF) Extract(ctx context.Context, path string) (string, error) {
	if err := p.CheckAvailable(); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrUnsupportedFormat, err)
	}
	out, err := p.runner.Run(ctx, "pdftotext", "-enc", "UTF-8", "-layout", path, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w", err)
	}
	return string(out), nil
}
