// Package pdftext extracts plain text from PDF documents using the
// poppler pdftotext tool.
//
// Install it with "brew install poppler" on macOS or
// "apt install poppler-utils" on Debian and Ubuntu.
package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

var (
	// ErrToolNotFound indicates pdftotext is not installed or not in PATH.
	ErrToolNotFound = errors.New("pdftotext not found: install poppler-utils")

	// ErrInvalidPDF indicates the input could not be read as a PDF or held no text.
	ErrInvalidPDF = errors.New("invalid or empty PDF")
)

const (
	defaultTool    = "pdftotext"
	defaultTimeout = 30 * time.Second
)

var pdfMagic = []byte("%PDF")

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args. Stderr is folded into the returned error.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// Extractor converts PDF bytes to text.
type Extractor struct {
	tool    string
	timeout time.Duration
	runner  CommandRunner
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithTool overrides the pdftotext binary name or path.
func WithTool(path string) Option {
	return func(e *Extractor) {
		if path != "" {
			e.tool = path
		}
	}
}

// WithTimeout bounds a single extraction.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRunner replaces the command runner, mainly for tests.
func WithRunner(r CommandRunner) Option {
	return func(e *Extractor) {
		if r != nil {
			e.runner = r
		}
	}
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{tool: defaultTool, timeout: defaultTimeout, runner: ExecRunner{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsPDF reports whether an upload should be treated as a PDF, judged by
// its content type, its file name or its leading bytes.
func IsPDF(contentType, fileName string, head []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "pdf") {
		return true
	}
	if strings.HasSuffix(strings.ToLower(fileName), ".pdf") {
		return true
	}
	return bytes.HasPrefix(head, pdfMagic)
}

// Extract reads a PDF from r and returns its text in reading order.
func (e *Extractor) Extract(ctx context.Context, r io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "careerd-*.pdf")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("buffering pdf: %w", err)
	}
	if n == 0 {
		return "", fmt.Errorf("%w: empty input", ErrInvalidPDF)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	out, err := e.runner.Run(ctx, e.tool, "-layout", "-enc", "UTF-8", tmp.Name(), "-")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", ErrToolNotFound
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("pdftotext: %w", ctxErr)
		}
		return "", fmt.Errorf("%w: pdftotext failed: %v", ErrInvalidPDF, err)
	}

	text := strings.TrimSpace(string(out))
	if text == "" {
		return "", fmt.Errorf("%w: no extractable text", ErrInvalidPDF)
	}
	return text, nil
}
