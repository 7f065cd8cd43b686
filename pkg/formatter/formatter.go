// Package formatter pretty-prints note content for a code language.
package formatter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"go/format"
	"os/exec"
	"strconv"
	"strings"
)

// Formatter formats content written in language
type Formatter interface {
	Format(ctx context.Context, content, language string) (string, error)
}

// Func adapts a function to Formatter
type Func func(ctx context.Context, content, language string) (string, error)

// Format calls f
func (f Func) Format(ctx context.Context, content, language string) (string, error) {
	return f(ctx, content, language)
}

// Options mirror the formatting preferences of the editor
type Options struct {
	Command     string `yaml:"command"`
	TabWidth    int    `yaml:"tab_width"`
	SingleQuote bool   `yaml:"single_quote"`
	Semi        bool   `yaml:"semi"`
}

// DefaultOptions returns the editor defaults
func DefaultOptions() Options {
	return Options{
		Command:     "prettier",
		TabWidth:    2,
		SingleQuote: true,
		Semi:        true,
	}
}

// GoFormatter formats Go source with gofmt rules
func GoFormatter() Formatter {
	return Func(func(_ context.Context, content, _ string) (string, error) {
		out, err := format.Source([]byte(content))
		if err != nil {
			return "", err
		}
		return string(out), nil
	})
}

// JSONFormatter re-indents JSON documents
func JSONFormatter(tabWidth int) Formatter {
	if tabWidth <= 0 {
		tabWidth = 2
	}
	indent := strings.Repeat(" ", tabWidth)
	return Func(func(_ context.Context, content, _ string) (string, error) {
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(strings.TrimSpace(content)), "", indent); err != nil {
			return "", err
		}
		buf.WriteByte('\n')
		return buf.String(), nil
	})
}

// ExecFormatter pipes content through an external command
type ExecFormatter struct {
	Command string
	// ArgsFor returns the arguments for a language
	ArgsFor func(language string) []string
}

// Format runs the command with content on stdin and returns its stdout. On
// failure the error carries the command's stderr.
func (e *ExecFormatter) Format(ctx context.Context, content, language string) (string, error) {
	var args []string
	if e.ArgsFor != nil {
		args = e.ArgsFor(language)
	}
	cmd := exec.CommandContext(ctx, e.Command, args...)
	cmd.Stdin = strings.NewReader(content)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s", msg)
		}
		return "", fmt.Errorf("%s: %w", e.Command, err)
	}
	return stdout.String(), nil
}

// PrettierArgs builds a prettier command line for a parser name
func PrettierArgs(opts Options) func(language string) []string {
	return func(language string) []string {
		args := []string{"--parser", language, "--tab-width", strconv.Itoa(opts.TabWidth)}
		if opts.SingleQuote {
			args = append(args, "--single-quote")
		}
		if !opts.Semi {
			args = append(args, "--no-semi")
		}
		return args
	}
}

// Registry dispatches to a formatter per language, falling back to an
// external command
type Registry struct {
	byLanguage map[string]Formatter
	fallback   Formatter
}

// NewRegistry returns a registry with the built-in Go and JSON formatters
// and, when opts.Command is set, a prettier-compatible fallback.
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		byLanguage: map[string]Formatter{
			"go":     GoFormatter(),
			"golang": GoFormatter(),
			"json":   JSONFormatter(opts.TabWidth),
		},
	}
	if opts.Command != "" {
		r.fallback = &ExecFormatter{Command: opts.Command, ArgsFor: PrettierArgs(opts)}
	}
	return r
}

// Register sets the formatter for a language
func (r *Registry) Register(language string, f Formatter) {
	r.byLanguage[strings.ToLower(language)] = f
}

// Format formats content with the formatter registered for language
func (r *Registry) Format(ctx context.Context, content, language string) (string, error) {
	if f, ok := r.byLanguage[strings.ToLower(language)]; ok {
		return f.Format(ctx, content, language)
	}
	if r.fallback == nil {
		return "", fmt.Errorf("no formatter available for %q", language)
	}
	return r.fallback.Format(ctx, content, language)
}
