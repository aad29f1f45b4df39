package template

import (
	"fmt"
	"os"
)

// Pos is a location in the original template source.
// Line and Col are 1-based; Col counts bytes, matching what LaTeX
// editors display for plain-ASCII sources.
type Pos struct {
	Offset int `json:"offset"`
	Line   int `json:"line"`
	Col    int `json:"col"`
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Template is the immutable raw source text of one document.
type Template struct {
	Name string // file path or synthetic name, used in diagnostics
	Text string
}

// New creates a Template from in-memory text.
func New(name, text string) *Template {
	return &Template{Name: name, Text: text}
}

// Load reads a template file from disk.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template: %w", err)
	}
	return &Template{Name: path, Text: string(data)}, nil
}

// Kind distinguishes literal spans from fragment spans.
type Kind int

const (
	KindLiteral Kind = iota
	KindFragment
)

func (k Kind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindFragment:
		return "fragment"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Span is a contiguous region of the template. Spans partition the
// template exactly: no gaps, no overlaps, ordered by source position.
//
// Text always holds the original source bytes covered by the span,
// delimiters and escapes included, so that concatenating Text over a
// scan result reproduces the template.
type Span struct {
	Kind  Kind
	Start Pos
	Text  string

	// Value is the literal text to emit for KindLiteral spans, with
	// escape sequences resolved. Empty for fragment spans.
	Value string

	// Code is the extracted fragment code, delimiters stripped.
	// Empty for literal spans.
	Code string

	// Ordinal is the fragment's index in document order, starting at 0.
	// Zero for literal spans.
	Ordinal int

	// Raw marks a verbatim fragment: its Code is substituted without
	// evaluation.
	Raw bool
}

// Fragments filters a span sequence down to its fragment spans,
// preserving document order.
func Fragments(spans []Span) []Span {
	var frags []Span
	for _, s := range spans {
		if s.Kind == KindFragment {
			frags = append(frags, s)
		}
	}
	return frags
}

// Reconstruct concatenates the original text of all spans. For any scan
// result this returns the template text exactly.
func Reconstruct(spans []Span) string {
	var n int
	for _, s := range spans {
		n += len(s.Text)
	}
	buf := make([]byte, 0, n)
	for _, s := range spans {
		buf = append(buf, s.Text...)
	}
	return string(buf)
}
