package template

import (
	"fmt"
	"strings"
)

// UnterminatedFragmentError reports a fragment delimiter that was opened
// but never closed before the end of the template. Pos points at the
// opening delimiter.
type UnterminatedFragmentError struct {
	File string
	Pos  Pos
}

func (e *UnterminatedFragmentError) Error() string {
	return fmt.Sprintf("%s:%s: unterminated fragment opened here", e.File, e.Pos)
}

// Scan tokenizes a template into an ordered span sequence.
//
// The result partitions the template exactly; Reconstruct over it returns
// the input text byte-for-byte. Scan is deterministic and performs no I/O.
func Scan(t *Template) ([]Span, error) {
	s := &scanner{src: t.Text, file: t.Name, line: 1, col: 1}
	if err := s.run(); err != nil {
		return nil, err
	}
	return s.spans, nil
}

type scanner struct {
	src  string
	file string

	i    int // byte offset of the next unconsumed byte
	line int
	col  int

	spans   []Span
	ordinal int

	litStart Pos
	litText  strings.Builder // original source bytes
	litValue strings.Builder // emitted text, escapes resolved
}

func (s *scanner) pos() Pos {
	return Pos{Offset: s.i, Line: s.line, Col: s.col}
}

// advance consumes n bytes, updating line/col bookkeeping.
func (s *scanner) advance(n int) {
	for k := 0; k < n; k++ {
		if s.src[s.i+k] == '\n' {
			s.line++
			s.col = 1
		} else {
			s.col++
		}
	}
	s.i += n
}

// lit appends an escape-resolved literal run: orig is the source text
// consumed, value the text to emit for it.
func (s *scanner) lit(orig, value string) {
	if s.litText.Len() == 0 {
		s.litStart = s.pos()
	}
	s.litText.WriteString(orig)
	s.litValue.WriteString(value)
	s.advance(len(orig))
}

func (s *scanner) flushLiteral() {
	if s.litText.Len() == 0 {
		return
	}
	s.spans = append(s.spans, Span{
		Kind:  KindLiteral,
		Start: s.litStart,
		Text:  s.litText.String(),
		Value: s.litValue.String(),
	})
	s.litText.Reset()
	s.litValue.Reset()
}

func (s *scanner) run() error {
	for s.i < len(s.src) {
		switch b := s.src[s.i]; b {
		case '\\':
			switch {
			case strings.HasPrefix(s.src[s.i:], `\@{`):
				// \@{ produces a literal @; the brace that follows is
				// ordinary text, so \@{x} comes out as @{x}.
				s.lit(`\@`, "@")
			case strings.HasPrefix(s.src[s.i:], `\%`):
				// \% is an escaped percent in TeX, not a comment start.
				s.lit(`\%`, `\%`)
			default:
				s.lit(`\`, `\`)
			}
		case '%':
			// TeX comment: the rest of the line is literal text and is
			// never scanned for fragments.
			rest := s.src[s.i:]
			end := strings.IndexByte(rest, '\n')
			if end < 0 {
				end = len(rest) - 1
			}
			s.lit(rest[:end+1], rest[:end+1])
		case '@':
			if strings.HasPrefix(s.src[s.i:], "@@") {
				s.lit("@@", "@")
				continue
			}
			consumed, err := s.fragment()
			if err != nil {
				return err
			}
			if !consumed {
				s.lit("@", "@")
			}
		default:
			s.lit(s.src[s.i:s.i+1], s.src[s.i:s.i+1])
		}
	}
	s.flushLiteral()
	return nil
}

// fragment tries to consume a fragment starting at the current '@'.
// Returns false when the '@' does not open a recognized fragment form,
// in which case nothing was consumed.
func (s *scanner) fragment() (bool, error) {
	open := s.pos()
	rest := s.src[s.i:]

	raw := false
	body := rest[1:] // after '@'
	head := 1        // bytes before the opening brace(s)

	// Optional [verbatim] tag. Unknown tags do not open a fragment.
	if strings.HasPrefix(body, "[") {
		close := strings.IndexByte(body, ']')
		if close < 0 {
			return false, nil
		}
		switch body[1:close] {
		case "verbatim":
			raw = true
		case "":
		default:
			return false, nil
		}
		head += close + 1
		body = body[close+1:]
	}

	switch {
	case strings.HasPrefix(body, "{{{"):
		// Raw-delimited form: the body runs to the first }}} with no
		// brace counting, so code may contain unbalanced braces.
		end := strings.Index(body[3:], "}}}")
		if end < 0 {
			return false, &UnterminatedFragmentError{File: s.file, Pos: open}
		}
		total := head + 3 + end + 3
		s.emitFragment(open, rest[:total], body[3:3+end], raw)
		return true, nil
	case strings.HasPrefix(body, "{"):
		depth := 0
		for k := 0; k < len(body); k++ {
			switch body[k] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					total := head + k + 1
					s.emitFragment(open, rest[:total], body[1:k], raw)
					return true, nil
				}
			}
		}
		return false, &UnterminatedFragmentError{File: s.file, Pos: open}
	default:
		return false, nil
	}
}

func (s *scanner) emitFragment(start Pos, text, code string, raw bool) {
	s.flushLiteral()
	s.spans = append(s.spans, Span{
		Kind:    KindFragment,
		Start:   start,
		Text:    text,
		Code:    code,
		Ordinal: s.ordinal,
		Raw:     raw,
	})
	s.ordinal++
	s.advance(len(text))
}
