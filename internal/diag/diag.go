// Package diag translates internal failures into user-facing
// diagnostics anchored to the original template source.
//
// Every failure renders as a single line suitable for console display:
//
//	a.tex:12:5: FRAGMENT_EVAL_FAILED: x: reference "undefined" not found
//
// Positions always refer to the template the user wrote, never to the
// generated intermediate document. Internal stack traces never leak.
package diag

import (
	"errors"
	"fmt"

	"github.com/roach88/pretex/internal/eval"
	"github.com/roach88/pretex/internal/template"
	"github.com/roach88/pretex/internal/typeset"
)

// Kind categorizes a diagnostic.
type Kind string

const (
	KindUnterminatedFragment Kind = "UNTERMINATED_FRAGMENT"
	KindFragmentEvalFailed   Kind = "FRAGMENT_EVAL_FAILED"
	KindProcessorFailed      Kind = "PROCESSOR_FAILED"
	KindMaxPassesExceeded    Kind = "MAX_PASSES_EXCEEDED"
	KindConfigError          Kind = "CONFIG_ERROR"
	KindCacheError           Kind = "CACHE_ERROR"
	KindInternal             Kind = "INTERNAL"
)

// Severity is the reporting level of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is the single reporting structure for all failure points.
// File/Line/Col locate the problem in the original template when the
// failure has a source position.
type Diagnostic struct {
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
	Col      int      `json:"col,omitempty"`
}

// String renders the one-line console form.
func (d Diagnostic) String() string {
	prefix := ""
	if d.File != "" {
		prefix = d.File
		if d.Line > 0 {
			prefix = fmt.Sprintf("%s:%d:%d", d.File, d.Line, d.Col)
		}
		prefix += ": "
	}
	return fmt.Sprintf("%s%s: %s", prefix, d.Kind, d.Message)
}

// Errorf builds an error-severity diagnostic without a source position.
func Errorf(kind Kind, format string, args ...any) Diagnostic {
	return Diagnostic{Kind: kind, Severity: SeverityError, Message: fmt.Sprintf(format, args...)}
}

// Warningf builds a warning-severity diagnostic.
func Warningf(kind Kind, format string, args ...any) Diagnostic {
	return Diagnostic{Kind: kind, Severity: SeverityWarning, Message: fmt.Sprintf(format, args...)}
}

// MaxPasses builds the non-fatal bound-exceeded warning for a document.
func MaxPasses(file string, passes int) Diagnostic {
	d := Warningf(KindMaxPassesExceeded,
		"no stable output after %d passes; delivering the last one", passes)
	d.File = file
	return d
}

// processorLogLines bounds how much of the LaTeX log a diagnostic quotes.
const processorLogLines = 5

// FromError maps any pipeline error onto a Diagnostic. Scanner and
// evaluator failures carry their original-template positions; processor
// failures quote the tail of the processor's own log.
func FromError(err error) Diagnostic {
	var ue *template.UnterminatedFragmentError
	if errors.As(err, &ue) {
		return Diagnostic{
			Kind:     KindUnterminatedFragment,
			Severity: SeverityError,
			Message:  "fragment delimiter opened but never closed",
			File:     ue.File,
			Line:     ue.Pos.Line,
			Col:      ue.Pos.Col,
		}
	}

	var ee *eval.EvalError
	if errors.As(err, &ee) {
		return Diagnostic{
			Kind:     KindFragmentEvalFailed,
			Severity: SeverityError,
			Message:  ee.Err.Error(),
			File:     ee.File,
			Line:     ee.Pos.Line,
			Col:      ee.Pos.Col,
		}
	}

	var pe *typeset.ProcessorError
	if errors.As(err, &pe) {
		msg := pe.Error()
		if tail := pe.LogTail(processorLogLines); tail != "" {
			msg += "\n" + tail
		}
		return Diagnostic{Kind: KindProcessorFailed, Severity: SeverityError, Message: msg}
	}

	return Diagnostic{Kind: KindInternal, Severity: SeverityError, Message: err.Error()}
}
