package eval

import (
	"context"
	"fmt"

	"github.com/roach88/pretex/internal/template"
)

// DocInfo identifies the document a scope belongs to and carries its
// template parameters.
type DocInfo struct {
	Filename string
	Args     []string
}

// Scope is the persistent evaluation environment shared by all fragments
// of one document. A scope is created fresh at document start, mutated
// by every fragment evaluation, and discarded when the substitution pass
// completes. Scopes are never shared across documents or reused across
// compile passes.
type Scope struct {
	Doc DocInfo

	// state is engine-private accumulated evaluation state.
	state any
}

// NewScope creates a fresh document scope.
func NewScope(doc DocInfo) *Scope {
	return &Scope{Doc: doc}
}

// Engine is the embedded-scripting boundary. Eval evaluates one
// fragment's code against the document scope and returns its textual
// substitution. Engines may mutate the scope; later fragments observe
// those effects.
//
// Implemented by CUEEngine (production) and StaticEngine (tests).
type Engine interface {
	Eval(ctx context.Context, scope *Scope, code string) (string, error)
}

// EvalError reports a fragment whose evaluation failed, anchored to the
// fragment's position in the original template.
type EvalError struct {
	File    string
	Pos     template.Pos
	Ordinal int
	Err     error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("%s:%s: fragment %d failed: %v", e.File, e.Pos, e.Ordinal+1, e.Err)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

// Run evaluates fragments strictly in source order against one scope,
// returning one substitution per fragment. Raw fragments substitute
// their own code text without touching the engine.
//
// Fails fast: the first evaluation error aborts the run, and no fragment
// after it is evaluated. Cancellation is honored between fragments, not
// mid-evaluation.
func Run(ctx context.Context, eng Engine, scope *Scope, frags []template.Span) ([]string, error) {
	subs := make([]string, 0, len(frags))
	for _, f := range frags {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.Raw {
			subs = append(subs, f.Code)
			continue
		}
		out, err := eng.Eval(ctx, scope, f.Code)
		if err != nil {
			return nil, &EvalError{File: scope.Doc.Filename, Pos: f.Start, Ordinal: f.Ordinal, Err: err}
		}
		subs = append(subs, out)
	}
	return subs, nil
}
