package eval

import (
	"context"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/format"
	"cuelang.org/go/cue/parser"
)

// CUEEngine evaluates fragments as CUE code.
//
// Each fragment is first parsed as a single expression; if that parses,
// the expression is built against the accumulated document scope and its
// value is rendered to text. Otherwise the fragment is compiled as CUE
// declarations and unified into the scope, substituting the empty
// string. This mirrors the classic eval-then-exec split of template
// preprocessors: @{x} prints, @{x: 3} defines.
type CUEEngine struct {
	cctx *cue.Context
}

// NewCUEEngine creates an engine with its own CUE runtime. An engine
// instance must not be shared across concurrently compiled documents.
func NewCUEEngine() *CUEEngine {
	return &CUEEngine{cctx: cuecontext.New()}
}

// cueState is the engine-private scope state: the unified value of all
// declaration fragments seen so far, seeded with the document facts.
type cueState struct {
	root cue.Value
}

func (e *CUEEngine) state(scope *Scope) (*cueState, error) {
	if st, ok := scope.state.(*cueState); ok {
		return st, nil
	}
	if scope.state != nil {
		return nil, fmt.Errorf("scope already bound to a different engine")
	}
	args := scope.Doc.Args
	if args == nil {
		args = []string{}
	}
	seed := e.cctx.Encode(map[string]any{
		"filename": scope.Doc.Filename,
		"args":     args,
	})
	if err := seed.Err(); err != nil {
		return nil, fmt.Errorf("seeding scope: %w", err)
	}
	st := &cueState{root: seed}
	scope.state = st
	return st, nil
}

func (e *CUEEngine) Eval(_ context.Context, scope *Scope, code string) (string, error) {
	st, err := e.state(scope)
	if err != nil {
		return "", err
	}

	if expr, perr := parser.ParseExpr(scope.Doc.Filename, code); perr == nil {
		v := e.cctx.BuildExpr(expr, cue.Scope(st.root), cue.InferBuiltins(true))
		return render(v)
	}

	// Not an expression: compile as declarations and unify into the
	// document scope so later fragments can reference them.
	v := e.cctx.CompileString(code, cue.Filename(scope.Doc.Filename), cue.Scope(st.root))
	if err := v.Err(); err != nil {
		return "", err
	}
	merged := st.root.Unify(v)
	if err := merged.Err(); err != nil {
		return "", err
	}
	st.root = merged
	return "", nil
}

// render converts any CUE value to its substitution text. The mapping is
// total over concrete values and deterministic: strings emit their
// contents unquoted, null emits nothing, everything else emits canonical
// CUE source. Incomplete or erroneous values are evaluation failures.
func render(v cue.Value) (string, error) {
	if err := v.Err(); err != nil {
		return "", err
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return "", err
	}
	switch v.Kind() {
	case cue.NullKind:
		return "", nil
	case cue.StringKind:
		return v.String()
	case cue.BytesKind:
		b, err := v.Bytes()
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		node := v.Syntax(cue.Concrete(true), cue.Final())
		b, err := format.Node(node)
		if err != nil {
			return "", fmt.Errorf("rendering value: %w", err)
		}
		return strings.TrimRight(string(b), "\n"), nil
	}
}
