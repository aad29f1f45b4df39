package typeset

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// Phase is the orchestrator's position in the compile state machine.
type Phase string

const (
	PhaseInitial   Phase = "initial"
	PhaseRunning   Phase = "running"
	PhaseConverged Phase = "converged"
	PhaseMaxPasses Phase = "max_passes_exceeded"
	PhaseFailed    Phase = "processor_failed"
)

// State tracks one document's compile loop: the current pass number,
// the auxiliary-state signature it produced, and the terminal phase.
type State struct {
	Pass      int    `json:"pass"`
	Signature string `json:"signature,omitempty"`
	Phase     Phase  `json:"phase"`
}

// ProcessorError reports a failed typesetting pass. Log carries the
// processor's own diagnostic output verbatim.
type ProcessorError struct {
	Pass     int
	ExitCode int
	Log      []byte
	Err      error
}

func (e *ProcessorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("latex processor failed on pass %d: %v", e.Pass, e.Err)
	}
	return fmt.Sprintf("latex processor exited %d on pass %d", e.ExitCode, e.Pass)
}

func (e *ProcessorError) Unwrap() error {
	return e.Err
}

// LogTail returns up to n trailing non-empty lines of the processor log,
// which is where LaTeX prints the actual error.
func (e *ProcessorError) LogTail(n int) string {
	lines := strings.Split(strings.TrimRight(string(e.Log), "\n"), "\n")
	var kept []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			kept = append(kept, l)
		}
	}
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return strings.Join(kept, "\n")
}

// DefaultMaxPasses bounds the compile loop. Most documents converge in
// two or three passes; an incomplete fixed point past the bound is still
// usually usable, so exceeding it is a warning rather than a failure.
const DefaultMaxPasses = 5

// DefaultAuxExts are the auxiliary files LaTeX uses to carry
// cross-reference state between passes.
var DefaultAuxExts = []string{".aux", ".toc", ".lof", ".lot", ".out", ".bbl"}

// Orchestrator owns the compile loop for one or more documents. It holds
// no per-document state; each Compile call tracks its own State.
type Orchestrator struct {
	runner    Runner
	maxPasses int
	auxExts   []string
	log       *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxPasses sets the pass bound.
func WithMaxPasses(n int) Option {
	return func(o *Orchestrator) {
		o.maxPasses = n
	}
}

// WithAuxExts sets the auxiliary file extensions hashed into the
// convergence signature.
func WithAuxExts(exts []string) Option {
	return func(o *Orchestrator) {
		o.auxExts = slices.Clone(exts)
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = l
	}
}

// New creates an Orchestrator around a Runner.
func New(runner Runner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner:    runner,
		maxPasses: DefaultMaxPasses,
		auxExts:   DefaultAuxExts,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Compile drives the processor over docPath until the auxiliary
// signature stabilizes or a bound is hit.
//
// Terminal states:
//   - PhaseConverged: this pass produced the same signature as the last
//     one (or no auxiliary state at all).
//   - PhaseMaxPasses: the bound was exceeded without convergence. Not an
//     error; the last output is delivered as-is.
//   - PhaseFailed: the processor exited non-zero or could not run. The
//     returned error is a *ProcessorError carrying the processor log.
func (o *Orchestrator) Compile(ctx context.Context, docPath string) (State, error) {
	st := State{Phase: PhaseInitial}
	prev := ""

	for pass := 1; ; pass++ {
		st.Phase = PhaseRunning
		st.Pass = pass
		o.log.Info("typesetting pass", "doc", docPath, "pass", pass)

		res, err := o.runner.Run(ctx, docPath)
		if err != nil {
			st.Phase = PhaseFailed
			return st, &ProcessorError{Pass: pass, Err: err}
		}
		if res.ExitCode != 0 {
			st.Phase = PhaseFailed
			return st, &ProcessorError{Pass: pass, ExitCode: res.ExitCode, Log: bytes.Clone(res.Log)}
		}

		sig, err := AuxSignature(docPath, o.auxExts)
		if err != nil {
			st.Phase = PhaseFailed
			return st, &ProcessorError{Pass: pass, Err: err}
		}
		st.Signature = sig

		if sig == "" || sig == prev {
			st.Phase = PhaseConverged
			o.log.Info("typesetting converged", "doc", docPath, "passes", pass)
			return st, nil
		}
		if pass >= o.maxPasses {
			st.Phase = PhaseMaxPasses
			o.log.Warn("max typesetting passes exceeded", "doc", docPath, "passes", pass)
			return st, nil
		}
		prev = sig
	}
}
