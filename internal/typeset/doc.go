// Package typeset drives the external LaTeX processor over an
// intermediate document until the rendered output is stable.
//
// LaTeX resolves cross-references, tables of contents and similar
// forward references across multiple passes, recording progress in
// auxiliary files (.aux, .toc, ...). The orchestrator treats the
// processor as a black box: run a pass, hash the auxiliary state, and
// stop when the signature matches the previous pass. The auxiliary
// format is never parsed, only compared for equality.
//
// State machine per document:
//
//	Initial → Running(pass=n) → {Converged, MaxPassesExceeded, ProcessorFailed}
//
// MaxPassesExceeded is a warning, not a failure: the last produced
// output is still delivered. A non-zero processor exit is fatal for the
// document and carries the processor's own log.
package typeset
