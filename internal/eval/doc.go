// Package eval evaluates template fragments against a persistent
// per-document scope.
//
// The Engine interface is the embedded-scripting boundary: evaluate one
// code string against the document scope, get its textual substitution
// back or a described failure. The production engine is CUE
// (cuelang.org/go); a fragment is either an expression, rendered to
// text, or a set of declarations unified into the scope for later
// fragments to reference.
//
// Evaluation order is an observable contract. Fragments run strictly in
// source order and share one Scope, so a fragment can define values that
// downstream fragments use. The first failure stops the run: a later
// fragment may depend on state the failed one would have established.
package eval
