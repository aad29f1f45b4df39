// Package template implements the fragment scanner and the substitution
// assembler for pretex templates.
//
// A template is opaque LaTeX text with embedded CUE fragments:
//
//	@{ expr }        evaluated fragment, brace-depth aware
//	@{{{ ... }}}     raw-delimited fragment (body may contain unbalanced braces)
//	@[verbatim]{..}  fragment substituted with its own code text, unevaluated
//	\@{  and  @@     escapes producing a literal @{ and @ respectively
//
// Unescaped % starts a TeX comment; the rest of the line is never scanned
// for fragments.
//
// Scanning produces a span sequence that partitions the template exactly:
// concatenating the original text of all spans reproduces the input
// byte-for-byte. The scanner is a pure function of the template text and
// performs no I/O.
package template
