package template

import (
	"fmt"
	"strings"
)

// Assemble reconstructs the intermediate document from a span sequence
// and the per-fragment substitution strings, indexed by fragment ordinal.
//
// Literal spans are emitted byte-for-byte (escape-resolved); fragment
// spans are replaced by their substitution. Pure and deterministic.
func Assemble(spans []Span, subs []string) (string, error) {
	var out strings.Builder
	for _, s := range spans {
		switch s.Kind {
		case KindLiteral:
			out.WriteString(s.Value)
		case KindFragment:
			if s.Ordinal >= len(subs) {
				return "", fmt.Errorf("no substitution for fragment %d at %s", s.Ordinal, s.Start)
			}
			out.WriteString(subs[s.Ordinal])
		default:
			return "", fmt.Errorf("unknown span kind %d", s.Kind)
		}
	}
	return out.String(), nil
}
