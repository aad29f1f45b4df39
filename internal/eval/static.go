package eval

import (
	"context"
	"fmt"
)

// StaticEngine returns scripted outputs in call order and records the
// code it was asked to evaluate. Test double for evaluator and pipeline
// tests; enables deterministic assertions on evaluation order and
// fail-fast behavior.
type StaticEngine struct {
	Outputs []string
	Errs    map[int]error // evaluation failures by call index

	Calls []string // code strings in the order they were evaluated
}

// NewStaticEngine creates an engine that returns the given outputs in
// order.
func NewStaticEngine(outputs ...string) *StaticEngine {
	return &StaticEngine{Outputs: outputs}
}

func (e *StaticEngine) Eval(_ context.Context, _ *Scope, code string) (string, error) {
	i := len(e.Calls)
	e.Calls = append(e.Calls, code)
	if err, ok := e.Errs[i]; ok {
		return "", err
	}
	if i >= len(e.Outputs) {
		return "", fmt.Errorf("static engine: no output scripted for call %d", i)
	}
	return e.Outputs[i], nil
}
