package typeset

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// RunResult captures one processor pass: its exit status and combined
// stdout/stderr, surfaced verbatim on failure.
type RunResult struct {
	ExitCode int
	Log      []byte
}

// Runner is the external-processor boundary: run one typesetting pass
// over the document at docPath. Implemented by CommandRunner
// (production) and scripted fakes in tests.
type Runner interface {
	Run(ctx context.Context, docPath string) (*RunResult, error)
}

// CommandRunner invokes the LaTeX processor as a subprocess. The
// document's directory becomes the working directory so auxiliary files
// land next to the intermediate document.
type CommandRunner struct {
	Command []string      // argv prefix; the document file name is appended
	Timeout time.Duration // per-pass bound; zero means none
}

// NewCommandRunner splits a processor command line into argv form.
func NewCommandRunner(command string, timeout time.Duration) (*CommandRunner, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, errors.New("empty processor command")
	}
	return &CommandRunner{Command: argv, Timeout: timeout}, nil
}

func (r *CommandRunner) Run(ctx context.Context, docPath string) (*RunResult, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	argv := append(slices.Clone(r.Command), filepath.Base(docPath))
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = filepath.Dir(docPath)

	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("processor pass aborted: %w", ctx.Err())
		}
		var xe *exec.ExitError
		if errors.As(err, &xe) {
			return &RunResult{ExitCode: xe.ExitCode(), Log: out}, nil
		}
		return nil, fmt.Errorf("running %s: %w", argv[0], err)
	}
	return &RunResult{ExitCode: 0, Log: out}, nil
}
