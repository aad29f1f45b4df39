package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pretex/internal/cache"
	"github.com/roach88/pretex/internal/config"
	"github.com/roach88/pretex/internal/diag"
	"github.com/roach88/pretex/internal/eval"
	"github.com/roach88/pretex/internal/typeset"
)

// fakeRunner exits 0 on every pass and optionally writes a fresh .aux
// file per pass so the signature never stabilizes.
type fakeRunner struct {
	mu       sync.Mutex
	churnAux bool
	calls    int
}

func (r *fakeRunner) Run(_ context.Context, docPath string) (*typeset.RunResult, error) {
	r.mu.Lock()
	r.calls++
	n := r.calls
	r.mu.Unlock()
	if r.churnAux {
		base := docPath[:len(docPath)-len(filepath.Ext(docPath))]
		content := []byte{byte('0' + n%10)}
		if err := os.WriteFile(base+".aux", content, 0o644); err != nil {
			return nil, err
		}
	}
	return &typeset.RunResult{ExitCode: 0}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTemplate(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.tex")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func testPipeline(cfg *config.Config, eng func() eval.Engine, runner typeset.Runner) *Pipeline {
	return &Pipeline{
		Config:    cfg,
		NewEngine: eng,
		Runner:    runner,
		Tokens:    UUIDv7Generator{},
		Log:       discardLogger(),
	}
}

func TestExpand_WithCUEEngine(t *testing.T) {
	path := writeTemplate(t, "A @{1+1} B\n")
	cfg := config.Default()
	cfg.NoCache = true
	p := testPipeline(cfg, func() eval.Engine { return eval.NewCUEEngine() }, &fakeRunner{})

	out, fromCache, err := p.Expand(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "A 2 B\n", out)
	assert.False(t, fromCache)
}

func TestCompile_WritesIntermediateAndConverges(t *testing.T) {
	path := writeTemplate(t, "@{name: \"Ada\"}Hello @{name}!\n")
	cfg := config.Default()
	cfg.NoCache = true
	runner := &fakeRunner{}
	p := testPipeline(cfg, func() eval.Engine { return eval.NewCUEEngine() }, runner)

	res, err := p.Compile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, typeset.PhaseConverged, res.State.Phase)
	assert.Equal(t, IntermediatePath(path), res.Intermediate)
	assert.Empty(t, res.Diags)

	data, err := os.ReadFile(res.Intermediate)
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada!\n", string(data),
		"declaration fragments substitute nothing")
}

func TestCompile_ScanErrorWritesNothing(t *testing.T) {
	path := writeTemplate(t, "broken @{never closed")
	cfg := config.Default()
	cfg.NoCache = true
	p := testPipeline(cfg, func() eval.Engine { return eval.NewCUEEngine() }, &fakeRunner{})

	res, err := p.Compile(context.Background(), path)
	require.Error(t, err)

	require.Len(t, res.Diags, 1)
	assert.Equal(t, diag.KindUnterminatedFragment, res.Diags[0].Kind)

	_, statErr := os.Stat(IntermediatePath(path))
	assert.True(t, errors.Is(statErr, os.ErrNotExist),
		"fail-fast: no partial intermediate document on disk")
}

func TestCompile_EvalErrorWritesNothing(t *testing.T) {
	path := writeTemplate(t, "@{undefined_reference}")
	cfg := config.Default()
	cfg.NoCache = true
	p := testPipeline(cfg, func() eval.Engine { return eval.NewCUEEngine() }, &fakeRunner{})

	res, err := p.Compile(context.Background(), path)
	require.Error(t, err)

	require.Len(t, res.Diags, 1)
	assert.Equal(t, diag.KindFragmentEvalFailed, res.Diags[0].Kind)
	assert.Equal(t, path, res.Diags[0].File, "anchored to the original template")

	_, statErr := os.Stat(IntermediatePath(path))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestCompile_MaxPassesYieldsWarning(t *testing.T) {
	path := writeTemplate(t, "plain text")
	cfg := config.Default()
	cfg.NoCache = true
	cfg.MaxPasses = 1
	runner := &fakeRunner{churnAux: true}
	p := testPipeline(cfg, func() eval.Engine { return eval.NewCUEEngine() }, runner)

	res, err := p.Compile(context.Background(), path)
	require.NoError(t, err, "exceeding the pass bound is not fatal")

	assert.Equal(t, typeset.PhaseMaxPasses, res.State.Phase)
	require.Len(t, res.Diags, 1)
	assert.Equal(t, diag.KindMaxPassesExceeded, res.Diags[0].Kind)
	assert.Equal(t, diag.SeverityWarning, res.Diags[0].Severity)

	data, err := os.ReadFile(res.Intermediate)
	require.NoError(t, err)
	assert.Equal(t, "plain text", string(data), "the last output is still delivered")
}

// countingEngine wraps an engine and counts evaluations across documents.
type countingEngine struct {
	inner eval.Engine
	calls *atomic.Int64
}

func (e countingEngine) Eval(ctx context.Context, scope *eval.Scope, code string) (string, error) {
	e.calls.Add(1)
	return e.inner.Eval(ctx, scope, code)
}

func TestCompile_CacheReusesOutputs(t *testing.T) {
	path := writeTemplate(t, "val=@{6*7}\n")
	cfg := config.Default()

	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer c.Close()

	var calls atomic.Int64
	p := testPipeline(cfg, func() eval.Engine {
		return countingEngine{inner: eval.NewCUEEngine(), calls: &calls}
	}, &fakeRunner{})
	p.Cache = c

	res, err := p.Compile(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, int64(1), calls.Load())

	res, err = p.Compile(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, res.FromCache, "unchanged fragments hit the cache")
	assert.Equal(t, int64(1), calls.Load(), "no re-evaluation on a hit")

	data, err := os.ReadFile(res.Intermediate)
	require.NoError(t, err)
	assert.Equal(t, "val=42\n", string(data))
}

func TestCompile_CacheInvalidatedByTemplateChange(t *testing.T) {
	path := writeTemplate(t, "val=@{6*7}\n")
	cfg := config.Default()

	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer c.Close()

	var calls atomic.Int64
	p := testPipeline(cfg, func() eval.Engine {
		return countingEngine{inner: eval.NewCUEEngine(), calls: &calls}
	}, &fakeRunner{})
	p.Cache = c

	_, err = p.Compile(context.Background(), path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("val=@{6*8}\n"), 0o644))
	res, err := p.Compile(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, int64(2), calls.Load())

	data, err := os.ReadFile(res.Intermediate)
	require.NoError(t, err)
	assert.Equal(t, "val=48\n", string(data))
}

func TestCompileAll_Parallel(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.tex", "b.tex", "c.tex"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("doc @{1+1}\n"), 0o644))
		paths = append(paths, p)
	}

	cfg := config.Default()
	cfg.NoCache = true
	cfg.Jobs = 3
	p := testPipeline(cfg, func() eval.Engine { return eval.NewCUEEngine() }, &fakeRunner{})

	results, err := p.CompileAll(context.Background(), paths, false)
	require.NoError(t, err)

	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, paths[i], res.Template, "results align with input order")
		assert.Equal(t, typeset.PhaseConverged, res.State.Phase)
	}
}

func TestCompileAll_KeepGoing(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.tex")
	good := filepath.Join(dir, "good.tex")
	require.NoError(t, os.WriteFile(bad, []byte("@{nope"), 0o644))
	require.NoError(t, os.WriteFile(good, []byte("fine @{2+2}\n"), 0o644))

	cfg := config.Default()
	cfg.NoCache = true
	p := testPipeline(cfg, func() eval.Engine { return eval.NewCUEEngine() }, &fakeRunner{})

	results, err := p.CompileAll(context.Background(), []string{bad, good}, true)
	require.NoError(t, err, "keep-going swallows per-document failures")

	require.Len(t, results, 2)
	assert.NotEmpty(t, results[0].Diags)
	assert.Equal(t, typeset.PhaseConverged, results[1].State.Phase)
}

func TestIntermediatePath(t *testing.T) {
	assert.Equal(t, "a.pretex", IntermediatePath("a.tex"))
	assert.Equal(t, filepath.Join("some", "dir", "b.pretex"), IntermediatePath(filepath.Join("some", "dir", "b.tex")))
	assert.Equal(t, "noext.pretex", IntermediatePath("noext"))
}
