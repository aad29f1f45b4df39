// Package pipeline wires one document's full compile: scan the
// template, evaluate fragments (or reuse cached outputs), assemble the
// intermediate LaTeX document, and drive the typesetting loop.
//
// Each document is processed by an independent pipeline run with its own
// evaluation scope and compile state; documents share nothing but the
// cache database. Within one document everything is strictly
// sequential - fragment order is an observable contract.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/pretex/internal/cache"
	"github.com/roach88/pretex/internal/config"
	"github.com/roach88/pretex/internal/diag"
	"github.com/roach88/pretex/internal/eval"
	"github.com/roach88/pretex/internal/template"
	"github.com/roach88/pretex/internal/typeset"
)

// Pipeline holds the collaborators for compiling documents. Construct
// with New for production wiring; tests swap in fakes field by field.
type Pipeline struct {
	Config *config.Config

	// NewEngine creates a fragment evaluation engine. Called once per
	// document so parallel builds never share engine state.
	NewEngine func() eval.Engine

	Runner typeset.Runner
	Cache  *cache.Cache // nil disables output caching
	Tokens TokenGenerator
	Log    *slog.Logger
}

// New wires a production pipeline from configuration: CUE engine,
// subprocess LaTeX runner, UUIDv7 run tokens. The cache is left nil;
// the caller owns opening and closing it.
func New(cfg *config.Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	runner, err := typeset.NewCommandRunner(cfg.Latex, cfg.PassTimeout.Std())
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		Config:    cfg,
		NewEngine: func() eval.Engine { return eval.NewCUEEngine() },
		Runner:    runner,
		Tokens:    UUIDv7Generator{},
		Log:       slog.Default(),
	}, nil
}

// Result is the outcome of one document's compile.
type Result struct {
	Template     string            `json:"template"`
	Intermediate string            `json:"intermediate,omitempty"`
	State        typeset.State     `json:"state"`
	Diags        []diag.Diagnostic `json:"diagnostics,omitempty"`
	FromCache    bool              `json:"from_cache,omitempty"`
}

// IntermediatePath returns where the pure-LaTeX intermediate document
// for a template is written: the template path with its extension
// replaced by .pretex.
func IntermediatePath(templatePath string) string {
	return strings.TrimSuffix(templatePath, filepath.Ext(templatePath)) + ".pretex"
}

// Expand runs scan → evaluate → assemble for one template and returns
// the intermediate document text. Nothing is written to disk and the
// typesetting processor is not invoked.
func (p *Pipeline) Expand(ctx context.Context, templatePath string) (string, bool, error) {
	tpl, err := template.Load(templatePath)
	if err != nil {
		return "", false, err
	}
	spans, err := template.Scan(tpl)
	if err != nil {
		return "", false, err
	}
	frags := template.Fragments(spans)

	subs, fromCache, err := p.substitutions(ctx, tpl, frags)
	if err != nil {
		return "", false, err
	}
	out, err := template.Assemble(spans, subs)
	return out, fromCache, err
}

// substitutions produces the per-fragment outputs, consulting the cache
// first. Cache read/write failures degrade to plain evaluation.
func (p *Pipeline) substitutions(ctx context.Context, tpl *template.Template, frags []template.Span) ([]string, bool, error) {
	codes := make([]string, len(frags))
	for i, f := range frags {
		codes[i] = f.Code
	}
	key := cache.DocumentKey(codes, p.Config.Args)
	depPaths := append([]string{tpl.Name}, p.Config.Deps...)

	if p.Cache != nil && !p.Config.NoCache {
		entry, err := p.Cache.Lookup(ctx, tpl.Name, key)
		if err != nil {
			p.Log.Warn("cache lookup failed", "template", tpl.Name, "err", err)
		} else if entry != nil && len(entry.Outputs) == len(frags) {
			return entry.Outputs, true, nil
		}
	}

	scope := eval.NewScope(eval.DocInfo{Filename: tpl.Name, Args: p.Config.Args})
	subs, err := eval.Run(ctx, p.NewEngine(), scope, frags)
	if err != nil {
		return nil, false, err
	}

	if p.Cache != nil && !p.Config.NoCache {
		entry := &cache.Entry{Key: key, Outputs: subs, Deps: cache.StatDeps(depPaths)}
		if err := p.Cache.Store(ctx, tpl.Name, entry); err != nil {
			p.Log.Warn("cache store failed", "template", tpl.Name, "err", err)
		}
	}
	return subs, false, nil
}

// Compile runs the whole pipeline for one template: expand, write the
// intermediate document, then drive the typesetting loop to a stable
// output.
//
// Scan and evaluation failures abort before anything is written; the
// returned Result always carries the diagnostics for whatever went
// wrong. A max-passes overrun is reported as a warning diagnostic, not
// an error.
func (p *Pipeline) Compile(ctx context.Context, templatePath string) (*Result, error) {
	token := p.Tokens.Generate()
	log := p.Log.With("run", token, "template", templatePath)
	res := &Result{Template: templatePath}

	log.Info("compile starting")
	text, fromCache, err := p.Expand(ctx, templatePath)
	if err != nil {
		res.Diags = append(res.Diags, diag.FromError(err))
		return res, err
	}
	res.FromCache = fromCache
	if fromCache {
		log.Info("fragment outputs reused from cache")
	}

	intermediate := IntermediatePath(templatePath)
	if err := os.WriteFile(intermediate, []byte(text), 0o644); err != nil {
		err = fmt.Errorf("writing intermediate document: %w", err)
		res.Diags = append(res.Diags, diag.FromError(err))
		return res, err
	}
	res.Intermediate = intermediate
	log.Info("intermediate document written", "path", intermediate)

	orch := typeset.New(p.Runner,
		typeset.WithMaxPasses(p.Config.MaxPasses),
		typeset.WithAuxExts(p.Config.AuxExts),
		typeset.WithLogger(log),
	)
	state, err := orch.Compile(ctx, intermediate)
	res.State = state
	if err != nil {
		res.Diags = append(res.Diags, diag.FromError(err))
		return res, err
	}
	if state.Phase == typeset.PhaseMaxPasses {
		res.Diags = append(res.Diags, diag.MaxPasses(templatePath, state.Pass))
	}
	log.Info("compile finished", "phase", string(state.Phase), "passes", state.Pass)
	return res, nil
}

// CompileAll compiles templates as independent parallel pipelines,
// bounded by Config.Jobs. Results are positionally aligned with paths;
// entries may be partial when their document failed.
//
// With keepGoing, failures are recorded in their Result and the rest of
// the batch still compiles; otherwise the first failure cancels
// outstanding documents.
func (p *Pipeline) CompileAll(ctx context.Context, paths []string, keepGoing bool) ([]*Result, error) {
	results := make([]*Result, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Config.Jobs)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			res, err := p.Compile(gctx, path)
			results[i] = res
			if err != nil && !keepGoing {
				return err
			}
			return nil
		})
	}
	err := g.Wait()
	return results, err
}
