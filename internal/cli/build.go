package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pretex/internal/cache"
	"github.com/roach88/pretex/internal/config"
	"github.com/roach88/pretex/internal/diag"
	"github.com/roach88/pretex/internal/pipeline"
	"github.com/roach88/pretex/internal/typeset"
)

// BuildOptions holds flags for the build command.
type BuildOptions struct {
	*RootOptions
	ConfigPath  string
	Latex       string
	MaxPasses   int
	PassTimeout time.Duration
	Args        []string
	Deps        []string
	NoCache     bool
	CachePath   string
	Jobs        int
	KeepGoing   bool
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "build <template>...",
		Short: "Compile templates to rendered output",
		Long: `Compile one or more templates: evaluate their CUE fragments, write
the pure-LaTeX intermediate documents, and run the LaTeX processor on
each until its auxiliary state stabilizes.

Independent templates are isolated compilation units: fragments in one
never see definitions from another, and they compile in parallel with
--jobs.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // we handle our own error output
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default "+config.DefaultFile+" if present)")
	cmd.Flags().StringVar(&opts.Latex, "latex", "", "LaTeX processor command line")
	cmd.Flags().IntVar(&opts.MaxPasses, "max-passes", 0, "maximum typesetting passes per document")
	cmd.Flags().DurationVar(&opts.PassTimeout, "pass-timeout", 0, "timeout for a single typesetting pass")
	cmd.Flags().StringArrayVarP(&opts.Args, "arg", "a", nil, "template argument, visible to fragments as args[i] (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Deps, "dep", nil, "extra file dependency for cache invalidation (repeatable)")
	cmd.Flags().BoolVar(&opts.NoCache, "no-cache", false, "re-evaluate all fragments, ignore the cache")
	cmd.Flags().StringVar(&opts.CachePath, "cache", "", "fragment cache database path")
	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", 0, "documents compiled in parallel")
	cmd.Flags().BoolVarP(&opts.KeepGoing, "keep-going", "k", false, "continue with remaining templates after a failure")

	return cmd
}

// resolveConfig loads the config file and layers changed flags on top.
func resolveConfig(cmd *cobra.Command, opts *BuildOptions) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if opts.ConfigPath != "" {
		cfg, err = config.Load(opts.ConfigPath)
	} else {
		cfg, err = config.LoadIfExists(config.DefaultFile)
	}
	if err != nil {
		return nil, err
	}

	fl := cmd.Flags()
	if fl.Changed("latex") {
		cfg.Latex = opts.Latex
	}
	if fl.Changed("max-passes") {
		cfg.MaxPasses = opts.MaxPasses
	}
	if fl.Changed("pass-timeout") {
		cfg.PassTimeout = config.Duration(opts.PassTimeout)
	}
	if fl.Changed("arg") {
		cfg.Args = opts.Args
	}
	if fl.Changed("dep") {
		cfg.Deps = append(cfg.Deps, opts.Deps...)
	}
	if fl.Changed("no-cache") {
		cfg.NoCache = opts.NoCache
	}
	if fl.Changed("cache") {
		cfg.Cache = opts.CachePath
	}
	if fl.Changed("jobs") {
		cfg.Jobs = opts.Jobs
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runBuild(opts *BuildOptions, templates []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		formatter.Error(string(diag.KindConfigError), err.Error(), nil)
		return WrapExitError(ExitCommandError, "configuration", err)
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		formatter.Error(string(diag.KindConfigError), err.Error(), nil)
		return WrapExitError(ExitCommandError, "configuration", err)
	}

	if !cfg.NoCache {
		c, err := cache.Open(cfg.Cache)
		if err != nil {
			// Degrade to plain evaluation; a broken cache must not
			// block a build.
			formatter.VerboseLog("cache disabled: %v", err)
		} else {
			defer c.Close()
			p.Cache = c
		}
	}

	results, compileErr := p.CompileAll(cmd.Context(), templates, opts.KeepGoing)

	failed := 0
	for _, res := range results {
		if res == nil {
			continue
		}
		for _, d := range res.Diags {
			fmt.Fprintln(formatter.GetErrWriter(), d.String())
		}
		if !succeeded(res) {
			failed++
		}
	}

	if opts.Format == "json" {
		if err := formatter.JSON(map[string]any{"documents": results}); err != nil {
			return err
		}
	} else {
		for _, res := range results {
			if res == nil {
				continue
			}
			fmt.Fprintln(formatter.Writer, resultLine(res))
		}
	}

	if failed > 0 || compileErr != nil {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d documents failed", failed, len(templates)))
	}
	return nil
}

// succeeded reports whether a document produced usable output. A
// max-passes overrun still counts as success.
func succeeded(res *pipeline.Result) bool {
	switch res.State.Phase {
	case typeset.PhaseConverged, typeset.PhaseMaxPasses:
		return true
	default:
		return false
	}
}

func resultLine(res *pipeline.Result) string {
	switch res.State.Phase {
	case typeset.PhaseConverged:
		cached := ""
		if res.FromCache {
			cached = ", cached"
		}
		return fmt.Sprintf("%s: converged after %d pass(es)%s -> %s",
			res.Template, res.State.Pass, cached, res.Intermediate)
	case typeset.PhaseMaxPasses:
		return fmt.Sprintf("%s: gave up after %d pass(es), delivering last output -> %s",
			res.Template, res.State.Pass, res.Intermediate)
	default:
		return fmt.Sprintf("%s: failed", res.Template)
	}
}
