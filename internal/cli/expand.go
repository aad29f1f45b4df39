package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/pretex/internal/config"
	"github.com/roach88/pretex/internal/diag"
	"github.com/roach88/pretex/internal/pipeline"
)

// ExpandOptions holds flags for the expand command.
type ExpandOptions struct {
	*RootOptions
	ConfigPath string
	Args       []string
	Output     string
}

// NewExpandCommand creates the expand command. Expand evaluates a
// template's fragments and writes the pure-LaTeX intermediate document
// without invoking the processor.
func NewExpandCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExpandOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "expand <template>",
		Short:         "Evaluate fragments and write the intermediate document",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpand(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default "+config.DefaultFile+" if present)")
	cmd.Flags().StringArrayVarP(&opts.Args, "arg", "a", nil, "template argument, visible to fragments as args[i] (repeatable)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output path, or - for stdout (default: template path with .pretex extension)")

	return cmd
}

func runExpand(opts *ExpandOptions, templatePath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	var cfg *config.Config
	var err error
	if opts.ConfigPath != "" {
		cfg, err = config.Load(opts.ConfigPath)
	} else {
		cfg, err = config.LoadIfExists(config.DefaultFile)
	}
	if err != nil {
		formatter.Error(string(diag.KindConfigError), err.Error(), nil)
		return WrapExitError(ExitCommandError, "configuration", err)
	}
	if cmd.Flags().Changed("arg") {
		cfg.Args = opts.Args
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		formatter.Error(string(diag.KindConfigError), err.Error(), nil)
		return WrapExitError(ExitCommandError, "configuration", err)
	}

	text, _, err := p.Expand(cmd.Context(), templatePath)
	if err != nil {
		d := diag.FromError(err)
		fmt.Fprintln(formatter.GetErrWriter(), d.String())
		return NewExitError(ExitFailure, "expansion failed")
	}

	out := opts.Output
	if out == "" {
		out = pipeline.IntermediatePath(templatePath)
	}
	if out == "-" {
		fmt.Fprint(formatter.Writer, text)
		return nil
	}
	if err := os.WriteFile(out, []byte(text), 0o644); err != nil {
		return WrapExitError(ExitFailure, "write intermediate", err)
	}

	if opts.Format == "json" {
		return formatter.JSON(map[string]any{
			"template":     templatePath,
			"intermediate": out,
		})
	}
	fmt.Fprintf(formatter.Writer, "%s -> %s\n", templatePath, out)
	return nil
}
