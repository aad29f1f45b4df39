package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pretex/internal/diag"
	"github.com/roach88/pretex/internal/template"
)

// CheckResult describes the fragments found in a template.
type CheckResult struct {
	Template  string         `json:"template"`
	Valid     bool           `json:"valid"`
	Fragments []FragmentInfo `json:"fragments"`
}

// FragmentInfo is one embedded fragment as seen by the scanner.
type FragmentInfo struct {
	Ordinal int    `json:"ordinal"`
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Raw     bool   `json:"raw,omitempty"`
	Code    string `json:"code"`
}

// NewCheckCommand creates the check command. Check scans a template
// and reports its fragments without evaluating anything.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "check <template>",
		Short:         "Scan a template and list its fragments",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runCheck(opts *RootOptions, templatePath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	tpl, err := template.Load(templatePath)
	if err != nil {
		formatter.Error(string(diag.KindConfigError), err.Error(), nil)
		return WrapExitError(ExitFailure, "load template", err)
	}

	spans, err := template.Scan(tpl)
	if err != nil {
		d := diag.FromError(err)
		fmt.Fprintln(formatter.GetErrWriter(), d.String())
		return NewExitError(ExitFailure, "template is not well formed")
	}

	res := CheckResult{
		Template:  templatePath,
		Valid:     true,
		Fragments: []FragmentInfo{},
	}
	for _, s := range template.Fragments(spans) {
		res.Fragments = append(res.Fragments, FragmentInfo{
			Ordinal: s.Ordinal,
			Line:    s.Start.Line,
			Col:     s.Start.Col,
			Raw:     s.Raw,
			Code:    s.Code,
		})
	}

	if opts.Format == "json" {
		return formatter.JSON(res)
	}

	fmt.Fprintf(formatter.Writer, "%s: %d fragment(s)\n", templatePath, len(res.Fragments))
	for _, f := range res.Fragments {
		mark := ""
		if f.Raw {
			mark = " [raw]"
		}
		fmt.Fprintf(formatter.Writer, "  #%d %d:%d%s %s\n", f.Ordinal, f.Line, f.Col, mark, f.Code)
	}
	return nil
}
