package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/readwell/concord/internal/versemap"
)

// RulesResult holds the outcome of a rules vet run.
type RulesResult struct {
	Valid bool     `json:"valid"`
	Books []string `json:"books,omitempty"`
	Error string   `json:"error,omitempty"`
}

// NewRulesCommand creates the rules command group.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Work with verse mapping rule tables",
	}
	cmd.AddCommand(newRulesVetCommand(rootOpts))
	return cmd
}

func newRulesVetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "vet [rules-dir]",
		Short: "Validate rule tables without loading them into a session",
		Long: `Validate verse mapping rule tables: CUE syntax, required fields,
span sanity, and duplicate book detection. With no argument, vets the
tables embedded in the binary.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRulesVet(rootOpts, args, cmd)
		},
	}
}

func runRulesVet(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	var (
		m   *versemap.Matcher
		err error
	)
	if len(args) == 1 {
		if files, ferr := versemap.FindCUEFiles(args[0]); ferr == nil {
			formatter.VerboseLog("vetting %d CUE file(s) in %s", len(files), args[0])
		}
		m, err = versemap.LoadDir(args[0])
	} else {
		formatter.VerboseLog("vetting embedded rule tables")
		m, err = versemap.Load()
	}
	if err != nil {
		var compileErr *versemap.CompileError
		if errors.As(err, &compileErr) {
			formatter.Error("E_RULES", compileErr.Error(), map[string]string{"field": compileErr.Field})
			return NewExitError(ExitFailure, "rule tables invalid")
		}
		formatter.Error("E_RULES", err.Error(), nil)
		return NewExitError(ExitCommandError, "rule tables could not be loaded")
	}

	result := RulesResult{Valid: true, Books: m.Books()}
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return formatter.Success(fmt.Sprintf("rule tables valid: %d book(s) with explicit mappings: %v", len(result.Books), result.Books))
}
