package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/readwell/concord/internal/books"
)

// BookInfo is one catalog row in command output.
type BookInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Chapters int    `json:"chapters"`
}

// NewBooksCommand creates the books command.
func NewBooksCommand(rootOpts *RootOptions) *cobra.Command {
	var locale string
	cmd := &cobra.Command{
		Use:           "books",
		Short:         "List the book catalog",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBooks(rootOpts, locale, cmd)
		},
	}
	cmd.Flags().StringVar(&locale, "locale", "en", "locale for display names (BCP 47)")
	return cmd
}

func runBooks(opts *RootOptions, locale string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	catalog, err := books.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "loading book catalog", err)
	}

	var out []BookInfo
	for _, b := range catalog.All() {
		out = append(out, BookInfo{
			ID:       b.ID,
			Name:     catalog.Name(b.ID, locale),
			Chapters: b.Chapters,
		})
	}

	if opts.Format == "json" {
		return formatter.Success(out)
	}

	var sb strings.Builder
	for i, b := range out {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%-20s %-25s %3d", b.ID, b.Name, b.Chapters)
	}
	return formatter.Success(sb.String())
}
