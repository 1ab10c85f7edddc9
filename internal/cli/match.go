package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/readwell/concord/internal/books"
	"github.com/readwell/concord/internal/ref"
	"github.com/readwell/concord/internal/versemap"
)

// MatchResult holds the mapping of one verse into the other scheme.
type MatchResult struct {
	Translation  string   `json:"translation"`
	Verse        string   `json:"verse"`
	Counterparts []string `json:"counterparts"`
	ClusterID    string   `json:"cluster_id"`
	Unmapped     bool     `json:"unmapped"`
}

// NewMatchCommand creates the match command.
func NewMatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "match <translation> <book> <chapter:verse>",
		Short: "Map a verse into the other numbering scheme",
		Long: `Map a verse reference into the counterpart numbering scheme and show
its cluster id. Book names may be given in any supported locale.

Example:
  concord match rst Psalms 9:25
  concord match kjv "Песня Песней" 2:1`,
		Args:          cobra.MinimumNArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatch(rootOpts, args, cmd)
		},
	}
}

func runMatch(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	tx := ref.Canonical(args[0])
	bookArg := strings.Join(args[1:len(args)-1], " ")
	cv := args[len(args)-1]

	catalog, err := books.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "loading book catalog", err)
	}
	bookID, ok := catalog.Resolve(bookArg)
	if !ok {
		formatter.Error("E_BOOK", fmt.Sprintf("unknown book %q", bookArg), nil)
		return NewExitError(ExitCommandError, "unknown book")
	}

	chapter, verse, err := parseChapterVerse(cv)
	if err != nil {
		formatter.Error("E_REF", err.Error(), nil)
		return NewExitError(ExitCommandError, "bad verse reference")
	}

	m, err := versemap.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "loading rule tables", err)
	}

	k := ref.VerseKey{Book: bookID, Chapter: chapter, Verse: verse}
	counterparts := m.Counterparts(tx, k)
	cid := m.ClusterID(tx, k)

	result := MatchResult{
		Translation: string(tx),
		Verse:       k.String(),
		ClusterID:   string(cid),
		Unmapped:    len(counterparts) == 0 && m.AltNumbered(bookID),
	}
	for _, cp := range counterparts {
		result.Counterparts = append(result.Counterparts, cp.String())
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s -> ", tx, k.String())
	if len(result.Counterparts) == 0 {
		b.WriteString("(no counterpart)")
	} else {
		b.WriteString(strings.Join(result.Counterparts, ", "))
	}
	fmt.Fprintf(&b, "\ncluster: %s", cid)
	return formatter.Success(b.String())
}

func parseChapterVerse(s string) (int, int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("reference %q is not chapter:verse", s)
	}
	chapter, err := strconv.Atoi(parts[0])
	if err != nil || chapter < 1 {
		return 0, 0, fmt.Errorf("bad chapter in %q", s)
	}
	verse, err := strconv.Atoi(parts[1])
	if err != nil || verse < 1 {
		return 0, 0, fmt.Errorf("bad verse in %q", s)
	}
	return chapter, verse, nil
}
