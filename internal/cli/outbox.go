package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/readwell/concord/internal/notes"
)

// OutboxEntry is one queued offline write in command output.
type OutboxEntry struct {
	Seq      int64  `json:"seq"`
	Kind     string `json:"kind"`
	NoteID   string `json:"note_id"`
	Verse    string `json:"verse,omitempty"`
	QueuedAt string `json:"queued_at"`
}

// NewOutboxCommand creates the outbox command.
func NewOutboxCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "outbox",
		Short:         "List writes queued while offline",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutbox(rootOpts, cmd)
		},
	}
}

func runOutbox(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := LoadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "loading configuration", err)
	}

	store, err := notes.OpenStore(cfg.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "opening replica database", err)
	}
	defer store.Close()

	ops, err := store.Outbox(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "reading outbox", err)
	}

	var out []OutboxEntry
	for _, op := range ops {
		entry := OutboxEntry{
			Seq:      op.Seq,
			Kind:     string(op.Kind),
			NoteID:   op.NoteID,
			QueuedAt: op.QueuedAt.Format("2006-01-02 15:04:05"),
		}
		if op.Note.Book != "" {
			entry.Verse = fmt.Sprintf("%s %s %d:%d", op.Note.Translation, op.Note.Book, op.Note.Chapter, op.Note.VerseStart)
		}
		out = append(out, entry)
	}

	if opts.Format == "json" {
		return formatter.Success(out)
	}
	if len(out) == 0 {
		return formatter.Success("outbox empty")
	}
	var sb strings.Builder
	for i, e := range out {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%4d  %-6s  %-40s  %s  %s", e.Seq, e.Kind, e.NoteID, e.Verse, e.QueuedAt)
	}
	return formatter.Success(sb.String())
}
