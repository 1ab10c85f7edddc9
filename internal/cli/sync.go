package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/readwell/concord/internal/connectivity"
	"github.com/readwell/concord/internal/notes"
)

// SyncResult reports an outbox drain.
type SyncResult struct {
	Drained int  `json:"drained"`
	Created int  `json:"created"`
	Primed  bool `json:"primed"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	var prime bool
	cmd := &cobra.Command{
		Use:           "sync",
		Short:         "Drain the offline outbox against the backend",
		Long:          "Replay writes queued while offline against the backend, in order. With --prime, also refresh the full local read cache afterwards.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, prime, cmd)
		},
	}
	cmd.Flags().BoolVar(&prime, "prime", false, "refresh the full read cache after draining")
	return cmd
}

func runSync(opts *RootOptions, prime bool, cmd *cobra.Command) error {
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
	if err := cfg.requireBackend(); err != nil {
		return err
	}

	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel}))

	probe := connectivity.NewProbe(cfg.ProbeAddr, time.Minute)
	if probe.Check(cmd.Context()) == connectivity.SignalNone {
		formatter.Error("E_OFFLINE", fmt.Sprintf("cannot reach %s", cfg.ProbeAddr), nil)
		return NewExitError(ExitFailure, "offline")
	}

	store, err := notes.OpenStore(cfg.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "opening replica database", err)
	}
	defer store.Close()

	client := notes.NewClient(cfg.APIURL, cfg.APIKey, nil)
	service := notes.NewService(logger, client, store, func() bool { return true })
	service.SetUser(cfg.UserID)

	queued, err := store.OutboxLen(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "reading outbox", err)
	}
	formatter.VerboseLog("draining %d queued write(s)", queued)

	idMap, err := service.DrainOutbox(cmd.Context())
	if err != nil {
		formatter.Error("E_SYNC", err.Error(), nil)
		return NewExitError(ExitFailure, "drain incomplete")
	}

	result := SyncResult{Drained: queued, Created: len(idMap)}
	if prime {
		if err := service.PrimeAllCache(cmd.Context()); err != nil {
			formatter.Error("E_PRIME", err.Error(), nil)
			return NewExitError(ExitFailure, "cache prime failed")
		}
		result.Primed = true
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return formatter.Success(fmt.Sprintf("drained %d write(s), %d new row id(s)%s",
		result.Drained, result.Created, primedSuffix(result.Primed)))
}

func primedSuffix(primed bool) string {
	if primed {
		return ", cache primed"
	}
	return ""
}
