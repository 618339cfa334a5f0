package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leechsync/leech/internal/config"
	"github.com/leechsync/leech/internal/leecherr"
	"github.com/leechsync/leech/internal/logging"
	"github.com/leechsync/leech/internal/store"
)

var (
	workdirFlag string
	debugFlag   bool
	infoFlag    bool
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:           "leech",
	Short:         "Content-addressed tabular-state sync engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	rootCmd.PersistentFlags().StringVar(&workdirFlag, "workdir", cwd, "workdir root (defaults to the current directory)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "log at debug level")
	rootCmd.PersistentFlags().BoolVar(&infoFlag, "info", false, "log at info level")
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "alias for --debug")

	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(patchCmd)
	rootCmd.AddCommand(rebaseCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(inspectCmd)
}

func logLevel() logging.Level {
	switch {
	case debugFlag || verboseFlag:
		return logging.Debug
	case infoFlag:
		return logging.Info
	default:
		return logging.Warn
	}
}

// appContext bundles the per-invocation collaborators every subcommand
// needs: the resolved workdir, its loaded configuration, the block store,
// and a logger tagged with the command name (spec §6, AMBIENT STACK).
type appContext struct {
	workdir string
	cfg     *config.Config
	store   *store.Store
	log     *slog.Logger
}

// openContext loads configuration and opens the store for the named
// command. Config loading happens for every command except the bare
// top-level invocation; callers that don't need configuration (none today)
// would skip this helper.
func openContext(cmdName string) (*appContext, error) {
	workdir, err := filepath.Abs(workdirFlag)
	if err != nil {
		return nil, leecherr.New(leecherr.KindBadInvocation, "cli", fmt.Errorf("resolving --workdir: %w", err))
	}

	st, err := store.Open(workdir)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(workdir)
	if err != nil {
		return nil, err
	}
	log := logging.New(workdir, cmdName, logLevel())

	return &appContext{workdir: workdir, cfg: cfg, store: st, log: log}, nil
}

// withLock acquires the workdir's single-writer lock for the duration of fn,
// releasing it afterward regardless of outcome (spec §4.4, §5).
func (a *appContext) withLock(fn func() error) error {
	lock := store.NewLock(a.workdir)
	if err := lock.TryLock(); err != nil {
		return err
	}
	defer lock.Unlock()
	return fn()
}
