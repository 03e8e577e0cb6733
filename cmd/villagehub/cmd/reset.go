package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tinyvillage/villagehub/internal/config"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove the local session store",
	Long: `Remove the local session store. Unlike logout, the backing files are
deleted too: the session file and its backup for the file backend, the
database for the sqlite backend. For redis the session keys are deleted.

Optional flags:
  --force   Skip confirmation prompt`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "Skip confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.ErrOrStderr()

	var files []string
	switch cfg.Session.Backend {
	case config.BackendFile:
		files = []string{cfg.Session.Path, cfg.Session.Path + ".bak", cfg.Session.Path + ".lock"}
	case config.BackendSQLite:
		files = []string{cfg.Session.Path, cfg.Session.Path + "-wal", cfg.Session.Path + "-shm"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}

	if cfg.Session.Backend != config.BackendRedis && len(existing) == 0 {
		fmt.Fprintln(out, "Nothing to reset, no session files found.")
		return nil
	}

	fmt.Fprintln(out, "The following will be removed:")
	for _, f := range existing {
		fmt.Fprintf(out, "  - %s\n", f)
	}
	if cfg.Session.Backend == config.BackendRedis {
		fmt.Fprintf(out, "  - redis session keys in namespace %s\n", cfg.Session.Namespace)
	}

	if !resetForce {
		answer, err := newPrompter(cmd).line("\nProceed? [y/N] ")
		if err != nil || !strings.EqualFold(strings.TrimSpace(answer), "y") {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	if cfg.Session.Backend == config.BackendRedis {
		logger := newLogger(cfg.Log, out)
		store, closeStore, err := openStore(cmd.Context(), cfg.Session, logger)
		if err != nil {
			return err
		}
		defer func() { _ = closeStore() }()
		if err := store.Clear(cmd.Context()); err != nil {
			return fmt.Errorf("clear redis session: %w", err)
		}
	}

	var failed bool
	for _, f := range existing {
		if err := os.Remove(f); err != nil {
			fmt.Fprintf(out, "  failed to remove %s: %v\n", f, err)
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("reset incomplete")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Reset complete.")
	return nil
}
