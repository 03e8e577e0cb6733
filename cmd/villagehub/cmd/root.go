// Package cmd provides the CLI commands for villagehub.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tinyvillage/villagehub/internal/config"
	"github.com/tinyvillage/villagehub/internal/domain/session"
)

// Exit codes.
const (
	exitError          = 1
	exitSessionExpired = 2
)

var (
	cfgFile       string
	sessionPath   string
	outputFormat  string
	ephemeral     bool
	passwordStdin bool
)

var rootCmd = &cobra.Command{
	Use:   "villagehub",
	Short: "villagehub - Tiny Village Hub client",
	Long: `villagehub lists, trades and donates items on a Tiny Village Hub server.

Quick start:
  villagehub register -u alice --email alice@example.org
  villagehub login -u alice
  villagehub items list

Configuration:
  Config is loaded from villagehub.yaml in the current directory,
  $HOME/.villagehub/, or /etc/villagehub/.

  Environment variables can override config values with the VILLAGEHUB_ prefix.
  Example: VILLAGEHUB_API_BASE_URL=https://hub.example.org/api

Session:
  Tokens are kept in ~/.villagehub/session.json by default. Use
  session.backend (file, sqlite, redis, memory) to store them elsewhere.
  An expired session makes any command exit with status 2.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(reportError(os.Stderr, err))
	}
}

// reportError prints err for the user and returns the exit code.
func reportError(w io.Writer, err error) int {
	if errors.Is(err, session.ErrSessionExpired) {
		fmt.Fprintln(w, "session expired, please log in again")
		return exitSessionExpired
	}
	if errors.Is(err, session.ErrNotLoggedIn) {
		fmt.Fprintln(w, "not logged in, run: villagehub login")
		return exitError
	}
	fmt.Fprintln(w, "Error:", err)
	return exitError
}

func init() {
	cobra.OnInitialize(initConfig)
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./villagehub.yaml)")
	pf.StringVar(&sessionPath, "session", "", "session file or database path (default: ~/.villagehub/session.json)")
	pf.StringVarP(&outputFormat, "output", "o", "", "output format: table, json or yaml")
	pf.BoolVar(&ephemeral, "ephemeral", false, "keep the session in memory only")

	_ = viper.BindPFlag("session.path", pf.Lookup("session"))
	_ = viper.BindPFlag("output", pf.Lookup("output"))
}

func initConfig() {
	config.InitViper(cfgFile)
}
