package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Build information. Populated at build time via -ldflags.
var (
	Version   = "0.1.0"
	Commit    = "none"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit, and build date of villagehub.`,
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "villagehub %s\n", Version)
		fmt.Fprintf(w, "  Commit:     %s\n", Commit)
		fmt.Fprintf(w, "  Built:      %s\n", BuildDate)
		fmt.Fprintf(w, "  Go version: %s\n", runtime.Version())
		fmt.Fprintf(w, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
