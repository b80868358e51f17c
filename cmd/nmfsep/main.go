// SPDX-License-Identifier: MIT

// Command nmfsep is the one-shot CLI: separate a mixture into stems or
// inspect a factorization without writing audio.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	xglog "github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/log"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

var logLevel string

func main() {
	root := &cobra.Command{
		Use:           "nmfsep",
		Short:         "NMF-based music source separation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			xglog.Configure(xglog.Config{
				Level:   logLevel,
				Service: "nmfsep",
				Version: version,
			})
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug|info|warn|error)")

	root.AddCommand(newSeparateCmd())
	root.AddCommand(newFactorizeCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		},
	}
}
