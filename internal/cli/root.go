// Package cli defines the Cobra command tree for the gobe CLI.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/kittclouds/gobe/pkg/brain"
)

var (
	// version, commit, date are set via -ldflags at build time.
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// brainPath is the file every subcommand operates on.
var brainPath string

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gobe",
	Short: "A Markov-chain conversation brain",
	Long: `Gobe learns language from text you feed it and generates replies by
walking its learned chain, in the manner of MegaHAL and cobe.

Run 'gobe init' to create a brain file, 'gobe learn' to feed it a text
file, and 'gobe console' to talk to it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute(v, c, d string) {
	version, commit, date = v, c, d
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&brainPath, "brain", "b", "gobe.brain",
		"path to the brain file")

	rootCmd.AddCommand(
		newInitCmd(),
		newLearnCmd(),
		newConsoleCmd(),
		newStatsCmd(),
		newSetStemmerCmd(),
		newDelStemmerCmd(),
		newVersionCmd(),
	)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gobe %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// openBrain opens an existing brain file, refusing to create one as a
// side effect of a non-init command.
func openBrain() (*brain.Brain, error) {
	if _, err := os.Stat(brainPath); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("no brain file at %s; run `gobe init` first", brainPath)
	}
	return brain.Open(brainPath)
}
