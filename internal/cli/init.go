package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kittclouds/gobe/pkg/brain"
)

func newInitCmd() *cobra.Command {
	var (
		order   int
		megahal bool
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new brain file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(brainPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to replace it)", brainPath)
			}
			if force {
				if err := os.Remove(brainPath); err != nil && !os.IsNotExist(err) {
					return err
				}
			}

			cfg := brain.DefaultConfig()
			cfg.Order = order
			if megahal {
				cfg.Tokenizer = "MegaHAL"
			}

			b, err := brain.OpenConfig(brainPath, cfg)
			if err != nil {
				return fmt.Errorf("create brain: %w", err)
			}
			defer b.Close()

			fmt.Printf("Initialized %s (order %d, %s tokenizer)\n",
				brainPath, cfg.Order, cfg.Tokenizer)
			return nil
		},
	}

	cmd.Flags().IntVar(&order, "order", 3, "Markov order of the new brain")
	cmd.Flags().BoolVar(&megahal, "megahal", false, "use MegaHAL-compatible tokenization")
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing brain file")

	return cmd
}
