package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSetStemmerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-stemmer <language>",
		Short: "Enable stemming and rebuild all stems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBrain()
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.SetStemmer(args[0]); err != nil {
				return err
			}
			fmt.Printf("Stemmer set to %s\n", args[0])
			return nil
		},
	}
}

func newDelStemmerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "del-stemmer",
		Short: "Disable stemming and drop all stems",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBrain()
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.DelStemmer(); err != nil {
				return err
			}
			fmt.Println("Stemmer removed")
			return nil
		},
	}
}
