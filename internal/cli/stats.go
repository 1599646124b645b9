package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the size and settings of the brain",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBrain()
			if err != nil {
				return err
			}
			defer b.Close()

			st, err := b.Stats()
			if err != nil {
				return err
			}

			var size int64
			if fi, err := os.Stat(brainPath); err == nil {
				size = fi.Size()
			}

			stemmer := st.Stemmer
			if stemmer == "" {
				stemmer = "off"
			}

			fmt.Printf("\nBrain:     %s\n", brainPath)
			fmt.Printf("Order:     %d\n", st.Order)
			fmt.Printf("Tokenizer: %s\n", st.Tokenizer)
			fmt.Printf("Stemmer:   %s\n", stemmer)
			fmt.Printf("Tokens:    %d\n", st.Tokens)
			fmt.Printf("Contexts:  %d\n", st.Nodes)
			fmt.Printf("Edges:     %d\n", st.Edges)
			fmt.Printf("Stems:     %d\n", st.Stems)
			fmt.Printf("File size: %s\n", formatBytes(size))
			fmt.Println()

			return nil
		},
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
