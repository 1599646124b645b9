package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Chat with the brain interactively",
		Long: `Console reads lines from stdin, learns each one and prints a reply.
End the session with Ctrl-D.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBrain()
			if err != nil {
				return err
			}
			defer b.Close()

			in := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !in.Scan() {
					fmt.Println()
					return in.Err()
				}

				line := strings.TrimSpace(in.Text())
				if line == "" {
					continue
				}

				if err := b.Learn(line); err != nil {
					return err
				}
				reply, err := b.Reply(line)
				if err != nil {
					return err
				}
				fmt.Println(reply)
			}
		},
	}
}
