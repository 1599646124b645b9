package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newLearnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "learn <file>...",
		Short: "Learn a text file, one sentence per line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBrain()
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.StartBatchLearning(); err != nil {
				return err
			}

			var lines int
			for _, path := range args {
				n, err := learnFile(b.Learn, path)
				if err != nil {
					// The batch still holds everything learned so far.
					return errors.Join(err, b.StopBatchLearning())
				}
				lines += n
			}

			if err := b.StopBatchLearning(); err != nil {
				return err
			}

			fmt.Printf("Learned %d lines\n", lines)
			return nil
		},
	}
}

func learnFile(learn func(string) error, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := learn(scanner.Text()); err != nil {
			return n, fmt.Errorf("learn %s line %d: %w", path, n+1, err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("read %s: %w", path, err)
	}
	return n, nil
}
