package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// replayCmd represents the replay command
var replayCmd = &cobra.Command{
	Use:   "replay <contribution.json>",
	Short: "Evaluate twice on fresh engines and compare proof hashes",
	Long: `Replay runs the same contribution through two independently built
engines over the same facts and compares the proof hashes. A mismatch means
the deployment has a nondeterminism bug and the command exits non-zero.

Example:
  provara replay contribution.json --config policy.yaml --facts facts.json`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c, err := readContribution(args[0])
	if err != nil {
		return err
	}

	run := func() (string, error) {
		eng, shutdown, err := buildEngine(ctx)
		if err != nil {
			return "", err
		}
		defer shutdown()
		result, err := eng.Evaluate(ctx, c)
		if err != nil {
			return "", err
		}
		return result.ProofHash, nil
	}

	first, err := run()
	if err != nil {
		return err
	}
	second, err := run()
	if err != nil {
		return err
	}

	if first != second {
		return fmt.Errorf("proof hash mismatch: %s vs %s", first, second)
	}
	cmd.Printf("proof hash reproduced: %s\n", first)
	return nil
}
