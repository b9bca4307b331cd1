package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/splitpilot/splitpilot/internal/engine"
	"github.com/splitpilot/splitpilot/internal/store"
)

var (
	completeWinner string
	completeYes    bool
)

var completeCmd = &cobra.Command{
	Use:   "complete <test-id>",
	Short: "Manually declare a winner and complete a test",
	Long: `Manually complete a test with an operator-chosen winner, bypassing the
statistical stopping rule. Prefer 'decide', which only completes a test once
the evidence supports it.

Example:
  splitpilot complete 6b69... --winner A`,
	Args: cobra.ExactArgs(1),
	RunE: runComplete,
}

func init() {
	completeCmd.Flags().StringVarP(&completeWinner, "winner", "w", "", "winning variant (A or B, required)")
	completeCmd.Flags().BoolVarP(&completeYes, "yes", "y", false, "skip the confirmation prompt")
	completeCmd.MarkFlagRequired("winner")
	rootCmd.AddCommand(completeCmd)
}

func runComplete(cmd *cobra.Command, args []string) error {
	testID := args[0]

	winner := store.Variant(completeWinner)
	if winner != store.VariantA && winner != store.VariantB {
		return fmt.Errorf("invalid winner %q: must be A or B", completeWinner)
	}

	if !completeYes {
		confirmed, err := confirmCompletion(testID, winner)
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Println("Aborted.")
			return nil
		}
	}

	return withEngine(func(ctx context.Context, eng *engine.Engine, _ store.Store) error {
		// Operator decree; recorded at full confidence so repeated decide
		// calls return this decision.
		err := eng.MarkCompleted(ctx, testID, winner, 1.0)
		if errors.Is(err, store.ErrAlreadyCompleted) {
			return fmt.Errorf("test %s is already completed", testID)
		}
		if err != nil {
			return err
		}

		fmt.Printf("Declared variant %s the winner of test %s.\n", winner, testID)
		fmt.Println("Test has been marked as completed.")
		return nil
	})
}

func confirmCompletion(testID string, winner store.Variant) (bool, error) {
	prompt := promptui.Select{
		Label: fmt.Sprintf("Complete test %s with winner %s", shortID(testID), winner),
		Items: []string{"Yes, complete the test", "No, keep it running"},
		Size:  2,
	}

	idx, _, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			os.Exit(0)
		}
		return false, err
	}
	return idx == 0, nil
}
