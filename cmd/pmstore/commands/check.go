package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate every chunk header's type tag and allocation class",
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	h, _, err := openHeap()
	if err != nil {
		return err
	}
	defer h.End()

	if err := h.Check(context.Background()); err != nil {
		return fmt.Errorf("heap is corrupted: %w", err)
	}
	fmt.Println("heap is consistent")
	return nil
}
