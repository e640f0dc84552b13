package commands

import (
	"fmt"

	"github.com/dittopm/pmstore/internal/bytesize"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show bucket and redo log occupancy",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	h, _, err := openHeap()
	if err != nil {
		return err
	}
	defer h.End()

	h.ReportMetrics()

	s := h.Stats()
	fmt.Printf("Total:    %s\n", bytesize.ByteSize(s.TotalBytes))
	fmt.Printf("Free:     %s\n", bytesize.ByteSize(s.FreeBytes))
	fmt.Printf("Redo cap: %d entries\n", s.RedoCapacity)
	fmt.Printf("Redo high-water: %d entries\n", s.RedoHighWater)
	fmt.Println("Run class free units:")
	for idx, n := range s.ClassFreeCounts {
		fmt.Printf("  class %2d: %d\n", idx, n)
	}
	return nil
}
