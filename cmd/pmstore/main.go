package main

import (
	"fmt"
	"os"

	"github.com/dittopm/pmstore/cmd/pmstore/commands"

	// Registers the Prometheus-backed allocator metrics collector.
	_ "github.com/dittopm/pmstore/pkg/metrics/prometheus"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
