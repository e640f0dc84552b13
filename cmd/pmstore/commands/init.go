package commands

import (
	"fmt"
	"os"

	"github.com/dittopm/pmstore/internal/bytesize"
	"github.com/dittopm/pmstore/pkg/config"
	"github.com/dittopm/pmstore/pkg/palloc"
	"github.com/dittopm/pmstore/pkg/pmem"
	"github.com/spf13/cobra"
)

var (
	initForce    bool
	initSize     string
	initHeapPath string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a heap-backed file and a sample configuration",
	Long: `Initialize a new persistent-memory heap file and write a sample
pmstore configuration pointing at it.

By default, the configuration file is created at
$XDG_CONFIG_HOME/pmstore/config.yaml and the heap at the path it names.

Examples:
  # Initialize with defaults (1GiB heap)
  pmstore init

  # Initialize a 4GiB heap at a custom config path
  pmstore init --config /etc/pmstore/config.yaml --size 4Gi`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	initCmd.Flags().StringVar(&initSize, "size", "1Gi", "heap size (human-readable, e.g. 512Mi, 4Gi)")
	initCmd.Flags().StringVar(&initHeapPath, "heap-path", "", "heap file path (default: the configuration default)")
}

func runInit(cmd *cobra.Command, args []string) error {
	size, err := bytesize.ParseByteSize(initSize)
	if err != nil {
		return fmt.Errorf("invalid --size: %w", err)
	}

	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}
	if !initForce {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", configPath)
		}
	}

	cfg := config.GetDefaultConfig()
	cfg.Heap.Size = size
	if initHeapPath != "" {
		cfg.Heap.Path = initHeapPath
	}

	ops, err := pmem.OpenMmap(cfg.Heap.Path, uint64(size))
	if err != nil {
		return fmt.Errorf("failed to create heap file: %w", err)
	}

	h, err := palloc.Init(cfg.Heap.Path, uint64(size), ops)
	if err != nil {
		return fmt.Errorf("failed to initialize heap: %w", err)
	}
	if err := h.End(); err != nil {
		return fmt.Errorf("failed to close heap: %w", err)
	}

	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Heap created at: %s (%s)\n", cfg.Heap.Path, initSize)
	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Inspect occupancy with: pmstore stats")
	fmt.Println("  2. Verify consistency with: pmstore check")
	return nil
}
