package commands

import (
	"fmt"

	"github.com/dittopm/pmstore/pkg/config"
	"github.com/dittopm/pmstore/pkg/metrics"
	"github.com/dittopm/pmstore/pkg/palloc"
	"github.com/dittopm/pmstore/pkg/pmem"
)

// openHeap loads the configuration named by the global --config flag (or
// the default location) and boots the heap it describes. When the config
// enables metrics, it also starts the Prometheus registry and attaches a
// collector to the booted heap.
func openHeap() (*palloc.Heap, *config.Config, error) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, nil, err
	}

	ops, err := pmem.OpenMmap(cfg.Heap.Path, uint64(cfg.Heap.Size))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open heap file: %w", err)
	}

	h, err := palloc.Boot(cfg.Heap.Path, ops)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to boot heap: %w", err)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		h.SetMetrics(metrics.NewAllocatorMetrics())
	}

	return h, cfg, nil
}
