package prometheus

import (
	"testing"
	"time"

	"github.com/dittopm/pmstore/pkg/metrics"
)

func TestNewAllocatorMetrics_RegistersCollectorsWhenEnabled(t *testing.T) {
	metrics.InitRegistry()
	defer metrics.Disable()

	m := metrics.NewAllocatorMetrics()
	if m == nil {
		t.Fatal("expected a live collector once a registry is initialized")
	}

	m.ObserveCommit(4, time.Microsecond)
	m.SetBucketFree(2, 10)
	m.SetZoneOccupancy(0, 4096)
	m.IncOutOfMemory()
}
