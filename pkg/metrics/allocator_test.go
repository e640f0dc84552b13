package metrics

import (
	"testing"
	"time"
)

func TestAllocatorMetrics_NilWhenDisabled(t *testing.T) {
	Disable()
	if m := NewAllocatorMetrics(); m != nil {
		t.Fatalf("expected nil collector when metrics are disabled, got %v", m)
	}
}

func TestAllocatorMetrics_FreeFunctionsTolerateNil(t *testing.T) {
	Disable()
	var m AllocatorMetrics
	ObserveCommit(m, 3, time.Millisecond)
	SetBucketFree(m, 0, 5)
	SetZoneOccupancy(m, 0, 1024)
	IncOutOfMemory(m)
}
