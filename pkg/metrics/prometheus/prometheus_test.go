package prometheus

import (
	"testing"
	"time"

	"tiercache/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollector_RegisterAndRecord(t *testing.T) {
	collector := NewCollector("test")
	registry := prometheus.NewRegistry()

	if err := collector.Register(registry); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Exercise every recording path; none should panic and all registered
	// series should gather cleanly.
	collector.RecordTierGet("tier1", true, time.Millisecond)
	collector.RecordTierGet("tier2", false, time.Millisecond)
	collector.RecordTierSet("tier2", true, time.Millisecond)
	collector.RecordTierSet("tier3", false, time.Millisecond)
	collector.RecordTierDelete("tier2", true, time.Millisecond)
	collector.RecordTierDisabled("tier2")
	collector.RecordPromotion("tier3")
	collector.RecordCompute(true, 10*time.Millisecond)
	collector.RecordCircuitState("tier2", metrics.CircuitOpen)
	collector.RecordQueueDepth("tier3", 42)
	collector.RecordWriteDropped("tier3")
	collector.RecordAsyncWrite("tier3", true, time.Millisecond)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Error("Expected gathered metric families after recording")
	}

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}

	for _, expected := range []string{
		"test_tier_hits_total",
		"test_tier_misses_total",
		"test_promotions_total",
		"test_circuit_state",
		"test_demotion_queue_depth",
		"test_dropped_writes_total",
	} {
		if !names[expected] {
			t.Errorf("Expected metric family %q to be gathered", expected)
		}
	}
}

func TestCollector_DuplicateRegistration(t *testing.T) {
	collector := NewCollector("dup")
	registry := prometheus.NewRegistry()

	if err := collector.Register(registry); err != nil {
		t.Fatalf("First register failed: %v", err)
	}
	if err := collector.Register(registry); err == nil {
		t.Error("Expected duplicate registration to fail")
	}
}
