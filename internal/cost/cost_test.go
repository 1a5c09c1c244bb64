package cost

import (
	"math"
	"sync"
	"testing"

	"github.com/parleyhq/parley/backend"
)

func testEstimator(t *testing.T) Estimator {
	t.Helper()
	pricing := map[string]backend.Descriptor{
		"anthropic": {ID: "anthropic", InputCostPer1K: 0.003, OutputCostPer1K: 0.015},
		"openai":    {ID: "openai", InputCostPer1K: 0.0025, OutputCostPer1K: 0.01},
	}
	return func(id string, in, out int) float64 {
		return pricing[id].EstimateCost(in, out)
	}
}

func TestRecordAccumulates(t *testing.T) {
	agg := NewAggregator(testEstimator(t))

	agg.Record("anthropic", 1000, 500)
	agg.Record("anthropic", 2000, 1000)

	snap := agg.Snapshot()
	if len(snap.Rows) != 1 {
		t.Fatalf("wrong row count: %d", len(snap.Rows))
	}
	row := snap.Rows[0]
	if row.InputTokens != 3000 || row.OutputTokens != 1500 {
		t.Errorf("tokens wrong: %+v", row)
	}
	// 3000*0.003/1000 + 1500*0.015/1000 = 0.009 + 0.0225 = 0.0315
	if row.Cost != 0.0315 {
		t.Errorf("cost wrong: got %v, want 0.0315", row.Cost)
	}
}

func TestSnapshotTotalsMatchRows(t *testing.T) {
	agg := NewAggregator(testEstimator(t))

	agg.Record("anthropic", 1234, 567)
	agg.Record("openai", 890, 123)
	agg.Record("anthropic", 456, 78)

	snap := agg.Snapshot()

	var in, out int
	var cost float64
	for _, row := range snap.Rows {
		in += row.InputTokens
		out += row.OutputTokens
		cost += row.Cost
	}
	if snap.TotalInputTokens != in || snap.TotalOutputTokens != out {
		t.Errorf("token totals drift: snapshot %d/%d, rows %d/%d",
			snap.TotalInputTokens, snap.TotalOutputTokens, in, out)
	}
	if math.Abs(snap.TotalCost-backend.RoundCost(cost)) > 1e-9 {
		t.Errorf("cost total drift: snapshot %v, rows %v", snap.TotalCost, cost)
	}
}

func TestSnapshotNeverDecreases(t *testing.T) {
	agg := NewAggregator(testEstimator(t))

	var prev float64
	for i := 0; i < 10; i++ {
		agg.Record("openai", 100, 50)
		snap := agg.Snapshot()
		if snap.TotalCost < prev {
			t.Fatalf("total cost decreased: %v -> %v", prev, snap.TotalCost)
		}
		prev = snap.TotalCost
	}
}

func TestRowOrderStable(t *testing.T) {
	agg := NewAggregator(testEstimator(t))
	agg.Record("openai", 1, 1)
	agg.Record("anthropic", 1, 1)
	agg.Record("openai", 1, 1)

	snap := agg.Snapshot()
	if snap.Rows[0].BackendID != "openai" || snap.Rows[1].BackendID != "anthropic" {
		t.Errorf("row order wrong: %+v", snap.Rows)
	}
}

func TestAggregatorsIndependent(t *testing.T) {
	a := NewAggregator(testEstimator(t))
	b := NewAggregator(testEstimator(t))

	a.Record("anthropic", 5000, 2000)
	b.Record("anthropic", 10, 10)

	snapA := a.Snapshot()
	snapB := b.Snapshot()
	if snapA.TotalInputTokens == snapB.TotalInputTokens {
		t.Error("aggregators shared state")
	}
	if snapB.TotalInputTokens != 10 {
		t.Errorf("session B contaminated: %+v", snapB)
	}
}

func TestConcurrentRecord(t *testing.T) {
	agg := NewAggregator(testEstimator(t))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agg.Record("openai", 10, 5)
		}()
	}
	wg.Wait()

	snap := agg.Snapshot()
	if snap.TotalInputTokens != 200 || snap.TotalOutputTokens != 100 {
		t.Errorf("lost updates: %+v", snap)
	}
}
