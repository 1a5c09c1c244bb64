// Package cost accumulates per-backend token usage into running cost
// totals for a single debate session.
package cost

import (
	"sync"

	"github.com/parleyhq/parley/backend"
	"github.com/parleyhq/parley/internal/core"
)

// Estimator prices a cumulative token count for a backend. It is
// normally backed by the adapter's EstimateCost so aggregated rows
// round identically to per-call estimates.
type Estimator func(backendID string, inputTokens, outputTokens int) float64

// Aggregator tracks usage for one session. Instantiate one per session
// and thread it through explicitly; never share across sessions.
type Aggregator struct {
	mu       sync.Mutex
	order    []string
	rows     map[string]*core.CostRow
	estimate Estimator
}

// NewAggregator creates an aggregator backed by the given estimator.
func NewAggregator(estimate Estimator) *Aggregator {
	return &Aggregator{
		rows:     make(map[string]*core.CostRow),
		estimate: estimate,
	}
}

// Record adds usage to the backend's running totals and recomputes its
// cost. The aggregator trusts each call represents genuinely new usage;
// idempotency is the caller's responsibility.
func (a *Aggregator) Record(backendID string, inputTokens, outputTokens int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	row, ok := a.rows[backendID]
	if !ok {
		row = &core.CostRow{BackendID: backendID}
		a.rows[backendID] = row
		a.order = append(a.order, backendID)
	}
	row.InputTokens += inputTokens
	row.OutputTokens += outputTokens
	row.Cost = a.estimate(backendID, row.InputTokens, row.OutputTokens)
}

// Snapshot returns per-backend rows plus grand totals. Rows appear in
// first-recorded order; totals are the sum of the rows.
func (a *Aggregator) Snapshot() core.CostSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := core.CostSnapshot{}
	for _, id := range a.order {
		row := a.rows[id]
		snap.Rows = append(snap.Rows, *row)
		snap.TotalInputTokens += row.InputTokens
		snap.TotalOutputTokens += row.OutputTokens
		snap.TotalCost += row.Cost
	}
	snap.TotalCost = backend.RoundCost(snap.TotalCost)
	return snap
}
