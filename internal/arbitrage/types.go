package arbitrage

import (
	"fmt"
	"time"
)

// TokenPair names the asset routed through both pools (Base) and the asset
// paid in and measured as profit (Quote).
type TokenPair struct {
	Base  string
	Quote string
}

func (p TokenPair) String() string {
	return fmt.Sprintf("%s/%s", p.Base, p.Quote)
}

// Opportunity is a detected two-pool arbitrage. Amounts and profits are in
// Quote units: spend Amount of Quote on BuyPool for Base, sell the Base on
// SellPool back into Quote.
type Opportunity struct {
	ID              string    `json:"id"`
	Pair            string    `json:"pair"`
	BuyPool         string    `json:"buy_pool"`
	SellPool        string    `json:"sell_pool"`
	TokenIn         string    `json:"token_in"`
	TokenOut        string    `json:"token_out"`
	Amount          float64   `json:"amount"`
	GrossProfit     float64   `json:"gross_profit"`
	Cost            float64   `json:"cost"`
	ExpectedProfit  float64   `json:"expected_profit"`
	PriceDivergence float64   `json:"price_divergence"`
	DiscoveredAt    time.Time `json:"discovered_at"`
}

// TriangularPath is a profitable A->B->C->A cycle through a single pool.
type TriangularPath struct {
	ID               string    `json:"id"`
	Pool             string    `json:"pool"`
	Path             []string  `json:"path"`
	StartAmount      float64   `json:"start_amount"`
	EndAmount        float64   `json:"end_amount"`
	Profit           float64   `json:"profit"`
	ProfitPercentage float64   `json:"profit_percentage"`
	Cost             float64   `json:"cost"`
	NetProfit        float64   `json:"net_profit"`
	DiscoveredAt     time.Time `json:"discovered_at"`
}

// SkippedCandidate records a candidate dropped because a pool failed to
// price it.
type SkippedCandidate struct {
	Pools  []string `json:"pools"`
	Amount float64  `json:"amount,omitempty"`
	Reason string   `json:"reason"`
}

// ScanResult is the output of a two-pool scan.
type ScanResult struct {
	Opportunities []Opportunity
	Skipped       []SkippedCandidate
	Evaluated     int
}

// Best returns the opportunity with the highest expected profit.
func (r *ScanResult) Best() (Opportunity, bool) {
	if r == nil || len(r.Opportunities) == 0 {
		return Opportunity{}, false
	}
	best := r.Opportunities[0]
	for _, o := range r.Opportunities[1:] {
		if o.ExpectedProfit > best.ExpectedProfit {
			best = o
		}
	}
	return best, true
}

// TriangularResult is the output of a triangular scan.
type TriangularResult struct {
	Paths     []TriangularPath
	Skipped   []SkippedCandidate
	Evaluated int
}
