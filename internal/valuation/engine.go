// Package valuation produces property valuation estimates for the analysis pipeline.
package valuation

import (
	"context"
	"encoding/json"
)

// Input is what the engine sees for one analysis request.
type Input struct {
	PropertyID     string          // Empty for inline-data requests.
	PriorValuation *float64        // Previous valuation, nil when unknown.
	LastValuation  *float64        // Accepted from clients but not used by StubEngine.
	Data           json.RawMessage // Opaque payload for inline-data requests.
}

// Result is the engine output persisted as an analysis and returned to the client.
type Result struct {
	ValuationEstimate   float64 `json:"valuation_estimate"`
	ValuationConfidence float64 `json:"valuation_confidence"`
	IsAppreciating      bool    `json:"is_appreciating"`
	AppreciationReason  string  `json:"appreciation_reason"`
	AppreciationRate    float64 `json:"appreciation_rate"`
	MarketTrend         string  `json:"market_trend"`
	RiskScore           float64 `json:"risk_score"`
	Summary             string  `json:"summary"`

	// PriorValuation is the prior the rate was computed against.
	PriorValuation float64 `json:"-"`
}

// Engine estimates a property's value. Implementations must not touch storage.
type Engine interface {
	Estimate(ctx context.Context, in Input) (Result, error)
}

// Market trend labels.
const (
	TrendUpward = "Upward"
	TrendFlat   = "Flat"
)

// AppreciationRate returns the percent change from prior to estimate, or 0 when prior is 0.
func AppreciationRate(prior, estimate float64) float64 {
	if prior == 0 {
		return 0
	}
	return (estimate - prior) / prior * 100
}

// TrendFor maps an appreciation rate to a market trend label.
func TrendFor(rate float64) string {
	if rate > 0 {
		return TrendUpward
	}
	return TrendFlat
}
