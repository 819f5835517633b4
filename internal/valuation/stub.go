package valuation

import (
	"context"
)

// Stub engine constants.
const (
	StubEstimate   = 500000.0
	StubConfidence = 0.82
	StubRiskScore  = 0.32
	// StubPriorRatio derives a prior when the property has no previous valuation.
	StubPriorRatio = 0.95

	StubReason  = "Strong rent growth, low vacancy, and positive neighborhood price momentum."
	StubSummary = "The property shows resilient cash flows and benefits from favorable market dynamics, suggesting continued moderate appreciation."
)

// StubEngine is a deterministic stand-in for a model-backed valuation service.
type StubEngine struct{}

// NewStubEngine constructs a StubEngine.
func NewStubEngine() *StubEngine {
	return &StubEngine{}
}

// Estimate returns the fixed estimate with a rate derived from the prior valuation.
func (e *StubEngine) Estimate(ctx context.Context, in Input) (Result, error) {
	if errCtx := ctx.Err(); errCtx != nil {
		return Result{}, errCtx
	}
	estimate := StubEstimate
	prior := estimate * StubPriorRatio
	if in.PriorValuation != nil {
		prior = *in.PriorValuation
	}
	rate := AppreciationRate(prior, estimate)
	return Result{
		ValuationEstimate:   estimate,
		ValuationConfidence: StubConfidence,
		IsAppreciating:      rate > 0,
		AppreciationReason:  StubReason,
		AppreciationRate:    rate,
		MarketTrend:         TrendFor(rate),
		RiskScore:           StubRiskScore,
		Summary:             StubSummary,
		PriorValuation:      prior,
	}, nil
}
