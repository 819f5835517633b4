package valuation

import (
	"context"
	"encoding/json"
	"math"
	"testing"
)

func floatPtr(v float64) *float64 { return &v }

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestStubEngineWithPrior(t *testing.T) {
	res, err := NewStubEngine().Estimate(context.Background(), Input{PropertyID: "p1", PriorValuation: floatPtr(400000)})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if res.ValuationEstimate != 500000 {
		t.Fatalf("expected estimate 500000, got %v", res.ValuationEstimate)
	}
	if !approxEqual(res.AppreciationRate, 25) {
		t.Fatalf("expected rate 25, got %v", res.AppreciationRate)
	}
	if !res.IsAppreciating || res.MarketTrend != TrendUpward {
		t.Fatalf("expected upward appreciation, got %+v", res)
	}
	if res.PriorValuation != 400000 {
		t.Fatalf("expected prior 400000, got %v", res.PriorValuation)
	}
}

func TestStubEngineWithoutPrior(t *testing.T) {
	res, err := NewStubEngine().Estimate(context.Background(), Input{Data: json.RawMessage(`{"x":1}`)})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if !approxEqual(res.PriorValuation, 475000) {
		t.Fatalf("expected derived prior 475000, got %v", res.PriorValuation)
	}
	if math.Abs(res.AppreciationRate-5.2631578947) > 1e-6 {
		t.Fatalf("expected rate ~5.263, got %v", res.AppreciationRate)
	}
	if res.ValuationConfidence != StubConfidence || res.RiskScore != StubRiskScore {
		t.Fatalf("unexpected fixed fields %+v", res)
	}
	if res.AppreciationReason != StubReason || res.Summary != StubSummary {
		t.Fatalf("unexpected narrative fields %+v", res)
	}
}

func TestStubEngineZeroPrior(t *testing.T) {
	res, err := NewStubEngine().Estimate(context.Background(), Input{PropertyID: "p1", PriorValuation: floatPtr(0)})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if res.AppreciationRate != 0 || res.IsAppreciating || res.MarketTrend != TrendFlat {
		t.Fatalf("expected flat zero-rate result, got %+v", res)
	}
}

func TestStubEngineHigherPrior(t *testing.T) {
	res, err := NewStubEngine().Estimate(context.Background(), Input{PropertyID: "p1", PriorValuation: floatPtr(625000)})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if !approxEqual(res.AppreciationRate, -20) || res.IsAppreciating || res.MarketTrend != TrendFlat {
		t.Fatalf("expected -20 flat, got %+v", res)
	}
}

func TestStubEngineCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewStubEngine().Estimate(ctx, Input{}); err == nil {
		t.Fatalf("expected canceled context error")
	}
}

func TestResultJSONOmitsPrior(t *testing.T) {
	raw, err := json.Marshal(Result{PriorValuation: 1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	if errUnmarshal := json.Unmarshal(raw, &fields); errUnmarshal != nil {
		t.Fatalf("unmarshal: %v", errUnmarshal)
	}
	if len(fields) != 8 {
		t.Fatalf("expected 8 output fields, got %d: %s", len(fields), raw)
	}
}

func TestMarkerFor(t *testing.T) {
	cases := []struct {
		rate *float64
		want string
	}{
		{nil, MarkerStable},
		{floatPtr(0.5), MarkerStable},
		{floatPtr(0.51), MarkerAppreciating},
		{floatPtr(-0.5), MarkerStable},
		{floatPtr(-3), MarkerDepreciating},
	}
	for _, tc := range cases {
		if got := MarkerFor(tc.rate); got.Status != tc.want {
			t.Fatalf("MarkerFor(%v)=%s, want %s", tc.rate, got.Status, tc.want)
		}
	}
	if MarkerFor(floatPtr(10)).Color != ColorAppreciating {
		t.Fatalf("unexpected appreciating color")
	}
}
