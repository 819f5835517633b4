package valuation

// Marker classifies a property for the portfolio map.
type Marker struct {
	Status string `json:"status"`
	Color  string `json:"color"`
}

// Marker statuses and their map colors.
const (
	MarkerAppreciating = "appreciating"
	MarkerDepreciating = "depreciating"
	MarkerStable       = "stable"

	ColorAppreciating = "#22c55e"
	ColorDepreciating = "#f43f5e"
	ColorStable       = "#eab308"

	markerThreshold = 0.5
)

// MarkerFor classifies an appreciation rate; a nil rate counts as 0.
func MarkerFor(rate *float64) Marker {
	value := 0.0
	if rate != nil {
		value = *rate
	}
	switch {
	case value > markerThreshold:
		return Marker{Status: MarkerAppreciating, Color: ColorAppreciating}
	case value < -markerThreshold:
		return Marker{Status: MarkerDepreciating, Color: ColorDepreciating}
	default:
		return Marker{Status: MarkerStable, Color: ColorStable}
	}
}
