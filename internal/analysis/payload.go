package analysis

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Payload is the validated request body.
type Payload struct {
	PropertyID        string
	PreviousValuation *float64
	LastValuation     *float64
	Data              json.RawMessage
}

// ParsePayload accepts {"property_id": string, "previous_valuation"?: number|null,
// "last_valuation"?: number|null} or {"data": any}. Everything else is ErrInvalidPayload.
func ParsePayload(raw []byte) (Payload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return Payload{}, ErrInvalidPayload
	}
	var fields map[string]json.RawMessage
	if errUnmarshal := json.Unmarshal(raw, &fields); errUnmarshal != nil {
		return Payload{}, ErrInvalidPayload
	}

	if rawID, ok := fields["property_id"]; ok && !isNull(rawID) {
		var propertyID string
		if errID := json.Unmarshal(rawID, &propertyID); errID != nil {
			return Payload{}, ErrInvalidPayload
		}
		previous, okPrev := optionalNumber(fields["previous_valuation"])
		last, okLast := optionalNumber(fields["last_valuation"])
		if !okPrev || !okLast {
			return Payload{}, ErrInvalidPayload
		}
		// An empty property_id keeps the property shape but links no property.
		return Payload{
			PropertyID:        strings.TrimSpace(propertyID),
			PreviousValuation: previous,
			LastValuation:     last,
		}, nil
	}

	if data, ok := fields["data"]; ok {
		return Payload{Data: append(json.RawMessage(nil), data...)}, nil
	}
	return Payload{}, ErrInvalidPayload
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// optionalNumber decodes an absent or null value as nil and rejects non-numbers.
func optionalNumber(raw json.RawMessage) (*float64, bool) {
	if len(raw) == 0 || isNull(raw) {
		return nil, true
	}
	var value float64
	if errUnmarshal := json.Unmarshal(raw, &value); errUnmarshal != nil {
		return nil, false
	}
	return &value, true
}
