package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// NotAvailable is the serialized marker for a numeric value that is unknown.
const NotAvailable = "N/A"

// Metric is a numeric field that may be unavailable. Unavailable values are
// always emitted as the "N/A" marker, never dropped.
type Metric struct {
	Value float64
	Valid bool
}

// NA is the unavailable Metric.
var NA = Metric{}

// Some wraps a known value.
func Some(v float64) Metric {
	return Metric{Value: v, Valid: true}
}

// FromPtr converts an optional value into a Metric.
func FromPtr(v *float64) Metric {
	if v == nil {
		return NA
	}
	return Some(*v)
}

// Or returns the value, or def when unavailable.
func (m Metric) Or(def float64) float64 {
	if !m.Valid {
		return def
	}
	return m.Value
}

func (m Metric) String() string {
	if !m.Valid {
		return NotAvailable
	}
	return strconv.FormatFloat(m.Value, 'f', -1, 64)
}

// MarshalJSON implements json.Marshaler.
func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return []byte(`"` + NotAvailable + `"`), nil
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON implements json.Unmarshaler. Both null and "N/A" decode to NA.
func (m *Metric) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte(`"`+NotAvailable+`"`)) {
		*m = NA
		return nil
	}
	var v float64
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return fmt.Errorf("failed to decode metric %s: %w", string(trimmed), err)
	}
	*m = Some(v)
	return nil
}
