package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Price holds a price exactly as a source sent it. Feeds disagree on
// whether prices are JSON strings or numbers, so both decode into the
// same textual form and are only converted to a number on demand.
type Price string

func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*p = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = Price(strings.TrimSpace(s))
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("price must be a string or number: %w", err)
		}
		*p = Price(n.String())
		return nil
	}
}

func (p Price) IsEmpty() bool {
	return strings.TrimSpace(string(p)) == ""
}

// Float parses the price as a decimal number.
func (p Price) Float() (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(p)), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", string(p))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid price %q", string(p))
	}
	return f, nil
}

// RoundCents rounds to the precision of the price column.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// SamePrice reports whether two prices are equal at cents precision.
func SamePrice(a, b float64) bool {
	return math.Round(a*100) == math.Round(b*100)
}
