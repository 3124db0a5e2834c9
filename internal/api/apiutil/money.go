package apiutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a whole-dollar value that accepts a JSON integer or a decimal
// string such as "7500000" or "7500000.00".
type Amount int64

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("amount is required")
	}

	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}

	value, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = Amount(value)
	return nil
}

// ParseAmount parses a whole-dollar amount. Fractional cents are rejected.
func ParseAmount(raw string) (int64, error) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if raw == "" {
		return 0, FieldError{Field: "amount", Reason: "is required"}
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, FieldError{Field: "amount", Reason: "must be a number"}
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, FieldError{Field: "amount", Reason: "must be whole dollars"}
	}
	if !d.IsPositive() {
		return 0, FieldError{Field: "amount", Reason: "must be greater than 0"}
	}
	if d.GreaterThan(decimal.NewFromInt(1 << 53)) {
		return 0, FieldError{Field: "amount", Reason: "is too large"}
	}
	return d.IntPart(), nil
}
