package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string such as "150.00" into minor units.
// More than two fractional digits is rejected rather than rounded.
func ParseAmount(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if d.IsNegative() {
		return 0, ErrInvalidAmount
	}
	minor := d.Shift(2)
	if !minor.IsInteger() {
		return 0, ErrInvalidAmount
	}
	return minor.IntPart(), nil
}

// ParseOptionalAmount treats an empty string as zero.
func ParseOptionalAmount(raw string) (int64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	return ParseAmount(raw)
}

// FormatMinor renders minor units as a fixed two-decimal string.
func FormatMinor(v int64) string {
	return decimal.New(v, -2).StringFixed(2)
}
