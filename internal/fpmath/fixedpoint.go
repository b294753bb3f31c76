package fpmath

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// PriceConfig covers every tick size in the archives (0.0001)
	PriceConfig = DecimalConfig{DecimalPrecision: 4, Scale: 10_000}
	// QuantityConfig allows fractional lots down to 0.01
	QuantityConfig = DecimalConfig{DecimalPrecision: 2, Scale: 100}
)

// Parse converts a decimal string to scaled int64 ticks. Input with more
// decimal places than the config allows is rejected, not rounded: a
// sub-tick price in the archive means the scale assumption is wrong.
func Parse(s string, cfg DecimalConfig) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	scaled := d.Shift(int32(cfg.DecimalPrecision))
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("parse %q: more than %d decimal places", s, cfg.DecimalPrecision)
	}
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("parse %q: overflows int64 at scale %d", s, cfg.Scale)
	}
	return scaled.IntPart(), nil
}

// Format renders scaled ticks back to a canonical decimal string.
// Trailing zeros are trimmed ("55.2000" renders as "55.2").
func Format(v int64, cfg DecimalConfig) string {
	return decimal.New(v, -int32(cfg.DecimalPrecision)).String()
}

// ParsePrice parses a price string at price scale.
func ParsePrice(s string) (int64, error) {
	return Parse(s, PriceConfig)
}

// ParseQuantity parses a quantity string at quantity scale.
func ParseQuantity(s string) (int64, error) {
	return Parse(s, QuantityConfig)
}

// FormatPrice renders price ticks.
func FormatPrice(v int64) string {
	return Format(v, PriceConfig)
}

// FormatQuantity renders quantity ticks.
func FormatQuantity(v int64) string {
	return Format(v, QuantityConfig)
}
