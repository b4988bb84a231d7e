package projection

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// UnknownMarker is displayed where a value was not reported.
const UnknownMarker = "unknown"

// MissingMarker is displayed for absent performance metrics.
const MissingMarker = "-"

// FormatPercent renders an already-scaled percentage with the given decimals.
func FormatPercent(pct float64, places int32) string {
	return decimal.NewFromFloat(pct).StringFixed(places) + "%"
}

// FormatRatio renders a fraction (0.12) as a percentage ("12.00%").
func FormatRatio(ratio float64, places int32) string {
	return decimal.NewFromFloat(ratio).Mul(decimal.NewFromInt(100)).StringFixed(places) + "%"
}

// FormatMoney renders an amount as US dollars with thousands separators.
func FormatMoney(amount float64) string {
	d := decimal.NewFromFloat(amount).Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	fixed := d.StringFixed(2)
	intPart, frac := fixed, ""
	if i := strings.IndexByte(fixed, '.'); i >= 0 {
		intPart, frac = fixed[:i], fixed[i:]
	}
	return sign + "$" + groupThousands(intPart) + frac
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
