package auction

import (
	"strings"

	"github.com/shopspring/decimal"
)

var million = decimal.NewFromInt(1_000_000)

// FormatMoney renders whole-dollar amounts, abbreviating millions ("$7.5M").
func FormatMoney(amount int64) string {
	d := decimal.NewFromInt(amount)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	if d.GreaterThanOrEqual(million) {
		m := strings.TrimSuffix(strings.TrimRight(d.Div(million).StringFixed(3), "0"), ".")
		return sign + "$" + m + "M"
	}
	return sign + "$" + groupThousands(d.StringFixed(0))
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
