package retros

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const missing = "-"

var printer = message.NewPrinter(language.BritishEnglish)

// Formatter renders table cells. Preformatted strings pass through.
type Formatter struct {
	// Symbol prefixes bare currency amounts.
	Symbol string
}

// Currency renders a whole-unit amount, e.g. £12,340.
func (f Formatter) Currency(v Value) string {
	if v.Empty() {
		return missing
	}
	if !v.isNum && (strings.HasPrefix(v.str, "£") || strings.HasPrefix(v.str, "$") || strings.HasPrefix(v.str, f.Symbol)) {
		return v.str
	}
	n, ok := v.float()
	if !ok {
		return v.String()
	}
	return f.Symbol + printer.Sprint(number.Decimal(n, number.MaxFractionDigits(0)))
}

// Percentage renders a ratio to three decimals, e.g. 0.125%.
func (f Formatter) Percentage(v Value) string {
	if v.Empty() {
		return missing
	}
	if !v.isNum && strings.HasSuffix(v.str, "%") {
		return v.str
	}
	n, ok := v.float()
	if !ok && !v.isNum {
		n, ok = Str(strings.ReplaceAll(v.str, ",", "")).float()
	}
	if !ok {
		return v.String()
	}
	return strconv.FormatFloat(n, 'f', 3, 64) + "%"
}

// Metric renders a count with thousands separators. Strings that are not
// plain numbers, such as "1,234" or "—", pass through.
func (f Formatter) Metric(v Value) string {
	if v.Empty() {
		return missing
	}
	n, ok := v.float()
	if !ok {
		return v.String()
	}
	return printer.Sprint(number.Decimal(n, number.MaxFractionDigits(3)))
}

// Payback renders months to one decimal.
func (f Formatter) Payback(v Value) string {
	if v.Empty() {
		return missing
	}
	if !v.isNum && strings.Contains(v.str, ".") {
		return v.str
	}
	n, ok := v.float()
	if !ok {
		return v.String()
	}
	return strconv.FormatFloat(n, 'f', 1, 64)
}

// Change renders a month-over-month delta, e.g. +4.2% or -3%.
func (f Formatter) Change(v Value) string {
	if v.Empty() {
		return missing
	}
	if !v.isNum && strings.HasSuffix(v.str, "%") {
		return v.str
	}
	n, ok := v.float()
	if !ok {
		return v.String()
	}
	s := strconv.FormatFloat(n, 'f', 1, 64)
	if n == math.Trunc(n) {
		s = strconv.FormatFloat(n, 'f', 0, 64)
	}
	if n > 0 {
		return "+" + s + "%"
	}
	return s + "%"
}

// Placements renders a vendor's placement list one per line.
func (f Formatter) Placements(v Value) string {
	switch {
	case v.list != nil:
		return strings.Join(v.list, "<br>")
	case v.Empty():
		return "BAU placements"
	case !v.isNum:
		return strings.ReplaceAll(v.str, ",", "<br>")
	default:
		return v.String()
	}
}
