package datanorm

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dateLayouts mirror the export formats Google has shipped over time:
// US month-first with 4- and 2-digit years, ISO, then day-first.
var dateLayouts = []string{"1/2/2006", "1/2/06", "2006-1-2", "2/1/2006"}

// ParseDate reformats s as YYYY-MM-DD using the first layout that matches.
// When nothing matches it returns the trimmed input and false; callers must
// treat that as an invalid dimension rather than store it.
func ParseDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return s, false
}

// ParseInt parses a count with thousands separators. Empty input is a
// legitimate zero; unparsable input yields 0 and false.
func ParseInt(s string) (int64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, true
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	// Some exports render whole counts as "12.0".
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return int64(f), true
	}
	return 0, false
}

var (
	microsPerUnit = decimal.NewFromInt(1_000_000)
	maxMicros     = decimal.NewFromInt(math.MaxInt64)
	minMicros     = decimal.NewFromInt(math.MinInt64)
)

var moneyCleaner = strings.NewReplacer("$", "", ",", "", " ", "")

// ParseMicros converts a currency amount like "$1,234.56" to integer micros,
// rounding half away from zero. Unparsable input yields 0 and false.
func ParseMicros(s string) (int64, bool) {
	s = moneyCleaner.Replace(strings.TrimSpace(s))
	if s == "" {
		return 0, true
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	micros := d.Mul(microsPerUnit).Round(0)
	if micros.GreaterThan(maxMicros) || micros.LessThan(minMicros) {
		return 0, false
	}
	return micros.IntPart(), true
}

// ParseBool reads the SDK flag columns.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1":
		return true
	}
	return false
}

// Rate returns num/den, or 0 when den is zero.
func Rate(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Percent returns num/den*100 rounded to two decimals, or 0 when den is zero.
func Percent(num, den int64) float64 {
	return math.Round(Rate(num, den)*10000) / 100
}
