package report

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RoundTo rounds v to the given number of decimal places.
func RoundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// FormatMeasurement renders v in its shortest form: 40 not 40.00, 17.25 as is.
func FormatMeasurement(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatDate renders an epoch-millisecond instant as M/D/YYYY in loc. A nil
// loc means local time.
func FormatDate(ms int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(ms).In(loc).Format("1/2/2006")
}

var leadingNumber = regexp.MustCompile(`^\s*[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// parseLeading reads the numeric prefix of s, so "1.5 qt" yields 1.5.
func parseLeading(s string) (float64, bool) {
	m := leadingNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(m), 64)
	return v, err == nil
}
