package tools

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	millionPattern   = regexp.MustCompile(`(\d+[.,]?\d*)\s*(jt|juta)\b`)
	thousandPattern  = regexp.MustCompile(`(\d+[.,]?\d*)\s*(k|rb|ribu)\b`)
	rupiahPattern    = regexp.MustCompile(`rp\.?\s*([\d.,]+)`)
	separatedPattern = regexp.MustCompile(`(\d{1,3}(?:[.,]\d{3})+)`)
	plainPattern     = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
)

// ParseAmount extracts an amount from Indonesian-style free text:
// "1.5jt" and "2 juta" are millions, "35k", "35rb" and "35 ribu" are
// thousands, "Rp 50.000" and "50,000" use thousand separators.
// It returns false when no number is found.
func ParseAmount(text string) (float64, bool) {
	text = strings.ToLower(text)

	if m := millionPattern.FindStringSubmatch(text); m != nil {
		return scaled(m[1], 1_000_000)
	}
	if m := thousandPattern.FindStringSubmatch(text); m != nil {
		return scaled(m[1], 1_000)
	}
	if m := rupiahPattern.FindStringSubmatch(text); m != nil {
		digits := strings.NewReplacer(".", "", ",", "").Replace(m[1])
		if v, err := strconv.ParseFloat(digits, 64); err == nil {
			return v, true
		}
	}
	if m := separatedPattern.FindStringSubmatch(text); m != nil {
		digits := strings.NewReplacer(".", "", ",", "").Replace(m[1])
		if v, err := strconv.ParseFloat(digits, 64); err == nil {
			return v, true
		}
	}
	if m := plainPattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

// scaled treats a comma as the decimal point ("1,5jt").
func scaled(num string, unit float64) (float64, bool) {
	v, err := strconv.ParseFloat(strings.Replace(num, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return v * unit, true
}
