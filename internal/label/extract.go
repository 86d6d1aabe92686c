// Package label turns OCR text from a pet food label into nutrient values.
package label

import (
	"strconv"
	"strings"

	"github.com/noot-app/petfood-nutrition-server/internal/nutrition"
)

// Match describes which expression produced a nutrient value.
type Match struct {
	Nutrient nutrition.Nutrient `json:"nutrient"`
	Value    float64            `json:"value"`
	Locale   string             `json:"locale"`
	Text     string             `json:"text"`
}

// Normalize lowercases the lines and joins them with newlines.
func Normalize(lines []string) string {
	return strings.ToLower(strings.Join(lines, "\n"))
}

// Scan returns the winning match for every nutrient that was found, in label
// order. Nutrients resolve independently of each other.
func Scan(lines []string) []Match {
	text := Normalize(lines)

	var matches []Match
	for _, n := range nutrition.AllNutrients() {
		if m, ok := find(text, n); ok {
			matches = append(matches, m)
		}
	}
	return matches
}

// Extract reads the five nutrient percentages from OCR lines. Nutrients
// without a usable match are left unset.
func Extract(lines []string) nutrition.Profile {
	var profile nutrition.Profile
	for _, m := range Scan(lines) {
		profile.Set(m.Nutrient, m.Value)
	}
	return profile
}

// ExtractReadings is Extract returning OCR-sourced readings.
func ExtractReadings(lines []string) []nutrition.Reading {
	return Extract(lines).Readings(nutrition.SourceOCR)
}

func find(text string, n nutrition.Nutrient) (Match, bool) {
	for _, p := range Patterns(n) {
		sub := p.Expr.FindStringSubmatch(text)
		if len(sub) < 2 {
			continue
		}

		value, err := parseNumber(sub[1])
		if err != nil {
			continue
		}

		return Match{Nutrient: n, Value: value, Locale: p.Locale, Text: sub[0]}, true
	}
	return Match{}, false
}

// parseNumber accepts both "11.5" and the European "11,5".
func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
}
