// Package validation range-checks nutrition profiles. Findings are advisory:
// nothing here rejects or changes a value.
package validation

import (
	"fmt"
	"strings"

	"github.com/noot-app/petfood-nutrition-server/internal/nutrition"
)

// Kind classifies a finding.
type Kind string

const (
	KindTotalTooHigh    Kind = "total_too_high"
	KindNutrientTooHigh Kind = "nutrient_too_high"
	KindNutrientTooLow  Kind = "nutrient_too_low"
	KindUnusualRange    Kind = "unusual_range"
	KindCarbsHigh       Kind = "carbs_high"
	KindCarbsTooHigh    Kind = "carbs_too_high"
)

// Finding is one advisory produced by Validate.
type Finding struct {
	Kind     Kind                `json:"kind"`
	Nutrient *nutrition.Nutrient `json:"nutrient,omitempty"`
	Value    float64             `json:"observed_value"`
	Message  string              `json:"message"`
}

// Validator checks profiles against a bounds table.
type Validator struct {
	bounds Bounds
}

// New creates a Validator for the given table.
func New(bounds Bounds) *Validator {
	return &Validator{bounds: bounds}
}

// Default creates a Validator with DefaultBounds.
func Default() *Validator {
	return New(DefaultBounds())
}

// Bounds returns the table in use.
func (v *Validator) Bounds() Bounds {
	return v.bounds
}

// Validate returns all findings for p. A plausible profile yields an empty,
// non-nil slice.
func (v *Validator) Validate(p nutrition.Profile, ft nutrition.FoodType) []Finding {
	findings := []Finding{}

	if total := p.Total(); total > v.bounds.TotalMax {
		findings = append(findings, Finding{
			Kind:    KindTotalTooHigh,
			Value:   total,
			Message: fmt.Sprintf("Nutrients add up to %.1f%%, more than the expected maximum of %.0f%%", total, v.bounds.TotalMax),
		})
	}

	for _, n := range nutrition.AllNutrients() {
		value, ok := p.Get(n)
		if !ok {
			continue
		}
		if n == nutrition.Moisture {
			if f, ok := v.checkMoisture(value); ok {
				findings = append(findings, f)
			}
			continue
		}
		if f, ok := v.checkNutrient(n, value, ft); ok {
			findings = append(findings, f)
		}
	}

	if carbs, ok := p.Carbs(); ok {
		switch {
		case carbs > v.bounds.CarbsTooHigh:
			findings = append(findings, Finding{
				Kind:    KindCarbsTooHigh,
				Value:   carbs,
				Message: fmt.Sprintf("Carbohydrates of %.1f%% on dry matter are above %.0f%%, the label values are likely wrong", carbs, v.bounds.CarbsTooHigh),
			})
		case carbs > v.bounds.CarbsHigh:
			findings = append(findings, Finding{
				Kind:    KindCarbsHigh,
				Value:   carbs,
				Message: fmt.Sprintf("Carbohydrates of %.1f%% on dry matter are high", carbs),
			})
		}
	}

	return findings
}

// Plausible reports whether value lies within the expected range of n for ft.
func (v *Validator) Plausible(n nutrition.Nutrient, value float64, ft nutrition.FoodType) bool {
	if n == nutrition.Moisture {
		_, flagged := v.checkMoisture(value)
		return !flagged
	}
	_, flagged := v.checkNutrient(n, value, ft)
	return !flagged
}

func (v *Validator) checkNutrient(n nutrition.Nutrient, value float64, ft nutrition.FoodType) (Finding, bool) {
	r, ok := v.bounds.Range(n, ft)
	if !ok {
		return Finding{}, false
	}

	switch {
	case value > r.Max:
		return newFinding(KindNutrientTooHigh, n, value,
			fmt.Sprintf("%s %.1f%% is above the expected maximum of %.1f%% for %s food", title(n), value, r.Max, ft)), true
	case value < r.Min:
		return newFinding(KindNutrientTooLow, n, value,
			fmt.Sprintf("%s %.1f%% is below the expected minimum of %.1f%% for %s food", title(n), value, r.Min, ft)), true
	}
	return Finding{}, false
}

func (v *Validator) checkMoisture(value float64) (Finding, bool) {
	m := v.bounds.Moisture
	n := nutrition.Moisture

	switch {
	case value < m.Min:
		return newFinding(KindNutrientTooLow, n, value,
			fmt.Sprintf("Moisture %.1f%% is below %.0f%%, which no cat food has", value, m.Min)), true
	case value >= m.Max:
		return newFinding(KindNutrientTooHigh, n, value,
			fmt.Sprintf("Moisture %.1f%% is impossible", value)), true
	case value <= m.DryMax:
		return Finding{}, false
	case value < m.SemiMoistMin:
		return newFinding(KindUnusualRange, n, value,
			fmt.Sprintf("Moisture %.1f%% is unusual, between dry (%.0f%%) and semi-moist (%.0f%%) food", value, m.DryMax, m.SemiMoistMin)), true
	case value <= m.SemiMoistMax:
		return Finding{}, false
	case value < m.WetMin:
		return newFinding(KindUnusualRange, n, value,
			fmt.Sprintf("Moisture %.1f%% is unusual, between semi-moist (%.0f%%) and wet (%.0f%%) food", value, m.SemiMoistMax, m.WetMin)), true
	case value <= m.WetMax:
		return Finding{}, false
	default:
		return newFinding(KindUnusualRange, n, value,
			fmt.Sprintf("Moisture %.1f%% is unusually high, above %.0f%%", value, m.WetMax)), true
	}
}

func newFinding(kind Kind, n nutrition.Nutrient, value float64, msg string) Finding {
	return Finding{Kind: kind, Nutrient: &n, Value: value, Message: msg}
}

func title(n nutrition.Nutrient) string {
	s := n.String()
	return strings.ToUpper(s[:1]) + s[1:]
}
