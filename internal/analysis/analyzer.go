// Package analysis runs the label pipeline end to end: extraction, food type
// classification, validation and derived metrics.
package analysis

import (
	"github.com/noot-app/petfood-nutrition-server/internal/foodtype"
	"github.com/noot-app/petfood-nutrition-server/internal/label"
	"github.com/noot-app/petfood-nutrition-server/internal/nutrition"
	"github.com/noot-app/petfood-nutrition-server/internal/validation"
)

// Hints carries product context that helps classify the food type.
type Hints struct {
	Tags        []string `json:"categories_tags,omitempty"`
	ProductName string   `json:"product_name,omitempty"`
	Brand       string   `json:"brand,omitempty"`
}

// Metrics are the values derived from a complete profile.
type Metrics struct {
	Carbs            float64              `json:"carbs_percent"`
	Level            nutrition.CarbsLevel `json:"carbs_level"`
	LevelDescription string               `json:"carbs_level_description"`
	Calories         nutrition.Calories   `json:"calories"`
	TotalCalories    float64              `json:"total_kcal_per_100g"`
}

// Report is the outcome of one analysis.
type Report struct {
	Profile  nutrition.Profile    `json:"profile"`
	Matches  []label.Match        `json:"matches,omitempty"`
	Missing  []nutrition.Nutrient `json:"missing"`
	FoodType foodtype.Result      `json:"food_type"`
	Findings []validation.Finding `json:"findings"`
	Metrics  *Metrics             `json:"metrics,omitempty"`
}

// Complete reports whether all five nutrients are known.
func (r Report) Complete() bool {
	return r.Profile.IsComplete()
}

// ComputeMetrics derives carbs, tier and calories. It returns nil for an
// incomplete profile.
func ComputeMetrics(p nutrition.Profile) *Metrics {
	carbs, ok := p.Carbs()
	if !ok {
		return nil
	}

	level := nutrition.ClassifyCarbs(carbs)
	calories := nutrition.CalculateCalories(*p.Protein, *p.Fat, carbs)
	return &Metrics{
		Carbs:            carbs,
		Level:            level,
		LevelDescription: level.Description(),
		Calories:         calories,
		TotalCalories:    calories.Total(),
	}
}

// Analyzer ties the pipeline stages together.
type Analyzer struct {
	validator *validation.Validator
}

// New creates an Analyzer. A nil validator uses the default bounds.
func New(v *validation.Validator) *Analyzer {
	if v == nil {
		v = validation.Default()
	}
	return &Analyzer{validator: v}
}

// Validator returns the validator in use.
func (a *Analyzer) Validator() *validation.Validator {
	return a.validator
}

// AnalyzeText extracts nutrients from OCR lines and analyzes them.
func (a *Analyzer) AnalyzeText(lines []string, hints Hints) Report {
	matches := label.Scan(lines)

	var profile nutrition.Profile
	for _, m := range matches {
		profile.Set(m.Nutrient, m.Value)
	}

	report := a.AnalyzeProfile(profile, hints)
	report.Matches = matches
	return report
}

// AnalyzeProfile classifies, validates and computes metrics for p.
func (a *Analyzer) AnalyzeProfile(p nutrition.Profile, hints Hints) Report {
	return a.AnalyzeProfileAs(p, hints, nutrition.FoodTypeUnknown)
}

// AnalyzeProfileAs is AnalyzeProfile with a caller supplied food type.
// An unknown food type falls back to classification.
func (a *Analyzer) AnalyzeProfileAs(p nutrition.Profile, hints Hints, known nutrition.FoodType) Report {
	ft := foodtype.Result{Type: known, Signal: foodtype.SignalProvided}
	if known != nutrition.FoodTypeWet && known != nutrition.FoodTypeDry {
		ft = foodtype.Classify(hints.Tags, foodtype.ProductText(hints.ProductName, hints.Brand), p.Moisture)
	}

	missing := p.Missing()
	if missing == nil {
		missing = []nutrition.Nutrient{}
	}

	return Report{
		Profile:  p,
		Missing:  missing,
		FoodType: ft,
		Findings: a.validator.Validate(p, ft.Type),
		Metrics:  ComputeMetrics(p),
	}
}
