package nutrition

import "github.com/shopspring/decimal"

// CarbsLevel is the quality tier of a carbohydrate percentage.
type CarbsLevel string

const (
	CarbsGood     CarbsLevel = "good"
	CarbsModerate CarbsLevel = "moderate"
	CarbsHigh     CarbsLevel = "high"
)

// Description is the short label shown next to the tier.
func (l CarbsLevel) Description() string {
	switch l {
	case CarbsGood:
		return "Excellent"
	case CarbsModerate:
		return "Acceptable"
	case CarbsHigh:
		return "Too High"
	}
	return "Unknown"
}

// Energy factors in kcal per gram.
const (
	ProteinKcalPerGram = 3.5
	FatKcalPerGram     = 8.5
	CarbsKcalPerGram   = 3.5
)

// CalculateCarbs estimates carbohydrates by difference on a dry matter basis.
// It returns 0 when moisture is 100% or more and when the other nutrients
// already add up to more than 100%.
func CalculateCarbs(protein, fat, fiber, moisture, ash float64) float64 {
	if moisture >= 100 {
		return 0
	}

	dryMatter := 100 - moisture
	carbs := 100 - protein - fat - fiber - moisture - ash
	if carbs < 0 {
		return 0
	}

	return round2(100 * carbs / dryMatter)
}

// ClassifyCarbs maps a dry matter carbohydrate percentage onto a tier. Both
// tier limits are inclusive: 5% is still good and 10% still moderate.
func ClassifyCarbs(carbs float64) CarbsLevel {
	switch {
	case carbs <= 5.0:
		return CarbsGood
	case carbs <= 10.0:
		return CarbsModerate
	default:
		return CarbsHigh
	}
}

// Calories is the energy breakdown per 100g.
type Calories struct {
	Protein float64 `json:"protein_kcal"`
	Fat     float64 `json:"fat_kcal"`
	Carbs   float64 `json:"carbs_kcal"`
}

// Total returns the summed energy, rounded to 2 decimals.
func (c Calories) Total() float64 {
	return round2(c.Protein + c.Fat + c.Carbs)
}

// CalculateCalories converts macronutrient percentages into kcal per 100g.
func CalculateCalories(protein, fat, carbs float64) Calories {
	return Calories{
		Protein: round2(protein * ProteinKcalPerGram),
		Fat:     round2(fat * FatKcalPerGram),
		Carbs:   round2(carbs * CarbsKcalPerGram),
	}
}

// round2 rounds half away from zero at the hundredths digit.
func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
