package validation

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/noot-app/petfood-nutrition-server/internal/nutrition"
)

// Range is an inclusive plausibility interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) union(o Range) Range {
	return Range{Min: min(r.Min, o.Min), Max: max(r.Max, o.Max)}
}

// NutrientBounds holds the ranges for one food type. Moisture is validated
// separately through MoistureBands.
type NutrientBounds struct {
	Protein Range `json:"protein"`
	Fat     Range `json:"fat"`
	Fiber   Range `json:"fiber"`
	Ash     Range `json:"ash"`
}

// MoistureBands describes the food-type independent moisture model. Values
// between the accepted bands are unusual, values below Min or at/above Max
// are implausible.
type MoistureBands struct {
	Min          float64 `json:"min"`
	DryMax       float64 `json:"dry_max"`
	SemiMoistMin float64 `json:"semi_moist_min"`
	SemiMoistMax float64 `json:"semi_moist_max"`
	WetMin       float64 `json:"wet_min"`
	WetMax       float64 `json:"wet_max"`
	Max          float64 `json:"max"`
}

// Bounds is the full plausibility table.
type Bounds struct {
	Wet          NutrientBounds `json:"wet"`
	Dry          NutrientBounds `json:"dry"`
	Moisture     MoistureBands  `json:"moisture"`
	TotalMax     float64        `json:"total_max"`
	CarbsHigh    float64        `json:"carbs_high"`
	CarbsTooHigh float64        `json:"carbs_too_high"`
}

// DefaultBounds returns the built-in table.
func DefaultBounds() Bounds {
	return Bounds{
		Wet: NutrientBounds{
			Protein: Range{Min: 5, Max: 20},
			Fat:     Range{Min: 1, Max: 15},
			Fiber:   Range{Min: 0, Max: 3},
			Ash:     Range{Min: 1, Max: 4},
		},
		Dry: NutrientBounds{
			Protein: Range{Min: 18, Max: 60},
			Fat:     Range{Min: 5, Max: 30},
			Fiber:   Range{Min: 0.5, Max: 10},
			Ash:     Range{Min: 3.5, Max: 12},
		},
		Moisture: MoistureBands{
			Min:          6,
			DryMax:       12,
			SemiMoistMin: 15,
			SemiMoistMax: 30,
			WetMin:       70,
			WetMax:       85,
			Max:          100,
		},
		TotalMax:     105,
		CarbsHigh:    10,
		CarbsTooHigh: 30,
	}
}

// LoadBounds reads a JSON bounds table. Fields missing from the file keep
// their default values.
func LoadBounds(path string) (Bounds, error) {
	bounds := DefaultBounds()

	data, err := os.ReadFile(path)
	if err != nil {
		return Bounds{}, fmt.Errorf("failed to read bounds file: %w", err)
	}
	if err := json.Unmarshal(data, &bounds); err != nil {
		return Bounds{}, fmt.Errorf("failed to parse bounds file: %w", err)
	}
	if err := bounds.Check(); err != nil {
		return Bounds{}, err
	}
	return bounds, nil
}

// Check verifies that every range is ordered and the moisture bands ascend.
func (b Bounds) Check() error {
	for _, ft := range []nutrition.FoodType{nutrition.FoodTypeWet, nutrition.FoodTypeDry} {
		for _, n := range []nutrition.Nutrient{nutrition.Protein, nutrition.Fat, nutrition.Fiber, nutrition.Ash} {
			r, _ := b.Range(n, ft)
			if r.Min > r.Max {
				return fmt.Errorf("invalid %s range for %s food: min %.2f > max %.2f", n, ft, r.Min, r.Max)
			}
		}
	}

	m := b.Moisture
	steps := []float64{m.Min, m.DryMax, m.SemiMoistMin, m.SemiMoistMax, m.WetMin, m.WetMax, m.Max}
	for i := 1; i < len(steps); i++ {
		if steps[i] < steps[i-1] {
			return fmt.Errorf("moisture bands must ascend: %v", steps)
		}
	}
	if b.CarbsHigh > b.CarbsTooHigh {
		return fmt.Errorf("carbs_high %.2f exceeds carbs_too_high %.2f", b.CarbsHigh, b.CarbsTooHigh)
	}
	return nil
}

func (nb NutrientBounds) get(n nutrition.Nutrient) (Range, bool) {
	switch n {
	case nutrition.Protein:
		return nb.Protein, true
	case nutrition.Fat:
		return nb.Fat, true
	case nutrition.Fiber:
		return nb.Fiber, true
	case nutrition.Ash:
		return nb.Ash, true
	}
	return Range{}, false
}

// Range returns the expected interval of n for a food type. Unknown food
// uses the union of the wet and dry ranges. Moisture maps to the accepted
// band of the food type.
func (b Bounds) Range(n nutrition.Nutrient, ft nutrition.FoodType) (Range, bool) {
	if n == nutrition.Moisture {
		switch ft {
		case nutrition.FoodTypeWet:
			return Range{Min: b.Moisture.WetMin, Max: b.Moisture.WetMax}, true
		case nutrition.FoodTypeDry:
			return Range{Min: b.Moisture.Min, Max: b.Moisture.DryMax}, true
		default:
			return Range{Min: b.Moisture.Min, Max: b.Moisture.WetMax}, true
		}
	}

	switch ft {
	case nutrition.FoodTypeWet:
		return b.Wet.get(n)
	case nutrition.FoodTypeDry:
		return b.Dry.get(n)
	default:
		wet, ok := b.Wet.get(n)
		if !ok {
			return Range{}, false
		}
		dry, _ := b.Dry.get(n)
		return wet.union(dry), true
	}
}
