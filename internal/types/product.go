package types

import (
	"fmt"
	"math"
	"strings"

	"github.com/noot-app/petfood-nutrition-server/internal/nutrition"
)

// Product is one row of the Open Pet Food Facts export.
type Product struct {
	Code           string                 `json:"code"`
	ProductName    string                 `json:"product_name"`
	Brands         string                 `json:"brands"`
	CategoriesTags []string               `json:"categories_tags,omitempty"`
	Nutriments     map[string]interface{} `json:"nutriments"`
	Link           string                 `json:"link,omitempty"`
	ServingSize    string                 `json:"serving_size,omitempty"`
}

// NutrimentKeys maps each nutrient to its per-100g key in the nutriments map.
var NutrimentKeys = map[nutrition.Nutrient]string{
	nutrition.Protein:  "proteins_100g",
	nutrition.Fat:      "fat_100g",
	nutrition.Fiber:    "fiber_100g",
	nutrition.Moisture: "moisture_100g",
	nutrition.Ash:      "ash_100g",
}

// Baseline acceptance ranges. Database entries outside them are usually
// per-serving or per-kg values entered by mistake.
var (
	acceptedProtein = [2]float64{5, 70}
	acceptedFat     = [2]float64{1, 35}
)

// Brand returns the first entry of the comma separated brands field.
func (p *Product) Brand() string {
	first, _, _ := strings.Cut(p.Brands, ",")
	return strings.TrimSpace(first)
}

// Nutriment returns the per-100g value of n if the export has a usable one.
func (p *Product) Nutriment(n nutrition.Nutrient) (float64, bool) {
	key, ok := NutrimentKeys[n]
	if !ok {
		return 0, false
	}
	v, ok := extractFloat(p.Nutriments, key)
	if !ok || v < 0 || v > 100 {
		return 0, false
	}
	return v, true
}

// ToBaseline converts the nutriments into a profile usable as reconciliation
// baseline. Protein outside 5-70% and fat outside 1-35% are dropped.
func (p *Product) ToBaseline() nutrition.Profile {
	var profile nutrition.Profile
	for _, n := range nutrition.AllNutrients() {
		v, ok := p.Nutriment(n)
		if !ok {
			continue
		}
		switch n {
		case nutrition.Protein:
			if v < acceptedProtein[0] || v > acceptedProtein[1] {
				continue
			}
		case nutrition.Fat:
			if v < acceptedFat[0] || v > acceptedFat[1] {
				continue
			}
		}
		profile.Set(n, v)
	}
	return profile
}

// ProductSummary is a compact view of a product for tool responses.
type ProductSummary struct {
	Code           string            `json:"code"`
	ProductName    string            `json:"product_name"`
	Brand          string            `json:"brand"`
	CategoriesTags []string          `json:"categories_tags,omitempty"`
	Nutrition      nutrition.Profile `json:"nutrition"`
	Link           string            `json:"link,omitempty"`
}

// ToSummary converts a full Product to a ProductSummary.
func (p *Product) ToSummary() ProductSummary {
	return ProductSummary{
		Code:           p.Code,
		ProductName:    p.ProductName,
		Brand:          p.Brand(),
		CategoriesTags: p.CategoriesTags,
		Nutrition:      p.ToBaseline(),
		Link:           p.Link,
	}
}

// extractFloat coerces a nutriments map value to float64.
func extractFloat(m map[string]interface{}, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.ReplaceAll(x, ",", "."), "%f", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}
