package nutrition

import (
	"fmt"
	"strings"
)

// Nutrient identifies one of the five guaranteed-analysis fields printed on a
// pet food label.
type Nutrient int

const (
	Protein Nutrient = iota
	Fat
	Fiber
	Moisture
	Ash
)

// NutrientCount is the number of tracked nutrients.
const NutrientCount = 5

var nutrientNames = [NutrientCount]string{"protein", "fat", "fiber", "moisture", "ash"}

// AllNutrients returns the nutrients in label order.
func AllNutrients() []Nutrient {
	return []Nutrient{Protein, Fat, Fiber, Moisture, Ash}
}

func (n Nutrient) String() string {
	if n < 0 || int(n) >= NutrientCount {
		return fmt.Sprintf("nutrient(%d)", int(n))
	}
	return nutrientNames[n]
}

// Valid reports whether n is one of the known nutrients.
func (n Nutrient) Valid() bool {
	return n >= 0 && int(n) < NutrientCount
}

// ParseNutrient parses a nutrient name such as "protein" or "Moisture".
func ParseNutrient(s string) (Nutrient, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "fibre" {
		name = "fiber"
	}
	for i, candidate := range nutrientNames {
		if candidate == name {
			return Nutrient(i), nil
		}
	}
	return 0, fmt.Errorf("unknown nutrient %q", s)
}

func (n Nutrient) MarshalText() ([]byte, error) {
	if !n.Valid() {
		return nil, fmt.Errorf("invalid nutrient %d", int(n))
	}
	return []byte(n.String()), nil
}

func (n *Nutrient) UnmarshalText(text []byte) error {
	parsed, err := ParseNutrient(string(text))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// Source records where a nutrient value came from.
type Source string

const (
	SourceOCR              Source = "ocr"
	SourceExternalDatabase Source = "external_database"
	SourceManual           Source = "manual"
)

// Reading is a single value for one nutrient, either extracted from a label
// or supplied by an external product database.
type Reading struct {
	Nutrient Nutrient `json:"nutrient"`
	Value    float64  `json:"value"`
	Source   Source   `json:"source"`
}
