package nutrition

// Profile holds the five base nutrient percentages of one product. A nil field
// means the value is unknown, which is different from a reported 0%.
type Profile struct {
	Protein  *float64 `json:"protein,omitempty"`
	Fat      *float64 `json:"fat,omitempty"`
	Fiber    *float64 `json:"fiber,omitempty"`
	Moisture *float64 `json:"moisture,omitempty"`
	Ash      *float64 `json:"ash,omitempty"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// NewProfile builds a complete profile from five known values.
func NewProfile(protein, fat, fiber, moisture, ash float64) Profile {
	return Profile{
		Protein:  Float(protein),
		Fat:      Float(fat),
		Fiber:    Float(fiber),
		Moisture: Float(moisture),
		Ash:      Float(ash),
	}
}

func (p *Profile) field(n Nutrient) **float64 {
	switch n {
	case Protein:
		return &p.Protein
	case Fat:
		return &p.Fat
	case Fiber:
		return &p.Fiber
	case Moisture:
		return &p.Moisture
	case Ash:
		return &p.Ash
	}
	return nil
}

// Get returns the value for n and whether it is known.
func (p Profile) Get(n Nutrient) (float64, bool) {
	f := p.field(n)
	if f == nil || *f == nil {
		return 0, false
	}
	return **f, true
}

// Set stores v for n. Unknown nutrients are ignored.
func (p *Profile) Set(n Nutrient, v float64) {
	if f := p.field(n); f != nil {
		*f = Float(v)
	}
}

// Clear marks n as unknown.
func (p *Profile) Clear(n Nutrient) {
	if f := p.field(n); f != nil {
		*f = nil
	}
}

// IsComplete reports whether all five values are known.
func (p Profile) IsComplete() bool {
	return len(p.Missing()) == 0
}

// IsEmpty reports whether no value is known.
func (p Profile) IsEmpty() bool {
	return len(p.Missing()) == NutrientCount
}

// Missing lists the nutrients without a value, in label order.
func (p Profile) Missing() []Nutrient {
	var missing []Nutrient
	for _, n := range AllNutrients() {
		if _, ok := p.Get(n); !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

// Total sums the known values, treating unknown ones as zero.
func (p Profile) Total() float64 {
	var total float64
	for _, n := range AllNutrients() {
		if v, ok := p.Get(n); ok {
			total += v
		}
	}
	return total
}

// Readings converts the known values into readings tagged with src.
func (p Profile) Readings(src Source) []Reading {
	var readings []Reading
	for _, n := range AllNutrients() {
		if v, ok := p.Get(n); ok {
			readings = append(readings, Reading{Nutrient: n, Value: v, Source: src})
		}
	}
	return readings
}

// Carbs returns the carbohydrate percentage when the profile is complete.
func (p Profile) Carbs() (float64, bool) {
	if !p.IsComplete() {
		return 0, false
	}
	return CalculateCarbs(*p.Protein, *p.Fat, *p.Fiber, *p.Moisture, *p.Ash), true
}

// FoodType is the wet/dry classification used to pick plausibility bounds.
type FoodType string

const (
	FoodTypeUnknown FoodType = "unknown"
	FoodTypeWet     FoodType = "wet"
	FoodTypeDry     FoodType = "dry"
)
