package consensus

import (
	"sync"

	"github.com/noot-app/petfood-nutrition-server/internal/nutrition"
)

// Accumulator collects readings across the frames of one scan session and
// resolves each nutrient by consensus. It is safe for concurrent use, but is
// meant to be owned by a single session.
type Accumulator struct {
	mu      sync.Mutex
	filter  Filter
	history [nutrition.NutrientCount][]float64
	frames  int
}

// NewAccumulator creates an empty accumulator. A nil filter means DefaultFilter.
func NewAccumulator(filter Filter) *Accumulator {
	if filter == nil {
		filter = DefaultFilter
	}
	return &Accumulator{filter: filter}
}

// Observe folds one extracted frame into the history and returns the
// consensus profile after it.
func (a *Accumulator) Observe(p nutrition.Profile) nutrition.Profile {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.frames++
	for _, n := range nutrition.AllNutrients() {
		if v, ok := p.Get(n); ok {
			a.history[n] = append(a.history[n], v)
		}
	}
	return a.profileLocked()
}

// Add records a single reading without counting a frame.
func (a *Accumulator) Add(r nutrition.Reading) {
	if !r.Nutrient.Valid() {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history[r.Nutrient] = append(a.history[r.Nutrient], r.Value)
}

// Profile returns the current consensus profile.
func (a *Accumulator) Profile() nutrition.Profile {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.profileLocked()
}

func (a *Accumulator) profileLocked() nutrition.Profile {
	var p nutrition.Profile
	for _, n := range nutrition.AllNutrients() {
		if v, ok := Resolve(a.history[n], a.filter); ok {
			p.Set(n, v)
		}
	}
	return p
}

// Support returns the consensus result for a single nutrient.
func (a *Accumulator) Support(n nutrition.Nutrient) (Result, bool) {
	if !n.Valid() {
		return Result{}, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return Vote(a.history[n], a.filter)
}

// Readings returns a copy of every raw value recorded for n.
func (a *Accumulator) Readings(n nutrition.Nutrient) []float64 {
	if !n.Valid() {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]float64(nil), a.history[n]...)
}

// Frames returns how many frames were observed.
func (a *Accumulator) Frames() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frames
}

// Complete reports whether every nutrient has a consensus value.
func (a *Accumulator) Complete() bool {
	return a.Profile().IsComplete()
}
