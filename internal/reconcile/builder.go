// Package reconcile merges a product database record with freshly scanned
// label values and keeps per-nutrient provenance.
package reconcile

import (
	"math"

	"github.com/noot-app/petfood-nutrition-server/internal/nutrition"
	"github.com/noot-app/petfood-nutrition-server/internal/validation"
)

// MatchTolerance is the largest difference treated as the same value.
const MatchTolerance = 0.1

// Reason explains the decision taken for one nutrient.
type Reason string

const (
	ReasonNoData          Reason = "no_data"
	ReasonBaselineOnly    Reason = "baseline_only"
	ReasonBaselineMissing Reason = "baseline_missing"
	ReasonMatch           Reason = "match"
	ReasonBaselineZero    Reason = "baseline_zero"
	ReasonBaselineLow     Reason = "baseline_below_expected"
	ReasonScanDouble      Reason = "scan_more_than_double"
	ReasonConflict        Reason = "conflict"
	ReasonManual          Reason = "manual"
)

// Field is the merged value of one nutrient with its provenance. Baseline and
// Scanned keep the inputs so callers can render both.
type Field struct {
	Nutrient nutrition.Nutrient `json:"nutrient"`
	Value    *float64           `json:"value,omitempty"`
	Source   nutrition.Source   `json:"source,omitempty"`
	Baseline *float64           `json:"baseline,omitempty"`
	Scanned  *float64           `json:"scanned,omitempty"`
	Updated  bool               `json:"updated"`
	Conflict bool               `json:"conflict"`
	Reason   Reason             `json:"reason"`
}

// Record is the merged nutrition record of one product.
type Record struct {
	FoodType nutrition.FoodType `json:"food_type"`
	Fields   []Field            `json:"fields"`
}

// Profile returns the merged values.
func (r Record) Profile() nutrition.Profile {
	var p nutrition.Profile
	for _, f := range r.Fields {
		if f.Value != nil {
			p.Set(f.Nutrient, *f.Value)
		}
	}
	return p
}

// Field returns the merged field for n.
func (r Record) Field(n nutrition.Nutrient) (Field, bool) {
	for _, f := range r.Fields {
		if f.Nutrient == n {
			return f, true
		}
	}
	return Field{}, false
}

// Updated reports whether any nutrient differs from the baseline.
func (r Record) Updated() bool {
	for _, f := range r.Fields {
		if f.Updated {
			return true
		}
	}
	return false
}

// Conflicts lists the nutrients where the scan disagreed but did not win.
func (r Record) Conflicts() []nutrition.Nutrient {
	var out []nutrition.Nutrient
	for _, f := range r.Fields {
		if f.Conflict {
			out = append(out, f.Nutrient)
		}
	}
	return out
}

// ApplyManual sets n to a user supplied value, which always wins.
func (r *Record) ApplyManual(n nutrition.Nutrient, value float64) {
	for i := range r.Fields {
		if r.Fields[i].Nutrient != n {
			continue
		}
		f := &r.Fields[i]
		f.Value = nutrition.Float(value)
		f.Source = nutrition.SourceManual
		f.Updated = f.Baseline == nil || math.Abs(*f.Baseline-value) > MatchTolerance
		f.Conflict = false
		f.Reason = ReasonManual
		return
	}
}

// Builder merges baseline and scanned profiles.
type Builder struct {
	bounds validation.Bounds
}

// NewBuilder creates a Builder that judges "suspiciously low" baselines
// against bounds.
func NewBuilder(bounds validation.Bounds) *Builder {
	return &Builder{bounds: bounds}
}

// Merge combines an external baseline with scanned values. The baseline is
// kept unless the scan clearly improves on it: a missing or zero baseline, a
// baseline below the expected minimum while the scan is higher, or a scan more
// than twice the baseline. Other disagreements keep the baseline and are
// marked as conflicts.
func (b *Builder) Merge(baseline, scanned nutrition.Profile, ft nutrition.FoodType) Record {
	rec := Record{FoodType: ft, Fields: make([]Field, 0, nutrition.NutrientCount)}
	for _, n := range nutrition.AllNutrients() {
		rec.Fields = append(rec.Fields, b.mergeField(n, baseline, scanned, ft))
	}
	return rec
}

func (b *Builder) mergeField(n nutrition.Nutrient, baseline, scanned nutrition.Profile, ft nutrition.FoodType) Field {
	f := Field{Nutrient: n}
	base, hasBase := baseline.Get(n)
	scan, hasScan := scanned.Get(n)
	if hasBase {
		f.Baseline = nutrition.Float(base)
	}
	if hasScan {
		f.Scanned = nutrition.Float(scan)
	}

	useScan := func(reason Reason) Field {
		f.Value = nutrition.Float(scan)
		f.Source = nutrition.SourceOCR
		f.Updated = true
		f.Reason = reason
		return f
	}
	keepBaseline := func(reason Reason, conflict bool) Field {
		f.Value = nutrition.Float(base)
		f.Source = nutrition.SourceExternalDatabase
		f.Conflict = conflict
		f.Reason = reason
		return f
	}

	switch {
	case !hasBase && !hasScan:
		f.Reason = ReasonNoData
		return f
	case !hasScan:
		return keepBaseline(ReasonBaselineOnly, false)
	case !hasBase:
		return useScan(ReasonBaselineMissing)
	case math.Abs(scan-base) <= MatchTolerance:
		return keepBaseline(ReasonMatch, false)
	case base == 0:
		return useScan(ReasonBaselineZero)
	case b.belowExpected(n, base, ft) && scan > base:
		return useScan(ReasonBaselineLow)
	case scan > 2*base:
		return useScan(ReasonScanDouble)
	default:
		return keepBaseline(ReasonConflict, true)
	}
}

func (b *Builder) belowExpected(n nutrition.Nutrient, v float64, ft nutrition.FoodType) bool {
	r, ok := b.bounds.Range(n, ft)
	return ok && v < r.Min
}
