package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noot-app/petfood-nutrition-server/internal/nutrition"
	"github.com/noot-app/petfood-nutrition-server/internal/validation"
)

func profileWith(n nutrition.Nutrient, v float64) nutrition.Profile {
	var p nutrition.Profile
	p.Set(n, v)
	return p
}

func TestMerge_Rules(t *testing.T) {
	b := NewBuilder(validation.DefaultBounds())

	tests := []struct {
		name      string
		nutrient  nutrition.Nutrient
		baseline  *float64
		scanned   *float64
		foodType  nutrition.FoodType
		value     *float64
		source    nutrition.Source
		reason    Reason
		updated   bool
		conflicts bool
	}{
		{
			name:     "no data at all",
			nutrient: nutrition.Fat,
			foodType: nutrition.FoodTypeWet,
			reason:   ReasonNoData,
		},
		{
			name:     "baseline only",
			nutrient: nutrition.Fat,
			baseline: nutrition.Float(6.5),
			foodType: nutrition.FoodTypeWet,
			value:    nutrition.Float(6.5),
			source:   nutrition.SourceExternalDatabase,
			reason:   ReasonBaselineOnly,
		},
		{
			name:     "scan fills missing baseline",
			nutrient: nutrition.Ash,
			scanned:  nutrition.Float(2.1),
			foodType: nutrition.FoodTypeWet,
			value:    nutrition.Float(2.1),
			source:   nutrition.SourceOCR,
			reason:   ReasonBaselineMissing,
			updated:  true,
		},
		{
			name:     "within tolerance keeps baseline",
			nutrient: nutrition.Protein,
			baseline: nutrition.Float(11.5),
			scanned:  nutrition.Float(11.55),
			foodType: nutrition.FoodTypeWet,
			value:    nutrition.Float(11.5),
			source:   nutrition.SourceExternalDatabase,
			reason:   ReasonMatch,
		},
		{
			name:     "zero baseline",
			nutrient: nutrition.Fiber,
			baseline: nutrition.Float(0),
			scanned:  nutrition.Float(0.5),
			foodType: nutrition.FoodTypeWet,
			value:    nutrition.Float(0.5),
			source:   nutrition.SourceOCR,
			reason:   ReasonBaselineZero,
			updated:  true,
		},
		{
			name:     "baseline below expected minimum",
			nutrient: nutrition.Protein,
			baseline: nutrition.Float(12),
			scanned:  nutrition.Float(20),
			foodType: nutrition.FoodTypeDry,
			value:    nutrition.Float(20),
			source:   nutrition.SourceOCR,
			reason:   ReasonBaselineLow,
			updated:  true,
		},
		{
			name:     "scan more than double",
			nutrient: nutrition.Moisture,
			baseline: nutrition.Float(7.8),
			scanned:  nutrition.Float(78),
			foodType: nutrition.FoodTypeDry,
			value:    nutrition.Float(78),
			source:   nutrition.SourceOCR,
			reason:   ReasonScanDouble,
			updated:  true,
		},
		{
			name:      "plain disagreement keeps baseline",
			nutrient:  nutrition.Protein,
			baseline:  nutrition.Float(11.5),
			scanned:   nutrition.Float(17.5),
			foodType:  nutrition.FoodTypeWet,
			value:     nutrition.Float(11.5),
			source:    nutrition.SourceExternalDatabase,
			reason:    ReasonConflict,
			conflicts: true,
		},
		{
			name:      "lower scan does not replace baseline",
			nutrient:  nutrition.Moisture,
			baseline:  nutrition.Float(78),
			scanned:   nutrition.Float(7.8),
			foodType:  nutrition.FoodTypeWet,
			value:     nutrition.Float(78),
			source:    nutrition.SourceExternalDatabase,
			reason:    ReasonConflict,
			conflicts: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var baseline, scanned nutrition.Profile
			if tt.baseline != nil {
				baseline = profileWith(tt.nutrient, *tt.baseline)
			}
			if tt.scanned != nil {
				scanned = profileWith(tt.nutrient, *tt.scanned)
			}

			rec := b.Merge(baseline, scanned, tt.foodType)
			f, ok := rec.Field(tt.nutrient)
			require.True(t, ok)

			assert.Equal(t, tt.value, f.Value)
			assert.Equal(t, tt.source, f.Source)
			assert.Equal(t, tt.reason, f.Reason)
			assert.Equal(t, tt.updated, f.Updated)
			assert.Equal(t, tt.conflicts, f.Conflict)
			assert.Equal(t, tt.baseline, f.Baseline)
			assert.Equal(t, tt.scanned, f.Scanned)
		})
	}
}

func TestMerge_WholeRecord(t *testing.T) {
	b := NewBuilder(validation.DefaultBounds())

	baseline := nutrition.NewProfile(11.5, 6.5, 0, 7.8, 1.8)
	scanned := nutrition.NewProfile(11.5, 6.4, 0.5, 78, 1.8)

	rec := b.Merge(baseline, scanned, nutrition.FoodTypeWet)
	assert.Len(t, rec.Fields, nutrition.NutrientCount)
	assert.True(t, rec.Updated())
	assert.Empty(t, rec.Conflicts())
	assert.Equal(t, nutrition.NewProfile(11.5, 6.5, 0.5, 78, 1.8), rec.Profile())

	moisture, _ := rec.Field(nutrition.Moisture)
	assert.Equal(t, nutrition.SourceOCR, moisture.Source)
	fat, _ := rec.Field(nutrition.Fat)
	assert.Equal(t, nutrition.SourceExternalDatabase, fat.Source)
	assert.False(t, fat.Updated)
}

func TestMerge_NoChanges(t *testing.T) {
	b := NewBuilder(validation.DefaultBounds())
	p := nutrition.NewProfile(11.5, 6.5, 0.5, 79, 1.8)

	rec := b.Merge(p, p, nutrition.FoodTypeWet)
	assert.False(t, rec.Updated())
	assert.Equal(t, p, rec.Profile())
}

func TestApplyManual(t *testing.T) {
	b := NewBuilder(validation.DefaultBounds())
	rec := b.Merge(
		nutrition.NewProfile(11.5, 6.5, 0.5, 79, 1.8),
		profileWith(nutrition.Protein, 17.5),
		nutrition.FoodTypeWet,
	)
	require.Equal(t, []nutrition.Nutrient{nutrition.Protein}, rec.Conflicts())

	rec.ApplyManual(nutrition.Protein, 12)
	f, _ := rec.Field(nutrition.Protein)
	assert.Equal(t, nutrition.Float(12), f.Value)
	assert.Equal(t, nutrition.SourceManual, f.Source)
	assert.Equal(t, ReasonManual, f.Reason)
	assert.True(t, f.Updated)
	assert.False(t, f.Conflict)
	assert.Empty(t, rec.Conflicts())

	rec.ApplyManual(nutrition.Fat, 6.5)
	fat, _ := rec.Field(nutrition.Fat)
	assert.False(t, fat.Updated)
	assert.Equal(t, nutrition.SourceManual, fat.Source)
}
