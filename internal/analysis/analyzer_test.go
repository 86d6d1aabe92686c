package analysis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noot-app/petfood-nutrition-server/internal/foodtype"
	"github.com/noot-app/petfood-nutrition-server/internal/nutrition"
	"github.com/noot-app/petfood-nutrition-server/internal/validation"
)

func TestAnalyzeText_WetLabel(t *testing.T) {
	a := New(nil)
	report := a.AnalyzeText([]string{
		"Crude Protein (min) 11.5%",
		"Crude Fat (min) 6.5%",
		"Crude Fiber (max) 0.5%",
		"Moisture (max) 79%",
		"Ash (max) 1.8%",
	}, Hints{})

	require.True(t, report.Complete())
	assert.Empty(t, report.Missing)
	assert.Len(t, report.Matches, 5)
	assert.Equal(t, foodtype.Result{Type: nutrition.FoodTypeWet, Signal: foodtype.SignalMoisture}, report.FoodType)
	assert.Empty(t, report.Findings)

	require.NotNil(t, report.Metrics)
	assert.InDelta(t, 3.33, report.Metrics.Carbs, 0.01)
	assert.Equal(t, nutrition.CarbsGood, report.Metrics.Level)
	assert.Equal(t, "Excellent", report.Metrics.LevelDescription)
	assert.InDelta(t, 40.25, report.Metrics.Calories.Protein, 0.01)
	assert.InDelta(t, 107.16, report.Metrics.TotalCalories, 0.1)
}

func TestAnalyzeText_Partial(t *testing.T) {
	report := New(nil).AnalyzeText([]string{"Rohprotein 35%", "Rohfett 15%"}, Hints{ProductName: "Trockenfutter Huhn"})

	assert.False(t, report.Complete())
	assert.Nil(t, report.Metrics)
	assert.Equal(t, []nutrition.Nutrient{nutrition.Fiber, nutrition.Moisture, nutrition.Ash}, report.Missing)
	assert.Equal(t, nutrition.FoodTypeDry, report.FoodType.Type)
	assert.Equal(t, foodtype.SignalKeyword, report.FoodType.Signal)
	assert.Empty(t, report.Findings)
}

func TestAnalyzeText_NothingDetected(t *testing.T) {
	report := New(nil).AnalyzeText([]string{"blurry"}, Hints{})

	assert.True(t, report.Profile.IsEmpty())
	assert.Len(t, report.Missing, nutrition.NutrientCount)
	assert.Equal(t, foodtype.SignalDefault, report.FoodType.Signal)

	data, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"missing":["protein","fat","fiber","moisture","ash"]`)
	assert.Contains(t, string(data), `"findings":[]`)
	assert.NotContains(t, string(data), `"metrics"`)
}

func TestAnalyzeProfile_UsesCategoryTags(t *testing.T) {
	a := New(validation.Default())
	p := nutrition.NewProfile(30, 12, 3, 10, 7)

	report := a.AnalyzeProfile(p, Hints{Tags: []string{"en:wet-cat-food"}})
	assert.Equal(t, nutrition.FoodTypeWet, report.FoodType.Type)

	var tooHigh int
	for _, f := range report.Findings {
		if f.Kind == validation.KindNutrientTooHigh {
			tooHigh++
		}
	}
	assert.Equal(t, 2, tooHigh, "protein and ash exceed wet bounds")
}

func TestAnalyzeProfileAs(t *testing.T) {
	a := New(nil)
	p := nutrition.NewProfile(30, 12, 3, 10, 7)

	tests := []struct {
		name   string
		known  nutrition.FoodType
		want   nutrition.FoodType
		signal foodtype.Signal
	}{
		{"provided dry", nutrition.FoodTypeDry, nutrition.FoodTypeDry, foodtype.SignalProvided},
		{"provided wet", nutrition.FoodTypeWet, nutrition.FoodTypeWet, foodtype.SignalProvided},
		{"unknown falls back to moisture", nutrition.FoodTypeUnknown, nutrition.FoodTypeDry, foodtype.SignalMoisture},
		{"empty falls back to moisture", "", nutrition.FoodTypeDry, foodtype.SignalMoisture},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := a.AnalyzeProfileAs(p, Hints{}, tt.known)
			assert.Equal(t, tt.want, report.FoodType.Type)
			assert.Equal(t, tt.signal, report.FoodType.Signal)
		})
	}
}

func TestComputeMetrics(t *testing.T) {
	m := ComputeMetrics(nutrition.NewProfile(40, 18, 3, 10, 8))
	require.NotNil(t, m)
	assert.InDelta(t, 23.33, m.Carbs, 0.01)
	assert.Equal(t, nutrition.CarbsHigh, m.Level)
	assert.Equal(t, "Too High", m.LevelDescription)

	assert.Nil(t, ComputeMetrics(nutrition.Profile{}))
}
