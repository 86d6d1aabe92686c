package nutrition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateCarbs(t *testing.T) {
	tests := []struct {
		name     string
		protein  float64
		fat      float64
		fiber    float64
		moisture float64
		ash      float64
		expected float64
	}{
		{"wet food", 11.5, 6.5, 0.5, 79, 1.8, 3.33},
		{"dry food", 40, 18, 3, 10, 8, 23.33},
		{"moisture at 100 percent", 10, 5, 1, 100, 2, 0},
		{"moisture above 100 percent", 10, 5, 1, 120, 2, 0},
		{"total above 100 percent", 50, 30, 10, 10, 10, 0},
		{"exactly 100 percent", 50, 20, 10, 10, 10, 0},
		{"all zero", 0, 0, 0, 0, 0, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateCarbs(tt.protein, tt.fat, tt.fiber, tt.moisture, tt.ash)
			assert.InDelta(t, tt.expected, got, 0.01)
		})
	}
}

func TestCalculateCarbs_RangeProperty(t *testing.T) {
	for p := 0.0; p <= 60; p += 7.5 {
		for m := 0.0; m < 100; m += 9.5 {
			fat, fiber, ash := 5.0, 1.0, 2.0
			if p+fat+fiber+m+ash > 100 {
				continue
			}
			got := CalculateCarbs(p, fat, fiber, m, ash)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 100.0)

			want := 100 * (100 - p - fat - fiber - m - ash) / (100 - m)
			assert.InDelta(t, want, got, 0.006, "protein=%v moisture=%v", p, m)
		}
	}
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 0.13, round2(0.125))
	assert.Equal(t, 2.68, round2(2.675))
	assert.Equal(t, 3.33, round2(3.3333333))
	assert.Equal(t, 23.33, round2(23.333333))
}

func TestClassifyCarbs(t *testing.T) {
	tests := []struct {
		carbs    float64
		expected CarbsLevel
	}{
		{0, CarbsGood},
		{3.33, CarbsGood},
		{5.0, CarbsGood},
		{5.01, CarbsModerate},
		{7.5, CarbsModerate},
		{10.0, CarbsModerate},
		{15.0, CarbsHigh},
		{23.33, CarbsHigh},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ClassifyCarbs(tt.carbs), "carbs=%v", tt.carbs)
	}
}

func TestCarbsLevel_Description(t *testing.T) {
	assert.Equal(t, "Excellent", CarbsGood.Description())
	assert.Equal(t, "Acceptable", CarbsModerate.Description())
	assert.Equal(t, "Too High", CarbsHigh.Description())
	assert.Equal(t, "Unknown", CarbsLevel("").Description())
}

func TestCalculateCalories(t *testing.T) {
	cal := CalculateCalories(11.5, 6.5, 3.33)

	assert.InDelta(t, 40.25, cal.Protein, 0.1)
	assert.InDelta(t, 55.25, cal.Fat, 0.1)
	assert.InDelta(t, 11.66, cal.Carbs, 0.1)
	assert.InDelta(t, 107.16, cal.Total(), 0.1)
}
