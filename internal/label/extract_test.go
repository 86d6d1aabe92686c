package label

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noot-app/petfood-nutrition-server/internal/nutrition"
)

func value(t *testing.T, p nutrition.Profile, n nutrition.Nutrient) float64 {
	t.Helper()
	v, ok := p.Get(n)
	require.True(t, ok, "%s not extracted", n)
	return v
}

func TestExtract_SingleNutrient(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		nutrient nutrition.Nutrient
		expected float64
	}{
		{"crude protein with qualifier", "Crude Protein (min) 11.5%", nutrition.Protein, 11.5},
		{"comma decimal", "Protein 11,5%", nutrition.Protein, 11.5},
		{"uppercase with colon", "PROTEIN: 12%", nutrition.Protein, 12},
		{"dot leaders", "Protein (min) ........... 12.5%", nutrition.Protein, 12.5},
		{"german rohprotein", "Rohprotein 10,5 %", nutrition.Protein, 10.5},
		{"german eiweiss", "Eiweiß 9%", nutrition.Protein, 9},
		{"dutch eiwit", "Ruw eiwit 11%", nutrition.Protein, 11},
		{"italian proteine", "Proteine grezze 10,2%", nutrition.Protein, 10.2},
		{"french proteines", "Protéines brutes 11%", nutrition.Protein, 11},
		{"spanish proteina", "Proteína bruta 8,5%", nutrition.Protein, 8.5},
		{"french proteines without qualifier", "Protéines 11%", nutrition.Protein, 11},
		{"spanish proteinas without qualifier", "Proteínas 30%", nutrition.Protein, 30},
		{"spanish proteina without qualifier", "Proteína 8,5%", nutrition.Protein, 8.5},
		{"italian proteine without qualifier", "Proteina 9%", nutrition.Protein, 9},
		{"protein min fallback", "Protein, not less than min. 30%", nutrition.Protein, 30},
		{"abbreviated prot", "Prot. 9.5%", nutrition.Protein, 9.5},

		{"crude fat", "Crude Fat (min) 6.5%", nutrition.Fat, 6.5},
		{"dutch vet", "Ruw vet 5%", nutrition.Fat, 5},
		{"german rohfett", "Rohfett 6,2%", nutrition.Fat, 6.2},
		{"german fettgehalt", "Fettgehalt 4%", nutrition.Fat, 4},
		{"italian materia grassa", "Tenore in materia grassa 5,5%", nutrition.Fat, 5.5},
		{"italian grassi", "Oli e grassi grezzi 6%", nutrition.Fat, 6},
		{"french matieres grasses", "Matières grasses brutes 7%", nutrition.Fat, 7},
		{"spanish grasa", "Grasa bruta 5,5%", nutrition.Fat, 5.5},
		{"fat content", "Fat content 6%", nutrition.Fat, 6},

		{"crude fiber max", "Crude Fiber (max) 0.5%", nutrition.Fiber, 0.5},
		{"british fibre", "Fibre 1.2%", nutrition.Fiber, 1.2},
		{"german rohfaser", "Rohfaser 0,3%", nutrition.Fiber, 0.3},
		{"dutch vezels", "Ruwe vezels 0,8%", nutrition.Fiber, 0.8},
		{"dutch celstof", "Ruwe celstof 0,4%", nutrition.Fiber, 0.4},
		{"french cellulose", "Cellulose brute 0,5%", nutrition.Fiber, 0.5},
		{"spanish fibra", "Fibra bruta 1%", nutrition.Fiber, 1},
		{"italian fibra", "Fibra grezza 0,7%", nutrition.Fiber, 0.7},
		{"italian fibre", "Fibre grezze 0,9%", nutrition.Fiber, 0.9},

		{"moisture max", "Moisture (max) 78%", nutrition.Moisture, 78},
		{"german feuchtigkeit", "Feuchtigkeit 80%", nutrition.Moisture, 80},
		{"german feuchte", "Feuchte 79,5%", nutrition.Moisture, 79.5},
		{"dutch vocht", "Vocht 82%", nutrition.Moisture, 82},
		{"italian umidita", "Umidità 80%", nutrition.Moisture, 80},
		{"french humidite", "Humidité 78%", nutrition.Moisture, 78},
		{"spanish humedad", "Humedad 81%", nutrition.Moisture, 81},
		{"water", "Water 75%", nutrition.Moisture, 75},

		{"crude ash", "Crude Ash (max) 2.1%", nutrition.Ash, 2.1},
		{"dutch ruwe as", "Ruwe as 1,8%", nutrition.Ash, 1.8},
		{"german rohasche", "Rohasche 2,2%", nutrition.Ash, 2.2},
		{"italian ceneri", "Ceneri grezze 2%", nutrition.Ash, 2},
		{"french cendres", "Cendres brutes 2,5%", nutrition.Ash, 2.5},
		{"spanish cenizas", "Cenizas brutas 2,4%", nutrition.Ash, 2.4},
		{"minerals", "Minerals 3%", nutrition.Ash, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := Extract([]string{tt.text})
			assert.InDelta(t, tt.expected, value(t, profile, tt.nutrient), 0.0001)
		})
	}
}

func TestExtract_FullLabel(t *testing.T) {
	lines := []string{
		"GUARANTEED ANALYSIS",
		"Crude Protein (min) 11.5%",
		"Crude Fat (min) 6.5%",
		"Crude Fiber (max) 0.5%",
		"Moisture (max) 79%",
		"Ash (max) 1.8%",
	}

	profile := Extract(lines)
	require.True(t, profile.IsComplete())
	assert.Equal(t, 11.5, value(t, profile, nutrition.Protein))
	assert.Equal(t, 6.5, value(t, profile, nutrition.Fat))
	assert.Equal(t, 0.5, value(t, profile, nutrition.Fiber))
	assert.Equal(t, 79.0, value(t, profile, nutrition.Moisture))
	assert.Equal(t, 1.8, value(t, profile, nutrition.Ash))
}

func TestExtract_GermanLabel(t *testing.T) {
	lines := []string{
		"Analytische Bestandteile:",
		"Rohprotein 10,5 %, Rohfett 6,0 %, Rohasche 2,2 %,",
		"Rohfaser 0,3 %, Feuchtigkeit 80,0 %",
	}

	profile := Extract(lines)
	require.True(t, profile.IsComplete())
	assert.Equal(t, 10.5, value(t, profile, nutrition.Protein))
	assert.Equal(t, 6.0, value(t, profile, nutrition.Fat))
	assert.Equal(t, 0.3, value(t, profile, nutrition.Fiber))
	assert.Equal(t, 80.0, value(t, profile, nutrition.Moisture))
	assert.Equal(t, 2.2, value(t, profile, nutrition.Ash))
}

func TestExtract_SameLineNutrients(t *testing.T) {
	profile := Extract([]string{"Moisture 79% Ash 2.1%"})

	assert.Equal(t, 79.0, value(t, profile, nutrition.Moisture))
	assert.Equal(t, 2.1, value(t, profile, nutrition.Ash))
	assert.Equal(t, []nutrition.Nutrient{nutrition.Protein, nutrition.Fat, nutrition.Fiber}, profile.Missing())
}

func TestExtract_NothingFound(t *testing.T) {
	profile := Extract([]string{"Ingredients: chicken, salmon, taurine", "Feed 85g per day"})
	assert.True(t, profile.IsEmpty())
	assert.Empty(t, ExtractReadings([]string{"no numbers here"}))
	assert.True(t, Extract(nil).IsEmpty())
}

func TestExtract_FirstPatternWins(t *testing.T) {
	// the Dutch pattern is tried before the English one
	profile := Extract([]string{"Crude protein 12%", "Eiwit 11%"})
	assert.Equal(t, 11.0, value(t, profile, nutrition.Protein))

	// within one pattern the leftmost occurrence wins
	profile = Extract([]string{"Protein 12%", "Protein 13%"})
	assert.Equal(t, 12.0, value(t, profile, nutrition.Protein))
}

func TestExtract_Deterministic(t *testing.T) {
	lines := []string{"Rohprotein 10,5 %", "Crude Fat 4%", "Humidité 78%"}
	assert.Equal(t, Extract(lines), Extract(lines))
}

func TestExtractReadings(t *testing.T) {
	readings := ExtractReadings([]string{"Protein 9%", "Ash 2%"})
	require.Len(t, readings, 2)
	assert.Equal(t, nutrition.Reading{Nutrient: nutrition.Protein, Value: 9, Source: nutrition.SourceOCR}, readings[0])
	assert.Equal(t, nutrition.Reading{Nutrient: nutrition.Ash, Value: 2, Source: nutrition.SourceOCR}, readings[1])
}

func TestScan_ReportsLocale(t *testing.T) {
	matches := Scan([]string{"Rohprotein 10,5 %", "Moisture 80%"})
	require.Len(t, matches, 2)
	assert.Equal(t, "de", matches[0].Locale)
	assert.Equal(t, "rohprotein 10,5 %", matches[0].Text)
	assert.Equal(t, "en", matches[1].Locale)
}

func TestScan_EnglishFibreLocale(t *testing.T) {
	matches := Scan([]string{"Crude fibre 0.5%", "Fibra grezza 0,7%"})
	require.Len(t, matches, 1)
	assert.Equal(t, nutrition.Fiber, matches[0].Nutrient)
	assert.Equal(t, "en", matches[0].Locale)
	assert.Equal(t, 0.5, matches[0].Value)

	matches = Scan([]string{"Fibra grezza 0,7%"})
	require.Len(t, matches, 1)
	assert.Equal(t, "it", matches[0].Locale)
}

func TestScan_BareProteinKeywords(t *testing.T) {
	tests := []struct {
		line   string
		locale string
		value  float64
	}{
		{"Protéines 11%", "fr", 11},
		{"Proteínas 30%", "es", 30},
		{"Proteína 8,5%", "es", 8.5},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			matches := Scan([]string{tt.line})
			require.Len(t, matches, 1)
			assert.Equal(t, nutrition.Protein, matches[0].Nutrient)
			assert.Equal(t, tt.locale, matches[0].Locale)
			assert.InDelta(t, tt.value, matches[0].Value, 0.0001)
		})
	}
}

func TestExtract_FrenchLabel(t *testing.T) {
	lines := []string{
		"Constituants analytiques :",
		"Protéines 11 %, Matières grasses 5 %, Cendres 2 %,",
		"Cellulose brute 0,5 %, Humidité 80 %",
	}

	profile := Extract(lines)
	require.True(t, profile.IsComplete())
	assert.Equal(t, 11.0, value(t, profile, nutrition.Protein))
	assert.Equal(t, 5.0, value(t, profile, nutrition.Fat))
	assert.Equal(t, 0.5, value(t, profile, nutrition.Fiber))
	assert.Equal(t, 80.0, value(t, profile, nutrition.Moisture))
	assert.Equal(t, 2.0, value(t, profile, nutrition.Ash))
}

func TestPatterns_PartitionedByNutrient(t *testing.T) {
	samples := map[nutrition.Nutrient][]string{
		nutrition.Protein: {
			"crude protein 10%", "eiwit 10%", "ruw eiwit 10%", "rohprotein 10%", "eiweiss 10%",
			"proteine grezze 10%", "protéines brutes 10%", "proteína bruta 10%", "prot. 10%",
			"protéines 10%", "proteínas 10%",
		},
		nutrition.Fat: {
			"crude fat 5%", "vetgehalte 5%", "ruw vet 5%", "rohfett 5%", "fettgehalt 5%",
			"materia grassa 5%", "grassi grezzi 5%", "matières grasses 5%", "grasa bruta 5%",
			"aceites y grasas brutos 5%", "fat content 5%",
		},
		nutrition.Fiber: {
			"crude fiber 1%", "fibre 1%", "ruwe vezels 1%", "celstof 1%", "rohfaser 1%",
			"fibra grezza 1%", "cellulose brute 1%", "fibres brutes 1%",
		},
		nutrition.Moisture: {
			"moisture 80%", "water 80%", "vocht 80%", "umidità 80%", "feuchtigkeit 80%",
			"wasser 80%", "humidité 80%", "humedad 80%",
		},
		nutrition.Ash: {
			"crude ash 2%", "ruwe as 2%", "ceneri grezze 2%", "rohasche 2%", "asche 2%",
			"mineralstoffe 2%", "cendres brutes 2%", "matières minérales 2%", "cenizas brutas 2%",
			"materia inorgánica 2%", "minerals 2%",
		},
	}

	for owner, lines := range samples {
		for _, line := range lines {
			for _, other := range nutrition.AllNutrients() {
				_, ok := find(line, other)
				if other == owner {
					assert.True(t, ok, "%q should match %s", line, owner)
				} else {
					assert.False(t, ok, "%q must not match %s", line, other)
				}
			}
		}
	}
}

func TestPatterns_InvalidNutrient(t *testing.T) {
	assert.Nil(t, Patterns(nutrition.Nutrient(42)))
}
