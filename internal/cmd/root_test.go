package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noot-app/petfood-nutrition-server/internal/analysis"
	"github.com/noot-app/petfood-nutrition-server/internal/nutrition"
	"github.com/noot-app/petfood-nutrition-server/internal/store"
)

// execute runs a fresh root command to avoid flag state leaking between tests
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("BOUNDS_PATH", "")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestParseCmd(t *testing.T) {
	label := "Analytical constituents:\nCrude protein 11.5%, crude fat 6%, crude fibre 0.5%, crude ash 2%, moisture 78%\n"

	dir := t.TempDir()
	file := filepath.Join(dir, "label.txt")
	require.NoError(t, os.WriteFile(file, []byte(label), 0o644))

	tests := []struct {
		name     string
		stdin    string
		args     []string
		foodType nutrition.FoodType
	}{
		{"stdin", label, []string{"parse"}, nutrition.FoodTypeWet},
		{"file", "", []string{"parse", file}, nutrition.FoodTypeWet},
		{"explicit food type", label, []string{"parse", "--food-type", "dry"}, nutrition.FoodTypeDry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.stdin, tt.args...)
			require.NoError(t, err)

			var report analysis.Report
			require.NoError(t, json.Unmarshal([]byte(out), &report))
			assert.True(t, report.Complete())
			assert.Equal(t, tt.foodType, report.FoodType.Type)
			require.NotNil(t, report.Metrics)
			assert.InDelta(t, 9.09, report.Metrics.Carbs, 1e-9)
		})
	}

	_, err := execute(t, "", "parse", filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestCarbsCmd(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantErr   string
		wantCarbs float64
		wantLevel nutrition.CarbsLevel
	}{
		{
			name:      "dry food",
			args:      []string{"carbs", "--protein", "32", "--fat", "15", "--fiber", "3", "--moisture", "10", "--ash", "7"},
			wantCarbs: 36.67,
			wantLevel: nutrition.CarbsHigh,
		},
		{
			name:      "zero fiber is a value",
			args:      []string{"carbs", "--protein", "12", "--fat", "7", "--fiber", "0", "--moisture", "78", "--ash", "2"},
			wantCarbs: 4.55,
			wantLevel: nutrition.CarbsGood,
		},
		{
			name:    "missing ash",
			args:    []string{"carbs", "--protein", "32", "--fat", "15", "--fiber", "3", "--moisture", "10"},
			wantErr: "--ash",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "", tt.args...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			var report analysis.Report
			require.NoError(t, json.Unmarshal([]byte(out), &report))
			require.NotNil(t, report.Metrics)
			assert.InDelta(t, tt.wantCarbs, report.Metrics.Carbs, 1e-9)
			assert.Equal(t, tt.wantLevel, report.Metrics.Level)
		})
	}
}

func TestImportCmd(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "import.db")

	tests := []struct {
		name    string
		content string
		want    store.MergeStats
	}{
		{
			name: "json array",
			content: `[
				{"code": "111", "product_name": "Tuna Pate", "brands": "Sea, Co", "nutriments": {"proteins_100g": 12, "fat_100g": 4}},
				{"product_name": "No barcode"}
			]`,
			want: store.MergeStats{Inserted: 1, Skipped: 1},
		},
		{
			name:    "jsonl updates existing",
			content: "{\"code\": \"111\", \"product_name\": \"Tuna Pate\", \"brands\": \"Sea\", \"nutriments\": {\"proteins_100g\": 12.5}}\n{\"code\": \"222\", \"product_name\": \"Duck Kibble\", \"brands\": \"Farm\"}\n",
			want:    store.MergeStats{Inserted: 1, Updated: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".json")
			require.NoError(t, os.WriteFile(file, []byte(tt.content), 0o644))

			out, err := execute(t, "", "import", "--db", db, file)
			require.NoError(t, err)

			var stats store.MergeStats
			require.NoError(t, json.Unmarshal([]byte(out), &stats))
			assert.Equal(t, tt.want, stats)
		})
	}
}

func TestReadCatalogProducts(t *testing.T) {
	products, err := readCatalogProducts(strings.NewReader("  \n"))
	require.NoError(t, err)
	assert.Empty(t, products)

	_, err = readCatalogProducts(strings.NewReader("{broken"))
	assert.Error(t, err)
}

func TestRootFlagsAreExclusive(t *testing.T) {
	_, err := execute(t, "", "--stdio", "--api")
	assert.Error(t, err)
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))
}
