package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noot-app/petfood-nutrition-server/internal/analysis"
	"github.com/noot-app/petfood-nutrition-server/internal/config"
	"github.com/noot-app/petfood-nutrition-server/internal/label"
	"github.com/noot-app/petfood-nutrition-server/internal/nutrition"
	"github.com/noot-app/petfood-nutrition-server/internal/validation"
	"github.com/noot-app/petfood-nutrition-server/internal/version"
)

// newAnalyzer builds an analyzer with the configured bounds file, if any.
func newAnalyzer() (*analysis.Analyzer, error) {
	cfg := config.Load()
	if cfg.BoundsPath == "" {
		return analysis.New(nil), nil
	}
	bounds, err := validation.LoadBounds(cfg.BoundsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load bounds: %w", err)
	}
	return analysis.New(validation.New(bounds)), nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newParseCmd() *cobra.Command {
	var (
		productName string
		brand       string
		foodType    string
	)

	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse label OCR text and print the nutrition report",
		Long:  "Parse label OCR text from a file, or from stdin when no file is given, and print the extracted nutrients, validation findings and metrics as JSON.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open label file: %w", err)
				}
				defer f.Close()
				in = f
			}

			data, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("failed to read label text: %w", err)
			}
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")

			analyzer, err := newAnalyzer()
			if err != nil {
				return err
			}

			matches := label.Scan(lines)
			profile := label.Extract(lines)
			hints := analysis.Hints{ProductName: productName, Brand: brand}
			report := analyzer.AnalyzeProfileAs(profile, hints, nutrition.FoodType(foodType))
			report.Matches = matches
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&productName, "name", "", "Product name, used to infer wet or dry food")
	cmd.Flags().StringVar(&brand, "brand", "", "Brand, used to infer wet or dry food")
	cmd.Flags().StringVar(&foodType, "food-type", "", "Food type (wet or dry) when known")
	return cmd
}

func newCarbsCmd() *cobra.Command {
	var (
		values   [nutrition.NutrientCount]float64
		foodType string
	)

	cmd := &cobra.Command{
		Use:   "carbs",
		Short: "Compute carbohydrates and calories from the five label nutrients",
		RunE: func(cmd *cobra.Command, args []string) error {
			var profile nutrition.Profile
			for _, n := range nutrition.AllNutrients() {
				if !cmd.Flags().Changed(n.String()) {
					return fmt.Errorf("missing required flag --%s", n)
				}
				profile.Set(n, values[n])
			}

			analyzer, err := newAnalyzer()
			if err != nil {
				return err
			}
			report := analyzer.AnalyzeProfileAs(profile, analysis.Hints{}, nutrition.FoodType(foodType))
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	for _, n := range nutrition.AllNutrients() {
		cmd.Flags().Float64Var(&values[n], n.String(), 0, fmt.Sprintf("%s percentage", n))
	}
	cmd.Flags().StringVar(&foodType, "food-type", "", "Food type (wet or dry) when known")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version.String())
		},
	}
}
