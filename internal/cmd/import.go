package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noot-app/petfood-nutrition-server/internal/config"
	"github.com/noot-app/petfood-nutrition-server/internal/store"
	"github.com/noot-app/petfood-nutrition-server/internal/types"
)

func newImportCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Merge catalog products into the local product store",
		Long: `Merge catalog products into the local SQLite store by barcode. The file
holds either a JSON array of products or one product per line (JSONL), in the
Open Pet Food Facts export format. Locally entered products are never
overwritten.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if dbPath == "" {
				dbPath = cfg.SQLitePath
			}
			logger := config.NewTextLogger(cmd.ErrOrStderr())

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open import file: %w", err)
			}
			defer f.Close()

			products, err := readCatalogProducts(f)
			if err != nil {
				return err
			}

			st, err := store.Open(dbPath, logger)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer st.Close()

			stats, err := st.MergeCatalog(cmd.Context(), toStoreProducts(products))
			if err != nil {
				return fmt.Errorf("failed to merge catalog: %w", err)
			}

			logger.Info("📦 Catalog import finished",
				"file", args[0],
				"inserted", stats.Inserted,
				"updated", stats.Updated,
				"skipped", stats.Skipped)
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (default: SQLITE_PATH)")
	return cmd
}

// readCatalogProducts accepts a JSON array or JSONL.
func readCatalogProducts(r io.Reader) ([]types.Product, error) {
	br := bufio.NewReader(r)
	for {
		b, err := br.Peek(1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to read import file: %w", err)
		}
		if strings.TrimSpace(string(b)) != "" {
			break
		}
		br.ReadByte()
	}

	dec := json.NewDecoder(br)
	if b, _ := br.Peek(1); b[0] == '[' {
		var products []types.Product
		if err := dec.Decode(&products); err != nil {
			return nil, fmt.Errorf("failed to decode products: %w", err)
		}
		return products, nil
	}

	var products []types.Product
	for {
		var p types.Product
		err := dec.Decode(&p)
		if errors.Is(err, io.EOF) {
			return products, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode product %d: %w", len(products)+1, err)
		}
		products = append(products, p)
	}
}

func toStoreProducts(products []types.Product) []store.Product {
	out := make([]store.Product, 0, len(products))
	for i := range products {
		p := &products[i]
		out = append(out, store.Product{
			Barcode:        p.Code,
			ProductName:    p.ProductName,
			Brand:          p.Brand(),
			Nutrition:      p.ToBaseline(),
			CategoriesTags: p.CategoriesTags,
			Source:         store.SourceCatalog,
		})
	}
	return out
}
