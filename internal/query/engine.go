package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/noot-app/petfood-nutrition-server/internal/types"
)

// Engine handles DuckDB queries against the downloaded catalog export
type Engine struct {
	db          *sql.DB
	datasetPath string
	reader      string
	log         *slog.Logger
}

// Ensure Engine implements QueryEngine interface
var _ QueryEngine = (*Engine)(nil)

const selectColumns = `CAST(code AS VARCHAR), product_name, brands,
	CAST(to_json(categories_tags) AS VARCHAR), CAST(to_json(nutriments) AS VARCHAR)`

// NewEngine creates a new query engine. Parquet files are read with
// read_parquet, everything else (.jsonl, .jsonl.gz) with read_json_auto.
func NewEngine(datasetPath string, logger *slog.Logger) (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	return &Engine{
		db:          db,
		datasetPath: datasetPath,
		reader:      readerFor(datasetPath),
		log:         logger,
	}, nil
}

func readerFor(path string) string {
	if strings.HasSuffix(strings.ToLower(path), ".parquet") {
		return "read_parquet"
	}
	return "read_json_auto"
}

// Close closes the database connection
func (e *Engine) Close() error {
	return e.db.Close()
}

// SearchProductsByBrandAndName searches for products by name and brand
func (e *Engine) SearchProductsByBrandAndName(ctx context.Context, name, brand string, limit int) ([]types.Product, error) {
	start := time.Now()
	e.log.Debug("SearchProductsByBrandAndName starting", "name", name, "brand", brand, "limit", limit)

	query := `SELECT ` + selectColumns + ` FROM ` + e.reader + `(?) WHERE 1=1`
	args := []interface{}{e.datasetPath}

	if name != "" {
		query += ` AND product_name ILIKE ?`
		args = append(args, "%"+name+"%")
	}
	if brand != "" {
		query += ` AND brands ILIKE ?`
		args = append(args, "%"+brand+"%")
	}

	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		e.log.Error("DuckDB query failed", "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var results []types.Product
	for rows.Next() {
		p, err := e.scanProduct(rows)
		if err != nil {
			e.log.Error("Row scan failed", "error", err)
			continue
		}
		results = append(results, *p)
	}

	if err := rows.Err(); err != nil {
		e.log.Error("Rows iteration failed", "error", err)
		return nil, fmt.Errorf("rows error: %w", err)
	}

	e.log.Info("SearchProductsByBrandAndName completed", "count", len(results), "duration", time.Since(start))
	return results, nil
}

// SearchByBarcode searches for a product by barcode (exact match)
func (e *Engine) SearchByBarcode(ctx context.Context, barcode string) (*types.Product, error) {
	start := time.Now()
	e.log.Debug("SearchByBarcode starting", "barcode", barcode)

	query := `SELECT ` + selectColumns + ` FROM ` + e.reader + `(?) WHERE CAST(code AS VARCHAR) = ? LIMIT 1`

	rows, err := e.db.QueryContext(ctx, query, e.datasetPath, barcode)
	if err != nil {
		e.log.Error("DuckDB barcode query failed", "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("barcode query failed: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("barcode query failed: %w", err)
		}
		e.log.Debug("No product found for barcode", "barcode", barcode, "duration", time.Since(start))
		return nil, nil
	}

	p, err := e.scanProduct(rows)
	if err != nil {
		e.log.Error("Row scan failed", "error", err)
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	e.log.Info("SearchByBarcode completed", "found", true, "duration", time.Since(start))
	return p, nil
}

func (e *Engine) scanProduct(rows *sql.Rows) (*types.Product, error) {
	var code, productName, brands, categories, nutriments sql.NullString
	if err := rows.Scan(&code, &productName, &brands, &categories, &nutriments); err != nil {
		return nil, err
	}

	p := &types.Product{
		Code:        code.String,
		ProductName: productName.String,
		Brands:      brands.String,
		Nutriments:  decodeNutriments(nutriments.String),
	}
	if categories.Valid {
		p.CategoriesTags = decodeTags(categories.String)
	}
	if p.Code != "" {
		p.Link = "https://world.openpetfoodfacts.org/product/" + p.Code
	}
	return p, nil
}

// unwrapJSON decodes raw and, when the column held JSON text, decodes the
// inner document as well.
func unwrapJSON(raw string) interface{} {
	if raw == "" {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil
	}
	if s, ok := v.(string); ok {
		var inner interface{}
		if err := json.Unmarshal([]byte(s), &inner); err != nil {
			return nil
		}
		return inner
	}
	return v
}

// decodeNutriments accepts both the object form {"proteins_100g": 11.5} and
// the list form [{"name": "proteins", "100g": 11.5}] used by parquet exports.
func decodeNutriments(raw string) map[string]interface{} {
	out := make(map[string]interface{})
	switch v := unwrapJSON(raw).(type) {
	case map[string]interface{}:
		for k, val := range v {
			if val != nil {
				out[k] = val
			}
		}
	case []interface{}:
		for _, item := range v {
			entry, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			name, _ := entry["name"].(string)
			if name == "" || entry["100g"] == nil {
				continue
			}
			out[name+"_100g"] = entry["100g"]
		}
	}
	return out
}

func decodeTags(raw string) []string {
	list, ok := unwrapJSON(raw).([]interface{})
	if !ok {
		return nil
	}
	tags := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			tags = append(tags, s)
		}
	}
	return tags
}

// HealthCheck runs a cheap query against the catalog
func (e *Engine) HealthCheck(ctx context.Context) error {
	var one int
	query := `SELECT 1 FROM ` + e.reader + `(?) LIMIT 1`
	if err := e.db.QueryRowContext(ctx, query, e.datasetPath).Scan(&one); err != nil {
		return fmt.Errorf("catalog health check failed: %w", err)
	}
	return nil
}

// TestConnection tests the database connection and dataset file access
func (e *Engine) TestConnection(ctx context.Context) error {
	start := time.Now()
	e.log.Debug("Testing DuckDB connection and catalog file", "reader", e.reader)

	query := `SELECT COUNT(*) FROM ` + e.reader + `(?)`
	var count int64

	if err := e.db.QueryRowContext(ctx, query, e.datasetPath).Scan(&count); err != nil {
		e.log.Error("Connection test failed", "error", err, "duration", time.Since(start))
		return fmt.Errorf("connection test failed: %w", err)
	}

	e.log.Info("Connection test successful", "total_records", count, "duration", time.Since(start))
	return nil
}
