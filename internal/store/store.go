// Package store persists products and scan sessions in SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/noot-app/petfood-nutrition-server/internal/nutrition"
)

//go:embed schema.sql
var schemaFS embed.FS

// ErrNotFound is returned when a product or session does not exist.
var ErrNotFound = errors.New("not found")

const lastSyncKey = "last_sync"

// SQLiteStore implements product and session persistence on SQLite.
type SQLiteStore struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases intact and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Debug("SQLite store ready", "path", path)
	return &SQLiteStore{db: db, log: logger, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database answers.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const productColumns = `id, barcode, product_name, brand, protein, fat, fiber, moisture, ash,
	categories_tags, source, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*Product, error) {
	var (
		p                    Product
		barcode              sql.NullString
		values               [nutrition.NutrientCount]sql.NullFloat64
		tags                 string
		createdAt, updatedAt int64
	)

	err := row.Scan(&p.ID, &barcode, &p.ProductName, &p.Brand,
		&values[nutrition.Protein], &values[nutrition.Fat], &values[nutrition.Fiber],
		&values[nutrition.Moisture], &values[nutrition.Ash],
		&tags, &p.Source, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	p.Barcode = barcode.String
	for _, n := range nutrition.AllNutrients() {
		if values[n].Valid {
			p.Nutrition.Set(n, values[n].Float64)
		}
	}
	if err := json.Unmarshal([]byte(tags), &p.CategoriesTags); err != nil {
		return nil, fmt.Errorf("failed to decode categories for %s: %w", p.ID, err)
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &p, nil
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SaveProduct inserts or updates p. A product without ID takes over the ID of
// an existing row with the same barcode, or gets a new one.
func (s *SQLiteStore) SaveProduct(ctx context.Context, p *Product) error {
	return s.saveProduct(ctx, s.db, p)
}

func (s *SQLiteStore) saveProduct(ctx context.Context, db execer, p *Product) error {
	now := s.now().UTC().Truncate(time.Second)

	if p.ID == "" && p.Barcode != "" {
		var id string
		var createdAt int64
		err := db.QueryRowContext(ctx, `SELECT id, created_at FROM products WHERE barcode = ?`, p.Barcode).Scan(&id, &createdAt)
		switch {
		case err == nil:
			p.ID = id
			p.CreatedAt = time.Unix(createdAt, 0).UTC()
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to look up barcode %s: %w", p.Barcode, err)
		}
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Source == "" {
		p.Source = SourceLocal
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	tags := p.CategoriesTags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode categories: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			barcode = excluded.barcode,
			product_name = excluded.product_name,
			brand = excluded.brand,
			protein = excluded.protein,
			fat = excluded.fat,
			fiber = excluded.fiber,
			moisture = excluded.moisture,
			ash = excluded.ash,
			categories_tags = excluded.categories_tags,
			source = excluded.source,
			updated_at = excluded.updated_at`,
		p.ID, nullString(p.Barcode), p.ProductName, p.Brand,
		nullable(p.Nutrition.Protein), nullable(p.Nutrition.Fat), nullable(p.Nutrition.Fiber),
		nullable(p.Nutrition.Moisture), nullable(p.Nutrition.Ash),
		string(tagsJSON), string(p.Source), p.CreatedAt.Unix(), p.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save product %s: %w", p.ID, err)
	}
	return nil
}

// GetProduct returns the product with the given ID.
func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	return s.queryProduct(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
}

// FindByBarcode returns the product with the given barcode.
func (s *SQLiteStore) FindByBarcode(ctx context.Context, barcode string) (*Product, error) {
	return s.queryProduct(ctx, `SELECT `+productColumns+` FROM products WHERE barcode = ?`, barcode)
}

func (s *SQLiteStore) queryProduct(ctx context.Context, query string, arg string) (*Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) queryProducts(ctx context.Context, query string, args ...any) ([]*Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}
	return products, nil
}

// Search finds products whose name or brand contains query, case-insensitively.
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]*Product, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products
		WHERE lower(product_name) LIKE ? OR lower(brand) LIKE ?
		ORDER BY product_name LIMIT ?`, pattern, pattern, limit)
}

// PendingUploads lists user products that have not been shared yet.
func (s *SQLiteStore) PendingUploads(ctx context.Context) ([]*Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products
		WHERE source = ? ORDER BY updated_at`, string(SourceLocal))
}

// MarkSynced records that a local product was uploaded.
func (s *SQLiteStore) MarkSynced(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE products SET source = ?, updated_at = ? WHERE id = ?`,
		string(SourceOpenPetFoodFacts), s.now().UTC().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark product %s synced: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProduct removes a product.
func (s *SQLiteStore) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MergeCatalog upserts catalog products by barcode in one transaction.
// Products entered locally are never overwritten.
func (s *SQLiteStore) MergeCatalog(ctx context.Context, products []Product) (MergeStats, error) {
	var stats MergeStats

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to begin merge: %w", err)
	}
	defer tx.Rollback()

	for i := range products {
		p := products[i]
		if p.Barcode == "" {
			stats.Skipped++
			continue
		}

		var existingSource string
		err := tx.QueryRowContext(ctx, `SELECT source FROM products WHERE barcode = ?`, p.Barcode).Scan(&existingSource)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			stats.Inserted++
		case err != nil:
			return stats, fmt.Errorf("failed to look up barcode %s: %w", p.Barcode, err)
		case ProductSource(existingSource) == SourceLocal:
			stats.Skipped++
			continue
		default:
			stats.Updated++
		}

		p.ID = ""
		p.Source = SourceCatalog
		if err := s.saveProduct(ctx, tx, &p); err != nil {
			return stats, err
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO sync_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		lastSyncKey, s.now().UTC().Format(time.RFC3339)); err != nil {
		return stats, fmt.Errorf("failed to record sync time: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("failed to commit merge: %w", err)
	}

	s.log.Info("Catalog merged", "inserted", stats.Inserted, "updated", stats.Updated, "skipped", stats.Skipped)
	return stats, nil
}

// LastSyncTime returns when the catalog was last merged. ok is false when it
// never was.
func (s *SQLiteStore) LastSyncTime(ctx context.Context) (time.Time, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = ?`, lastSyncKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read sync time: %w", err)
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse sync time %q: %w", value, err)
	}
	return t, true, nil
}
