package query

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/noot-app/petfood-nutrition-server/internal/types"
)

// MockEngine is a mock implementation for testing
type MockEngine struct {
	mu       sync.RWMutex
	products []types.Product
	err      error
	log      *slog.Logger
}

// NewMockEngine creates a new mock engine seeded with a wet and a dry product
func NewMockEngine(logger *slog.Logger) *MockEngine {
	return &MockEngine{
		log: logger,
		products: []types.Product{
			{
				Code:           "4017721837194",
				ProductName:    "Carny Adult Rind & Herz",
				Brands:         "Animonda",
				CategoriesTags: []string{"en:pet-food", "en:cat-food", "en:wet-cat-food"},
				Nutriments: map[string]interface{}{
					"proteins_100g": 11.5,
					"fat_100g":      6.0,
					"fiber_100g":    0.5,
					"moisture_100g": 78.0,
					"ash_100g":      2.0,
				},
				Link: "https://world.openpetfoodfacts.org/product/4017721837194",
			},
			{
				Code:           "3182550702317",
				ProductName:    "Sterilised Chicken Kibble",
				Brands:         "Royal Canin",
				CategoriesTags: []string{"en:pet-food", "en:cat-food", "en:dry-cat-food"},
				Nutriments: map[string]interface{}{
					"proteins_100g": "37,0",
					"fat_100g":      12,
					"fiber_100g":    5.3,
					"moisture_100g": 5.5,
				},
				Link: "https://world.openpetfoodfacts.org/product/3182550702317",
			},
		},
	}
}

// SearchProductsByBrandAndName searches for products by name and brand
func (m *MockEngine) SearchProductsByBrandAndName(ctx context.Context, name, brand string, limit int) ([]types.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	var results []types.Product
	for _, product := range m.products {
		if name != "" && !contains(product.ProductName, name) {
			continue
		}
		if brand != "" && !contains(product.Brands, brand) {
			continue
		}
		results = append(results, product)
		if len(results) >= limit {
			break
		}
	}

	return results, nil
}

// SearchByBarcode searches for a product by barcode
func (m *MockEngine) SearchByBarcode(ctx context.Context, barcode string) (*types.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	for _, product := range m.products {
		if product.Code == barcode {
			p := product
			return &p, nil
		}
	}

	return nil, nil
}

// HealthCheck returns the configured error, if any
func (m *MockEngine) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// TestConnection tests the connection (always succeeds for mock)
func (m *MockEngine) TestConnection(ctx context.Context) error {
	return m.HealthCheck(ctx)
}

// Close closes the mock engine (no-op)
func (m *MockEngine) Close() error {
	return nil
}

// SetError sets an error to be returned by the mock
func (m *MockEngine) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetProducts sets the products to be returned by the mock
func (m *MockEngine) SetProducts(products []types.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = products
}

// contains checks if a string contains a substring (case-insensitive)
func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
