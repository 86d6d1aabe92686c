package query

import (
	"context"
	"log/slog"
	"os"

	"github.com/noot-app/petfood-nutrition-server/internal/types"
)

// QueryEngine defines the interface for querying the pet food catalog
type QueryEngine interface {
	SearchProductsByBrandAndName(ctx context.Context, name, brand string, limit int) ([]types.Product, error)
	// SearchByBarcode returns nil without error when no product matches.
	SearchByBarcode(ctx context.Context, barcode string) (*types.Product, error)
	HealthCheck(ctx context.Context) error
	TestConnection(ctx context.Context) error
	Close() error
}

// NewQueryEngine creates a new query engine
// Uses mock engine if QUERY_ENGINE_MOCK environment variable is set
func NewQueryEngine(datasetPath string, logger *slog.Logger) (QueryEngine, error) {
	if os.Getenv("QUERY_ENGINE_MOCK") == "true" {
		return NewMockEngine(logger), nil
	}
	return NewEngine(datasetPath, logger)
}
