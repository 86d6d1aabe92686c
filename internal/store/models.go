package store

import (
	"time"

	"github.com/noot-app/petfood-nutrition-server/internal/nutrition"
)

// ProductSource tells where a stored product came from.
type ProductSource string

const (
	// SourceLocal marks products entered or scanned by a user and not yet uploaded.
	SourceLocal ProductSource = "local"
	// SourceCatalog marks products imported from a catalog dump.
	SourceCatalog ProductSource = "catalog"
	// SourceOpenPetFoodFacts marks products known to the public database.
	SourceOpenPetFoodFacts ProductSource = "openpetfoodfacts"
)

// Product is a stored pet food product.
type Product struct {
	ID             string            `json:"id"`
	Barcode        string            `json:"barcode,omitempty"`
	ProductName    string            `json:"product_name"`
	Brand          string            `json:"brand"`
	Nutrition      nutrition.Profile `json:"nutrition"`
	CategoriesTags []string          `json:"categories_tags,omitempty"`
	Source         ProductSource     `json:"source"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// SessionStatus is the lifecycle state of a scan session.
type SessionStatus string

const (
	SessionOpen     SessionStatus = "open"
	SessionFinished SessionStatus = "finished"
	SessionExpired  SessionStatus = "expired"
)

// ScanSession is the persisted form of a scan session. Result holds the
// final record as JSON once the session is finished.
type ScanSession struct {
	ID        string             `json:"id"`
	Barcode   string             `json:"barcode,omitempty"`
	Status    SessionStatus      `json:"status"`
	FoodType  nutrition.FoodType `json:"food_type"`
	Frames    int                `json:"frames"`
	Result    []byte             `json:"-"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// StoredReading is one nutrient value recorded during a scan frame.
type StoredReading struct {
	Frame     int                `json:"frame"`
	Nutrient  nutrition.Nutrient `json:"nutrient"`
	Value     float64            `json:"value"`
	CreatedAt time.Time          `json:"created_at"`
}

// MergeStats summarizes a catalog merge.
type MergeStats struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}
