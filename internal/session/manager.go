// Package session runs live label scans. A session collects OCR frames,
// resolves each nutrient by consensus and, when finished, reconciles the
// result with the catalog baseline and stores the product locally.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noot-app/petfood-nutrition-server/internal/analysis"
	"github.com/noot-app/petfood-nutrition-server/internal/consensus"
	"github.com/noot-app/petfood-nutrition-server/internal/foodtype"
	"github.com/noot-app/petfood-nutrition-server/internal/label"
	"github.com/noot-app/petfood-nutrition-server/internal/nutrition"
	"github.com/noot-app/petfood-nutrition-server/internal/reconcile"
	"github.com/noot-app/petfood-nutrition-server/internal/store"
	"github.com/noot-app/petfood-nutrition-server/internal/types"
	"github.com/noot-app/petfood-nutrition-server/internal/validation"
)

var (
	ErrSessionNotFound = errors.New("scan session not found")
	ErrSessionClosed   = errors.New("scan session already finished")
)

// DefaultTTL is used when the manager is created with a zero TTL.
const DefaultTTL = 15 * time.Minute

// BaselineSource tells where the baseline of a session came from.
type BaselineSource string

const (
	BaselineNone    BaselineSource = "none"
	BaselineStore   BaselineSource = "store"
	BaselineCatalog BaselineSource = "catalog"
)

// Store is the persistence a Manager needs. *store.SQLiteStore satisfies it.
type Store interface {
	FindByBarcode(ctx context.Context, barcode string) (*store.Product, error)
	SaveProduct(ctx context.Context, p *store.Product) error
	SaveSession(ctx context.Context, sess *store.ScanSession) error
	AddReadings(ctx context.Context, sessionID string, frame int, readings []nutrition.Reading) error
	ExpireSessions(ctx context.Context, before time.Time) (int64, error)
}

// Catalog looks products up by barcode. query.QueryEngine satisfies it.
type Catalog interface {
	SearchByBarcode(ctx context.Context, barcode string) (*types.Product, error)
}

// Info describes a session right after Start.
type Info struct {
	ID             string            `json:"session_id"`
	Barcode        string            `json:"barcode,omitempty"`
	ProductName    string            `json:"product_name,omitempty"`
	Brand          string            `json:"brand,omitempty"`
	Baseline       nutrition.Profile `json:"baseline"`
	BaselineSource BaselineSource    `json:"baseline_source"`
	FoodType       foodtype.Result   `json:"food_type"`
	ExpiresAt      time.Time         `json:"expires_at"`
}

// Progress is returned after every frame.
type Progress struct {
	ID       string               `json:"session_id"`
	Frame    int                  `json:"frame"`
	Detected []label.Match        `json:"detected"`
	Profile  nutrition.Profile    `json:"profile"`
	Missing  []nutrition.Nutrient `json:"missing"`
	FoodType foodtype.Result      `json:"food_type"`
	Findings []validation.Finding `json:"findings"`
	Complete bool                 `json:"complete"`
}

// Outcome is the final result of a session.
type Outcome struct {
	ID      string           `json:"session_id"`
	Frames  int              `json:"frames"`
	Record  reconcile.Record `json:"record"`
	Report  analysis.Report  `json:"report"`
	Product *store.Product   `json:"product,omitempty"`
	Saved   bool             `json:"saved"`
}

type scanSession struct {
	mu sync.Mutex

	id          string
	barcode     string
	productID   string
	productName string
	brand       string
	tags        []string
	baseline    nutrition.Profile
	stored      bool
	acc         *consensus.Accumulator
	createdAt   time.Time
	touched     time.Time
	closed      bool
}

func (s *scanSession) hints() analysis.Hints {
	return analysis.Hints{Tags: s.tags, ProductName: s.productName, Brand: s.brand}
}

// Manager owns the open scan sessions.
type Manager struct {
	store    Store
	catalog  Catalog
	analyzer *analysis.Analyzer
	builder  *reconcile.Builder
	ttl      time.Duration
	log      *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*scanSession
}

// NewManager creates a Manager. catalog may be nil when no catalog is loaded.
func NewManager(st Store, catalog Catalog, analyzer *analysis.Analyzer, ttl time.Duration, logger *slog.Logger) *Manager {
	if analyzer == nil {
		analyzer = analysis.New(nil)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store:    st,
		catalog:  catalog,
		analyzer: analyzer,
		builder:  reconcile.NewBuilder(analyzer.Validator().Bounds()),
		ttl:      ttl,
		log:      logger,
		now:      time.Now,
		sessions: make(map[string]*scanSession),
	}
}

// Start opens a session. When barcode is set the baseline is taken from the
// local store first and the catalog second.
func (m *Manager) Start(ctx context.Context, barcode string) (*Info, error) {
	now := m.now()
	sess := &scanSession{
		id:        uuid.NewString(),
		barcode:   barcode,
		acc:       consensus.NewAccumulator(nil),
		createdAt: now,
		touched:   now,
	}

	base, err := m.Lookup(ctx, barcode)
	if err != nil {
		return nil, err
	}
	sess.productID = base.ProductID
	sess.productName = base.ProductName
	sess.brand = base.Brand
	sess.tags = base.CategoriesTags
	sess.baseline = base.Profile
	sess.stored = base.Source == BaselineStore

	ft := m.analyzer.AnalyzeProfile(sess.baseline, sess.hints()).FoodType
	if err := m.store.SaveSession(ctx, &store.ScanSession{
		ID:       sess.id,
		Barcode:  barcode,
		Status:   store.SessionOpen,
		FoodType: ft.Type,
	}); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[sess.id] = sess
	m.mu.Unlock()

	m.log.Info("Scan session started", "session_id", sess.id, "barcode", barcode, "baseline_source", base.Source)

	return &Info{
		ID:             sess.id,
		Barcode:        barcode,
		ProductName:    sess.productName,
		Brand:          sess.brand,
		Baseline:       sess.baseline,
		BaselineSource: base.Source,
		FoodType:       ft,
		ExpiresAt:      now.Add(m.ttl),
	}, nil
}

// Baseline is what the store or catalog knows about a barcode.
type Baseline struct {
	Source         BaselineSource    `json:"source"`
	ProductID      string            `json:"-"`
	Barcode        string            `json:"barcode,omitempty"`
	ProductName    string            `json:"product_name,omitempty"`
	Brand          string            `json:"brand,omitempty"`
	CategoriesTags []string          `json:"categories_tags,omitempty"`
	Profile        nutrition.Profile `json:"nutrition"`
}

// Hints returns the classification hints of the product.
func (b *Baseline) Hints() analysis.Hints {
	return analysis.Hints{Tags: b.CategoriesTags, ProductName: b.ProductName, Brand: b.Brand}
}

// Lookup resolves a barcode against the local store first and the catalog
// second. An unknown barcode yields a baseline with source none.
func (m *Manager) Lookup(ctx context.Context, barcode string) (*Baseline, error) {
	b := &Baseline{Source: BaselineNone, Barcode: barcode}
	if barcode == "" {
		return b, nil
	}

	local, err := m.store.FindByBarcode(ctx, barcode)
	switch {
	case err == nil:
		b.Source = BaselineStore
		b.ProductID = local.ID
		b.ProductName = local.ProductName
		b.Brand = local.Brand
		b.CategoriesTags = local.CategoriesTags
		b.Profile = local.Nutrition
		return b, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to look up local product: %w", err)
	}

	if m.catalog == nil {
		return b, nil
	}
	product, err := m.catalog.SearchByBarcode(ctx, barcode)
	if err != nil {
		// A broken catalog should not block scanning.
		m.log.Warn("Catalog lookup failed", "barcode", barcode, "error", err)
		return b, nil
	}
	if product == nil {
		return b, nil
	}
	b.Source = BaselineCatalog
	b.ProductName = product.ProductName
	b.Brand = product.Brand()
	b.CategoriesTags = product.CategoriesTags
	b.Profile = product.ToBaseline()
	return b, nil
}

// Reconcile merges scanned values into the baseline of barcode without a
// session. ft overrides the classified food type unless it is unknown.
func (m *Manager) Reconcile(ctx context.Context, barcode string, scanned nutrition.Profile, ft nutrition.FoodType, overrides map[nutrition.Nutrient]float64) (*Baseline, reconcile.Record, error) {
	base, err := m.Lookup(ctx, barcode)
	if err != nil {
		return nil, reconcile.Record{}, err
	}
	return base, m.ReconcileWith(base, scanned, ft, overrides), nil
}

// ReconcileWith merges scanned values into a known baseline.
func (m *Manager) ReconcileWith(base *Baseline, scanned nutrition.Profile, ft nutrition.FoodType, overrides map[nutrition.Nutrient]float64) reconcile.Record {
	ft = m.analyzer.AnalyzeProfileAs(fillMissing(scanned, base.Profile), base.Hints(), ft).FoodType.Type

	record := m.builder.Merge(base.Profile, scanned, ft)
	applyOverrides(&record, overrides)
	return record
}

// ParseOverrides converts user corrections keyed by nutrient name.
func ParseOverrides(raw map[string]float64) (map[nutrition.Nutrient]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[nutrition.Nutrient]float64, len(raw))
	for name, v := range raw {
		n, err := nutrition.ParseNutrient(name)
		if err != nil {
			return nil, err
		}
		if v < 0 || v > 100 {
			return nil, fmt.Errorf("override for %s must be between 0 and 100, got %g", n, v)
		}
		out[n] = v
	}
	return out, nil
}

// fillMissing returns p with its gaps filled from fallback.
func fillMissing(p, fallback nutrition.Profile) nutrition.Profile {
	out := p
	for _, n := range nutrition.AllNutrients() {
		if _, ok := out.Get(n); ok {
			continue
		}
		if v, ok := fallback.Get(n); ok {
			out.Set(n, v)
		}
	}
	return out
}

func applyOverrides(record *reconcile.Record, overrides map[nutrition.Nutrient]float64) {
	for _, n := range nutrition.AllNutrients() {
		if v, ok := overrides[n]; ok {
			record.ApplyManual(n, v)
		}
	}
}

func (m *Manager) lookup(id string) (*scanSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// AddFrame folds the OCR lines of one camera frame into the session.
func (m *Manager) AddFrame(ctx context.Context, id string, lines []string) (*Progress, error) {
	sess, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return nil, ErrSessionClosed
	}

	matches := label.Scan(lines)
	var frame nutrition.Profile
	for _, match := range matches {
		frame.Set(match.Nutrient, match.Value)
	}

	// a frame counts toward consensus only once its readings are stored
	frameNo := sess.acc.Frames() + 1
	if err := m.store.AddReadings(ctx, sess.id, frameNo, frame.Readings(nutrition.SourceOCR)); err != nil {
		return nil, err
	}

	profile := sess.acc.Observe(frame)
	sess.touched = m.now()

	report := m.analyzer.AnalyzeProfile(profile, sess.hints())
	if err := m.store.SaveSession(ctx, &store.ScanSession{
		ID:        sess.id,
		Barcode:   sess.barcode,
		Status:    store.SessionOpen,
		FoodType:  report.FoodType.Type,
		Frames:    frameNo,
		CreatedAt: sess.createdAt,
	}); err != nil {
		return nil, err
	}

	m.log.Debug("Scan frame added", "session_id", sess.id, "frame", frameNo, "detected", len(matches), "complete", report.Complete())

	if matches == nil {
		matches = []label.Match{}
	}
	return &Progress{
		ID:       sess.id,
		Frame:    frameNo,
		Detected: matches,
		Profile:  profile,
		Missing:  report.Missing,
		FoodType: report.FoodType,
		Findings: report.Findings,
		Complete: report.Complete(),
	}, nil
}

// Finish closes the session, reconciles the consensus profile with the
// baseline and saves the product when the scan changed anything. Overrides
// are user corrections and always win.
func (m *Manager) Finish(ctx context.Context, id string, overrides map[nutrition.Nutrient]float64) (*Outcome, error) {
	sess, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return nil, ErrSessionClosed
	}

	scanned := sess.acc.Profile()
	ft := m.analyzer.AnalyzeProfile(fillMissing(scanned, sess.baseline), sess.hints()).FoodType

	record := m.builder.Merge(sess.baseline, scanned, ft.Type)
	applyOverrides(&record, overrides)

	outcome := &Outcome{
		ID:     sess.id,
		Frames: sess.acc.Frames(),
		Record: record,
		Report: m.analyzer.AnalyzeProfile(record.Profile(), sess.hints()),
	}

	if !record.Profile().IsEmpty() && (record.Updated() || !sess.stored) {
		product := &store.Product{
			ID:             sess.productID,
			Barcode:        sess.barcode,
			ProductName:    sess.productName,
			Brand:          sess.brand,
			Nutrition:      record.Profile(),
			CategoriesTags: sess.tags,
			Source:         store.SourceLocal,
		}
		if err := m.store.SaveProduct(ctx, product); err != nil {
			return nil, err
		}
		outcome.Product = product
		outcome.Saved = true
	}

	result, err := json.Marshal(outcome)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session result: %w", err)
	}
	if err := m.store.SaveSession(ctx, &store.ScanSession{
		ID:        sess.id,
		Barcode:   sess.barcode,
		Status:    store.SessionFinished,
		FoodType:  ft.Type,
		Frames:    outcome.Frames,
		Result:    result,
		CreatedAt: sess.createdAt,
	}); err != nil {
		return nil, err
	}

	sess.closed = true
	sess.touched = m.now()

	m.log.Info("Scan session finished", "session_id", sess.id, "frames", outcome.Frames,
		"updated", record.Updated(), "conflicts", len(record.Conflicts()), "saved", outcome.Saved)
	return outcome, nil
}

// Active returns the number of open sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := 0
	for _, sess := range m.sessions {
		sess.mu.Lock()
		if !sess.closed {
			active++
		}
		sess.mu.Unlock()
	}
	return active
}

// Sweep forgets sessions idle for longer than the TTL, marks the open ones
// expired in the store and returns how many open sessions expired. Finished
// sessions stay around for one TTL so late calls get ErrSessionClosed.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	cutoff := m.now().Add(-m.ttl)

	expired := 0
	m.mu.Lock()
	for id, sess := range m.sessions {
		sess.mu.Lock()
		if sess.touched.Before(cutoff) {
			if !sess.closed {
				expired++
			}
			sess.closed = true
			delete(m.sessions, id)
		}
		sess.mu.Unlock()
	}
	m.mu.Unlock()

	if _, err := m.store.ExpireSessions(ctx, cutoff); err != nil {
		return expired, err
	}
	if expired > 0 {
		m.log.Info("Expired idle scan sessions", "count", expired)
	}
	return expired, nil
}

// Run sweeps expired sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				m.log.Error("Session sweep failed", "error", err)
			}
		}
	}
}
