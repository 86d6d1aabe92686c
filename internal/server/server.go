// Package server exposes the label pipeline as a REST API with a websocket
// stream for live scanning.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/noot-app/petfood-nutrition-server/internal/analysis"
	"github.com/noot-app/petfood-nutrition-server/internal/auth"
	"github.com/noot-app/petfood-nutrition-server/internal/label"
	"github.com/noot-app/petfood-nutrition-server/internal/middleware"
	"github.com/noot-app/petfood-nutrition-server/internal/nutrition"
	"github.com/noot-app/petfood-nutrition-server/internal/reconcile"
	"github.com/noot-app/petfood-nutrition-server/internal/session"
	"github.com/noot-app/petfood-nutrition-server/internal/store"
	"github.com/noot-app/petfood-nutrition-server/internal/types"
	"github.com/noot-app/petfood-nutrition-server/internal/version"
)

// AnalyzeRequest is the body of POST /v1/analyze. Text is split into lines
// when Lines is empty.
type AnalyzeRequest struct {
	Lines    []string           `json:"lines"`
	Text     string             `json:"text"`
	Hints    analysis.Hints     `json:"hints"`
	FoodType nutrition.FoodType `json:"food_type"`
}

// CarbsRequest is the body of POST /v1/carbs
type CarbsRequest struct {
	nutrition.Profile
	FoodType nutrition.FoodType `json:"food_type"`
}

// ReconcileRequest is the body of POST /v1/reconcile. Without an explicit
// baseline the barcode is looked up. Lines are extracted when Scanned is empty.
type ReconcileRequest struct {
	Barcode   string             `json:"barcode"`
	Baseline  *nutrition.Profile `json:"baseline"`
	Hints     analysis.Hints     `json:"hints"`
	Scanned   nutrition.Profile  `json:"scanned"`
	Lines     []string           `json:"lines"`
	FoodType  nutrition.FoodType `json:"food_type"`
	Overrides map[string]float64 `json:"overrides"`
}

// ReconcileResponse is returned by POST /v1/reconcile
type ReconcileResponse struct {
	Baseline  *session.Baseline    `json:"baseline"`
	Record    reconcile.Record     `json:"record"`
	Profile   nutrition.Profile    `json:"profile"`
	Updated   bool                 `json:"updated"`
	Conflicts []nutrition.Nutrient `json:"conflicts"`
	Report    analysis.Report      `json:"report"`
}

// NewReconcileResponse describes record and analyzes the merged profile.
func NewReconcileResponse(analyzer *analysis.Analyzer, base *session.Baseline, record reconcile.Record) ReconcileResponse {
	conflicts := record.Conflicts()
	if conflicts == nil {
		conflicts = []nutrition.Nutrient{}
	}
	merged := record.Profile()
	return ReconcileResponse{
		Baseline:  base,
		Record:    record,
		Profile:   merged,
		Updated:   record.Updated(),
		Conflicts: conflicts,
		Report:    analyzer.AnalyzeProfileAs(merged, base.Hints(), record.FoodType),
	}
}

// ProductResponse is returned by GET /v1/products/{barcode}
type ProductResponse struct {
	Found   bool              `json:"found"`
	Product *session.Baseline `json:"product,omitempty"`
	Report  *analysis.Report  `json:"report,omitempty"`
}

// SearchResponse is returned by GET /v1/products
type SearchResponse struct {
	Found   bool                   `json:"found"`
	Local   []*store.Product       `json:"local"`
	Catalog []types.ProductSummary `json:"catalog"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status         string       `json:"status"`
	Ready          bool         `json:"ready"`
	ActiveSessions int          `json:"active_sessions"`
	Version        version.Info `json:"version"`
	Error          string       `json:"error,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Server is the REST API
type Server struct {
	rt       *Runtime
	auth     *auth.BearerTokenAuth
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// New creates the REST API server on top of an initialized runtime
func New(rt *Runtime, authenticator *auth.BearerTokenAuth, logger *slog.Logger) *Server {
	return &Server{
		rt:   rt,
		auth: authenticator,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler builds the routed handler. Everything under /v1 requires the
// bearer token; /health does not.
func (s *Server) Handler(ctx context.Context) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/analyze", s.handleAnalyze)
	api.HandleFunc("POST /v1/carbs", s.handleCarbs)
	api.HandleFunc("POST /v1/reconcile", s.handleReconcile)
	api.HandleFunc("GET /v1/products/{barcode}", s.handleProduct)
	api.HandleFunc("GET /v1/products", s.handleSearch)
	api.HandleFunc("GET /v1/scan", s.handleScan)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("/v1/", middleware.Chain(api,
		middleware.RateLimit(ctx, s.rt.Config.RateLimitRPS, s.rt.Config.RateLimitBurst),
		s.auth.Middleware,
	))

	return middleware.Chain(mux,
		middleware.Logging(s.log),
		middleware.CORS(s.rt.Config.CORSOrigins),
	)
}

// ListenAndServe serves the API on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(ctx),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("🌐 REST API ready",
			"addr", addr,
			"endpoints", []string{"/health", "/v1/analyze", "/v1/carbs", "/v1/reconcile", "/v1/products", "/v1/scan"})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve REST API: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutting down REST API...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), HTTPShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down REST API: %w", err)
	}
	s.log.Info("REST API stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:         "healthy",
		Ready:          true,
		ActiveSessions: s.rt.Sessions.Active(),
		Version:        version.Get(),
	}

	status := http.StatusOK
	if err := s.rt.Health.Check(r.Context()); err != nil {
		s.log.Error("Health check failed", "error", err)
		resp.Status = "unhealthy"
		resp.Ready = false
		resp.Error = err.Error()
		status = http.StatusServiceUnavailable
	} else if err := s.rt.Store.Ping(r.Context()); err != nil {
		s.log.Error("Store ping failed", "error", err)
		resp.Status = "unhealthy"
		resp.Ready = false
		resp.Error = err.Error()
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !s.decode(w, r, &req) {
		return
	}

	lines := req.Lines
	if len(lines) == 0 && req.Text != "" {
		lines = strings.Split(req.Text, "\n")
	}
	if len(lines) == 0 {
		s.writeError(w, nil, "lines or text is required", http.StatusBadRequest)
		return
	}

	matches := label.Scan(lines)
	var profile nutrition.Profile
	for _, m := range matches {
		profile.Set(m.Nutrient, m.Value)
	}
	report := s.rt.Analyzer.AnalyzeProfileAs(profile, req.Hints, req.FoodType)
	report.Matches = matches

	s.log.Debug("Label analyzed", "lines", len(lines), "detected", len(matches), "complete", report.Complete())
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCarbs(w http.ResponseWriter, r *http.Request) {
	var req CarbsRequest
	if !s.decode(w, r, &req) {
		return
	}

	if missing := req.Profile.Missing(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, n := range missing {
			names[i] = n.String()
		}
		s.writeError(w, nil, "missing nutrients: "+strings.Join(names, ", "), http.StatusBadRequest)
		return
	}

	report := s.rt.Analyzer.AnalyzeProfileAs(req.Profile, analysis.Hints{}, req.FoodType)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if !s.decode(w, r, &req) {
		return
	}

	overrides, err := session.ParseOverrides(req.Overrides)
	if err != nil {
		s.writeError(w, err, err.Error(), http.StatusBadRequest)
		return
	}

	scanned := req.Scanned
	if scanned.IsEmpty() && len(req.Lines) > 0 {
		scanned = label.Extract(req.Lines)
	}

	var (
		base   *session.Baseline
		record reconcile.Record
	)
	if req.Baseline != nil {
		base = &session.Baseline{
			Source:         session.BaselineNone,
			Barcode:        req.Barcode,
			ProductName:    req.Hints.ProductName,
			Brand:          req.Hints.Brand,
			CategoriesTags: req.Hints.Tags,
			Profile:        *req.Baseline,
		}
		record = s.rt.Sessions.ReconcileWith(base, scanned, req.FoodType, overrides)
	} else {
		base, record, err = s.rt.Sessions.Reconcile(r.Context(), req.Barcode, scanned, req.FoodType, overrides)
		if err != nil {
			s.log.Error("Reconcile failed", "error", err, "barcode", req.Barcode)
			s.writeError(w, err, "internal error", http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, http.StatusOK, NewReconcileResponse(s.rt.Analyzer, base, record))
}

func (s *Server) handleProduct(w http.ResponseWriter, r *http.Request) {
	barcode := r.PathValue("barcode")

	base, err := s.rt.Sessions.Lookup(r.Context(), barcode)
	if err != nil {
		s.log.Error("Barcode lookup failed", "error", err, "barcode", barcode)
		s.writeError(w, err, "internal error", http.StatusInternalServerError)
		return
	}
	if base.Source == session.BaselineNone {
		writeJSON(w, http.StatusNotFound, ProductResponse{Found: false})
		return
	}

	report := s.rt.Analyzer.AnalyzeProfile(base.Profile, base.Hints())
	writeJSON(w, http.StatusOK, ProductResponse{Found: true, Product: base, Report: &report})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	brand := strings.TrimSpace(r.URL.Query().Get("brand"))
	if q == "" && brand == "" {
		s.writeError(w, nil, "q or brand is required", http.StatusBadRequest)
		return
	}

	limit := DefaultQueryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.writeError(w, err, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(parsed, MaxQueryLimit)
	}

	start := time.Now()
	ctx := r.Context()

	term := q
	if term == "" {
		term = brand
	}
	local, err := s.rt.Store.Search(ctx, term, limit)
	if err != nil {
		s.log.Error("Local search failed", "error", err)
		s.writeError(w, err, "internal error", http.StatusInternalServerError)
		return
	}

	products, err := s.rt.Catalog.SearchProductsByBrandAndName(ctx, q, brand, limit)
	if err != nil {
		s.log.Error("Catalog search failed", "error", err, "q", q, "brand", brand)
		s.writeError(w, err, "internal error", http.StatusInternalServerError)
		return
	}
	summaries := make([]types.ProductSummary, 0, len(products))
	for _, p := range products {
		summaries = append(summaries, p.ToSummary())
	}
	if local == nil {
		local = []*store.Product{}
	}

	s.log.Info("Search completed", "local", len(local), "catalog", len(summaries), "duration", time.Since(start))
	writeJSON(w, http.StatusOK, SearchResponse{
		Found:   len(local)+len(summaries) > 0,
		Local:   local,
		Catalog: summaries,
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.log.Warn("Bad request", "error", err, "path", r.URL.Path)
		s.writeError(w, err, "bad request", http.StatusBadRequest)
		return false
	}
	return true
}

// writeError sends a JSON error, with the underlying error only in development mode
func (s *Server) writeError(w http.ResponseWriter, err error, message string, statusCode int) {
	resp := errorResponse{Error: message}
	if err != nil && s.rt.Config.IsDevelopment() {
		resp.Details = err.Error()
	}
	writeJSON(w, statusCode, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
