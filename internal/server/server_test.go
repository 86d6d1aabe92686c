package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noot-app/petfood-nutrition-server/internal/analysis"
	"github.com/noot-app/petfood-nutrition-server/internal/auth"
	"github.com/noot-app/petfood-nutrition-server/internal/config"
	"github.com/noot-app/petfood-nutrition-server/internal/nutrition"
	"github.com/noot-app/petfood-nutrition-server/internal/query"
	"github.com/noot-app/petfood-nutrition-server/internal/reconcile"
	"github.com/noot-app/petfood-nutrition-server/internal/session"
	"github.com/noot-app/petfood-nutrition-server/internal/store"
)

const (
	testToken    = "test-token"
	carnyBarcode = "4017721837194"
)

var carnyLabel = []string{
	"Analytische Bestandteile:",
	"Rohprotein 11,5 %, Rohfett 6,0 %,",
	"Rohfaser 0,5 %, Rohasche 2,0 %, Feuchtigkeit 78 %",
}

type testEnv struct {
	server  *Server
	handler http.Handler
	engine  *query.MockEngine
	store   *store.SQLiteStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := config.NewTestLogger(io.Discard, "debug")

	st, err := store.Open(filepath.Join(t.TempDir(), "api.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	engine := query.NewMockEngine(logger)
	analyzer := analysis.New(nil)
	rt := &Runtime{
		Config: &config.Config{
			AuthToken:   testToken,
			Environment: "development",
			CORSOrigins: "*",
		},
		Catalog:  engine,
		Health:   query.NewHealthCache(engine, logger),
		Store:    st,
		Analyzer: analyzer,
		Sessions: session.NewManager(st, engine, analyzer, time.Minute, logger),
		log:      logger,
	}

	srv := New(rt, auth.NewBearerTokenAuth(testToken), logger)
	return &testEnv{
		server:  srv,
		handler: srv.Handler(context.Background()),
		engine:  engine,
		store:   st,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestServer_HandleHealth(t *testing.T) {
	tests := []struct {
		name           string
		engineErr      error
		expectedStatus int
		expectedReady  bool
	}{
		{
			name:           "catalog healthy",
			expectedStatus: http.StatusOK,
			expectedReady:  true,
		},
		{
			name:           "catalog failing",
			engineErr:      errors.New("connection lost"),
			expectedStatus: http.StatusServiceUnavailable,
			expectedReady:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.engine.SetError(tt.engineErr)

			// no auth header
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()
			env.handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			resp := decodeBody[HealthResponse](t, w)
			assert.Equal(t, tt.expectedReady, resp.Ready)
			if tt.engineErr != nil {
				assert.Equal(t, "unhealthy", resp.Status)
				assert.Contains(t, resp.Error, "connection lost")
			} else {
				assert.Equal(t, "healthy", resp.Status)
				assert.Zero(t, resp.ActiveSessions)
			}
		})
	}
}

func TestServer_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer " + testToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/products/"+carnyBarcode, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			env.handler.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestServer_Analyze(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		body     AnalyzeRequest
		status   int
		complete bool
		foodType nutrition.FoodType
	}{
		{
			name:     "lines",
			body:     AnalyzeRequest{Lines: carnyLabel},
			status:   http.StatusOK,
			complete: true,
			foodType: nutrition.FoodTypeWet,
		},
		{
			name:     "text with dry override",
			body:     AnalyzeRequest{Text: "Crude protein 32%\nCrude fat 15%", FoodType: nutrition.FoodTypeDry},
			status:   http.StatusOK,
			foodType: nutrition.FoodTypeDry,
		},
		{
			name:   "empty input",
			body:   AnalyzeRequest{},
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/v1/analyze", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status != http.StatusOK {
				return
			}

			report := decodeBody[analysis.Report](t, w)
			assert.Equal(t, tt.complete, report.Complete())
			assert.Equal(t, tt.foodType, report.FoodType.Type)
			assert.NotEmpty(t, report.Matches)
			if tt.complete {
				require.NotNil(t, report.Metrics)
				// 2% as fed over 22% dry matter
				assert.InDelta(t, 9.09, report.Metrics.Carbs, 1e-9)
				assert.Equal(t, nutrition.CarbsModerate, report.Metrics.Level)
			}
		})
	}
}

func TestServer_AnalyzeRejectsMalformedJSON(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeBody[errorResponse](t, w)
	assert.Equal(t, "bad request", resp.Error)
	assert.NotEmpty(t, resp.Details)
}

func TestServer_Carbs(t *testing.T) {
	env := newTestEnv(t)

	t.Run("complete profile", func(t *testing.T) {
		body := CarbsRequest{Profile: nutrition.NewProfile(32, 15, 3, 10, 7), FoodType: nutrition.FoodTypeDry}
		w := env.do(t, http.MethodPost, "/v1/carbs", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		report := decodeBody[analysis.Report](t, w)
		require.NotNil(t, report.Metrics)
		assert.InDelta(t, 36.67, report.Metrics.Carbs, 1e-9)
		assert.Equal(t, nutrition.CarbsHigh, report.Metrics.Level)
		assert.Equal(t, nutrition.FoodTypeDry, report.FoodType.Type)
	})

	t.Run("missing nutrients", func(t *testing.T) {
		body := CarbsRequest{Profile: nutrition.Profile{Protein: nutrition.Float(10)}}
		w := env.do(t, http.MethodPost, "/v1/carbs", body)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeBody[errorResponse](t, w).Error, "fat")
	})
}

func TestServer_Reconcile(t *testing.T) {
	env := newTestEnv(t)

	t.Run("catalog baseline with scanned lines", func(t *testing.T) {
		body := ReconcileRequest{
			Barcode: carnyBarcode,
			Lines:   []string{"Rohfett 14 %", "Rohasche 2,6 %"},
		}
		w := env.do(t, http.MethodPost, "/v1/reconcile", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decodeBody[ReconcileResponse](t, w)
		assert.Equal(t, session.BaselineCatalog, resp.Baseline.Source)
		assert.True(t, resp.Updated)

		fat, ok := resp.Record.Field(nutrition.Fat)
		require.True(t, ok)
		assert.Equal(t, reconcile.ReasonScanDouble, fat.Reason)
		assert.InDelta(t, 14.0, *fat.Value, 1e-9)
		assert.Contains(t, resp.Conflicts, nutrition.Ash)
	})

	t.Run("explicit baseline", func(t *testing.T) {
		body := ReconcileRequest{
			Baseline:  &nutrition.Profile{Protein: nutrition.Float(0), Fat: nutrition.Float(5)},
			Scanned:   nutrition.Profile{Protein: nutrition.Float(9)},
			FoodType:  nutrition.FoodTypeWet,
			Overrides: map[string]float64{"fat": 6},
		}
		w := env.do(t, http.MethodPost, "/v1/reconcile", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decodeBody[ReconcileResponse](t, w)
		assert.Equal(t, session.BaselineNone, resp.Baseline.Source)

		protein, _ := resp.Record.Field(nutrition.Protein)
		assert.Equal(t, reconcile.ReasonBaselineZero, protein.Reason)

		fat, _ := resp.Record.Field(nutrition.Fat)
		assert.Equal(t, reconcile.ReasonManual, fat.Reason)
		assert.Equal(t, nutrition.SourceManual, fat.Source)
		assert.Empty(t, resp.Conflicts)
	})

	t.Run("invalid override", func(t *testing.T) {
		body := ReconcileRequest{Barcode: carnyBarcode, Overrides: map[string]float64{"sugar": 1}}
		w := env.do(t, http.MethodPost, "/v1/reconcile", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestServer_Product(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		barcode string
		status  int
		found   bool
	}{
		{"catalog product", carnyBarcode, http.StatusOK, true},
		{"unknown barcode", "0000000000000", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/v1/products/"+tt.barcode, nil)
			require.Equal(t, tt.status, w.Code)

			resp := decodeBody[ProductResponse](t, w)
			assert.Equal(t, tt.found, resp.Found)
			if tt.found {
				require.NotNil(t, resp.Product)
				assert.Equal(t, "Animonda", resp.Product.Brand)
				require.NotNil(t, resp.Report)
				assert.Equal(t, nutrition.FoodTypeWet, resp.Report.FoodType.Type)
			}
		})
	}
}

func TestServer_Search(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.SaveProduct(ctx, &store.Product{
		ProductName: "Homemade Chicken Stew",
		Brand:       "Kitchen",
		Nutrition:   nutrition.NewProfile(10, 5, 1, 80, 2),
		Source:      store.SourceLocal,
	}))

	tests := []struct {
		name    string
		query   string
		status  int
		local   int
		catalog int
	}{
		{"catalog brand", "?brand=royal", http.StatusOK, 0, 1},
		{"local name", "?q=chicken", http.StatusOK, 1, 1},
		{"limit", "?q=chicken&limit=1", http.StatusOK, 1, 1},
		{"missing query", "", http.StatusBadRequest, 0, 0},
		{"bad limit", "?q=chicken&limit=zero", http.StatusBadRequest, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/v1/products"+tt.query, nil)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status != http.StatusOK {
				return
			}

			resp := decodeBody[SearchResponse](t, w)
			assert.Len(t, resp.Local, tt.local)
			assert.Len(t, resp.Catalog, tt.catalog)
			assert.True(t, resp.Found)
		})
	}
}

func TestServer_ScanStream(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/scan"
	header := http.Header{"Authorization": []string{"Bearer " + testToken}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	exchange := func(msg ScanMessage) ScanReply {
		t.Helper()
		require.NoError(t, conn.WriteJSON(msg))
		var reply ScanReply
		require.NoError(t, conn.ReadJSON(&reply))
		return reply
	}

	reply := exchange(ScanMessage{Type: MsgFrame, Lines: carnyLabel})
	assert.Equal(t, MsgError, reply.Type)
	assert.Equal(t, "no session started", reply.Error)

	reply = exchange(ScanMessage{Type: MsgStart, Barcode: carnyBarcode})
	require.Equal(t, MsgStarted, reply.Type, reply.Error)
	require.NotNil(t, reply.Session)
	assert.Equal(t, session.BaselineCatalog, reply.Session.BaselineSource)

	reply = exchange(ScanMessage{Type: MsgFrame, Lines: []string{"Rohfett 14 %"}})
	require.Equal(t, MsgProgress, reply.Type, reply.Error)
	assert.Equal(t, 1, reply.Progress.Frame)
	assert.Len(t, reply.Progress.Detected, 1)

	reply = exchange(ScanMessage{Type: MsgFrame, Lines: []string{"Rohfett 14 %"}})
	require.Equal(t, MsgProgress, reply.Type, reply.Error)
	assert.Equal(t, 2, reply.Progress.Frame)

	reply = exchange(ScanMessage{Type: MsgFinish})
	require.Equal(t, MsgFinished, reply.Type, reply.Error)
	require.NotNil(t, reply.Outcome)
	assert.Equal(t, 2, reply.Outcome.Frames)
	fat, ok := reply.Outcome.Record.Field(nutrition.Fat)
	require.True(t, ok)
	assert.InDelta(t, 14.0, *fat.Value, 1e-9)

	// the server closes the stream after finish
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
}

func TestServer_ScanStreamUnknownMessage(t *testing.T) {
	env := newTestEnv(t)

	var id string
	reply, done := env.server.scanStep(context.Background(), &id, ScanMessage{Type: "rewind"})
	assert.False(t, done)
	assert.Equal(t, MsgError, reply.Type)
	assert.Contains(t, reply.Error, "rewind")

	reply, done = env.server.scanStep(context.Background(), &id, ScanMessage{Type: MsgFinish})
	assert.False(t, done)
	assert.Equal(t, "no session started", reply.Error)
}
