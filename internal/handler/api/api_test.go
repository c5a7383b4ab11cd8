// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/olegiv/pillar-engine/internal/cache"
	"github.com/olegiv/pillar-engine/internal/engine"
	"github.com/olegiv/pillar-engine/internal/llm"
	"github.com/olegiv/pillar-engine/internal/model"
	"github.com/olegiv/pillar-engine/internal/store"
	"github.com/olegiv/pillar-engine/internal/testutil"
)

const strategyResponse = `{"strategies": [{
  "topic": "Regalos Empresariales",
  "target_keywords": ["regalos empresa", "regalos corporativos"],
  "suggested_title": "Regalos Empresariales: Guía Completa",
  "rationale": "Alta demanda antes de Navidad",
  "related_products": ["boligrafo-grabado", "cuaderno-corporativo"],
  "related_posts": ["ideas-regalos-navidad-empresa"]
}]}`

const pillarResponse = `{
  "title": "Regalos Empresariales: Guía Completa",
  "seo_description": "Ideas de regalos para empresas.",
  "slug": "regalos-empresariales",
  "body": "## Por qué regalar\n\nUn Bolígrafo Grabado refuerza tu marca."
}`

const postBody = "<p>Un Bolígrafo Grabado es un detalle clásico.</p>"

type testServer struct {
	db      *sql.DB
	gen     *llm.Static
	reports *cache.TypedCache[model.HealthReport]
	router  http.Handler

	pen      model.Product
	notebook model.Product
	post     model.Post
}

// newTestServer wires the API over a seeded database and a static generator.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, cleanup := testutil.TestDB(t)
	t.Cleanup(cleanup)

	ts := &testServer{
		db: db,
		gen: llm.NewStatic(map[string]string{
			"strategies": strategyResponse,
			"pillar":     pillarResponse,
		}),
	}
	ts.pen = testutil.SeedProduct(t, db, "boligrafo-grabado", "Bolígrafo Grabado", "Bolígrafo con grabado láser.")
	ts.notebook = testutil.SeedProduct(t, db, "cuaderno-corporativo", "Cuaderno Corporativo", "Cuaderno A5 personalizado.")
	ts.post = testutil.SeedPost(t, db, "ideas-regalos-navidad-empresa", "Ideas de regalos de Navidad", postBody, "regalos empresa")

	mem := cache.NewMemoryCache(cache.MemoryCacheOptions{DefaultTTL: time.Hour, MaxSize: 10})
	t.Cleanup(func() { _ = mem.Close() })
	ts.reports = cache.NewHealthReportCache(mem, time.Hour)

	logger := testutil.TestLoggerSilent()
	e := engine.New(store.NewContentRepository(db), store.NewWorkflowStore(db), ts.gen, logger, engine.DefaultOptions())
	ts.router = NewRouter(NewHandler(e, store.New(db), ts.reports, logger), RouterConfig{
		RequestTimeout: 10 * time.Second,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

// decodeData unmarshals the data field of a success response.
func decodeData[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T     `json:"data"`
		Meta *Meta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return resp.Data
}

// assertStatusCode checks that the response has the expected status code.
func assertStatusCode(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Fatalf("expected status %d, got %d: %s", expected, w.Code, w.Body.String())
	}
}

// assertErrorResponse unmarshals and validates an error response.
func assertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedCode string) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Error.Code != expectedCode {
		t.Errorf("expected code '%s', got %s", expectedCode, resp.Error.Code)
	}
	return resp
}

// approvedStrategy generates a strategy and approves it over HTTP.
func (ts *testServer) approvedStrategy(t *testing.T) model.SeoStrategy {
	t.Helper()
	rr := ts.do(t, http.MethodPost, "/api/v1/strategies/generate", engine.GenerateInput{
		Topic:       "Regalos Empresariales",
		Description: "Regalos corporativos para clientes",
	})
	assertStatusCode(t, rr, http.StatusCreated)
	res := decodeData[engine.GenerateResult](t, rr)
	require.Len(t, res.Strategies, 1)

	rr = ts.do(t, http.MethodPost, "/api/v1/strategies/"+res.Strategies[0].ID+"/approve", nil)
	assertStatusCode(t, rr, http.StatusOK)
	return decodeData[model.SeoStrategy](t, rr)
}
