// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/pillar-engine/internal/cache"
	"github.com/olegiv/pillar-engine/internal/engine"
	"github.com/olegiv/pillar-engine/internal/llm"
	"github.com/olegiv/pillar-engine/internal/model"
	"github.com/olegiv/pillar-engine/internal/store"
	"github.com/olegiv/pillar-engine/internal/testutil"
)

func TestStatus(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/api/v1/status", nil)
	assertStatusCode(t, rr, http.StatusOK)
	got := decodeData[StatusResponse](t, rr)
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, "v1", got.API)
	assert.NotEmpty(t, got.Version.GoVersion)
	require.NotNil(t, got.Cache, "memory cache reports its counters")
	assert.Zero(t, got.Cache.Hits)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("Strict-Transport-Security"))
}

func TestClusterWorkflow(t *testing.T) {
	ts := newTestServer(t)
	s := ts.approvedStrategy(t)
	assert.Equal(t, model.StrategyApproved, s.Status)
	assert.Equal(t, []string{ts.pen.ID, ts.notebook.ID}, s.RelatedProducts)

	rr := ts.do(t, http.MethodGet, "/api/v1/strategies/"+s.ID+"/suggestions", nil)
	assertStatusCode(t, rr, http.StatusOK)
	sugg := decodeData[engine.Suggestion](t, rr)
	require.NotEmpty(t, sugg.Products)
	assert.Equal(t, ts.pen.ID, sugg.Products[0].ID)

	rr = ts.do(t, http.MethodPost, "/api/v1/strategies/"+s.ID+"/builds", BuildRequest{
		SelectedPosts:    []string{ts.post.ID},
		SelectedProducts: []string{ts.pen.ID},
	})
	assertStatusCode(t, rr, http.StatusCreated)
	build := decodeData[engine.BuildResult](t, rr)
	assert.Equal(t, "regalos-empresariales", build.PillarSlug)

	rr = ts.do(t, http.MethodGet, "/api/v1/reviews/"+s.ID, nil)
	assertStatusCode(t, rr, http.StatusOK)
	items := decodeData[[]model.ReviewItem](t, rr)
	require.Len(t, items, 2)
	assert.Equal(t, model.DocumentPillarPage, items[0].Type)
	assert.Equal(t, postBody, items[1].OriginalContent)

	stale := &model.HealthReport{Status: model.HealthStatusHealthy}
	require.NoError(t, ts.reports.Set(context.Background(), cache.HealthReportKey, stale))

	refs := []model.DocumentRef{items[0].Ref(), items[1].Ref()}
	rr = ts.do(t, http.MethodPost, "/api/v1/approvals", ApprovalRequest{Documents: refs})
	assertStatusCode(t, rr, http.StatusOK)
	approval := decodeData[engine.ApprovalResult](t, rr)
	assert.Equal(t, 2, approval.PublishedCount)
	assert.Equal(t, model.StrategyGenerated, approval.StrategyStatus)

	rr = ts.do(t, http.MethodGet, "/api/v1/strategies/"+s.ID, nil)
	assertStatusCode(t, rr, http.StatusOK)
	assert.Equal(t, model.StrategyGenerated, decodeData[model.SeoStrategy](t, rr).Status)

	post, err := store.New(ts.db).GetPost(context.Background(), ts.post.ID)
	require.NoError(t, err)
	assert.Contains(t, post.Body, `href="/guias/regalos-empresariales"`)

	rr = ts.do(t, http.MethodGet, "/api/v1/reviews/"+s.ID, nil)
	assertStatusCode(t, rr, http.StatusOK)
	assert.Empty(t, decodeData[[]model.ReviewItem](t, rr))

	_, ok := ts.reports.Get(context.Background(), cache.HealthReportKey)
	assert.False(t, ok, "publishing a pillar drops the cached link report")

	rr = ts.do(t, http.MethodGet, "/api/v1/health/links?cached=1", nil)
	assertStatusCode(t, rr, http.StatusOK)
	report := decodeData[model.HealthReport](t, rr)
	assert.Equal(t, model.HealthStatusHealthy, report.Status)
	assert.Equal(t, 1, report.PillarsTotal)
}

func TestListStrategies(t *testing.T) {
	ts := newTestServer(t)
	ts.approvedStrategy(t)

	tests := []struct {
		query string
		code  int
		want  int
	}{
		{"", http.StatusOK, 1},
		{"?status=approved", http.StatusOK, 1},
		{"?status=proposed", http.StatusOK, 0},
		{"?status=archived", http.StatusUnprocessableEntity, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := ts.do(t, http.MethodGet, "/api/v1/strategies"+tt.query, nil)
			assertStatusCode(t, rr, tt.code)
			if tt.code == http.StatusOK {
				assert.Len(t, decodeData[[]model.SeoStrategy](t, rr), tt.want)
			}
		})
	}
}

func TestStrategyErrors(t *testing.T) {
	ts := newTestServer(t)
	s := ts.approvedStrategy(t)

	rr := ts.do(t, http.MethodPost, "/api/v1/strategies/"+s.ID+"/reject", nil)
	assertStatusCode(t, rr, http.StatusOK)

	rr = ts.do(t, http.MethodPost, "/api/v1/strategies/"+s.ID+"/approve", nil)
	assertStatusCode(t, rr, http.StatusConflict)
	resp := assertErrorResponse(t, rr, "invalid_strategy_state")
	assert.Equal(t, "rejected", resp.Error.Details["status"])
	assert.Equal(t, "approve", resp.Error.Details["operation"])

	rr = ts.do(t, http.MethodGet, "/api/v1/strategies/missing", nil)
	assertStatusCode(t, rr, http.StatusNotFound)
	assertErrorResponse(t, rr, "not_found")
}

func TestGenerateStrategiesErrors(t *testing.T) {
	tests := []struct {
		name string
		body any
		code int
		want string
	}{
		{"malformed", `{"topic":`, http.StatusBadRequest, "bad_request"},
		{"unknown field", `{"topic":"Agendas","color":"red"}`, http.StatusBadRequest, "bad_request"},
		{"empty body", nil, http.StatusBadRequest, "bad_request"},
		{"missing description", engine.GenerateInput{Topic: "Agendas"}, http.StatusUnprocessableEntity, "validation_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rr := ts.do(t, http.MethodPost, "/api/v1/strategies/generate", tt.body)
			assertStatusCode(t, rr, tt.code)
			assertErrorResponse(t, rr, tt.want)
			assert.Empty(t, ts.gen.Calls())
		})
	}
}

func TestGenerateStrategiesParseFailure(t *testing.T) {
	ts := newTestServer(t)
	gen := llm.NewStatic(map[string]string{"strategies": "Sin ideas."})
	logger := testutil.TestLoggerSilent()
	e := engine.New(store.NewContentRepository(ts.db), store.NewWorkflowStore(ts.db), gen, logger, engine.DefaultOptions())
	ts.router = NewRouter(NewHandler(e, store.New(ts.db), nil, logger), RouterConfig{})

	rr := ts.do(t, http.MethodPost, "/api/v1/strategies/generate", engine.GenerateInput{Topic: "Agendas", Description: "2026"})
	assertStatusCode(t, rr, http.StatusBadGateway)
	resp := assertErrorResponse(t, rr, "generation_parse_error")
	assert.True(t, resp.Error.Retryable)
	assert.Equal(t, "strategies", resp.Error.Details["stage"])
}

func TestBuildConflicts(t *testing.T) {
	ts := newTestServer(t)
	s := ts.approvedStrategy(t)
	path := "/api/v1/strategies/" + s.ID + "/builds"

	rr := ts.do(t, http.MethodPost, path, BuildRequest{SelectedProducts: []string{ts.pen.ID}})
	assertStatusCode(t, rr, http.StatusCreated)
	first := decodeData[engine.BuildResult](t, rr)

	rr = ts.do(t, http.MethodPost, path, BuildRequest{SelectedProducts: []string{ts.pen.ID}})
	assertStatusCode(t, rr, http.StatusConflict)
	assertErrorResponse(t, rr, "build_in_progress")

	rr = ts.do(t, http.MethodPost, path, BuildRequest{SelectedProducts: []string{ts.notebook.ID}, Replace: true})
	assertStatusCode(t, rr, http.StatusCreated)
	second := decodeData[engine.BuildResult](t, rr)
	assert.True(t, second.Replaced)

	rr = ts.do(t, http.MethodDelete, "/api/v1/builds/"+first.BuildID, nil)
	assertStatusCode(t, rr, http.StatusNotFound)

	rr = ts.do(t, http.MethodDelete, "/api/v1/builds/"+second.BuildID, nil)
	assertStatusCode(t, rr, http.StatusNoContent)
}

func TestApproveChangesStale(t *testing.T) {
	ts := newTestServer(t)
	s := ts.approvedStrategy(t)

	rr := ts.do(t, http.MethodPost, "/api/v1/strategies/"+s.ID+"/builds", BuildRequest{
		SelectedPosts:    []string{ts.post.ID},
		SelectedProducts: []string{ts.pen.ID},
	})
	assertStatusCode(t, rr, http.StatusCreated)

	rr = ts.do(t, http.MethodGet, "/api/v1/reviews/"+s.ID, nil)
	assertStatusCode(t, rr, http.StatusOK)
	var refs []model.DocumentRef
	for _, it := range decodeData[[]model.ReviewItem](t, rr) {
		refs = append(refs, it.Ref())
	}

	require.NoError(t, store.New(ts.db).UpdatePostBody(context.Background(), ts.post.ID, "<p>Editado a mano.</p>"))

	postRef := model.DocumentRef{ID: ts.post.ID, Type: model.DocumentPost}
	rr = ts.do(t, http.MethodPost, "/api/v1/approvals", ApprovalRequest{Documents: refs})
	assertStatusCode(t, rr, http.StatusConflict)
	resp := assertErrorResponse(t, rr, "stale_content")
	require.Len(t, resp.Error.Conflicts, 1)
	assert.Equal(t, postRef, resp.Error.Conflicts[0].Ref)

	rr = ts.do(t, http.MethodPost, "/api/v1/approvals", ApprovalRequest{})
	assertStatusCode(t, rr, http.StatusUnprocessableEntity)
}

func TestCheckCannibalization(t *testing.T) {
	ts := newTestServer(t)
	testutil.SeedPillarPage(t, ts.db, "regalos-empresariales", "Regalos Empresariales", model.PillarStatusPublished)

	rr := ts.do(t, http.MethodPost, "/api/v1/cannibalization", CannibalizationRequest{Topic: "Regalos Empresariales"})
	assertStatusCode(t, rr, http.StatusOK)
	report := decodeData[engine.CannibalizationReport](t, rr)
	assert.True(t, report.Verified)
	assert.True(t, report.HasConflict)

	rr = ts.do(t, http.MethodPost, "/api/v1/cannibalization", CannibalizationRequest{Topic: "  "})
	assertStatusCode(t, rr, http.StatusUnprocessableEntity)
}

func TestCheckCannibalizationUnverified(t *testing.T) {
	stub := &stubEngine{
		cannibalization: &engine.CannibalizationReport{Verified: false, Conflicts: []string{}},
		err:             engine.ErrRepositoryUnavailable,
	}
	router := NewRouter(NewHandler(stub, nil, nil, testutil.TestLoggerSilent()), RouterConfig{})
	ts := &testServer{router: router}

	rr := ts.do(t, http.MethodPost, "/api/v1/cannibalization", CannibalizationRequest{Topic: "Agendas"})
	assertStatusCode(t, rr, http.StatusOK)
	assert.False(t, decodeData[engine.CannibalizationReport](t, rr).Verified)
}

func TestLinkHealthCached(t *testing.T) {
	ts := newTestServer(t)
	testutil.SeedPillarPage(t, ts.db, "regalos", "Regalos", model.PillarStatusPublished, "producto-borrado")

	rr := ts.do(t, http.MethodGet, "/api/v1/health/links?cached=1", nil)
	assertStatusCode(t, rr, http.StatusOK)
	first := decodeData[model.HealthReport](t, rr)
	assert.Equal(t, model.HealthStatusWarning, first.Status)

	stored, ok := ts.reports.Get(context.Background(), cache.HealthReportKey)
	require.True(t, ok, "a computed report is cached")
	assert.Len(t, stored.Issues, 1)

	// A new broken link is only visible once a fresh check runs.
	testutil.SeedPillarPage(t, ts.db, "agendas", "Agendas", model.PillarStatusPublished, "otra-borrada")

	rr = ts.do(t, http.MethodGet, "/api/v1/health/links?cached=true", nil)
	assert.Len(t, decodeData[model.HealthReport](t, rr).Issues, 1)

	rr = ts.do(t, http.MethodGet, "/api/v1/health/links", nil)
	assert.Len(t, decodeData[model.HealthReport](t, rr).Issues, 2)

	stored, ok = ts.reports.Get(context.Background(), cache.HealthReportKey)
	require.True(t, ok)
	assert.Len(t, stored.Issues, 2, "a fresh check replaces the cached report")
}

func TestListEvents(t *testing.T) {
	ts := newTestServer(t)
	q := store.New(ts.db)
	for _, e := range []store.CreateEventParams{
		{Level: model.EventLevelInfo, Category: model.EventCategoryBuild, Message: "build saved"},
		{Level: model.EventLevelWarning, Category: model.EventCategoryApproval, Message: "stale content"},
		{Level: model.EventLevelInfo, Category: model.EventCategoryBuild, Message: "build rejected"},
	} {
		_, err := q.CreateEvent(context.Background(), e)
		require.NoError(t, err)
	}

	tests := []struct {
		query string
		code  int
		want  []string
	}{
		{"", http.StatusOK, []string{"build rejected", "stale content", "build saved"}},
		{"?category=build", http.StatusOK, []string{"build rejected", "build saved"}},
		{"?level=warning", http.StatusOK, []string{"stale content"}},
		{"?limit=1&offset=1", http.StatusOK, []string{"stale content"}},
		{"?limit=abc", http.StatusBadRequest, nil},
		{"?offset=-1", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := ts.do(t, http.MethodGet, "/api/v1/events"+tt.query, nil)
			assertStatusCode(t, rr, tt.code)
			if tt.code != http.StatusOK {
				return
			}
			var got []string
			for _, e := range decodeData[[]model.Event](t, rr) {
				got = append(got, e.Message)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRouting(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/api/v1/nope", nil)
	assertStatusCode(t, rr, http.StatusNotFound)
	assertErrorResponse(t, rr, "not_found")

	rr = ts.do(t, http.MethodPut, "/api/v1/status", nil)
	assertStatusCode(t, rr, http.StatusMethodNotAllowed)
	assertErrorResponse(t, rr, "method_not_allowed")

	rr = ts.do(t, http.MethodGet, "/api/v1/status/", nil)
	assertStatusCode(t, rr, http.StatusOK)
}

func TestGenerationRateLimit(t *testing.T) {
	ts := newTestServer(t)
	logger := testutil.TestLoggerSilent()
	e := engine.New(store.NewContentRepository(ts.db), store.NewWorkflowStore(ts.db), ts.gen, logger, engine.DefaultOptions())
	ts.router = NewRouter(NewHandler(e, store.New(ts.db), nil, logger), RouterConfig{GenerateRPS: 0.01, GenerateBurst: 1})

	in := engine.GenerateInput{Topic: "Regalos Empresariales", Description: "Regalos"}
	assertStatusCode(t, ts.do(t, http.MethodPost, "/api/v1/strategies/generate", in), http.StatusCreated)

	rr := ts.do(t, http.MethodPost, "/api/v1/strategies/generate", in)
	assertStatusCode(t, rr, http.StatusTooManyRequests)
	assert.True(t, strings.Contains(rr.Body.String(), "rate_limit_exceeded"))

	// Reads are not limited.
	assertStatusCode(t, ts.do(t, http.MethodGet, "/api/v1/strategies", nil), http.StatusOK)
}

func TestUsage(t *testing.T) {
	ts := newTestServer(t)
	q := store.New(ts.db)
	now := time.Now().UTC()
	for _, u := range []llm.Usage{
		{Provider: "openai", Model: "gpt-4o-mini", Operation: "strategies", PromptTokens: 100, CompletionTokens: 50, CreatedAt: now.Add(-time.Hour)},
		{Provider: "openai", Model: "gpt-4o-mini", Operation: "pillar", PromptTokens: 300, CompletionTokens: 200, CreatedAt: now.Add(-72 * time.Hour)},
	} {
		require.NoError(t, q.CreateUsage(context.Background(), u))
	}

	rr := ts.do(t, http.MethodGet, "/api/v1/usage", nil)
	assertStatusCode(t, rr, http.StatusOK)
	got := decodeData[UsageResponse](t, rr)
	assert.Equal(t, int64(1), got.Usage.Calls)
	assert.Equal(t, int64(100), got.Usage.PromptTokens)

	rr = ts.do(t, http.MethodGet, "/api/v1/usage?since=168h", nil)
	assertStatusCode(t, rr, http.StatusOK)
	assert.Equal(t, int64(2), decodeData[UsageResponse](t, rr).Usage.Calls)

	rr = ts.do(t, http.MethodGet, "/api/v1/usage?since=yesterday", nil)
	assertStatusCode(t, rr, http.StatusBadRequest)
}
