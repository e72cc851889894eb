package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"MatchPulse/internal/model"
	"MatchPulse/internal/queue"
	"MatchPulse/internal/repository"
	"MatchPulse/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQuerier struct {
	lastFilter repository.FixtureFilter
	lastPage   int
	views      map[uint64]*model.PredictionView
	requested  []queue.Item
	err        error
}

func (s *stubQuerier) ListFixtures(_ context.Context, filter repository.FixtureFilter, page, pageSize int) (*service.FixtureListResult, error) {
	s.lastFilter = filter
	s.lastPage = page
	if s.err != nil {
		return nil, s.err
	}
	return &service.FixtureListResult{Page: page, PageSize: pageSize, Total: 1, Items: []service.FixtureSummary{{ID: 1001, HomeTeam: "Arsenal", AwayTeam: "Chelsea"}}}, nil
}

func (s *stubQuerier) GetFixture(_ context.Context, id uint64) (*service.FixtureDetail, error) {
	view, ok := s.views[id]
	if !ok {
		return nil, service.ErrFixtureNotFound
	}
	return &service.FixtureDetail{FixtureSummary: service.FixtureSummary{ID: id}, Prediction: view}, nil
}

func (s *stubQuerier) GetPrediction(_ context.Context, id uint64) (*model.PredictionView, error) {
	view, ok := s.views[id]
	if !ok {
		return nil, service.ErrFixtureNotFound
	}
	return view, nil
}

func (s *stubQuerier) RequestGeneration(_ context.Context, id uint64, p queue.Priority) (bool, error) {
	if _, ok := s.views[id]; !ok {
		return false, service.ErrFixtureNotFound
	}
	s.requested = append(s.requested, queue.Item{FixtureID: id, Priority: p})
	return len(s.requested) == 1, nil
}

func newTestRouter(t *testing.T, q *stubQuerier, checks map[string]Check) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "matchpulse_test_total", Help: "test"}))
	return NewRouter(NewFixtureHandler(q, logger), NewHealthHandler(checks, logger), reg)
}

func do(r http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestListFixtures_ParsesFilter(t *testing.T) {
	q := &stubQuerier{}
	r := newTestRouter(t, q, nil)

	w := do(r, http.MethodGet, "/fixtures?from=2026-03-10T00:00:00Z&league_id=39&status=NS&page=2")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, q.lastFilter.FromTime)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), *q.lastFilter.FromTime)
	assert.Nil(t, q.lastFilter.ToTime)
	assert.Equal(t, uint64(39), q.lastFilter.LeagueID)
	assert.Equal(t, "NS", q.lastFilter.Status)
	assert.Equal(t, 2, q.lastPage)

	var body service.FixtureListResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Arsenal", body.Items[0].HomeTeam)
}

func TestListFixtures_BadInput(t *testing.T) {
	r := newTestRouter(t, &stubQuerier{}, nil)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/fixtures?from=yesterday").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/fixtures?league_id=abc").Code)

	r = newTestRouter(t, &stubQuerier{err: errors.New("db down")}, nil)
	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodGet, "/fixtures").Code)
}

func TestGetPrediction_PendingStatus(t *testing.T) {
	q := &stubQuerier{views: map[uint64]*model.PredictionView{1001: {FixtureID: 1001, Status: model.StatusPending}}}
	r := newTestRouter(t, q, nil)

	w := do(r, http.MethodGet, "/predictions/1001")
	require.Equal(t, http.StatusOK, w.Code)
	var view map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "pending", view["status"])
	assert.NotContains(t, view, "current")

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/predictions/42").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/predictions/abc").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/fixtures/42").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/fixtures/1001").Code)
}

func TestGeneratePrediction(t *testing.T) {
	q := &stubQuerier{views: map[uint64]*model.PredictionView{1001: {FixtureID: 1001, Status: model.StatusNone}}}
	r := newTestRouter(t, q, nil)

	w := do(r, http.MethodPost, "/predictions/1001/generate?priority=high")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"fixture_id":1001,"priority":"high","queued":true}`, w.Body.String())

	w = do(r, http.MethodPost, "/predictions/1001/generate")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"fixture_id":1001,"priority":"normal","queued":false}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/predictions/1001/generate?priority=urgent").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/predictions/7/generate").Code)
	assert.Equal(t, []queue.Item{{FixtureID: 1001, Priority: queue.High}, {FixtureID: 1001, Priority: queue.Normal}}, q.requested)
}

func TestHealthAndReady(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	r := newTestRouter(t, &stubQuerier{}, map[string]Check{"postgres": ok, "redis": ok})
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/health").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/ready").Code)

	r = newTestRouter(t, &stubQuerier{}, map[string]Check{"postgres": ok, "redis": down})
	w := do(r, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"checks":{"postgres":"ok","redis":"connection refused"}}`, w.Body.String())
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/health").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, &stubQuerier{}, nil)
	w := do(r, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "matchpulse_test_total 0")
}

func TestOpsRouterServesWorkerMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	reg := prometheus.NewRegistry()
	entries := prometheus.NewCounter(prometheus.CounterOpts{Name: "matchpulse_worker_entries_total", Help: "test"})
	reg.MustRegister(entries)
	entries.Add(3)

	r := NewOpsRouter(NewHealthHandler(map[string]Check{"redis": func(context.Context) error { return nil }}, logger), reg)
	w := do(r, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "matchpulse_worker_entries_total 3")
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/ready").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/fixtures").Code)
}
