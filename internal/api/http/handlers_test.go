package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saltfish/allocdesk/internal/domain"
	"github.com/saltfish/allocdesk/internal/session"
)

// stubAllocator serves one dynamic strategy. Calculations block until release is closed.
type stubAllocator struct {
	available bool
	release   chan struct{}
}

func (s *stubAllocator) ProbeAvailability(ctx context.Context) bool { return s.available }

func (s *stubAllocator) ListStrategies(ctx context.Context) (map[string]domain.StrategyDefinition, error) {
	return map[string]domain.StrategyDefinition{
		"paa": {
			ID:   "paa",
			Name: "Protective Asset Allocation",
			Kind: domain.StrategyKindDynamic,
			Parameters: []domain.ParameterSpec{
				{Name: "etfs", Type: domain.ParameterTypeTickerList, Default: "SPY,QQQ"},
			},
		},
	}, nil
}

func (s *stubAllocator) ComputeAllocation(ctx context.Context, strategyID string, total float64, payload domain.ParameterPayload) (*domain.RemoteAllocation, error) {
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &domain.RemoteAllocation{
		Strategy:       "Protective Asset Allocation",
		Allocation:     domain.AssetAmounts{{Asset: "SPY", Amount: total * 0.75}, {Asset: "QQQ", Amount: total * 0.25}},
		MomentumScores: map[string]float64{"SPY": 0.1, "QQQ": 0.3},
		Date:           "2024-05-31",
	}, nil
}

func (s *stubAllocator) GetPerformance(ctx context.Context, strategyID string, force bool) (*domain.PerformanceSnapshot, error) {
	return &domain.PerformanceSnapshot{
		StrategyID: strategyID,
		Metrics:    map[string]float64{domain.MetricCAGR: 0.08},
	}, nil
}

type testAPI struct {
	t        *testing.T
	handler  http.Handler
	sessions *session.Manager
}

func newTestAPI(t *testing.T, client session.Allocator) *testAPI {
	t.Helper()
	deps := session.Deps{Flagship: "paa", Logger: zap.NewNop()}
	if client != nil {
		deps.Client = client
	}
	mgr := session.NewManager(deps, 2, zap.NewNop())
	t.Cleanup(mgr.CloseAll)

	srv := NewServer(":0", mgr, nil, nil, zap.NewNop())
	return &testAPI{t: t, handler: srv.Routes(), sessions: mgr}
}

func (a *testAPI) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) create() uuid.UUID {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(a.t, http.StatusCreated, rec.Code)

	var resp CreateSessionResponse
	require.NoError(a.t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.SessionID
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) session.State {
	t.Helper()
	var st session.State
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	return st
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&e))
	return e
}

func sessionPath(id uuid.UUID, action string) string {
	if action == "" {
		return sessionsPrefix + id.String()
	}
	return sessionsPrefix + id.String() + "/" + action
}

func TestCreateSession_StaticOnly(t *testing.T) {
	api := newTestAPI(t, nil)
	id := api.create()

	rec := api.do(http.MethodGet, sessionPath(id, ""), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decodeState(t, rec)
	assert.Equal(t, id, st.SessionID)
	assert.False(t, st.BackendAvailable)
}

func TestCreateSession_MethodNotAllowed(t *testing.T) {
	api := newTestAPI(t, nil)
	rec := api.do(http.MethodGet, "/api/v1/sessions", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCreateSession_Limit(t *testing.T) {
	api := newTestAPI(t, nil)
	api.create()
	api.create()

	rec := api.do(http.MethodPost, "/api/v1/sessions", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSession_BadAndUnknownIDs(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(http.MethodGet, sessionsPrefix+"not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodGet, sessionPath(uuid.New(), ""), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodPost, sessionPath(uuid.New(), "reset"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSession_UnknownActionAndWrongMethod(t *testing.T) {
	api := newTestAPI(t, nil)
	id := api.create()

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, sessionPath(id, "nope"), nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, api.do(http.MethodGet, sessionPath(id, "calculate"), nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, api.do(http.MethodPost, sessionPath(id, ""), nil).Code)
}

func TestStaticCalculationFlow(t *testing.T) {
	api := newTestAPI(t, nil)
	id := api.create()

	rec := api.do(http.MethodPost, sessionPath(id, "select"), SelectRequest{StrategyID: "conservative"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "conservative", decodeState(t, rec).SelectedStrategyID)

	rec = api.do(http.MethodPut, sessionPath(id, "amount"), AmountRequest{Amount: "10000"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodPost, sessionPath(id, "calculate"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decodeState(t, rec)
	require.NotNil(t, st.Result)
	assert.Equal(t, domain.SessionPhaseReady, st.Phase)
	assert.Equal(t, "Bonds", st.Result.Breakdown[0].Asset)
	assert.InDelta(t, 6000, st.Result.Breakdown[0].Amount, 0.001)

	rec = api.do(http.MethodGet, sessionPath(id, "views"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var views ViewsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&views))
	assert.Len(t, views.Chart, 4)
	assert.Len(t, views.Table, 4)
	assert.Equal(t, "$6,000.00", views.Table[0].AmountDisplay)
	assert.Empty(t, views.MomentumBars)
	assert.Nil(t, views.Performance)

	rec = api.do(http.MethodPost, sessionPath(id, "reset"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st = decodeState(t, rec)
	assert.Nil(t, st.Result)
	assert.Empty(t, st.Amount)
	assert.Equal(t, "conservative", st.SelectedStrategyID)
}

func TestCalculate_InvalidAmount(t *testing.T) {
	api := newTestAPI(t, nil)
	id := api.create()
	api.do(http.MethodPost, sessionPath(id, "select"), SelectRequest{StrategyID: "balanced"})
	api.do(http.MethodPut, sessionPath(id, "amount"), AmountRequest{Amount: "abc"})

	rec := api.do(http.MethodPost, sessionPath(id, "calculate"), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, session.MsgInvalidAmount, decodeError(t, rec).Message)
}

func TestSelect_Validation(t *testing.T) {
	api := newTestAPI(t, nil)
	id := api.create()

	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, sessionPath(id, "select"), SelectRequest{}).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPost, sessionPath(id, "select"), SelectRequest{StrategyID: "ghost"}).Code)
}

func TestRefreshPerformance_StaticRejected(t *testing.T) {
	api := newTestAPI(t, nil)
	id := api.create()
	api.do(http.MethodPost, sessionPath(id, "select"), SelectRequest{StrategyID: "aggressive"})

	rec := api.do(http.MethodPost, sessionPath(id, "performance/refresh"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDynamicCalculationFlow(t *testing.T) {
	stub := &stubAllocator{available: true, release: make(chan struct{})}
	api := newTestAPI(t, stub)
	id := api.create()

	rec := api.do(http.MethodGet, sessionPath(id, ""), nil)
	st := decodeState(t, rec)
	require.True(t, st.BackendAvailable)
	require.Equal(t, "paa", st.SelectedStrategyID)

	rec = api.do(http.MethodGet, sessionPath(id, "strategies"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Strategies []StrategyView `json:"strategies"`
		Total      int            `json:"total"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listing))
	assert.Equal(t, 4, listing.Total)

	api.do(http.MethodPut, sessionPath(id, "params"), ParamsRequest{Values: map[string]string{"etfs": "SPY, QQQ"}})
	api.do(http.MethodPut, sessionPath(id, "amount"), AmountRequest{Amount: "1000"})

	rec = api.do(http.MethodPost, sessionPath(id, "calculate"), nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, decodeState(t, rec).Loading)

	rec = api.do(http.MethodPost, sessionPath(id, "calculate"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(stub.release)
	require.Eventually(t, func() bool {
		st := decodeState(t, api.do(http.MethodGet, sessionPath(id, ""), nil))
		return st.Result != nil && !st.Loading && st.Performance() != nil
	}, 2*time.Second, 10*time.Millisecond)

	rec = api.do(http.MethodGet, sessionPath(id, "views"), nil)
	var views ViewsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&views))
	require.Len(t, views.Table, 2)
	assert.Equal(t, "QQQ", views.Table[0].Asset, "ordered by momentum")
	require.Len(t, views.MomentumBars, 2)
	assert.Equal(t, "QQQ", views.MomentumBars[0].Asset)
	assert.NotEmpty(t, views.Badges)
	require.NotNil(t, views.Performance)
	assert.True(t, views.Performance.HasMetrics)
}

func TestDeleteSession(t *testing.T) {
	api := newTestAPI(t, nil)
	id := api.create()

	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, sessionPath(id, ""), nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, sessionPath(id, ""), nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodDelete, sessionPath(id, ""), nil).Code)
}

type staticAvailability bool

func (a staticAvailability) Available() bool { return bool(a) }

func TestHealthEndpoints(t *testing.T) {
	mgr := session.NewManager(session.Deps{Logger: zap.NewNop()}, 0, zap.NewNop())
	t.Cleanup(mgr.CloseAll)

	down := NewServer(":0", mgr, nil, staticAvailability(false), zap.NewNop()).Routes()
	up := NewServer(":0", mgr, NewHub(zap.NewNop()), staticAvailability(true), zap.NewNop()).Routes()

	get := func(h http.Handler, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	var health HealthResponse
	rec := get(down, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "unavailable", health.Services["allocation_service"])

	rec = get(up, "/health")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)

	assert.Equal(t, http.StatusOK, get(down, "/health/live").Code)

	var ready map[string]string
	rec = get(down, "/health/ready")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ready))
	assert.Equal(t, "static-only", ready["mode"])

	var metrics MetricsResponse
	rec = get(up, "/metrics")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&metrics))
	assert.True(t, metrics.BackendAvailable)
	assert.Equal(t, "full", metrics.Mode)
	assert.Equal(t, 0, metrics.Sessions)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.NewNotFoundError("session", "x"), http.StatusNotFound},
		{domain.NewValidationError("amount", "bad"), http.StatusBadRequest},
		{domain.ErrCalculationInFlight, http.StatusConflict},
		{session.ErrClosed, http.StatusGone},
		{domain.ErrSessionLimit, http.StatusServiceUnavailable},
		{&domain.NetworkError{Op: "calculate", Err: domain.ErrBackendUnavailable}, http.StatusServiceUnavailable},
		{&domain.ServiceError{Op: "calculate", Message: "boom"}, http.StatusBadGateway},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
