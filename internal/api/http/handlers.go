package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saltfish/allocdesk/internal/domain"
	"github.com/saltfish/allocdesk/internal/params"
	"github.com/saltfish/allocdesk/internal/projection"
	"github.com/saltfish/allocdesk/internal/session"
)

const sessionsPrefix = "/api/v1/sessions/"

// Handler provides REST API handlers.
type Handler struct {
	sessions *session.Manager
	logger   *zap.Logger
}

// NewHandler creates a new Handler instance.
func NewHandler(sessions *session.Manager, logger *zap.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		logger:   logger,
	}
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err error, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   err.Error(),
		Message: message,
	})
}

// writeDomainError maps a domain error to its status code.
func writeDomainError(w http.ResponseWriter, err error, fallback string) {
	writeError(w, statusFor(err), err, domain.UserMessage(err, fallback))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	case errors.Is(err, domain.ErrSessionLimit), errors.Is(err, domain.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case domain.IsService(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// parseUUID parses UUID from string.
func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, errors.New("empty UUID")
	}
	return uuid.Parse(s)
}

// splitPath returns the id and the remaining action of /api/v1/sessions/:id/action.
func splitPath(path, prefix string) (string, string) {
	path = strings.TrimPrefix(path, prefix)
	path = strings.Trim(path, "/")
	id, action, _ := strings.Cut(path, "/")
	return id, action
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"), "")
}

// ========================================
// Session Handlers
// ========================================

// CreateSessionResponse is returned by POST /api/v1/sessions.
type CreateSessionResponse struct {
	SessionID uuid.UUID     `json:"session_id"`
	State     session.State `json:"state"`
}

// HandleCreateSession starts a new session.
// POST /api/v1/sessions
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	m, err := h.sessions.Create(r.Context())
	if err != nil {
		h.logger.Warn("Failed to create session", zap.Error(err))
		writeDomainError(w, err, "failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, CreateSessionResponse{
		SessionID: m.ID(),
		State:     m.State(),
	})
}

// HandleSession dispatches /api/v1/sessions/:id and its actions.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	idStr, action := splitPath(r.URL.Path, sessionsPrefix)

	id, err := parseUUID(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err, "invalid session id")
		return
	}

	if action == "" {
		switch r.Method {
		case http.MethodGet:
			h.handleGetSession(w, id)
		case http.MethodDelete:
			h.handleDeleteSession(w, id)
		default:
			methodNotAllowed(w)
		}
		return
	}

	m, err := h.sessions.Get(id)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}

	type route struct {
		method string
		fn     func(http.ResponseWriter, *http.Request, *session.Machine)
	}
	routes := map[string]route{
		"strategies":          {http.MethodGet, h.handleListStrategies},
		"select":              {http.MethodPost, h.handleSelect},
		"amount":              {http.MethodPut, h.handleSetAmount},
		"params":              {http.MethodPut, h.handleSetParams},
		"calculate":           {http.MethodPost, h.handleCalculate},
		"reset":               {http.MethodPost, h.handleReset},
		"performance/refresh": {http.MethodPost, h.handleRefreshPerformance},
		"views":               {http.MethodGet, h.handleViews},
	}

	rt, ok := routes[action]
	if !ok {
		writeError(w, http.StatusNotFound, domain.ErrNotFound, "unknown session action")
		return
	}
	if r.Method != rt.method {
		methodNotAllowed(w)
		return
	}
	rt.fn(w, r, m)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, id uuid.UUID) {
	m, err := h.sessions.Get(id)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, m.State())
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, id uuid.UUID) {
	if err := h.sessions.Close(id); err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StrategyView is a catalog entry with its configuration panel.
type StrategyView struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Kind        domain.StrategyKind    `json:"kind"`
	Allocation  []domain.AssetWeight   `json:"allocation,omitempty"`
	Parameters  []domain.ParameterSpec `json:"parameters,omitempty"`
	Panel       params.PanelShape      `json:"panel"`
}

// GET /api/v1/sessions/:id/strategies
func (h *Handler) handleListStrategies(w http.ResponseWriter, r *http.Request, m *session.Machine) {
	defs := m.Strategies()
	out := make([]StrategyView, 0, len(defs))
	for _, def := range defs {
		panel, err := m.Panel(def.ID)
		if err != nil {
			continue
		}
		out = append(out, StrategyView{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			Kind:        def.Kind,
			Allocation:  def.Allocation,
			Parameters:  def.Parameters,
			Panel:       panel,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"strategies": out,
		"total":      len(out),
	})
}

// SelectRequest is the body of POST /api/v1/sessions/:id/select.
type SelectRequest struct {
	StrategyID string `json:"strategy_id"`
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request, m *session.Machine) {
	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err, "invalid request body")
		return
	}
	if req.StrategyID == "" {
		writeError(w, http.StatusBadRequest, domain.ErrInvalidInput, session.MsgSelectStrategy)
		return
	}
	if err := m.Select(req.StrategyID); err != nil {
		writeDomainError(w, err, "failed to select strategy")
		return
	}
	writeJSON(w, http.StatusOK, m.State())
}

// AmountRequest is the body of PUT /api/v1/sessions/:id/amount.
type AmountRequest struct {
	Amount string `json:"amount"`
}

func (h *Handler) handleSetAmount(w http.ResponseWriter, r *http.Request, m *session.Machine) {
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err, "invalid request body")
		return
	}
	if err := m.SetAmount(req.Amount); err != nil {
		writeDomainError(w, err, "failed to set amount")
		return
	}
	writeJSON(w, http.StatusOK, m.State())
}

// ParamsRequest is the body of PUT /api/v1/sessions/:id/params.
type ParamsRequest struct {
	Values map[string]string `json:"values"`
}

func (h *Handler) handleSetParams(w http.ResponseWriter, r *http.Request, m *session.Machine) {
	var req ParamsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err, "invalid request body")
		return
	}
	if err := m.SetParams(req.Values); err != nil {
		writeDomainError(w, err, "failed to set parameters")
		return
	}
	writeJSON(w, http.StatusOK, m.State())
}

// Static results are answered with 200; remote calculations with 202 while loading.
func (h *Handler) handleCalculate(w http.ResponseWriter, r *http.Request, m *session.Machine) {
	pending, err := m.Calculate()
	if err != nil {
		writeDomainError(w, err, domain.MsgCalculateFailed)
		return
	}

	status := http.StatusAccepted
	select {
	case <-pending.Done():
		status = http.StatusOK
	default:
	}
	writeJSON(w, status, m.State())
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request, m *session.Machine) {
	if err := m.Reset(); err != nil {
		writeDomainError(w, err, "failed to reset session")
		return
	}
	writeJSON(w, http.StatusOK, m.State())
}

func (h *Handler) handleRefreshPerformance(w http.ResponseWriter, r *http.Request, m *session.Machine) {
	if _, err := m.RefreshPerformance(); err != nil {
		writeDomainError(w, err, domain.MsgFetchPerformanceFailed)
		return
	}
	writeJSON(w, http.StatusAccepted, m.State())
}

// ViewsResponse holds the chart and table projections of the current session.
type ViewsResponse struct {
	Chart          []projection.ChartSlice        `json:"chart"`
	Legend         []projection.ChartSlice        `json:"legend"`
	LegendOverflow int                            `json:"legend_overflow"`
	Table          []projection.TableRow          `json:"table"`
	MomentumBars   []projection.MomentumBar       `json:"momentum_bars"`
	Badges         []projection.Badge             `json:"badges"`
	Performance    *projection.PerformanceSummary `json:"performance,omitempty"`
}

// GET /api/v1/sessions/:id/views
func (h *Handler) handleViews(w http.ResponseWriter, r *http.Request, m *session.Machine) {
	st := m.State()
	writeJSON(w, http.StatusOK, buildViews(&st))
}

func buildViews(st *session.State) ViewsResponse {
	chart := projection.ToChartSeries(st.Result)
	legend, overflow := projection.Legend(chart, projection.DefaultLegendSize)

	var scores map[string]float64
	if st.Result != nil {
		scores = st.Result.MomentumScores()
	}

	views := ViewsResponse{
		Chart:          chart,
		Legend:         legend,
		LegendOverflow: overflow,
		Table:          projection.ToTableRows(st.Result, nil),
		MomentumBars:   projection.ToMomentumBars(scores, projection.DefaultMaxBars),
		Badges:         projection.ToMetadataBadges(st.Result),
	}
	if snap := st.Performance(); snap != nil {
		sum := projection.ToPerformanceSummary(snap)
		views.Performance = &sum
	}
	return views
}
