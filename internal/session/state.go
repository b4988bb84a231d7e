package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/saltfish/allocdesk/internal/domain"
)

// Error kinds reported in State.ErrorKind.
const (
	ErrorKindValidation = "validation"
	ErrorKindNetwork    = "network"
	ErrorKindService    = "service"
	ErrorKindInternal   = "internal"
)

// State is a read-only copy of a session's state.
type State struct {
	SessionID          uuid.UUID                              `json:"session_id"`
	Phase              domain.SessionPhase                    `json:"phase"`
	SelectedStrategyID string                                 `json:"selected_strategy_id,omitempty"`
	Amount             string                                 `json:"amount"`
	ParamValues        domain.RawParams                       `json:"param_values"`
	Result             *domain.AllocationResult               `json:"result,omitempty"`
	Loading            bool                                   `json:"loading"`
	Error              string                                 `json:"error,omitempty"`
	ErrorKind          string                                 `json:"error_kind,omitempty"`
	BackendAvailable   bool                                   `json:"backend_available"`
	PerformancePhase   domain.PerformancePhase                `json:"performance_phase"`
	PerformanceCache   map[string]*domain.PerformanceSnapshot `json:"performance_cache"`
	PerformanceLoading bool                                   `json:"performance_loading"`
	PerformanceError   string                                 `json:"performance_error,omitempty"`
	LastActive         time.Time                              `json:"last_active"`
}

// Performance returns the cached snapshot for the selected strategy.
func (s *State) Performance() *domain.PerformanceSnapshot {
	if s.SelectedStrategyID == "" {
		return nil
	}
	return s.PerformanceCache[s.SelectedStrategyID]
}

func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case domain.IsValidation(err):
		return ErrorKindValidation
	case domain.IsNetwork(err):
		return ErrorKindNetwork
	case domain.IsService(err):
		return ErrorKindService
	default:
		return ErrorKindInternal
	}
}
