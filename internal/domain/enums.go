// Package domain contains the core domain models for allocdesk.
package domain

// StrategyKind tells whether a strategy is computed locally or by the remote service.
type StrategyKind string

const (
	StrategyKindStatic  StrategyKind = "static"
	StrategyKindDynamic StrategyKind = "dynamic"
)

// IsValid returns true if the kind is a valid StrategyKind.
func (k StrategyKind) IsValid() bool {
	switch k {
	case StrategyKindStatic, StrategyKindDynamic:
		return true
	default:
		return false
	}
}

// String returns the string representation of the kind.
func (k StrategyKind) String() string {
	return string(k)
}

// ParameterType is the normalization class of a strategy parameter.
type ParameterType string

const (
	ParameterTypeNumber     ParameterType = "number"
	ParameterTypeTickerList ParameterType = "ticker_list"
	ParameterTypeText       ParameterType = "text"
)

// IsValid returns true if the type is a valid ParameterType.
func (t ParameterType) IsValid() bool {
	switch t {
	case ParameterTypeNumber, ParameterTypeTickerList, ParameterTypeText:
		return true
	default:
		return false
	}
}

// String returns the string representation of the type.
func (t ParameterType) String() string {
	return string(t)
}

// ParameterTypeFromString converts a string to ParameterType.
// Unknown values fall back to text.
func ParameterTypeFromString(s string) ParameterType {
	t := ParameterType(s)
	if t.IsValid() {
		return t
	}
	return ParameterTypeText
}

// SessionPhase is the main calculation state of a session.
type SessionPhase string

const (
	SessionPhaseIdle             SessionPhase = "idle"
	SessionPhaseStrategySelected SessionPhase = "strategy_selected"
	SessionPhaseCalculating      SessionPhase = "calculating"
	SessionPhaseReady            SessionPhase = "ready"
	SessionPhaseFailed           SessionPhase = "failed"
)

// IsValid returns true if the phase is a valid SessionPhase.
func (p SessionPhase) IsValid() bool {
	switch p {
	case SessionPhaseIdle, SessionPhaseStrategySelected, SessionPhaseCalculating,
		SessionPhaseReady, SessionPhaseFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the phase.
func (p SessionPhase) String() string {
	return string(p)
}

// PerformancePhase is the state of the performance sub-machine.
type PerformancePhase string

const (
	PerformancePhaseIdle    PerformancePhase = "idle"
	PerformancePhaseLoading PerformancePhase = "loading"
	PerformancePhaseReady   PerformancePhase = "ready"
	PerformancePhaseFailed  PerformancePhase = "failed"
)

// String returns the string representation of the phase.
func (p PerformancePhase) String() string {
	return string(p)
}
