package remote

import (
	"bytes"
	"encoding/json"

	"github.com/saltfish/allocdesk/internal/domain"
)

type wireParameter struct {
	Name        string      `json:"name"`
	Label       string      `json:"label"`
	Type        string      `json:"type"`
	Default     interface{} `json:"default"`
	Min         *float64    `json:"min"`
	Max         *float64    `json:"max"`
	Description string      `json:"description"`
}

type wireStrategy struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []wireParameter `json:"parameters"`
}

func (w wireStrategy) toDomain(id string) domain.StrategyDefinition {
	def := domain.StrategyDefinition{
		ID:          id,
		Name:        w.Name,
		Description: w.Description,
		Kind:        domain.StrategyKindDynamic,
	}
	seen := make(map[string]bool, len(w.Parameters))
	for _, p := range w.Parameters {
		if p.Name == "" || seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		def.Parameters = append(def.Parameters, domain.ParameterSpec{
			Name:        p.Name,
			Label:       p.Label,
			Type:        domain.ClassifyParameter(p.Name, p.Type),
			Default:     p.Default,
			Min:         p.Min,
			Max:         p.Max,
			Description: p.Description,
		})
	}
	return def
}

type wirePerformance struct {
	StrategyID         string                     `json:"strategy_id"`
	StrategyName       string                     `json:"strategy_name"`
	StrategyVersion    string                     `json:"strategy_version"`
	RebalanceFrequency string                     `json:"rebalance_frequency"`
	Parameters         map[string]interface{}     `json:"parameters"`
	Metrics            map[string]json.RawMessage `json:"metrics"`
	MissingTickers     []string                   `json:"missing_tickers"`
}

// toDomain splits mixed-type metrics: numbers land in Metrics and the
// window bounds and missing tickers get dedicated fields.
func (w wirePerformance) toDomain(requestedID string) *domain.PerformanceSnapshot {
	snap := &domain.PerformanceSnapshot{
		StrategyID:         w.StrategyID,
		StrategyName:       w.StrategyName,
		StrategyVersion:    w.StrategyVersion,
		RebalanceFrequency: w.RebalanceFrequency,
		Parameters:         w.Parameters,
		Metrics:            make(map[string]float64, len(w.Metrics)),
		MissingTickers:     w.MissingTickers,
	}
	if snap.StrategyID == "" {
		snap.StrategyID = requestedID
	}

	for name, raw := range w.Metrics {
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			continue
		}
		switch name {
		case "window_start":
			_ = json.Unmarshal(raw, &snap.WindowStart)
			continue
		case "as_of":
			_ = json.Unmarshal(raw, &snap.AsOf)
			continue
		case "missing_tickers":
			var tickers []string
			if err := json.Unmarshal(raw, &tickers); err == nil && len(tickers) > 0 {
				snap.MissingTickers = tickers
			}
			continue
		}
		var v float64
		if err := json.Unmarshal(raw, &v); err == nil {
			snap.Metrics[name] = v
		}
	}
	return snap
}
