package domain

import "time"

// Known performance metric names.
const (
	MetricCumulativeReturn = "cumulative_return_period"
	MetricCAGR             = "cagr_annualized"
	MetricMaxDrawdown      = "max_drawdown_period"
	MetricVolatility       = "volatility_annualized"
	MetricWinRate          = "win_rate_monthly"
	MetricMonthsTested     = "months_tested"
)

// PerformanceSnapshot holds backtest metrics for one strategy.
type PerformanceSnapshot struct {
	StrategyID         string                 `json:"strategy_id"`
	StrategyName       string                 `json:"strategy_name,omitempty"`
	StrategyVersion    string                 `json:"strategy_version,omitempty"`
	RebalanceFrequency string                 `json:"rebalance_frequency,omitempty"`
	Parameters         map[string]interface{} `json:"parameters,omitempty"`
	Metrics            map[string]float64     `json:"metrics"`
	WindowStart        string                 `json:"window_start,omitempty"`
	AsOf               string                 `json:"as_of,omitempty"`
	MissingTickers     []string               `json:"missing_tickers,omitempty"`
	FetchedAt          time.Time              `json:"fetched_at"`
}

// Metric returns a metric value and whether it was reported.
func (s *PerformanceSnapshot) Metric(name string) (float64, bool) {
	if s == nil || s.Metrics == nil {
		return 0, false
	}
	v, ok := s.Metrics[name]
	return v, ok
}
