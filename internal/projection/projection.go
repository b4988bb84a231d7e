// Package projection derives chart and table views from allocation results.
// Every function is pure and deterministic.
package projection

import (
	"math"
	"sort"
	"strings"

	"github.com/saltfish/allocdesk/internal/domain"
)

// Palette is the slice color cycle for allocation charts.
var Palette = []string{
	"#4F46E5", "#06B6D4", "#10B981", "#F59E0B", "#EF4444",
	"#A855F7", "#64748B", "#22C55E", "#FB7185", "#60A5FA",
}

// DefaultLegendSize and DefaultMaxBars bound the chart helpers.
const (
	DefaultLegendSize = 8
	DefaultMaxBars    = 8
)

// ChartSlice is one slice of the allocation chart.
type ChartSlice struct {
	Label   string  `json:"label"`
	Value   float64 `json:"value"`
	Display string  `json:"display"`
	Color   string  `json:"color"`
}

// ToChartSeries keeps positive breakdown rows in breakdown order.
func ToChartSeries(result *domain.AllocationResult) []ChartSlice {
	if result == nil {
		return []ChartSlice{}
	}
	out := make([]ChartSlice, 0, len(result.Breakdown))
	for _, row := range result.Breakdown {
		if !(row.Percentage > 0) || math.IsInf(row.Percentage, 0) {
			continue
		}
		out = append(out, ChartSlice{
			Label:   row.Asset,
			Value:   row.Percentage,
			Display: FormatPercent(row.Percentage, 1),
			Color:   Palette[len(out)%len(Palette)],
		})
	}
	return out
}

// Legend returns the first max slices and how many were left out.
func Legend(series []ChartSlice, max int) ([]ChartSlice, int) {
	if max < 0 {
		max = 0
	}
	if len(series) <= max {
		return append([]ChartSlice{}, series...), 0
	}
	return append([]ChartSlice{}, series[:max]...), len(series) - max
}

// TableRow is one row of the results table.
type TableRow struct {
	Asset             string   `json:"asset"`
	Amount            float64  `json:"amount"`
	Percentage        float64  `json:"percentage"`
	AmountDisplay     string   `json:"amount_display"`
	PercentageDisplay string   `json:"percentage_display"`
	Momentum          *float64 `json:"momentum,omitempty"`
	MomentumDisplay   string   `json:"momentum_display"`
}

// ToTableRows projects every breakdown row. A nil scores map falls back to the
// result's own momentum scores. Assets without a score display UnknownMarker.
func ToTableRows(result *domain.AllocationResult, scores map[string]float64) []TableRow {
	if result == nil {
		return []TableRow{}
	}
	if scores == nil {
		scores = result.MomentumScores()
	}
	out := make([]TableRow, 0, len(result.Breakdown))
	for _, row := range result.Breakdown {
		tr := TableRow{
			Asset:             row.Asset,
			Amount:            row.Amount,
			Percentage:        row.Percentage,
			AmountDisplay:     FormatMoney(row.Amount),
			PercentageDisplay: FormatPercent(row.Percentage, 2),
			MomentumDisplay:   UnknownMarker,
		}
		if s, ok := scores[row.Asset]; ok && finite(s) {
			v := s
			tr.Momentum = &v
			tr.MomentumDisplay = FormatRatio(s, 2)
		}
		out = append(out, tr)
	}
	return out
}

// MomentumBar is one bar of the momentum chart.
type MomentumBar struct {
	Asset    string  `json:"asset"`
	Score    float64 `json:"score"`
	WidthPct float64 `json:"width_pct"`
	Positive bool    `json:"positive"`
	Display  string  `json:"display"`
}

// ToMomentumBars sorts scores descending (ties by asset) and keeps the top maxBars.
// Widths are relative to the largest absolute score shown.
func ToMomentumBars(scores map[string]float64, maxBars int) []MomentumBar {
	type entry struct {
		asset string
		score float64
	}
	entries := make([]entry, 0, len(scores))
	for asset, score := range scores {
		if finite(score) {
			entries = append(entries, entry{asset, score})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].asset < entries[j].asset
	})
	if maxBars >= 0 && len(entries) > maxBars {
		entries = entries[:maxBars]
	}

	maxAbs := 0.0001
	for _, e := range entries {
		maxAbs = math.Max(maxAbs, math.Abs(e.score))
	}

	out := make([]MomentumBar, 0, len(entries))
	for _, e := range entries {
		out = append(out, MomentumBar{
			Asset:    e.asset,
			Score:    e.score,
			WidthPct: math.Abs(e.score) / maxAbs * 100,
			Positive: e.score >= 0,
			Display:  FormatRatio(e.score, 2),
		})
	}
	return out
}

// Badge is a labelled metadata chip.
type Badge struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ToMetadataBadges lists the reported metadata fields in a fixed order.
func ToMetadataBadges(result *domain.AllocationResult) []Badge {
	out := []Badge{}
	if result == nil || result.Metadata == nil {
		return out
	}
	md := result.Metadata
	if md.Date != "" {
		out = append(out, Badge{Key: "date", Value: md.Date})
	}
	if md.DefensiveRatio != nil {
		out = append(out, Badge{Key: "defensive_ratio", Value: FormatRatio(*md.DefensiveRatio, 1)})
	}
	if md.OffensiveRatio != nil {
		out = append(out, Badge{Key: "offensive_ratio", Value: FormatRatio(*md.OffensiveRatio, 1)})
	}
	if md.AvgMomentum != nil {
		out = append(out, Badge{Key: "avg_momentum", Value: FormatRatio(*md.AvgMomentum, 2)})
	}
	if md.BestAsset != "" {
		out = append(out, Badge{Key: "best_asset", Value: md.BestAsset})
	}
	if md.WorstAsset != "" {
		out = append(out, Badge{Key: "worst_asset", Value: md.WorstAsset})
	}
	if md.SelectedAsset != "" {
		out = append(out, Badge{Key: "selected_asset", Value: md.SelectedAsset})
	}
	if md.Mode != "" {
		out = append(out, Badge{Key: "mode", Value: strings.ToUpper(md.Mode)})
	}
	if len(md.MissingTickers) > 0 {
		out = append(out, Badge{Key: "missing_tickers", Value: strings.Join(md.MissingTickers, ", ")})
	}
	return out
}

// MetricLine is one formatted performance metric.
type MetricLine struct {
	Key     string `json:"key"`
	Display string `json:"display"`
}

// PerformanceSummary is the formatted view of a snapshot.
type PerformanceSummary struct {
	StrategyID     string       `json:"strategy_id"`
	Metrics        []MetricLine `json:"metrics"`
	MonthsTested   *int         `json:"months_tested,omitempty"`
	Window         string       `json:"window,omitempty"`
	MissingTickers []string     `json:"missing_tickers,omitempty"`
	HasMetrics     bool         `json:"has_metrics"`
}

var summaryMetrics = []string{
	domain.MetricCumulativeReturn,
	domain.MetricCAGR,
	domain.MetricMaxDrawdown,
	domain.MetricVolatility,
	domain.MetricWinRate,
}

// ToPerformanceSummary formats the known ratio metrics, using MissingMarker for absent ones.
func ToPerformanceSummary(snap *domain.PerformanceSnapshot) PerformanceSummary {
	if snap == nil {
		return PerformanceSummary{Metrics: []MetricLine{}}
	}
	sum := PerformanceSummary{
		StrategyID: snap.StrategyID,
		Metrics:    make([]MetricLine, 0, len(summaryMetrics)),
		HasMetrics: len(snap.Metrics) > 0,
	}
	for _, key := range summaryMetrics {
		display := MissingMarker
		if v, ok := snap.Metric(key); ok && finite(v) {
			display = FormatRatio(v, 2)
		}
		sum.Metrics = append(sum.Metrics, MetricLine{Key: key, Display: display})
	}
	if v, ok := snap.Metric(domain.MetricMonthsTested); ok && finite(v) {
		n := int(v)
		sum.MonthsTested = &n
	}
	if snap.WindowStart != "" && snap.AsOf != "" {
		sum.Window = snap.WindowStart + " to " + snap.AsOf
	}
	if len(snap.MissingTickers) > 0 {
		sum.MissingTickers = append([]string{}, snap.MissingTickers...)
	}
	return sum
}
