package allocation

import (
	"math"
	"sort"

	"github.com/saltfish/allocdesk/internal/domain"
)

// Reconcile turns a remote allocation into the canonical result.
//
// Percentages are derived from the requested total. When momentum scores are present
// rows are ordered by descending score with unscored assets last, otherwise by
// descending percentage. Ties keep the service's response order.
func Reconcile(raw *domain.RemoteAllocation, def domain.StrategyDefinition, totalAmount float64) *domain.AllocationResult {
	rows := make([]domain.BreakdownRow, 0, len(raw.Allocation))
	for _, item := range raw.Allocation {
		var pct float64
		if totalAmount != 0 {
			pct = item.Amount / totalAmount * 100
		}
		rows = append(rows, domain.BreakdownRow{
			Asset:      item.Asset,
			Amount:     item.Amount,
			Percentage: pct,
		})
	}

	if raw.MomentumScores != nil {
		scores := raw.MomentumScores
		score := func(asset string) float64 {
			if s, ok := scores[asset]; ok {
				return s
			}
			return math.Inf(-1)
		}
		sort.SliceStable(rows, func(i, j int) bool {
			return score(rows[i].Asset) > score(rows[j].Asset)
		})
	} else {
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Percentage > rows[j].Percentage
		})
	}

	name := def.Name
	if raw.Strategy != "" {
		name = raw.Strategy
	}

	result := &domain.AllocationResult{
		StrategyID:   def.ID,
		StrategyName: name,
		Description:  def.Description,
		TotalAmount:  totalAmount,
		Breakdown:    rows,
		Kind:         domain.StrategyKindDynamic,
	}
	if raw.HasMetadata() {
		result.Metadata = metadataFrom(raw)
	}
	return result
}

func metadataFrom(raw *domain.RemoteAllocation) *domain.AllocationMetadata {
	md := &domain.AllocationMetadata{
		Date:           raw.Date,
		DefensiveRatio: copyFloat(raw.DefensiveRatio),
		OffensiveRatio: copyFloat(raw.OffensiveRatio),
		AvgMomentum:    copyFloat(raw.AvgMomentum),
		BestAsset:      raw.BestETF,
		WorstAsset:     raw.WorstETF,
		SelectedAsset:  raw.SelectedAsset,
		Mode:           raw.Mode,
		Cached:         raw.Cached,
	}
	if raw.MomentumScores != nil {
		md.MomentumScores = make(map[string]float64, len(raw.MomentumScores))
		for k, v := range raw.MomentumScores {
			md.MomentumScores[k] = v
		}
	}
	if raw.AllocationWeights != nil {
		md.AllocationWeights = make(map[string]float64, len(raw.AllocationWeights))
		for k, v := range raw.AllocationWeights {
			md.AllocationWeights[k] = v
		}
	}
	if raw.MissingTickers != nil {
		md.MissingTickers = append([]string{}, raw.MissingTickers...)
	}
	return md
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
