// Package allocation computes static breakdowns and reconciles remote allocation responses.
package allocation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/saltfish/allocdesk/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// ComputeStatic splits totalAmount across a static strategy's percentage table,
// rounding each amount to cents. Rows keep the table's declared order.
func ComputeStatic(def domain.StrategyDefinition, totalAmount float64) (*domain.AllocationResult, error) {
	if totalAmount <= 0 {
		return nil, domain.NewValidationError("amount", "amount must be greater than zero")
	}
	if def.Kind != domain.StrategyKindStatic || len(def.Allocation) == 0 {
		return nil, fmt.Errorf("%w: strategy %s has no static allocation table", domain.ErrInvalidInput, def.ID)
	}

	total := decimal.NewFromFloat(totalAmount)
	rows := make([]domain.BreakdownRow, 0, len(def.Allocation))
	for _, w := range def.Allocation {
		amount, _ := total.Mul(decimal.NewFromFloat(w.Percentage)).Div(hundred).Round(2).Float64()
		rows = append(rows, domain.BreakdownRow{
			Asset:      w.Asset,
			Amount:     amount,
			Percentage: w.Percentage,
		})
	}

	return &domain.AllocationResult{
		StrategyID:   def.ID,
		StrategyName: def.Name,
		Description:  def.Description,
		TotalAmount:  totalAmount,
		Breakdown:    rows,
		Kind:         domain.StrategyKindStatic,
	}, nil
}
