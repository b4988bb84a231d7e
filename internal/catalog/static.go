package catalog

import "github.com/saltfish/allocdesk/internal/domain"

// StaticDefinitions returns the built-in fixed-percentage strategies.
// Each call returns a fresh copy.
func StaticDefinitions() []domain.StrategyDefinition {
	return []domain.StrategyDefinition{
		{
			ID:          "conservative",
			Name:        "Conservative",
			Description: "Low risk, stable returns",
			Kind:        domain.StrategyKindStatic,
			Allocation: []domain.AssetWeight{
				{Asset: "Bonds", Percentage: 60},
				{Asset: "Stocks", Percentage: 20},
				{Asset: "Cash", Percentage: 15},
				{Asset: "Real Estate", Percentage: 5},
			},
		},
		{
			ID:          "balanced",
			Name:        "Balanced",
			Description: "Moderate risk, balanced growth",
			Kind:        domain.StrategyKindStatic,
			Allocation: []domain.AssetWeight{
				{Asset: "Stocks", Percentage: 40},
				{Asset: "Bonds", Percentage: 30},
				{Asset: "Real Estate", Percentage: 15},
				{Asset: "Commodities", Percentage: 10},
				{Asset: "Cash", Percentage: 5},
			},
		},
		{
			ID:          "aggressive",
			Name:        "Aggressive",
			Description: "High risk, maximum growth potential",
			Kind:        domain.StrategyKindStatic,
			Allocation: []domain.AssetWeight{
				{Asset: "Stocks", Percentage: 70},
				{Asset: "Real Estate", Percentage: 15},
				{Asset: "Commodities", Percentage: 10},
				{Asset: "Bonds", Percentage: 5},
			},
		},
	}
}
