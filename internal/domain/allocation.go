package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// BreakdownRow is one per-asset line of an allocation.
type BreakdownRow struct {
	Asset      string  `json:"asset"`
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`
}

// AllocationMetadata carries the optional momentum context reported by the remote service.
type AllocationMetadata struct {
	Date              string             `json:"date,omitempty"`
	DefensiveRatio    *float64           `json:"defensive_ratio,omitempty"`
	OffensiveRatio    *float64           `json:"offensive_ratio,omitempty"`
	MomentumScores    map[string]float64 `json:"momentum_scores,omitempty"`
	AvgMomentum       *float64           `json:"avg_momentum,omitempty"`
	BestAsset         string             `json:"best_asset,omitempty"`
	WorstAsset        string             `json:"worst_asset,omitempty"`
	SelectedAsset     string             `json:"selected_asset,omitempty"`
	Mode              string             `json:"mode,omitempty"`
	MissingTickers    []string           `json:"missing_tickers,omitempty"`
	AllocationWeights map[string]float64 `json:"allocation_weights,omitempty"`
	Cached            bool               `json:"cached,omitempty"`
}

// AllocationResult is the canonical outcome of a calculation. It is never mutated after creation.
type AllocationResult struct {
	StrategyID   string              `json:"strategy_id"`
	StrategyName string              `json:"strategy_name"`
	Description  string              `json:"description"`
	TotalAmount  float64             `json:"total_amount"`
	Breakdown    []BreakdownRow      `json:"breakdown"`
	Kind         StrategyKind        `json:"kind"`
	Metadata     *AllocationMetadata `json:"metadata,omitempty"`
}

// PercentageTotal returns the sum of breakdown percentages.
func (r *AllocationResult) PercentageTotal() float64 {
	var sum float64
	for _, row := range r.Breakdown {
		sum += row.Percentage
	}
	return sum
}

// AmountTotal returns the sum of breakdown amounts.
func (r *AllocationResult) AmountTotal() float64 {
	var sum float64
	for _, row := range r.Breakdown {
		sum += row.Amount
	}
	return sum
}

// MomentumScores returns the score map, or nil when the result has none.
func (r *AllocationResult) MomentumScores() map[string]float64 {
	if r == nil || r.Metadata == nil {
		return nil
	}
	return r.Metadata.MomentumScores
}

// AssetAmount is an asset with its allocated amount.
type AssetAmount struct {
	Asset  string
	Amount float64
}

// AssetAmounts is an asset to amount mapping that keeps the order the service sent it in.
type AssetAmounts []AssetAmount

// UnmarshalJSON decodes a JSON object while keeping key order.
func (a *AssetAmounts) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("allocation: expected object, got %v", tok)
	}

	var out AssetAmounts
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("allocation: expected string key, got %v", keyTok)
		}
		var amount float64
		if err := dec.Decode(&amount); err != nil {
			return fmt.Errorf("allocation: amount for %s: %w", key, err)
		}
		out = append(out, AssetAmount{Asset: key, Amount: amount})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*a = out
	return nil
}

// MarshalJSON encodes the amounts as a JSON object in order.
func (a AssetAmounts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, item := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(item.Asset)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(item.Amount)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// RemoteAllocation is the result payload of the remote calculate call.
type RemoteAllocation struct {
	Strategy          string             `json:"strategy,omitempty"`
	TotalAmount       float64            `json:"total_amount,omitempty"`
	Allocation        AssetAmounts       `json:"allocation"`
	AllocationWeights map[string]float64 `json:"allocation_weights,omitempty"`
	Date              string             `json:"date,omitempty"`
	DefensiveRatio    *float64           `json:"defensive_ratio,omitempty"`
	OffensiveRatio    *float64           `json:"offensive_ratio,omitempty"`
	MomentumScores    map[string]float64 `json:"momentum_scores,omitempty"`
	AvgMomentum       *float64           `json:"avg_momentum,omitempty"`
	BestETF           string             `json:"best_etf,omitempty"`
	WorstETF          string             `json:"worst_etf,omitempty"`
	SelectedAsset     string             `json:"selected_asset,omitempty"`
	Mode              string             `json:"mode,omitempty"`
	MissingTickers    []string           `json:"missing_tickers,omitempty"`

	// Cached is copied from the response envelope.
	Cached bool `json:"-"`
}

// HasMetadata reports whether any optional field was sent.
func (r *RemoteAllocation) HasMetadata() bool {
	return r.Date != "" || r.DefensiveRatio != nil || r.OffensiveRatio != nil ||
		r.MomentumScores != nil || r.AvgMomentum != nil || r.BestETF != "" ||
		r.WorstETF != "" || r.SelectedAsset != "" || r.Mode != "" ||
		r.MissingTickers != nil || r.AllocationWeights != nil || r.Cached
}
