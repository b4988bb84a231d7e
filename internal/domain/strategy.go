package domain

import (
	"strconv"
	"strings"
)

// AssetWeight is one row of a static percentage table.
type AssetWeight struct {
	Asset      string  `json:"asset"`
	Percentage float64 `json:"percentage"`
}

// StrategyDefinition describes an allocation strategy.
// Static strategies carry an Allocation table; dynamic ones carry Parameters instead.
type StrategyDefinition struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Kind        StrategyKind    `json:"kind"`
	Allocation  []AssetWeight   `json:"allocation,omitempty"`
	Parameters  []ParameterSpec `json:"parameters,omitempty"`
}

// IsDynamic returns true if the strategy is computed remotely.
func (d *StrategyDefinition) IsDynamic() bool {
	return d.Kind == StrategyKindDynamic
}

// AllocationTotal returns the sum of the static percentage table.
func (d *StrategyDefinition) AllocationTotal() float64 {
	var sum float64
	for _, w := range d.Allocation {
		sum += w.Percentage
	}
	return sum
}

// Clone returns a deep copy of the definition.
func (d StrategyDefinition) Clone() StrategyDefinition {
	out := d
	if d.Allocation != nil {
		out.Allocation = append([]AssetWeight(nil), d.Allocation...)
	}
	if d.Parameters != nil {
		out.Parameters = make([]ParameterSpec, len(d.Parameters))
		for i, p := range d.Parameters {
			out.Parameters[i] = p.clone()
		}
	}
	return out
}

// ParameterSpec describes one input expected by a strategy.
type ParameterSpec struct {
	Name        string        `json:"name"`
	Label       string        `json:"label"`
	Type        ParameterType `json:"type"`
	Default     interface{}   `json:"default,omitempty"`
	Min         *float64      `json:"min,omitempty"`
	Max         *float64      `json:"max,omitempty"`
	Description string        `json:"description,omitempty"`
}

func (p ParameterSpec) clone() ParameterSpec {
	out := p
	if p.Min != nil {
		v := *p.Min
		out.Min = &v
	}
	if p.Max != nil {
		v := *p.Max
		out.Max = &v
	}
	return out
}

// DefaultString renders the default as the raw text a form field would hold.
// A missing default yields the empty string.
func (p ParameterSpec) DefaultString() string {
	switch v := p.Default.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case []string:
		return strings.Join(v, ",")
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, ParameterSpec{Default: item}.DefaultString())
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}

// ClassifyParameter maps a wire-level parameter type onto a normalization class.
// Text parameters named "etfs" or ending in "_assets" are ticker lists.
func ClassifyParameter(name, wireType string) ParameterType {
	if wireType == string(ParameterTypeNumber) {
		return ParameterTypeNumber
	}
	if wireType == string(ParameterTypeTickerList) || IsTickerListName(name) {
		return ParameterTypeTickerList
	}
	return ParameterTypeText
}

// IsTickerListName reports whether a parameter name denotes a ticker list.
func IsTickerListName(name string) bool {
	return name == "etfs" || strings.HasSuffix(name, "_assets")
}

// ParameterPayload maps parameter names to normalized values:
// float64, []string of uppercase tickers, or a non-empty string.
type ParameterPayload map[string]interface{}

// RawParams holds raw per-field user input keyed by parameter name.
type RawParams map[string]string

// Clone returns a copy of the raw values.
func (r RawParams) Clone() RawParams {
	out := make(RawParams, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
