package params

import (
	"github.com/saltfish/allocdesk/internal/domain"
)

// NormalizeFunc converts raw values into a payload for one strategy.
type NormalizeFunc func(specs []domain.ParameterSpec, raw domain.RawParams) domain.ParameterPayload

// PanelField describes one input of a configuration panel.
type PanelField struct {
	Name     string               `json:"name"`
	Label    string               `json:"label"`
	Type     domain.ParameterType `json:"type"`
	HelpText string               `json:"help_text,omitempty"`
	Min      *float64             `json:"min,omitempty"`
	Max      *float64             `json:"max,omitempty"`
	Step     *float64             `json:"step,omitempty"`
}

// PanelShape is the form layout a frontend renders for a strategy.
type PanelShape struct {
	Title  string       `json:"title,omitempty"`
	Fields []PanelField `json:"fields"`
}

// Entry pairs a panel layout with its normalizer.
// A nil Panel means the layout is derived from the strategy's parameter specs.
type Entry struct {
	Panel     *PanelShape
	Normalize NormalizeFunc
}

// Registry dispatches normalization by strategy id with a generic fallback.
type Registry struct {
	entries  map[string]Entry
	fallback Entry
}

// NewRegistry returns a registry with only the generic entry.
func NewRegistry() *Registry {
	return &Registry{
		entries:  make(map[string]Entry),
		fallback: Entry{Normalize: NormalizeGeneric},
	}
}

// DefaultRegistry returns a registry with the curated paa and vaa panels.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("paa", paaEntry())
	r.Register("vaa", vaaEntry())
	return r
}

// Register adds or replaces the entry for a strategy id.
func (r *Registry) Register(strategyID string, e Entry) {
	if e.Normalize == nil {
		e.Normalize = NormalizeGeneric
	}
	r.entries[strategyID] = e
}

// Lookup returns the entry for a strategy id, or the generic entry.
func (r *Registry) Lookup(strategyID string) Entry {
	if e, ok := r.entries[strategyID]; ok {
		return e
	}
	return r.fallback
}

// Normalize builds the payload for a strategy. It never fails.
func (r *Registry) Normalize(strategyID string, specs []domain.ParameterSpec, raw domain.RawParams) domain.ParameterPayload {
	if raw == nil {
		return domain.ParameterPayload{}
	}
	return r.Lookup(strategyID).Normalize(specs, raw)
}

// Panel returns the panel layout for a strategy.
func (r *Registry) Panel(def domain.StrategyDefinition) PanelShape {
	if e := r.Lookup(def.ID); e.Panel != nil {
		return clonePanel(*e.Panel)
	}
	return GenericPanel(def.Parameters)
}

// GenericPanel derives a panel from parameter specs in declaration order.
func GenericPanel(specs []domain.ParameterSpec) PanelShape {
	fields := make([]PanelField, 0, len(specs))
	for _, spec := range specs {
		fields = append(fields, PanelField{
			Name:     spec.Name,
			Label:    spec.Label,
			Type:     specType(spec),
			HelpText: spec.Description,
			Min:      spec.Min,
			Max:      spec.Max,
		})
	}
	return PanelShape{Fields: fields}
}

func clonePanel(p PanelShape) PanelShape {
	p.Fields = append([]PanelField(nil), p.Fields...)
	return p
}

func floatPtr(v float64) *float64 {
	return &v
}

func paaEntry() Entry {
	return Entry{
		Panel: &PanelShape{
			Title: "PAA Parameters",
			Fields: []PanelField{
				{Name: "etfs", Label: "ETF Tickers", Type: domain.ParameterTypeTickerList,
					HelpText: "Comma-separated tickers (e.g., SPY, QQQ, IWM)"},
				{Name: "top_n", Label: "Top N ETFs", Type: domain.ParameterTypeNumber,
					HelpText: "Number of top-performing ETFs to consider",
					Min:      floatPtr(1), Max: floatPtr(12), Step: floatPtr(1)},
				{Name: "lookback_months", Label: "Lookback (Months)", Type: domain.ParameterTypeNumber,
					HelpText: "Used for momentum calculation (moving average)",
					Min:      floatPtr(6), Max: floatPtr(24), Step: floatPtr(1)},
			},
		},
		Normalize: func(_ []domain.ParameterSpec, raw domain.RawParams) domain.ParameterPayload {
			payload := make(domain.ParameterPayload)
			putTickers(payload, "etfs", raw)
			putNumber(payload, "top_n", raw)
			putNumber(payload, "lookback_months", raw)
			return payload
		},
	}
}

func vaaEntry() Entry {
	return Entry{
		Panel: &PanelShape{
			Title: "VAA Parameters",
			Fields: []PanelField{
				{Name: "offensive_assets", Label: "Offensive Assets", Type: domain.ParameterTypeTickerList,
					HelpText: "Comma-separated tickers (book default: SPY,EFA,EEM,AGG)"},
				{Name: "defensive_assets", Label: "Defensive Assets", Type: domain.ParameterTypeTickerList,
					HelpText: "Comma-separated tickers (book default: LQD,IEF,SHY)"},
			},
		},
		Normalize: func(_ []domain.ParameterSpec, raw domain.RawParams) domain.ParameterPayload {
			payload := make(domain.ParameterPayload)
			putTickers(payload, "offensive_assets", raw)
			putTickers(payload, "defensive_assets", raw)
			return payload
		},
	}
}

// Defaults returns the raw form values a freshly selected strategy starts with.
// Specs without a default start empty. Curated panel fields missing from the specs start empty too.
func (r *Registry) Defaults(def domain.StrategyDefinition) domain.RawParams {
	values := make(domain.RawParams, len(def.Parameters))
	for _, spec := range def.Parameters {
		values[spec.Name] = spec.DefaultString()
	}
	if e := r.Lookup(def.ID); e.Panel != nil {
		for _, f := range e.Panel.Fields {
			if _, ok := values[f.Name]; !ok {
				values[f.Name] = ""
			}
		}
	}
	return values
}
