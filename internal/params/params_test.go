package params

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltfish/allocdesk/internal/domain"
)

func genericSpecs() []domain.ParameterSpec {
	return []domain.ParameterSpec{
		{Name: "lookback", Label: "Lookback", Type: domain.ParameterTypeNumber, Default: 12.0},
		{Name: "etfs", Label: "ETFs", Type: domain.ParameterTypeText},
		{Name: "risk_assets", Label: "Risk", Type: domain.ParameterTypeText},
		{Name: "mode", Label: "Mode", Type: domain.ParameterTypeText},
	}
}

func TestParseTickers(t *testing.T) {
	assert.Equal(t, []string{"SPY", "QQQ", "IWM"}, ParseTickers(" spy, qqq ,,IWM ,"))
	assert.Empty(t, ParseTickers(""))
	assert.Empty(t, ParseTickers(" , ,"))
}

func TestParseTickers_Idempotent(t *testing.T) {
	inputs := []string{"spy,qqq", " a , ,b,", "", "VNQ", "x,,y,,z"}
	for _, in := range inputs {
		once := ParseTickers(in)
		twice := ParseTickers(strings.Join(once, ","))
		assert.Equal(t, once, twice, in)
	}
}

func TestParseNumber(t *testing.T) {
	v, ok := ParseNumber(" 6 ")
	require.True(t, ok)
	assert.Equal(t, 6.0, v)

	v, ok = ParseNumber("-2.5")
	require.True(t, ok)
	assert.Equal(t, -2.5, v)

	for _, bad := range []string{"", "abc", "NaN", "Inf", "1,000"} {
		_, ok := ParseNumber(bad)
		assert.False(t, ok, bad)
	}
}

func TestNormalizeGeneric(t *testing.T) {
	payload := NormalizeGeneric(genericSpecs(), domain.RawParams{
		"lookback":    "9",
		"etfs":        "spy, tlt",
		"risk_assets": " , ",
		"mode":        "",
		"ignored":     "x",
	})

	assert.Equal(t, domain.ParameterPayload{
		"lookback": 9.0,
		"etfs":     []string{"SPY", "TLT"},
	}, payload)
}

func TestNormalizeGeneric_TextKeptVerbatim(t *testing.T) {
	payload := NormalizeGeneric(genericSpecs(), domain.RawParams{"mode": " Aggressive "})
	assert.Equal(t, " Aggressive ", payload["mode"])
}

func TestNormalize_EmptyInputYieldsEmptyPayload(t *testing.T) {
	r := DefaultRegistry()
	for _, id := range []string{"paa", "vaa", "simple_momentum"} {
		assert.Empty(t, r.Normalize(id, genericSpecs(), domain.RawParams{}), id)
		assert.Empty(t, r.Normalize(id, genericSpecs(), nil), id)
	}
}

func TestRegistry_PAA(t *testing.T) {
	r := DefaultRegistry()
	payload := r.Normalize("paa", nil, domain.RawParams{
		"etfs":            "spy,qqq",
		"top_n":           "4",
		"lookback_months": "not a number",
	})
	assert.Equal(t, domain.ParameterPayload{
		"etfs":  []string{"SPY", "QQQ"},
		"top_n": 4.0,
	}, payload)
}

func TestRegistry_VAA(t *testing.T) {
	r := DefaultRegistry()
	payload := r.Normalize("vaa", nil, domain.RawParams{
		"offensive_assets": "spy, efa",
		"defensive_assets": "",
	})
	assert.Equal(t, domain.ParameterPayload{
		"offensive_assets": []string{"SPY", "EFA"},
	}, payload)
}

func TestRegistry_FallbackAndOverride(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Lookup("anything").Panel)

	r.Register("custom", Entry{Normalize: func(_ []domain.ParameterSpec, _ domain.RawParams) domain.ParameterPayload {
		return domain.ParameterPayload{"fixed": 1.0}
	}})
	assert.Equal(t, domain.ParameterPayload{"fixed": 1.0}, r.Normalize("custom", nil, domain.RawParams{}))
}

func TestRegistry_Panel(t *testing.T) {
	r := DefaultRegistry()

	paa := r.Panel(domain.StrategyDefinition{ID: "paa"})
	require.Len(t, paa.Fields, 3)
	assert.Equal(t, "etfs", paa.Fields[0].Name)
	assert.Equal(t, 12.0, *paa.Fields[1].Max)

	generic := r.Panel(domain.StrategyDefinition{ID: "simple_momentum", Parameters: genericSpecs()})
	require.Len(t, generic.Fields, 4)
	assert.Equal(t, domain.ParameterTypeTickerList, generic.Fields[1].Type)
	assert.Equal(t, domain.ParameterTypeText, generic.Fields[3].Type)
}

func TestRegistry_Defaults(t *testing.T) {
	r := DefaultRegistry()

	values := r.Defaults(domain.StrategyDefinition{ID: "simple_momentum", Parameters: genericSpecs()})
	assert.Equal(t, domain.RawParams{"lookback": "12", "etfs": "", "risk_assets": "", "mode": ""}, values)

	vaa := r.Defaults(domain.StrategyDefinition{ID: "vaa", Parameters: []domain.ParameterSpec{
		{Name: "offensive_assets", Default: "SPY,EFA,EEM,AGG"},
	}})
	assert.Equal(t, "SPY,EFA,EEM,AGG", vaa["offensive_assets"])
	assert.Equal(t, "", vaa["defensive_assets"])
}
