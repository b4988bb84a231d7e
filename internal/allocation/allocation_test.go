package allocation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltfish/allocdesk/internal/catalog"
	"github.com/saltfish/allocdesk/internal/domain"
)

func staticDef(t *testing.T, id string) domain.StrategyDefinition {
	t.Helper()
	def, err := catalog.Static().Get(id)
	require.NoError(t, err)
	return def
}

func assets(rows []domain.BreakdownRow) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Asset)
	}
	return out
}

func TestComputeStatic_Conservative(t *testing.T) {
	res, err := ComputeStatic(staticDef(t, "conservative"), 10000)
	require.NoError(t, err)

	assert.Equal(t, []domain.BreakdownRow{
		{Asset: "Bonds", Amount: 6000, Percentage: 60},
		{Asset: "Stocks", Amount: 2000, Percentage: 20},
		{Asset: "Cash", Amount: 1500, Percentage: 15},
		{Asset: "Real Estate", Amount: 500, Percentage: 5},
	}, res.Breakdown)
	assert.Equal(t, "Conservative", res.StrategyName)
	assert.Equal(t, domain.StrategyKindStatic, res.Kind)
	assert.Nil(t, res.Metadata)
}

func TestComputeStatic_TotalsHold(t *testing.T) {
	amounts := []float64{1, 99.99, 1234.56, 10000, 333333.33}
	for _, def := range catalog.StaticDefinitions() {
		for _, amount := range amounts {
			res, err := ComputeStatic(def, amount)
			require.NoError(t, err)
			assert.InDelta(t, 100, res.PercentageTotal(), 0.01, def.ID)
			assert.InDelta(t, amount, res.AmountTotal(), 0.011, "%s %v", def.ID, amount)
		}
	}
}

func TestComputeStatic_RoundsToCents(t *testing.T) {
	res, err := ComputeStatic(staticDef(t, "balanced"), 333.33)
	require.NoError(t, err)
	assert.Equal(t, 133.33, res.Breakdown[0].Amount)
	assert.Equal(t, 16.67, res.Breakdown[4].Amount)
}

func TestComputeStatic_RejectsNonPositiveAmount(t *testing.T) {
	for _, amount := range []float64{0, -5} {
		_, err := ComputeStatic(staticDef(t, "aggressive"), amount)
		assert.True(t, domain.IsValidation(err))
	}
}

func TestComputeStatic_RejectsDynamic(t *testing.T) {
	_, err := ComputeStatic(domain.StrategyDefinition{ID: "paa", Kind: domain.StrategyKindDynamic}, 100)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func decodeRemote(t *testing.T, body string) *domain.RemoteAllocation {
	t.Helper()
	var raw domain.RemoteAllocation
	require.NoError(t, json.Unmarshal([]byte(body), &raw))
	return &raw
}

func TestReconcile_OrdersByPercentageWithoutScores(t *testing.T) {
	raw := decodeRemote(t, `{"allocation":{"IEF":4000,"SPY":6000}}`)
	res := Reconcile(raw, domain.StrategyDefinition{ID: "paa", Name: "PAA"}, 10000)

	assert.Equal(t, []string{"SPY", "IEF"}, assets(res.Breakdown))
	assert.Equal(t, 60.0, res.Breakdown[0].Percentage)
	assert.Equal(t, 40.0, res.Breakdown[1].Percentage)
	assert.Nil(t, res.Metadata)
	assert.Equal(t, domain.StrategyKindDynamic, res.Kind)
	assert.Equal(t, "PAA", res.StrategyName)
}

func TestReconcile_OrdersByMomentum(t *testing.T) {
	raw := decodeRemote(t, `{
		"allocation": {"A": 100, "B": 300, "C": 600},
		"momentum_scores": {"A": 0.05, "B": -0.02, "C": 0.10},
		"strategy": "Protective Asset Allocation",
		"best_etf": "C",
		"worst_etf": "B"
	}`)
	res := Reconcile(raw, domain.StrategyDefinition{ID: "paa", Name: "PAA"}, 1000)

	assert.Equal(t, []string{"C", "A", "B"}, assets(res.Breakdown))
	require.NotNil(t, res.Metadata)
	assert.Equal(t, "C", res.Metadata.BestAsset)
	assert.Equal(t, "B", res.Metadata.WorstAsset)
	assert.Equal(t, "Protective Asset Allocation", res.StrategyName)
}

func TestReconcile_UnscoredLastAndTiesKeepResponseOrder(t *testing.T) {
	raw := decodeRemote(t, `{
		"allocation": {"X": 10, "Y": 20, "Z": 30, "W": 40},
		"momentum_scores": {"Y": 0.1, "W": 0.1}
	}`)
	res := Reconcile(raw, domain.StrategyDefinition{ID: "vaa"}, 100)
	assert.Equal(t, []string{"Y", "W", "X", "Z"}, assets(res.Breakdown))
}

func TestReconcile_PercentagesExact(t *testing.T) {
	raw := decodeRemote(t, `{"allocation":{"SPY":3333.33,"QQQ":3333.33,"GLD":3333.34}}`)
	res := Reconcile(raw, domain.StrategyDefinition{ID: "paa"}, 10000)
	for _, row := range res.Breakdown {
		assert.InDelta(t, row.Amount/10000*100, row.Percentage, 1e-9)
	}
	assert.InDelta(t, 100, res.PercentageTotal(), 0.5)
}

func TestReconcile_Deterministic(t *testing.T) {
	body := `{"allocation":{"A":1,"B":1,"C":1},"momentum_scores":{"A":0.2,"B":0.2,"C":0.2}}`
	first := Reconcile(decodeRemote(t, body), domain.StrategyDefinition{ID: "paa"}, 3)
	for i := 0; i < 10; i++ {
		again := Reconcile(decodeRemote(t, body), domain.StrategyDefinition{ID: "paa"}, 3)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, []string{"A", "B", "C"}, assets(first.Breakdown))
}

func TestReconcile_CopiesMetadataVerbatim(t *testing.T) {
	raw := decodeRemote(t, `{
		"allocation": {"SHY": 1000},
		"date": "2026-09-30",
		"defensive_ratio": 1.0,
		"offensive_ratio": 0,
		"selected_asset": "SHY",
		"mode": "defensive",
		"missing_tickers": ["XYZ"]
	}`)
	raw.Cached = true
	res := Reconcile(raw, domain.StrategyDefinition{ID: "vaa"}, 1000)

	md := res.Metadata
	require.NotNil(t, md)
	assert.Equal(t, "2026-09-30", md.Date)
	require.NotNil(t, md.DefensiveRatio)
	assert.Equal(t, 1.0, *md.DefensiveRatio)
	require.NotNil(t, md.OffensiveRatio)
	assert.Equal(t, 0.0, *md.OffensiveRatio)
	assert.Nil(t, md.AvgMomentum)
	assert.Nil(t, md.MomentumScores)
	assert.Equal(t, []string{"XYZ"}, md.MissingTickers)
	assert.True(t, md.Cached)

	*raw.DefensiveRatio = 0.5
	assert.Equal(t, 1.0, *md.DefensiveRatio)
}
