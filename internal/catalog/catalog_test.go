package catalog

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltfish/allocdesk/internal/domain"
)

func remoteDefs() map[string]domain.StrategyDefinition {
	return map[string]domain.StrategyDefinition{
		"paa": {Name: "Protective Asset Allocation", Description: "remote paa"},
		"vaa": {Name: "Vigilant Asset Allocation"},
		"balanced": {
			Name:       "Balanced (live)",
			Parameters: []domain.ParameterSpec{{Name: "lookback", Type: domain.ParameterTypeNumber}},
		},
	}
}

func TestStaticDefinitions_SumTo100(t *testing.T) {
	for _, def := range StaticDefinitions() {
		assert.Equal(t, domain.StrategyKindStatic, def.Kind)
		assert.InDelta(t, 100, def.AllocationTotal(), 0.01, def.ID)
	}
}

func TestBuild_StaticOnly(t *testing.T) {
	c := Build(StaticDefinitions(), nil)
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, 0, c.DynamicCount())

	names := make([]string, 0)
	for _, def := range c.Sorted() {
		names = append(names, def.Name)
	}
	assert.Equal(t, []string{"Aggressive", "Balanced", "Conservative"}, names)

	assert.Equal(t, "aggressive", c.DefaultID("paa"))
}

func TestBuild_RemoteOverridesStatic(t *testing.T) {
	c := Build(StaticDefinitions(), remoteDefs())
	assert.Equal(t, 5, c.Len())
	assert.Equal(t, 3, c.DynamicCount())

	bal, err := c.Get("balanced")
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyKindDynamic, bal.Kind)
	assert.Equal(t, "Balanced (live)", bal.Name)
	assert.Nil(t, bal.Allocation)
	assert.Equal(t, "balanced", bal.ID)

	assert.Equal(t, "paa", c.DefaultID("paa"))
	assert.Equal(t, "aggressive", c.DefaultID(""))
}

func TestBuild_DisplayOverrides(t *testing.T) {
	c := Build(StaticDefinitions(), remoteDefs(), WithDisplayOverrides(DisplayMap{
		"paa": {Name: "Allocation protectrice"},
	}))

	paa, err := c.Get("paa")
	require.NoError(t, err)
	assert.Equal(t, "Allocation protectrice", paa.Name)
	assert.Equal(t, "remote paa", paa.Description)

	vaa, err := c.Get("vaa")
	require.NoError(t, err)
	assert.Equal(t, "Vigilant Asset Allocation", vaa.Name)
}

func TestGet_UnknownIsNotFound(t *testing.T) {
	_, err := Static().Get("nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestGet_ReturnsCopy(t *testing.T) {
	c := Static()
	def, err := c.Get("conservative")
	require.NoError(t, err)
	def.Allocation[0].Percentage = 0

	again, err := c.Get("conservative")
	require.NoError(t, err)
	assert.Equal(t, 60.0, again.Allocation[0].Percentage)
	assert.False(t, math.IsNaN(again.AllocationTotal()))
}

func TestDefaultID_Empty(t *testing.T) {
	c := Build(nil, nil)
	assert.Equal(t, "", c.DefaultID("paa"))
}
