package cosim

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosim-bridge/eplusfmu/cosim/catalog"
)

func realVar(name string, vr uint32, c catalog.Causality, alias catalog.Alias) catalog.Variable {
	return catalog.Variable{Name: name, ValueReference: vr, Causality: c, Alias: alias, Type: "Real"}
}

func TestNewVariableMap_PositionsFollowValueReferenceOrder(t *testing.T) {
	// GIVEN variables declared out of reference order, with an alias
	md := &catalog.ModelDescription{Variables: []catalog.Variable{
		realVar("TRoo", 30, catalog.CausalityOutput, catalog.NoAlias),
		realVar("QHea", 7, catalog.CausalityInput, catalog.NoAlias),
		realVar("TOut", 12, catalog.CausalityOutput, catalog.NoAlias),
		realVar("TSet", 3, catalog.CausalityInput, catalog.NoAlias),
		realVar("TSetAlias", 3, catalog.CausalityInput, catalog.AliasOf),
		realVar("state", 1, catalog.CausalityInternal, catalog.NoAlias),
	}}

	// WHEN the map is built
	m, err := NewVariableMap(md)
	require.NoError(t, err)

	// THEN positions are by ascending value reference per direction
	assert.Equal(t, 2, m.NumInputs())
	assert.Equal(t, 2, m.NumOutputs())
	for vr, want := range map[uint32]int{3: 0, 7: 1} {
		p, ok := m.InputPosition(vr)
		require.True(t, ok, "input %d", vr)
		assert.Equal(t, want, p, "input %d", vr)
	}
	for vr, want := range map[uint32]int{12: 0, 30: 1} {
		p, ok := m.OutputPosition(vr)
		require.True(t, ok, "output %d", vr)
		assert.Equal(t, want, p, "output %d", vr)
	}
	_, ok := m.InputPosition(1)
	assert.False(t, ok, "internal variables have no position")
	_, ok = m.OutputPosition(3)
	assert.False(t, ok, "inputs are not outputs")
}

func TestNewVariableMap_DuplicateReference_Errors(t *testing.T) {
	md := &catalog.ModelDescription{Variables: []catalog.Variable{
		realVar("a", 5, catalog.CausalityInput, catalog.NoAlias),
		realVar("b", 5, catalog.CausalityInput, catalog.NoAlias),
	}}
	_, err := NewVariableMap(md)
	assert.Error(t, err)
}

func TestResolve_AllOrNothing(t *testing.T) {
	m, err := NewVariableMap(&catalog.ModelDescription{Variables: []catalog.Variable{
		realVar("a", 1, catalog.CausalityInput, catalog.NoAlias),
		realVar("b", 2, catalog.CausalityInput, catalog.NoAlias),
	}})
	require.NoError(t, err)

	pos, err := resolve([]uint32{2, 1, 2}, m.InputPosition)
	require.NoError(t, err)
	if diff := cmp.Diff([]int{1, 0, 1}, pos); diff != "" {
		t.Errorf("positions mismatch (-want +got):\n%s", diff)
	}

	pos, err = resolve([]uint32{1, 99}, m.InputPosition)
	assert.ErrorIs(t, err, ErrUnknownReference)
	assert.Nil(t, pos)
}
