package cosim

import (
	"fmt"

	"github.com/cosim-bridge/eplusfmu/cosim/catalog"
)

// VariableMap translates value references into positions of the vectors
// exchanged with the companion. Positions follow ascending value reference
// among the non-aliased variables of each direction, which is the order
// the companion's variable configuration lists them in.
type VariableMap struct {
	inputs     map[uint32]int
	outputs    map[uint32]int
	inputVars  []catalog.Variable
	outputVars []catalog.Variable
}

// NewVariableMap builds the tables once from the catalog.
func NewVariableMap(md *catalog.ModelDescription) (*VariableMap, error) {
	m := &VariableMap{
		inputVars:  md.Inputs(),
		outputVars: md.Outputs(),
	}
	var err error
	if m.inputs, err = positions(m.inputVars); err != nil {
		return nil, fmt.Errorf("inputs: %w", err)
	}
	if m.outputs, err = positions(m.outputVars); err != nil {
		return nil, fmt.Errorf("outputs: %w", err)
	}
	return m, nil
}

func positions(vars []catalog.Variable) (map[uint32]int, error) {
	pos := make(map[uint32]int, len(vars))
	for i, v := range vars {
		if _, dup := pos[v.ValueReference]; dup {
			return nil, fmt.Errorf("value reference %d used by more than one variable", v.ValueReference)
		}
		pos[v.ValueReference] = i
	}
	return pos, nil
}

// NumInputs is the length of the vector sent to the companion.
func (m *VariableMap) NumInputs() int { return len(m.inputVars) }

// NumOutputs is the length of the vector received from the companion.
func (m *VariableMap) NumOutputs() int { return len(m.outputVars) }

// InputPosition returns the input vector position of vr.
func (m *VariableMap) InputPosition(vr uint32) (int, bool) {
	p, ok := m.inputs[vr]
	return p, ok
}

// OutputPosition returns the output vector position of vr.
func (m *VariableMap) OutputPosition(vr uint32) (int, bool) {
	p, ok := m.outputs[vr]
	return p, ok
}

// Inputs lists the input variables in vector order.
func (m *VariableMap) Inputs() []catalog.Variable { return m.inputVars }

// Outputs lists the output variables in vector order.
func (m *VariableMap) Outputs() []catalog.Variable { return m.outputVars }

// resolve maps every reference through lookup. Nothing is returned unless
// all references are known.
func resolve(refs []uint32, lookup func(uint32) (int, bool)) ([]int, error) {
	pos := make([]int, len(refs))
	for i, vr := range refs {
		p, ok := lookup(vr)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownReference, vr)
		}
		pos[i] = p
	}
	return pos, nil
}
