// Package catalog reads the variable catalog of an exported model from its
// FMI 1.0 model description (modelDescription.xml).
//
// Only what the adapter consumes is decoded: model identity and the scalar
// variables with their value reference, causality, alias status and type.
package catalog

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"
)

// Causality of a scalar variable.
type Causality string

const (
	CausalityInput    Causality = "input"
	CausalityOutput   Causality = "output"
	CausalityInternal Causality = "internal"
	CausalityNone     Causality = "none"
)

// Alias status of a scalar variable.
type Alias string

const (
	NoAlias      Alias = "noAlias"
	AliasOf      Alias = "alias"
	NegatedAlias Alias = "negatedAlias"
)

// Variable describes one scalar variable.
type Variable struct {
	Name           string
	Description    string
	ValueReference uint32
	Causality      Causality
	Alias          Alias
	Type           string // "Real", "Integer", "Boolean", "String" or "Enumeration"
}

// ModelDescription is the decoded catalog of one model.
type ModelDescription struct {
	FMIVersion      string
	ModelName       string
	ModelIdentifier string
	GUID            string
	Variables       []Variable
}

type xmlDescription struct {
	XMLName         xml.Name `xml:"fmiModelDescription"`
	FMIVersion      string   `xml:"fmiVersion,attr"`
	ModelName       string   `xml:"modelName,attr"`
	ModelIdentifier string   `xml:"modelIdentifier,attr"`
	GUID            string   `xml:"guid,attr"`
	Variables       []struct {
		Name           string    `xml:"name,attr"`
		Description    string    `xml:"description,attr"`
		ValueReference *uint32   `xml:"valueReference,attr"`
		Causality      string    `xml:"causality,attr"`
		Alias          string    `xml:"alias,attr"`
		Real           *struct{} `xml:"Real"`
		Integer        *struct{} `xml:"Integer"`
		Boolean        *struct{} `xml:"Boolean"`
		String         *struct{} `xml:"String"`
		Enumeration    *struct{} `xml:"Enumeration"`
	} `xml:"ModelVariables>ScalarVariable"`
}

// Load parses the model description at path.
func Load(path string) (*ModelDescription, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening model description: %w", err)
	}
	defer f.Close()
	md, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return md, nil
}

// Parse decodes a model description document.
func Parse(r io.Reader) (*ModelDescription, error) {
	var doc xmlDescription
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing model description: %w", err)
	}
	if doc.ModelIdentifier == "" {
		return nil, fmt.Errorf("model description has no modelIdentifier")
	}
	if doc.GUID == "" {
		return nil, fmt.Errorf("model description has no guid")
	}

	md := &ModelDescription{
		FMIVersion:      doc.FMIVersion,
		ModelName:       doc.ModelName,
		ModelIdentifier: doc.ModelIdentifier,
		GUID:            doc.GUID,
		Variables:       make([]Variable, 0, len(doc.Variables)),
	}
	for i, sv := range doc.Variables {
		if sv.ValueReference == nil {
			return nil, fmt.Errorf("scalar variable %d (%q) has no valueReference", i, sv.Name)
		}
		v := Variable{
			Name:           sv.Name,
			Description:    sv.Description,
			ValueReference: *sv.ValueReference,
			Causality:      Causality(sv.Causality),
			Alias:          Alias(sv.Alias),
		}
		if v.Causality == "" {
			v.Causality = CausalityInternal
		}
		if v.Alias == "" {
			v.Alias = NoAlias
		}
		switch {
		case sv.Real != nil:
			v.Type = "Real"
		case sv.Integer != nil:
			v.Type = "Integer"
		case sv.Boolean != nil:
			v.Type = "Boolean"
		case sv.String != nil:
			v.Type = "String"
		case sv.Enumeration != nil:
			v.Type = "Enumeration"
		}
		md.Variables = append(md.Variables, v)
	}
	return md, nil
}

// Inputs returns the non-aliased Real input variables ordered by value
// reference. The exchanged vectors carry doubles only.
func (m *ModelDescription) Inputs() []Variable {
	return m.filter(CausalityInput)
}

// Outputs returns the non-aliased Real output variables ordered by value
// reference.
func (m *ModelDescription) Outputs() []Variable {
	return m.filter(CausalityOutput)
}

// NumInputs returns len(m.Inputs()).
func (m *ModelDescription) NumInputs() int { return len(m.Inputs()) }

// NumOutputs returns len(m.Outputs()).
func (m *ModelDescription) NumOutputs() int { return len(m.Outputs()) }

func (m *ModelDescription) filter(c Causality) []Variable {
	var out []Variable
	for _, v := range m.Variables {
		if v.Alias != NoAlias || v.Causality != c || v.Type != "Real" {
			continue
		}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ValueReference < out[j].ValueReference
	})
	return out
}
