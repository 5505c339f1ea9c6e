package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDescription = `<?xml version="1.0" encoding="UTF-8"?>
<fmiModelDescription fmiVersion="1.0" modelName="SmOffPSZ" modelIdentifier="SmOffPSZ"
    guid="{7f9c1f2e-0000-4d6a-9b4a-000000000001}" numberOfContinuousStates="0" numberOfEventIndicators="0">
  <ModelVariables>
    <ScalarVariable name="TOutEnv" valueReference="10002" causality="output" alias="noAlias"><Real/></ScalarVariable>
    <ScalarVariable name="TRoo" valueReference="10001" causality="output"><Real/></ScalarVariable>
    <ScalarVariable name="QSetHea" valueReference="2" causality="input" alias="noAlias"><Real/></ScalarVariable>
    <ScalarVariable name="TSetCoo" valueReference="1" causality="input" alias="noAlias"><Real/></ScalarVariable>
    <ScalarVariable name="TSetCooAlias" valueReference="1" causality="input" alias="alias"><Real/></ScalarVariable>
    <ScalarVariable name="counter" valueReference="50" variability="discrete"><Integer/></ScalarVariable>
  </ModelVariables>
</fmiModelDescription>`

func TestParse_ReadsIdentityAndVariables(t *testing.T) {
	md, err := Parse(strings.NewReader(sampleDescription))
	require.NoError(t, err)

	assert.Equal(t, "1.0", md.FMIVersion)
	assert.Equal(t, "SmOffPSZ", md.ModelIdentifier)
	assert.Equal(t, "{7f9c1f2e-0000-4d6a-9b4a-000000000001}", md.GUID)
	require.Len(t, md.Variables, 6)

	counter := md.Variables[5]
	assert.Equal(t, CausalityInternal, counter.Causality, "missing causality defaults to internal")
	assert.Equal(t, NoAlias, counter.Alias, "missing alias defaults to noAlias")
	assert.Equal(t, "Integer", counter.Type)
}

func TestInputsOutputs_SkipAliasesAndSortByReference(t *testing.T) {
	md, err := Parse(strings.NewReader(sampleDescription))
	require.NoError(t, err)

	names := func(vs []Variable) []string {
		out := make([]string, len(vs))
		for i, v := range vs {
			out[i] = v.Name
		}
		return out
	}

	if diff := cmp.Diff([]string{"TSetCoo", "QSetHea"}, names(md.Inputs())); diff != "" {
		t.Errorf("inputs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"TRoo", "TOutEnv"}, names(md.Outputs())); diff != "" {
		t.Errorf("outputs mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, md.NumInputs())
	assert.Equal(t, 2, md.NumOutputs())
}

func TestInputsOutputs_SkipNonRealVariables(t *testing.T) {
	doc := `<fmiModelDescription fmiVersion="1.0" modelIdentifier="M" guid="{g}">
  <ModelVariables>
    <ScalarVariable name="occupied" valueReference="3" causality="input"><Boolean/></ScalarVariable>
    <ScalarVariable name="TSet" valueReference="4" causality="input"><Real/></ScalarVariable>
    <ScalarVariable name="mode" valueReference="1" causality="output"><Integer/></ScalarVariable>
    <ScalarVariable name="TRoo" valueReference="2" causality="output"><Real/></ScalarVariable>
  </ModelVariables>
</fmiModelDescription>`
	md, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)

	require.Len(t, md.Inputs(), 1)
	assert.Equal(t, "TSet", md.Inputs()[0].Name)
	require.Len(t, md.Outputs(), 1)
	assert.Equal(t, "TRoo", md.Outputs()[0].Name)
}

func TestParse_InvalidDocuments_ReturnError(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not xml", "hello"},
		{"no identifier", `<fmiModelDescription fmiVersion="1.0" guid="g"/>`},
		{"no guid", `<fmiModelDescription fmiVersion="1.0" modelIdentifier="m"/>`},
		{"variable without reference", `<fmiModelDescription fmiVersion="1.0" modelIdentifier="m" guid="g">
			<ModelVariables><ScalarVariable name="x" causality="input"><Real/></ScalarVariable></ModelVariables>
			</fmiModelDescription>`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile_ReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "modelDescription.xml"))
	assert.Error(t, err)
}

func TestLoad_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modelDescription.xml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDescription), 0o644))

	md, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "SmOffPSZ", md.ModelName)
}
