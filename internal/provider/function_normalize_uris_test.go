package provider_test

import (
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/attr"
	"github.com/hashicorp/terraform-plugin-framework/function"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/terraform-provider-adclient/internal/provider"
)

func TestNormalizeURIsFunction_Metadata(t *testing.T) {
	f := &provider.NormalizeURIsFunction{}

	var resp function.MetadataResponse
	f.Metadata(t.Context(), function.MetadataRequest{}, &resp)

	assert.Equal(t, "normalize_uris", resp.Name)
}

func TestNormalizeURIsFunction_Definition(t *testing.T) {
	f := &provider.NormalizeURIsFunction{}

	var resp function.DefinitionResponse
	f.Definition(t.Context(), function.DefinitionRequest{}, &resp)

	require.Len(t, resp.Definition.Parameters, 1)
	assert.Equal(t, "uris", resp.Definition.Parameters[0].GetName())
	_, ok := resp.Definition.Parameters[0].(function.DynamicParameter)
	assert.True(t, ok)
}

func runNormalizeURIs(t *testing.T, input types.Dynamic) ([]string, *function.FuncError) {
	t.Helper()

	f := &provider.NormalizeURIsFunction{}
	req := function.RunRequest{
		Arguments: function.NewArgumentsData([]attr.Value{input}),
	}
	resp := &function.RunResponse{
		Result: function.NewResultData(types.ListUnknown(types.StringType)),
	}

	f.Run(t.Context(), req, resp)
	if resp.Error != nil {
		return nil, resp.Error
	}

	list, ok := resp.Result.Value().(types.List)
	require.True(t, ok, "expected list result, got %T", resp.Result.Value())

	var out []string
	diags := list.ElementsAs(t.Context(), &out, false)
	require.False(t, diags.HasError(), "diagnostics: %v", diags)
	return out, nil
}

func TestNormalizeURIsFunction_Run(t *testing.T) {
	testCases := map[string]struct {
		input    types.Dynamic
		expected []string
	}{
		"single string": {
			input:    types.DynamicValue(types.StringValue(" ldap://dc1.example.com ")),
			expected: []string{"ldap://dc1.example.com"},
		},
		"blank string": {
			input:    types.DynamicValue(types.StringValue("  ")),
			expected: []string{},
		},
		"list": {
			input: types.DynamicValue(types.ListValueMust(types.StringType, []attr.Value{
				types.StringValue("ldap://dc1.example.com"),
				types.StringValue(""),
				types.StringValue("ldap://dc2.example.com"),
			})),
			expected: []string{"ldap://dc1.example.com", "ldap://dc2.example.com"},
		},
		"tuple": {
			input: types.DynamicValue(types.TupleValueMust(
				[]attr.Type{types.StringType, types.StringType},
				[]attr.Value{types.StringValue("ldaps://a"), types.StringValue("ldaps://b")},
			)),
			expected: []string{"ldaps://a", "ldaps://b"},
		},
		"null": {
			input:    types.DynamicNull(),
			expected: []string{},
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got, funcErr := runNormalizeURIs(t, tc.input)
			require.Nil(t, funcErr)
			assert.ElementsMatch(t, tc.expected, got)
		})
	}
}

func TestNormalizeURIsFunction_RunRejectsNonStrings(t *testing.T) {
	_, funcErr := runNormalizeURIs(t, types.DynamicValue(types.ListValueMust(types.Int64Type, []attr.Value{
		types.Int64Value(1),
	})))
	require.NotNil(t, funcErr)
	assert.Contains(t, funcErr.Error(), "expected string")

	_, funcErr = runNormalizeURIs(t, types.DynamicValue(types.BoolValue(true)))
	require.NotNil(t, funcErr)
}
