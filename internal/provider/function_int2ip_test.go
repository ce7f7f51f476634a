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

func TestInt2IPFunction_Metadata(t *testing.T) {
	f := &provider.Int2IPFunction{}

	var resp function.MetadataResponse
	f.Metadata(t.Context(), function.MetadataRequest{}, &resp)

	assert.Equal(t, "int2ip", resp.Name)
}

func TestInt2IPFunction_Definition(t *testing.T) {
	f := &provider.Int2IPFunction{}

	var resp function.DefinitionResponse
	f.Definition(t.Context(), function.DefinitionRequest{}, &resp)

	assert.NotEmpty(t, resp.Definition.Summary)
	require.Len(t, resp.Definition.Parameters, 1)
	assert.Equal(t, "value", resp.Definition.Parameters[0].GetName())
	_, ok := resp.Definition.Return.(function.StringReturn)
	assert.True(t, ok)
}

func TestInt2IPFunction_Run(t *testing.T) {
	testCases := map[string]struct {
		input     string
		expected  string
		expectErr bool
	}{
		"positive":          {input: "167772161", expected: "10.0.0.1"},
		"negative":          {input: "-1062731775", expected: "192.168.0.1"},
		"zero":              {input: "0", expected: "0.0.0.0"},
		"unsigned maximum":  {input: "4294967295", expected: "255.255.255.255"},
		"out of range":      {input: "4294967296", expectErr: true},
		"not a number":      {input: "10.0.0.1", expectErr: true},
		"empty":             {input: "", expectErr: true},
		"surrounding space": {input: " 167772161 ", expected: "10.0.0.1"},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			f := &provider.Int2IPFunction{}

			req := function.RunRequest{
				Arguments: function.NewArgumentsData([]attr.Value{types.StringValue(tc.input)}),
			}
			resp := &function.RunResponse{
				Result: function.NewResultData(types.StringUnknown()),
			}

			f.Run(t.Context(), req, resp)

			if tc.expectErr {
				require.NotNil(t, resp.Error)
				return
			}
			require.Nil(t, resp.Error)
			assert.Equal(t, types.StringValue(tc.expected), resp.Result.Value())
		})
	}
}
