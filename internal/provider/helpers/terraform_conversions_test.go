package helpers

import (
	"context"
	"math/big"
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/attr"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerraformValueToGo(t *testing.T) {
	ctx := context.Background()

	list := types.ListValueMust(types.StringType, []attr.Value{types.StringValue("a"), types.StringNull()})
	object := types.ObjectValueMust(
		map[string]attr.Type{"name": types.StringType, "count": types.Int64Type},
		map[string]attr.Value{"name": types.StringValue("x"), "count": types.Int64Value(3)},
	)

	testCases := map[string]struct {
		value attr.Value
		want  any
	}{
		"null":    {value: types.StringNull(), want: nil},
		"string":  {value: types.StringValue("hello"), want: "hello"},
		"int64":   {value: types.Int64Value(42), want: int64(42)},
		"float64": {value: types.Float64Value(1.5), want: 1.5},
		"bool":    {value: types.BoolValue(true), want: true},
		"number":  {value: types.NumberValue(big.NewFloat(2.25)), want: 2.25},
		"list":    {value: list, want: []any{"a", nil}},
		"set": {
			value: types.SetValueMust(types.BoolType, []attr.Value{types.BoolValue(false)}),
			want:  []any{false},
		},
		"map": {
			value: types.MapValueMust(types.StringType, map[string]attr.Value{"k": types.StringValue("v")}),
			want:  map[string]any{"k": "v"},
		},
		"object":  {value: object, want: map[string]any{"name": "x", "count": int64(3)}},
		"dynamic": {value: types.DynamicValue(types.StringValue("inner")), want: "inner"},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got, err := TerraformValueToGo(ctx, tc.value)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTerraformValueToGo_Unknown(t *testing.T) {
	ctx := context.Background()

	_, err := TerraformValueToGo(ctx, types.StringUnknown())
	require.Error(t, err)

	nested := types.MapValueMust(types.StringType, map[string]attr.Value{"k": types.StringUnknown()})
	_, err = TerraformValueToGo(ctx, nested)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attribute k")
}

func TestStringSliceValue(t *testing.T) {
	ctx := context.Background()

	got, err := StringSliceValue(ctx, types.ListValueMust(types.StringType, []attr.Value{
		types.StringValue("dc1"), types.StringNull(), types.StringValue("dc2"),
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"dc1", "dc2"}, got)

	got, err = StringSliceValue(ctx, types.ListNull(types.StringType))
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = StringSliceValue(ctx, types.StringValue("dc1"))
	assert.Error(t, err)

	_, err = StringSliceValue(ctx, types.ListValueMust(types.Int64Type, []attr.Value{types.Int64Value(1)}))
	assert.Error(t, err)
}

func TestStringList(t *testing.T) {
	ctx := context.Background()

	list, diags := StringList(ctx, nil)
	require.False(t, diags.HasError())
	assert.False(t, list.IsNull())
	assert.Empty(t, list.Elements())

	list, diags = StringList(ctx, []string{"a", "b"})
	require.False(t, diags.HasError())
	assert.Len(t, list.Elements(), 2)
}

func TestAttributesMap(t *testing.T) {
	ctx := context.Background()

	m, diags := AttributesMap(ctx, map[string][]string{"mail": {"john@example.com"}})
	require.False(t, diags.HasError())
	assert.True(t, m.Type(ctx).Equal(AttributesType))

	var got map[string][]string
	require.False(t, m.ElementsAs(ctx, &got, false).HasError())
	assert.Equal(t, map[string][]string{"mail": {"john@example.com"}}, got)

	empty, diags := AttributesMap(ctx, nil)
	require.False(t, diags.HasError())
	assert.False(t, empty.IsNull())
}

func TestEntriesMap(t *testing.T) {
	ctx := context.Background()

	entries := map[string]map[string][]string{
		"CN=John Doe,DC=example,DC=com": {"sAMAccountName": {"jdoe"}},
	}
	m, diags := EntriesMap(ctx, entries)
	require.False(t, diags.HasError())
	assert.True(t, m.Type(ctx).Equal(EntriesType))

	var got map[string]map[string][]string
	require.False(t, m.ElementsAs(ctx, &got, false).HasError())
	assert.Equal(t, entries, got)
}
