// Package helpers provides common utility functions for Terraform type conversions
// that are reused across resources, data sources, and functions.
package helpers

import (
	"context"
	"fmt"
	"slices"

	"github.com/hashicorp/terraform-plugin-framework/attr"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

// AttributesType is the Terraform type of an attribute name to values map.
var AttributesType = types.MapType{ElemType: types.ListType{ElemType: types.StringType}}

// EntriesType is the Terraform type of a DN to attributes map.
var EntriesType = types.MapType{ElemType: AttributesType}

// TerraformValueToGo converts various Terraform attr.Value types to Go values.
// It recursively handles lists, sets, tuples, maps, objects and dynamic values.
// Returns nil for null values and an error for unknown values.
func TerraformValueToGo(ctx context.Context, value attr.Value) (any, error) {
	if value.IsNull() {
		return nil, nil
	}
	if value.IsUnknown() {
		return nil, fmt.Errorf("cannot process unknown values")
	}

	switch v := value.(type) {
	case types.String:
		return v.ValueString(), nil
	case types.Int64:
		return v.ValueInt64(), nil
	case types.Float64:
		return v.ValueFloat64(), nil
	case types.Bool:
		return v.ValueBool(), nil
	case types.Number:
		bigFloat := v.ValueBigFloat()
		if bigFloat == nil {
			return nil, fmt.Errorf("number value is nil")
		}
		floatVal, _ := bigFloat.Float64()
		return floatVal, nil
	case types.List:
		return elementsToGo(ctx, v.Elements())
	case types.Set:
		return elementsToGo(ctx, v.Elements())
	case types.Tuple:
		return elementsToGo(ctx, v.Elements())
	case types.Map:
		return attributesToGo(ctx, v.Elements())
	case types.Object:
		return attributesToGo(ctx, v.Attributes())
	case types.Dynamic:
		return TerraformValueToGo(ctx, v.UnderlyingValue())
	default:
		return nil, fmt.Errorf("unsupported type: %T", value)
	}
}

func elementsToGo(ctx context.Context, elements []attr.Value) ([]any, error) {
	result := make([]any, len(elements))
	for i, elem := range elements {
		goVal, err := TerraformValueToGo(ctx, elem)
		if err != nil {
			return nil, err
		}
		result[i] = goVal
	}
	return result, nil
}

func attributesToGo(ctx context.Context, attributes map[string]attr.Value) (map[string]any, error) {
	result := make(map[string]any, len(attributes))
	for name, val := range attributes {
		goVal, err := TerraformValueToGo(ctx, val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert attribute %s: %w", name, err)
		}
		result[name] = goVal
	}
	return result, nil
}

// StringList converts a Go string slice to a Terraform list, mapping nil to an empty list.
func StringList(ctx context.Context, values []string) (types.List, diag.Diagnostics) {
	if values == nil {
		values = []string{}
	}
	return types.ListValueFrom(ctx, types.StringType, values)
}

// AttributesMap converts an attribute name to values map to a Terraform map.
func AttributesMap(ctx context.Context, attributes map[string][]string) (types.Map, diag.Diagnostics) {
	if attributes == nil {
		attributes = map[string][]string{}
	}
	return types.MapValueFrom(ctx, AttributesType.ElemType, attributes)
}

// EntriesMap converts a DN to attributes map to a Terraform map.
func EntriesMap(ctx context.Context, entries map[string]map[string][]string) (types.Map, diag.Diagnostics) {
	if entries == nil {
		entries = map[string]map[string][]string{}
	}
	return types.MapValueFrom(ctx, EntriesType.ElemType, entries)
}

// StringSliceValue reads a list or set of strings, skipping null elements.
func StringSliceValue(ctx context.Context, value attr.Value) ([]string, error) {
	raw, err := TerraformValueToGo(ctx, value)
	if err != nil || raw == nil {
		return nil, err
	}

	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list of strings, got %T", raw)
	}

	result := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected a list of strings, got element of type %T", item)
		}
		result = append(result, s)
	}
	return slices.Clip(result), nil
}
