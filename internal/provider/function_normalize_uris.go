package provider

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/function"
	"github.com/hashicorp/terraform-plugin-framework/types"

	"github.com/isometry/terraform-provider-adclient/internal/adclient"
	"github.com/isometry/terraform-provider-adclient/internal/provider/helpers"
)

var _ function.Function = &NormalizeURIsFunction{}

// NormalizeURIsFunction implements the normalize_uris function.
type NormalizeURIsFunction struct{}

// Metadata returns the function name.
func (f NormalizeURIsFunction) Metadata(_ context.Context, req function.MetadataRequest, resp *function.MetadataResponse) {
	resp.Name = "normalize_uris"
}

// Definition returns the function schema including parameters and return types.
func (f NormalizeURIsFunction) Definition(_ context.Context, req function.DefinitionRequest, resp *function.DefinitionResponse) {
	resp.Definition = function.Definition{
		Summary:     "Normalize a URI or list of URIs to a list",
		Description: "Promotes a single URI string to a one-element list and compacts a list of URIs, dropping blank entries. Null becomes an empty list.",
		MarkdownDescription: "Normalizes the argument accepted by the provider `uris` setting.\n\n" +
			"- A string becomes a single-element list\n" +
			"- Lists, sets and tuples of strings are trimmed and blank entries dropped\n" +
			"- Null becomes an empty list",
		Parameters: []function.Parameter{
			function.DynamicParameter{
				Name:                "uris",
				Description:         "A URI string or a list of URI strings.",
				MarkdownDescription: "A URI string or a list of URI strings.",
				AllowNullValue:      true,
			},
		},
		Return: function.ListReturn{ElementType: types.StringType},
	}
}

// Run implements the function logic.
func (f NormalizeURIsFunction) Run(ctx context.Context, req function.RunRequest, resp *function.RunResponse) {
	var uris types.Dynamic

	resp.Error = function.ConcatFuncErrors(resp.Error, req.Arguments.Get(ctx, &uris))
	if resp.Error != nil {
		return
	}

	if uris.IsUnknown() || uris.IsUnderlyingValueUnknown() {
		resp.Error = function.NewArgumentFuncError(0, "uris parameter cannot be unknown")
		return
	}

	raw, err := helpers.TerraformValueToGo(ctx, uris)
	if err != nil {
		resp.Error = function.NewArgumentFuncError(0, fmt.Sprintf("Failed to read uris: %s", err.Error()))
		return
	}

	logCompletion := logFunctionRun(ctx, "normalize_uris", nil)
	normalized, err := adclient.NormalizeURIs(raw)
	logCompletion(err)
	if err != nil {
		resp.Error = function.NewArgumentFuncError(0, err.Error())
		return
	}

	resp.Error = resp.Result.Set(ctx, normalized)
}

func NewNormalizeURIsFunction() function.Function {
	return &NormalizeURIsFunction{}
}
