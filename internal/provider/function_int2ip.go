package provider

import (
	"context"

	"github.com/hashicorp/terraform-plugin-framework/function"

	"github.com/isometry/terraform-provider-adclient/internal/adclient"
)

var _ function.Function = &Int2IPFunction{}

// Int2IPFunction implements the int2ip function.
type Int2IPFunction struct{}

// Metadata returns the function name.
func (f Int2IPFunction) Metadata(_ context.Context, req function.MetadataRequest, resp *function.MetadataResponse) {
	resp.Name = "int2ip"
}

// Definition returns the function schema including parameters and return types.
func (f Int2IPFunction) Definition(_ context.Context, req function.DefinitionRequest, resp *function.DefinitionResponse) {
	resp.Definition = function.Definition{
		Summary:     "Convert a signed 32-bit address to dotted-quad form",
		Description: "Converts the decimal integer stored in msRADIUSFramedIPAddress to a dotted-quad IPv4 address. Negative values are read as two's complement.",
		MarkdownDescription: "Converts the decimal integer stored in `msRADIUSFramedIPAddress` to a dotted-quad IPv4 address.\n\n" +
			"Negative values are read as two's complement, so `-1062731775` becomes `192.168.0.1`.",
		Parameters: []function.Parameter{
			function.StringParameter{
				Name:                "value",
				Description:         "Decimal integer as a string.",
				MarkdownDescription: "Decimal integer as a string.",
			},
		},
		Return: function.StringReturn{},
	}
}

// Run implements the function logic.
func (f Int2IPFunction) Run(ctx context.Context, req function.RunRequest, resp *function.RunResponse) {
	var value string

	resp.Error = function.ConcatFuncErrors(resp.Error, req.Arguments.Get(ctx, &value))
	if resp.Error != nil {
		return
	}

	logCompletion := logFunctionRun(ctx, "int2ip", map[string]any{"value": value})
	ip, err := adclient.Int2IP(value)
	logCompletion(err)
	if err != nil {
		resp.Error = function.NewArgumentFuncError(0, err.Error())
		return
	}

	resp.Error = resp.Result.Set(ctx, ip)
}

func NewInt2IPFunction() function.Function {
	return &Int2IPFunction{}
}
