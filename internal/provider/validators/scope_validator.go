package validators

import (
	"context"

	"github.com/hashicorp/terraform-plugin-framework/schema/validator"

	"github.com/isometry/terraform-provider-adclient/internal/adclient"
)

// Ensure the implementation satisfies the expected interface.
var _ validator.String = scopeValidator{}

// scopeValidator validates a search scope given by name or number.
type scopeValidator struct{}

// Description describes the validation in plain text.
func (v scopeValidator) Description(_ context.Context) string {
	return "value must be a search scope: base, onelevel or subtree (or 0, 1, 2)"
}

// MarkdownDescription describes the validation in Markdown.
func (v scopeValidator) MarkdownDescription(_ context.Context) string {
	return "value must be a search scope: `base`, `onelevel` or `subtree` (or `0`, `1`, `2`)"
}

// ValidateString performs the validation.
func (v scopeValidator) ValidateString(ctx context.Context, request validator.StringRequest, response *validator.StringResponse) {
	if request.ConfigValue.IsNull() || request.ConfigValue.IsUnknown() {
		return
	}

	if _, err := adclient.ParseScope(request.ConfigValue.ValueString()); err != nil {
		response.Diagnostics.AddAttributeError(
			request.Path,
			"Invalid Search Scope",
			err.Error(),
		)
	}
}

// IsValidScope returns a validator which ensures that any configured
// attribute value names a search scope, case-insensitively.
//
// Unknown values and null values are skipped from validation.
func IsValidScope() validator.String {
	return scopeValidator{}
}
