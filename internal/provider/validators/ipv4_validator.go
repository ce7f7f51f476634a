package validators

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/schema/validator"

	ldapclient "github.com/isometry/terraform-provider-adclient/internal/ldap"
)

// Ensure the implementation satisfies the expected interface.
var _ validator.String = ipv4Validator{}

// ipv4Validator validates a dotted-quad address storable in msRADIUSFramedIPAddress.
type ipv4Validator struct{}

// Description describes the validation in plain text.
func (v ipv4Validator) Description(_ context.Context) string {
	return "value must be a dotted-quad IPv4 address"
}

// MarkdownDescription describes the validation in Markdown.
func (v ipv4Validator) MarkdownDescription(ctx context.Context) string {
	return v.Description(ctx)
}

// ValidateString performs the validation. The empty string is accepted and clears the address.
func (v ipv4Validator) ValidateString(ctx context.Context, request validator.StringRequest, response *validator.StringResponse) {
	if request.ConfigValue.IsNull() || request.ConfigValue.IsUnknown() {
		return
	}

	value := request.ConfigValue.ValueString()
	if value == "" {
		return
	}

	if _, err := ldapclient.IP2Int(value); err != nil {
		response.Diagnostics.AddAttributeError(
			request.Path,
			"Invalid IPv4 Address",
			fmt.Sprintf("The value %q is not a valid IPv4 address: %s", value, err.Error()),
		)
	}
}

// IsValidIPv4 returns a validator which ensures that any configured
// attribute value is an IPv4 address or empty.
//
// Unknown values and null values are skipped from validation.
func IsValidIPv4() validator.String {
	return ipv4Validator{}
}
