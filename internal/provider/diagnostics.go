package provider

import (
	"errors"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/diag"

	"github.com/isometry/terraform-provider-adclient/internal/adclient"
)

// clientErrorDetail renders an error with its fault kind and error number,
// e.g. "ADSearchError (code 32): ...".
func clientErrorDetail(err error) string {
	var adErr *adclient.Error
	if errors.As(err, &adErr) {
		return fmt.Sprintf("%s (code %d): %v", adErr.Kind, adErr.Code, adErr.Err)
	}
	return err.Error()
}

// addClientError appends an error diagnostic for a failed client operation.
func addClientError(diags *diag.Diagnostics, summary, detail string, err error) {
	if detail != "" {
		detail += "\n\n"
	}
	diags.AddError(summary, detail+clientErrorDetail(err))
}

// clientFromProviderData type-asserts the handle passed down from Configure.
// A nil handle with no diagnostics means the provider is not yet configured.
func clientFromProviderData(providerData any, kind string, diags *diag.Diagnostics) *adclient.ADClient {
	if providerData == nil {
		return nil
	}

	client, ok := providerData.(*adclient.ADClient)
	if !ok {
		diags.AddError(
			"Unexpected "+kind+" Configure Type",
			fmt.Sprintf("Expected *adclient.ADClient, got: %T. Please report this issue to the provider developers.", providerData),
		)
		return nil
	}

	return client
}

// requireClient reports whether the handle is available, adding an error otherwise.
func requireClient(client *adclient.ADClient, diags *diag.Diagnostics) bool {
	if client != nil {
		return true
	}
	diags.AddError(
		"Unconfigured Provider",
		"The adclient provider has not been configured. This can happen when the provider configuration depends on values that are not yet known.",
	)
	return false
}
