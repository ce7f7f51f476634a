package provider

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/isometry/terraform-provider-adclient/internal/ldap"
)

// initializeLogging initializes the provider subsystem for consistent logging.
// This should be called at the beginning of each data source Read method
// and resource Create/Read/Update/Delete methods.
func initializeLogging(ctx context.Context) context.Context {
	// Pattern: TF_LOG_PROVIDER_ADCLIENT_<SUBSYSTEM>
	return tflog.NewSubsystem(ctx, ldapclient.SubsystemProvider,
		tflog.WithLevelFromEnv("TF_LOG_PROVIDER_ADCLIENT_PROVIDER"))
}

// diagnosticsError returns the first error diagnostic as an error, for exit logging.
func diagnosticsError(diags diag.Diagnostics) error {
	for _, d := range diags.Errors() {
		return fmt.Errorf("%s: %s", d.Summary(), d.Detail())
	}
	return nil
}

// logFunctionRun wraps ldapclient.LogFunctionOperation with the provider subsystem initialized.
func logFunctionRun(ctx context.Context, name string, fields map[string]any) func(error) {
	return ldapclient.LogFunctionOperation(initializeLogging(ctx), name, fields)
}
