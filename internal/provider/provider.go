package provider

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/terraform-plugin-framework-validators/int64validator"
	"github.com/hashicorp/terraform-plugin-framework-validators/providervalidator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/function"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/provider/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-adclient/internal/adclient"
	ldapclient "github.com/isometry/terraform-provider-adclient/internal/ldap"
	"github.com/isometry/terraform-provider-adclient/internal/provider/helpers"
)

// Ensure ADClientProvider satisfies various provider interfaces.
var _ provider.Provider = &ADClientProvider{}
var _ provider.ProviderWithFunctions = &ADClientProvider{}
var _ provider.ProviderWithConfigValidators = &ADClientProvider{}

// ADClientProvider defines the provider implementation.
type ADClientProvider struct {
	// version is set to the provider version on release, "dev" when the
	// provider is built and ran locally, and "test" when running acceptance
	// testing.
	version string

	// clientOptions are appended to the options used to build the handle in Configure.
	clientOptions []adclient.Option
}

// ADClientProviderModel describes the provider data model.
type ADClientProviderModel struct {
	// Connection settings
	URIs       types.Dynamic `tfsdk:"uris"`
	Domain     types.String  `tfsdk:"domain"`
	SearchBase types.String  `tfsdk:"search_base"`
	Secured    types.Bool    `tfsdk:"secured"`

	// Authentication settings
	BindDN       types.String `tfsdk:"bind_dn"`
	BindPassword types.String `tfsdk:"bind_password"`
	NTLMDomain   types.String `tfsdk:"ntlm_domain"`

	// Kerberos settings (optional)
	KerberosRealm  types.String `tfsdk:"kerberos_realm"`
	KerberosKeytab types.String `tfsdk:"kerberos_keytab"`
	KerberosConfig types.String `tfsdk:"kerberos_config"`
	KerberosCCache types.String `tfsdk:"kerberos_ccache"`
	KerberosSPN    types.String `tfsdk:"kerberos_spn"`

	// TLS settings
	SkipTLSVerify types.Bool   `tfsdk:"skip_tls_verify"`
	TLSCACertFile types.String `tfsdk:"tls_ca_cert_file"`

	// Connection pool and retry settings
	MaxConnections types.Int64 `tfsdk:"max_connections"`
	ConnectTimeout types.Int64 `tfsdk:"connect_timeout"`
	MaxRetries     types.Int64 `tfsdk:"max_retries"`

	// Cache settings
	WarmCache types.Bool `tfsdk:"warm_cache"`
}

func (p *ADClientProvider) Metadata(ctx context.Context, req provider.MetadataRequest, resp *provider.MetadataResponse) {
	resp.TypeName = "adclient"
	resp.Version = p.version
}

func (p *ADClientProvider) Schema(ctx context.Context, req provider.SchemaRequest, resp *provider.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "The adclient provider reads and edits Active Directory users, groups, computers and " +
			"organizational units over LDAP. It logs in once against an ordered list of domain controllers and " +
			"shares the bound handle with every data source and resource.",
		Attributes: map[string]schema.Attribute{
			"uris": schema.DynamicAttribute{
				MarkdownDescription: "Domain controller URI, or list of URIs tried in order " +
					"(e.g., `ldaps://dc1.example.com` or `[\"ldap://dc1.example.com\", \"ldap://dc2.example.com\"]`). " +
					"Can be set via the `AD_URIS` environment variable as a comma-separated list.",
				Optional: true,
			},
			"domain": schema.StringAttribute{
				MarkdownDescription: "Active Directory domain name for SRV-based discovery (e.g., `example.com`), " +
					"used when `uris` is not set. Can be set via the `AD_DOMAIN` environment variable.",
				Optional: true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"search_base": schema.StringAttribute{
				MarkdownDescription: "Base DN for searches (e.g., `DC=example,DC=com`). " +
					"If not specified, it is read from the root DSE. " +
					"Can be set via the `AD_SEARCH_BASE` environment variable.",
				Optional: true,
			},
			"secured": schema.BoolAttribute{
				MarkdownDescription: "Protect the connection with TLS: `ldap://` URIs are upgraded with StartTLS. " +
					"Password changes require a secured connection. Defaults to `true`. " +
					"Can be set via the `AD_SECURED` environment variable.",
				Optional: true,
			},

			// Authentication settings
			"bind_dn": schema.StringAttribute{
				MarkdownDescription: "Bind identity. Supports DN, UPN, or `DOMAIN\\user` formats. " +
					"Leave unset for an anonymous or Kerberos ticket login. " +
					"Can be set via the `AD_BIND_DN` environment variable.",
				Optional: true,
			},
			"bind_password": schema.StringAttribute{
				MarkdownDescription: "Bind password. " +
					"Can be set via the `AD_BIND_PASSWORD` environment variable.",
				Optional:  true,
				Sensitive: true,
			},
			"ntlm_domain": schema.StringAttribute{
				MarkdownDescription: "NetBIOS domain used to bind with NTLM instead of a simple bind. " +
					"Can be set via the `AD_NTLM_DOMAIN` environment variable.",
				Optional: true,
			},

			// Kerberos settings
			"kerberos_realm": schema.StringAttribute{
				MarkdownDescription: "Kerberos realm for GSSAPI authentication (e.g., `EXAMPLE.COM`). " +
					"Can be set via the `AD_KERBEROS_REALM` environment variable.",
				Optional: true,
			},
			"kerberos_keytab": schema.StringAttribute{
				MarkdownDescription: "Path to Kerberos keytab file for authentication. " +
					"Can be set via the `AD_KERBEROS_KEYTAB` environment variable.",
				Optional: true,
			},
			"kerberos_config": schema.StringAttribute{
				MarkdownDescription: "Path to Kerberos configuration file. Defaults to system default. " +
					"Can be set via the `AD_KERBEROS_CONFIG` environment variable.",
				Optional: true,
			},
			"kerberos_ccache": schema.StringAttribute{
				MarkdownDescription: "Path to Kerberos credential cache file for authentication. " +
					"Can be set via the `AD_KERBEROS_CCACHE` environment variable.",
				Optional: true,
			},
			"kerberos_spn": schema.StringAttribute{
				MarkdownDescription: "Override Service Principal Name (SPN) for Kerberos authentication. " +
					"Format: `ldap/<hostname>` (e.g., `ldap/dc1.example.com`). " +
					"Can be set via the `AD_KERBEROS_SPN` environment variable.",
				Optional: true,
			},

			// TLS settings
			"skip_tls_verify": schema.BoolAttribute{
				MarkdownDescription: "Skip TLS certificate verification. Not recommended for production. Defaults to `false`. " +
					"Can be set via the `AD_SKIP_TLS_VERIFY` environment variable.",
				Optional: true,
			},
			"tls_ca_cert_file": schema.StringAttribute{
				MarkdownDescription: "Path to custom CA certificate file for TLS verification. " +
					"Can be set via the `AD_TLS_CA_CERT_FILE` environment variable.",
				Optional: true,
			},

			// Connection pool settings
			"max_connections": schema.Int64Attribute{
				MarkdownDescription: "Maximum number of connections in the connection pool. Defaults to `10`. " +
					"Can be set via the `AD_MAX_CONNECTIONS` environment variable.",
				Optional: true,
				Validators: []validator.Int64{
					int64validator.AtLeast(1),
				},
			},
			"connect_timeout": schema.Int64Attribute{
				MarkdownDescription: "Connection timeout in seconds. Defaults to `30`. " +
					"Can be set via the `AD_CONNECT_TIMEOUT` environment variable.",
				Optional: true,
				Validators: []validator.Int64{
					int64validator.AtLeast(1),
				},
			},
			"max_retries": schema.Int64Attribute{
				MarkdownDescription: "Maximum number of retry attempts for failed operations. Defaults to `3`. " +
					"Can be set via the `AD_MAX_RETRIES` environment variable.",
				Optional: true,
				Validators: []validator.Int64{
					int64validator.AtLeast(0),
				},
			},

			// Cache settings
			"warm_cache": schema.BoolAttribute{
				MarkdownDescription: "Pre-populate the identifier cache with every user, group and computer after login. " +
					"Defaults to `false`. Can be set via the `AD_WARM_CACHE` environment variable.",
				Optional: true,
			},
		},
	}
}

// ConfigValidators implements provider.ProviderWithConfigValidators.
func (p *ADClientProvider) ConfigValidators(ctx context.Context) []provider.ConfigValidator {
	return []provider.ConfigValidator{
		providervalidator.Conflicting(
			path.MatchRoot("uris"),
			path.MatchRoot("domain"),
		),
		providervalidator.RequiredTogether(
			path.MatchRoot("bind_dn"),
			path.MatchRoot("bind_password"),
		),
	}
}

func (p *ADClientProvider) Configure(ctx context.Context, req provider.ConfigureRequest, resp *provider.ConfigureResponse) {
	var data ADClientProviderModel

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	ctx = p.configureLogging(ctx)

	tflog.Info(ctx, "Configuring adclient provider", map[string]any{
		"version": p.version,
	})

	uris := p.getURIs(ctx, data.URIs, &resp.Diagnostics)
	if resp.Diagnostics.HasError() {
		return
	}

	template := p.buildConnectionConfig(&data)
	if len(uris) == 0 && template.Domain == "" {
		resp.Diagnostics.AddError(
			"Missing Connection Configuration",
			"Either 'uris' or 'domain' must be configured, or the AD_URIS or AD_DOMAIN environment variable set.",
		)
		return
	}

	opts := append([]adclient.Option{adclient.WithConfig(template)}, p.clientOptions...)
	client := adclient.New(opts...)

	params := adclient.LoginParams{
		URIs:         uris,
		BindDN:       p.getStringValue(data.BindDN, "AD_BIND_DN"),
		BindPassword: p.getStringValue(data.BindPassword, "AD_BIND_PASSWORD"),
		SearchBase:   p.getStringValue(data.SearchBase, "AD_SEARCH_BASE"),
		Secured:      p.getBoolValue(data.Secured, "AD_SECURED", true),
	}

	start := time.Now()
	if err := client.LoginWithParams(ctx, params); err != nil {
		tflog.Error(ctx, "Login failed", map[string]any{
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		addClientError(&resp.Diagnostics, "Unable to Log In to Active Directory",
			"The provider could not bind to any of the configured domain controllers. "+
				"Please verify your connection and authentication settings.", err)
		return
	}

	tflog.Info(ctx, "Login successful", map[string]any{
		"bound_uri":   client.BindedURI(),
		"search_base": client.SearchBase(),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if p.getBoolValue(data.WarmCache, "AD_WARM_CACHE", false) {
		start = time.Now()
		entries, err := client.WarmCache(ctx)
		if err != nil {
			tflog.Error(ctx, "Cache warming failed but will continue", map[string]any{
				"error":       err.Error(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
			resp.Diagnostics.AddWarning(
				"Cache Warming Failed",
				"Cache warming was enabled but failed to complete successfully. "+
					"The provider will function normally but lookups may be slower. "+
					"Cache Warming Error: "+err.Error(),
			)
		} else {
			tflog.Info(ctx, "Cache warming completed successfully", map[string]any{
				"duration_ms":    time.Since(start).Milliseconds(),
				"entries_cached": entries,
			})
		}
	}

	resp.DataSourceData = client
	resp.ResourceData = client
}

// configureLogging sets up persistent provider log fields.
func (p *ADClientProvider) configureLogging(ctx context.Context) context.Context {
	ctx = tflog.SetField(ctx, "provider", "adclient")
	ctx = tflog.SetField(ctx, "provider_version", p.version)
	return ctx
}

// getURIs resolves the uris attribute, falling back to the comma-separated AD_URIS variable.
func (p *ADClientProvider) getURIs(ctx context.Context, value types.Dynamic, diags *diag.Diagnostics) []string {
	var raw any
	if value.IsUnknown() {
		diags.AddAttributeError(path.Root("uris"), "Unknown Provider Value",
			"The 'uris' value is not known during configuration. Use a static value or the AD_URIS environment variable.")
		return nil
	}
	if !value.IsNull() && !value.IsUnderlyingValueNull() {
		v, err := helpers.TerraformValueToGo(ctx, value)
		if err != nil {
			diags.AddAttributeError(path.Root("uris"), "Invalid URIs", err.Error())
			return nil
		}
		raw = v
	} else if env := os.Getenv("AD_URIS"); env != "" {
		raw = strings.Split(env, ",")
	}

	uris, err := adclient.NormalizeURIs(raw)
	if err != nil {
		diags.AddAttributeError(path.Root("uris"), "Invalid URIs", err.Error())
		return nil
	}
	return uris
}

// buildConnectionConfig constructs the connection template from provider config and environment variables.
func (p *ADClientProvider) buildConnectionConfig(data *ADClientProviderModel) *ldapclient.ConnectionConfig {
	config := ldapclient.DefaultConfig()

	config.Domain = p.getStringValue(data.Domain, "AD_DOMAIN")
	config.NTLMDomain = p.getStringValue(data.NTLMDomain, "AD_NTLM_DOMAIN")

	config.KerberosRealm = p.getStringValue(data.KerberosRealm, "AD_KERBEROS_REALM")
	config.KerberosKeytab = p.getStringValue(data.KerberosKeytab, "AD_KERBEROS_KEYTAB")
	config.KerberosConfig = p.getStringValue(data.KerberosConfig, "AD_KERBEROS_CONFIG")
	config.KerberosCCache = p.getStringValue(data.KerberosCCache, "AD_KERBEROS_CCACHE")
	config.KerberosSPN = p.getStringValue(data.KerberosSPN, "AD_KERBEROS_SPN")

	config.InsecureSkipVerify = p.getBoolValue(data.SkipTLSVerify, "AD_SKIP_TLS_VERIFY", false)
	config.TLSCACertFile = p.getStringValue(data.TLSCACertFile, "AD_TLS_CA_CERT_FILE")

	if maxConnections := p.getInt64Value(data.MaxConnections, "AD_MAX_CONNECTIONS", 10); maxConnections > 0 {
		config.MaxConnections = int(maxConnections)
	}

	if connectTimeout := p.getInt64Value(data.ConnectTimeout, "AD_CONNECT_TIMEOUT", 30); connectTimeout > 0 {
		config.Timeout = time.Duration(connectTimeout) * time.Second
	}

	if maxRetries := p.getInt64Value(data.MaxRetries, "AD_MAX_RETRIES", 3); maxRetries >= 0 {
		config.MaxRetries = int(maxRetries)
	}

	return config
}

// Helper functions for configuration value resolution

func (p *ADClientProvider) getStringValue(configValue types.String, envVar string) string {
	if !configValue.IsNull() && configValue.ValueString() != "" {
		return configValue.ValueString()
	}
	return os.Getenv(envVar)
}

func (p *ADClientProvider) getBoolValue(configValue types.Bool, envVar string, defaultValue bool) bool {
	if !configValue.IsNull() {
		return configValue.ValueBool()
	}
	if envValue := os.Getenv(envVar); envValue != "" {
		if parsed, err := strconv.ParseBool(envValue); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (p *ADClientProvider) getInt64Value(configValue types.Int64, envVar string, defaultValue int64) int64 {
	if !configValue.IsNull() {
		return configValue.ValueInt64()
	}
	if envValue := os.Getenv(envVar); envValue != "" {
		if parsed, err := strconv.ParseInt(envValue, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (p *ADClientProvider) Resources(ctx context.Context) []func() resource.Resource {
	return []func() resource.Resource{
		NewComputerResource,
		NewGroupMemberResource,
		NewOUResource,
		NewUserResource,
	}
}

func (p *ADClientProvider) DataSources(ctx context.Context) []func() datasource.DataSource {
	return []func() datasource.DataSource{
		NewConnectionDataSource,
		NewCredentialsCheckDataSource,
		NewGroupDataSource,
		NewGroupsDataSource,
		NewObjectDataSource,
		NewOUsDataSource,
		NewSearchDataSource,
		NewSearchDNDataSource,
		NewUserDataSource,
		NewUsersDataSource,
	}
}

func (p *ADClientProvider) Functions(ctx context.Context) []func() function.Function {
	return []func() function.Function{
		NewInt2IPFunction,
		NewNormalizeURIsFunction,
	}
}

func New(version string) func() provider.Provider {
	return func() provider.Provider {
		return &ADClientProvider{
			version: version,
		}
	}
}

// NewWithClientOptions returns a provider factory whose handle is built with extra options.
func NewWithClientOptions(version string, opts ...adclient.Option) func() provider.Provider {
	return func() provider.Provider {
		return &ADClientProvider{
			version:       version,
			clientOptions: opts,
		}
	}
}
