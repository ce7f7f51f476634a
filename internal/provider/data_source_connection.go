package provider

import (
	"context"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-adclient/internal/adclient"
	ldapclient "github.com/isometry/terraform-provider-adclient/internal/ldap"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &ConnectionDataSource{}

func NewConnectionDataSource() datasource.DataSource {
	return &ConnectionDataSource{}
}

// ConnectionDataSource reports the state of the provider login.
type ConnectionDataSource struct {
	client *adclient.ADClient
}

// ConnectionDataSourceModel describes the data source data model.
type ConnectionDataSourceModel struct {
	ID                types.String `tfsdk:"id"`
	BoundURI          types.String `tfsdk:"bound_uri"`
	SearchBase        types.String `tfsdk:"search_base"`
	AuthzID           types.String `tfsdk:"authz_id"`
	Format            types.String `tfsdk:"format"`
	DN                types.String `tfsdk:"dn"`
	UserPrincipalName types.String `tfsdk:"upn"`
	SAMAccountName    types.String `tfsdk:"sam_account_name"`
	SID               types.String `tfsdk:"sid"`
}

func (d *ConnectionDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_connection"
}

func (d *ConnectionDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Reports the domain controller the provider is bound to, the search base in use, " +
			"and the authorization identity returned by the LDAP \"Who Am I?\" extended operation (RFC 4532).",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "Same as `bound_uri`.",
				Computed:            true,
			},
			"bound_uri": schema.StringAttribute{
				MarkdownDescription: "The URI, as configured, of the domain controller that accepted the login.",
				Computed:            true,
			},
			"search_base": schema.StringAttribute{
				MarkdownDescription: "The search base used for lookups.",
				Computed:            true,
			},
			"authz_id": schema.StringAttribute{
				MarkdownDescription: "The raw authorization ID returned by the server, e.g. `u:EXAMPLE\\svc-terraform`.",
				Computed:            true,
			},
			"format": schema.StringAttribute{
				MarkdownDescription: "The format of the authorization ID: `dn`, `upn`, `sam`, `sid`, `empty` or `unknown`.",
				Computed:            true,
			},
			"dn": schema.StringAttribute{
				MarkdownDescription: "The bound identity, when the authorization ID is in DN format.",
				Computed:            true,
			},
			"upn": schema.StringAttribute{
				MarkdownDescription: "The bound identity, when the authorization ID is in UPN format.",
				Computed:            true,
			},
			"sam_account_name": schema.StringAttribute{
				MarkdownDescription: "The bound identity, when the authorization ID is in `DOMAIN\\user` format.",
				Computed:            true,
			},
			"sid": schema.StringAttribute{
				MarkdownDescription: "The bound identity, when the authorization ID is in SID format.",
				Computed:            true,
			},
		},
	}
}

func (d *ConnectionDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	d.client = clientFromProviderData(req.ProviderData, "Data Source", &resp.Diagnostics)
}

func (d *ConnectionDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	ctx = initializeLogging(ctx)

	var data ConnectionDataSourceModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	logCompletion := ldapclient.LogDataSourceOperation(ctx, "adclient_connection", "read", nil)
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(d.client, &resp.Diagnostics) {
		return
	}

	result, err := d.client.WhoAmI(ctx)
	if err != nil {
		addClientError(&resp.Diagnostics, "Error Performing WhoAmI Operation",
			"Could not perform LDAP Who Am I? operation.", err)
		return
	}

	tflog.Debug(ctx, "Successfully performed WhoAmI operation", map[string]any{
		"authz_id":  result.AuthzID,
		"format":    result.Format,
		"bound_uri": d.client.BindedURI(),
	})

	data.ID = types.StringValue(d.client.BindedURI())
	data.BoundURI = types.StringValue(d.client.BindedURI())
	data.SearchBase = types.StringValue(d.client.SearchBase())
	mapWhoAmIToModel(result, &data)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// mapWhoAmIToModel maps the parsed authorization ID to the model. Absent parts are null.
func mapWhoAmIToModel(result *ldapclient.WhoAmIResult, data *ConnectionDataSourceModel) {
	data.AuthzID = types.StringValue(result.AuthzID)
	data.Format = types.StringValue(result.Format)
	data.DN = optionalString(result.DN)
	data.UserPrincipalName = optionalString(result.UserPrincipalName)
	data.SAMAccountName = optionalString(result.SAMAccountName)
	data.SID = optionalString(result.SID)
}

func optionalString(s string) types.String {
	if s == "" {
		return types.StringNull()
	}
	return types.StringValue(s)
}
