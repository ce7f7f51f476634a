package provider

import (
	"context"

	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"

	"github.com/isometry/terraform-provider-adclient/internal/adclient"
	ldapclient "github.com/isometry/terraform-provider-adclient/internal/ldap"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &CredentialsCheckDataSource{}

func NewCredentialsCheckDataSource() datasource.DataSource {
	return &CredentialsCheckDataSource{}
}

// CredentialsCheckDataSource verifies a user's password with a trial bind.
type CredentialsCheckDataSource struct {
	client *adclient.ADClient
}

// CredentialsCheckDataSourceModel describes the data source data model.
type CredentialsCheckDataSourceModel struct {
	ID       types.String `tfsdk:"id"`
	User     types.String `tfsdk:"user"`
	Password types.String `tfsdk:"password"`
	Valid    types.Bool   `tfsdk:"valid"`
}

func (d *CredentialsCheckDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_credentials_check"
}

func (d *CredentialsCheckDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Checks a user's password by binding as the user on a separate connection. " +
			"Wrong credentials yield `valid = false`; only connection faults are errors. " +
			"The provider's own login is not affected.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "Same as `user`.",
				Computed:            true,
			},
			"user": schema.StringAttribute{
				MarkdownDescription: "The user to check: short name, UPN or DN.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"password": schema.StringAttribute{
				MarkdownDescription: "The password to check.",
				Required:            true,
				Sensitive:           true,
			},
			"valid": schema.BoolAttribute{
				MarkdownDescription: "Whether the password is accepted for the user.",
				Computed:            true,
			},
		},
	}
}

func (d *CredentialsCheckDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	d.client = clientFromProviderData(req.ProviderData, "Data Source", &resp.Diagnostics)
}

func (d *CredentialsCheckDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	ctx = initializeLogging(ctx)

	var data CredentialsCheckDataSourceModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	logCompletion := ldapclient.LogDataSourceOperation(ctx, "adclient_credentials_check", "read", map[string]any{
		"user": data.User.ValueString(),
	})
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(d.client, &resp.Diagnostics) {
		return
	}

	valid, err := d.client.CheckUserPassword(ctx, data.User.ValueString(), data.Password.ValueString())
	if err != nil {
		addClientError(&resp.Diagnostics, "Error Checking Credentials", "", err)
		return
	}

	data.ID = data.User
	data.Valid = types.BoolValue(valid)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}
