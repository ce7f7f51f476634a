package provider

import (
	"context"

	"github.com/hashicorp/terraform-plugin-framework-validators/datasourcevalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"

	"github.com/isometry/terraform-provider-adclient/internal/adclient"
	ldapclient "github.com/isometry/terraform-provider-adclient/internal/ldap"
	"github.com/isometry/terraform-provider-adclient/internal/provider/helpers"
	customtypes "github.com/isometry/terraform-provider-adclient/internal/provider/types"
	"github.com/isometry/terraform-provider-adclient/internal/provider/validators"
)

// Ensure provider defined types fully satisfy framework interfaces.
var (
	_ datasource.DataSource                     = &UsersDataSource{}
	_ datasource.DataSourceWithConfigValidators = &UsersDataSource{}
)

func NewUsersDataSource() datasource.DataSource {
	return &UsersDataSource{}
}

// UsersDataSource lists user short names, by OU or by account state.
type UsersDataSource struct {
	client *adclient.ADClient
}

// UsersDataSourceModel describes the data source data model.
type UsersDataSourceModel struct {
	ID       types.String              `tfsdk:"id"`
	OU       customtypes.DNStringValue `tfsdk:"ou"`
	Subtree  types.Bool                `tfsdk:"subtree"`
	Dialin   types.Bool                `tfsdk:"dialin"`
	Disabled types.Bool                `tfsdk:"disabled"`
	Names    types.List                `tfsdk:"names"`
}

func (d *UsersDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_users"
}

func (d *UsersDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Lists user short names (`sAMAccountName`). With no arguments every user under the provider " +
			"search base is returned. `ou` restricts the listing to one organizational unit; `dialin` and `disabled` " +
			"select users by account state instead.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "Identifier of the selection made.",
				Computed:            true,
			},
			"ou": schema.StringAttribute{
				CustomType:          customtypes.DNStringType{},
				MarkdownDescription: "DN of the organizational unit to list.",
				Optional:            true,
				Validators: []validator.String{
					validators.IsValidDN(),
				},
			},
			"subtree": schema.BoolAttribute{
				MarkdownDescription: "With `ou`, include users in nested organizational units. Defaults to `false`.",
				Optional:            true,
			},
			"dialin": schema.BoolAttribute{
				MarkdownDescription: "List only users allowed to dial in (`msNPAllowDialin=TRUE`).",
				Optional:            true,
			},
			"disabled": schema.BoolAttribute{
				MarkdownDescription: "List only disabled users.",
				Optional:            true,
			},
			"names": schema.ListAttribute{
				MarkdownDescription: "Sorted user short names.",
				ElementType:         types.StringType,
				Computed:            true,
			},
		},
	}
}

// ConfigValidators implements datasource.DataSourceWithConfigValidators.
func (d *UsersDataSource) ConfigValidators(ctx context.Context) []datasource.ConfigValidator {
	return []datasource.ConfigValidator{
		datasourcevalidator.Conflicting(
			path.MatchRoot("ou"),
			path.MatchRoot("dialin"),
			path.MatchRoot("disabled"),
		),
	}
}

func (d *UsersDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	d.client = clientFromProviderData(req.ProviderData, "Data Source", &resp.Diagnostics)
}

func (d *UsersDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	ctx = initializeLogging(ctx)

	var data UsersDataSourceModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	logCompletion := ldapclient.LogDataSourceOperation(ctx, "adclient_users", "read", map[string]any{
		"ou":       data.OU.ValueString(),
		"subtree":  data.Subtree.ValueBool(),
		"dialin":   data.Dialin.ValueBool(),
		"disabled": data.Disabled.ValueBool(),
	})
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(d.client, &resp.Diagnostics) {
		return
	}

	var (
		names []string
		err   error
		id    string
	)
	switch ou := data.OU.ValueString(); {
	case ou != "" && data.Subtree.ValueBool():
		names, err = d.client.GetUsersInOUSubTree(ctx, ou)
		id = "subtree:" + ou
	case ou != "":
		names, err = d.client.GetUsersInOU(ctx, ou)
		id = "onelevel:" + ou
	case data.Dialin.ValueBool():
		names, err = d.client.GetDialinUsers(ctx)
		id = "dialin"
	case data.Disabled.ValueBool():
		names, err = d.client.GetDisabledUsers(ctx)
		id = "disabled"
	default:
		names, err = d.client.GetUsers(ctx)
		id = "all"
	}
	if err != nil {
		addClientError(&resp.Diagnostics, "Error Listing Users", "", err)
		return
	}

	namesValue, diags := helpers.StringList(ctx, names)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	data.ID = types.StringValue(id)
	data.Names = namesValue

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}
