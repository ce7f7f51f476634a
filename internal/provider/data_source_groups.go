package provider

import (
	"context"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/types"

	"github.com/isometry/terraform-provider-adclient/internal/adclient"
	ldapclient "github.com/isometry/terraform-provider-adclient/internal/ldap"
	"github.com/isometry/terraform-provider-adclient/internal/provider/helpers"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &GroupsDataSource{}

func NewGroupsDataSource() datasource.DataSource {
	return &GroupsDataSource{}
}

// GroupsDataSource lists every group under the search base.
type GroupsDataSource struct {
	client *adclient.ADClient
}

// GroupsDataSourceModel describes the data source data model.
type GroupsDataSourceModel struct {
	ID    types.String `tfsdk:"id"`
	Names types.List   `tfsdk:"names"`
}

func (d *GroupsDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_groups"
}

func (d *GroupsDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Lists the short names (`sAMAccountName`) of every group under the provider search base.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "The search base the groups were listed from.",
				Computed:            true,
			},
			"names": schema.ListAttribute{
				MarkdownDescription: "Sorted group short names.",
				ElementType:         types.StringType,
				Computed:            true,
			},
		},
	}
}

func (d *GroupsDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	d.client = clientFromProviderData(req.ProviderData, "Data Source", &resp.Diagnostics)
}

func (d *GroupsDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	ctx = initializeLogging(ctx)

	var data GroupsDataSourceModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	logCompletion := ldapclient.LogDataSourceOperation(ctx, "adclient_groups", "read", nil)
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(d.client, &resp.Diagnostics) {
		return
	}

	names, err := d.client.GetGroups(ctx)
	if err != nil {
		addClientError(&resp.Diagnostics, "Error Listing Groups", "", err)
		return
	}

	namesValue, diags := helpers.StringList(ctx, names)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	data.ID = types.StringValue(d.client.SearchBase())
	data.Names = namesValue

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}
