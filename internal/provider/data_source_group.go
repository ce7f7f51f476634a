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
	"github.com/isometry/terraform-provider-adclient/internal/provider/helpers"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &GroupDataSource{}

func NewGroupDataSource() datasource.DataSource {
	return &GroupDataSource{}
}

// GroupDataSource reads a group and its user members.
type GroupDataSource struct {
	client *adclient.ADClient
}

// GroupDataSourceModel describes the data source data model.
type GroupDataSourceModel struct {
	ID      types.String `tfsdk:"id"`
	Name    types.String `tfsdk:"name"`
	DN      types.String `tfsdk:"dn"`
	Members types.List   `tfsdk:"members"`
}

func (d *GroupDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_group"
}

func (d *GroupDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Reads a group and the short names of its direct members.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "The DN of the group.",
				Computed:            true,
			},
			"name": schema.StringAttribute{
				MarkdownDescription: "The group to read: short name, DN, objectGUID or objectSid.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"dn": schema.StringAttribute{
				MarkdownDescription: "Distinguished Name of the group.",
				Computed:            true,
			},
			"members": schema.ListAttribute{
				MarkdownDescription: "Sorted short names of the direct members, including computers and nested groups.",
				ElementType:         types.StringType,
				Computed:            true,
			},
		},
	}
}

func (d *GroupDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	d.client = clientFromProviderData(req.ProviderData, "Data Source", &resp.Diagnostics)
}

func (d *GroupDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	ctx = initializeLogging(ctx)

	var data GroupDataSourceModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	name := data.Name.ValueString()
	logCompletion := ldapclient.LogDataSourceOperation(ctx, "adclient_group", "read", map[string]any{
		"name": name,
	})
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(d.client, &resp.Diagnostics) {
		return
	}

	dn, err := d.client.GetObjectDN(ctx, name)
	if err != nil {
		addClientError(&resp.Diagnostics, "Error Reading Group", "Could not find group "+name+".", err)
		return
	}

	members, err := d.client.GetUsersInGroup(ctx, dn)
	if err != nil {
		addClientError(&resp.Diagnostics, "Error Reading Group Members", "", err)
		return
	}

	membersValue, diags := helpers.StringList(ctx, members)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	data.ID = types.StringValue(dn)
	data.DN = types.StringValue(dn)
	data.Members = membersValue

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}
