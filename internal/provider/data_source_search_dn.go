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
var _ datasource.DataSource = &SearchDNDataSource{}

func NewSearchDNDataSource() datasource.DataSource {
	return &SearchDNDataSource{}
}

// SearchDNDataSource returns the DNs of entries matching a filter.
type SearchDNDataSource struct {
	client *adclient.ADClient
}

// SearchDNDataSourceModel describes the data source data model.
type SearchDNDataSourceModel struct {
	ID     types.String `tfsdk:"id"`
	Filter types.String `tfsdk:"filter"`
	DNs    types.List   `tfsdk:"dns"`
}

func (d *SearchDNDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_search_dn"
}

func (d *SearchDNDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Returns the DNs of every entry below the provider search base that matches an LDAP filter.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "Same as `filter`.",
				Computed:            true,
			},
			"filter": schema.StringAttribute{
				MarkdownDescription: "LDAP filter, e.g. `(objectClass=computer)`.",
				Required:            true,
			},
			"dns": schema.ListAttribute{
				MarkdownDescription: "DNs of the matching entries.",
				ElementType:         types.StringType,
				Computed:            true,
			},
		},
	}
}

func (d *SearchDNDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	d.client = clientFromProviderData(req.ProviderData, "Data Source", &resp.Diagnostics)
}

func (d *SearchDNDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	ctx = initializeLogging(ctx)

	var data SearchDNDataSourceModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	logCompletion := ldapclient.LogDataSourceOperation(ctx, "adclient_search_dn", "read", map[string]any{
		"filter": data.Filter.ValueString(),
	})
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(d.client, &resp.Diagnostics) {
		return
	}

	dns, err := d.client.SearchDN(ctx, data.Filter.ValueString())
	if err != nil {
		addClientError(&resp.Diagnostics, "Error Searching Active Directory",
			"Could not run search with filter "+data.Filter.ValueString()+".", err)
		return
	}

	dnsValue, diags := helpers.StringList(ctx, dns)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	data.ID = data.Filter
	data.DNs = dnsValue

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}
