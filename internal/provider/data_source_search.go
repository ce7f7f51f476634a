package provider

import (
	"context"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-adclient/internal/adclient"
	ldapclient "github.com/isometry/terraform-provider-adclient/internal/ldap"
	"github.com/isometry/terraform-provider-adclient/internal/provider/helpers"
	customtypes "github.com/isometry/terraform-provider-adclient/internal/provider/types"
	"github.com/isometry/terraform-provider-adclient/internal/provider/validators"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &SearchDataSource{}

func NewSearchDataSource() datasource.DataSource {
	return &SearchDataSource{}
}

// SearchDataSource runs a filtered search and returns every matching entry.
type SearchDataSource struct {
	client *adclient.ADClient
}

// SearchDataSourceModel describes the data source data model.
type SearchDataSourceModel struct {
	ID         types.String              `tfsdk:"id"`
	OU         customtypes.DNStringValue `tfsdk:"ou"`
	Scope      types.String              `tfsdk:"scope"`
	Filter     types.String              `tfsdk:"filter"`
	Attributes types.List                `tfsdk:"attributes"`
	Entries    types.Map                 `tfsdk:"entries"`
}

func (d *SearchDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_search"
}

func (d *SearchDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Runs an LDAP search below an organizational unit and returns the matching entries keyed by DN. " +
			"Binary identifiers (`objectGUID`, `objectSid`) are rendered in their text form.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "Identifier of this search, built from the base, scope and filter.",
				Computed:            true,
			},
			"ou": schema.StringAttribute{
				CustomType:          customtypes.DNStringType{},
				MarkdownDescription: "DN of the search base. Defaults to the provider search base.",
				Optional:            true,
				Validators: []validator.String{
					validators.IsValidDN(),
				},
			},
			"scope": schema.StringAttribute{
				MarkdownDescription: "Search scope: `base`, `onelevel` or `subtree` (or `0`, `1`, `2`). Defaults to `subtree`.",
				Optional:            true,
				Validators: []validator.String{
					validators.IsValidScope(),
				},
			},
			"filter": schema.StringAttribute{
				MarkdownDescription: "LDAP filter, e.g. `(&(objectClass=user)(department=IT))`.",
				Required:            true,
			},
			"attributes": schema.ListAttribute{
				MarkdownDescription: "Attributes to return. Defaults to all user attributes.",
				ElementType:         types.StringType,
				Optional:            true,
			},
			"entries": schema.MapAttribute{
				MarkdownDescription: "Matching entries: a map of DN to a map of attribute name to values.",
				ElementType:         helpers.AttributesType,
				Computed:            true,
			},
		},
	}
}

func (d *SearchDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	d.client = clientFromProviderData(req.ProviderData, "Data Source", &resp.Diagnostics)
}

func (d *SearchDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	ctx = initializeLogging(ctx)

	var data SearchDataSourceModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	logCompletion := ldapclient.LogDataSourceOperation(ctx, "adclient_search", "read", map[string]any{
		"ou":     data.OU.ValueString(),
		"scope":  data.Scope.ValueString(),
		"filter": data.Filter.ValueString(),
	})
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(d.client, &resp.Diagnostics) {
		return
	}

	scope := adclient.ScopeSubtree
	if !data.Scope.IsNull() {
		var err error
		if scope, err = adclient.ParseScope(data.Scope.ValueString()); err != nil {
			resp.Diagnostics.AddError("Invalid Search Scope", err.Error())
			return
		}
	}

	attributes, err := helpers.StringSliceValue(ctx, data.Attributes)
	if err != nil {
		resp.Diagnostics.AddError("Invalid Attributes", err.Error())
		return
	}

	entries, err := d.client.Search(ctx, data.OU.ValueString(), scope, data.Filter.ValueString(), attributes)
	if err != nil {
		addClientError(&resp.Diagnostics, "Error Searching Active Directory",
			"Could not run search with filter "+data.Filter.ValueString()+".", err)
		return
	}

	tflog.Debug(ctx, "Search completed", map[string]any{
		"entries": len(entries),
	})

	entriesValue, diags := helpers.EntriesMap(ctx, entries)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	data.ID = types.StringValue(strings.Join([]string{data.OU.ValueString(), scope.String(), data.Filter.ValueString()}, "|"))
	data.Entries = entriesValue

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}
