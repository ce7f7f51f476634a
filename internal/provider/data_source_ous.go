package provider

import (
	"context"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"

	"github.com/isometry/terraform-provider-adclient/internal/adclient"
	ldapclient "github.com/isometry/terraform-provider-adclient/internal/ldap"
	"github.com/isometry/terraform-provider-adclient/internal/provider/helpers"
	customtypes "github.com/isometry/terraform-provider-adclient/internal/provider/types"
	"github.com/isometry/terraform-provider-adclient/internal/provider/validators"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &OUsDataSource{}

func NewOUsDataSource() datasource.DataSource {
	return &OUsDataSource{}
}

// OUsDataSource lists organizational units, optionally below a given OU.
type OUsDataSource struct {
	client *adclient.ADClient
}

// OUsDataSourceModel describes the data source data model.
type OUsDataSourceModel struct {
	ID  types.String              `tfsdk:"id"`
	OU  customtypes.DNStringValue `tfsdk:"ou"`
	DNs types.List                `tfsdk:"dns"`
}

func (d *OUsDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_ous"
}

func (d *OUsDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Lists organizational units. Without `ou`, every OU under the provider search base is returned; " +
			"with `ou`, the OUs directly beneath that one.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "The DN the OUs were listed from.",
				Computed:            true,
			},
			"ou": schema.StringAttribute{
				CustomType:          customtypes.DNStringType{},
				MarkdownDescription: "DN of the parent organizational unit.",
				Optional:            true,
				Validators: []validator.String{
					validators.IsValidDN(),
				},
			},
			"dns": schema.ListAttribute{
				MarkdownDescription: "DNs of the organizational units found.",
				ElementType:         types.StringType,
				Computed:            true,
			},
		},
	}
}

func (d *OUsDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	d.client = clientFromProviderData(req.ProviderData, "Data Source", &resp.Diagnostics)
}

func (d *OUsDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	ctx = initializeLogging(ctx)

	var data OUsDataSourceModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	logCompletion := ldapclient.LogDataSourceOperation(ctx, "adclient_ous", "read", map[string]any{
		"ou": data.OU.ValueString(),
	})
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(d.client, &resp.Diagnostics) {
		return
	}

	var (
		dns []string
		err error
		id  string
	)
	if ou := data.OU.ValueString(); ou != "" {
		dns, err = d.client.GetOUsInOU(ctx, ou)
		id = ou
	} else {
		dns, err = d.client.GetAllOUs(ctx)
		id = d.client.SearchBase()
	}
	if err != nil {
		addClientError(&resp.Diagnostics, "Error Listing Organizational Units", "", err)
		return
	}

	dnsValue, diags := helpers.StringList(ctx, dns)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	data.ID = types.StringValue(id)
	data.DNs = dnsValue

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}
