package provider

import (
	"context"

	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-adclient/internal/adclient"
	ldapclient "github.com/isometry/terraform-provider-adclient/internal/ldap"
	"github.com/isometry/terraform-provider-adclient/internal/provider/helpers"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &UserDataSource{}

func NewUserDataSource() datasource.DataSource {
	return &UserDataSource{}
}

// UserDataSource reads a single user account.
type UserDataSource struct {
	client *adclient.ADClient
}

// UserDataSourceModel describes the data source data model.
type UserDataSourceModel struct {
	ID          types.String `tfsdk:"id"`
	Name        types.String `tfsdk:"name"`
	DN          types.String `tfsdk:"dn"`
	DisplayName types.String `tfsdk:"display_name"`
	IPAddress   types.String `tfsdk:"ip_address"`
	Groups      types.List   `tfsdk:"groups"`
	Controls    types.Map    `tfsdk:"controls"`
	Dialin      types.Bool   `tfsdk:"dialin"`
	Disabled    types.Bool   `tfsdk:"disabled"`
	Attributes  types.Map    `tfsdk:"attributes"`
}

func (d *UserDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_user"
}

func (d *UserDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Reads a user account: its DN, display name, dial-in address, direct group memberships, " +
			"account state and raw attributes.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "The DN of the user.",
				Computed:            true,
			},
			"name": schema.StringAttribute{
				MarkdownDescription: "The user to read: short name (`sAMAccountName`), UPN, DN, objectGUID or objectSid.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"dn": schema.StringAttribute{
				MarkdownDescription: "Distinguished Name of the user.",
				Computed:            true,
			},
			"display_name": schema.StringAttribute{
				MarkdownDescription: "The `displayName` attribute, empty when unset.",
				Computed:            true,
			},
			"ip_address": schema.StringAttribute{
				MarkdownDescription: "The dial-in address (`msRADIUSFramedIPAddress`) in dotted-quad form, empty when unset.",
				Computed:            true,
			},
			"groups": schema.ListAttribute{
				MarkdownDescription: "Sorted short names of the groups the user is a direct member of.",
				ElementType:         types.StringType,
				Computed:            true,
			},
			"controls": schema.MapAttribute{
				MarkdownDescription: "Account state flags: `disabled`, `locked`, `dontExpirePassword`, `mustChangePassword` and `expired`.",
				ElementType:         types.BoolType,
				Computed:            true,
			},
			"dialin": schema.BoolAttribute{
				MarkdownDescription: "Whether the user may dial in.",
				Computed:            true,
			},
			"disabled": schema.BoolAttribute{
				MarkdownDescription: "Whether the account is disabled.",
				Computed:            true,
			},
			"attributes": schema.MapAttribute{
				MarkdownDescription: "Every attribute of the user entry, as a map of attribute name to values.",
				ElementType:         helpers.AttributesType.ElemType,
				Computed:            true,
			},
		},
	}
}

func (d *UserDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	d.client = clientFromProviderData(req.ProviderData, "Data Source", &resp.Diagnostics)
}

func (d *UserDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	ctx = initializeLogging(ctx)

	var data UserDataSourceModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	name := data.Name.ValueString()
	logCompletion := ldapclient.LogDataSourceOperation(ctx, "adclient_user", "read", map[string]any{
		"name": name,
	})
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(d.client, &resp.Diagnostics) {
		return
	}

	dn, err := d.client.GetObjectDN(ctx, name)
	if err != nil {
		addClientError(&resp.Diagnostics, "Error Reading User", "Could not find user "+name+".", err)
		return
	}

	tflog.Debug(ctx, "Resolved user", map[string]any{
		"name": name,
		"dn":   dn,
	})

	resp.Diagnostics.Append(d.readUser(ctx, dn, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	data.ID = types.StringValue(dn)
	data.DN = types.StringValue(dn)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// readUser fills the computed attributes of data from the user at dn.
func (d *UserDataSource) readUser(ctx context.Context, dn string, data *UserDataSourceModel) diag.Diagnostics {
	var diags diag.Diagnostics

	displayName, err := d.client.GetUserDisplayName(ctx, dn)
	if err != nil {
		addClientError(&diags, "Error Reading User Display Name", "", err)
		return diags
	}

	ipAddress, err := d.client.GetUserIPAddress(ctx, dn)
	if err != nil {
		addClientError(&diags, "Error Reading User IP Address", "", err)
		return diags
	}

	groups, err := d.client.GetUserGroups(ctx, dn)
	if err != nil {
		addClientError(&diags, "Error Reading User Groups", "", err)
		return diags
	}

	controls, err := d.client.GetUserControls(ctx, dn)
	if err != nil {
		addClientError(&diags, "Error Reading User Controls", "", err)
		return diags
	}

	dialin, err := d.client.IfDialinUser(ctx, dn)
	if err != nil {
		addClientError(&diags, "Error Reading User Dial-in State", "", err)
		return diags
	}

	disabled, err := d.client.IfUserDisabled(ctx, dn)
	if err != nil {
		addClientError(&diags, "Error Reading User State", "", err)
		return diags
	}

	attributes, err := d.client.GetObjectAttributes(ctx, dn)
	if err != nil {
		addClientError(&diags, "Error Reading User Attributes", "", err)
		return diags
	}

	groupsValue, d1 := helpers.StringList(ctx, groups)
	controlsValue, d2 := types.MapValueFrom(ctx, types.BoolType, controls.Map())
	attributesValue, d3 := helpers.AttributesMap(ctx, attributes)
	diags.Append(d1...)
	diags.Append(d2...)
	diags.Append(d3...)
	if diags.HasError() {
		return diags
	}

	data.DisplayName = types.StringValue(displayName)
	data.IPAddress = types.StringValue(ipAddress)
	data.Groups = groupsValue
	data.Controls = controlsValue
	data.Dialin = types.BoolValue(dialin)
	data.Disabled = types.BoolValue(disabled)
	data.Attributes = attributesValue

	return diags
}
