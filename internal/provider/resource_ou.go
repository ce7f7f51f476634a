package provider

import (
	"context"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-adclient/internal/adclient"
	ldapclient "github.com/isometry/terraform-provider-adclient/internal/ldap"
	customtypes "github.com/isometry/terraform-provider-adclient/internal/provider/types"
	"github.com/isometry/terraform-provider-adclient/internal/provider/validators"
)

var _ resource.Resource = &OUResource{}
var _ resource.ResourceWithImportState = &OUResource{}

func NewOUResource() resource.Resource {
	return &OUResource{}
}

type OUResource struct {
	client *adclient.ADClient
}

type OUResourceModel struct {
	ID          types.String              `tfsdk:"id"`          // DN (computed)
	DN          customtypes.DNStringValue `tfsdk:"dn"`          // Required - full DN of the OU
	Description types.String              `tfsdk:"description"` // Optional
}

func (r *OUResource) Metadata(ctx context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_ou"
}

func (r *OUResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Manages an organizational unit. Missing parent OUs between the provider search base and " +
			"`dn` are created as well; they are not removed on destroy.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "The DN of the OU.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"dn": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the OU (e.g., `OU=Servers,OU=IT,DC=example,DC=com`).",
				Required:            true,
				CustomType:          customtypes.DNStringType{},
				Validators: []validator.String{
					validators.IsValidDN(),
				},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},
			"description": schema.StringAttribute{
				MarkdownDescription: "A description for the organizational unit.",
				Optional:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtMost(1024),
				},
			},
		},
	}
}

func (r *OUResource) Configure(ctx context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	r.client = clientFromProviderData(req.ProviderData, "Resource", &resp.Diagnostics)
}

func (r *OUResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data OUResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	dn := data.DN.ValueString()
	logCompletion := ldapclient.LogResourceOperation(ctx, "adclient_ou", "create", map[string]any{"dn": dn})
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(r.client, &resp.Diagnostics) {
		return
	}

	if err := r.client.CreateOU(ctx, dn); err != nil {
		addClientError(&resp.Diagnostics, "Error Creating OU", "Could not create organizational unit "+dn+".", err)
		return
	}

	if description := data.Description.ValueString(); description != "" {
		if err := r.client.SetObjectAttribute(ctx, dn, "description", description); err != nil {
			addClientError(&resp.Diagnostics, "Error Setting OU Description", "", err)
			return
		}
	}

	tflog.Debug(ctx, "Created OU", map[string]any{"dn": dn})

	data.ID = types.StringValue(dn)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *OUResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var data OUResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	dn := data.DN.ValueString()
	if dn == "" {
		dn = data.ID.ValueString()
		data.DN = customtypes.DNString(dn)
	}

	logCompletion := ldapclient.LogResourceOperation(ctx, "adclient_ou", "read", map[string]any{"dn": dn})
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(r.client, &resp.Diagnostics) {
		return
	}

	exists, err := r.client.IfDNExists(ctx, dn, "organizationalUnit")
	if err != nil {
		addClientError(&resp.Diagnostics, "Error Reading OU", "Could not read organizational unit "+dn+".", err)
		return
	}
	if !exists {
		tflog.Debug(ctx, "OU no longer exists, removing from state", map[string]any{"dn": dn})
		resp.State.RemoveResource(ctx)
		return
	}

	values, err := r.client.GetObjectAttribute(ctx, dn, "description")
	switch {
	case adclient.ErrorCode(err) == goldap.LDAPResultNoSuchAttribute:
		if !data.Description.IsNull() {
			data.Description = types.StringValue("")
		}
	case err != nil:
		addClientError(&resp.Diagnostics, "Error Reading OU Description", "", err)
		return
	default:
		data.Description = types.StringValue(values[0])
	}

	data.ID = types.StringValue(dn)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *OUResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var data, state OUResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	dn := state.ID.ValueString()
	logCompletion := ldapclient.LogResourceOperation(ctx, "adclient_ou", "update", map[string]any{"dn": dn})
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(r.client, &resp.Diagnostics) {
		return
	}

	if !data.Description.Equal(state.Description) {
		if err := r.client.SetObjectAttribute(ctx, dn, "description", data.Description.ValueString()); err != nil {
			addClientError(&resp.Diagnostics, "Error Updating OU Description", "", err)
			return
		}
	}

	data.ID = state.ID

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *OUResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var data OUResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	dn := data.ID.ValueString()
	logCompletion := ldapclient.LogResourceOperation(ctx, "adclient_ou", "delete", map[string]any{"dn": dn})
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(r.client, &resp.Diagnostics) {
		return
	}

	if err := r.client.DeleteDN(ctx, dn); err != nil && adclient.ErrorCode(err) != goldap.LDAPResultNoSuchObject {
		addClientError(&resp.Diagnostics, "Error Deleting OU",
			"Could not delete organizational unit "+dn+". Organizational units must be empty before deletion.", err)
	}
}

func (r *OUResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("id"), req.ID)...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("dn"), customtypes.DNString(req.ID))...)
}
