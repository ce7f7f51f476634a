package provider

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/diag"
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

var _ resource.Resource = &ComputerResource{}
var _ resource.ResourceWithImportState = &ComputerResource{}

// computerNameRegex limits names to what fits a NetBIOS computer name.
var computerNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,14}$`)

func NewComputerResource() resource.Resource {
	return &ComputerResource{}
}

type ComputerResource struct {
	client *adclient.ADClient
}

type ComputerResourceModel struct {
	ID        types.String              `tfsdk:"id"`        // DN (computed)
	Name      types.String              `tfsdk:"name"`      // Required - CN of the computer
	Container customtypes.DNStringValue `tfsdk:"container"` // Required - parent DN
	DN        customtypes.DNStringValue `tfsdk:"dn"`        // Computed
}

func (r *ComputerResource) Metadata(ctx context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_computer"
}

func (r *ComputerResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Manages a computer account. The account is created with `sAMAccountName` set to the " +
			"upper-cased name followed by `$`, as a workstation trust account. Changing `container` moves the account.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "The DN of the computer.",
				Computed:            true,
			},
			"name": schema.StringAttribute{
				MarkdownDescription: "The computer name (at most 15 characters: letters, digits and hyphens).",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.RegexMatches(computerNameRegex,
						"must be 1 to 15 letters, digits or hyphens, not starting with a hyphen"),
				},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},
			"container": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the container the computer is created in (e.g., `CN=Computers,DC=example,DC=com`).",
				Required:            true,
				CustomType:          customtypes.DNStringType{},
				Validators: []validator.String{
					validators.IsValidDN(),
				},
			},
			"dn": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the computer.",
				Computed:            true,
				CustomType:          customtypes.DNStringType{},
			},
		},
	}
}

func (r *ComputerResource) Configure(ctx context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	r.client = clientFromProviderData(req.ProviderData, "Resource", &resp.Diagnostics)
}

func (r *ComputerResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data ComputerResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	name, container := data.Name.ValueString(), data.Container.ValueString()
	logCompletion := ldapclient.LogResourceOperation(ctx, "adclient_computer", "create", map[string]any{
		"name":      name,
		"container": container,
	})
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(r.client, &resp.Diagnostics) {
		return
	}

	if err := r.client.CreateComputer(ctx, name, container); err != nil {
		addClientError(&resp.Diagnostics, "Error Creating Computer",
			fmt.Sprintf("Could not create computer %s in %s.", name, container), err)
		return
	}

	dn := ldapclient.JoinDN("CN", name, container)
	tflog.Debug(ctx, "Created computer", map[string]any{"dn": dn})

	data.ID = types.StringValue(dn)
	data.DN = customtypes.DNString(dn)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *ComputerResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var data ComputerResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	dn := data.ID.ValueString()
	logCompletion := ldapclient.LogResourceOperation(ctx, "adclient_computer", "read", map[string]any{"dn": dn})
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(r.client, &resp.Diagnostics) {
		return
	}

	exists, err := r.client.IfDNExists(ctx, dn, "computer")
	if err != nil {
		addClientError(&resp.Diagnostics, "Error Reading Computer", "Could not read computer "+dn+".", err)
		return
	}
	if !exists {
		tflog.Debug(ctx, "Computer no longer exists, removing from state", map[string]any{"dn": dn})
		resp.State.RemoveResource(ctx)
		return
	}

	resp.Diagnostics.Append(setComputerIdentity(ctx, &data, dn)...)
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *ComputerResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var data, state ComputerResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	dn := state.ID.ValueString()
	logCompletion := ldapclient.LogResourceOperation(ctx, "adclient_computer", "update", map[string]any{
		"dn":        dn,
		"container": data.Container.ValueString(),
	})
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(r.client, &resp.Diagnostics) {
		return
	}

	if equal, _ := data.Container.StringSemanticEquals(ctx, state.Container); !equal {
		moved, err := r.client.MoveDN(ctx, dn, data.Container.ValueString())
		if err != nil {
			addClientError(&resp.Diagnostics, "Error Moving Computer",
				fmt.Sprintf("Could not move computer %s to %s.", dn, data.Container.ValueString()), err)
			return
		}
		dn = moved
	}

	data.ID = types.StringValue(dn)
	data.DN = customtypes.DNString(dn)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *ComputerResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var data ComputerResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	dn := data.ID.ValueString()
	logCompletion := ldapclient.LogResourceOperation(ctx, "adclient_computer", "delete", map[string]any{"dn": dn})
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(r.client, &resp.Diagnostics) {
		return
	}

	if err := r.client.DeleteDN(ctx, dn); err != nil && adclient.ErrorCode(err) != goldap.LDAPResultNoSuchObject {
		addClientError(&resp.Diagnostics, "Error Deleting Computer", "Could not delete computer "+dn+".", err)
	}
}

func (r *ComputerResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	resource.ImportStatePassthroughID(ctx, path.Root("id"), req, resp)
}

// setComputerIdentity derives name and container from dn, keeping configured values
// that are semantically equal.
func setComputerIdentity(ctx context.Context, data *ComputerResourceModel, dn string) diag.Diagnostics {
	var diags diag.Diagnostics

	name, err := ldapclient.ExtractRDNValue(dn, "CN")
	if err != nil {
		diags.AddError("Invalid Computer DN", err.Error())
		return diags
	}
	container, err := ldapclient.ParentDN(dn)
	if err != nil {
		diags.AddError("Invalid Computer DN", err.Error())
		return diags
	}

	if !strings.EqualFold(data.Name.ValueString(), name) {
		data.Name = types.StringValue(name)
	}
	if data.Container.IsNull() {
		data.Container = customtypes.DNString(container)
	} else if equal, _ := data.Container.StringSemanticEquals(ctx, customtypes.DNString(container)); !equal {
		data.Container = customtypes.DNString(container)
	}
	data.ID = types.StringValue(dn)
	data.DN = customtypes.DNString(dn)

	return diags
}
