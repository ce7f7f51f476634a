package provider

import (
	"context"
	"fmt"
	"strings"

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
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ resource.Resource = &GroupMemberResource{}
var _ resource.ResourceWithImportState = &GroupMemberResource{}

// groupMemberIDSeparator joins group and user in the resource ID.
const groupMemberIDSeparator = "|"

func NewGroupMemberResource() resource.Resource {
	return &GroupMemberResource{}
}

// GroupMemberResource manages one user's direct membership of one group.
type GroupMemberResource struct {
	client *adclient.ADClient
}

// GroupMemberResourceModel describes the resource data model.
type GroupMemberResourceModel struct {
	ID      types.String `tfsdk:"id"`       // "<group>|<user>"
	Group   types.String `tfsdk:"group"`    // Required
	User    types.String `tfsdk:"user"`     // Required
	GroupDN types.String `tfsdk:"group_dn"` // Computed
	UserDN  types.String `tfsdk:"user_dn"`  // Computed
}

func (r *GroupMemberResource) Metadata(ctx context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_group_member"
}

func (r *GroupMemberResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Manages a single user's direct membership of a group. Other members of the group are left alone.\n\n" +
			"**Supported Identifier Formats** for `group` and `user`:\n" +
			"- Distinguished Name (DN): `CN=John Doe,OU=Users,DC=example,DC=com`\n" +
			"- User Principal Name (UPN): `john@example.com`\n" +
			"- Short name (`sAMAccountName`): `john`\n" +
			"- Object GUID: `550e8400-e29b-41d4-a716-446655440000`\n" +
			"- Security Identifier (SID): `S-1-5-21-123456789-123456789-123456789-1001`",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "The resource identifier, `<group>|<user>`.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"group": schema.StringAttribute{
				MarkdownDescription: "The group.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},
			"user": schema.StringAttribute{
				MarkdownDescription: "The user to add to the group.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},
			"group_dn": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the group.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"user_dn": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the user.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
		},
	}
}

func (r *GroupMemberResource) Configure(ctx context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	r.client = clientFromProviderData(req.ProviderData, "Resource", &resp.Diagnostics)
}

func (r *GroupMemberResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data GroupMemberResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	group, user := data.Group.ValueString(), data.User.ValueString()
	logCompletion := ldapclient.LogResourceOperation(ctx, "adclient_group_member", "create", map[string]any{
		"group": group,
		"user":  user,
	})
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(r.client, &resp.Diagnostics) {
		return
	}

	groupDN, err := r.client.GetObjectDN(ctx, group)
	if err != nil {
		addClientError(&resp.Diagnostics, "Error Resolving Group", "Could not find group "+group+".", err)
		return
	}
	userDN, err := r.client.GetObjectDN(ctx, user)
	if err != nil {
		addClientError(&resp.Diagnostics, "Error Resolving User", "Could not find user "+user+".", err)
		return
	}

	if err := r.client.GroupAddUser(ctx, groupDN, userDN); err != nil {
		addClientError(&resp.Diagnostics, "Error Adding Group Member",
			fmt.Sprintf("Could not add %s to %s.", user, group), err)
		return
	}

	tflog.Debug(ctx, "Added group member", map[string]any{
		"group_dn": groupDN,
		"user_dn":  userDN,
	})

	data.ID = types.StringValue(group + groupMemberIDSeparator + user)
	data.GroupDN = types.StringValue(groupDN)
	data.UserDN = types.StringValue(userDN)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *GroupMemberResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var data GroupMemberResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	group, user := data.Group.ValueString(), data.User.ValueString()
	logCompletion := ldapclient.LogResourceOperation(ctx, "adclient_group_member", "read", map[string]any{
		"group": group,
		"user":  user,
	})
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(r.client, &resp.Diagnostics) {
		return
	}

	groupDN, err := r.client.GetObjectDN(ctx, group)
	if adclient.ErrorCode(err) == goldap.LDAPResultNoSuchObject {
		tflog.Debug(ctx, "Group no longer exists, removing membership from state", map[string]any{"group": group})
		resp.State.RemoveResource(ctx)
		return
	}
	if err != nil {
		addClientError(&resp.Diagnostics, "Error Resolving Group", "Could not find group "+group+".", err)
		return
	}

	groups, err := r.client.GetUserGroups(ctx, user)
	if adclient.ErrorCode(err) == goldap.LDAPResultNoSuchObject {
		tflog.Debug(ctx, "User no longer exists, removing membership from state", map[string]any{"user": user})
		resp.State.RemoveResource(ctx)
		return
	}
	if err != nil {
		addClientError(&resp.Diagnostics, "Error Reading User Groups", "", err)
		return
	}

	groupName, err := r.client.GetObjectAttribute(ctx, groupDN, "sAMAccountName")
	if err != nil {
		addClientError(&resp.Diagnostics, "Error Reading Group Name", "", err)
		return
	}

	if !containsFold(groups, groupName[0]) {
		tflog.Debug(ctx, "User is no longer a member, removing from state", map[string]any{
			"group": group,
			"user":  user,
		})
		resp.State.RemoveResource(ctx)
		return
	}

	userDN, err := r.client.GetObjectDN(ctx, user)
	if err != nil {
		addClientError(&resp.Diagnostics, "Error Resolving User", "Could not find user "+user+".", err)
		return
	}

	data.ID = types.StringValue(group + groupMemberIDSeparator + user)
	data.GroupDN = types.StringValue(groupDN)
	data.UserDN = types.StringValue(userDN)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// Update is never called with a change: every configurable attribute requires replacement.
func (r *GroupMemberResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var data GroupMemberResourceModel

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *GroupMemberResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var data GroupMemberResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	groupDN, userDN := data.GroupDN.ValueString(), data.UserDN.ValueString()
	logCompletion := ldapclient.LogResourceOperation(ctx, "adclient_group_member", "delete", map[string]any{
		"group_dn": groupDN,
		"user_dn":  userDN,
	})
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(r.client, &resp.Diagnostics) {
		return
	}

	err := r.client.GroupRemoveUser(ctx, groupDN, userDN)
	switch adclient.ErrorCode(err) {
	case 0, goldap.LDAPResultNoSuchObject, goldap.LDAPResultNoSuchAttribute:
		return
	}
	addClientError(&resp.Diagnostics, "Error Removing Group Member",
		fmt.Sprintf("Could not remove %s from %s.", userDN, groupDN), err)
}

func (r *GroupMemberResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	group, user, ok := strings.Cut(req.ID, groupMemberIDSeparator)
	if !ok || group == "" || user == "" {
		resp.Diagnostics.AddError(
			"Invalid Import ID",
			fmt.Sprintf("Expected an import ID of the form <group>%s<user>, got: %q", groupMemberIDSeparator, req.ID),
		)
		return
	}

	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("id"), req.ID)...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("group"), group)...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("user"), user)...)
}

// containsFold reports whether values holds s, ignoring case.
func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
