package provider

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-framework-validators/mapvalidator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/booldefault"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-adclient/internal/adclient"
	ldapclient "github.com/isometry/terraform-provider-adclient/internal/ldap"
	"github.com/isometry/terraform-provider-adclient/internal/provider/planmodifiers"
	customtypes "github.com/isometry/terraform-provider-adclient/internal/provider/types"
	"github.com/isometry/terraform-provider-adclient/internal/provider/validators"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ resource.Resource = &UserResource{}
var _ resource.ResourceWithImportState = &UserResource{}

func NewUserResource() resource.Resource {
	return &UserResource{}
}

// UserResource manages a user account and its descriptive attributes.
type UserResource struct {
	client *adclient.ADClient
}

// UserResourceModel describes the resource data model.
type UserResourceModel struct {
	// Identity
	ID        types.String              `tfsdk:"id"`         // DN (computed)
	DN        customtypes.DNStringValue `tfsdk:"dn"`         // Computed
	CN        types.String              `tfsdk:"cn"`         // Required, forces replacement
	Container customtypes.DNStringValue `tfsdk:"container"`  // Required, moves the account
	ShortName types.String              `tfsdk:"short_name"` // Optional+Computed (defaults to cn)

	// Account state
	Enabled  types.Bool   `tfsdk:"enabled"`  // Optional+Computed (default true)
	Password types.String `tfsdk:"password"` // Optional, sensitive, write-only in effect
	Dialin   types.Bool   `tfsdk:"dialin"`   // Optional
	Unlock   types.Bool   `tfsdk:"unlock"`   // Optional

	// Descriptive attributes
	Description   types.String `tfsdk:"description"`
	SN            types.String `tfsdk:"sn"`
	Initials      types.String `tfsdk:"initials"`
	GivenName     types.String `tfsdk:"given_name"`
	DisplayName   types.String `tfsdk:"display_name"`
	RoomNumber    types.String `tfsdk:"room_number"`
	StreetAddress types.String `tfsdk:"street_address"`
	Info          types.String `tfsdk:"info"`
	Title         types.String `tfsdk:"title"`
	Department    types.String `tfsdk:"department"`
	Company       types.String `tfsdk:"company"`
	Phone         types.String `tfsdk:"phone"`

	IPAddress  types.String `tfsdk:"ip_address"`
	Attributes types.Map    `tfsdk:"attributes"`
}

// userStringField binds a model field to its directory attribute and setter.
type userStringField struct {
	name      string
	attribute string
	field     func(*UserResourceModel) *types.String
	set       func(*adclient.ADClient, context.Context, string, string) error
}

var userStringFields = []userStringField{
	{"description", "description", func(m *UserResourceModel) *types.String { return &m.Description }, (*adclient.ADClient).SetUserDescription},
	{"sn", "sn", func(m *UserResourceModel) *types.String { return &m.SN }, (*adclient.ADClient).SetUserSN},
	{"initials", "initials", func(m *UserResourceModel) *types.String { return &m.Initials }, (*adclient.ADClient).SetUserInitials},
	{"given_name", "givenName", func(m *UserResourceModel) *types.String { return &m.GivenName }, (*adclient.ADClient).SetUserGivenName},
	{"display_name", "displayName", func(m *UserResourceModel) *types.String { return &m.DisplayName }, (*adclient.ADClient).SetUserDisplayName},
	{"room_number", "roomNumber", func(m *UserResourceModel) *types.String { return &m.RoomNumber }, (*adclient.ADClient).SetUserRoomNumber},
	{"street_address", "streetAddress", func(m *UserResourceModel) *types.String { return &m.StreetAddress }, (*adclient.ADClient).SetUserAddress},
	{"info", "info", func(m *UserResourceModel) *types.String { return &m.Info }, (*adclient.ADClient).SetUserInfo},
	{"title", "title", func(m *UserResourceModel) *types.String { return &m.Title }, (*adclient.ADClient).SetUserTitle},
	{"department", "department", func(m *UserResourceModel) *types.String { return &m.Department }, (*adclient.ADClient).SetUserDepartment},
	{"company", "company", func(m *UserResourceModel) *types.String { return &m.Company }, (*adclient.ADClient).SetUserCompany},
	{"phone", "telephoneNumber", func(m *UserResourceModel) *types.String { return &m.Phone }, (*adclient.ADClient).SetUserPhone},
}

const (
	attrIPAddress = "msRADIUSFramedIPAddress"
	attrDialin    = "msNPAllowDialin"
)

func (r *UserResource) Metadata(ctx context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_user"
}

func (r *UserResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	attributes := map[string]schema.Attribute{
		"id": schema.StringAttribute{
			MarkdownDescription: "The DN of the user.",
			Computed:            true,
		},
		"dn": schema.StringAttribute{
			MarkdownDescription: "The distinguished name of the user.",
			Computed:            true,
			CustomType:          customtypes.DNStringType{},
		},
		"cn": schema.StringAttribute{
			MarkdownDescription: "The common name of the user, used as the RDN. Changing this forces a new user to be created.",
			Required:            true,
			Validators: []validator.String{
				stringvalidator.LengthBetween(1, 64),
			},
			PlanModifiers: []planmodifier.String{
				stringplanmodifier.RequiresReplace(),
			},
		},
		"container": schema.StringAttribute{
			MarkdownDescription: "The distinguished name of the container the user lives in. Changing this moves the user.",
			Required:            true,
			CustomType:          customtypes.DNStringType{},
			Validators: []validator.String{
				validators.IsValidDN(),
			},
		},
		"short_name": schema.StringAttribute{
			MarkdownDescription: fmt.Sprintf("The pre-Windows 2000 logon name (`sAMAccountName`, at most %d characters). "+
				"Defaults to `cn` when `cn` is a valid short name.", planmodifiers.ShortNameMaxLength),
			Optional: true,
			Computed: true,
			Validators: []validator.String{
				stringvalidator.LengthBetween(1, planmodifiers.ShortNameMaxLength),
			},
			PlanModifiers: []planmodifier.String{
				planmodifiers.UseAttributeForShortName("cn"),
			},
		},
		"enabled": schema.BoolAttribute{
			MarkdownDescription: "Whether the account is enabled. Defaults to `true`.",
			Optional:            true,
			Computed:            true,
			Default:             booldefault.StaticBool(true),
		},
		"password": schema.StringAttribute{
			MarkdownDescription: "The account password. Setting it requires a secured connection. The directory never returns it, " +
				"so changes made outside Terraform are not detected.",
			Optional:  true,
			Sensitive: true,
		},
		"dialin": schema.BoolAttribute{
			MarkdownDescription: "Whether network access (`msNPAllowDialin`) is allowed. Left unmanaged when unset.",
			Optional:            true,
		},
		"unlock": schema.BoolAttribute{
			MarkdownDescription: "Clear any account lockout when this becomes `true`.",
			Optional:            true,
		},
		"ip_address": schema.StringAttribute{
			MarkdownDescription: "The static IPv4 address assigned to the user for network access (`msRADIUSFramedIPAddress`).",
			Optional:            true,
			Validators: []validator.String{
				validators.IsValidIPv4(),
			},
		},
		"attributes": schema.MapAttribute{
			MarkdownDescription: "Additional single-valued attributes to manage, keyed by LDAP attribute name. " +
				"Only the listed attributes are tracked.",
			Optional:    true,
			ElementType: types.StringType,
			Validators: []validator.Map{
				mapvalidator.KeysAre(stringvalidator.LengthAtLeast(1)),
				mapvalidator.ValueStringsAre(stringvalidator.LengthAtLeast(1)),
			},
		},
	}

	for _, f := range userStringFields {
		attributes[f.name] = schema.StringAttribute{
			MarkdownDescription: fmt.Sprintf("The `%s` attribute. Removing it from the configuration clears it.", f.attribute),
			Optional:            true,
			Validators: []validator.String{
				stringvalidator.LengthAtLeast(1),
			},
		}
	}

	resp.Schema = schema.Schema{
		MarkdownDescription: "Manages a user account. New accounts are created disabled, given their password and then " +
			"enabled according to `enabled`. Optional attributes are only tracked once they are configured.",
		Attributes: attributes,
	}
}

func (r *UserResource) Configure(ctx context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	r.client = clientFromProviderData(req.ProviderData, "Resource", &resp.Diagnostics)
}

func (r *UserResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data UserResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	cn, container, shortName := data.CN.ValueString(), data.Container.ValueString(), data.ShortName.ValueString()
	logCompletion := ldapclient.LogResourceOperation(ctx, "adclient_user", "create", map[string]any{
		"cn":         cn,
		"container":  container,
		"short_name": shortName,
	})
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(r.client, &resp.Diagnostics) {
		return
	}

	if err := r.client.CreateUser(ctx, cn, container, shortName); err != nil {
		addClientError(&resp.Diagnostics, "Error Creating User",
			fmt.Sprintf("Could not create user %s in %s.", cn, container), err)
		return
	}

	dn := ldapclient.JoinDN("CN", cn, container)
	tflog.Debug(ctx, "Created user", map[string]any{"dn": dn})

	data.ID = types.StringValue(dn)
	data.DN = customtypes.DNString(dn)

	// The account exists from here on; a failure below leaves it tainted in state.
	resp.Diagnostics.Append(r.applyUser(ctx, dn, &data, nil)...)
	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *UserResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var data UserResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	dn := data.ID.ValueString()
	logCompletion := ldapclient.LogResourceOperation(ctx, "adclient_user", "read", map[string]any{"dn": dn})
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(r.client, &resp.Diagnostics) {
		return
	}

	exists, err := r.client.IfDNExists(ctx, dn, "user")
	if err != nil {
		addClientError(&resp.Diagnostics, "Error Reading User", "Could not read user "+dn+".", err)
		return
	}
	if !exists {
		tflog.Debug(ctx, "User no longer exists, removing from state", map[string]any{"dn": dn})
		resp.State.RemoveResource(ctx)
		return
	}

	attrs, err := r.client.GetObjectAttributes(ctx, dn)
	if err != nil {
		addClientError(&resp.Diagnostics, "Error Reading User Attributes", "Could not read attributes of "+dn+".", err)
		return
	}

	resp.Diagnostics.Append(r.readUser(ctx, dn, attrs, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *UserResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var data, state UserResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	dn := state.ID.ValueString()
	logCompletion := ldapclient.LogResourceOperation(ctx, "adclient_user", "update", map[string]any{"dn": dn})
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(r.client, &resp.Diagnostics) {
		return
	}

	if equal, _ := data.Container.StringSemanticEquals(ctx, state.Container); !equal {
		moved, err := r.client.MoveDN(ctx, dn, data.Container.ValueString())
		if err != nil {
			addClientError(&resp.Diagnostics, "Error Moving User",
				fmt.Sprintf("Could not move user %s to %s.", dn, data.Container.ValueString()), err)
			return
		}
		tflog.Debug(ctx, "Moved user", map[string]any{"from": dn, "to": moved})
		dn = moved
	}

	data.ID = types.StringValue(dn)
	data.DN = customtypes.DNString(dn)

	if !data.ShortName.Equal(state.ShortName) {
		if err := r.client.SetObjectAttribute(ctx, dn, "sAMAccountName", data.ShortName.ValueString()); err != nil {
			addClientError(&resp.Diagnostics, "Error Renaming User", "Could not change the short name of "+dn+".", err)
			return
		}
	}

	resp.Diagnostics.Append(r.applyUser(ctx, dn, &data, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *UserResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var data UserResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	dn := data.ID.ValueString()
	logCompletion := ldapclient.LogResourceOperation(ctx, "adclient_user", "delete", map[string]any{"dn": dn})
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(r.client, &resp.Diagnostics) {
		return
	}

	if err := r.client.DeleteDN(ctx, dn); err != nil && adclient.ErrorCode(err) != goldap.LDAPResultNoSuchObject {
		addClientError(&resp.Diagnostics, "Error Deleting User", "Could not delete user "+dn+".", err)
	}
}

func (r *UserResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	resource.ImportStatePassthroughID(ctx, path.Root("id"), req, resp)
}

// applyUser pushes the planned account state to the directory. With a nil state every
// configured value is written; otherwise only values that differ from state are.
func (r *UserResource) applyUser(ctx context.Context, dn string, plan, state *UserResourceModel) diag.Diagnostics {
	var diags diag.Diagnostics

	// changed reports whether a value must be written: any configured value on create,
	// any difference from state on update.
	changed := func(isNull, equal bool) bool {
		if state == nil {
			return !isNull
		}
		return !equal
	}

	if !plan.Password.IsNull() && (state == nil || !plan.Password.Equal(state.Password)) {
		if err := r.client.SetUserPassword(ctx, dn, plan.Password.ValueString()); err != nil {
			addClientError(&diags, "Error Setting Password", "Could not set the password of "+dn+".", err)
			return diags
		}
	}

	if state == nil || !plan.Enabled.Equal(state.Enabled) {
		var err error
		switch {
		case plan.Enabled.ValueBool():
			err = r.client.EnableUser(ctx, dn)
		case state != nil:
			err = r.client.DisableUser(ctx, dn)
		}
		if err != nil {
			addClientError(&diags, "Error Changing Account State", "Could not enable or disable "+dn+".", err)
			return diags
		}
	}

	for _, f := range userStringFields {
		planned := *f.field(plan)
		var current types.String
		if state != nil {
			current = *f.field(state)
		}
		if !changed(planned.IsNull(), planned.Equal(current)) {
			continue
		}
		if err := f.set(r.client, ctx, dn, planned.ValueString()); err != nil {
			addClientError(&diags, "Error Setting User Attribute",
				fmt.Sprintf("Could not set %s on %s.", f.attribute, dn), err)
			return diags
		}
	}

	if state == nil || !plan.Dialin.Equal(state.Dialin) {
		var err error
		switch {
		case plan.Dialin.IsNull():
			if state != nil {
				err = r.client.SetObjectAttribute(ctx, dn, attrDialin, "")
			}
		case plan.Dialin.ValueBool():
			err = r.client.SetUserDialinAllowed(ctx, dn)
		default:
			err = r.client.SetUserDialinDisabled(ctx, dn)
		}
		if err != nil {
			addClientError(&diags, "Error Setting Network Access", "Could not change dial-in permission of "+dn+".", err)
			return diags
		}
	}

	if state == nil || !plan.IPAddress.Equal(state.IPAddress) {
		var err error
		switch ip := plan.IPAddress.ValueString(); {
		case ip != "":
			err = r.client.SetUserIPAddress(ctx, dn, ip)
		case state != nil:
			err = r.client.SetObjectAttribute(ctx, dn, attrIPAddress, "")
		}
		if err != nil {
			addClientError(&diags, "Error Setting IP Address", "Could not change the IP address of "+dn+".", err)
			return diags
		}
	}

	planned, d := stringMap(ctx, plan.Attributes)
	diags.Append(d...)
	var current map[string]string
	if state != nil {
		current, d = stringMap(ctx, state.Attributes)
		diags.Append(d...)
	}
	if diags.HasError() {
		return diags
	}
	for _, name := range slices.Sorted(maps.Keys(current)) {
		if _, ok := planned[name]; ok {
			continue
		}
		if err := r.client.SetObjectAttribute(ctx, dn, name, ""); err != nil {
			addClientError(&diags, "Error Clearing User Attribute", fmt.Sprintf("Could not clear %s on %s.", name, dn), err)
			return diags
		}
	}
	for _, name := range slices.Sorted(maps.Keys(planned)) {
		if value, ok := current[name]; ok && value == planned[name] {
			continue
		}
		if err := r.client.SetObjectAttribute(ctx, dn, name, planned[name]); err != nil {
			addClientError(&diags, "Error Setting User Attribute", fmt.Sprintf("Could not set %s on %s.", name, dn), err)
			return diags
		}
	}

	if plan.Unlock.ValueBool() && (state == nil || !state.Unlock.ValueBool()) {
		if err := r.client.UnlockUser(ctx, dn); err != nil {
			addClientError(&diags, "Error Unlocking User", "Could not unlock "+dn+".", err)
			return diags
		}
	}

	return diags
}

// readUser refreshes data from the directory. Optional values stay null until they are
// configured, so attributes set outside Terraform are not adopted.
func (r *UserResource) readUser(ctx context.Context, dn string, attrs map[string][]string, data *UserResourceModel) diag.Diagnostics {
	var diags diag.Diagnostics

	cn, err := ldapclient.ExtractRDNValue(dn, "CN")
	if err != nil {
		diags.AddError("Invalid User DN", err.Error())
		return diags
	}
	container, err := ldapclient.ParentDN(dn)
	if err != nil {
		diags.AddError("Invalid User DN", err.Error())
		return diags
	}

	if !strings.EqualFold(data.CN.ValueString(), cn) {
		data.CN = types.StringValue(cn)
	}
	if data.Container.IsNull() {
		data.Container = customtypes.DNString(container)
	} else if equal, _ := data.Container.StringSemanticEquals(ctx, customtypes.DNString(container)); !equal {
		data.Container = customtypes.DNString(container)
	}
	data.ID = types.StringValue(dn)
	data.DN = customtypes.DNString(dn)

	if sam, ok := firstValueFold(attrs, "sAMAccountName"); ok {
		data.ShortName = types.StringValue(sam)
	}

	disabled, err := r.client.IfUserDisabled(ctx, dn)
	if err != nil {
		addClientError(&diags, "Error Reading Account State", "Could not read the account state of "+dn+".", err)
		return diags
	}
	data.Enabled = types.BoolValue(!disabled)

	for _, f := range userStringFields {
		field := f.field(data)
		if field.IsNull() {
			continue
		}
		if value, ok := firstValueFold(attrs, f.attribute); ok {
			*field = types.StringValue(value)
		} else {
			*field = types.StringNull()
		}
	}

	if !data.Dialin.IsNull() {
		if value, ok := firstValueFold(attrs, attrDialin); ok {
			data.Dialin = types.BoolValue(strings.EqualFold(value, "TRUE"))
		} else {
			data.Dialin = types.BoolNull()
		}
	}

	if !data.IPAddress.IsNull() {
		raw, ok := firstValueFold(attrs, attrIPAddress)
		switch {
		case ok:
			ip, err := adclient.Int2IP(raw)
			if err != nil {
				diags.AddError("Invalid IP Address", fmt.Sprintf("%s on %s: %v", attrIPAddress, dn, err))
				return diags
			}
			data.IPAddress = types.StringValue(ip)
		case data.IPAddress.ValueString() != "":
			data.IPAddress = types.StringNull()
		}
	}

	if !data.Attributes.IsNull() {
		tracked, d := stringMap(ctx, data.Attributes)
		diags.Append(d...)
		if diags.HasError() {
			return diags
		}
		current := make(map[string]string, len(tracked))
		for name := range tracked {
			if value, ok := firstValueFold(attrs, name); ok {
				current[name] = value
			}
		}
		data.Attributes, d = types.MapValueFrom(ctx, types.StringType, current)
		diags.Append(d...)
	}

	return diags
}

// firstValueFold returns the first value of the named attribute, matching names case-insensitively.
func firstValueFold(attrs map[string][]string, name string) (string, bool) {
	for key, values := range attrs {
		if strings.EqualFold(key, name) && len(values) > 0 {
			return values[0], true
		}
	}
	return "", false
}

// stringMap converts a map of strings to Go, treating null as empty.
func stringMap(ctx context.Context, value types.Map) (map[string]string, diag.Diagnostics) {
	result := map[string]string{}
	if value.IsNull() || value.IsUnknown() {
		return result, nil
	}
	diags := value.ElementsAs(ctx, &result, false)
	return result, diags
}
