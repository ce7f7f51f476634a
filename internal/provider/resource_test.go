package provider_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/tfsdk"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-go/tftypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/isometry/terraform-provider-adclient/internal/adclient"
	"github.com/isometry/terraform-provider-adclient/internal/ldap"
	"github.com/isometry/terraform-provider-adclient/internal/ldap/ldapmock"
	"github.com/isometry/terraform-provider-adclient/internal/provider"
)

var unknown = tftypes.UnknownValue

// resourceSchema returns the schema and object type of r.
func resourceSchema(t *testing.T, r resource.Resource) (schema.Schema, tftypes.Object) {
	t.Helper()
	ctx := context.Background()

	resp := &resource.SchemaResponse{}
	r.Schema(ctx, resource.SchemaRequest{}, resp)
	require.False(t, resp.Diagnostics.HasError(), "%v", resp.Diagnostics)

	return resp.Schema, resp.Schema.Type().TerraformType(ctx).(tftypes.Object)
}

// resourceObject builds an object of the resource type. Plain Go values are wrapped
// with their attribute type; attributes not given are null.
func resourceObject(objectType tftypes.Object, values map[string]any) tftypes.Value {
	attrs := make(map[string]tftypes.Value, len(objectType.AttributeTypes))
	for name, typ := range objectType.AttributeTypes {
		switch v := values[name].(type) {
		case nil:
			attrs[name] = tftypes.NewValue(typ, nil)
		case tftypes.Value:
			attrs[name] = v
		default:
			attrs[name] = tftypes.NewValue(typ, v)
		}
	}
	return tftypes.NewValue(objectType, attrs)
}

func stringMapValue(m map[string]string) tftypes.Value {
	elems := make(map[string]tftypes.Value, len(m))
	for k, v := range m {
		elems[k] = tftypes.NewValue(tftypes.String, v)
	}
	return tftypes.NewValue(tftypes.Map{ElementType: tftypes.String}, elems)
}

func configureResource(t *testing.T, r resource.Resource, client *adclient.ADClient) {
	t.Helper()

	resp := &resource.ConfigureResponse{}
	r.(resource.ResourceWithConfigure).Configure(context.Background(), resource.ConfigureRequest{ProviderData: client}, resp)
	require.False(t, resp.Diagnostics.HasError(), "configure: %v", resp.Diagnostics)
}

func createResource(t *testing.T, r resource.Resource, values map[string]any) *resource.CreateResponse {
	t.Helper()

	s, objectType := resourceSchema(t, r)
	resp := &resource.CreateResponse{
		State: tfsdk.State{Schema: s, Raw: tftypes.NewValue(objectType, nil)},
	}
	r.Create(context.Background(), resource.CreateRequest{
		Plan: tfsdk.Plan{Schema: s, Raw: resourceObject(objectType, values)},
	}, resp)
	return resp
}

func readResource(t *testing.T, r resource.Resource, values map[string]any) *resource.ReadResponse {
	t.Helper()

	s, objectType := resourceSchema(t, r)
	state := tfsdk.State{Schema: s, Raw: resourceObject(objectType, values)}
	resp := &resource.ReadResponse{State: state}
	r.Read(context.Background(), resource.ReadRequest{State: state}, resp)
	return resp
}

// modifiedAttributes lists, in call order, the attributes replaced through Modify.
func modifiedAttributes(m *ldapmock.Client) []string {
	var names []string
	for _, call := range m.Calls {
		if call.Method != "Modify" {
			continue
		}
		req := call.Arguments.Get(1).(*ldap.ModifyRequest)
		for name := range req.ReplaceAttributes {
			names = append(names, name)
		}
		for name := range req.AddAttributes {
			names = append(names, "+"+name)
		}
		for name := range req.DeleteAttributes {
			names = append(names, "-"+name)
		}
	}
	return names
}

func TestResource_ConfigureWrongType(t *testing.T) {
	for _, factory := range provider.New("test")().Resources(context.Background()) {
		r := factory()
		resp := &resource.ConfigureResponse{}
		r.(resource.ResourceWithConfigure).Configure(context.Background(), resource.ConfigureRequest{ProviderData: 42}, resp)

		require.True(t, resp.Diagnostics.HasError())
		assert.Equal(t, "Unexpected Resource Configure Type", resp.Diagnostics.Errors()[0].Summary())
	}
}

func TestUserResource_Schema(t *testing.T) {
	s, _ := resourceSchema(t, provider.NewUserResource())

	assert.True(t, s.Attributes["password"].IsSensitive())
	assert.True(t, s.Attributes["short_name"].IsOptional())
	assert.True(t, s.Attributes["short_name"].IsComputed())
	assert.True(t, s.Attributes["cn"].IsRequired())
	for _, name := range []string{
		"description", "sn", "initials", "given_name", "display_name", "room_number",
		"street_address", "info", "title", "department", "company", "phone",
	} {
		require.Contains(t, s.Attributes, name)
		assert.True(t, s.Attributes[name].IsOptional(), name)
	}
}

func TestUserResource_Create(t *testing.T) {
	client, m := newMockClient(t, true)
	m.On("Add", mock.Anything, mock.MatchedBy(func(req *ldap.AddRequest) bool {
		return req.DN == johnDN && req.Attributes["sAMAccountName"][0] == "jdoe" &&
			req.Attributes["userPrincipalName"][0] == "jdoe@example.com"
	})).Return(nil).Once()
	expectEntry(m, johnDN, map[string][]string{
		"sAMAccountName":     {"jdoe"},
		"userAccountControl": {"514"},
	})
	m.On("Modify", mock.Anything, mock.Anything).Return(nil)

	r := provider.NewUserResource()
	configureResource(t, r, client)
	resp := createResource(t, r, map[string]any{
		"id":          tftypes.NewValue(tftypes.String, unknown),
		"dn":          tftypes.NewValue(tftypes.String, unknown),
		"cn":          "John Doe",
		"container":   usersOU,
		"short_name":  "jdoe",
		"enabled":     true,
		"password":    "S3cure!pass",
		"description": "Engineer",
		"ip_address":  "10.0.0.1",
		"attributes":  stringMapValue(map[string]string{"mail": "john@example.com"}),
	})
	for _, d := range resp.Diagnostics.Errors() {
		t.Logf("%s: %s", d.Summary(), d.Detail())
	}
	require.False(t, resp.Diagnostics.HasError())

	var data provider.UserResourceModel
	require.False(t, resp.State.Get(context.Background(), &data).HasError())
	assert.Equal(t, johnDN, data.ID.ValueString())
	assert.Equal(t, johnDN, data.DN.ValueString())

	assert.Equal(t, []string{
		"unicodePwd",
		"userAccountControl",
		"description",
		"msRADIUSFramedIPAddress",
		"mail",
	}, modifiedAttributes(m))
}

func TestUserResource_CreatePasswordNeedsSecuredConnection(t *testing.T) {
	client, m := newMockClient(t, false)
	m.On("Add", mock.Anything, mock.Anything).Return(nil).Once()

	r := provider.NewUserResource()
	configureResource(t, r, client)
	resp := createResource(t, r, map[string]any{
		"id":         tftypes.NewValue(tftypes.String, unknown),
		"dn":         tftypes.NewValue(tftypes.String, unknown),
		"cn":         "John Doe",
		"container":  usersOU,
		"short_name": "jdoe",
		"enabled":    true,
		"password":   "S3cure!pass",
	})

	require.True(t, resp.Diagnostics.HasError())
	diag := resp.Diagnostics.Errors()[0]
	assert.Equal(t, "Error Setting Password", diag.Summary())
	assert.Contains(t, diag.Detail(), "(code 13)")

	// The account was created, so it stays in state to be replaced on the next apply.
	var id types.String
	require.False(t, resp.State.GetAttribute(context.Background(), path.Root("id"), &id).HasError())
	assert.Equal(t, johnDN, id.ValueString())
}

func TestUserResource_Read(t *testing.T) {
	client, m := newMockClient(t, true)
	m.On("Search", mock.Anything, mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.BaseDN == johnDN && req.Filter == "(objectClass=user)"
	})).Return(searchResult(goldap.NewEntry(johnDN, nil)), nil)
	expectEntry(m, johnDN, map[string][]string{
		"cn":                 {"John Doe"},
		"sAMAccountName":     {"jdoe2"},
		"description":        {"Senior Engineer"},
		"sn":                 {"Doe"},
		"msNPAllowDialin":    {"FALSE"},
		"mail":               {"john@example.com"},
		"userAccountControl": {"514"},
	})

	r := provider.NewUserResource()
	configureResource(t, r, client)
	resp := readResource(t, r, map[string]any{
		"id":          johnDN,
		"dn":          johnDN,
		"cn":          "John Doe",
		"container":   "ou=users,dc=example,dc=com",
		"short_name":  "jdoe",
		"enabled":     true,
		"dialin":      true,
		"description": "Engineer",
		"ip_address":  "10.0.0.1",
		"attributes":  stringMapValue(map[string]string{"mail": "old@example.com", "pager": "123"}),
	})
	require.False(t, resp.Diagnostics.HasError(), "%v", resp.Diagnostics)

	var data provider.UserResourceModel
	require.False(t, resp.State.Get(context.Background(), &data).HasError())
	assert.Equal(t, "ou=users,dc=example,dc=com", data.Container.ValueString(), "semantically equal container is kept")
	assert.Equal(t, "jdoe2", data.ShortName.ValueString())
	assert.False(t, data.Enabled.ValueBool())
	assert.False(t, data.Dialin.ValueBool())
	assert.Equal(t, "Senior Engineer", data.Description.ValueString())
	assert.True(t, data.SN.IsNull(), "unmanaged attributes stay null")
	assert.True(t, data.IPAddress.IsNull())

	var attrs map[string]string
	require.False(t, data.Attributes.ElementsAs(context.Background(), &attrs, false).HasError())
	assert.Equal(t, map[string]string{"mail": "john@example.com"}, attrs)
}

func TestUserResource_ReadRemoved(t *testing.T) {
	client, m := newMockClient(t, true)
	m.On("Search", mock.Anything, mock.Anything).
		Return(nil, goldap.NewError(goldap.LDAPResultNoSuchObject, errors.New("gone")))

	r := provider.NewUserResource()
	configureResource(t, r, client)
	resp := readResource(t, r, map[string]any{
		"id":        johnDN,
		"cn":        "John Doe",
		"container": usersOU,
		"enabled":   true,
	})

	require.False(t, resp.Diagnostics.HasError(), "%v", resp.Diagnostics)
	assert.True(t, resp.State.Raw.IsNull())
}

func TestGroupMemberResource_Create(t *testing.T) {
	client, m := newMockClient(t, true)
	expectResolve(m, "Admins", adminsDN)
	expectResolve(m, "jdoe", johnDN)
	m.On("Modify", mock.Anything, mock.MatchedBy(func(req *ldap.ModifyRequest) bool {
		return req.DN == adminsDN && len(req.AddAttributes["member"]) == 1 && req.AddAttributes["member"][0] == johnDN
	})).Return(nil).Once()

	r := provider.NewGroupMemberResource()
	configureResource(t, r, client)
	resp := createResource(t, r, map[string]any{
		"id":       tftypes.NewValue(tftypes.String, unknown),
		"group":    "Admins",
		"user":     "jdoe",
		"group_dn": tftypes.NewValue(tftypes.String, unknown),
		"user_dn":  tftypes.NewValue(tftypes.String, unknown),
	})
	require.False(t, resp.Diagnostics.HasError(), "%v", resp.Diagnostics)

	var data provider.GroupMemberResourceModel
	require.False(t, resp.State.Get(context.Background(), &data).HasError())
	assert.Equal(t, "Admins|jdoe", data.ID.ValueString())
	assert.Equal(t, adminsDN, data.GroupDN.ValueString())
	assert.Equal(t, johnDN, data.UserDN.ValueString())
	m.AssertExpectations(t)
}

func TestGroupMemberResource_Read(t *testing.T) {
	testCases := map[string]struct {
		groups  []*goldap.Entry
		removed bool
	}{
		"member": {
			groups: []*goldap.Entry{
				goldap.NewEntry(adminsDN, map[string][]string{"sAMAccountName": {"admins"}}),
			},
		},
		"no longer a member": {
			groups: []*goldap.Entry{
				goldap.NewEntry("CN=Auditors,OU=Groups,DC=example,DC=com", map[string][]string{"sAMAccountName": {"Auditors"}}),
			},
			removed: true,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			client, m := newMockClient(t, true)
			expectResolve(m, "Admins", adminsDN)
			expectResolve(m, "jdoe", johnDN)
			expectEntry(m, adminsDN, map[string][]string{"sAMAccountName": {"Admins"}})
			expectPaged(m, func(req *ldap.SearchRequest) bool {
				return req.Filter == "(&(objectClass=group)(member="+johnDN+"))"
			}, tc.groups...)

			r := provider.NewGroupMemberResource()
			configureResource(t, r, client)
			resp := readResource(t, r, map[string]any{
				"id":       "Admins|jdoe",
				"group":    "Admins",
				"user":     "jdoe",
				"group_dn": adminsDN,
				"user_dn":  johnDN,
			})
			require.False(t, resp.Diagnostics.HasError(), "%v", resp.Diagnostics)
			assert.Equal(t, tc.removed, resp.State.Raw.IsNull())
		})
	}
}

func TestGroupMemberResource_ImportState(t *testing.T) {
	testCases := map[string]struct {
		id      string
		group   string
		user    string
		wantErr bool
	}{
		"valid":         {id: "Admins|jdoe", group: "Admins", user: "jdoe"},
		"dn group":      {id: adminsDN + "|jdoe", group: adminsDN, user: "jdoe"},
		"missing user":  {id: "Admins|", wantErr: true},
		"no separator":  {id: "Admins", wantErr: true},
		"missing group": {id: "|jdoe", wantErr: true},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			r := provider.NewGroupMemberResource().(resource.ResourceWithImportState)
			s, objectType := resourceSchema(t, r)

			resp := &resource.ImportStateResponse{
				State: tfsdk.State{Schema: s, Raw: tftypes.NewValue(objectType, nil)},
			}
			r.ImportState(context.Background(), resource.ImportStateRequest{ID: tc.id}, resp)

			if tc.wantErr {
				require.True(t, resp.Diagnostics.HasError())
				assert.Equal(t, "Invalid Import ID", resp.Diagnostics.Errors()[0].Summary())
				return
			}
			require.False(t, resp.Diagnostics.HasError(), "%v", resp.Diagnostics)

			var group, user types.String
			resp.State.GetAttribute(context.Background(), path.Root("group"), &group)
			resp.State.GetAttribute(context.Background(), path.Root("user"), &user)
			assert.Equal(t, tc.group, group.ValueString())
			assert.Equal(t, tc.user, user.ValueString())
		})
	}
}

func TestOUResource_Create(t *testing.T) {
	const ouDN = "OU=Engineering,OU=Users,DC=example,DC=com"

	client, m := newMockClient(t, true)
	m.On("Search", mock.Anything, mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return strings.EqualFold(req.BaseDN, usersOU) && req.Filter == "(objectClass=organizationalUnit)"
	})).Return(searchResult(goldap.NewEntry(usersOU, nil)), nil)
	m.On("Search", mock.Anything, mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return strings.EqualFold(req.BaseDN, ouDN) && req.Filter == "(objectClass=organizationalUnit)"
	})).Return(nil, goldap.NewError(goldap.LDAPResultNoSuchObject, errors.New("missing")))
	m.On("Add", mock.Anything, mock.MatchedBy(func(req *ldap.AddRequest) bool {
		return req.DN == ouDN && req.Attributes["ou"][0] == "Engineering"
	})).Return(nil).Once()
	expectEntry(m, ouDN, map[string][]string{"ou": {"Engineering"}})
	m.On("Modify", mock.Anything, mock.MatchedBy(func(req *ldap.ModifyRequest) bool {
		return req.DN == ouDN && req.ReplaceAttributes["description"][0] == "Engineering staff"
	})).Return(nil).Once()

	r := provider.NewOUResource()
	configureResource(t, r, client)
	resp := createResource(t, r, map[string]any{
		"id":          tftypes.NewValue(tftypes.String, unknown),
		"dn":          ouDN,
		"description": "Engineering staff",
	})
	require.False(t, resp.Diagnostics.HasError(), "%v", resp.Diagnostics)

	var id types.String
	resp.State.GetAttribute(context.Background(), path.Root("id"), &id)
	assert.Equal(t, ouDN, id.ValueString())
	m.AssertExpectations(t)
}

func TestComputerResource_Create(t *testing.T) {
	const computerDN = "CN=ws01,OU=Computers,DC=example,DC=com"

	client, m := newMockClient(t, true)
	m.On("Add", mock.Anything, mock.MatchedBy(func(req *ldap.AddRequest) bool {
		return req.DN == computerDN && req.Attributes["sAMAccountName"][0] == "WS01$"
	})).Return(nil).Once()

	r := provider.NewComputerResource()
	configureResource(t, r, client)
	resp := createResource(t, r, map[string]any{
		"id":        tftypes.NewValue(tftypes.String, unknown),
		"dn":        tftypes.NewValue(tftypes.String, unknown),
		"name":      "ws01",
		"container": "OU=Computers,DC=example,DC=com",
	})
	require.False(t, resp.Diagnostics.HasError(), "%v", resp.Diagnostics)

	var dn types.String
	resp.State.GetAttribute(context.Background(), path.Root("id"), &dn)
	assert.Equal(t, computerDN, dn.ValueString())
	m.AssertExpectations(t)
}
