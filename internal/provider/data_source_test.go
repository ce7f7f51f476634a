package provider_test

import (
	"context"
	"errors"
	"testing"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-go/tftypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/isometry/terraform-provider-adclient/internal/ldap"
	"github.com/isometry/terraform-provider-adclient/internal/provider"
)

func stateAttr[T any](t *testing.T, resp *datasource.ReadResponse, name string) T {
	t.Helper()
	var v T
	diags := resp.State.GetAttribute(context.Background(), path.Root(name), &v)
	require.False(t, diags.HasError(), "%s: %v", name, diags)
	return v
}

func requireNoDiagErrors(t *testing.T, resp *datasource.ReadResponse) {
	t.Helper()
	for _, d := range resp.Diagnostics.Errors() {
		t.Logf("%s: %s", d.Summary(), d.Detail())
	}
	require.False(t, resp.Diagnostics.HasError())
}

func TestDataSource_ConfigureWrongType(t *testing.T) {
	for _, factory := range provider.New("test")().DataSources(context.Background()) {
		ds := factory()
		resp := &datasource.ConfigureResponse{}
		ds.(datasource.DataSourceWithConfigure).Configure(context.Background(), datasource.ConfigureRequest{ProviderData: "not a client"}, resp)

		require.True(t, resp.Diagnostics.HasError())
		assert.Equal(t, "Unexpected Data Source Configure Type", resp.Diagnostics.Errors()[0].Summary())
	}
}

func TestDataSource_Unconfigured(t *testing.T) {
	resp := readDataSource(t, provider.NewGroupsDataSource(), nil)

	require.True(t, resp.Diagnostics.HasError())
	assert.Equal(t, "Unconfigured Provider", resp.Diagnostics.Errors()[0].Summary())
}

func TestConnectionDataSource_Read(t *testing.T) {
	client, m := newMockClient(t, true)
	m.On("WhoAmI", mock.Anything).Return(&ldap.WhoAmIResult{
		AuthzID:        `u:EXAMPLE\jdoe`,
		Format:         "sam",
		SAMAccountName: `EXAMPLE\jdoe`,
	}, nil).Once()

	ds := provider.NewConnectionDataSource()
	configureDataSource(t, ds, client)
	resp := readDataSource(t, ds, nil)
	requireNoDiagErrors(t, resp)

	var data provider.ConnectionDataSourceModel
	require.False(t, resp.State.Get(context.Background(), &data).HasError())
	assert.Equal(t, testURI, data.BoundURI.ValueString())
	assert.Equal(t, testURI, data.ID.ValueString())
	assert.Equal(t, testBase, data.SearchBase.ValueString())
	assert.Equal(t, `u:EXAMPLE\jdoe`, data.AuthzID.ValueString())
	assert.Equal(t, "sam", data.Format.ValueString())
	assert.Equal(t, `EXAMPLE\jdoe`, data.SAMAccountName.ValueString())
	assert.True(t, data.DN.IsNull())
	assert.True(t, data.SID.IsNull())
}

func TestConnectionDataSource_ReadError(t *testing.T) {
	client, m := newMockClient(t, true)
	m.On("WhoAmI", mock.Anything).Return(nil, goldap.NewError(goldap.LDAPResultUnwillingToPerform, errors.New("no"))).Once()

	ds := provider.NewConnectionDataSource()
	configureDataSource(t, ds, client)
	resp := readDataSource(t, ds, nil)

	require.True(t, resp.Diagnostics.HasError())
	diag := resp.Diagnostics.Errors()[0]
	assert.Equal(t, "Error Performing WhoAmI Operation", diag.Summary())
	assert.Contains(t, diag.Detail(), "ADOperationalError (code 53)")
}

func TestSearchDNDataSource_Read(t *testing.T) {
	client, m := newMockClient(t, true)
	expectPaged(m, func(req *ldap.SearchRequest) bool {
		return req.BaseDN == testBase && req.Scope == ldap.ScopeWholeSubtree && req.Filter == "(sn=Doe)"
	}, goldap.NewEntry(johnDN, nil))

	ds := provider.NewSearchDNDataSource()
	configureDataSource(t, ds, client)
	resp := readDataSource(t, ds, map[string]tftypes.Value{
		"filter": tftypes.NewValue(tftypes.String, "(sn=Doe)"),
	})
	requireNoDiagErrors(t, resp)

	assert.Equal(t, []string{johnDN}, stateAttr[[]string](t, resp, "dns"))
	assert.Equal(t, "(sn=Doe)", stateAttr[string](t, resp, "id"))
}

func TestSearchDataSource_Read(t *testing.T) {
	client, m := newMockClient(t, true)
	expectPaged(m, func(req *ldap.SearchRequest) bool {
		return req.BaseDN == usersOU && req.Scope == ldap.ScopeSingleLevel && req.Filter == "(objectClass=user)"
	}, goldap.NewEntry(johnDN, map[string][]string{
		"cn":   {"John Doe"},
		"mail": {"john@example.com"},
	}))

	ds := provider.NewSearchDataSource()
	configureDataSource(t, ds, client)
	resp := readDataSource(t, ds, map[string]tftypes.Value{
		"ou":     tftypes.NewValue(tftypes.String, usersOU),
		"scope":  tftypes.NewValue(tftypes.String, "onelevel"),
		"filter": tftypes.NewValue(tftypes.String, "(objectClass=user)"),
		"attributes": tftypes.NewValue(tftypes.List{ElementType: tftypes.String}, []tftypes.Value{
			tftypes.NewValue(tftypes.String, "cn"),
			tftypes.NewValue(tftypes.String, "mail"),
		}),
	})
	requireNoDiagErrors(t, resp)

	entries := stateAttr[map[string]map[string][]string](t, resp, "entries")
	assert.Equal(t, map[string]map[string][]string{
		johnDN: {
			"cn":   {"John Doe"},
			"mail": {"john@example.com"},
		},
	}, entries)
	assert.Equal(t, usersOU+"|onelevel|(objectClass=user)", stateAttr[string](t, resp, "id"))
}

func TestSearchDataSource_ServerError(t *testing.T) {
	client, m := newMockClient(t, true)
	m.On("SearchWithPaging", mock.Anything, mock.Anything).
		Return(nil, goldap.NewError(goldap.LDAPResultNoSuchObject, errors.New("no such base"))).Once()

	ds := provider.NewSearchDataSource()
	configureDataSource(t, ds, client)
	resp := readDataSource(t, ds, map[string]tftypes.Value{
		"ou": tftypes.NewValue(tftypes.String, "OU=Missing,DC=example,DC=com"),
	})

	require.True(t, resp.Diagnostics.HasError())
	assert.Contains(t, resp.Diagnostics.Errors()[0].Detail(), "ADSearchError (code 32)")
}

func TestGroupsDataSource_Read(t *testing.T) {
	client, m := newMockClient(t, true)
	expectPaged(m, func(req *ldap.SearchRequest) bool {
		return req.BaseDN == testBase && req.Filter == "(objectClass=group)"
	},
		goldap.NewEntry(adminsDN, map[string][]string{"sAMAccountName": {"Admins"}}),
		goldap.NewEntry("CN=Auditors,OU=Groups,DC=example,DC=com", map[string][]string{"sAMAccountName": {"Auditors"}}),
	)

	ds := provider.NewGroupsDataSource()
	configureDataSource(t, ds, client)
	resp := readDataSource(t, ds, nil)
	requireNoDiagErrors(t, resp)

	assert.Equal(t, []string{"Admins", "Auditors"}, stateAttr[[]string](t, resp, "names"))
}

func TestGroupDataSource_Read(t *testing.T) {
	const computerDN = "CN=ws01,OU=Computers,DC=example,DC=com"

	client, m := newMockClient(t, true)
	expectResolve(m, "Admins", adminsDN)
	expectEntry(m, adminsDN, map[string][]string{"member": {johnDN, computerDN}})
	expectEntry(m, johnDN, map[string][]string{"sAMAccountName": {"jdoe"}})
	expectEntry(m, computerDN, map[string][]string{"sAMAccountName": {"WS01$"}})

	ds := provider.NewGroupDataSource()
	configureDataSource(t, ds, client)
	resp := readDataSource(t, ds, map[string]tftypes.Value{
		"name": tftypes.NewValue(tftypes.String, "Admins"),
	})
	requireNoDiagErrors(t, resp)

	assert.Equal(t, adminsDN, stateAttr[string](t, resp, "dn"))
	assert.Equal(t, []string{"WS01$", "jdoe"}, stateAttr[[]string](t, resp, "members"))
}

func TestUsersDataSource_Selectors(t *testing.T) {
	testCases := map[string]struct {
		config map[string]tftypes.Value
		match  func(*ldap.SearchRequest) bool
		id     string
	}{
		"all": {
			match: func(req *ldap.SearchRequest) bool {
				return req.BaseDN == testBase && req.Filter == "(&(objectCategory=person)(objectClass=user))"
			},
			id: "all",
		},
		"one level": {
			config: map[string]tftypes.Value{
				"ou": tftypes.NewValue(tftypes.String, usersOU),
			},
			match: func(req *ldap.SearchRequest) bool {
				return req.BaseDN == usersOU && req.Scope == ldap.ScopeSingleLevel
			},
			id: "onelevel:" + usersOU,
		},
		"subtree": {
			config: map[string]tftypes.Value{
				"ou":      tftypes.NewValue(tftypes.String, usersOU),
				"subtree": tftypes.NewValue(tftypes.Bool, true),
			},
			match: func(req *ldap.SearchRequest) bool {
				return req.BaseDN == usersOU && req.Scope == ldap.ScopeWholeSubtree
			},
			id: "subtree:" + usersOU,
		},
		"dialin": {
			config: map[string]tftypes.Value{
				"dialin": tftypes.NewValue(tftypes.Bool, true),
			},
			match: func(req *ldap.SearchRequest) bool {
				return req.Filter == "(&(&(objectCategory=person)(objectClass=user))(msNPAllowDialin=TRUE))"
			},
			id: "dialin",
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			client, m := newMockClient(t, true)
			expectEntry(m, usersOU, map[string][]string{"ou": {"Users"}})
			expectPaged(m, tc.match, goldap.NewEntry(johnDN, map[string][]string{"sAMAccountName": {"jdoe"}}))

			ds := provider.NewUsersDataSource()
			configureDataSource(t, ds, client)
			resp := readDataSource(t, ds, tc.config)
			requireNoDiagErrors(t, resp)

			assert.Equal(t, []string{"jdoe"}, stateAttr[[]string](t, resp, "names"))
			assert.Equal(t, tc.id, stateAttr[string](t, resp, "id"))
		})
	}
}

func TestObjectDataSource_Read(t *testing.T) {
	client, m := newMockClient(t, true)
	expectResolve(m, "jdoe", johnDN)
	expectEntry(m, johnDN, map[string][]string{
		"cn":             {"John Doe"},
		"sAMAccountName": {"jdoe"},
		"memberOf":       {adminsDN},
	})

	ds := provider.NewObjectDataSource()
	configureDataSource(t, ds, client)
	resp := readDataSource(t, ds, map[string]tftypes.Value{
		"object":    tftypes.NewValue(tftypes.String, "jdoe"),
		"attribute": tftypes.NewValue(tftypes.String, "memberOf"),
	})
	requireNoDiagErrors(t, resp)

	assert.True(t, stateAttr[bool](t, resp, "exists"))
	assert.Equal(t, johnDN, stateAttr[string](t, resp, "dn"))
	assert.Equal(t, []string{adminsDN}, stateAttr[[]string](t, resp, "values"))
	assert.Equal(t, []string{"jdoe"}, stateAttr[map[string][]string](t, resp, "attributes")["sAMAccountName"])
}

func TestObjectDataSource_MissingAttribute(t *testing.T) {
	client, m := newMockClient(t, true)
	expectEntry(m, johnDN, map[string][]string{"cn": {"John Doe"}})

	ds := provider.NewObjectDataSource()
	configureDataSource(t, ds, client)
	resp := readDataSource(t, ds, map[string]tftypes.Value{
		"object":    tftypes.NewValue(tftypes.String, johnDN),
		"attribute": tftypes.NewValue(tftypes.String, "mail"),
	})
	requireNoDiagErrors(t, resp)

	assert.True(t, stateAttr[bool](t, resp, "exists"))
	assert.Empty(t, stateAttr[[]string](t, resp, "values"))
}

func TestObjectDataSource_NotFound(t *testing.T) {
	client, m := newMockClient(t, true)
	m.On("Search", mock.Anything, mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.Filter == "(sAMAccountName=ghost)"
	})).Return(searchResult(), nil)

	ds := provider.NewObjectDataSource()
	configureDataSource(t, ds, client)
	resp := readDataSource(t, ds, map[string]tftypes.Value{
		"object": tftypes.NewValue(tftypes.String, "ghost"),
	})
	requireNoDiagErrors(t, resp)

	var data provider.ObjectDataSourceModel
	require.False(t, resp.State.Get(context.Background(), &data).HasError())
	assert.False(t, data.Exists.ValueBool())
	assert.True(t, data.DN.IsNull())
	assert.True(t, data.Attributes.IsNull())
}

func TestCredentialsCheckDataSource_Read(t *testing.T) {
	testCases := map[string]struct {
		bindErr error
		valid   bool
	}{
		"accepted": {valid: true},
		"rejected": {bindErr: goldap.NewError(goldap.LDAPResultInvalidCredentials, errors.New("invalid credentials"))},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			client, m := newMockClient(t, true)
			expectResolve(m, "jdoe", johnDN)
			m.On("CheckCredentials", mock.Anything, johnDN, "hunter2").Return(tc.bindErr).Once()

			ds := provider.NewCredentialsCheckDataSource()
			configureDataSource(t, ds, client)
			resp := readDataSource(t, ds, map[string]tftypes.Value{
				"user":     tftypes.NewValue(tftypes.String, "jdoe"),
				"password": tftypes.NewValue(tftypes.String, "hunter2"),
			})
			requireNoDiagErrors(t, resp)

			assert.Equal(t, tc.valid, stateAttr[bool](t, resp, "valid"))
			m.AssertExpectations(t)
		})
	}
}
