package ldap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeDNValue(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty string", input: "", expected: ""},
		{name: "plain value", input: "JohnDoe", expected: "JohnDoe"},
		{name: "inner space untouched", input: "John Doe", expected: "John Doe"},
		{name: "comma", input: "Doe, John", expected: `Doe\, John`},
		{name: "plus sign", input: "a+b", expected: `a\+b`},
		{name: "double quote", input: `John "JD" Doe`, expected: `John \"JD\" Doe`},
		{name: "backslash", input: `John\Doe`, expected: `John\\Doe`},
		{name: "angle brackets", input: "a<b>c", expected: `a\<b\>c`},
		{name: "semicolon", input: "a;b", expected: `a\;b`},
		{name: "equals", input: "a=b", expected: `a\=b`},
		{name: "leading hash", input: "#123", expected: `\#123`},
		{name: "inner hash untouched", input: "a#1", expected: "a#1"},
		{name: "leading and trailing space", input: " John ", expected: `\ John\ `},
		{name: "null byte", input: "a\x00b", expected: `a\00b`},
		{name: "unicode", input: "Jürgen", expected: "Jürgen"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, EscapeDNValue(tc.input))
		})
	}
}

func TestJoinDN(t *testing.T) {
	assert.Equal(t, `CN=Doe\, John,OU=Users,DC=example,DC=com`, JoinDN("cn", "Doe, John", "OU=Users,DC=example,DC=com"))
	assert.Equal(t, "OU=Top", JoinDN("ou", "Top", ""))
}

func TestNormalizeDN(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{name: "empty", input: "", expected: ""},
		{name: "lowercase types", input: "cn=John,ou=Users,dc=example,dc=com", expected: "CN=John,OU=Users,DC=example,DC=com"},
		{name: "escaped comma preserved", input: `cn=Doe\, John,dc=example`, expected: `CN=Doe\, John,DC=example`},
		{name: "hex escape rendered canonically", input: `cn=Doe\2C John,dc=example`, expected: `CN=Doe\, John,DC=example`},
		{name: "multi-valued rdn", input: "cn=John+sn=Doe,dc=example", expected: "CN=John+SN=Doe,DC=example"},
		{name: "invalid", input: "not a dn", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeDN(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestValidateDNSyntax(t *testing.T) {
	assert.NoError(t, ValidateDNSyntax("CN=John,DC=example,DC=com"))
	assert.Error(t, ValidateDNSyntax(""))
	assert.Error(t, ValidateDNSyntax("   "))
	assert.Error(t, ValidateDNSyntax("John"))

	assert.True(t, LooksLikeDN("ou=Users,dc=example"))
	assert.False(t, LooksLikeDN("jdoe"))
	assert.False(t, LooksLikeDN("jdoe@example.com"))
}

func TestExtractRDNValue(t *testing.T) {
	value, err := ExtractRDNValue(`CN=Doe\, John,OU=Users,DC=example,DC=com`, "cn")
	require.NoError(t, err)
	assert.Equal(t, "Doe, John", value)

	value, err = ExtractRDNValue("CN=John,OU=Users,DC=example,DC=com", "OU")
	require.NoError(t, err)
	assert.Equal(t, "Users", value)

	_, err = ExtractRDNValue("CN=John,DC=example", "OU")
	assert.Error(t, err)
}

func TestParentDN(t *testing.T) {
	parent, err := ParentDN("cn=John,ou=Users,dc=example,dc=com")
	require.NoError(t, err)
	assert.Equal(t, "OU=Users,DC=example,DC=com", parent)

	_, err = ParentDN("dc=com")
	assert.Error(t, err)
}

func TestIsDNUnder(t *testing.T) {
	testCases := []struct {
		name     string
		child    string
		parent   string
		expected bool
	}{
		{name: "direct child", child: "CN=John,OU=Users,DC=example,DC=com", parent: "OU=Users,DC=example,DC=com", expected: true},
		{name: "case insensitive", child: "cn=john,ou=users,dc=EXAMPLE,dc=com", parent: "OU=Users,DC=example,DC=com", expected: true},
		{name: "same dn", child: "DC=example,DC=com", parent: "dc=example,dc=com", expected: true},
		{name: "sibling", child: "CN=John,OU=Admins,DC=example,DC=com", parent: "OU=Users,DC=example,DC=com", expected: false},
		{name: "suffix that is not an rdn boundary", child: "OU=XUsers,DC=example,DC=com", parent: "OU=Users,DC=example,DC=com", expected: false},
		{name: "empty parent", child: "CN=John,DC=example", parent: "", expected: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := IsDNUnder(tc.child, tc.parent)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestDomainFromDN(t *testing.T) {
	assert.Equal(t, "corp.example.com", DomainFromDN("OU=Users,DC=Corp,DC=Example,DC=com"))
	assert.Equal(t, "", DomainFromDN("OU=Users"))
	assert.Equal(t, "", DomainFromDN("garbage"))
}

func TestOUChain(t *testing.T) {
	chain, err := OUChain("OU=Leaf,OU=Mid,OU=Top,DC=example,DC=com", "DC=example,DC=com")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"OU=Top,DC=example,DC=com",
		"OU=Mid,OU=Top,DC=example,DC=com",
		"OU=Leaf,OU=Mid,OU=Top,DC=example,DC=com",
	}, chain)

	chain, err = OUChain("ou=Leaf,ou=Base,dc=example,dc=com", "OU=Base,DC=example,DC=com")
	require.NoError(t, err)
	assert.Equal(t, []string{"OU=Leaf,OU=Base,DC=example,DC=com"}, chain)

	_, err = OUChain("CN=John,DC=example,DC=com", "")
	assert.Error(t, err)

	_, err = OUChain("CN=Servers,OU=Corp,DC=example,DC=com", "DC=example,DC=com")
	assert.ErrorContains(t, err, "is not an organizational unit")

	_, err = OUChain("not a dn", "")
	assert.Error(t, err)
}
