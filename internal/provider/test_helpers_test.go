package provider_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/providerserver"
	"github.com/hashicorp/terraform-plugin-framework/tfsdk"
	"github.com/hashicorp/terraform-plugin-go/tfprotov6"
	"github.com/hashicorp/terraform-plugin-go/tftypes"
	"github.com/hashicorp/terraform-plugin-testing/helper/resource"
	"github.com/hashicorp/terraform-plugin-testing/terraform"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/isometry/terraform-provider-adclient/internal/adclient"
	"github.com/isometry/terraform-provider-adclient/internal/ldap"
	"github.com/isometry/terraform-provider-adclient/internal/ldap/ldapmock"
	"github.com/isometry/terraform-provider-adclient/internal/provider"
)

// Test environment configuration.
const (
	EnvTestURI          = "AD_TEST_URI"
	EnvTestDomain       = "AD_TEST_DOMAIN"
	EnvTestBindDN       = "AD_TEST_BIND_DN"
	EnvTestBindPassword = "AD_TEST_BIND_PASSWORD"
	EnvTestSearchBase   = "AD_TEST_SEARCH_BASE"
	EnvTestContainer    = "AD_TEST_CONTAINER"
	EnvTestSecured      = "AD_TEST_SECURED"
	EnvTestGroup        = "AD_TEST_GROUP"

	// Test object name prefixes to avoid conflicts.
	TestOUPrefix       = "tf-test-ou-"
	TestUserPrefix     = "tf-test-user-"
	TestComputerPrefix = "tftest-"
)

// Fixtures shared by the mock-backed tests.
const (
	testBase   = "DC=example,DC=com"
	testURI    = "ldaps://dc1.example.com"
	testBindDN = "CN=svc-terraform,OU=Service,DC=example,DC=com"
	johnDN     = "CN=John Doe,OU=Users,DC=example,DC=com"
	adminsDN   = "CN=Admins,OU=Groups,DC=example,DC=com"
	usersOU    = "OU=Users,DC=example,DC=com"
)

// testAccProtoV6ProviderFactories is used to instantiate a provider during acceptance testing.
// The factory function is called for each Terraform CLI command to create a provider
// server that the CLI can connect to and interact with.
var testAccProtoV6ProviderFactories = map[string]func() (tfprotov6.ProviderServer, error){
	"adclient": providerserver.NewProtocol6WithError(provider.New("test")()),
}

// TestConfig holds the acceptance test environment.
type TestConfig struct {
	URI          string
	Domain       string
	BindDN       string
	BindPassword string
	SearchBase   string
	Container    string
	Group        string
	Secured      bool
}

// GetTestConfig returns the test configuration from environment variables.
func GetTestConfig() *TestConfig {
	config := &TestConfig{
		URI:          os.Getenv(EnvTestURI),
		Domain:       os.Getenv(EnvTestDomain),
		BindDN:       os.Getenv(EnvTestBindDN),
		BindPassword: os.Getenv(EnvTestBindPassword),
		SearchBase:   os.Getenv(EnvTestSearchBase),
		Container:    os.Getenv(EnvTestContainer),
		Group:        os.Getenv(EnvTestGroup),
		Secured:      !strings.EqualFold(os.Getenv(EnvTestSecured), "false"),
	}

	if config.Container == "" && config.SearchBase != "" {
		config.Container = "CN=Users," + config.SearchBase
	}

	return config
}

// IsAccTest returns true if acceptance tests should run.
func IsAccTest() bool {
	return os.Getenv("TF_ACC") != ""
}

// SkipIfNotAccTest skips the test if TF_ACC is not set.
func SkipIfNotAccTest(t *testing.T) {
	if !IsAccTest() {
		t.Skip("Skipping acceptance test - set TF_ACC=1 to run")
	}
}

// testAccPreCheck skips the test unless a real directory is configured.
func testAccPreCheck(t *testing.T) *TestConfig {
	SkipIfNotAccTest(t)

	config := GetTestConfig()

	if config.URI == "" && config.Domain == "" {
		t.Skipf("Skipping test: either %s or %s must be set", EnvTestURI, EnvTestDomain)
	}
	if config.BindDN == "" || config.BindPassword == "" {
		t.Skipf("Skipping test: %s and %s must be set", EnvTestBindDN, EnvTestBindPassword)
	}
	if config.SearchBase == "" {
		t.Skipf("Skipping test: %s must be set", EnvTestSearchBase)
	}

	return config
}

// testAccProviderConfig renders the provider block for acceptance tests.
func testAccProviderConfig() string {
	config := GetTestConfig()

	var b strings.Builder
	b.WriteString("provider \"adclient\" {\n")
	if config.URI != "" {
		fmt.Fprintf(&b, "  uris = %q\n", config.URI)
	} else {
		fmt.Fprintf(&b, "  domain = %q\n", config.Domain)
	}
	fmt.Fprintf(&b, "  bind_dn       = %q\n", config.BindDN)
	fmt.Fprintf(&b, "  bind_password = %q\n", config.BindPassword)
	fmt.Fprintf(&b, "  search_base   = %q\n", config.SearchBase)
	fmt.Fprintf(&b, "  secured       = %t\n", config.Secured)
	b.WriteString("}\n")

	return b.String()
}

// GenerateTestName generates a unique test name with timestamp.
func GenerateTestName(prefix string) string {
	timestamp := time.Now().Format("20060102-150405")
	shortUUID := uuid.New().String()[:8]
	return fmt.Sprintf("%s%s-%s", prefix, timestamp, shortUUID)
}

// GenerateTestShortName generates a unique name short enough for sAMAccountName or a computer name.
func GenerateTestShortName(prefix string, maxLength int) string {
	name := prefix + strings.ReplaceAll(uuid.New().String(), "-", "")
	return name[:maxLength]
}

// newTestClient logs a handle in to the acceptance test directory.
func newTestClient(ctx context.Context) (*adclient.ADClient, error) {
	config := GetTestConfig()

	template := ldap.DefaultConfig()
	template.Domain = config.Domain

	client := adclient.New(adclient.WithConfig(template))
	var uris []string
	if config.URI != "" {
		uris = []string{config.URI}
	}
	if err := client.Login(ctx, uris, config.BindDN, config.BindPassword, config.SearchBase, config.Secured); err != nil {
		return nil, err
	}
	return client, nil
}

// testAccCheckDNExists verifies that the DN recorded in the resource's id exists with the object class.
func testAccCheckDNExists(resourceName, objectClass string) resource.TestCheckFunc {
	return func(s *terraform.State) error {
		rs, ok := s.RootModule().Resources[resourceName]
		if !ok {
			return fmt.Errorf("resource not found: %s", resourceName)
		}

		ctx := context.Background()
		client, err := newTestClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		exists, err := client.IfDNExists(ctx, rs.Primary.ID, objectClass)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%s %s does not exist", objectClass, rs.Primary.ID)
		}
		return nil
	}
}

// testAccCheckDNDestroy verifies that no resource of the given type survives destroy.
func testAccCheckDNDestroy(resourceType string) resource.TestCheckFunc {
	return func(s *terraform.State) error {
		ctx := context.Background()
		client, err := newTestClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		for _, rs := range s.RootModule().Resources {
			if rs.Type != resourceType {
				continue
			}
			exists, err := client.IfDNExists(ctx, rs.Primary.ID, "*")
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("%s still exists", rs.Primary.ID)
			}
		}
		return nil
	}
}

// newMockClient returns a handle logged in over a fresh mock connection.
func newMockClient(t *testing.T, secured bool) (*adclient.ADClient, *ldapmock.Client) {
	t.Helper()

	m := &ldapmock.Client{}
	m.On("BindWithConfig", mock.Anything).Return(nil).Once()
	m.On("BoundServer").Return("ldaps://dc1.example.com:636").Maybe()
	m.On("Close").Return(nil).Maybe()

	client := adclient.New(adclient.WithClientFactory(func(context.Context, *ldap.ConnectionConfig) (ldap.Client, error) {
		return m, nil
	}))
	require.NoError(t, client.Login(context.Background(), []string{testURI}, testBindDN, "secret", testBase, secured))
	return client, m
}

// searchResult wraps entries the way the connection layer returns them.
func searchResult(entries ...*goldap.Entry) *ldap.SearchResult {
	return &ldap.SearchResult{Entries: entries, Total: len(entries)}
}

// expectResolve answers the identifier lookup for a short name.
func expectResolve(m *ldapmock.Client, sam, dn string) {
	m.On("Search", mock.Anything, mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.Filter == "(sAMAccountName="+sam+")"
	})).Return(searchResult(goldap.NewEntry(dn, map[string][]string{"sAMAccountName": {sam}})), nil)
}

// expectEntry answers base searches on dn, covering both DN resolution and attribute reads.
func expectEntry(m *ldapmock.Client, dn string, attrs map[string][]string) {
	m.On("Search", mock.Anything, mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.BaseDN == dn && req.Scope == ldap.ScopeBaseObject && req.Filter == "(objectClass=*)"
	})).Return(searchResult(goldap.NewEntry(dn, attrs)), nil)
}

// expectPaged answers one paged search matching match.
func expectPaged(m *ldapmock.Client, match func(*ldap.SearchRequest) bool, entries ...*goldap.Entry) {
	m.On("SearchWithPaging", mock.Anything, mock.MatchedBy(match)).Return(searchResult(entries...), nil).Once()
}

// configureDataSource hands the client to a fresh data source.
func configureDataSource(t *testing.T, ds datasource.DataSource, client *adclient.ADClient) {
	t.Helper()

	resp := &datasource.ConfigureResponse{}
	ds.(datasource.DataSourceWithConfigure).Configure(context.Background(), datasource.ConfigureRequest{ProviderData: client}, resp)
	require.False(t, resp.Diagnostics.HasError(), "configure: %v", resp.Diagnostics)
}

// readDataSource runs Read with the given configuration values; unset attributes are null.
func readDataSource(t *testing.T, ds datasource.DataSource, values map[string]tftypes.Value) *datasource.ReadResponse {
	t.Helper()
	ctx := context.Background()

	schemaResp := &datasource.SchemaResponse{}
	ds.Schema(ctx, datasource.SchemaRequest{}, schemaResp)
	require.False(t, schemaResp.Diagnostics.HasError())

	objectType := schemaResp.Schema.Type().TerraformType(ctx).(tftypes.Object)
	attrs := make(map[string]tftypes.Value, len(objectType.AttributeTypes))
	for name, typ := range objectType.AttributeTypes {
		if v, ok := values[name]; ok {
			attrs[name] = v
			continue
		}
		attrs[name] = tftypes.NewValue(typ, nil)
	}

	req := datasource.ReadRequest{
		Config: tfsdk.Config{
			Schema: schemaResp.Schema,
			Raw:    tftypes.NewValue(objectType, attrs),
		},
	}
	resp := &datasource.ReadResponse{
		State: tfsdk.State{
			Schema: schemaResp.Schema,
			Raw:    tftypes.NewValue(objectType, nil),
		},
	}

	ds.Read(ctx, req, resp)
	return resp
}
