package ldap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePool hands out errors in sequence and records how often it was asked.
type fakePool struct {
	errs     []error
	calls    int
	resets   int
	closed   bool
	servers  []*ServerInfo
	boundURL string
}

func (f *fakePool) Get(context.Context) (*PooledConnection, error) {
	f.calls++
	if len(f.errs) == 0 {
		return nil, errors.New("no connection")
	}
	err := f.errs[0]
	if len(f.errs) > 1 {
		f.errs = f.errs[1:]
	}
	return nil, err
}

func (f *fakePool) Close() error                      { f.closed = true; return nil }
func (f *fakePool) Stats() PoolStats                  { return PoolStats{BoundURL: f.boundURL} }
func (f *fakePool) HealthCheck(context.Context) error { return nil }
func (f *fakePool) Servers() []*ServerInfo            { return f.servers }
func (f *fakePool) Reset()                            { f.resets++ }

func testClient(pool *fakePool) *client {
	config := DefaultConfig()
	config.InitialBackoff = time.Millisecond
	config.MaxBackoff = 2 * time.Millisecond
	config.MaxRetries = 2
	return newClientWithPool(context.Background(), pool, config)
}

func TestClient_RequestValidation(t *testing.T) {
	c := testClient(&fakePool{})
	ctx := context.Background()

	_, err := c.Search(ctx, nil)
	assert.ErrorContains(t, err, "search request cannot be nil")

	_, err = c.SearchWithPaging(ctx, nil)
	assert.ErrorContains(t, err, "search request cannot be nil")

	assert.ErrorContains(t, c.Add(ctx, nil), "add request cannot be nil")
	assert.ErrorContains(t, c.Add(ctx, &AddRequest{}), "DN cannot be empty")
	assert.ErrorContains(t, c.Modify(ctx, nil), "modify request cannot be nil")
	assert.ErrorContains(t, c.Modify(ctx, &ModifyRequest{}), "DN cannot be empty")
	assert.ErrorContains(t, c.ModifyDN(ctx, &ModifyDNRequest{DN: "CN=x"}), "new RDN cannot be empty")
	assert.ErrorContains(t, c.Delete(ctx, ""), "DN cannot be empty")
}

func TestClient_RetriesRetryableErrors(t *testing.T) {
	busy := ldap.NewError(ldap.LDAPResultBusy, errors.New("busy"))
	pool := &fakePool{errs: []error{busy}}
	c := testClient(pool)

	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, pool.calls, "initial attempt plus MaxRetries")
	assert.Equal(t, uint16(ldap.LDAPResultBusy), ResultCode(err))
}

func TestClient_StopsOnPermanentErrors(t *testing.T) {
	denied := ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("data 52e"))
	pool := &fakePool{errs: []error{denied}}
	c := testClient(pool)

	err := c.Delete(context.Background(), "CN=x,DC=example,DC=com")
	require.Error(t, err)
	assert.Equal(t, 1, pool.calls)

	var ldapErr *LDAPError
	require.ErrorAs(t, err, &ldapErr)
	assert.Equal(t, "CN=x,DC=example,DC=com", ldapErr.DN)
	assert.Equal(t, ErrorCategoryAuthentication, ldapErr.Category)
}

func TestClient_RetryHonoursContext(t *testing.T) {
	pool := &fakePool{errs: []error{errors.New("connection reset by peer")}}
	c := testClient(pool)
	c.config.InitialBackoff = time.Hour
	c.config.MaxBackoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.withRetry(ctx, func() error {
		_, err := pool.Get(ctx)
		return err
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, pool.calls)
}

func TestClient_IsRetryableError(t *testing.T) {
	c := testClient(&fakePool{})

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"busy", ldap.NewError(ldap.LDAPResultBusy, errors.New("x")), true},
		{"server down", ldap.NewError(ldap.LDAPResultServerDown, errors.New("x")), true},
		{"network", ldap.NewError(ldap.ErrorNetwork, errors.New("x")), true},
		{"no such object", ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("x")), false},
		{"retryable connection error", NewConnectionError("dial", true, nil), true},
		{"permanent connection error", NewConnectionError("dial", false, nil), false},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"other", errors.New("filter compile error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.isRetryableError(tt.err))
		})
	}
}

func TestClient_BindWithConfigRequiresCredentials(t *testing.T) {
	c := testClient(&fakePool{})
	assert.ErrorContains(t, c.BindWithConfig(context.Background()), "no authentication configuration")
}

func TestClient_CheckCredentialsRejectsEmptyPassword(t *testing.T) {
	c := testClient(&fakePool{})

	err := c.CheckCredentials(context.Background(), "jdoe", "")
	require.Error(t, err)
	assert.Equal(t, uint16(ldap.ErrorEmptyPassword), ResultCode(err))
}

func TestClient_CheckCredentialsNeedsServer(t *testing.T) {
	c := testClient(&fakePool{})
	assert.ErrorContains(t, c.CheckCredentials(context.Background(), "jdoe", "pw"), "no LDAP server available")
}

func TestClient_BindFailureKeepsIdentity(t *testing.T) {
	pool := &fakePool{}
	c := testClient(pool)
	c.config.Username = "svc"
	c.config.Password = "old"

	require.Error(t, c.Bind(context.Background(), "other", ""))
	assert.Equal(t, "svc", c.config.Username)
	assert.Zero(t, pool.resets)
}

func TestClient_PreferredServer(t *testing.T) {
	dc1 := &ServerInfo{Host: "dc1.example.com", Port: 636, UseTLS: true}
	dc2 := &ServerInfo{Host: "dc2.example.com", Port: 636, UseTLS: true}

	pool := &fakePool{servers: []*ServerInfo{dc1, dc2}}
	c := testClient(pool)
	assert.Same(t, dc1, c.preferredServer())

	pool.boundURL = "ldaps://dc2.example.com:636"
	assert.Same(t, dc2, c.preferredServer())
	assert.Equal(t, "ldaps://dc2.example.com:636", c.BoundServer())

	assert.Nil(t, testClient(&fakePool{}).preferredServer())
}

func TestClient_Close(t *testing.T) {
	pool := &fakePool{}
	require.NoError(t, testClient(pool).Close())
	assert.True(t, pool.closed)
}

func TestParseAuthzID(t *testing.T) {
	tests := []struct {
		authzID string
		format  string
		check   func(t *testing.T, r *WhoAmIResult)
	}{
		{"", "empty", nil},
		{"dn:CN=svc,OU=Service,DC=example,DC=com", "dn", func(t *testing.T, r *WhoAmIResult) {
			assert.Equal(t, "CN=svc,OU=Service,DC=example,DC=com", r.DN)
		}},
		{`u:EXAMPLE\svc`, "sam", func(t *testing.T, r *WhoAmIResult) {
			assert.Equal(t, `EXAMPLE\svc`, r.SAMAccountName)
		}},
		{"u:svc@example.com", "upn", func(t *testing.T, r *WhoAmIResult) {
			assert.Equal(t, "svc@example.com", r.UserPrincipalName)
		}},
		{"S-1-5-21-1-2-3-500", "sid", func(t *testing.T, r *WhoAmIResult) {
			assert.Equal(t, "S-1-5-21-1-2-3-500", r.SID)
		}},
		{"u:svc", "unknown", nil},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			result := ParseAuthzID(tt.authzID)
			assert.Equal(t, tt.authzID, result.AuthzID)
			assert.Equal(t, tt.format, result.Format)
			if tt.check != nil {
				tt.check(t, result)
			}
		})
	}
}

func TestToLDAPSearchRequest(t *testing.T) {
	req := &SearchRequest{
		BaseDN:     "DC=example,DC=com",
		Scope:      ScopeSingleLevel,
		Filter:     "(objectClass=user)",
		Attributes: []string{"cn"},
		TimeLimit:  90 * time.Second,
	}

	ldapReq := toLDAPSearchRequest(req, 25, nil)
	assert.Equal(t, "DC=example,DC=com", ldapReq.BaseDN)
	assert.Equal(t, ldap.ScopeSingleLevel, ldapReq.Scope)
	assert.Equal(t, 25, ldapReq.SizeLimit)
	assert.Equal(t, 90, ldapReq.TimeLimit)
	assert.Equal(t, []string{"cn"}, ldapReq.Attributes)
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, sortedKeys(map[string][]string{"c": nil, "a": nil, "b": nil}))
	assert.Empty(t, sortedKeys[int](nil))
}
