// Package adclient implements the Active Directory client handle: login, lookups,
// account management and attribute edits on top of the ldap package.
package adclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-adclient/internal/ldap"
)

// DefaultCacheTTL bounds how long a resolved identifier is trusted.
const DefaultCacheTTL = 5 * time.Minute

// ClientFactory builds the connection-level client for a login attempt.
type ClientFactory func(ctx context.Context, config *ldap.ConnectionConfig) (ldap.Client, error)

// Option configures an ADClient.
type Option func(*ADClient)

// WithConfig supplies the connection template (Kerberos, NTLM, TLS, pool and retry
// settings). Login fills in URIs, credentials and the search base.
func WithConfig(config *ldap.ConnectionConfig) Option {
	return func(a *ADClient) {
		if config != nil {
			a.template = config
		}
	}
}

// WithClientFactory replaces the function used to open connections.
func WithClientFactory(factory ClientFactory) Option {
	return func(a *ADClient) {
		a.factory = factory
	}
}

// WithCacheTTL sets the identifier cache lifetime. Zero disables expiry.
func WithCacheTTL(ttl time.Duration) Option {
	return func(a *ADClient) {
		a.cacheTTL = ttl
	}
}

// LoginParams are the arguments of a login.
type LoginParams struct {
	URIs         []string
	BindDN       string
	BindPassword string
	SearchBase   string
	Secured      bool
}

// ADClient is the Active Directory client handle. It starts unbound and becomes
// usable after a successful Login. It is safe for concurrent use.
type ADClient struct {
	template *ldap.ConnectionConfig
	factory  ClientFactory
	cacheTTL time.Duration

	mu      sync.RWMutex
	current *session

	errNum atomic.Int64
}

// session is the state established by one successful login.
type session struct {
	client     ldap.Client
	resolver   *ldap.Resolver
	cache      *ldap.DNCache
	boundURI   string
	searchBase string
	secured    bool
}

// New creates an unbound handle.
func New(opts ...Option) *ADClient {
	a := &ADClient{
		template: ldap.DefaultConfig(),
		factory:  ldap.NewClientWithContext,
		cacheTTL: DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Login binds to the first URI that accepts the credentials.
func (a *ADClient) Login(ctx context.Context, uris []string, bindDN, bindPW, searchBase string, secured bool) error {
	return a.LoginWithParams(ctx, LoginParams{
		URIs:         uris,
		BindDN:       bindDN,
		BindPassword: bindPW,
		SearchBase:   searchBase,
		Secured:      secured,
	})
}

// LoginURI promotes a single URI to a one-element list and logs in.
func (a *ADClient) LoginURI(ctx context.Context, uri, bindDN, bindPW, searchBase string, secured bool) error {
	return a.Login(ctx, []string{uri}, bindDN, bindPW, searchBase, secured)
}

// LoginWithParams is Login taking a parameter struct.
func (a *ADClient) LoginWithParams(ctx context.Context, params LoginParams) error {
	const op = "login"

	uris := make([]string, 0, len(params.URIs))
	for _, u := range params.URIs {
		if u = strings.TrimSpace(u); u != "" {
			uris = append(uris, u)
		}
	}
	if len(uris) == 0 && a.template.Domain == "" {
		return a.record(ctx, op, KindBind, errors.New("no LDAP URIs given"))
	}

	config := *a.template
	config.LDAPURLs = uris
	config.BaseDN = params.SearchBase
	config.TLSConfig = nil
	if params.BindDN != "" {
		config.Username = params.BindDN
		config.Password = params.BindPassword
	}
	config.UseTLS = params.Secured
	config.SkipTLS = !params.Secured

	fields := map[string]any{
		"uris":        uris,
		"bind_dn":     params.BindDN,
		"search_base": params.SearchBase,
		"secured":     params.Secured,
		"auth_method": config.GetAuthMethod().String(),
	}

	var s *session
	err := ldap.LogOperation(ctx, ldap.SubsystemADClient, op, fields, func() error {
		var err error
		s, err = a.open(ctx, &config, uris, params.Secured)
		return err
	})
	if err != nil {
		return a.record(ctx, op, KindBind, err)
	}

	a.mu.Lock()
	previous := a.current
	a.current = s
	a.mu.Unlock()

	if previous != nil {
		_ = previous.client.Close()
	}

	tflog.SubsystemInfo(ctx, ldap.SubsystemADClient, "Logged in", map[string]any{
		"bound_uri":   s.boundURI,
		"search_base": s.searchBase,
	})
	return a.record(ctx, op, KindBind, nil)
}

func (a *ADClient) open(ctx context.Context, config *ldap.ConnectionConfig, uris []string, secured bool) (*session, error) {
	client, err := a.factory(ctx, config)
	if err != nil {
		return nil, err
	}

	if config.HasAuthentication() {
		err = client.BindWithConfig(ctx)
	} else {
		err = client.Connect(ctx)
	}
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	searchBase := config.BaseDN
	if searchBase == "" {
		if searchBase, err = client.GetBaseDN(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("search base not given and could not be read from the root DSE: %w", err)
		}
	}

	cache := ldap.NewDNCache(a.cacheTTL)
	return &session{
		client:     client,
		resolver:   ldap.NewResolver(client, searchBase, cache),
		cache:      cache,
		boundURI:   matchBoundURI(uris, client.BoundServer()),
		searchBase: searchBase,
		secured:    secured,
	}, nil
}

// matchBoundURI maps the pool's canonical server URL back to the URI the caller supplied.
func matchBoundURI(uris []string, bound string) string {
	for _, u := range uris {
		server, err := ldap.ParseLDAPURL(u)
		if err == nil && strings.EqualFold(ldap.ServerInfoToURL(server), bound) {
			return u
		}
	}
	return bound
}

// BindedURI returns the URI that accepted the bind, or "" when unbound.
func (a *ADClient) BindedURI() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.current == nil {
		return ""
	}
	return a.current.boundURI
}

// SearchBase returns the DN searches are rooted at, or "" when unbound.
func (a *ADClient) SearchBase() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.current == nil {
		return ""
	}
	return a.current.searchBase
}

// IsBound reports whether Login has succeeded.
func (a *ADClient) IsBound() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current != nil
}

// ErrorNum returns the numeric code of the last error, 0 after a success.
func (a *ADClient) ErrorNum() int {
	return int(a.errNum.Load())
}

// WhoAmI reports the authorization identity of the bound connection.
func (a *ADClient) WhoAmI(ctx context.Context) (*ldap.WhoAmIResult, error) {
	var result *ldap.WhoAmIResult
	err := a.run(ctx, "whoami", KindOperational, nil, func(s *session) error {
		var err error
		result, err = s.client.WhoAmI(ctx)
		return err
	})
	return result, err
}

// WarmCache preloads the identifier cache with every user, group and computer.
func (a *ADClient) WarmCache(ctx context.Context) (int, error) {
	var loaded int
	err := a.run(ctx, "warm_cache", KindSearch, nil, func(s *session) error {
		var err error
		loaded, err = s.cache.Warm(ctx, s.client, s.searchBase)
		return err
	})
	return loaded, err
}

// Stats returns connection pool statistics, zero when unbound.
func (a *ADClient) Stats() ldap.PoolStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.current == nil {
		return ldap.PoolStats{}
	}
	return a.current.client.Stats()
}

// Close releases the connection pool and returns the handle to the unbound state.
func (a *ADClient) Close() error {
	a.mu.Lock()
	s := a.current
	a.current = nil
	a.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.client.Close()
}

func (a *ADClient) session() (*session, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.current == nil {
		return nil, ErrNotBound
	}
	return a.current, nil
}

// run executes fn against the bound session, logging and recording the outcome.
// Errors that are already *Error keep their kind.
func (a *ADClient) run(ctx context.Context, op string, kind Kind, fields map[string]any, fn func(*session) error) error {
	s, err := a.session()
	if err != nil {
		return a.record(ctx, op, KindOperational, err)
	}
	err = ldap.LogOperation(ctx, ldap.SubsystemADClient, op, fields, func() error {
		return fn(s)
	})
	return a.record(ctx, op, kind, err)
}

// record updates the last error number and converts err to *Error.
func (a *ADClient) record(ctx context.Context, op string, kind Kind, err error) error {
	if err == nil {
		a.errNum.Store(0)
		return nil
	}

	var adErr *Error
	if !errors.As(err, &adErr) {
		adErr = newError(kind, op, err)
	}
	a.errNum.Store(int64(adErr.Code))

	tflog.SubsystemDebug(ctx, ldap.SubsystemADClient, "Operation error recorded", map[string]any{
		"operation": op,
		"kind":      adErr.Kind.String(),
		"code":      adErr.Code,
	})
	return adErr
}

// resolve turns an identifier into a DN, classifying failures as search errors.
func (s *session) resolve(ctx context.Context, op, identifier string) (string, error) {
	dn, err := s.resolver.ResolveDN(ctx, identifier)
	if err != nil {
		return "", newError(KindSearch, op, err)
	}
	return dn, nil
}
