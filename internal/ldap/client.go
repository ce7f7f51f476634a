package ldap

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// Paged search limits.
const (
	DefaultPageSize      = 1000
	maxPagedSearchTime   = 30 * time.Minute
	maxPagesPerSearch    = 1000
	pagedProgressEvery   = 10
	pagedProgressMinTime = 10 * time.Second
)

var (
	dnFormatPattern  = regexp.MustCompile(`(?i)^[a-z][a-z0-9-]*=`)
	sidFormatPattern = regexp.MustCompile(`^S-\d+-\d+(-\d+)*$`)
)

// client implements the Client interface.
type client struct {
	pool       ConnectionPool
	config     *ConnectionConfig
	logContext context.Context // Context with configured subsystems for logging
}

// NewClient creates a new LDAP client with connection pooling.
func NewClient(config *ConnectionConfig) (Client, error) {
	return NewClientWithContext(context.Background(), config)
}

// NewClientWithContext creates a new LDAP client with connection pooling and logging context.
func NewClientWithContext(ctx context.Context, config *ConnectionConfig) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	tflog.SubsystemDebug(ctx, SubsystemLDAP, "Creating new LDAP client", map[string]any{
		"domain":          config.Domain,
		"ldap_urls_count": len(config.LDAPURLs),
		"auth_method":     config.GetAuthMethod().String(),
		"use_tls":         config.UseTLS,
		"max_connections": config.MaxConnections,
	})

	pool, err := NewConnectionPool(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return newClientWithPool(ctx, pool, config), nil
}

func newClientWithPool(ctx context.Context, pool ConnectionPool, config *ConnectionConfig) *client {
	return &client{
		pool:       pool,
		config:     config,
		logContext: ctx,
	}
}

// Connect verifies that a connection can be established and answers a root DSE probe.
func (c *client) Connect(ctx context.Context) error {
	return LogOperation(ctx, SubsystemLDAP, "connection_test", map[string]any{
		"domain":    c.config.Domain,
		"ldap_urls": c.config.LDAPURLs,
	}, func() error {
		return c.Ping(ctx)
	})
}

// Close closes the client and all its connections.
func (c *client) Close() error {
	return c.pool.Close()
}

// Bind adopts new simple-bind credentials after proving them on a fresh connection.
func (c *client) Bind(ctx context.Context, username, password string) error {
	if err := c.CheckCredentials(ctx, username, password); err != nil {
		return err
	}

	c.config.Username = username
	c.config.Password = password
	c.config.NTLMDomain = ""
	c.config.KerberosRealm = ""

	// Idle connections still carry the previous identity.
	c.pool.Reset()
	return nil
}

// BindWithConfig performs authentication using the client's configuration.
func (c *client) BindWithConfig(ctx context.Context) error {
	if !c.config.HasAuthentication() {
		tflog.SubsystemError(ctx, SubsystemLDAP, "No authentication configuration available")
		return fmt.Errorf("no authentication configuration available")
	}

	return LogOperation(ctx, SubsystemLDAP, "authentication", map[string]any{
		"auth_method": c.config.GetAuthMethod().String(),
		"username":    c.config.Username,
	}, func() error {
		// The pool binds every new connection; acquiring one proves the credentials.
		conn, err := c.pool.Get(ctx)
		if err != nil {
			return WrapError("bind", err)
		}
		conn.Close()
		return nil
	})
}

// CheckCredentials binds a throwaway connection as username and reports the outcome.
// The pool is untouched, so the caller's identity is unaffected.
func (c *client) CheckCredentials(ctx context.Context, username, password string) error {
	if password == "" {
		// An empty password would be treated as an unauthenticated bind and succeed.
		return NewLDAPError("check_credentials", ldap.NewError(ldap.ErrorEmptyPassword, errors.New("empty password not allowed")))
	}

	server := c.preferredServer()
	if server == nil {
		return fmt.Errorf("no LDAP server available for credential check")
	}

	tlsConfig, err := c.config.BuildTLSConfig()
	if err != nil {
		return err
	}

	return LogOperation(ctx, SubsystemLDAP, "check_credentials", map[string]any{
		"username": username,
		"server":   ServerInfoToURL(server),
	}, func() error {
		conn, err := dialServer(c.config, tlsConfig, server)
		if err != nil {
			return WrapError("check_credentials", err)
		}
		defer conn.Close()

		if err := conn.Bind(username, password); err != nil {
			return NewLDAPError("check_credentials", err)
		}
		return nil
	})
}

// preferredServer returns the server that last accepted a pooled connection, else the first candidate.
func (c *client) preferredServer() *ServerInfo {
	servers := c.pool.Servers()
	bound := c.pool.Stats().BoundURL
	for _, s := range servers {
		if ServerInfoToURL(s) == bound {
			return s
		}
	}
	if len(servers) > 0 {
		return servers[0]
	}
	return nil
}

// toLDAPSearchRequest converts a SearchRequest into a go-ldap request.
func toLDAPSearchRequest(req *SearchRequest, sizeLimit int, controls []ldap.Control) *ldap.SearchRequest {
	return ldap.NewSearchRequest(
		req.BaseDN,
		int(req.Scope),
		int(req.DerefAliases),
		sizeLimit,
		int(req.TimeLimit.Seconds()),
		false,
		req.Filter,
		req.Attributes,
		controls,
	)
}

func searchFields(req *SearchRequest) map[string]any {
	return map[string]any{
		"base_dn":    req.BaseDN,
		"scope":      req.Scope.String(),
		"filter":     req.Filter,
		"attributes": req.Attributes,
		"size_limit": req.SizeLimit,
	}
}

// Search performs an LDAP search.
func (c *client) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}

	fields := searchFields(req)
	start := time.Now()

	var result *ldap.SearchResult
	err := c.withConnection(ctx, func(conn *ldap.Conn) error {
		var searchErr error
		result, searchErr = conn.Search(toLDAPSearchRequest(req, req.SizeLimit, nil))
		if ldap.IsErrorWithCode(searchErr, ldap.LDAPResultSizeLimitExceeded) && result != nil {
			return nil
		}
		return searchErr
	})

	fields["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		LogLDAPError(ctx, SubsystemLDAP, "search", err, fields)
		return nil, WrapError("search", err)
	}

	hasMore := req.SizeLimit > 0 && len(result.Entries) >= req.SizeLimit

	fields["entries_found"] = len(result.Entries)
	fields["has_more"] = hasMore
	tflog.SubsystemDebug(ctx, SubsystemLDAP, "Search completed", fields)

	return &SearchResult{
		Entries: result.Entries,
		Total:   len(result.Entries),
		HasMore: hasMore,
	}, nil
}

// SearchWithPaging performs an LDAP search with RFC 2696 paged results.
// It stops early, returning HasMore, when the page or duration cap is hit.
func (c *client) SearchWithPaging(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}

	logCtx := c.logContext
	fields := searchFields(req)
	tflog.SubsystemDebug(logCtx, SubsystemLDAP, "Starting paged search", fields)

	conn, err := c.pool.Get(ctx)
	if err != nil {
		LogLDAPError(logCtx, SubsystemLDAP, "get_connection", err, fields)
		return nil, WrapError("paged_search", err)
	}
	defer conn.Close()

	var entries []*ldap.Entry
	paging := ldap.NewControlPaging(DefaultPageSize)
	start := time.Now()
	lastProgress := start
	pageNum := 0

	partial := func(reason string) *SearchResult {
		tflog.SubsystemWarn(logCtx, SubsystemLDAP, "Paged search stopped early", map[string]any{
			"reason":          reason,
			"base_dn":         req.BaseDN,
			"filter":          req.Filter,
			"pages_completed": pageNum,
			"entries_found":   len(entries),
		})
		return &SearchResult{Entries: entries, Total: len(entries), HasMore: true}
	}

	for {
		if time.Since(start) > maxPagedSearchTime {
			return partial("duration_limit"), nil
		}
		if pageNum >= maxPagesPerSearch {
			return partial("page_limit"), nil
		}
		if err := ctx.Err(); err != nil {
			return partial("cancelled"), err
		}

		pageNum++
		ldapReq := toLDAPSearchRequest(req, 0, []ldap.Control{paging})

		var result *ldap.SearchResult
		err = c.withRetry(ctx, func() error {
			var searchErr error
			result, searchErr = conn.Conn().Search(ldapReq)
			return searchErr
		})
		if err != nil {
			if isConnectionFailure(err) {
				conn.MarkUnhealthy()
			}
			fields["page_number"] = pageNum
			LogLDAPError(logCtx, SubsystemLDAP, "paged_search", err, fields)
			return nil, WrapError("paged_search", err)
		}

		entries = append(entries, result.Entries...)

		if pageNum%pagedProgressEvery == 0 || time.Since(lastProgress) >= pagedProgressMinTime {
			tflog.SubsystemInfo(logCtx, SubsystemLDAP, "Paged search in progress", map[string]any{
				"base_dn":         req.BaseDN,
				"pages_completed": pageNum,
				"total_entries":   len(entries),
				"elapsed_seconds": int(time.Since(start).Seconds()),
			})
			lastProgress = time.Now()
		}

		resp, ok := ldap.FindControl(result.Controls, ldap.ControlTypePaging).(*ldap.ControlPaging)
		if !ok || len(resp.Cookie) == 0 {
			break
		}
		paging.SetCookie(resp.Cookie)
	}

	tflog.SubsystemDebug(logCtx, SubsystemLDAP, "Paged search completed", map[string]any{
		"base_dn":         req.BaseDN,
		"filter":          req.Filter,
		"total_entries":   len(entries),
		"pages_processed": pageNum,
		"duration_ms":     time.Since(start).Milliseconds(),
	})

	return &SearchResult{Entries: entries, Total: len(entries)}, nil
}

// Add creates a new LDAP entry.
func (c *client) Add(ctx context.Context, req *AddRequest) error {
	if req == nil {
		return fmt.Errorf("add request cannot be nil")
	}
	if req.DN == "" {
		return fmt.Errorf("DN cannot be empty")
	}

	ldapReq := ldap.NewAddRequest(req.DN, nil)
	for _, attr := range sortedKeys(req.Attributes) {
		ldapReq.Attribute(attr, req.Attributes[attr])
	}

	return c.logWrite(ctx, "add", req.DN, func(conn *ldap.Conn) error {
		return conn.Add(ldapReq)
	})
}

// Modify modifies an existing LDAP entry.
func (c *client) Modify(ctx context.Context, req *ModifyRequest) error {
	if req == nil {
		return fmt.Errorf("modify request cannot be nil")
	}
	if req.DN == "" {
		return fmt.Errorf("DN cannot be empty")
	}

	ldapReq := ldap.NewModifyRequest(req.DN, nil)
	for _, attr := range sortedKeys(req.AddAttributes) {
		ldapReq.Add(attr, req.AddAttributes[attr])
	}
	for _, attr := range sortedKeys(req.ReplaceAttributes) {
		ldapReq.Replace(attr, req.ReplaceAttributes[attr])
	}
	for _, attr := range sortedKeys(req.DeleteAttributes) {
		ldapReq.Delete(attr, req.DeleteAttributes[attr])
	}

	return c.logWrite(ctx, "modify", req.DN, func(conn *ldap.Conn) error {
		return conn.Modify(ldapReq)
	})
}

// ModifyDN moves or renames an LDAP entry.
func (c *client) ModifyDN(ctx context.Context, req *ModifyDNRequest) error {
	if req == nil {
		return fmt.Errorf("modify DN request cannot be nil")
	}
	if req.DN == "" {
		return fmt.Errorf("DN cannot be empty")
	}
	if req.NewRDN == "" {
		return fmt.Errorf("new RDN cannot be empty")
	}

	ldapReq := ldap.NewModifyDNRequest(req.DN, req.NewRDN, req.DeleteOldRDN, req.NewSuperior)

	return c.logWrite(ctx, "modify_dn", req.DN, func(conn *ldap.Conn) error {
		return conn.ModifyDN(ldapReq)
	})
}

// Delete removes an LDAP entry.
func (c *client) Delete(ctx context.Context, dn string) error {
	if dn == "" {
		return fmt.Errorf("DN cannot be empty")
	}

	return c.logWrite(ctx, "delete", dn, func(conn *ldap.Conn) error {
		return conn.Del(ldap.NewDelRequest(dn, nil))
	})
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

func (c *client) logWrite(ctx context.Context, operation, dn string, fn func(*ldap.Conn) error) error {
	err := LogOperation(ctx, SubsystemLDAP, operation, map[string]any{"dn": dn}, func() error {
		return c.withConnection(ctx, fn)
	})
	if err != nil {
		ldapErr := NewLDAPError(operation, err)
		if ldapErr.DN == "" {
			ldapErr.DN = dn
		}
		return ldapErr
	}
	return nil
}

// Ping tests connectivity to the LDAP server.
func (c *client) Ping(ctx context.Context) error {
	return c.withConnection(ctx, func(conn *ldap.Conn) error {
		_, err := conn.Search(rootDSERequest("defaultNamingContext"))
		return err
	})
}

// Stats returns pool statistics.
func (c *client) Stats() PoolStats {
	return c.pool.Stats()
}

// BoundServer returns the URL of the server that accepted the most recent bind.
func (c *client) BoundServer() string {
	return c.pool.Stats().BoundURL
}

// withConnection runs fn on a pooled connection, fetching a fresh connection per retry.
func (c *client) withConnection(ctx context.Context, fn func(*ldap.Conn) error) error {
	return c.withRetry(ctx, func() error {
		conn, err := c.pool.Get(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		err = fn(conn.Conn())
		if err != nil && isConnectionFailure(err) {
			conn.MarkUnhealthy()
		}
		return err
	})
}

// withRetry executes an operation with retry logic.
func (c *client) withRetry(ctx context.Context, operation func() error) error {
	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			tflog.SubsystemDebug(ctx, SubsystemLDAP, "Retrying operation", map[string]any{
				"attempt":    attempt,
				"max_retry":  c.config.MaxRetries,
				"backoff_ms": backoff.Milliseconds(),
				"last_error": lastErr.Error(),
			})
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !c.isRetryableError(err) {
			return err
		}

		if attempt == c.config.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff = min(time.Duration(float64(backoff)*c.config.BackoffFactor), c.config.MaxBackoff)
		}
	}

	tflog.SubsystemError(ctx, SubsystemLDAP, "Operation failed after all retries exhausted", map[string]any{
		"total_attempts": c.config.MaxRetries + 1,
		"final_error":    lastErr.Error(),
	})

	return NewConnectionError("operation failed after retries", false, lastErr)
}

// isRetryableError determines if an error should be retried.
func (c *client) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var resultErr *ldap.Error
	if errors.As(err, &resultErr) {
		switch resultErr.ResultCode {
		case ldap.LDAPResultBusy,
			ldap.LDAPResultUnavailable,
			ldap.LDAPResultServerDown,
			ldap.LDAPResultConnectError,
			ldap.ErrorNetwork:
			return true
		default:
			return false
		}
	}

	var retryable RetryableError
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	return isConnectionFailure(err)
}

// isConnectionFailure reports transport-level failures that poison a connection.
func isConnectionFailure(err error) bool {
	if ldap.IsErrorWithCode(err, ldap.ErrorNetwork) || ldap.IsErrorWithCode(err, ldap.LDAPResultServerDown) {
		return true
	}
	return containsAny(strings.ToLower(err.Error()), "connection closed", "broken pipe", "connection reset", "i/o timeout")
}

// WhoAmI performs the LDAP Who Am I? extended operation.
func (c *client) WhoAmI(ctx context.Context) (*WhoAmIResult, error) {
	var result *ldap.WhoAmIResult
	err := c.withConnection(ctx, func(conn *ldap.Conn) error {
		var whoamiErr error
		result, whoamiErr = conn.WhoAmI(nil)
		return whoamiErr
	})
	if err != nil {
		return nil, WrapError("whoami", err)
	}
	if result == nil {
		return nil, fmt.Errorf("WhoAmI operation returned nil result")
	}

	return ParseAuthzID(result.AuthzID), nil
}

// ParseAuthzID classifies an RFC 4532 authorization identity.
func ParseAuthzID(authzID string) *WhoAmIResult {
	result := &WhoAmIResult{AuthzID: authzID}

	id := strings.TrimPrefix(strings.TrimPrefix(authzID, "dn:"), "u:")

	switch {
	case authzID == "":
		result.Format = "empty"
	case strings.HasPrefix(authzID, "dn:") || (dnFormatPattern.MatchString(id) && strings.Contains(id, ",")):
		result.Format = "dn"
		result.DN = id
	case sidFormatPattern.MatchString(id):
		result.Format = "sid"
		result.SID = id
	case strings.Contains(id, `\`):
		result.Format = "sam"
		result.SAMAccountName = id
	case strings.Contains(id, "@"):
		result.Format = "upn"
		result.UserPrincipalName = id
	default:
		result.Format = "unknown"
	}

	return result
}

// GetBaseDN retrieves the default naming context from the root DSE.
func (c *client) GetBaseDN(ctx context.Context) (string, error) {
	var baseDN string
	err := c.withConnection(ctx, func(conn *ldap.Conn) error {
		result, err := conn.Search(rootDSERequest("defaultNamingContext"))
		if err != nil {
			return err
		}
		if len(result.Entries) == 0 {
			return fmt.Errorf("no root DSE found")
		}
		baseDN = result.Entries[0].GetAttributeValue("defaultNamingContext")
		return nil
	})
	if err != nil {
		return "", WrapError("root_dse", err)
	}
	if baseDN == "" {
		return "", fmt.Errorf("no defaultNamingContext found in root DSE")
	}
	return baseDN, nil
}
