package ldap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// MaxConnectionPoolLimit caps MaxConnections to stay well below typical AD server limits.
const MaxConnectionPoolLimit = 100

// maxAuthAge forces a re-bind on pooled connections older than this.
const maxAuthAge = 5 * time.Minute

// connectionPool implements ConnectionPool interface.
type connectionPool struct {
	ctx         context.Context // Logging context with LDAP subsystem
	config      *ConnectionConfig
	tlsConfig   *tls.Config
	servers     []*ServerInfo
	connections chan *PooledConnection
	mu          sync.RWMutex
	closed      bool
	discovery   *SRVDiscovery
	connect     func(ctx context.Context, server *ServerInfo) (*PooledConnection, error)

	// Statistics
	activeConns  int64
	totalCreated int64
	totalErrors  int64
	startTime    time.Time
	boundURL     atomic.Value // string

	// Health checking
	healthTicker *time.Ticker
	healthStop   chan struct{}
	healthWg     sync.WaitGroup
}

// NewConnectionPool creates a new connection pool.
func NewConnectionPool(ctx context.Context, config *ConnectionConfig) (ConnectionPool, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tlsConfig, err := config.BuildTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	pool := &connectionPool{
		ctx:         ctx,
		config:      config,
		tlsConfig:   tlsConfig,
		connections: make(chan *PooledConnection, config.MaxConnections),
		discovery:   NewSRVDiscovery(ctx),
		startTime:   time.Now(),
		healthStop:  make(chan struct{}),
	}
	pool.connect = pool.createSingleConnection
	pool.boundURL.Store("")

	if err := pool.discoverServers(ctx); err != nil {
		LogPoolEvent(ctx, "pool_creation_failed", map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("server discovery failed: %w", err)
	}

	if config.HealthCheck > 0 {
		pool.startHealthChecker()
	}

	LogPoolEvent(ctx, "pool_initialized", map[string]any{
		"server_count":    len(pool.servers),
		"max_connections": config.MaxConnections,
	})
	return pool, nil
}

// discoverServers resolves configured URLs in order, or falls back to SRV discovery.
func (p *connectionPool) discoverServers(ctx context.Context) error {
	var servers []*ServerInfo

	switch {
	case len(p.config.LDAPURLs) > 0:
		for _, u := range p.config.LDAPURLs {
			server, err := ParseLDAPURL(u)
			if err != nil {
				return fmt.Errorf("invalid LDAP URL %s: %w", u, err)
			}
			servers = append(servers, server)
		}
	case p.config.Domain != "":
		discoverCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()

		discovered, err := p.discovery.DiscoverServers(discoverCtx, p.config.Domain)
		if err != nil {
			return fmt.Errorf("SRV discovery failed: %w", err)
		}
		servers = discovered
	default:
		return errors.New("either domain or LDAP URLs must be specified")
	}

	if len(servers) == 0 {
		return errors.New("no servers discovered")
	}

	p.mu.Lock()
	p.servers = servers
	p.mu.Unlock()

	tflog.SubsystemDebug(p.ctx, SubsystemPool, "Server list resolved", map[string]any{
		"server_count": len(servers),
		"first_server": ServerInfoToURL(servers[0]),
	})
	return nil
}

// Servers returns the candidate servers in connection order.
func (p *connectionPool) Servers() []*ServerInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*ServerInfo(nil), p.servers...)
}

// Get retrieves a connection from the pool.
func (p *connectionPool) Get(ctx context.Context) (*PooledConnection, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, errors.New("connection pool is closed")
	}

	select {
	case conn := <-p.connections:
		if p.isConnectionHealthy(conn) {
			if p.config.HasAuthentication() && p.needsReAuthentication(conn) {
				if err := p.authenticateConnection(ctx, conn); err != nil {
					p.closeConnection(conn)
					return p.createConnection(ctx)
				}
			}
			conn.lastUsed = time.Now()
			atomic.AddInt64(&p.activeConns, 1)
			LogPoolEvent(ctx, "connection_acquired", map[string]any{"reused": true})
			return conn, nil
		}
		p.closeConnection(conn)
	default:
	}

	return p.createConnection(ctx)
}

// createConnection walks the server list in order, retrying the full list with backoff.
// Every server is tried on each pass. Once a whole pass is rejected for bad credentials
// the remaining passes are skipped, so a wrong password is not retried into a lockout.
func (p *connectionPool) createConnection(ctx context.Context) (*PooledConnection, error) {
	var lastErr error
	backoff := p.config.InitialBackoff
	servers := p.Servers()

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		rejected := 0
		for _, server := range servers {
			conn, err := p.connect(ctx, server)
			if err != nil {
				lastErr = err
				atomic.AddInt64(&p.totalErrors, 1)
				LogPoolEvent(ctx, "connection_failed", map[string]any{
					"server":  ServerInfoToURL(server),
					"attempt": attempt + 1,
					"error":   err.Error(),
				})
				if ResultCode(err) == ldap.LDAPResultInvalidCredentials {
					rejected++
				}
				continue
			}

			atomic.AddInt64(&p.totalCreated, 1)
			atomic.AddInt64(&p.activeConns, 1)
			p.boundURL.Store(ServerInfoToURL(server))
			LogPoolEvent(ctx, "connection_acquired", map[string]any{
				"reused": false,
				"server": ServerInfoToURL(server),
			})
			return conn, nil
		}

		if len(servers) > 0 && rejected == len(servers) {
			LogPoolEvent(ctx, "credentials_rejected", map[string]any{"server_count": len(servers)})
			return nil, lastErr
		}

		if attempt < p.config.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff = min(time.Duration(float64(backoff)*p.config.BackoffFactor), p.config.MaxBackoff)
			}
		}
	}

	LogPoolEvent(ctx, "all_connections_failed", map[string]any{"server_count": len(servers)})
	return nil, NewConnectionError("failed to create connection after retries", true, lastErr)
}

// createSingleConnection creates and authenticates a connection to a specific server.
func (p *connectionPool) createSingleConnection(ctx context.Context, server *ServerInfo) (*PooledConnection, error) {
	conn, err := dialServer(p.config, p.tlsConfig, server)
	if err != nil {
		return nil, err
	}

	pooledConn := &PooledConnection{
		conn:         conn,
		lastUsed:     time.Now(),
		healthy:      true,
		serverInfo:   server,
		returnToPool: p.returnConnection,
	}

	if p.config.HasAuthentication() {
		if err := p.authenticateConnection(ctx, pooledConn); err != nil {
			conn.Close()
			return nil, WrapError("bind", err)
		}
	}

	return pooledConn, nil
}

// dialServer opens a connection to one server, applying LDAPS or StartTLS as configured.
func dialServer(config *ConnectionConfig, tlsConfig *tls.Config, server *ServerInfo) (*ldap.Conn, error) {
	url := ServerInfoToURL(server)
	dialer := &net.Dialer{Timeout: config.Timeout}

	serverTLS := tlsConfig.Clone()
	if serverTLS.ServerName == "" {
		serverTLS.ServerName = server.Host
	}

	var (
		conn *ldap.Conn
		err  error
	)

	if server.UseTLS {
		conn, err = ldap.DialURL(url, ldap.DialWithDialer(dialer), ldap.DialWithTLSConfig(serverTLS))
	} else {
		conn, err = ldap.DialURL(url, ldap.DialWithDialer(dialer))
		if err == nil && config.UseTLS && !config.SkipTLS {
			if tlsErr := conn.StartTLS(serverTLS); tlsErr != nil {
				conn.Close()
				err = fmt.Errorf("StartTLS failed: %w", tlsErr)
			}
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	conn.SetTimeout(config.Timeout)
	return conn, nil
}

// authenticateConnection authenticates a pooled connection using the configured method.
func (p *connectionPool) authenticateConnection(ctx context.Context, pooledConn *PooledConnection) error {
	if pooledConn == nil || pooledConn.conn == nil {
		return fmt.Errorf("connection is nil")
	}

	if err := bindConnection(ctx, pooledConn.conn, p.config, pooledConn.serverInfo); err != nil {
		pooledConn.authenticated = false
		pooledConn.authTime = time.Time{}
		return err
	}

	pooledConn.authenticated = true
	pooledConn.authTime = time.Now()
	return nil
}

// bindConnection performs the bind dictated by the configured authentication method.
func bindConnection(ctx context.Context, conn *ldap.Conn, config *ConnectionConfig, server *ServerInfo) error {
	method := config.GetAuthMethod()

	var err error
	switch method {
	case AuthMethodSimpleBind:
		if config.Username == "" {
			return fmt.Errorf("username is required for simple bind authentication")
		}
		err = conn.Bind(config.Username, config.Password)
	case AuthMethodNTLM:
		err = conn.NTLMBind(config.NTLMDomain, config.Username, config.Password)
	case AuthMethodKerberos:
		err = performKerberosAuth(ctx, conn, config, server)
	case AuthMethodExternal:
		err = conn.ExternalBind()
	default:
		return fmt.Errorf("unsupported authentication method: %s", method.String())
	}

	fields := map[string]any{
		"auth_method": method.String(),
		"username":    config.Username,
	}
	if server != nil {
		fields["server"] = ServerInfoToURL(server)
	}

	if err != nil {
		fields["error"] = err.Error()
		LogConnectionEvent(ctx, "authentication_failed", fields)
		return err
	}

	LogConnectionEvent(ctx, "authentication_success", fields)
	return nil
}

// needsReAuthentication determines if a connection needs to be re-authenticated.
func (p *connectionPool) needsReAuthentication(conn *PooledConnection) bool {
	if conn == nil || !conn.authenticated {
		return true
	}
	return time.Since(conn.authTime) > maxAuthAge
}

// returnConnection returns a connection to the pool.
func (p *connectionPool) returnConnection(conn *PooledConnection) {
	if conn == nil {
		return
	}

	atomic.AddInt64(&p.activeConns, -1)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed || !p.isConnectionHealthy(conn) {
		p.closeConnection(conn)
		return
	}

	select {
	case p.connections <- conn:
		LogPoolEvent(p.ctx, "connection_released", nil)
	default:
		p.closeConnection(conn)
	}
}

// isConnectionHealthy checks if a connection is healthy.
func (p *connectionPool) isConnectionHealthy(conn *PooledConnection) bool {
	if conn == nil || conn.conn == nil || !conn.healthy || conn.conn.IsClosing() {
		return false
	}

	if time.Since(conn.lastUsed) > p.config.MaxIdleTime {
		return false
	}

	if p.config.HasAuthentication() && !conn.authenticated {
		return false
	}

	return true
}

// closeConnection closes a pooled connection.
func (p *connectionPool) closeConnection(conn *PooledConnection) {
	if conn != nil && conn.conn != nil {
		conn.conn.Close()
		conn.healthy = false
		conn.authenticated = false
		conn.authTime = time.Time{}
	}
}

// Close closes all connections and shuts down the pool.
func (p *connectionPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if p.healthTicker != nil {
		close(p.healthStop)
		p.healthWg.Wait()
		p.healthTicker.Stop()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	close(p.connections)
	for conn := range p.connections {
		p.closeConnection(conn)
	}

	return nil
}

// Reset closes every idle connection so the next Get dials and binds afresh.
func (p *connectionPool) Reset() {
	for {
		select {
		case conn, ok := <-p.connections:
			if !ok {
				return
			}
			p.closeConnection(conn)
		default:
			return
		}
	}
}

// Stats returns pool statistics.
func (p *connectionPool) Stats() PoolStats {
	idle := len(p.connections)
	active := atomic.LoadInt64(&p.activeConns)

	return PoolStats{
		Total:    idle + int(active),
		Active:   active,
		Idle:     idle,
		Created:  atomic.LoadInt64(&p.totalCreated),
		Errors:   atomic.LoadInt64(&p.totalErrors),
		Uptime:   time.Since(p.startTime),
		BoundURL: p.boundURL.Load().(string),
	}
}

// HealthCheck tests idle connections and drops the ones that fail.
func (p *connectionPool) HealthCheck(ctx context.Context) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return errors.New("pool is closed")
	}

	p.performHealthCheck(ctx)
	return nil
}

// startHealthChecker starts the periodic health checker.
func (p *connectionPool) startHealthChecker() {
	p.healthTicker = time.NewTicker(p.config.HealthCheck)

	p.healthWg.Go(func() {
		for {
			select {
			case <-p.healthTicker.C:
				ctx, cancel := context.WithTimeout(p.ctx, p.config.Timeout)
				p.performHealthCheck(ctx)
				cancel()
			case <-p.healthStop:
				return
			}
		}
	})
}

// performHealthCheck probes up to three idle connections.
func (p *connectionPool) performHealthCheck(ctx context.Context) {
	var toCheck []*PooledConnection

drain:
	for range 3 {
		select {
		case conn, ok := <-p.connections:
			if !ok {
				return
			}
			toCheck = append(toCheck, conn)
		default:
			break drain
		}
	}

	for _, conn := range toCheck {
		if p.testConnection(ctx, conn) {
			// returnConnection decrements the active count.
			atomic.AddInt64(&p.activeConns, 1)
			p.returnConnection(conn)
			continue
		}
		LogPoolEvent(ctx, "health_check_failed", map[string]any{"server": ServerInfoToURL(conn.serverInfo)})
		p.closeConnection(conn)
	}
}

// testConnection re-binds stale connections and probes the root DSE.
func (p *connectionPool) testConnection(ctx context.Context, conn *PooledConnection) bool {
	if conn == nil || conn.conn == nil {
		return false
	}

	if p.config.HasAuthentication() && p.needsReAuthentication(conn) {
		if err := p.authenticateConnection(ctx, conn); err != nil {
			return false
		}
	}

	if _, err := conn.conn.Search(rootDSERequest("defaultNamingContext")); err != nil {
		conn.authenticated = false
		conn.authTime = time.Time{}
		return false
	}

	conn.lastUsed = time.Now()
	return true
}

// rootDSERequest builds a base-scope search of the root DSE.
func rootDSERequest(attributes ...string) *ldap.SearchRequest {
	return ldap.NewSearchRequest(
		"",
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1, 5, false,
		"(objectClass=*)",
		attributes,
		nil,
	)
}

// validateConfig validates the connection configuration.
func validateConfig(config *ConnectionConfig) error {
	switch {
	case config.MaxConnections <= 0:
		return errors.New("MaxConnections must be positive")
	case config.MaxConnections > MaxConnectionPoolLimit:
		return fmt.Errorf("MaxConnections too high (max %d)", MaxConnectionPoolLimit)
	case config.MaxIdleTime <= 0:
		return errors.New("MaxIdleTime must be positive")
	case config.Timeout <= 0:
		return errors.New("timeout must be positive")
	case config.MaxRetries < 0:
		return errors.New("MaxRetries cannot be negative")
	case config.BackoffFactor <= 1.0:
		return errors.New("BackoffFactor must be greater than 1.0")
	}
	return nil
}

// Close returns the connection to its pool.
func (pc *PooledConnection) Close() {
	if pc.returnToPool != nil {
		pc.returnToPool(pc)
	}
}

func (pc *PooledConnection) Conn() *ldap.Conn {
	return pc.conn
}

func (pc *PooledConnection) ServerInfo() *ServerInfo {
	return pc.serverInfo
}

// MarkUnhealthy prevents the connection from being reused.
func (pc *PooledConnection) MarkUnhealthy() {
	pc.healthy = false
}
