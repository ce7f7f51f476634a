package ldap

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
	krb5config "github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/credentials"
	"github.com/jcmturner/gokrb5/v8/keytab"
)

const defaultKrb5ConfPath = "/etc/krb5.conf"

// kerberosPrincipal is the resolved username and realm used for ticket requests.
type kerberosPrincipal struct {
	Username string
	Realm    string
}

// performKerberosAuth performs a GSSAPI bind on an LDAP connection.
func performKerberosAuth(ctx context.Context, conn *ldap.Conn, cfg *ConnectionConfig, serverInfo *ServerInfo) error {
	gssapiClient, err := createGSSAPIClient(ctx, cfg)
	if err != nil {
		LogKerberosEvent(ctx, "client_creation_failed", map[string]any{"error": err.Error()})
		return fmt.Errorf("failed to create GSSAPI client: %w", err)
	}
	defer func() {
		_ = gssapiClient.DeleteSecContext()
	}()

	spn, err := buildServicePrincipal(cfg, serverInfo)
	if err != nil {
		return fmt.Errorf("failed to build service principal: %w", err)
	}

	if err := conn.GSSAPIBind(gssapiClient, spn, ""); err != nil {
		LogKerberosEvent(ctx, "bind_failed", map[string]any{"spn": spn, "error": err.Error()})
		return fmt.Errorf("GSSAPI bind failed: %w", err)
	}

	LogKerberosEvent(ctx, "bind_success", map[string]any{"spn": spn})
	return nil
}

// resolveKerberosPrincipal splits user@REALM usernames and validates the result.
func resolveKerberosPrincipal(cfg *ConnectionConfig) (kerberosPrincipal, error) {
	p := kerberosPrincipal{Username: cfg.Username, Realm: cfg.KerberosRealm}

	if user, realm, ok := strings.Cut(cfg.Username, "@"); ok {
		p.Username = user
		if p.Realm == "" {
			p.Realm = realm
		}
	}

	if p.Realm == "" && cfg.Domain != "" {
		p.Realm = cfg.Domain
	}
	p.Realm = strings.ToUpper(p.Realm)

	if p.Realm == "" {
		return p, fmt.Errorf("kerberos realm is required (set kerberos_realm or include realm in username)")
	}

	return p, nil
}

// loadKrb5Config reads krb5.conf, or synthesizes a DNS-discovery config when
// no file is configured and the default path is absent.
func loadKrb5Config(ctx context.Context, cfg *ConnectionConfig, realm string) (*krb5config.Config, error) {
	path := cfg.KerberosConfig
	if path == "" {
		if !fileExists(defaultKrb5ConfPath) {
			LogKerberosEvent(ctx, "credential_source", map[string]any{"krb5_conf": "generated", "realm": realm})
			return krb5config.NewFromString(runtimeKrb5Conf(realm, cfg.Domain))
		}
		path = defaultKrb5ConfPath
	}

	if !fileExists(path) {
		return nil, fmt.Errorf("kerberos configuration file not found at %s", path)
	}

	conf, err := krb5config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load kerberos configuration %s: %w", path, err)
	}
	return conf, nil
}

// createGSSAPIClient creates a GSSAPI client based on the configuration.
// Priority order: credential cache, keytab, password.
func createGSSAPIClient(ctx context.Context, cfg *ConnectionConfig) (*gssapi.Client, error) {
	principal, err := resolveKerberosPrincipal(cfg)
	if err != nil {
		return nil, err
	}

	krbConf, err := loadKrb5Config(ctx, cfg, principal.Realm)
	if err != nil {
		return nil, err
	}

	settings := krb5client.DisablePAFXFAST(true)

	if ccachePath := firstExisting(cfg.KerberosCCache, defaultCCachePath()); ccachePath != "" {
		ccache, err := credentials.LoadCCache(ccachePath)
		if err == nil {
			cl, err := krb5client.NewFromCCache(ccache, krbConf, settings)
			if err == nil {
				LogKerberosEvent(ctx, "client_created", map[string]any{"source": "ccache", "path": ccachePath})
				return &gssapi.Client{Client: cl}, nil
			}
		}
		LogKerberosEvent(ctx, "credential_source", map[string]any{"skipped": "ccache", "path": ccachePath})
	}

	if principal.Username == "" {
		return nil, fmt.Errorf("username (principal) is required for keytab or password Kerberos authentication")
	}

	if keytabPath := firstExisting(cfg.KerberosKeytab, defaultKeytabPath()); keytabPath != "" {
		kt, err := keytab.Load(keytabPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load keytab %s: %w", keytabPath, err)
		}
		LogKerberosEvent(ctx, "client_created", map[string]any{"source": "keytab", "path": keytabPath})
		return &gssapi.Client{Client: krb5client.NewWithKeytab(principal.Username, principal.Realm, kt, krbConf, settings)}, nil
	}

	if cfg.Password != "" {
		LogKerberosEvent(ctx, "client_created", map[string]any{"source": "password"})
		return &gssapi.Client{Client: krb5client.NewWithPassword(principal.Username, principal.Realm, cfg.Password, krbConf, settings)}, nil
	}

	return nil, fmt.Errorf("no suitable Kerberos credentials found: provide kerberos_ccache, kerberos_keytab or a password")
}

// buildServicePrincipal constructs the LDAP service principal name from server info.
// An explicit KerberosSPN overrides the derived ldap/<host> form.
func buildServicePrincipal(cfg *ConnectionConfig, serverInfo *ServerInfo) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("configuration is required for service principal")
	}

	if cfg.KerberosSPN != "" {
		return cfg.KerberosSPN, nil
	}

	if serverInfo == nil || serverInfo.Host == "" {
		return "", fmt.Errorf("hostname is required for service principal")
	}

	return "ldap/" + serverInfo.Host, nil
}

// runtimeKrb5Conf renders a minimal krb5.conf that relies on DNS SRV lookups for KDCs.
func runtimeKrb5Conf(realm, domain string) string {
	if domain == "" {
		domain = realm
	}
	domain = strings.ToLower(domain)

	return fmt.Sprintf(`[libdefaults]
    default_realm = %[1]s
    dns_lookup_kdc = true
    dns_lookup_realm = false
    rdns = false

[realms]
    %[1]s = {
        default_domain = %[2]s
    }

[domain_realm]
    .%[2]s = %[1]s
    %[2]s = %[1]s
`, realm, domain)
}

// defaultCCachePath returns the default credential cache location.
func defaultCCachePath() string {
	if ccache := os.Getenv("KRB5CCNAME"); ccache != "" {
		return strings.TrimPrefix(ccache, "FILE:")
	}
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

// defaultKeytabPath returns the default keytab location.
func defaultKeytabPath() string {
	if kt := os.Getenv("KRB5_KTNAME"); kt != "" {
		return strings.TrimPrefix(kt, "FILE:")
	}
	return "/etc/krb5.keytab"
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if fileExists(p) {
			return p
		}
	}
	return ""
}

// fileExists checks if a file exists and is readable.
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
