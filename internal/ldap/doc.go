/*
Package ldap is the Active Directory connection core used by the adclient package.

# Connection Management

Client wraps a ConnectionPool:

  - explicit ldap:// and ldaps:// URLs are tried in the order given
  - without URLs, domain controllers are discovered through DNS SRV records
  - every pooled connection is bound on creation and re-bound when stale
  - transient failures are retried with exponential backoff

# Authentication

GetAuthMethod picks simple, NTLM, Kerberos (GSSAPI) or external (client
certificate) binds from the ConnectionConfig. Kerberos credentials come from a
credential cache, a keytab or a password, in that order.

# Active Directory Codecs

objectGUID and objectSid values are rendered as text, unicodePwd values are
encoded as quoted UTF-16LE, and msRADIUSFramedIPAddress integers convert to and
from dotted quads. DN helpers escape and normalize values per RFC 4514.

# Identifier Resolution

Resolver accepts a DN, GUID, SID, UPN or sAMAccountName and returns the DN of
the object it names. Results are kept in a DNCache indexed by every identifier
the object answers to.

# Example Usage

	config := ldap.DefaultConfig()
	config.LDAPURLs = []string{"ldaps://dc1.example.com"}
	config.Username = "CN=svc,OU=Service,DC=example,DC=com"
	config.Password = "secret"

	client, err := ldap.NewClientWithContext(ctx, config)
	if err != nil {
		return err
	}
	defer client.Close()

	resolver := ldap.NewResolver(client, "DC=example,DC=com", ldap.NewDNCache(5*time.Minute))
	dn, err := resolver.ResolveDN(ctx, "jdoe")
*/
package ldap
