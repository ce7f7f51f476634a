package ldap

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// IdentifierType represents the type of identifier detected.
type IdentifierType int

const (
	IdentifierTypeUnknown IdentifierType = iota
	IdentifierTypeDN                     // Distinguished Name
	IdentifierTypeGUID                   // objectGUID
	IdentifierTypeSID                    // objectSid
	IdentifierTypeUPN                    // userPrincipalName
	IdentifierTypeSAM                    // sAMAccountName, optionally DOMAIN\name
)

// String returns the string representation of the identifier type.
func (i IdentifierType) String() string {
	switch i {
	case IdentifierTypeDN:
		return "DN"
	case IdentifierTypeGUID:
		return "GUID"
	case IdentifierTypeSID:
		return "SID"
	case IdentifierTypeUPN:
		return "UPN"
	case IdentifierTypeSAM:
		return "SAM"
	default:
		return "Unknown"
	}
}

var (
	upnRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	samRegex = regexp.MustCompile(`^([^\\@]+\\)?[^\\@"/\[\]:;|=,+*?<>]+$`)
)

// DetectIdentifierType classifies an identifier. Order matters: DN, GUID, SID, UPN, then SAM.
func DetectIdentifierType(identifier string) IdentifierType {
	identifier = strings.TrimSpace(identifier)
	switch {
	case identifier == "":
		return IdentifierTypeUnknown
	case LooksLikeDN(identifier):
		return IdentifierTypeDN
	case IsGUID(identifier):
		return IdentifierTypeGUID
	case IsSID(identifier):
		return IdentifierTypeSID
	case upnRegex.MatchString(identifier):
		return IdentifierTypeUPN
	case samRegex.MatchString(identifier):
		return IdentifierTypeSAM
	default:
		return IdentifierTypeUnknown
	}
}

// samUsername strips a DOMAIN\ prefix.
func samUsername(sam string) string {
	if _, user, ok := strings.Cut(sam, `\`); ok {
		return user
	}
	return sam
}

// identifierFilter builds the equality filter that locates an identifier.
func identifierFilter(idType IdentifierType, identifier string) (string, error) {
	switch idType {
	case IdentifierTypeGUID:
		return GUIDSearchFilter(identifier)
	case IdentifierTypeSID:
		return SIDSearchFilter(identifier)
	case IdentifierTypeUPN:
		return "(userPrincipalName=" + ldap.EscapeFilter(identifier) + ")", nil
	case IdentifierTypeSAM:
		return "(sAMAccountName=" + ldap.EscapeFilter(samUsername(identifier)) + ")", nil
	default:
		return "", fmt.Errorf("unable to determine identifier type for: %s", identifier)
	}
}

// Resolver turns any supported identifier into the DN of the object it names.
type Resolver struct {
	client Client
	baseDN string
	cache  *DNCache
}

// NewResolver creates a resolver. cache may be nil.
func NewResolver(client Client, baseDN string, cache *DNCache) *Resolver {
	return &Resolver{client: client, baseDN: baseDN, cache: cache}
}

// Resolve returns the cached or freshly looked-up entry for identifier.
// DNs are verified with a base search. A missing object yields a NoSuchObject LDAPError.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (*CacheEntry, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("identifier cannot be empty")
	}

	idType := DetectIdentifierType(identifier)
	if idType == IdentifierTypeUnknown {
		return nil, fmt.Errorf("unable to determine identifier type for: %s", identifier)
	}

	if r.cache != nil {
		if entry, ok := r.cache.Get(idType, identifier); ok {
			return entry, nil
		}
	}

	req := &SearchRequest{
		BaseDN:     r.baseDN,
		Scope:      ScopeWholeSubtree,
		Attributes: cacheAttributes,
		SizeLimit:  2,
	}
	if idType == IdentifierTypeDN {
		req.BaseDN = identifier
		req.Scope = ScopeBaseObject
		req.Filter = "(objectClass=*)"
	} else {
		filter, err := identifierFilter(idType, identifier)
		if err != nil {
			return nil, err
		}
		req.Filter = filter
	}

	result, err := r.client.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s %q: %w", idType, identifier, err)
	}
	if len(result.Entries) == 0 {
		return nil, notFoundError("resolve", identifier)
	}
	if len(result.Entries) > 1 {
		return nil, &LDAPError{
			Operation: "resolve",
			Category:  ErrorCategoryConflict,
			Message:   fmt.Sprintf("%s %q matches more than one object", idType, identifier),
		}
	}

	entry := CacheEntryFromLDAP(result.Entries[0])
	if entry.DN == "" {
		entry.DN = identifier
	}
	if normalized, err := NormalizeDN(entry.DN); err == nil {
		entry.DN = normalized
	}

	if r.cache != nil {
		_ = r.cache.Put(entry)
	}

	return entry, nil
}

// ResolveDN is Resolve reduced to the DN.
func (r *Resolver) ResolveDN(ctx context.Context, identifier string) (string, error) {
	entry, err := r.Resolve(ctx, identifier)
	if err != nil {
		return "", err
	}
	return entry.DN, nil
}

// ResolveDNs resolves each identifier in order.
func (r *Resolver) ResolveDNs(ctx context.Context, identifiers []string) ([]string, error) {
	dns := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		dn, err := r.ResolveDN(ctx, id)
		if err != nil {
			return nil, err
		}
		dns = append(dns, dn)
	}
	return dns, nil
}

// notFoundError builds the NoSuchObject error returned when a lookup finds nothing.
func notFoundError(operation, identifier string) *LDAPError {
	return &LDAPError{
		Operation: operation,
		Category:  ErrorCategoryNotFound,
		LDAPCode:  ldap.LDAPResultNoSuchObject,
		Message:   "object not found: " + identifier,
	}
}

// NewNotFoundError reports that identifier names no object.
func NewNotFoundError(operation, identifier string) error {
	return notFoundError(operation, identifier)
}
