package ldap

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// EscapeDNValue escapes special characters in a DN attribute value according to RFC 4514.
//
//   - "Doe, John" → "Doe\, John"
//   - " John " → "\ John\ "
//   - "#123" → "\#123"
func EscapeDNValue(value string) string {
	if value == "" {
		return value
	}

	var b strings.Builder
	b.Grow(len(value) + 8)

	last := len(value) - 1
	for i, r := range value {
		switch {
		case r == 0:
			b.WriteString(`\00`)
			continue
		case strings.ContainsRune(`,+"\<>;=`, r),
			r == '#' && i == 0,
			r == ' ' && (i == 0 || i == last):
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}

	return b.String()
}

// BuildRDN renders a single attr=value RDN with the value escaped.
func BuildRDN(attrType, value string) string {
	return strings.ToUpper(attrType) + "=" + EscapeDNValue(value)
}

// JoinDN prepends an RDN to a parent DN.
func JoinDN(attrType, value, parentDN string) string {
	if parentDN == "" {
		return BuildRDN(attrType, value)
	}
	return BuildRDN(attrType, value) + "," + parentDN
}

func renderDN(rdns []*ldap.RelativeDN) string {
	parts := make([]string, 0, len(rdns))
	for _, rdn := range rdns {
		attrs := make([]string, 0, len(rdn.Attributes))
		for _, attr := range rdn.Attributes {
			attrs = append(attrs, BuildRDN(attr.Type, attr.Value))
		}
		parts = append(parts, strings.Join(attrs, "+"))
	}
	return strings.Join(parts, ",")
}

// NormalizeDN returns the DN with uppercase attribute types and canonical value escaping,
// the form Active Directory reports back.
func NormalizeDN(dn string) (string, error) {
	dn = strings.TrimSpace(dn)
	if dn == "" {
		return "", nil
	}

	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("invalid DN syntax: %w", err)
	}

	return renderDN(parsed.RDNs), nil
}

// ValidateDNSyntax validates that a string is a properly formatted Distinguished Name.
func ValidateDNSyntax(dn string) error {
	if strings.TrimSpace(dn) == "" {
		return fmt.Errorf("DN cannot be empty")
	}

	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return fmt.Errorf("invalid DN syntax: %w", err)
	}
	if len(parsed.RDNs) == 0 {
		return fmt.Errorf("DN has no components")
	}

	return nil
}

// LooksLikeDN reports whether the identifier parses as a DN with at least one RDN.
func LooksLikeDN(s string) bool {
	if !strings.Contains(s, "=") {
		return false
	}
	return ValidateDNSyntax(s) == nil
}

// ExtractRDNValue extracts the value of the first RDN component with the specified attribute type.
func ExtractRDNValue(dn, attrType string) (string, error) {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("invalid DN syntax: %w", err)
	}

	for _, rdn := range parsed.RDNs {
		for _, attr := range rdn.Attributes {
			if strings.EqualFold(attr.Type, attrType) {
				return attr.Value, nil
			}
		}
	}

	return "", fmt.Errorf("attribute type %q not found in DN %q", attrType, dn)
}

// ParentDN returns the DN with its first RDN removed.
func ParentDN(dn string) (string, error) {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("invalid DN syntax: %w", err)
	}

	if len(parsed.RDNs) <= 1 {
		return "", fmt.Errorf("DN has no parent: %s", dn)
	}

	return renderDN(parsed.RDNs[1:]), nil
}

// IsDNUnder reports whether childDN equals parentDN or sits anywhere beneath it.
// Comparison is case-insensitive on both attribute types and values.
func IsDNUnder(childDN, parentDN string) (bool, error) {
	child, err := NormalizeDN(childDN)
	if err != nil {
		return false, err
	}
	parent, err := NormalizeDN(parentDN)
	if err != nil {
		return false, err
	}
	if parent == "" {
		return true, nil
	}

	child, parent = strings.ToLower(child), strings.ToLower(parent)
	return child == parent || strings.HasSuffix(child, ","+parent), nil
}

// DomainFromDN converts the DC components of a DN to a dotted DNS domain.
// DC=corp,DC=example,DC=com becomes corp.example.com.
func DomainFromDN(dn string) string {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return ""
	}

	var labels []string
	for _, rdn := range parsed.RDNs {
		for _, attr := range rdn.Attributes {
			if strings.EqualFold(attr.Type, "DC") {
				labels = append(labels, attr.Value)
			}
		}
	}

	return strings.ToLower(strings.Join(labels, "."))
}

// OUChain lists every DN from the top-most OU down to dn itself.
// The leaf of dn must be an OU. Components belonging to baseDN, and any non-OU
// components above the leaf, are excluded.
func OUChain(dn, baseDN string) ([]string, error) {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return nil, fmt.Errorf("invalid DN syntax: %w", err)
	}
	if len(parsed.RDNs) == 0 || !isOURDN(parsed.RDNs[0]) {
		return nil, fmt.Errorf("DN %q is not an organizational unit", dn)
	}

	var chain []string
	for i := len(parsed.RDNs) - 1; i >= 0; i-- {
		if !isOURDN(parsed.RDNs[i]) {
			continue
		}

		current := renderDN(parsed.RDNs[i:])
		if baseDN != "" {
			under, err := IsDNUnder(current, baseDN)
			if err != nil {
				return nil, err
			}
			if !under {
				continue
			}
			if same, _ := IsDNUnder(baseDN, current); same {
				continue
			}
		}
		chain = append(chain, current)
	}

	if len(chain) == 0 {
		return nil, fmt.Errorf("DN %q contains no organizational units", dn)
	}

	return chain, nil
}

func isOURDN(rdn *ldap.RelativeDN) bool {
	return len(rdn.Attributes) == 1 && strings.EqualFold(rdn.Attributes[0].Type, "OU")
}
