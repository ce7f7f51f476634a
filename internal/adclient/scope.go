package adclient

import (
	"fmt"
	"strings"

	"github.com/isometry/terraform-provider-adclient/internal/ldap"
)

// Scope is the search depth, numbered as in AD_SCOPE_BASE, AD_SCOPE_ONELEVEL and AD_SCOPE_SUBTREE.
type Scope int

const (
	ScopeBase     Scope = 0
	ScopeOneLevel Scope = 1
	ScopeSubtree  Scope = 2
)

func (s Scope) String() string {
	switch s {
	case ScopeBase:
		return "base"
	case ScopeOneLevel:
		return "onelevel"
	case ScopeSubtree:
		return "subtree"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// ParseScope accepts a scope name or its number.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "base", "0":
		return ScopeBase, nil
	case "onelevel", "one", "1":
		return ScopeOneLevel, nil
	case "subtree", "sub", "2":
		return ScopeSubtree, nil
	default:
		return 0, fmt.Errorf("invalid scope %q: expected base, onelevel or subtree", s)
	}
}

func (s Scope) ldap() (ldap.SearchScope, error) {
	switch s {
	case ScopeBase:
		return ldap.ScopeBaseObject, nil
	case ScopeOneLevel:
		return ldap.ScopeSingleLevel, nil
	case ScopeSubtree:
		return ldap.ScopeWholeSubtree, nil
	default:
		return 0, fmt.Errorf("invalid scope %d", int(s))
	}
}
