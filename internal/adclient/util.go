package adclient

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/isometry/terraform-provider-adclient/internal/ldap"
)

// NormalizeURIs accepts a single URI or a list of URIs and returns the list form.
// A lone string becomes a one-element slice. Blank entries are dropped.
func NormalizeURIs(v any) ([]string, error) {
	switch uris := v.(type) {
	case nil:
		return []string{}, nil
	case string:
		if strings.TrimSpace(uris) == "" {
			return []string{}, nil
		}
		return []string{strings.TrimSpace(uris)}, nil
	case []string:
		return compactURIs(uris), nil
	case []any:
		out := make([]string, 0, len(uris))
		for i, item := range uris {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("uris[%d]: expected string, got %T", i, item)
			}
			out = append(out, s)
		}
		return compactURIs(out), nil
	default:
		return nil, fmt.Errorf("uris: expected a string or a list of strings, got %T", v)
	}
}

func compactURIs(uris []string) []string {
	out := make([]string, 0, len(uris))
	for _, u := range uris {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// Int2IP converts the decimal msRADIUSFramedIPAddress value to a dotted quad.
// Both the signed and the unsigned 32-bit ranges are accepted.
func Int2IP(s string) (string, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid integer %q: %w", s, err)
	}
	if n < math.MinInt32 || n > math.MaxUint32 {
		return "", fmt.Errorf("value %d is outside the 32-bit range", n)
	}
	return ldap.Int2IP(n), nil
}
