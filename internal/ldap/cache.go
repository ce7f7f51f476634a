package ldap

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// CacheEntry is a resolved directory object indexed under every identifier it answers to.
type CacheEntry struct {
	DN             string
	ObjectGUID     string
	ObjectSID      string
	SAMAccountName string
	UPN            string
	ObjectClass    []string
	LastUpdated    time.Time
}

// CacheStats provides statistics about cache usage.
type CacheStats struct {
	Hits        int64
	Misses      int64
	Entries     int
	WarmingRuns int64
	LastWarmed  time.Time
}

// HitRate returns hits as a fraction of lookups.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// DNCache maps identifiers (DN, GUID, SID, UPN, sAMAccountName) to directory entries.
// Entries older than the TTL are treated as misses. A zero TTL disables expiry.
type DNCache struct {
	mu      sync.RWMutex
	byDN    map[string]*CacheEntry
	index   map[string]string // prefixed lowercase identifier -> lowercase DN
	ttl     time.Duration
	stats   CacheStats
	nowFunc func() time.Time
}

// NewDNCache creates an empty cache.
func NewDNCache(ttl time.Duration) *DNCache {
	return &DNCache{
		byDN:    make(map[string]*CacheEntry),
		index:   make(map[string]string),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

func cacheKeys(e *CacheEntry) []string {
	keys := []string{"dn:" + strings.ToLower(e.DN)}
	if e.ObjectGUID != "" {
		keys = append(keys, "guid:"+strings.ToLower(e.ObjectGUID))
	}
	if e.ObjectSID != "" {
		keys = append(keys, "sid:"+strings.ToUpper(e.ObjectSID))
	}
	if e.SAMAccountName != "" {
		keys = append(keys, "sam:"+strings.ToLower(e.SAMAccountName))
	}
	if e.UPN != "" {
		keys = append(keys, "upn:"+strings.ToLower(e.UPN))
	}
	return keys
}

// lookupKey maps an identifier of a known type to its index key.
func lookupKey(idType IdentifierType, identifier string) string {
	switch idType {
	case IdentifierTypeDN:
		if dn, err := NormalizeDN(identifier); err == nil {
			identifier = dn
		}
		return "dn:" + strings.ToLower(identifier)
	case IdentifierTypeGUID:
		if id, err := ParseGUID(identifier); err == nil {
			identifier = id.String()
		}
		return "guid:" + strings.ToLower(identifier)
	case IdentifierTypeSID:
		return "sid:" + strings.ToUpper(identifier)
	case IdentifierTypeUPN:
		return "upn:" + strings.ToLower(identifier)
	default:
		return "sam:" + strings.ToLower(samUsername(identifier))
	}
}

// Put stores an entry, replacing any previous entry for the same DN.
func (c *DNCache) Put(entry *CacheEntry) error {
	if entry == nil || entry.DN == "" {
		return fmt.Errorf("cache entry must have a DN")
	}

	normalized, err := NormalizeDN(entry.DN)
	if err != nil {
		return err
	}
	stored := *entry
	stored.DN = normalized
	stored.LastUpdated = c.nowFunc()

	c.mu.Lock()
	defer c.mu.Unlock()

	dnKey := strings.ToLower(normalized)
	if old, ok := c.byDN[dnKey]; ok {
		c.unindexLocked(old)
	}
	c.byDN[dnKey] = &stored
	for _, key := range cacheKeys(&stored) {
		c.index[key] = dnKey
	}
	c.stats.Entries = len(c.byDN)
	return nil
}

// Get looks up an identifier of the given type.
func (c *DNCache) Get(idType IdentifierType, identifier string) (*CacheEntry, bool) {
	key := lookupKey(idType, strings.TrimSpace(identifier))

	c.mu.Lock()
	defer c.mu.Unlock()

	dnKey, ok := c.index[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	entry, ok := c.byDN[dnKey]
	if !ok {
		delete(c.index, key)
		c.stats.Misses++
		return nil, false
	}
	if c.ttl > 0 && c.nowFunc().Sub(entry.LastUpdated) > c.ttl {
		c.unindexLocked(entry)
		delete(c.byDN, dnKey)
		c.stats.Entries = len(c.byDN)
		c.stats.Misses++
		return nil, false
	}

	c.stats.Hits++
	copied := *entry
	return &copied, true
}

// InvalidateDN drops the entry for dn and every entry beneath it.
func (c *DNCache) InvalidateDN(dn string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for dnKey, entry := range c.byDN {
		under, err := IsDNUnder(entry.DN, dn)
		if err != nil || !under {
			continue
		}
		c.unindexLocked(entry)
		delete(c.byDN, dnKey)
	}
	c.stats.Entries = len(c.byDN)
}

func (c *DNCache) unindexLocked(entry *CacheEntry) {
	for _, key := range cacheKeys(entry) {
		delete(c.index, key)
	}
}

// Clear removes every entry.
func (c *DNCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byDN = make(map[string]*CacheEntry)
	c.index = make(map[string]string)
	c.stats.Entries = 0
}

// Stats returns a snapshot of the cache counters.
func (c *DNCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// cacheAttributes are fetched whenever an entry is resolved so every index can be filled.
var cacheAttributes = []string{"distinguishedName", "objectGUID", "objectSid", "sAMAccountName", "userPrincipalName", "objectClass"}

// CacheEntryFromLDAP converts a search entry to a cache entry.
func CacheEntryFromLDAP(entry *ldap.Entry) *CacheEntry {
	dn := entry.DN
	if dn == "" {
		dn = entry.GetAttributeValue("distinguishedName")
	}
	return &CacheEntry{
		DN:             dn,
		ObjectGUID:     EntryGUID(entry),
		ObjectSID:      EntrySID(entry),
		SAMAccountName: entry.GetAttributeValue("sAMAccountName"),
		UPN:            entry.GetAttributeValue("userPrincipalName"),
		ObjectClass:    entry.GetAttributeValues("objectClass"),
	}
}

// Warm loads every user, group and computer under baseDN with a paged search.
func (c *DNCache) Warm(ctx context.Context, client Client, baseDN string) (int, error) {
	if client == nil {
		return 0, fmt.Errorf("LDAP client cannot be nil")
	}

	start := time.Now()
	result, err := client.SearchWithPaging(ctx, &SearchRequest{
		BaseDN:     baseDN,
		Scope:      ScopeWholeSubtree,
		Filter:     "(|(objectClass=user)(objectClass=group)(objectClass=computer))",
		Attributes: cacheAttributes,
	})
	if err != nil {
		return 0, WrapError("cache_warm_search", err)
	}

	loaded := 0
	for _, entry := range result.Entries {
		if err := c.Put(CacheEntryFromLDAP(entry)); err != nil {
			tflog.SubsystemWarn(ctx, SubsystemLDAP, "Skipping cache entry", map[string]any{
				"dn":    entry.DN,
				"error": err.Error(),
			})
			continue
		}
		loaded++
	}

	c.mu.Lock()
	c.stats.WarmingRuns++
	c.stats.LastWarmed = c.nowFunc()
	c.mu.Unlock()

	tflog.SubsystemInfo(ctx, SubsystemLDAP, "Cache warming completed", map[string]any{
		"base_dn":     baseDN,
		"entries":     loaded,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return loaded, nil
}
