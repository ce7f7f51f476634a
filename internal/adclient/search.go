package adclient

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	goldap "github.com/go-ldap/ldap/v3"

	"github.com/isometry/terraform-provider-adclient/internal/ldap"
)

const (
	userFilter  = "(&(objectCategory=person)(objectClass=user))"
	groupFilter = "(objectClass=group)"
	ouFilter    = "(objectClass=organizationalUnit)"
	anyFilter   = "(objectClass=*)"
)

// UserControls summarises the account state flags of a user.
type UserControls struct {
	Disabled           bool
	Locked             bool
	DontExpirePassword bool
	MustChangePassword bool
	Expired            bool
}

// Map returns the controls keyed the way the binding layer exposes them.
func (c UserControls) Map() map[string]bool {
	return map[string]bool{
		"disabled":           c.Disabled,
		"locked":             c.Locked,
		"dontExpirePassword": c.DontExpirePassword,
		"mustChangePassword": c.MustChangePassword,
		"expired":            c.Expired,
	}
}

// SearchDN returns the DNs of every object under the search base matching filter.
func (a *ADClient) SearchDN(ctx context.Context, filter string) ([]string, error) {
	var dns []string
	err := a.run(ctx, "search_dn", KindSearch, map[string]any{"filter": filter}, func(s *session) error {
		result, err := s.client.SearchWithPaging(ctx, &ldap.SearchRequest{
			BaseDN:     s.searchBase,
			Scope:      ldap.ScopeWholeSubtree,
			Filter:     orAny(filter),
			Attributes: []string{"distinguishedName"},
		})
		if err != nil {
			return err
		}
		dns = entryDNs(result.Entries)
		return nil
	})
	return dns, err
}

// Search runs a general search rooted at ou (the search base when empty).
// The result maps each DN to its attributes. Binary GUID and SID values are rendered as text.
func (a *ADClient) Search(ctx context.Context, ou string, scope Scope, filter string, attributes []string) (map[string]map[string][]string, error) {
	const op = "search"

	ldapScope, err := scope.ldap()
	if err != nil {
		return nil, a.record(ctx, op, KindSearch, invalidArgument(op, "%v", err))
	}

	entries := make(map[string]map[string][]string)
	err = a.run(ctx, op, KindSearch, map[string]any{"ou": ou, "scope": scope.String(), "filter": filter}, func(s *session) error {
		base := ou
		if base == "" {
			base = s.searchBase
		}
		result, err := s.client.SearchWithPaging(ctx, &ldap.SearchRequest{
			BaseDN:     base,
			Scope:      ldapScope,
			Filter:     orAny(filter),
			Attributes: attributes,
		})
		if err != nil {
			return err
		}
		for _, entry := range result.Entries {
			entries[entry.DN] = entryAttributes(entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// GetAllOUs returns the DNs of every organizational unit under the search base.
func (a *ADClient) GetAllOUs(ctx context.Context) ([]string, error) {
	var dns []string
	err := a.run(ctx, "get_all_ous", KindSearch, nil, func(s *session) error {
		var err error
		dns, err = s.searchDNs(ctx, s.searchBase, ldap.ScopeWholeSubtree, ouFilter)
		return err
	})
	return dns, err
}

// GetOUsInOU returns the DNs of the organizational units directly below ou.
func (a *ADClient) GetOUsInOU(ctx context.Context, ou string) ([]string, error) {
	const op = "get_ous_in_ou"

	var dns []string
	err := a.run(ctx, op, KindSearch, map[string]any{"ou": ou}, func(s *session) error {
		base, err := s.resolve(ctx, op, ou)
		if err != nil {
			return err
		}
		dns, err = s.searchDNs(ctx, base, ldap.ScopeSingleLevel, ouFilter)
		return err
	})
	return dns, err
}

// GetUsers returns the short names of every user under the search base.
func (a *ADClient) GetUsers(ctx context.Context) ([]string, error) {
	return a.listNames(ctx, "get_users", "", ldap.ScopeWholeSubtree, userFilter)
}

// GetGroups returns the short names of every group under the search base.
func (a *ADClient) GetGroups(ctx context.Context) ([]string, error) {
	return a.listNames(ctx, "get_groups", "", ldap.ScopeWholeSubtree, groupFilter)
}

// GetUsersInOU returns the short names of the users directly below ou.
func (a *ADClient) GetUsersInOU(ctx context.Context, ou string) ([]string, error) {
	return a.listNames(ctx, "get_users_in_ou", ou, ldap.ScopeSingleLevel, userFilter)
}

// GetUsersInOUSubTree returns the short names of the users anywhere below ou.
func (a *ADClient) GetUsersInOUSubTree(ctx context.Context, ou string) ([]string, error) {
	return a.listNames(ctx, "get_users_in_ou_subtree", ou, ldap.ScopeWholeSubtree, userFilter)
}

// GetDialinUsers returns the short names of users allowed to dial in.
func (a *ADClient) GetDialinUsers(ctx context.Context) ([]string, error) {
	return a.listNames(ctx, "get_dialin_users", "", ldap.ScopeWholeSubtree, "(&"+userFilter+"(msNPAllowDialin=TRUE))")
}

// GetDisabledUsers returns the short names of users with ACCOUNTDISABLE set.
func (a *ADClient) GetDisabledUsers(ctx context.Context) ([]string, error) {
	return a.listNames(ctx, "get_disabled_users", "", ldap.ScopeWholeSubtree, "(&"+userFilter+ldap.UACFlagFilter(ldap.UACAccountDisable)+")")
}

// GetUserGroups returns the short names of the groups user is a direct member of.
func (a *ADClient) GetUserGroups(ctx context.Context, user string) ([]string, error) {
	const op = "get_user_groups"

	var names []string
	err := a.run(ctx, op, KindSearch, map[string]any{"user": user}, func(s *session) error {
		dn, err := s.resolve(ctx, op, user)
		if err != nil {
			return err
		}
		filter := "(&" + groupFilter + "(member=" + goldap.EscapeFilter(dn) + "))"
		names, err = s.searchNames(ctx, s.searchBase, ldap.ScopeWholeSubtree, filter)
		return err
	})
	return names, err
}

// GetUsersInGroup returns the short names of the direct members of group.
// Computers and nested groups are listed alongside users. Members that no longer
// exist, or that carry no sAMAccountName, are skipped.
func (a *ADClient) GetUsersInGroup(ctx context.Context, group string) ([]string, error) {
	const op = "get_users_in_group"

	var names []string
	err := a.run(ctx, op, KindSearch, map[string]any{"group": group}, func(s *session) error {
		dn, err := s.resolve(ctx, op, group)
		if err != nil {
			return err
		}
		members, err := s.groupMembers(ctx, op, dn)
		if err != nil {
			return err
		}

		names = make([]string, 0, len(members))
		for _, member := range members {
			entry, err := s.resolver.Resolve(ctx, member)
			switch {
			case ldap.ResultCode(err) == goldap.LDAPResultNoSuchObject:
				continue
			case err != nil:
				return err
			case entry.SAMAccountName != "":
				names = append(names, entry.SAMAccountName)
			}
		}
		slices.Sort(names)
		return nil
	})
	return names, err
}

// GetObjectDN resolves a short name, UPN, GUID, SID or DN to the object's DN.
func (a *ADClient) GetObjectDN(ctx context.Context, name string) (string, error) {
	const op = "get_object_dn"

	var dn string
	err := a.run(ctx, op, KindSearch, map[string]any{"name": name}, func(s *session) error {
		var err error
		dn, err = s.resolve(ctx, op, name)
		return err
	})
	return dn, err
}

// IfDNExists reports whether dn exists and is of objectClass ("*" matches anything).
func (a *ADClient) IfDNExists(ctx context.Context, dn, objectClass string) (bool, error) {
	if objectClass == "" {
		objectClass = "*"
	}
	filter := anyFilter
	if objectClass != "*" {
		filter = "(objectClass=" + goldap.EscapeFilter(objectClass) + ")"
	}

	var exists bool
	err := a.run(ctx, "if_dn_exists", KindSearch, map[string]any{"dn": dn, "object_class": objectClass}, func(s *session) error {
		result, err := s.client.Search(ctx, &ldap.SearchRequest{
			BaseDN:     dn,
			Scope:      ldap.ScopeBaseObject,
			Filter:     filter,
			Attributes: []string{"distinguishedName"},
		})
		if ldap.ResultCode(err) == goldap.LDAPResultNoSuchObject {
			return nil
		}
		if err != nil {
			return err
		}
		exists = len(result.Entries) > 0
		return nil
	})
	return exists, err
}

// GetObjectAttribute returns the values of one attribute of object.
// An absent attribute is a search error with code NoSuchAttribute.
func (a *ADClient) GetObjectAttribute(ctx context.Context, object, attribute string) ([]string, error) {
	const op = "get_object_attribute"

	var values []string
	err := a.run(ctx, op, KindSearch, map[string]any{"object": object, "attribute": attribute}, func(s *session) error {
		entry, err := s.readEntry(ctx, op, object, []string{attribute})
		if err != nil {
			return err
		}
		for name, vals := range entryAttributes(entry) {
			if strings.EqualFold(name, attribute) {
				values = vals
			}
		}
		if len(values) == 0 {
			return noSuchAttribute(object, attribute)
		}
		return nil
	})
	return values, err
}

// GetObjectAttributes returns every attribute of object.
func (a *ADClient) GetObjectAttributes(ctx context.Context, object string) (map[string][]string, error) {
	const op = "get_object_attributes"

	var attrs map[string][]string
	err := a.run(ctx, op, KindSearch, map[string]any{"object": object}, func(s *session) error {
		entry, err := s.readEntry(ctx, op, object, nil)
		if err != nil {
			return err
		}
		attrs = entryAttributes(entry)
		return nil
	})
	return attrs, err
}

// GetUserDisplayName returns the user's displayName, "" when unset.
func (a *ADClient) GetUserDisplayName(ctx context.Context, user string) (string, error) {
	const op = "get_user_display_name"

	var name string
	err := a.run(ctx, op, KindSearch, map[string]any{"user": user}, func(s *session) error {
		entry, err := s.readEntry(ctx, op, user, []string{"displayName"})
		if err != nil {
			return err
		}
		name = entry.GetAttributeValue("displayName")
		return nil
	})
	return name, err
}

// GetUserIPAddress returns msRADIUSFramedIPAddress as a dotted quad, "" when unset.
func (a *ADClient) GetUserIPAddress(ctx context.Context, user string) (string, error) {
	const op = "get_user_ip_address"

	var ip string
	err := a.run(ctx, op, KindSearch, map[string]any{"user": user}, func(s *session) error {
		entry, err := s.readEntry(ctx, op, user, []string{"msRADIUSFramedIPAddress"})
		if err != nil {
			return err
		}
		raw := entry.GetAttributeValue("msRADIUSFramedIPAddress")
		if raw == "" {
			return nil
		}
		ip, err = Int2IP(raw)
		return err
	})
	return ip, err
}

// GetUserControls derives the account state of user.
func (a *ADClient) GetUserControls(ctx context.Context, user string) (UserControls, error) {
	const op = "get_user_controls"

	var controls UserControls
	err := a.run(ctx, op, KindSearch, map[string]any{"user": user}, func(s *session) error {
		entry, err := s.readEntry(ctx, op, user, []string{"userAccountControl", "lockoutTime", "pwdLastSet", "accountExpires"})
		if err != nil {
			return err
		}
		controls, err = userControls(entry, time.Now())
		return err
	})
	return controls, err
}

func userControls(entry *goldap.Entry, now time.Time) (UserControls, error) {
	uac, err := ldap.ParseUAC(entry.GetAttributeValue("userAccountControl"))
	if err != nil {
		return UserControls{}, fmt.Errorf("invalid userAccountControl: %w", err)
	}

	controls := UserControls{
		Disabled:           uac&ldap.UACAccountDisable != 0,
		DontExpirePassword: uac&ldap.UACDontExpirePassword != 0,
		MustChangePassword: entry.GetAttributeValue("pwdLastSet") == "0",
		Expired:            uac&ldap.UACPasswordExpired != 0,
	}

	if lockout, err := strconv.ParseInt(entry.GetAttributeValue("lockoutTime"), 10, 64); err == nil && lockout > 0 {
		controls.Locked = true
	}
	if expires, err := strconv.ParseInt(entry.GetAttributeValue("accountExpires"), 10, 64); err == nil {
		if t := ldap.FileTimeToTime(expires); !t.IsZero() && t.Before(now) {
			controls.Expired = true
		}
	}

	return controls, nil
}

// IfUserDisabled reports whether ACCOUNTDISABLE is set on user.
func (a *ADClient) IfUserDisabled(ctx context.Context, user string) (bool, error) {
	const op = "if_user_disabled"

	var disabled bool
	err := a.run(ctx, op, KindSearch, map[string]any{"user": user}, func(s *session) error {
		uac, err := s.readUAC(ctx, op, user)
		if err != nil {
			return err
		}
		disabled = uac&ldap.UACAccountDisable != 0
		return nil
	})
	return disabled, err
}

// IfDialinUser reports whether msNPAllowDialin is TRUE on user.
func (a *ADClient) IfDialinUser(ctx context.Context, user string) (bool, error) {
	const op = "if_dialin_user"

	var allowed bool
	err := a.run(ctx, op, KindSearch, map[string]any{"user": user}, func(s *session) error {
		entry, err := s.readEntry(ctx, op, user, []string{"msNPAllowDialin"})
		if err != nil {
			return err
		}
		allowed = strings.EqualFold(entry.GetAttributeValue("msNPAllowDialin"), "TRUE")
		return nil
	})
	return allowed, err
}

func (a *ADClient) listNames(ctx context.Context, op, ou string, scope ldap.SearchScope, filter string) ([]string, error) {
	var names []string
	err := a.run(ctx, op, KindSearch, map[string]any{"ou": ou}, func(s *session) error {
		base := s.searchBase
		var err error
		if ou != "" {
			if base, err = s.resolve(ctx, op, ou); err != nil {
				return err
			}
		}
		names, err = s.searchNames(ctx, base, scope, filter)
		return err
	})
	return names, err
}

func (s *session) searchNames(ctx context.Context, base string, scope ldap.SearchScope, filter string) ([]string, error) {
	result, err := s.client.SearchWithPaging(ctx, &ldap.SearchRequest{
		BaseDN:     base,
		Scope:      scope,
		Filter:     filter,
		Attributes: []string{"sAMAccountName"},
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(result.Entries))
	for _, entry := range result.Entries {
		if name := entry.GetAttributeValue("sAMAccountName"); name != "" {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func (s *session) searchDNs(ctx context.Context, base string, scope ldap.SearchScope, filter string) ([]string, error) {
	result, err := s.client.SearchWithPaging(ctx, &ldap.SearchRequest{
		BaseDN:     base,
		Scope:      scope,
		Filter:     filter,
		Attributes: []string{"distinguishedName"},
	})
	if err != nil {
		return nil, err
	}
	return entryDNs(result.Entries), nil
}

// readEntry resolves identifier and fetches the requested attributes with a base search.
// A nil attribute list fetches every user attribute.
func (s *session) readEntry(ctx context.Context, op, identifier string, attributes []string) (*goldap.Entry, error) {
	dn, err := s.resolve(ctx, op, identifier)
	if err != nil {
		return nil, err
	}

	result, err := s.client.Search(ctx, &ldap.SearchRequest{
		BaseDN:     dn,
		Scope:      ldap.ScopeBaseObject,
		Filter:     anyFilter,
		Attributes: attributes,
	})
	if err != nil {
		return nil, err
	}
	if len(result.Entries) == 0 {
		return nil, ldap.NewNotFoundError(op, identifier)
	}
	return result.Entries[0], nil
}

// groupMembers reads every value of the member attribute of the group at dn.
// Large groups are returned by the server in ranges and are read range by range.
func (s *session) groupMembers(ctx context.Context, op, dn string) ([]string, error) {
	var members []string
	attribute := "member"
	for {
		result, err := s.client.Search(ctx, &ldap.SearchRequest{
			BaseDN:     dn,
			Scope:      ldap.ScopeBaseObject,
			Filter:     anyFilter,
			Attributes: []string{attribute},
		})
		if err != nil {
			return nil, err
		}
		if len(result.Entries) == 0 {
			return nil, ldap.NewNotFoundError(op, dn)
		}

		next := ""
		for _, attr := range result.Entries[0].Attributes {
			name := strings.ToLower(attr.Name)
			if name != "member" && !strings.HasPrefix(name, "member;range=") {
				continue
			}
			members = append(members, attr.Values...)
			_, end, ok := strings.Cut(strings.TrimPrefix(name, "member;range="), "-")
			if !ok || end == "*" {
				continue
			}
			last, err := strconv.Atoi(end)
			if err != nil {
				return nil, fmt.Errorf("invalid member range %q on %s", attr.Name, dn)
			}
			next = "member;range=" + strconv.Itoa(last+1) + "-*"
		}
		if next == "" {
			return members, nil
		}
		attribute = next
	}
}

func (s *session) readUAC(ctx context.Context, op, identifier string) (int64, error) {
	entry, err := s.readEntry(ctx, op, identifier, []string{"userAccountControl"})
	if err != nil {
		return 0, err
	}
	uac, err := ldap.ParseUAC(entry.GetAttributeValue("userAccountControl"))
	if err != nil {
		return 0, fmt.Errorf("invalid userAccountControl on %s: %w", entry.DN, err)
	}
	return uac, nil
}

func noSuchAttribute(object, attribute string) error {
	return goldap.NewError(goldap.LDAPResultNoSuchAttribute, fmt.Errorf("%s has no attribute %s", object, attribute))
}

// entryAttributes flattens an entry, rendering objectGUID and objectSid as text.
func entryAttributes(entry *goldap.Entry) map[string][]string {
	attrs := make(map[string][]string, len(entry.Attributes))
	for _, attr := range entry.Attributes {
		switch {
		case strings.EqualFold(attr.Name, "objectGUID"):
			if guid := ldap.EntryGUID(entry); guid != "" {
				attrs[attr.Name] = []string{guid}
			}
		case strings.EqualFold(attr.Name, "objectSid"):
			if sid := ldap.EntrySID(entry); sid != "" {
				attrs[attr.Name] = []string{sid}
			}
		default:
			attrs[attr.Name] = slices.Clone(attr.Values)
		}
	}
	return attrs
}

func entryDNs(entries []*goldap.Entry) []string {
	dns := make([]string, 0, len(entries))
	for _, entry := range entries {
		dns = append(dns, entry.DN)
	}
	return dns
}

func orAny(filter string) string {
	if strings.TrimSpace(filter) == "" {
		return anyFilter
	}
	return filter
}
