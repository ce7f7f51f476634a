package adclient

import (
	"context"
	"errors"
	"strconv"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"

	"github.com/isometry/terraform-provider-adclient/internal/ldap"
)

// CreateComputer adds a computer account CN=<name> under container.
func (a *ADClient) CreateComputer(ctx context.Context, name, container string) error {
	const op = "create_computer"

	if strings.TrimSpace(name) == "" {
		return a.record(ctx, op, KindOperational, invalidArgument(op, "computer name cannot be empty"))
	}
	if err := ldap.ValidateDNSyntax(container); err != nil {
		return a.record(ctx, op, KindOperational, invalidArgument(op, "invalid container: %v", err))
	}

	dn := ldap.JoinDN("CN", name, container)
	return a.run(ctx, op, KindOperational, map[string]any{"dn": dn}, func(s *session) error {
		return s.client.Add(ctx, &ldap.AddRequest{
			DN: dn,
			Attributes: map[string][]string{
				"objectClass":        {"top", "person", "organizationalPerson", "user", "computer"},
				"cn":                 {name},
				"sAMAccountName":     {strings.ToUpper(name) + "$"},
				"userAccountControl": {strconv.Itoa(ldap.DefaultComputerAccountCtl)},
			},
		})
	})
}

// CreateUser adds a disabled user account CN=<cn> under container with the given short name.
// The userPrincipalName domain is derived from the search base.
func (a *ADClient) CreateUser(ctx context.Context, cn, container, shortName string) error {
	const op = "create_user"

	if strings.TrimSpace(cn) == "" || strings.TrimSpace(shortName) == "" {
		return a.record(ctx, op, KindOperational, invalidArgument(op, "cn and short name are required"))
	}
	if err := ldap.ValidateDNSyntax(container); err != nil {
		return a.record(ctx, op, KindOperational, invalidArgument(op, "invalid container: %v", err))
	}

	dn := ldap.JoinDN("CN", cn, container)
	return a.run(ctx, op, KindOperational, map[string]any{"dn": dn, "short_name": shortName}, func(s *session) error {
		attrs := map[string][]string{
			"objectClass":        {"top", "person", "organizationalPerson", "user"},
			"cn":                 {cn},
			"sAMAccountName":     {shortName},
			"userAccountControl": {strconv.Itoa(ldap.DefaultUserAccountControl)},
		}
		if domain := ldap.DomainFromDN(s.searchBase); domain != "" {
			attrs["userPrincipalName"] = []string{shortName + "@" + domain}
		}
		return s.client.Add(ctx, &ldap.AddRequest{DN: dn, Attributes: attrs})
	})
}

// DeleteDN removes the entry and forgets any cached identifiers under it.
func (a *ADClient) DeleteDN(ctx context.Context, dn string) error {
	return a.run(ctx, "delete_dn", KindOperational, map[string]any{"dn": dn}, func(s *session) error {
		if err := s.client.Delete(ctx, dn); err != nil {
			return err
		}
		s.cache.InvalidateDN(dn)
		return nil
	})
}

// MoveDN moves the entry under newParent, keeping its RDN, and returns the new DN.
func (a *ADClient) MoveDN(ctx context.Context, dn, newParent string) (string, error) {
	const op = "move_dn"

	var moved string
	err := a.run(ctx, op, KindOperational, map[string]any{"dn": dn, "new_parent": newParent}, func(s *session) error {
		normalized, err := ldap.NormalizeDN(dn)
		if err != nil {
			return invalidArgument(op, "%v", err)
		}
		parent, err := ldap.ParentDN(normalized)
		if err != nil {
			return invalidArgument(op, "%v", err)
		}
		rdn := strings.TrimSuffix(normalized, ","+parent)
		if err := s.client.ModifyDN(ctx, &ldap.ModifyDNRequest{
			DN:           dn,
			NewRDN:       rdn,
			DeleteOldRDN: true,
			NewSuperior:  newParent,
		}); err != nil {
			return err
		}
		s.cache.InvalidateDN(dn)
		moved = rdn + "," + newParent
		return nil
	})
	return moved, err
}

// CreateOU creates ou along with any missing parent OUs, top-down. Existing levels are skipped.
func (a *ADClient) CreateOU(ctx context.Context, ou string) error {
	const op = "create_ou"

	return a.run(ctx, op, KindOperational, map[string]any{"ou": ou}, func(s *session) error {
		chain, err := ldap.OUChain(ou, s.searchBase)
		if err != nil {
			return invalidArgument(op, "%v", err)
		}

		for _, level := range chain {
			result, err := s.client.Search(ctx, &ldap.SearchRequest{
				BaseDN:     level,
				Scope:      ldap.ScopeBaseObject,
				Filter:     ouFilter,
				Attributes: []string{"distinguishedName"},
			})
			switch {
			case err == nil && len(result.Entries) > 0:
				continue
			case err != nil && ldap.ResultCode(err) != goldap.LDAPResultNoSuchObject:
				return newError(KindSearch, op, err)
			}

			name, err := ldap.ExtractRDNValue(level, "OU")
			if err != nil {
				return err
			}
			err = s.client.Add(ctx, &ldap.AddRequest{
				DN: level,
				Attributes: map[string][]string{
					"objectClass": {"top", "organizationalUnit"},
					"ou":          {name},
				},
			})
			if err != nil && ldap.ResultCode(err) != goldap.LDAPResultEntryAlreadyExists {
				return err
			}
		}
		return nil
	})
}

// GroupAddUser adds user to the member attribute of group.
func (a *ADClient) GroupAddUser(ctx context.Context, group, user string) error {
	return a.modifyMembership(ctx, "group_add_user", group, user, true)
}

// GroupRemoveUser removes user from the member attribute of group.
func (a *ADClient) GroupRemoveUser(ctx context.Context, group, user string) error {
	return a.modifyMembership(ctx, "group_remove_user", group, user, false)
}

func (a *ADClient) modifyMembership(ctx context.Context, op, group, user string, add bool) error {
	return a.run(ctx, op, KindOperational, map[string]any{"group": group, "user": user}, func(s *session) error {
		groupDN, err := s.resolve(ctx, op, group)
		if err != nil {
			return err
		}
		userDN, err := s.resolve(ctx, op, user)
		if err != nil {
			return err
		}

		req := &ldap.ModifyRequest{DN: groupDN}
		if add {
			req.AddAttributes = map[string][]string{"member": {userDN}}
		} else {
			req.DeleteAttributes = map[string][]string{"member": {userDN}}
		}
		return s.client.Modify(ctx, req)
	})
}

// EnableUser clears ACCOUNTDISABLE on user.
func (a *ADClient) EnableUser(ctx context.Context, user string) error {
	return a.setUACFlag(ctx, "enable_user", user, ldap.UACAccountDisable, false)
}

// DisableUser sets ACCOUNTDISABLE on user.
func (a *ADClient) DisableUser(ctx context.Context, user string) error {
	return a.setUACFlag(ctx, "disable_user", user, ldap.UACAccountDisable, true)
}

func (a *ADClient) setUACFlag(ctx context.Context, op, user string, flag int64, set bool) error {
	return a.run(ctx, op, KindOperational, map[string]any{"user": user}, func(s *session) error {
		dn, err := s.resolve(ctx, op, user)
		if err != nil {
			return err
		}
		uac, err := s.readUAC(ctx, op, dn)
		if err != nil {
			return newError(KindSearch, op, err)
		}
		updated := ldap.SetUACFlag(uac, flag, set)
		if updated == uac {
			return nil
		}
		return s.client.Modify(ctx, &ldap.ModifyRequest{
			DN:                dn,
			ReplaceAttributes: map[string][]string{"userAccountControl": {strconv.FormatInt(updated, 10)}},
		})
	})
}

// UnlockUser clears an account lockout.
func (a *ADClient) UnlockUser(ctx context.Context, user string) error {
	return a.setAttribute(ctx, "unlock_user", user, "lockoutTime", "0")
}

// SetUserPassword replaces unicodePwd. The connection must be secured.
func (a *ADClient) SetUserPassword(ctx context.Context, user, password string) error {
	const op = "set_user_password"

	return a.run(ctx, op, KindOperational, map[string]any{"user": user}, func(s *session) error {
		if !s.secured {
			return newError(KindOperational, op, goldap.NewError(goldap.LDAPResultConfidentialityRequired,
				errors.New("password changes require a secured connection")))
		}
		dn, err := s.resolve(ctx, op, user)
		if err != nil {
			return err
		}
		encoded, err := ldap.EncodePassword(password)
		if err != nil {
			return invalidArgument(op, "%v", err)
		}
		return s.client.Modify(ctx, &ldap.ModifyRequest{
			DN:                dn,
			ReplaceAttributes: map[string][]string{"unicodePwd": {encoded}},
		})
	})
}

// CheckUserPassword binds a separate connection as user and reports whether password is accepted.
// Rejected credentials and empty passwords yield false without error.
func (a *ADClient) CheckUserPassword(ctx context.Context, user, password string) (bool, error) {
	const op = "check_user_password"

	var valid bool
	err := a.run(ctx, op, KindBind, map[string]any{"user": user}, func(s *session) error {
		if password == "" {
			return nil
		}
		dn, err := s.resolve(ctx, op, user)
		if err != nil {
			return err
		}
		err = s.client.CheckCredentials(ctx, dn, password)
		switch {
		case err == nil:
			valid = true
		case ldap.ResultCode(err) == goldap.LDAPResultInvalidCredentials:
			return nil
		}
		return err
	})
	return valid, err
}

// SetUserDialinAllowed sets msNPAllowDialin to TRUE.
func (a *ADClient) SetUserDialinAllowed(ctx context.Context, user string) error {
	return a.setAttribute(ctx, "set_user_dialin_allowed", user, "msNPAllowDialin", "TRUE")
}

// SetUserDialinDisabled sets msNPAllowDialin to FALSE.
func (a *ADClient) SetUserDialinDisabled(ctx context.Context, user string) error {
	return a.setAttribute(ctx, "set_user_dialin_disabled", user, "msNPAllowDialin", "FALSE")
}

// SetUserDescription replaces description. An empty value removes it.
func (a *ADClient) SetUserDescription(ctx context.Context, user, value string) error {
	return a.setAttribute(ctx, "set_user_description", user, "description", value)
}

// SetUserSN replaces sn. An empty value removes it.
func (a *ADClient) SetUserSN(ctx context.Context, user, value string) error {
	return a.setAttribute(ctx, "set_user_sn", user, "sn", value)
}

// SetUserInitials replaces initials. An empty value removes it.
func (a *ADClient) SetUserInitials(ctx context.Context, user, value string) error {
	return a.setAttribute(ctx, "set_user_initials", user, "initials", value)
}

// SetUserGivenName replaces givenName. An empty value removes it.
func (a *ADClient) SetUserGivenName(ctx context.Context, user, value string) error {
	return a.setAttribute(ctx, "set_user_given_name", user, "givenName", value)
}

// SetUserDisplayName replaces displayName. An empty value removes it.
func (a *ADClient) SetUserDisplayName(ctx context.Context, user, value string) error {
	return a.setAttribute(ctx, "set_user_display_name", user, "displayName", value)
}

// SetUserRoomNumber replaces roomNumber. An empty value removes it.
func (a *ADClient) SetUserRoomNumber(ctx context.Context, user, value string) error {
	return a.setAttribute(ctx, "set_user_room_number", user, "roomNumber", value)
}

// SetUserAddress replaces streetAddress. An empty value removes it.
func (a *ADClient) SetUserAddress(ctx context.Context, user, value string) error {
	return a.setAttribute(ctx, "set_user_address", user, "streetAddress", value)
}

// SetUserInfo replaces info. An empty value removes it.
func (a *ADClient) SetUserInfo(ctx context.Context, user, value string) error {
	return a.setAttribute(ctx, "set_user_info", user, "info", value)
}

// SetUserTitle replaces title. An empty value removes it.
func (a *ADClient) SetUserTitle(ctx context.Context, user, value string) error {
	return a.setAttribute(ctx, "set_user_title", user, "title", value)
}

// SetUserDepartment replaces department. An empty value removes it.
func (a *ADClient) SetUserDepartment(ctx context.Context, user, value string) error {
	return a.setAttribute(ctx, "set_user_department", user, "department", value)
}

// SetUserCompany replaces company. An empty value removes it.
func (a *ADClient) SetUserCompany(ctx context.Context, user, value string) error {
	return a.setAttribute(ctx, "set_user_company", user, "company", value)
}

// SetUserPhone replaces telephoneNumber. An empty value removes it.
func (a *ADClient) SetUserPhone(ctx context.Context, user, value string) error {
	return a.setAttribute(ctx, "set_user_phone", user, "telephoneNumber", value)
}

// SetUserIPAddress stores a dotted-quad address in msRADIUSFramedIPAddress.
func (a *ADClient) SetUserIPAddress(ctx context.Context, user, ip string) error {
	const op = "set_user_ip_address"

	n, err := ldap.IP2Int(ip)
	if err != nil {
		return a.record(ctx, op, KindOperational, invalidArgument(op, "%v", err))
	}
	return a.setAttribute(ctx, op, user, "msRADIUSFramedIPAddress", strconv.FormatInt(int64(n), 10))
}

// SetObjectAttribute replaces a single-valued attribute of object. An empty value removes it.
func (a *ADClient) SetObjectAttribute(ctx context.Context, object, attribute, value string) error {
	const op = "set_object_attribute"

	if strings.TrimSpace(attribute) == "" {
		return a.record(ctx, op, KindOperational, invalidArgument(op, "attribute name cannot be empty"))
	}
	return a.setAttribute(ctx, op, object, attribute, value)
}

func (a *ADClient) setAttribute(ctx context.Context, op, object, attribute, value string) error {
	return a.run(ctx, op, KindOperational, map[string]any{"object": object, "attribute": attribute}, func(s *session) error {
		dn, err := s.resolve(ctx, op, object)
		if err != nil {
			return err
		}
		values := []string{}
		if value != "" {
			values = []string{value}
		}
		if err := s.client.Modify(ctx, &ldap.ModifyRequest{
			DN:                dn,
			ReplaceAttributes: map[string][]string{attribute: values},
		}); err != nil {
			return err
		}
		// Cached entries are keyed by sAMAccountName and userPrincipalName too.
		s.cache.InvalidateDN(dn)
		return nil
	})
}
