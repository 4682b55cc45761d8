package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
	log "github.com/sirupsen/logrus"
)

// LDAPStrategy binds and searches a directory, then feeds the entry and its
// group sub-entries through the claim mapping. Handshake timeouts belong to
// the LDAP client, not to this layer.
type LDAPStrategy struct {
	login *LoginHandler

	url             string
	bindDN          string
	bindPassword    string
	searchBase      string
	searchFilter    string
	groupBase       string
	groupFilter     string
	mailAttribute   string
	accountAttr     string
	firstnameAttr   string
	lastnameAttr    string
	allowSelfSigned bool

	groupsCfg   *MappingConfig
	rolesCfg    *MappingConfig
	orgsCfg     *MappingConfig
	orgsDefault []string
	autoCreate  bool
}

// NewLDAPStrategy builds the strategy from a remapped provider config. The
// directory is only contacted at authentication time, so construction cannot
// fail.
func NewLDAPStrategy(mapped map[string]any, login *LoginHandler) *LDAPStrategy {
	s := &LDAPStrategy{
		login:           login,
		url:             getString(mapped, "url"),
		bindDN:          getString(mapped, "bindDN"),
		bindPassword:    getString(mapped, "bindCredentials"),
		searchBase:      getString(mapped, "searchBase"),
		searchFilter:    getString(mapped, "searchFilter"),
		groupBase:       getString(mapped, "groupSearchBase"),
		groupFilter:     getString(mapped, "groupSearchFilter"),
		mailAttribute:   getString(mapped, "mail_attribute"),
		accountAttr:     getString(mapped, "account_attribute"),
		firstnameAttr:   getString(mapped, "firstname_attribute"),
		lastnameAttr:    getString(mapped, "lastname_attribute"),
		allowSelfSigned: getBool(mapped, "allow_self_signed"),
		groupsCfg:       GroupsConfig(mapped),
		rolesCfg:        RolesConfig(mapped),
		orgsCfg:         OrganizationsConfig(mapped),
		orgsDefault:     OrganizationsDefault(mapped),
		autoCreate:      getBool(mapped, "auto_create_group"),
	}
	if s.searchFilter == "" {
		s.searchFilter = "(uid={{username}})"
	}
	if s.mailAttribute == "" {
		s.mailAttribute = "mail"
	}
	if s.accountAttr == "" {
		s.accountAttr = "givenName"
	}
	if s.firstnameAttr == "" {
		s.firstnameAttr = "givenName"
	}
	if s.lastnameAttr == "" {
		s.lastnameAttr = "sn"
	}
	// Directory group entries are matched on cn unless configured otherwise.
	if s.groupsCfg != nil && s.groupsCfg.Attribute == "" && len(s.groupsCfg.Paths) == 0 {
		s.groupsCfg.Attribute = "cn"
	}
	if s.rolesCfg != nil && s.rolesCfg.Attribute == "" && len(s.rolesCfg.Paths) == 0 {
		s.rolesCfg.Attribute = "cn"
	}
	return s
}

// Kind implements Strategy.
func (s *LDAPStrategy) Kind() StrategyKind { return StrategyLDAP }

// Mode implements Strategy.
func (s *LDAPStrategy) Mode() AuthMode { return AuthForm }

// Authenticate implements FormStrategy: service bind, user search, user bind,
// group search, then claim mapping and the login decision.
func (s *LDAPStrategy) Authenticate(ctx context.Context, username, password string) (*User, error) {
	conn, err := ldap.DialURL(s.url, ldap.DialWithTLSConfig(&tls.Config{
		InsecureSkipVerify: s.allowSelfSigned,
	}))
	if err != nil {
		return nil, fmt.Errorf("ldap dial failed: %w", err)
	}
	defer conn.Close()

	if s.bindDN != "" {
		if err := conn.Bind(s.bindDN, s.bindPassword); err != nil {
			return nil, fmt.Errorf("ldap service bind failed: %w", err)
		}
	}

	filter := strings.ReplaceAll(s.searchFilter, "{{username}}", ldap.EscapeFilter(username))
	result, err := conn.Search(ldap.NewSearchRequest(
		s.searchBase, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 1, 0, false,
		filter, nil, nil,
	))
	if err != nil {
		return nil, fmt.Errorf("ldap search failed: %w", err)
	}
	if len(result.Entries) == 0 {
		return nil, ErrInvalidCredentials
	}
	entry := result.Entries[0]

	if err := conn.Bind(entry.DN, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	entryMap := entryToMap(entry)
	groups, err := s.searchGroups(conn, entry.DN)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"dn": entry.DN, "groups": len(groups)}).Debug("[LDAP] successfully logged")

	src := ClaimSource{Entry: entryMap, EntryGroups: groups}
	claims := IdentityClaims{
		Email:     getString(entryMap, s.mailAttribute),
		Name:      getString(entryMap, s.accountAttr),
		Firstname: getString(entryMap, s.firstnameAttr),
		Lastname:  getString(entryMap, s.lastnameAttr),
	}
	assoc := AssociationSet{
		Groups:        GroupsToAssociate(s.groupsCfg, s.rolesCfg, src),
		Organizations: ComputeOrganizationsMapping(s.orgsCfg, s.orgsDefault, src),
	}
	return s.login.Complete(ctx, claims, assoc, IsGroupBaseAccess(s.groupsCfg, s.rolesCfg), s.autoCreate)
}

func (s *LDAPStrategy) searchGroups(conn *ldap.Conn, userDN string) ([]map[string]any, error) {
	if s.groupBase == "" || s.groupFilter == "" {
		return nil, nil
	}
	filter := strings.ReplaceAll(s.groupFilter, "{{dn}}", ldap.EscapeFilter(userDN))
	result, err := conn.Search(ldap.NewSearchRequest(
		s.groupBase, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter, nil, nil,
	))
	if err != nil {
		return nil, fmt.Errorf("ldap group search failed: %w", err)
	}
	groups := make([]map[string]any, 0, len(result.Entries))
	for _, entry := range result.Entries {
		groups = append(groups, entryToMap(entry))
	}
	return groups, nil
}

// entryToMap flattens a directory entry: single-valued attributes become
// strings, multi-valued ones string lists.
func entryToMap(entry *ldap.Entry) map[string]any {
	m := make(map[string]any, len(entry.Attributes)+1)
	m["dn"] = entry.DN
	for _, attr := range entry.Attributes {
		if len(attr.Values) == 1 {
			m[attr.Name] = attr.Values[0]
		} else {
			m[attr.Name] = attr.Values
		}
	}
	return m
}
