package provider

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

// MappingConfig is the parsed view of a roles_management, groups_management or
// organizations_management section. Two configuration generations overlap
// here: the deprecated roles sections and the group/organization sections both
// stay functional.
type MappingConfig struct {
	// Attribute names an entry attribute for LDAP group entries or SAML
	// profile attributes.
	Attribute string
	// Paths are dotted source paths resolved against a decoded token or a
	// fetched userinfo object, depending on ReadUserinfo.
	Paths []string
	// Rules are "remote:internal" pairs.
	Rules []string
	// Scope is an additional OAuth scope the section requests.
	Scope string
	// TokenReference selects which token of the token set to decode.
	TokenReference string
	// ReadUserinfo resolves Paths against userinfo instead of the token.
	ReadUserinfo bool
}

// ClaimSource carries every claim shape a strategy can produce: a decoded
// token, a fetched userinfo object, an LDAP entry or SAML profile, and the
// LDAP group-membership sub-list.
type ClaimSource struct {
	Token       map[string]any
	Userinfo    map[string]any
	Entry       map[string]any
	EntryGroups []map[string]any
}

// ParseMappingRules builds a remote-to-internal mapper from rule strings of
// the exact form "remote:internal". Malformed entries are dropped; for
// duplicate remote keys the later rule wins.
func ParseMappingRules(rules []string) map[string]string {
	mapper := make(map[string]string, len(rules))
	for _, rule := range rules {
		parts := strings.Split(rule, ":")
		if len(parts) != 2 {
			continue
		}
		mapper[parts[0]] = parts[1]
	}
	return mapper
}

// RolesConfig extracts the deprecated roles_management section from a mapped
// provider config, or nil when absent.
func RolesConfig(config map[string]any) *MappingConfig {
	section, ok := config["roles_management"].(map[string]any)
	if !ok {
		return nil
	}
	return &MappingConfig{
		Attribute:      getString(section, "role_attributes"),
		Paths:          getStringList(section["roles_path"]),
		Rules:          getStringList(section["roles_mapping"]),
		Scope:          getString(section, "roles_scope"),
		TokenReference: getString(section, "token_reference"),
		ReadUserinfo:   getBool(section, "read_userinfo"),
	}
}

// GroupsConfig extracts the groups_management section, or nil when absent.
func GroupsConfig(config map[string]any) *MappingConfig {
	section, ok := config["groups_management"].(map[string]any)
	if !ok {
		return nil
	}
	return &MappingConfig{
		Attribute:      getString(section, "group_attribute"),
		Paths:          getStringList(section["groups_path"]),
		Rules:          getStringList(section["groups_mapping"]),
		Scope:          getString(section, "groups_scope"),
		TokenReference: getString(section, "token_reference"),
		ReadUserinfo:   getBool(section, "read_userinfo"),
	}
}

// OrganizationsConfig extracts the organizations_management section, or nil
// when absent.
func OrganizationsConfig(config map[string]any) *MappingConfig {
	section, ok := config["organizations_management"].(map[string]any)
	if !ok {
		return nil
	}
	return &MappingConfig{
		Paths:          getStringList(section["organizations_path"]),
		Rules:          getStringList(section["organizations_mapping"]),
		TokenReference: getString(section, "token_reference"),
		ReadUserinfo:   getBool(section, "read_userinfo"),
	}
}

// OrganizationsDefault returns the organizations_default list of a mapped
// provider config.
func OrganizationsDefault(config map[string]any) []string {
	return getStringList(config["organizations_default"])
}

// IsGroupBaseAccess reports whether login is restricted to members of mapped
// groups: a non-empty groups mapping or any deprecated roles section. When
// false, login never blocks on an empty group set.
func IsGroupBaseAccess(groups, roles *MappingConfig) bool {
	if groups != nil && len(groups.Rules) > 0 {
		return true
	}
	return roles != nil
}

// ComputeRolesMapping maps raw role claim values to internal ids, discarding
// unmapped values.
//
// Deprecated: roles_management is retained for compatibility only; use
// groups_management. Each invocation logs one deprecation warning.
func ComputeRolesMapping(cfg *MappingConfig, src ClaimSource) []string {
	if cfg == nil {
		return nil
	}
	log.Warn("roles_management is deprecated, migrate the provider to groups_management")
	return applyMapping(cfg, src)
}

// ComputeGroupsMapping maps raw group claim values to internal group ids.
// Results from every configured path are flattened before mapping; a scalar
// value behaves as a one-element list.
func ComputeGroupsMapping(cfg *MappingConfig, src ClaimSource) []string {
	if cfg == nil {
		return nil
	}
	return applyMapping(cfg, src)
}

// GroupsToAssociate is the unique union of the groups mapping and the
// deprecated roles mapping, order-independent for a fixed claim snapshot.
func GroupsToAssociate(groups, roles *MappingConfig, src ClaimSource) []string {
	return unique(append(ComputeGroupsMapping(groups, src), ComputeRolesMapping(roles, src)...))
}

// ComputeOrganizationsMapping unions the configured default organizations with
// path-resolved, mapped organization values. Organization membership is
// independent of group-based restriction.
func ComputeOrganizationsMapping(cfg *MappingConfig, defaults []string, src ClaimSource) []string {
	if cfg == nil {
		return unique(defaults)
	}
	return unique(append(append([]string{}, defaults...), applyMapping(cfg, src)...))
}

func applyMapping(cfg *MappingConfig, src ClaimSource) []string {
	mapper := ParseMappingRules(cfg.Rules)
	mapped := make([]string, 0)
	for _, value := range rawClaimValues(cfg, src) {
		if internal, ok := mapper[value]; ok && internal != "" {
			mapped = append(mapped, internal)
		}
	}
	return mapped
}

// rawClaimValues gathers the raw remote values a section points at, across
// entry attributes and dotted paths.
func rawClaimValues(cfg *MappingConfig, src ClaimSource) []string {
	var raw []string
	if cfg.Attribute != "" {
		if len(src.EntryGroups) > 0 {
			for _, group := range src.EntryGroups {
				raw = append(raw, getStringList(group[cfg.Attribute])...)
			}
		} else if src.Entry != nil {
			raw = append(raw, getStringList(src.Entry[cfg.Attribute])...)
		}
	}
	source := src.Token
	if cfg.ReadUserinfo {
		source = src.Userinfo
	}
	for _, path := range cfg.Paths {
		raw = append(raw, resolvePath(source, path)...)
	}
	return raw
}

// resolvePath walks a dotted path through nested objects and flattens the
// final value to a string list.
func resolvePath(node map[string]any, path string) []string {
	if node == nil || path == "" {
		return nil
	}
	segments := strings.Split(path, ".")
	var current any = node
	for _, segment := range segments {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = obj[segment]
		if !ok {
			return nil
		}
	}
	return getStringList(current)
}

func unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func getString(obj map[string]any, key string) string {
	if value, ok := obj[key].(string); ok {
		return value
	}
	return ""
}

func getBool(obj map[string]any, key string) bool {
	switch value := obj[key].(type) {
	case bool:
		return value
	case string:
		return value == "true"
	}
	return false
}

// getStringList flattens a claim value: scalars become one-element lists,
// string slices pass through, non-string elements are dropped.
func getStringList(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
