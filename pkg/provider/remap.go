package provider

// configurationMapping translates the snake_case keys the configuration tree
// uses into the casing each strategy library expects. Environment-driven
// configuration cannot carry case, so the tree is normalized once at boot.
var configurationMapping = map[string]string{
	// Generic for google / facebook / github and auth0
	"client_id":     "clientID",
	"client_secret": "clientSecret",
	"callback_url":  "callbackURL",
	// LDAP
	"bind_dn":                 "bindDN",
	"bind_credentials":        "bindCredentials",
	"search_base":             "searchBase",
	"search_filter":           "searchFilter",
	"search_attributes":       "searchAttributes",
	"username_field":          "usernameField",
	"password_field":          "passwordField",
	"credentials_lookup":      "credentialsLookup",
	"group_search_base":       "groupSearchBase",
	"group_search_filter":     "groupSearchFilter",
	"group_search_attributes": "groupSearchAttributes",
	// SAML
	"entry_point":       "entryPoint",
	"saml_callback_url": "callbackUrl",
	"issuer_cert":       "cert",
	"private_key":       "privateKey",
	"logout_remote":     "logoutRemote",
	// OpenID Client - everything is already in snake case
}

// Remap rewrites every known snake_case key of an object node, recursing into
// nested objects. Arrays and scalars pass through unchanged. The input node is
// never mutated; callers keep the raw tree alongside the mapped one.
func Remap(node any) any {
	obj, ok := node.(map[string]any)
	if !ok {
		return node
	}
	mapped := make(map[string]any, len(obj))
	for key, value := range obj {
		remapped := key
		if replacement, known := configurationMapping[key]; known {
			remapped = replacement
		}
		mapped[remapped] = Remap(value)
	}
	return mapped
}
