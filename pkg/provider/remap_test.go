package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemap_KnownKeys(t *testing.T) {
	in := map[string]any{
		"client_id":     "abc",
		"client_secret": "xyz",
		"callback_url":  "https://gw.example.com/callback",
	}
	out, ok := Remap(in).(map[string]any)
	require.True(t, ok)

	assert.Equal(t, "abc", out["clientID"])
	assert.Equal(t, "xyz", out["clientSecret"])
	assert.Equal(t, "https://gw.example.com/callback", out["callbackURL"])
	assert.NotContains(t, out, "client_id")
}

func TestRemap_UnknownKeysPassThrough(t *testing.T) {
	in := map[string]any{
		"issuer":        "https://idp.example.com",
		"custom_option": true,
	}
	out := Remap(in).(map[string]any)

	assert.Equal(t, "https://idp.example.com", out["issuer"])
	assert.Equal(t, true, out["custom_option"])
}

func TestRemap_RecursesIntoNestedObjects(t *testing.T) {
	in := map[string]any{
		"groups_management": map[string]any{
			"group_search_base": "ou=groups",
			"groups_mapping":    []any{"admins:GROUP_ADMIN"},
		},
	}
	out := Remap(in).(map[string]any)
	nested := out["groups_management"].(map[string]any)

	assert.Equal(t, "ou=groups", nested["groupSearchBase"])
	assert.Equal(t, []any{"admins:GROUP_ADMIN"}, nested["groups_mapping"])
}

func TestRemap_ArraysAndScalarsPassThrough(t *testing.T) {
	assert.Equal(t, "scalar", Remap("scalar"))
	assert.Equal(t, 42, Remap(42))
	assert.Equal(t, []any{"a", "b"}, Remap([]any{"a", "b"}))
	assert.Nil(t, Remap(nil))
}

func TestRemap_DoesNotMutateInput(t *testing.T) {
	in := map[string]any{
		"bind_dn": "cn=admin",
		"nested":  map[string]any{"entry_point": "https://idp"},
	}
	Remap(in)

	assert.Equal(t, "cn=admin", in["bind_dn"])
	assert.NotContains(t, in, "bindDN")
	assert.Equal(t, "https://idp", in["nested"].(map[string]any)["entry_point"])
}

func TestRemap_IdempotentOnMappedKeys(t *testing.T) {
	in := map[string]any{
		"bind_dn":     "cn=admin",
		"entry_point": "https://idp",
	}
	once := Remap(in)
	twice := Remap(once)

	assert.Equal(t, once, twice)
}
