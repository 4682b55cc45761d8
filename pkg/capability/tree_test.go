package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatten(t *testing.T) {
	trees := []Node{
		{Name: "BYPASS", Description: "Bypass all capabilities", Order: 1},
		{Name: "KNOWLEDGE", Description: "Access knowledge", Order: 100, Dependencies: []Node{
			{Name: "KNUPDATE", Description: "Create / Update knowledge", Order: 200, Dependencies: []Node{
				{Name: "KNDELETE", Description: "Delete knowledge", Order: 300},
			}},
		}},
	}

	caps := Flatten(trees)
	require.Len(t, caps, 4)

	ids := make([]string, 0, len(caps))
	for _, c := range caps {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{
		"BYPASS",
		"KNOWLEDGE",
		"KNOWLEDGE_KNUPDATE",
		"KNOWLEDGE_KNUPDATE_KNDELETE",
	}, ids)
}

func TestFlatten_SortsByOrderAcrossTrees(t *testing.T) {
	trees := []Node{
		{Name: "SETTINGS", Order: 3000},
		{Name: "BYPASS", Order: 1},
	}

	caps := Flatten(trees)
	require.Len(t, caps, 2)
	assert.Equal(t, "BYPASS", caps[0].ID)
	assert.Equal(t, "SETTINGS", caps[1].ID)
}

func TestFlatten_Empty(t *testing.T) {
	assert.Empty(t, Flatten(nil))
}
