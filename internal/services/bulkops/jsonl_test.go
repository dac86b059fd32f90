package bulkops

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/tagforge/internal/models"
	"github.com/tidwall/gjson"
)

func TestParseRows_SkipsChildLines(t *testing.T) {
	data := []byte(`{"id":"gid://shopify/Product/1","tags":["a","b"]}
{"id":"gid://shopify/ProductVariant/11","__parentId":"gid://shopify/Product/1"}
{"id":"gid://shopify/Product/2","tags":[]}

{"id":"gid://shopify/Product/3","tags":["c"]}
`)

	rows, err := ParseRows(data, models.ResourceProduct)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "gid://shopify/Product/1", rows[0].ID)
	assert.Equal(t, []string{"a", "b"}, rows[0].Tags)
	assert.Empty(t, rows[1].Tags)
	assert.Equal(t, []string{"c"}, rows[2].Tags)
}

func TestParseRows_VariantRowsCarryInventoryItem(t *testing.T) {
	data := []byte(`{"id":"gid://shopify/ProductVariant/1","inventoryItem":{"id":"gid://shopify/InventoryItem/9","unitCost":{"amount":"12.50"}}}
{"id":"gid://shopify/ProductVariant/2","inventoryItem":{"id":"gid://shopify/InventoryItem/10","unitCost":null}}
`)

	rows, err := ParseRows(data, models.ResourceVariant)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "gid://shopify/InventoryItem/9", rows[0].ID)
	assert.Equal(t, "12.50", rows[0].Cost)
	assert.Equal(t, "gid://shopify/InventoryItem/10", rows[1].ID)
	assert.Empty(t, rows[1].Cost)
}

func TestParseRows_EmptyFile(t *testing.T) {
	rows, err := ParseRows(nil, models.ResourceProduct)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestBuildTagMutationJSONL(t *testing.T) {
	items := []models.BackupItem{
		{ResourceID: "gid://shopify/Product/1", OriginalTags: []string{"A", "C"}},
		{ResourceID: "gid://shopify/Product/2", OriginalTags: nil},
	}
	newTags := map[string][]string{
		"gid://shopify/Product/1": {"C", "B"},
		"gid://shopify/Product/2": nil,
	}

	data, err := BuildTagMutationJSONL(items, newTags)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	first := gjson.Get(lines[0], "input")
	assert.Equal(t, "gid://shopify/Product/1", first.Get("id").String())
	assert.Equal(t, `["C","B"]`, first.Get("tags").Raw)

	// Nil tag sets serialize as an empty array, never null.
	second := gjson.Get(lines[1], "input")
	assert.Equal(t, "[]", second.Get("tags").Raw)
}

func TestBuildRestoreJSONL_RoundTrip(t *testing.T) {
	backup := &models.Backup{
		Items: []models.BackupItem{
			{ResourceID: "gid://shopify/Product/1", OriginalTags: []string{"A", "C"}},
		},
	}

	data, err := BuildRestoreJSONL(backup)
	require.NoError(t, err)

	line := strings.TrimSpace(string(data))
	assert.Equal(t, `["A","C"]`, gjson.Get(line, "input.tags").Raw)
}

func TestBuildCostMutationJSONL(t *testing.T) {
	rows := []Row{
		{ID: "gid://shopify/InventoryItem/9", Cost: "12.50"},
		{ID: "gid://shopify/InventoryItem/10", Cost: "8.00"},
	}

	data, err := BuildCostMutationJSONL(rows, "15.00")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "gid://shopify/InventoryItem/9", gjson.Get(lines[0], "id").String())
	assert.Equal(t, "15.00", gjson.Get(lines[0], "cost").String())
}
