package bulkops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/tagforge/internal/models"
)

func TestApplyTransform_FindReplace(t *testing.T) {
	params := models.BulkParams{Find: "A", Replace: "B"}

	// Item carrying the find tag changes; the rest of its set survives.
	tags, changed := ApplyTransform(models.BulkFindReplace, params, []string{"A", "C"})
	assert.True(t, changed)
	assert.ElementsMatch(t, []string{"C", "B"}, tags)

	// Item without the find tag is a no-op.
	tags, changed = ApplyTransform(models.BulkFindReplace, params, []string{"X", "Y"})
	assert.False(t, changed)
	assert.Equal(t, []string{"X", "Y"}, tags)
}

func TestApplyTransform_FindReplaceCaseInsensitive(t *testing.T) {
	tags, changed := ApplyTransform(models.BulkFindReplace, models.BulkParams{Find: "sale", Replace: "clearance"}, []string{"SALE", "new"})
	assert.True(t, changed)
	assert.ElementsMatch(t, []string{"new", "clearance"}, tags)
}

func TestApplyTransform_FindReplaceExistingTargetNotDuplicated(t *testing.T) {
	tags, changed := ApplyTransform(models.BulkFindReplace, models.BulkParams{Find: "A", Replace: "B"}, []string{"A", "B"})
	assert.True(t, changed)
	assert.Equal(t, []string{"B"}, tags)
}

func TestApplyTransform_FindReplaceEmptyReplaceRemoves(t *testing.T) {
	tags, changed := ApplyTransform(models.BulkFindReplace, models.BulkParams{Find: "A"}, []string{"A", "C"})
	assert.True(t, changed)
	assert.Equal(t, []string{"C"}, tags)
}

func TestApplyTransform_AddTags(t *testing.T) {
	tags, changed := ApplyTransform(models.BulkAddTags, models.BulkParams{Tags: []string{"new", "existing"}}, []string{"existing"})
	assert.True(t, changed)
	assert.ElementsMatch(t, []string{"existing", "new"}, tags)

	// All tags already present: no-op.
	_, changed = ApplyTransform(models.BulkAddTags, models.BulkParams{Tags: []string{"Existing"}}, []string{"existing"})
	assert.False(t, changed)
}

func TestApplyTransform_RemoveTags(t *testing.T) {
	tags, changed := ApplyTransform(models.BulkRemoveTags, models.BulkParams{Tags: []string{"old", "stale"}}, []string{"old", "keep", "STALE"})
	assert.True(t, changed)
	assert.Equal(t, []string{"keep"}, tags)

	_, changed = ApplyTransform(models.BulkRemoveTags, models.BulkParams{Tags: []string{"absent"}}, []string{"keep"})
	assert.False(t, changed)
}

func TestApplyTransform_Cleanup(t *testing.T) {
	tags, changed := ApplyTransform(models.BulkCleanup, models.BulkParams{KeepTags: []string{"approved", "featured"}}, []string{"approved", "junk", "Featured", "typo"})
	assert.True(t, changed)
	assert.Equal(t, []string{"approved", "Featured"}, tags)

	_, changed = ApplyTransform(models.BulkCleanup, models.BulkParams{KeepTags: []string{"approved"}}, []string{"approved"})
	assert.False(t, changed)
}

func TestCostEquals(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"same value different scale", "10.0", "10.00", true},
		{"integer vs decimal", "10", "10.000", true},
		{"genuinely different", "10.01", "10.0", false},
		{"identical strings", "12.50", "12.50", true},
		{"both unparseable identical", "n/a", "n/a", true},
		{"one unparseable", "n/a", "10", false},
		{"both empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, costEquals(tt.a, tt.b))
		})
	}
}

func TestSearchQuery(t *testing.T) {
	assert.Equal(t, "tag:'Sale'", SearchQuery(models.BulkFindReplace, models.BulkParams{Find: "Sale"}))
	assert.Equal(t, "tag:'a' OR tag:'b'", SearchQuery(models.BulkRemoveTags, models.BulkParams{Tags: []string{"a", "b"}}))
	assert.Equal(t, "", SearchQuery(models.BulkCleanup, models.BulkParams{KeepTags: []string{"x"}}))
	assert.Equal(t, "", SearchQuery(models.BulkAddTags, models.BulkParams{Tags: []string{"x"}}))
}

func TestBulkQueryFor(t *testing.T) {
	query, err := BulkQueryFor(models.ResourceProduct, "tag:'Sale'")
	require.NoError(t, err)
	assert.Contains(t, query, "products(query: \"tag:'Sale'\")")
	assert.Contains(t, query, "id tags")

	query, err = BulkQueryFor(models.ResourceCustomer, "")
	require.NoError(t, err)
	assert.Contains(t, query, "customers {")

	query, err = BulkQueryFor(models.ResourceVariant, "")
	require.NoError(t, err)
	assert.Contains(t, query, "productVariants")
	assert.Contains(t, query, "unitCost")

	_, err = BulkQueryFor(models.ResourceType("widget"), "")
	assert.Error(t, err)
}

func TestMutationFor(t *testing.T) {
	mutation, err := MutationFor(models.ResourceProduct, models.BulkFindReplace)
	require.NoError(t, err)
	assert.Contains(t, mutation, "productUpdate")

	mutation, err = MutationFor(models.ResourceOrder, models.BulkRevert)
	require.NoError(t, err)
	assert.Contains(t, mutation, "orderUpdate")

	// Cost updates target the inventory item regardless of resource type.
	mutation, err = MutationFor(models.ResourceVariant, models.BulkCostUpdate)
	require.NoError(t, err)
	assert.Contains(t, mutation, "inventoryItemUpdate")

	_, err = MutationFor(models.ResourceVariant, models.BulkFindReplace)
	assert.Error(t, err)
}
