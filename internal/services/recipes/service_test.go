package recipes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/common"
	"github.com/ternarybob/tagforge/internal/models"
	badgerstore "github.com/ternarybob/tagforge/internal/storage/badger"
)

const testShop = "recipes.myshopify.com"

func setupService(t *testing.T) *Service {
	t.Helper()
	logger := arbor.NewLogger()
	storage, err := badgerstore.NewManager(logger, &common.BadgerConfig{Path: t.TempDir() + "/db"})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	return NewService(storage.RecipeStorage(), logger)
}

func validRecipe() *models.Recipe {
	return &models.Recipe{
		Shop:     testShop,
		Title:    "Tag big spenders",
		Category: models.CategoryCustomer,
		Enabled:  true,
		Trigger:  models.Trigger{Event: "customers/update"},
		Conditions: []models.Condition{
			{Field: "total_spent", Operator: models.OperatorGreaterThan, Value: "1000"},
		},
		Actions: []models.Action{
			{Type: models.ActionAddTag, Tag: "VIP"},
		},
	}
}

func TestCreate_AssignsIdentityAndResetsStats(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	recipe := validRecipe()
	recipe.ID = "caller-supplied"
	recipe.Stats = models.RecipeStats{ExecutionCount: 99}

	require.NoError(t, svc.Create(ctx, recipe))

	assert.NotEqual(t, "caller-supplied", recipe.ID)
	assert.Zero(t, recipe.Stats.ExecutionCount)
	assert.False(t, recipe.CreatedAt.IsZero())

	stored, err := svc.Get(ctx, testShop, recipe.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tag big spenders", stored.Title)
}

func TestCreate_RejectsInvalidTriggerEvent(t *testing.T) {
	svc := setupService(t)

	recipe := validRecipe()
	recipe.Trigger.Event = "not-an-event"
	assert.Error(t, svc.Create(context.Background(), recipe))
}

func TestCreate_RejectsEnabledRecipeWithoutActions(t *testing.T) {
	svc := setupService(t)

	recipe := validRecipe()
	recipe.Actions = nil
	assert.Error(t, svc.Create(context.Background(), recipe))
}

func TestUpdate_PreservesStatsAndOwnership(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	recipe := validRecipe()
	require.NoError(t, svc.Create(ctx, recipe))

	// Simulate accumulated executions.
	changed := *recipe
	changed.Title = "Tag loyal customers"
	changed.Stats = models.RecipeStats{ExecutionCount: 123}
	require.NoError(t, svc.Update(ctx, &changed))

	stored, err := svc.Get(ctx, testShop, recipe.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tag loyal customers", stored.Title)
	assert.Equal(t, recipe.Stats.ExecutionCount, stored.Stats.ExecutionCount)

	// A recipe cannot be moved to a different shop.
	foreign := *recipe
	foreign.Shop = "other.myshopify.com"
	assert.Error(t, svc.Update(ctx, &foreign))
}

func TestGet_WrongShopIsNotFound(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	recipe := validRecipe()
	require.NoError(t, svc.Create(ctx, recipe))

	_, err := svc.Get(ctx, "other.myshopify.com", recipe.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetEnabled_DraftCannotBeEnabled(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	draft := validRecipe()
	draft.Enabled = false
	draft.Conditions = nil
	draft.Actions = nil
	require.NoError(t, svc.Create(ctx, draft))

	err := svc.SetEnabled(ctx, testShop, draft.ID, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot enable recipe")

	// Disabling needs no validation.
	complete := validRecipe()
	require.NoError(t, svc.Create(ctx, complete))
	require.NoError(t, svc.SetEnabled(ctx, testShop, complete.ID, false))

	stored, err := svc.Get(ctx, testShop, complete.ID)
	require.NoError(t, err)
	assert.False(t, stored.Enabled)
}

func TestDelete_ScopedToShop(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	recipe := validRecipe()
	require.NoError(t, svc.Create(ctx, recipe))

	assert.ErrorIs(t, svc.Delete(ctx, "other.myshopify.com", recipe.ID), ErrNotFound)
	require.NoError(t, svc.Delete(ctx, testShop, recipe.ID))

	_, err := svc.Get(ctx, testShop, recipe.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseJSON_AcceptsWellFormedDocument(t *testing.T) {
	svc := setupService(t)

	doc := []byte(`{
		"title": "Flag rush orders",
		"category": "order",
		"enabled": true,
		"trigger": {"event": "orders/create"},
		"conditions": [
			{"field": "total_price", "operator": "greater_than", "value": "500"}
		],
		"actions": [
			{"type": "add_tag", "tag": "rush"}
		]
	}`)

	recipe, err := svc.ParseJSON(testShop, doc)
	require.NoError(t, err)
	assert.Equal(t, testShop, recipe.Shop)
	assert.Equal(t, "Flag rush orders", recipe.Title)
	require.Len(t, recipe.Conditions, 1)
	assert.Equal(t, models.OperatorGreaterThan, recipe.Conditions[0].Operator)
}

func TestParseJSON_RejectsUnknownFields(t *testing.T) {
	svc := setupService(t)

	doc := []byte(`{
		"title": "Typo recipe",
		"category": "order",
		"trigger": {"event": "orders/create"},
		"condtions": []
	}`)

	_, err := svc.ParseJSON(testShop, doc)
	assert.Error(t, err)
}

func TestParseJSON_RejectsUnknownOperator(t *testing.T) {
	svc := setupService(t)

	doc := []byte(`{
		"title": "Bad operator",
		"category": "order",
		"enabled": true,
		"trigger": {"event": "orders/create"},
		"conditions": [
			{"field": "total_price", "operator": "roughly", "value": "500"}
		],
		"actions": [
			{"type": "add_tag", "tag": "rush"}
		]
	}`)

	_, err := svc.ParseJSON(testShop, doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operator")
}

func TestParseJSON_IgnoresCallerShopField(t *testing.T) {
	svc := setupService(t)

	doc := []byte(`{
		"shop": "sneaky.myshopify.com",
		"title": "Shop override attempt",
		"category": "order",
		"trigger": {"event": "orders/create"}
	}`)

	recipe, err := svc.ParseJSON(testShop, doc)
	require.NoError(t, err)
	assert.Equal(t, testShop, recipe.Shop)
}
