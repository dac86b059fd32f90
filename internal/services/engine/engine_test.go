package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/common"
	"github.com/ternarybob/tagforge/internal/models"
	"github.com/ternarybob/tagforge/internal/services/logs"
	badgerstore "github.com/ternarybob/tagforge/internal/storage/badger"
)

func setupEngine(t *testing.T) (*Service, *fakeAdminClient, *logs.Service, func(*models.Recipe)) {
	t.Helper()
	logger := arbor.NewLogger()
	storage, err := badgerstore.NewManager(logger, &common.BadgerConfig{Path: t.TempDir() + "/db"})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	client := &fakeAdminClient{}
	logSvc := logs.NewService(storage.LogStorage(), logger)
	svc := NewService(storage.RecipeStorage(), NewExecutor(client, logger), logSvc, logger)

	saveRecipe := func(r *models.Recipe) {
		require.NoError(t, storage.RecipeStorage().Save(context.Background(), r))
	}
	return svc, client, logSvc, saveRecipe
}

func customerEvent(shop string, payload string) models.WebhookEvent {
	return models.WebhookEvent{
		Topic:      "customers/update",
		Shop:       shop,
		Payload:    []byte(payload),
		ReceivedAt: time.Now(),
	}
}

func TestHandleEvent_MatchingRecipeExecutesActions(t *testing.T) {
	svc, client, logSvc, save := setupEngine(t)
	ctx := context.Background()

	save(&models.Recipe{
		ID:       "r1",
		Shop:     "shop.myshopify.com",
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
	})

	event := customerEvent("shop.myshopify.com",
		`{"admin_graphql_api_id":"gid://shopify/Customer/1","total_spent":"1500.00"}`)

	summary, err := svc.HandleEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RecipesEvaluated)
	assert.Equal(t, 1, summary.RecipesMatched)
	assert.Equal(t, 1, summary.ActionsExecuted)
	assert.Empty(t, summary.Errors)
	assert.Equal(t, []string{"add:VIP"}, client.calls)

	// Both the evaluation and the execution leave audit records.
	record, err := logSvc.Get(ctx, "shop.myshopify.com", "recipe_r1_gid://shopify/Customer/1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.LogStatusSuccess, record.Status)
	assert.Len(t, record.Details, 2)
}

func TestHandleEvent_NonMatchingRecipeSkipsExecution(t *testing.T) {
	svc, client, _, save := setupEngine(t)

	save(&models.Recipe{
		ID:       "r1",
		Shop:     "shop.myshopify.com",
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
	})

	event := customerEvent("shop.myshopify.com",
		`{"admin_graphql_api_id":"gid://shopify/Customer/1","total_spent":"12.00"}`)

	summary, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RecipesEvaluated)
	assert.Zero(t, summary.RecipesMatched)
	assert.Zero(t, summary.ActionsExecuted)
	assert.Empty(t, client.calls)
}

func TestHandleEvent_FailingRecipeDoesNotStopOthers(t *testing.T) {
	svc, client, _, save := setupEngine(t)
	client.failTags = map[string]error{"broken": assert.AnError}

	base := models.Recipe{
		Shop:     "shop.myshopify.com",
		Category: models.CategoryCustomer,
		Enabled:  true,
		Trigger:  models.Trigger{Event: "customers/update"},
		Conditions: []models.Condition{
			{Field: "email", Operator: models.OperatorExists},
		},
	}

	failing := base
	failing.ID = "r-fail"
	failing.Title = "Failing recipe"
	failing.Actions = []models.Action{{Type: models.ActionAddTag, Tag: "broken"}}
	save(&failing)

	working := base
	working.ID = "r-ok"
	working.Title = "Working recipe"
	working.Actions = []models.Action{{Type: models.ActionAddTag, Tag: "fine"}}
	save(&working)

	event := customerEvent("shop.myshopify.com",
		`{"admin_graphql_api_id":"gid://shopify/Customer/1","email":"a@b.com"}`)

	summary, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.RecipesEvaluated)
	assert.Equal(t, 2, summary.RecipesMatched)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "Failing recipe")
	assert.Contains(t, client.calls, "add:fine")
}

func TestHandleEvent_MissingResourceIDIsRecipeFailure(t *testing.T) {
	svc, client, _, save := setupEngine(t)

	save(&models.Recipe{
		ID:       "r1",
		Shop:     "shop.myshopify.com",
		Title:    "Needs an id",
		Category: models.CategoryCustomer,
		Enabled:  true,
		Trigger:  models.Trigger{Event: "customers/update"},
		Conditions: []models.Condition{
			{Field: "email", Operator: models.OperatorExists},
		},
		Actions: []models.Action{{Type: models.ActionAddTag, Tag: "VIP"}},
	})

	summary, err := svc.HandleEvent(context.Background(),
		customerEvent("shop.myshopify.com", `{"email":"a@b.com"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RecipesMatched)
	assert.Zero(t, summary.ActionsExecuted)
	require.Len(t, summary.Errors, 1)
	assert.Empty(t, client.calls)
}

func TestHandleEvent_NoRecipesIsQuietSuccess(t *testing.T) {
	svc, _, _, _ := setupEngine(t)

	summary, err := svc.HandleEvent(context.Background(),
		customerEvent("shop.myshopify.com", `{"id":1}`))
	require.NoError(t, err)
	assert.Zero(t, summary.RecipesEvaluated)
}

func TestPreview_DoesNotTouchStatsOrLogs(t *testing.T) {
	svc, client, logSvc, _ := setupEngine(t)

	recipe := &models.Recipe{
		ID:      "r1",
		Shop:    "shop.myshopify.com",
		Title:   "Preview",
		Trigger: models.Trigger{Event: "customers/update"},
		Conditions: []models.Condition{
			{Field: "email", Operator: models.OperatorExists},
		},
		Actions: []models.Action{{Type: models.ActionAddTag, Tag: "VIP"}},
	}

	eval := svc.Preview(context.Background(), recipe, []byte(`{"email":"a@b.com"}`))
	assert.True(t, eval.Matches)
	assert.Empty(t, client.calls)

	logsList, err := logSvc.List(context.Background(), "shop.myshopify.com", 0)
	require.NoError(t, err)
	assert.Empty(t, logsList)
}

func TestResourceTypeForTopic(t *testing.T) {
	assert.Equal(t, models.ResourceCustomer, ResourceTypeForTopic("customers/update"))
	assert.Equal(t, models.ResourceOrder, ResourceTypeForTopic("orders/create"))
	assert.Equal(t, models.ResourceProduct, ResourceTypeForTopic("products/update"))
	assert.Equal(t, models.ResourceProduct, ResourceTypeForTopic("carts/update"))
}

func TestExtractResourceID(t *testing.T) {
	assert.Equal(t, "gid://shopify/Customer/1",
		ExtractResourceID([]byte(`{"admin_graphql_api_id":"gid://shopify/Customer/1","id":1}`)))
	assert.Equal(t, "42", ExtractResourceID([]byte(`{"id":42}`)))
	assert.Empty(t, ExtractResourceID([]byte(`{"email":"a@b.com"}`)))
}
