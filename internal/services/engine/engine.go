package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/interfaces"
	"github.com/ternarybob/tagforge/internal/models"
	"github.com/ternarybob/tagforge/internal/services/logs"
	"github.com/tidwall/gjson"
)

// Service orchestrates recipe evaluation and execution for inbound
// webhook events.
type Service struct {
	recipes  interfaces.RecipeStorage
	executor *Executor
	logs     *logs.Service
	logger   arbor.ILogger
}

// NewService creates a new recipe engine.
func NewService(recipes interfaces.RecipeStorage, executor *Executor, logService *logs.Service, logger arbor.ILogger) *Service {
	return &Service{
		recipes:  recipes,
		executor: executor,
		logs:     logService,
		logger:   logger,
	}
}

// HandleEvent runs every enabled recipe for (shop, topic) against the
// event payload. Recipes are isolated: one recipe failing never stops
// the others; failures accumulate into the summary.
func (s *Service) HandleEvent(ctx context.Context, event models.WebhookEvent) (*interfaces.EngineSummary, error) {
	candidates, err := s.recipes.ListEnabledForEvent(ctx, event.Shop, event.Topic)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recipes for %s/%s: %w", event.Shop, event.Topic, err)
	}

	summary := &interfaces.EngineSummary{}

	for i := range candidates {
		recipe := &candidates[i]
		if err := s.runRecipe(ctx, recipe, event, summary); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", recipe.Title, err))
			s.logger.Warn().
				Err(err).
				Str("shop", event.Shop).
				Str("recipe_id", recipe.ID).
				Msg("Recipe execution failed")
		}
	}

	s.logger.Info().
		Str("shop", event.Shop).
		Str("topic", event.Topic).
		Int("evaluated", summary.RecipesEvaluated).
		Int("matched", summary.RecipesMatched).
		Int("actions", summary.ActionsExecuted).
		Msg("Webhook event processed")

	return summary, nil
}

func (s *Service) runRecipe(ctx context.Context, recipe *models.Recipe, event models.WebhookEvent, summary *interfaces.EngineSummary) error {
	summary.RecipesEvaluated++

	eval := Evaluate(event.Payload, recipe.Conditions)

	resourceID := ExtractResourceID(event.Payload)
	resourceType := ResourceTypeForTopic(event.Topic)

	// Evaluation is always logged; execution only on match.
	evalMsg := fmt.Sprintf("Recipe %q evaluated: matched=%t (%d conditions)", recipe.Title, eval.Matches, len(recipe.Conditions))
	if err := s.logs.Record(ctx, logs.Entry{
		Shop:         event.Shop,
		JobID:        "recipe_" + recipe.ID + "_" + resourceID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Action:       "recipe_evaluation",
		Status:       models.LogStatusSuccess,
		Message:      evalMsg,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to record evaluation log")
	}

	if !eval.Matches {
		return nil
	}

	summary.RecipesMatched++

	if resourceID == "" {
		if err := s.recipes.IncrementStats(ctx, recipe.ID, false); err != nil {
			s.logger.Warn().Err(err).Str("recipe_id", recipe.ID).Msg("Failed to increment recipe stats")
		}
		return fmt.Errorf("payload carries no resource id")
	}

	results := s.executor.Execute(ctx, event.Shop, resourceID, recipe.Actions)
	summary.ActionsExecuted += len(results)

	allOK := AllSucceeded(results)
	if err := s.recipes.IncrementStats(ctx, recipe.ID, allOK); err != nil {
		s.logger.Warn().Err(err).Str("recipe_id", recipe.ID).Msg("Failed to increment recipe stats")
	}

	status := models.LogStatusSuccess
	if !allOK {
		status = models.LogStatusPartial
		if failedAll(results) {
			status = models.LogStatusFailed
		}
	}

	if err := s.logs.Record(ctx, logs.Entry{
		Shop:         event.Shop,
		JobID:        "recipe_" + recipe.ID + "_" + resourceID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Action:       "recipe_execution",
		Status:       status,
		Message:      executionMessage(recipe, results),
	}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to record execution log")
	}

	if !allOK {
		return fmt.Errorf("%d of %d actions failed", failureCount(results), len(results))
	}
	return nil
}

// Preview evaluates a recipe against a payload without executing
// actions, touching stats, or persisting audit records. Safe to expose
// from a debug surface.
func (s *Service) Preview(ctx context.Context, recipe *models.Recipe, payload []byte) Evaluation {
	return Evaluate(payload, recipe.Conditions)
}

func executionMessage(recipe *models.Recipe, results []ActionResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if r.Success {
			parts = append(parts, fmt.Sprintf("%s ok", r.Action.Type))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed: %s", r.Action.Type, r.Error))
		}
	}
	return fmt.Sprintf("Recipe %q executed: %s", recipe.Title, strings.Join(parts, ", "))
}

func failureCount(results []ActionResult) int {
	n := 0
	for _, r := range results {
		if !r.Success {
			n++
		}
	}
	return n
}

func failedAll(results []ActionResult) bool {
	return failureCount(results) == len(results) && len(results) > 0
}

// ExtractResourceID pulls the GraphQL resource ID from a webhook
// payload. Deliveries carry admin_graphql_api_id; the numeric id is the
// fallback.
func ExtractResourceID(payload []byte) string {
	if gid := gjson.GetBytes(payload, "admin_graphql_api_id"); gid.Exists() {
		return gid.String()
	}
	if id := gjson.GetBytes(payload, "id"); id.Exists() {
		return id.String()
	}
	return ""
}

// ResourceTypeForTopic maps the topic's resource segment to a resource
// type, defaulting to product for unrecognized topics.
func ResourceTypeForTopic(topic string) models.ResourceType {
	resource, _, _ := strings.Cut(topic, "/")
	switch resource {
	case "customers":
		return models.ResourceCustomer
	case "orders":
		return models.ResourceOrder
	case "products":
		return models.ResourceProduct
	default:
		return models.ResourceProduct
	}
}
