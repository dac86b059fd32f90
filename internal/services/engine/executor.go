package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/interfaces"
	"github.com/ternarybob/tagforge/internal/models"
)

// ActionResult is the outcome of one executed action.
type ActionResult struct {
	Action   models.Action `json:"action"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ms"`
}

// actionFunc performs one mutation and returns its in-band user errors.
type actionFunc func(ctx context.Context, client interfaces.AdminClient, shop, resourceID string, action models.Action) ([]interfaces.UserError, error)

// actionDispatch is the single table mapping action kinds to their
// mutation calls. Adding an action kind is a one-place change here
// plus the models table.
var actionDispatch = map[models.ActionType]actionFunc{
	models.ActionAddTag: func(ctx context.Context, client interfaces.AdminClient, shop, resourceID string, a models.Action) ([]interfaces.UserError, error) {
		return client.TagsAdd(ctx, shop, resourceID, []string{a.Tag})
	},
	models.ActionRemoveTag: func(ctx context.Context, client interfaces.AdminClient, shop, resourceID string, a models.Action) ([]interfaces.UserError, error) {
		return client.TagsRemove(ctx, shop, resourceID, []string{a.Tag})
	},
	models.ActionSetMetafield: func(ctx context.Context, client interfaces.AdminClient, shop, resourceID string, a models.Action) ([]interfaces.UserError, error) {
		return client.MetafieldSet(ctx, shop, resourceID, a.Namespace, a.Key, a.Value, a.ValueType)
	},
	models.ActionRemoveMetafield: func(ctx context.Context, client interfaces.AdminClient, shop, resourceID string, a models.Action) ([]interfaces.UserError, error) {
		return client.MetafieldRemove(ctx, shop, resourceID, a.Namespace, a.Key)
	},
}

// Executor runs recipe actions against the Admin API.
type Executor struct {
	client interfaces.AdminClient
	logger arbor.ILogger
}

// NewExecutor creates a new action executor.
func NewExecutor(client interfaces.AdminClient, logger arbor.ILogger) *Executor {
	return &Executor{
		client: client,
		logger: logger,
	}
}

// Execute runs every action in order. A failing action never aborts the
// ones after it; transport errors and API userErrors both land in the
// per-action result rather than as a returned error.
func (e *Executor) Execute(ctx context.Context, shop, resourceID string, actions []models.Action) []ActionResult {
	results := make([]ActionResult, 0, len(actions))

	for _, action := range actions {
		start := time.Now()
		result := ActionResult{Action: action}

		fn, ok := actionDispatch[action.Type]
		if !ok {
			result.Error = fmt.Sprintf("unknown action type %q", action.Type)
			result.Duration = time.Since(start)
			results = append(results, result)
			continue
		}

		userErrors, err := fn(ctx, e.client, shop, resourceID, action)
		result.Duration = time.Since(start)

		switch {
		case err != nil:
			result.Error = err.Error()
		case len(userErrors) > 0:
			msgs := make([]string, 0, len(userErrors))
			for _, ue := range userErrors {
				msgs = append(msgs, ue.Message)
			}
			result.Error = strings.Join(msgs, "; ")
		default:
			result.Success = true
		}

		if !result.Success {
			e.logger.Warn().
				Str("shop", shop).
				Str("resource_id", resourceID).
				Str("action_type", string(action.Type)).
				Str("error", result.Error).
				Msg("Action failed")
		}

		results = append(results, result)
	}

	return results
}

// AllSucceeded reports whether every action in a result list succeeded.
func AllSucceeded(results []ActionResult) bool {
	for _, r := range results {
		if !r.Success {
			return false
		}
	}
	return true
}
