package interfaces

import (
	"context"

	"github.com/ternarybob/tagforge/internal/models"
)

// UserError is a structured, user-facing error returned in-band by the
// Admin API. These are action failures, not transport errors.
type UserError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// AdminClient executes single-resource mutations against the Shopify
// Admin GraphQL API. Each call maps to exactly one mutation; userErrors
// returned by the API come back as values, not as a Go error.
type AdminClient interface {
	TagsAdd(ctx context.Context, shop, resourceID string, tags []string) ([]UserError, error)
	TagsRemove(ctx context.Context, shop, resourceID string, tags []string) ([]UserError, error)
	MetafieldSet(ctx context.Context, shop, resourceID, namespace, key, value, valueType string) ([]UserError, error)
	MetafieldRemove(ctx context.Context, shop, resourceID, namespace, key string) ([]UserError, error)
}

// BulkOperationStatus is the lifecycle state reported by the platform
// for an asynchronous bulk operation.
type BulkOperationStatus string

const (
	BulkStatusCreated   BulkOperationStatus = "CREATED"
	BulkStatusRunning   BulkOperationStatus = "RUNNING"
	BulkStatusCompleted BulkOperationStatus = "COMPLETED"
	BulkStatusFailed    BulkOperationStatus = "FAILED"
	BulkStatusCanceled  BulkOperationStatus = "CANCELED"
)

// BulkOperationState is a poll snapshot. A COMPLETED operation with
// ObjectCount == 0 has no URL; callers must treat that as an empty
// result set, not a missing one.
type BulkOperationState struct {
	ID          string
	Status      BulkOperationStatus
	URL         string
	ObjectCount int64
	ErrorCode   string
}

// StagedUploadTarget is the two-phase upload destination for bulk
// mutation input files.
type StagedUploadTarget struct {
	URL        string
	Key        string
	Parameters map[string]string
}

// BulkClient wraps the platform's Bulk Operation API. Polling is the
// caller's responsibility; no method blocks on operation completion.
type BulkClient interface {
	RunBulkQuery(ctx context.Context, shop, query string) (string, error)
	RunBulkMutation(ctx context.Context, shop, mutation, stagedUploadKey string) (string, error)
	PollBulkOperation(ctx context.Context, shop, operationID string) (*BulkOperationState, error)
	StagedUpload(ctx context.Context, shop, filename string, contents []byte) (*StagedUploadTarget, error)
	DownloadResult(ctx context.Context, url string) ([]byte, error)
}

// RecipeEngine evaluates and executes recipes for inbound events.
type RecipeEngine interface {
	HandleEvent(ctx context.Context, event models.WebhookEvent) (*EngineSummary, error)
}

// EngineSummary accumulates the outcome of one event dispatch across
// all candidate recipes.
type EngineSummary struct {
	RecipesEvaluated int      `json:"recipes_evaluated"`
	RecipesMatched   int      `json:"recipes_matched"`
	ActionsExecuted  int      `json:"actions_executed"`
	Errors           []string `json:"errors,omitempty"`
}
