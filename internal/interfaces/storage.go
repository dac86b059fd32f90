package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/tagforge/internal/models"
)

// RecipeStorage persists shop automation recipes.
type RecipeStorage interface {
	Save(ctx context.Context, recipe *models.Recipe) error
	Get(ctx context.Context, id string) (*models.Recipe, error)
	List(ctx context.Context, shop string) ([]models.Recipe, error)
	ListEnabledForEvent(ctx context.Context, shop, event string) ([]models.Recipe, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	// IncrementStats atomically advances execution counters for one
	// matched run. Execution count always increments; exactly one of
	// success/error increments depending on allSucceeded.
	IncrementStats(ctx context.Context, id string, allSucceeded bool) error
	Delete(ctx context.Context, id string) error
}

// RuleStorage persists metafield and tagging rules.
type RuleStorage interface {
	SaveMetafieldRule(ctx context.Context, rule *models.MetafieldRule) error
	GetMetafieldRule(ctx context.Context, id string) (*models.MetafieldRule, error)
	ListMetafieldRules(ctx context.Context, shop string, resourceType models.ResourceType) ([]models.MetafieldRule, error)
	DeleteMetafieldRule(ctx context.Context, id string) error

	SaveTaggingRule(ctx context.Context, rule *models.TaggingRule) error
	GetTaggingRule(ctx context.Context, id string) (*models.TaggingRule, error)
	ListTaggingRules(ctx context.Context, shop string, resourceType models.ResourceType) ([]models.TaggingRule, error)
	DeleteTaggingRule(ctx context.Context, id string) error
}

// LogStorage persists automation audit records.
type LogStorage interface {
	Upsert(ctx context.Context, log *models.AutomationLog) error
	GetByJobID(ctx context.Context, shop, jobID string) (*models.AutomationLog, error)
	List(ctx context.Context, shop string, limit int) ([]models.AutomationLog, error)
	ListByResource(ctx context.Context, shop string, resourceType models.ResourceType, resourceID string, limit int) ([]models.AutomationLog, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// BackupStorage persists pre-mutation snapshots.
type BackupStorage interface {
	Save(ctx context.Context, backup *models.Backup) error
	Get(ctx context.Context, id string) (*models.Backup, error)
	GetByJobID(ctx context.Context, shop, jobID string) (*models.Backup, error)
	GetByJobResource(ctx context.Context, shop, jobID string, resourceType models.ResourceType) (*models.Backup, error)
	List(ctx context.Context, shop string, limit int) ([]models.Backup, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// UsageStorage tracks monthly operation counts per shop.
type UsageStorage interface {
	// Increment atomically adds n to the shop's counter for month,
	// creating the record if absent.
	Increment(ctx context.Context, shop, month string, n int64, operation string) error
	Get(ctx context.Context, shop, month string) (*models.Usage, error)
}

// JobStorage persists durable bulk job records.
type JobStorage interface {
	Save(ctx context.Context, job *models.BulkJob) error
	Get(ctx context.Context, id string) (*models.BulkJob, error)
	GetByJobID(ctx context.Context, jobID string) (*models.BulkJob, error)
	List(ctx context.Context, shop string, limit int) ([]models.BulkJob, error)
}

// StorageManager aggregates all entity storages over one database.
type StorageManager interface {
	RecipeStorage() RecipeStorage
	RuleStorage() RuleStorage
	LogStorage() LogStorage
	BackupStorage() BackupStorage
	UsageStorage() UsageStorage
	JobStorage() JobStorage
	Close() error
}
