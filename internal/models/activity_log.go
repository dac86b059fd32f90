package models

import "time"

// LogStatus is the lifecycle state of an automation log record.
type LogStatus string

const (
	LogStatusPending LogStatus = "Pending"
	LogStatusSuccess LogStatus = "Success"
	LogStatusFailed  LogStatus = "Failed"
	LogStatusPartial LogStatus = "Partial"
)

// LogDetail is a single timestamped message on a log record. Details
// are append-only; a record accumulates one per status change or step.
type LogDetail struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// AutomationLog is the audit record for one logical operation. There is
// exactly one record per (shop, job id) lineage regardless of how many
// internal steps the operation took.
type AutomationLog struct {
	ID           string       `json:"id" badgerhold:"key"`
	Shop         string       `json:"shop" badgerholdIndex:"Shop"`
	JobID        string       `json:"job_id" badgerholdIndex:"JobID"`
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   string       `json:"resource_id,omitempty"`
	Action       string       `json:"action"`
	Category     string       `json:"category"`
	Details      []LogDetail  `json:"details"`
	Status       LogStatus    `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// actionCategories maps action names to display categories. The mapping
// is data, not string matching, so adding an action is a one-place
// change and the fallback is explicit.
var actionCategories = map[string]string{
	"recipe_execution":  "Automation",
	"recipe_evaluation": "Automation",
	"metafield_rule":    "Automation",
	"tagging_rule":      "Automation",
	"bulk_find_replace": "Bulk Operations",
	"bulk_add_tags":     "Bulk Operations",
	"bulk_remove_tags":  "Bulk Operations",
	"bulk_cost_update":  "Bulk Operations",
	"bulk_cleanup":      "Maintenance",
	"bulk_revert":       "Backup",
	"retention_purge":   "Maintenance",
}

// DefaultCategory is used for action names with no explicit mapping.
const DefaultCategory = "System"

// CategoryForAction resolves the display category for an action name.
func CategoryForAction(action string) string {
	if c, ok := actionCategories[action]; ok {
		return c
	}
	return DefaultCategory
}

// ActionForOperation maps a bulk operation type to its log action name.
func ActionForOperation(op BulkOperationType) string {
	switch op {
	case BulkFindReplace:
		return "bulk_find_replace"
	case BulkAddTags:
		return "bulk_add_tags"
	case BulkRemoveTags:
		return "bulk_remove_tags"
	case BulkCleanup:
		return "bulk_cleanup"
	case BulkCostUpdate:
		return "bulk_cost_update"
	case BulkRevert:
		return "bulk_revert"
	default:
		return string(op)
	}
}
