package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a caller-visible job lineage ID.
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewRevertJobID generates a synthetic lineage ID for a revert job.
func NewRevertJobID() string {
	return "revert_" + uuid.New().String()
}

// NewRecipeID generates a recipe ID.
func NewRecipeID() string {
	return "recipe_" + uuid.New().String()
}

// NewRuleID generates a rule ID.
func NewRuleID() string {
	return "rule_" + uuid.New().String()
}

// NewLogID generates an automation log record ID.
func NewLogID() string {
	return "log_" + uuid.New().String()
}

// NewBackupID generates a backup snapshot ID.
func NewBackupID() string {
	return "backup_" + uuid.New().String()
}
