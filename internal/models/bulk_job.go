package models

import (
	"fmt"
	"time"
)

// JobStep is the persisted position of a bulk job's state machine.
// Transitions are strictly forward per resource-type pass; a job loops
// back to StepInit when it advances to the next resource type.
type JobStep string

const (
	StepInit            JobStep = "init"
	StepPollingQuery    JobStep = "polling_query"
	StepProcessing      JobStep = "processing"
	StepPollingMutation JobStep = "polling_mutation"
	StepDone            JobStep = "done"
	StepFailed          JobStep = "failed"
)

// BulkOperationType identifies the tag transform a bulk job performs.
type BulkOperationType string

const (
	BulkFindReplace BulkOperationType = "find_replace"
	BulkAddTags     BulkOperationType = "add_tags"
	BulkRemoveTags  BulkOperationType = "remove_tags"
	BulkCleanup     BulkOperationType = "cleanup"
	BulkCostUpdate  BulkOperationType = "cost_update"
	BulkRevert      BulkOperationType = "revert"
)

// ValidBulkOperations is the closed set of operations a caller may
// start directly. Reverts are excluded: they enter through the backup
// path under their own lineage.
var ValidBulkOperations = map[BulkOperationType]bool{
	BulkFindReplace: true,
	BulkAddTags:     true,
	BulkRemoveTags:  true,
	BulkCleanup:     true,
	BulkCostUpdate:  true,
}

// BulkParams carries the operation-specific inputs. Only the fields
// relevant to the operation type are set.
type BulkParams struct {
	Find     string   `json:"find,omitempty"`
	Replace  string   `json:"replace,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	KeepTags []string `json:"keep_tags,omitempty"`
	NewCost  string   `json:"new_cost,omitempty"`
	BackupID string   `json:"backup_id,omitempty"`
}

// BulkJob is the single durable record for one logical bulk operation
// lineage. Every field a step handler needs to resume after a crash is
// carried here; step handlers hold no state of their own.
type BulkJob struct {
	ID            string            `json:"id" badgerhold:"key"`
	JobID         string            `json:"job_id" badgerholdIndex:"JobID"`
	Shop          string            `json:"shop" badgerholdIndex:"Shop"`
	Operation     BulkOperationType `json:"operation"`
	Params        BulkParams        `json:"params"`
	Step          JobStep           `json:"step"`
	ResourceTypes []ResourceType    `json:"resource_types"`
	ResourceIndex int               `json:"resource_index"`
	OperationID   string            `json:"operation_id,omitempty"`
	ResultURL     string            `json:"result_url,omitempty"`
	MutationOpID  string            `json:"mutation_op_id,omitempty"`
	ChangeCount   int               `json:"change_count"`
	TotalChanged  int               `json:"total_changed"`
	Error         string            `json:"error,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// CurrentResource returns the resource type for the active pass.
func (j *BulkJob) CurrentResource() (ResourceType, error) {
	if j.ResourceIndex < 0 || j.ResourceIndex >= len(j.ResourceTypes) {
		return "", fmt.Errorf("resource index %d out of range (%d types)", j.ResourceIndex, len(j.ResourceTypes))
	}
	return j.ResourceTypes[j.ResourceIndex], nil
}

// HasMoreResources reports whether another resource-type pass follows
// the current one.
func (j *BulkJob) HasMoreResources() bool {
	return j.ResourceIndex+1 < len(j.ResourceTypes)
}

// Terminal reports whether the job has reached a final state.
func (j *BulkJob) Terminal() bool {
	return j.Step == StepDone || j.Step == StepFailed
}
