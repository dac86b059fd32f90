package models

import "time"

// BackupItem is the pre-mutation state of a single resource.
type BackupItem struct {
	ResourceID   string   `json:"resource_id"`
	OriginalTags []string `json:"original_tags"`
}

// Backup snapshots the prior state of every resource a destructive bulk
// mutation is about to touch. Written exactly once per resource-type
// pass of a job lineage, before the mutation is submitted, and used to
// build the compensating revert mutation.
type Backup struct {
	ID           string       `json:"id" badgerhold:"key"`
	Shop         string       `json:"shop" badgerholdIndex:"Shop"`
	JobID        string       `json:"job_id" badgerholdIndex:"JobID"`
	ResourceType ResourceType `json:"resource_type"`
	Items        []BackupItem `json:"items"`
	CreatedAt    time.Time    `json:"created_at"`
}
