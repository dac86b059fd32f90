package bulkops

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/common"
	"github.com/ternarybob/tagforge/internal/interfaces"
	"github.com/ternarybob/tagforge/internal/models"
	"github.com/ternarybob/tagforge/internal/services/backup"
	"github.com/ternarybob/tagforge/internal/services/logs"
	"github.com/ternarybob/tagforge/internal/services/usage"
)

// DefaultStepDelay is the fixed interval between poll attempts. Fixed,
// not exponential: bulk operations progress on the platform's clock.
const DefaultStepDelay = 5 * time.Second

// MaxDryRunPolls bounds synchronous preview polling. The durable
// workflow has no ceiling; previews must not hang a request forever.
const MaxDryRunPolls = 24

// Orchestrator drives multi-step bulk workflows as a resumable state
// machine. Each step handler loads the persisted job, performs at most
// one batch of external calls, persists the advanced job, and
// re-enqueues the continuation. All resume state lives on the job
// record; a crash between steps loses nothing.
type Orchestrator struct {
	jobs      interfaces.JobStorage
	bulk      interfaces.BulkClient
	backups   *backup.Service
	usage     *usage.Service
	logs      *logs.Service
	queue     interfaces.QueueManager
	stepDelay time.Duration
	logger    arbor.ILogger
}

// NewOrchestrator creates a new bulk operation orchestrator.
func NewOrchestrator(
	jobs interfaces.JobStorage,
	bulk interfaces.BulkClient,
	backups *backup.Service,
	usageSvc *usage.Service,
	logService *logs.Service,
	queueMgr interfaces.QueueManager,
	stepDelay time.Duration,
	logger arbor.ILogger,
) *Orchestrator {
	if stepDelay <= 0 {
		stepDelay = DefaultStepDelay
	}
	return &Orchestrator{
		jobs:      jobs,
		bulk:      bulk,
		backups:   backups,
		usage:     usageSvc,
		logs:      logService,
		queue:     queueMgr,
		stepDelay: stepDelay,
		logger:    logger,
	}
}

// StartOperation admits a new bulk operation: checks the shop's quota,
// persists the job at its initial step, opens the audit trail, and
// enqueues the first step.
func (o *Orchestrator) StartOperation(ctx context.Context, shop string, op models.BulkOperationType, params models.BulkParams, resourceTypes []models.ResourceType) (*models.BulkJob, error) {
	if !models.ValidBulkOperations[op] {
		return nil, fmt.Errorf("unsupported bulk operation %q", op)
	}
	if len(resourceTypes) == 0 {
		return nil, fmt.Errorf("bulk operation requires at least one resource type")
	}
	if err := o.usage.CheckQuota(ctx, shop); err != nil {
		return nil, err
	}

	job := &models.BulkJob{
		ID:            uuid.New().String(),
		JobID:         common.NewJobID(),
		Shop:          shop,
		Operation:     op,
		Params:        params,
		Step:          models.StepInit,
		ResourceTypes: resourceTypes,
	}
	if err := o.jobs.Save(ctx, job); err != nil {
		return nil, err
	}

	if err := o.logs.Record(ctx, logs.Entry{
		Shop:         shop,
		JobID:        job.JobID,
		ResourceType: resourceTypes[0],
		Action:       models.ActionForOperation(op),
		Status:       models.LogStatusPending,
		Message:      fmt.Sprintf("Bulk %s queued for %d resource type(s)", op, len(resourceTypes)),
	}); err != nil {
		o.logger.Warn().Err(err).Msg("Failed to open audit trail")
	}

	if err := o.enqueueStep(ctx, job, 0); err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("shop", shop).
		Str("job_id", job.JobID).
		Str("operation", string(op)).
		Msg("Bulk operation started")

	return job, nil
}

// HandleStep is the queue handler for bulk step messages. Any error it
// returns leaves the message in the queue for redelivery; terminal
// platform failures are absorbed after marking the job failed.
func (o *Orchestrator) HandleStep(ctx context.Context, msg *models.QueueMessage) error {
	job, err := o.jobs.GetByJobID(ctx, msg.JobID)
	if err != nil {
		return err
	}
	if job.Terminal() {
		// Stale continuation after a redelivered step; nothing to do.
		return nil
	}

	stepErr := o.advance(ctx, job)
	if stepErr != nil {
		// Record the failure on the cumulative trail, then propagate so
		// the queue's redelivery policy decides whether the step re-runs.
		if logErr := o.logs.Record(ctx, logs.Entry{
			Shop:    job.Shop,
			JobID:   job.JobID,
			Action:  models.ActionForOperation(job.Operation),
			Status:  models.LogStatusFailed,
			Message: fmt.Sprintf("Step %s failed: %v", job.Step, stepErr),
		}); logErr != nil {
			o.logger.Warn().Err(logErr).Msg("Failed to record step failure")
		}
	}
	return stepErr
}

func (o *Orchestrator) advance(ctx context.Context, job *models.BulkJob) error {
	switch job.Step {
	case models.StepInit:
		return o.stepInit(ctx, job)
	case models.StepPollingQuery:
		return o.stepPollingQuery(ctx, job)
	case models.StepProcessing:
		return o.stepProcessing(ctx, job)
	case models.StepPollingMutation:
		return o.stepPollingMutation(ctx, job)
	default:
		return fmt.Errorf("job %s in unexpected step %q", job.JobID, job.Step)
	}
}

func (o *Orchestrator) stepInit(ctx context.Context, job *models.BulkJob) error {
	resource, err := job.CurrentResource()
	if err != nil {
		return err
	}

	query, err := BulkQueryFor(resource, SearchQuery(job.Operation, job.Params))
	if err != nil {
		return err
	}

	opID, err := o.bulk.RunBulkQuery(ctx, job.Shop, query)
	if err != nil {
		return fmt.Errorf("failed to submit bulk query: %w", err)
	}

	job.OperationID = opID
	job.ResultURL = ""
	job.Step = models.StepPollingQuery
	if err := o.jobs.Save(ctx, job); err != nil {
		return err
	}

	o.record(ctx, job, resource, models.LogStatusPending,
		fmt.Sprintf("Bulk query submitted for %ss", resource))

	return o.enqueueStep(ctx, job, o.stepDelay)
}

func (o *Orchestrator) stepPollingQuery(ctx context.Context, job *models.BulkJob) error {
	resource, err := job.CurrentResource()
	if err != nil {
		return err
	}

	state, err := o.bulk.PollBulkOperation(ctx, job.Shop, job.OperationID)
	if err != nil {
		return fmt.Errorf("failed to poll bulk query: %w", err)
	}

	switch state.Status {
	case interfaces.BulkStatusCreated, interfaces.BulkStatusRunning:
		// Still working; same step, same fixed delay.
		return o.enqueueStep(ctx, job, o.stepDelay)

	case interfaces.BulkStatusCompleted:
		if state.URL == "" {
			// Completed with zero objects: nothing to process.
			return o.advanceResourceOrFinish(ctx, job,
				fmt.Sprintf("No matching %ss found", resource))
		}
		job.ResultURL = state.URL
		job.Step = models.StepProcessing
		if err := o.jobs.Save(ctx, job); err != nil {
			return err
		}
		return o.enqueueStep(ctx, job, 0)

	case interfaces.BulkStatusFailed, interfaces.BulkStatusCanceled:
		return o.fail(ctx, job, fmt.Sprintf("Bulk query %s: %s", state.Status, state.ErrorCode))

	default:
		return fmt.Errorf("unknown bulk operation status %q", state.Status)
	}
}

func (o *Orchestrator) stepProcessing(ctx context.Context, job *models.BulkJob) error {
	resource, err := job.CurrentResource()
	if err != nil {
		return err
	}

	data, err := o.bulk.DownloadResult(ctx, job.ResultURL)
	if err != nil {
		return fmt.Errorf("failed to download result file: %w", err)
	}

	rows, err := ParseRows(data, resource)
	if err != nil {
		return err
	}

	var fileContents []byte
	var changed int

	if job.Operation == models.BulkCostUpdate {
		targets := make([]Row, 0)
		for _, row := range rows {
			if !costEquals(row.Cost, job.Params.NewCost) {
				targets = append(targets, row)
			}
		}
		changed = len(targets)
		if changed > 0 {
			fileContents, err = BuildCostMutationJSONL(targets, job.Params.NewCost)
			if err != nil {
				return err
			}
		}
	} else {
		items := make([]models.BackupItem, 0)
		newTags := make(map[string][]string)
		for _, row := range rows {
			next, rowChanged := ApplyTransform(job.Operation, job.Params, row.Tags)
			if !rowChanged {
				continue
			}
			items = append(items, models.BackupItem{
				ResourceID:   row.ID,
				OriginalTags: row.Tags,
			})
			newTags[row.ID] = next
		}
		changed = len(items)
		if changed > 0 {
			// Snapshot exactly the changed rows before the mutation is
			// submitted. Snapshots are keyed per resource-type pass: a
			// redelivered processing step finds this pass's existing
			// snapshot and reuses it, while a later pass records its own.
			if _, err := o.backups.Snapshot(ctx, job.Shop, job.JobID, resource, items); err != nil {
				existing, getErr := o.backups.GetByJobResource(ctx, job.Shop, job.JobID, resource)
				if getErr != nil || existing == nil {
					return fmt.Errorf("failed to record backup: %w", err)
				}
			}
			fileContents, err = BuildTagMutationJSONL(items, newTags)
			if err != nil {
				return err
			}
		}
	}

	if changed == 0 {
		return o.advanceResourceOrFinish(ctx, job,
			fmt.Sprintf("All matching %ss already up to date", resource))
	}

	mutation, err := MutationFor(resource, job.Operation)
	if err != nil {
		return err
	}

	target, err := o.bulk.StagedUpload(ctx, job.Shop, fmt.Sprintf("%s-%s.jsonl", job.Operation, job.JobID), fileContents)
	if err != nil {
		return fmt.Errorf("failed to stage mutation file: %w", err)
	}

	mutOpID, err := o.bulk.RunBulkMutation(ctx, job.Shop, mutation, target.Key)
	if err != nil {
		return fmt.Errorf("failed to submit bulk mutation: %w", err)
	}

	job.MutationOpID = mutOpID
	job.ChangeCount = changed
	job.Step = models.StepPollingMutation
	if err := o.jobs.Save(ctx, job); err != nil {
		return err
	}

	o.record(ctx, job, resource, models.LogStatusPending,
		fmt.Sprintf("Mutation submitted for %d %s(s)", changed, resource))

	return o.enqueueStep(ctx, job, o.stepDelay)
}

func (o *Orchestrator) stepPollingMutation(ctx context.Context, job *models.BulkJob) error {
	resource, err := job.CurrentResource()
	if err != nil {
		return err
	}

	state, err := o.bulk.PollBulkOperation(ctx, job.Shop, job.MutationOpID)
	if err != nil {
		return fmt.Errorf("failed to poll bulk mutation: %w", err)
	}

	switch state.Status {
	case interfaces.BulkStatusCreated, interfaces.BulkStatusRunning:
		return o.enqueueStep(ctx, job, o.stepDelay)

	case interfaces.BulkStatusCompleted:
		// The job record has not advanced yet, so a redelivered step
		// re-polls the completed operation and retries the increment.
		if err := o.usage.Increment(ctx, job.Shop, int64(job.ChangeCount), string(job.Operation)); err != nil {
			return fmt.Errorf("failed to record usage: %w", err)
		}
		job.TotalChanged += job.ChangeCount
		return o.advanceResourceOrFinish(ctx, job,
			fmt.Sprintf("Updated %d %s(s)", job.ChangeCount, resource))

	case interfaces.BulkStatusFailed, interfaces.BulkStatusCanceled:
		return o.fail(ctx, job, fmt.Sprintf("Bulk mutation %s: %s", state.Status, state.ErrorCode))

	default:
		return fmt.Errorf("unknown bulk operation status %q", state.Status)
	}
}

// advanceResourceOrFinish loops the job back to init for the next
// resource type, or terminates it successfully.
func (o *Orchestrator) advanceResourceOrFinish(ctx context.Context, job *models.BulkJob, msg string) error {
	resource, _ := job.CurrentResource()
	if job.HasMoreResources() {
		job.ResourceIndex++
		job.Step = models.StepInit
		job.OperationID = ""
		job.MutationOpID = ""
		job.ResultURL = ""
		job.ChangeCount = 0
		if err := o.jobs.Save(ctx, job); err != nil {
			return err
		}
		o.record(ctx, job, resource, models.LogStatusPending, msg)
		return o.enqueueStep(ctx, job, 0)
	}

	job.Step = models.StepDone
	if err := o.jobs.Save(ctx, job); err != nil {
		return err
	}
	o.record(ctx, job, resource, models.LogStatusSuccess,
		fmt.Sprintf("%s. Operation complete: %d item(s) changed in total", msg, job.TotalChanged))

	o.logger.Info().
		Str("shop", job.Shop).
		Str("job_id", job.JobID).
		Int("total_changed", job.TotalChanged).
		Msg("Bulk operation completed")
	return nil
}

// fail marks a terminal platform failure. Not retried: the platform
// has already given its final answer for this operation.
func (o *Orchestrator) fail(ctx context.Context, job *models.BulkJob, reason string) error {
	resource, _ := job.CurrentResource()
	job.Step = models.StepFailed
	job.Error = reason
	if err := o.jobs.Save(ctx, job); err != nil {
		return err
	}
	o.record(ctx, job, resource, models.LogStatusFailed, reason)

	o.logger.Error().
		Str("shop", job.Shop).
		Str("job_id", job.JobID).
		Str("reason", reason).
		Msg("Bulk operation failed")
	return nil
}

// QueueRevert builds the compensating mutation from a backup snapshot
// and enters it into the pipeline at the mutation-polling step under a
// synthetic revert lineage. Revert reuses the existing polling machinery
// rather than duplicating it.
func (o *Orchestrator) QueueRevert(ctx context.Context, shop, backupID string) (*models.BulkJob, error) {
	snapshot, err := o.backups.Get(ctx, backupID)
	if err != nil {
		return nil, err
	}
	if snapshot.Shop != shop {
		return nil, fmt.Errorf("backup %s does not belong to shop %s", backupID, shop)
	}

	fileContents, err := BuildRestoreJSONL(snapshot)
	if err != nil {
		return nil, err
	}

	mutation, err := MutationFor(snapshot.ResourceType, models.BulkRevert)
	if err != nil {
		return nil, err
	}

	job := &models.BulkJob{
		ID:            uuid.New().String(),
		JobID:         common.NewRevertJobID(),
		Shop:          shop,
		Operation:     models.BulkRevert,
		Params:        models.BulkParams{BackupID: backupID},
		Step:          models.StepPollingMutation,
		ResourceTypes: []models.ResourceType{snapshot.ResourceType},
		ChangeCount:   len(snapshot.Items),
	}

	target, err := o.bulk.StagedUpload(ctx, shop, fmt.Sprintf("revert-%s.jsonl", backupID), fileContents)
	if err != nil {
		return nil, fmt.Errorf("failed to stage revert file: %w", err)
	}
	mutOpID, err := o.bulk.RunBulkMutation(ctx, shop, mutation, target.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to submit revert mutation: %w", err)
	}
	job.MutationOpID = mutOpID

	if err := o.jobs.Save(ctx, job); err != nil {
		return nil, err
	}

	o.record(ctx, job, snapshot.ResourceType, models.LogStatusPending,
		fmt.Sprintf("Revert submitted: restoring %d item(s) from backup %s", len(snapshot.Items), backupID))

	if err := o.enqueueStep(ctx, job, o.stepDelay); err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("shop", shop).
		Str("job_id", job.JobID).
		Str("backup_id", backupID).
		Msg("Revert queued")

	return job, nil
}

// DryRunQuery runs a bulk read synchronously for preview surfaces,
// polling at the fixed step delay up to MaxDryRunPolls before giving
// up with a timeout error.
func (o *Orchestrator) DryRunQuery(ctx context.Context, shop string, resourceType models.ResourceType, op models.BulkOperationType, params models.BulkParams) ([]Row, error) {
	if !models.ValidBulkOperations[op] {
		return nil, fmt.Errorf("unsupported bulk operation %q", op)
	}
	query, err := BulkQueryFor(resourceType, SearchQuery(op, params))
	if err != nil {
		return nil, err
	}

	opID, err := o.bulk.RunBulkQuery(ctx, shop, query)
	if err != nil {
		return nil, err
	}

	for i := 0; i < MaxDryRunPolls; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(o.stepDelay):
		}

		state, err := o.bulk.PollBulkOperation(ctx, shop, opID)
		if err != nil {
			return nil, err
		}
		switch state.Status {
		case interfaces.BulkStatusCompleted:
			if state.URL == "" {
				return []Row{}, nil
			}
			data, err := o.bulk.DownloadResult(ctx, state.URL)
			if err != nil {
				return nil, err
			}
			return ParseRows(data, resourceType)
		case interfaces.BulkStatusFailed, interfaces.BulkStatusCanceled:
			return nil, fmt.Errorf("dry run query %s: %s", state.Status, state.ErrorCode)
		}
	}

	return nil, fmt.Errorf("dry run query timed out after %d polls", MaxDryRunPolls)
}

func (o *Orchestrator) record(ctx context.Context, job *models.BulkJob, resource models.ResourceType, status models.LogStatus, msg string) {
	if err := o.logs.Record(ctx, logs.Entry{
		Shop:         job.Shop,
		JobID:        job.JobID,
		ResourceType: resource,
		Action:       models.ActionForOperation(job.Operation),
		Status:       status,
		Message:      msg,
	}); err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to record audit entry")
	}
}

func (o *Orchestrator) enqueueStep(ctx context.Context, job *models.BulkJob, delay time.Duration) error {
	msg := models.QueueMessage{
		JobID: job.JobID,
		Type:  models.MessageTypeBulkStep,
	}
	if delay > 0 {
		return o.queue.EnqueueDelayed(ctx, msg, delay)
	}
	return o.queue.Enqueue(ctx, msg)
}
