package bulkops

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/common"
	"github.com/ternarybob/tagforge/internal/interfaces"
	"github.com/ternarybob/tagforge/internal/models"
	"github.com/ternarybob/tagforge/internal/services/backup"
	"github.com/ternarybob/tagforge/internal/services/logs"
	"github.com/ternarybob/tagforge/internal/services/usage"
	badgerstore "github.com/ternarybob/tagforge/internal/storage/badger"
)

const testShop = "orchestra.myshopify.com"

// fakeQueue collects enqueued messages so tests can drive the state
// machine step by step instead of running worker pools.
type fakeQueue struct {
	msgs []models.QueueMessage
}

func (q *fakeQueue) Enqueue(ctx context.Context, msg models.QueueMessage) error {
	q.msgs = append(q.msgs, msg)
	return nil
}

func (q *fakeQueue) EnqueueDelayed(ctx context.Context, msg models.QueueMessage, delay time.Duration) error {
	q.msgs = append(q.msgs, msg)
	return nil
}

func (q *fakeQueue) Receive(ctx context.Context) (*models.QueueMessage, func() error, error) {
	return nil, nil, models.ErrNoMessage
}

func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) pop() (models.QueueMessage, bool) {
	if len(q.msgs) == 0 {
		return models.QueueMessage{}, false
	}
	msg := q.msgs[0]
	q.msgs = q.msgs[1:]
	return msg, true
}

// fakeBulkClient scripts the platform side of the bulk lifecycle.
type fakeBulkClient struct {
	queryCount    int
	mutationCount int
	pollStates    map[string][]*interfaces.BulkOperationState
	downloads     map[string][]byte
	staged        [][]byte
	mutations     []string
}

func newFakeBulkClient() *fakeBulkClient {
	return &fakeBulkClient{
		pollStates: make(map[string][]*interfaces.BulkOperationState),
		downloads:  make(map[string][]byte),
	}
}

func (f *fakeBulkClient) RunBulkQuery(ctx context.Context, shop, query string) (string, error) {
	f.queryCount++
	return fmt.Sprintf("query-op-%d", f.queryCount), nil
}

func (f *fakeBulkClient) RunBulkMutation(ctx context.Context, shop, mutation, stagedUploadKey string) (string, error) {
	f.mutationCount++
	f.mutations = append(f.mutations, mutation)
	return fmt.Sprintf("mut-op-%d", f.mutationCount), nil
}

func (f *fakeBulkClient) PollBulkOperation(ctx context.Context, shop, operationID string) (*interfaces.BulkOperationState, error) {
	states := f.pollStates[operationID]
	if len(states) == 0 {
		return nil, fmt.Errorf("no scripted state for operation %s", operationID)
	}
	state := states[0]
	if len(states) > 1 {
		f.pollStates[operationID] = states[1:]
	}
	return state, nil
}

func (f *fakeBulkClient) StagedUpload(ctx context.Context, shop, filename string, contents []byte) (*interfaces.StagedUploadTarget, error) {
	f.staged = append(f.staged, contents)
	return &interfaces.StagedUploadTarget{Key: fmt.Sprintf("tmp/upload-%d", len(f.staged))}, nil
}

func (f *fakeBulkClient) DownloadResult(ctx context.Context, url string) ([]byte, error) {
	data, ok := f.downloads[url]
	if !ok {
		return nil, fmt.Errorf("no scripted download for %s", url)
	}
	return data, nil
}

func (f *fakeBulkClient) completed(opID, url string) {
	f.pollStates[opID] = append(f.pollStates[opID], &interfaces.BulkOperationState{
		ID: opID, Status: interfaces.BulkStatusCompleted, URL: url,
	})
}

func (f *fakeBulkClient) failed(opID, code string) {
	f.pollStates[opID] = append(f.pollStates[opID], &interfaces.BulkOperationState{
		ID: opID, Status: interfaces.BulkStatusFailed, ErrorCode: code,
	})
}

type orchestratorFixture struct {
	orchestrator *Orchestrator
	bulk         *fakeBulkClient
	queue        *fakeQueue
	jobs         interfaces.JobStorage
	backups      *backup.Service
	usage        *usage.Service
	logs         *logs.Service
}

func setupOrchestrator(t *testing.T) *orchestratorFixture {
	t.Helper()
	logger := arbor.NewLogger()

	storage, err := badgerstore.NewManager(logger, &common.BadgerConfig{Path: t.TempDir() + "/db"})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	cfg := common.DefaultConfig()
	bulk := newFakeBulkClient()
	queue := &fakeQueue{}

	logSvc := logs.NewService(storage.LogStorage(), logger)
	backupSvc := backup.NewService(storage.BackupStorage(), logger)
	usageSvc := usage.NewService(storage.UsageStorage(), cfg, logger)

	orch := NewOrchestrator(storage.JobStorage(), bulk, backupSvc, usageSvc, logSvc, queue, time.Millisecond, logger)

	return &orchestratorFixture{
		orchestrator: orch,
		bulk:         bulk,
		queue:        queue,
		jobs:         storage.JobStorage(),
		backups:      backupSvc,
		usage:        usageSvc,
		logs:         logSvc,
	}
}

// drive pops queued step messages and handles each until the queue
// drains, the way the worker pool would.
func (fx *orchestratorFixture) drive(t *testing.T, maxSteps int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < maxSteps; i++ {
		msg, ok := fx.queue.pop()
		if !ok {
			return
		}
		require.NoError(t, fx.orchestrator.HandleStep(ctx, &msg))
	}
	t.Fatalf("state machine did not settle in %d steps", maxSteps)
}

func TestOrchestrator_FindReplaceLifecycle(t *testing.T) {
	fx := setupOrchestrator(t)
	ctx := context.Background()

	fx.bulk.completed("query-op-1", "https://results/q1")
	fx.bulk.downloads["https://results/q1"] = []byte(
		`{"id":"gid://shopify/Product/1","tags":["A","C"]}` + "\n" +
			`{"id":"gid://shopify/Product/2","tags":["X"]}` + "\n")
	fx.bulk.completed("mut-op-1", "")

	job, err := fx.orchestrator.StartOperation(ctx, testShop, models.BulkFindReplace,
		models.BulkParams{Find: "A", Replace: "B"}, []models.ResourceType{models.ResourceProduct})
	require.NoError(t, err)
	assert.Equal(t, models.StepInit, job.Step)

	fx.drive(t, 10)

	final, err := fx.jobs.GetByJobID(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.StepDone, final.Step)
	assert.Equal(t, 1, final.TotalChanged)

	// Only the changed row is backed up, with its pre-mutation tags.
	snapshot, err := fx.backups.GetByJobID(ctx, testShop, job.JobID)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	require.Len(t, snapshot.Items, 1)
	assert.Equal(t, "gid://shopify/Product/1", snapshot.Items[0].ResourceID)
	assert.Equal(t, []string{"A", "C"}, snapshot.Items[0].OriginalTags)

	current, err := fx.usage.Current(ctx, testShop)
	require.NoError(t, err)
	assert.Equal(t, int64(1), current.OperationCount)

	// One cumulative audit record for the whole lineage.
	record, err := fx.logs.Get(ctx, testShop, job.JobID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.LogStatusSuccess, record.Status)
	assert.GreaterOrEqual(t, len(record.Details), 3)
}

func TestOrchestrator_ResumesFromPersistedStep(t *testing.T) {
	fx := setupOrchestrator(t)
	ctx := context.Background()

	// A job persisted mid-flight is all a restarted process has; the
	// step message carries only the lineage id.
	job := &models.BulkJob{
		ID:            "resume-1",
		JobID:         "job_resume",
		Shop:          testShop,
		Operation:     models.BulkAddTags,
		Params:        models.BulkParams{Tags: []string{"new"}},
		Step:          models.StepPollingMutation,
		ResourceTypes: []models.ResourceType{models.ResourceCustomer},
		MutationOpID:  "mut-op-55",
		ChangeCount:   7,
	}
	require.NoError(t, fx.jobs.Save(ctx, job))
	fx.bulk.completed("mut-op-55", "")

	require.NoError(t, fx.orchestrator.HandleStep(ctx, &models.QueueMessage{JobID: "job_resume", Type: models.MessageTypeBulkStep}))

	final, err := fx.jobs.GetByJobID(ctx, "job_resume")
	require.NoError(t, err)
	assert.Equal(t, models.StepDone, final.Step)
	assert.Equal(t, 7, final.TotalChanged)

	current, err := fx.usage.Current(ctx, testShop)
	require.NoError(t, err)
	assert.Equal(t, int64(7), current.OperationCount)
}

func TestOrchestrator_EmptyResultFinishesWithoutMutation(t *testing.T) {
	fx := setupOrchestrator(t)
	ctx := context.Background()

	// COMPLETED with no URL means zero matching objects.
	fx.bulk.completed("query-op-1", "")

	job, err := fx.orchestrator.StartOperation(ctx, testShop, models.BulkFindReplace,
		models.BulkParams{Find: "ghost", Replace: "tag"}, []models.ResourceType{models.ResourceProduct})
	require.NoError(t, err)

	fx.drive(t, 10)

	final, err := fx.jobs.GetByJobID(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.StepDone, final.Step)
	assert.Zero(t, final.TotalChanged)
	assert.Zero(t, fx.bulk.mutationCount)

	snapshot, err := fx.backups.GetByJobID(ctx, testShop, job.JobID)
	require.NoError(t, err)
	assert.Nil(t, snapshot)
}

func TestOrchestrator_NoOpRowsSkipMutationAndBackup(t *testing.T) {
	fx := setupOrchestrator(t)
	ctx := context.Background()

	fx.bulk.completed("query-op-1", "https://results/q1")
	// Every row already carries the tag being added.
	fx.bulk.downloads["https://results/q1"] = []byte(
		`{"id":"gid://shopify/Product/1","tags":["done"]}` + "\n")

	job, err := fx.orchestrator.StartOperation(ctx, testShop, models.BulkAddTags,
		models.BulkParams{Tags: []string{"done"}}, []models.ResourceType{models.ResourceProduct})
	require.NoError(t, err)

	fx.drive(t, 10)

	final, err := fx.jobs.GetByJobID(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.StepDone, final.Step)
	assert.Zero(t, fx.bulk.mutationCount)

	snapshot, err := fx.backups.GetByJobID(ctx, testShop, job.JobID)
	require.NoError(t, err)
	assert.Nil(t, snapshot)
}

func TestOrchestrator_MultiResourcePasses(t *testing.T) {
	fx := setupOrchestrator(t)
	ctx := context.Background()

	fx.bulk.completed("query-op-1", "https://results/products")
	fx.bulk.downloads["https://results/products"] = []byte(
		`{"id":"gid://shopify/Product/1","tags":["old"]}` + "\n")
	fx.bulk.completed("mut-op-1", "")

	fx.bulk.completed("query-op-2", "https://results/customers")
	fx.bulk.downloads["https://results/customers"] = []byte(
		`{"id":"gid://shopify/Customer/1","tags":["old"]}` + "\n" +
			`{"id":"gid://shopify/Customer/2","tags":["old"]}` + "\n")
	fx.bulk.completed("mut-op-2", "")

	job, err := fx.orchestrator.StartOperation(ctx, testShop, models.BulkRemoveTags,
		models.BulkParams{Tags: []string{"old"}},
		[]models.ResourceType{models.ResourceProduct, models.ResourceCustomer})
	require.NoError(t, err)

	fx.drive(t, 20)

	final, err := fx.jobs.GetByJobID(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.StepDone, final.Step)
	assert.Equal(t, 3, final.TotalChanged)
	assert.Equal(t, 2, fx.bulk.queryCount)
	assert.Equal(t, 2, fx.bulk.mutationCount)

	// Each pass records its own pre-mutation snapshot, so the customer
	// rows are revertible even though the product pass ran first.
	productBackup, err := fx.backups.GetByJobResource(ctx, testShop, job.JobID, models.ResourceProduct)
	require.NoError(t, err)
	require.NotNil(t, productBackup)
	require.Len(t, productBackup.Items, 1)
	assert.Equal(t, "gid://shopify/Product/1", productBackup.Items[0].ResourceID)
	assert.Equal(t, []string{"old"}, productBackup.Items[0].OriginalTags)

	customerBackup, err := fx.backups.GetByJobResource(ctx, testShop, job.JobID, models.ResourceCustomer)
	require.NoError(t, err)
	require.NotNil(t, customerBackup)
	require.Len(t, customerBackup.Items, 2)
	assert.Equal(t, []string{"old"}, customerBackup.Items[0].OriginalTags)
	assert.Equal(t, []string{"old"}, customerBackup.Items[1].OriginalTags)
}

func TestOrchestrator_StartRejectsUnknownOperation(t *testing.T) {
	fx := setupOrchestrator(t)
	ctx := context.Background()

	// Reverts have their own entry point; arbitrary strings never reach
	// the state machine.
	for _, op := range []models.BulkOperationType{models.BulkRevert, "garbage"} {
		_, err := fx.orchestrator.StartOperation(ctx, testShop, op,
			models.BulkParams{}, []models.ResourceType{models.ResourceProduct})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported bulk operation")
	}
	assert.Empty(t, fx.queue.msgs)
	assert.Zero(t, fx.bulk.queryCount)
}

func TestOrchestrator_PlatformFailureIsTerminal(t *testing.T) {
	fx := setupOrchestrator(t)
	ctx := context.Background()

	fx.bulk.failed("query-op-1", "ACCESS_DENIED")

	job, err := fx.orchestrator.StartOperation(ctx, testShop, models.BulkFindReplace,
		models.BulkParams{Find: "a", Replace: "b"}, []models.ResourceType{models.ResourceProduct})
	require.NoError(t, err)

	fx.drive(t, 10)

	final, err := fx.jobs.GetByJobID(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.StepFailed, final.Step)
	assert.Contains(t, final.Error, "ACCESS_DENIED")

	record, err := fx.logs.Get(ctx, testShop, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.LogStatusFailed, record.Status)
}

func TestOrchestrator_TerminalJobIgnoresStaleMessages(t *testing.T) {
	fx := setupOrchestrator(t)
	ctx := context.Background()

	job := &models.BulkJob{
		ID:            "stale-1",
		JobID:         "job_stale",
		Shop:          testShop,
		Operation:     models.BulkAddTags,
		Step:          models.StepDone,
		ResourceTypes: []models.ResourceType{models.ResourceProduct},
	}
	require.NoError(t, fx.jobs.Save(ctx, job))

	require.NoError(t, fx.orchestrator.HandleStep(ctx, &models.QueueMessage{JobID: "job_stale", Type: models.MessageTypeBulkStep}))
	assert.Zero(t, fx.bulk.queryCount)
}

func TestOrchestrator_QuotaBlocksAdmission(t *testing.T) {
	fx := setupOrchestrator(t)
	ctx := context.Background()

	// Default plan limit is 1000; consume it all.
	require.NoError(t, fx.usage.Increment(ctx, testShop, 1000, "add_tags"))

	_, err := fx.orchestrator.StartOperation(ctx, testShop, models.BulkAddTags,
		models.BulkParams{Tags: []string{"x"}}, []models.ResourceType{models.ResourceProduct})
	require.Error(t, err)
	assert.ErrorIs(t, err, usage.ErrQuotaExceeded)
	assert.Empty(t, fx.queue.msgs)
}

func TestOrchestrator_RevertRoundTrip(t *testing.T) {
	fx := setupOrchestrator(t)
	ctx := context.Background()

	snapshot, err := fx.backups.Snapshot(ctx, testShop, "job_original", models.ResourceProduct, []models.BackupItem{
		{ResourceID: "gid://shopify/Product/1", OriginalTags: []string{"A", "C"}},
		{ResourceID: "gid://shopify/Product/2", OriginalTags: []string{"B"}},
	})
	require.NoError(t, err)

	job, err := fx.orchestrator.QueueRevert(ctx, testShop, snapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BulkRevert, job.Operation)
	assert.Equal(t, models.StepPollingMutation, job.Step)
	assert.Contains(t, job.JobID, "revert_")

	// The staged file restores the original tag sets verbatim.
	require.Len(t, fx.bulk.staged, 1)
	assert.Contains(t, string(fx.bulk.staged[0]), `"tags":["A","C"]`)
	assert.Contains(t, string(fx.bulk.staged[0]), `"tags":["B"]`)

	fx.bulk.completed("mut-op-1", "")
	fx.drive(t, 5)

	final, err := fx.jobs.GetByJobID(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.StepDone, final.Step)
	assert.Equal(t, 2, final.TotalChanged)
}

func TestOrchestrator_RevertRejectsForeignBackup(t *testing.T) {
	fx := setupOrchestrator(t)
	ctx := context.Background()

	snapshot, err := fx.backups.Snapshot(ctx, "other.myshopify.com", "job_foreign", models.ResourceProduct, []models.BackupItem{
		{ResourceID: "gid://shopify/Product/1", OriginalTags: []string{"A"}},
	})
	require.NoError(t, err)

	_, err = fx.orchestrator.QueueRevert(ctx, testShop, snapshot.ID)
	assert.Error(t, err)
}
