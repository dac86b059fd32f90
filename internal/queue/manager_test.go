package queue

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/tagforge/internal/models"
)

func setupQueue(t *testing.T, visibility time.Duration, maxReceive int) *Manager {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mgr, err := NewManager(db, "test", visibility, maxReceive)
	require.NoError(t, err)
	return mgr
}

func TestManager_RequiresDBAndName(t *testing.T) {
	_, err := NewManager(nil, "test", time.Minute, 3)
	assert.Error(t, err)

	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	defer db.Close()

	_, err = NewManager(db, "", time.Minute, 3)
	assert.Error(t, err)
}

func TestManager_EnqueueReceiveDelete(t *testing.T) {
	mgr := setupQueue(t, time.Minute, 3)
	ctx := context.Background()

	require.NoError(t, mgr.Enqueue(ctx, models.QueueMessage{
		JobID:   "job_1",
		Type:    models.MessageTypeBulkStep,
		Payload: []byte(`{"x":1}`),
	}))

	msg, deleteFn, err := mgr.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "job_1", msg.JobID)
	assert.Equal(t, models.MessageTypeBulkStep, msg.Type)
	assert.NotEmpty(t, msg.ID)

	require.NoError(t, deleteFn())

	// Deleted messages never come back.
	_, _, err = mgr.Receive(ctx)
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestManager_FIFOWithinVisibleSet(t *testing.T) {
	mgr := setupQueue(t, time.Minute, 3)
	ctx := context.Background()

	for _, id := range []string{"first", "second", "third"} {
		require.NoError(t, mgr.Enqueue(ctx, models.QueueMessage{JobID: id, Type: models.MessageTypeWebhook}))
		// Distinct nanosecond timestamps keep index keys ordered.
		time.Sleep(time.Millisecond)
	}

	for _, want := range []string{"first", "second", "third"} {
		msg, deleteFn, err := mgr.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, msg.JobID)
		require.NoError(t, deleteFn())
	}
}

func TestManager_DelayedMessageInvisibleUntilDue(t *testing.T) {
	mgr := setupQueue(t, time.Minute, 3)
	ctx := context.Background()

	require.NoError(t, mgr.EnqueueDelayed(ctx, models.QueueMessage{JobID: "later", Type: models.MessageTypeBulkStep}, 150*time.Millisecond))

	_, _, err := mgr.Receive(ctx)
	assert.ErrorIs(t, err, ErrNoMessage)

	time.Sleep(200 * time.Millisecond)

	msg, deleteFn, err := mgr.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "later", msg.JobID)
	require.NoError(t, deleteFn())
}

func TestManager_UndeletedMessageRedeliveredAfterTimeout(t *testing.T) {
	mgr := setupQueue(t, 100*time.Millisecond, 5)
	ctx := context.Background()

	require.NoError(t, mgr.Enqueue(ctx, models.QueueMessage{JobID: "retry-me", Type: models.MessageTypeBulkStep}))

	msg, _, err := mgr.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "retry-me", msg.JobID)

	// In flight, so not visible to another receiver.
	_, _, err = mgr.Receive(ctx)
	assert.ErrorIs(t, err, ErrNoMessage)

	time.Sleep(150 * time.Millisecond)

	again, deleteFn, err := mgr.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "retry-me", again.JobID)
	require.NoError(t, deleteFn())
}

func TestManager_PoisonMessageDroppedAfterMaxReceive(t *testing.T) {
	mgr := setupQueue(t, 50*time.Millisecond, 2)
	ctx := context.Background()

	require.NoError(t, mgr.Enqueue(ctx, models.QueueMessage{JobID: "poison", Type: models.MessageTypeBulkStep}))

	// Two delivery attempts, neither deleted.
	for i := 0; i < 2; i++ {
		msg, _, err := mgr.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, "poison", msg.JobID)
		time.Sleep(80 * time.Millisecond)
	}

	// The delivery budget is spent; the message is dropped, not
	// redelivered forever.
	_, _, err := mgr.Receive(ctx)
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestManager_QueuesAreIsolated(t *testing.T) {
	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	webhooks, err := NewManager(db, models.QueueWebhooks, time.Minute, 3)
	require.NoError(t, err)
	bulk, err := NewManager(db, models.QueueBulk, time.Minute, 3)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, webhooks.Enqueue(ctx, models.QueueMessage{JobID: "hook", Type: models.MessageTypeWebhook}))

	_, _, err = bulk.Receive(ctx)
	assert.ErrorIs(t, err, ErrNoMessage)

	msg, deleteFn, err := webhooks.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hook", msg.JobID)
	require.NoError(t, deleteFn())
}

func TestManager_MessageIDAssignedWhenMissing(t *testing.T) {
	mgr := setupQueue(t, time.Minute, 3)
	ctx := context.Background()

	require.NoError(t, mgr.Enqueue(ctx, models.QueueMessage{Type: models.MessageTypePurge}))

	msg, deleteFn, err := mgr.Receive(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	require.NoError(t, deleteFn())
}
