package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/models"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWorkerPool_RoutesByMessageType(t *testing.T) {
	mgr := setupQueue(t, time.Minute, 3)
	pool := NewWorkerPool(mgr, 2, 20*time.Millisecond, arbor.NewLogger())

	var mu sync.Mutex
	handled := make(map[string]int)
	record := func(kind string) MessageHandler {
		return func(ctx context.Context, msg *models.QueueMessage) error {
			mu.Lock()
			handled[kind]++
			mu.Unlock()
			return nil
		}
	}
	pool.RegisterHandler(models.MessageTypeWebhook, record("webhook"))
	pool.RegisterHandler(models.MessageTypeBulkStep, record("bulk"))

	ctx := context.Background()
	require.NoError(t, mgr.Enqueue(ctx, models.QueueMessage{Type: models.MessageTypeWebhook}))
	require.NoError(t, mgr.Enqueue(ctx, models.QueueMessage{Type: models.MessageTypeBulkStep}))
	require.NoError(t, mgr.Enqueue(ctx, models.QueueMessage{Type: models.MessageTypeWebhook}))

	pool.Start()
	defer pool.Stop()

	waitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return handled["webhook"] == 2 && handled["bulk"] == 1
	})

	// Successful handling deletes the messages.
	_, _, err := mgr.Receive(ctx)
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestWorkerPool_FailedHandlerLeavesMessageForRedelivery(t *testing.T) {
	mgr := setupQueue(t, 100*time.Millisecond, 5)
	pool := NewWorkerPool(mgr, 1, 20*time.Millisecond, arbor.NewLogger())

	var mu sync.Mutex
	var attempts int
	pool.RegisterHandler(models.MessageTypeBulkStep, func(ctx context.Context, msg *models.QueueMessage) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return fmt.Errorf("transient failure %d", attempts)
		}
		return nil
	})

	require.NoError(t, mgr.Enqueue(context.Background(), models.QueueMessage{JobID: "flaky", Type: models.MessageTypeBulkStep}))

	pool.Start()
	defer pool.Stop()

	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts >= 3
	})

	// Third attempt succeeded and deleted the message.
	waitFor(t, 2*time.Second, func() bool {
		_, _, err := mgr.Receive(context.Background())
		return err == ErrNoMessage
	})
}

func TestWorkerPool_UnroutableMessageDropped(t *testing.T) {
	mgr := setupQueue(t, time.Minute, 3)
	pool := NewWorkerPool(mgr, 1, 20*time.Millisecond, arbor.NewLogger())
	pool.RegisterHandler(models.MessageTypeWebhook, func(ctx context.Context, msg *models.QueueMessage) error {
		return nil
	})

	require.NoError(t, mgr.Enqueue(context.Background(), models.QueueMessage{Type: "unknown_type"}))

	pool.Start()
	defer pool.Stop()

	waitFor(t, 3*time.Second, func() bool {
		_, _, err := mgr.Receive(context.Background())
		return err == ErrNoMessage
	})
}

func TestWorkerPool_StopHaltsProcessing(t *testing.T) {
	mgr := setupQueue(t, time.Minute, 3)
	pool := NewWorkerPool(mgr, 1, 20*time.Millisecond, arbor.NewLogger())

	var mu sync.Mutex
	var count int
	pool.RegisterHandler(models.MessageTypeWebhook, func(ctx context.Context, msg *models.QueueMessage) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	pool.Start()
	pool.Stop()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, mgr.Enqueue(context.Background(), models.QueueMessage{Type: models.MessageTypeWebhook}))
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, count)
}
