package logs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/common"
	"github.com/ternarybob/tagforge/internal/models"
	badgerstore "github.com/ternarybob/tagforge/internal/storage/badger"
)

func setupService(t *testing.T) *Service {
	t.Helper()
	logger := arbor.NewLogger()
	storage, err := badgerstore.NewManager(logger, &common.BadgerConfig{Path: t.TempDir() + "/db"})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	return NewService(storage.LogStorage(), logger)
}

func TestRecord_CreatesThenAppends(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, Entry{
		Shop:    "shop.myshopify.com",
		JobID:   "job_1",
		Action:  "bulk_add_tags",
		Status:  models.LogStatusPending,
		Message: "Queued",
	}))

	record, err := svc.Get(ctx, "shop.myshopify.com", "job_1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.LogStatusPending, record.Status)
	require.Len(t, record.Details, 1)
	assert.Equal(t, "Queued", record.Details[0].Message)
	assert.Equal(t, "Bulk Operations", record.Category)

	// Later events for the same lineage grow the same record.
	require.NoError(t, svc.Record(ctx, Entry{
		Shop:    "shop.myshopify.com",
		JobID:   "job_1",
		Action:  "bulk_add_tags",
		Status:  models.LogStatusSuccess,
		Message: "Updated 42 product(s)",
	}))

	record, err = svc.Get(ctx, "shop.myshopify.com", "job_1")
	require.NoError(t, err)
	assert.Equal(t, models.LogStatusSuccess, record.Status)
	require.Len(t, record.Details, 2)
	assert.Equal(t, "Updated 42 product(s)", record.Details[1].Message)
}

func TestRecord_RequiresJobID(t *testing.T) {
	svc := setupService(t)

	err := svc.Record(context.Background(), Entry{
		Shop:    "shop.myshopify.com",
		Action:  "bulk_add_tags",
		Status:  models.LogStatusPending,
		Message: "Queued",
	})
	assert.Error(t, err)
}

func TestRecord_LateResourceIDSticks(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, Entry{
		Shop:    "shop.myshopify.com",
		JobID:   "job_1",
		Action:  "recipe_execution",
		Status:  models.LogStatusPending,
		Message: "Evaluating",
	}))

	require.NoError(t, svc.Record(ctx, Entry{
		Shop:       "shop.myshopify.com",
		JobID:      "job_1",
		ResourceID: "gid://shopify/Customer/77",
		Action:     "recipe_execution",
		Status:     models.LogStatusSuccess,
		Message:    "Executed",
	}))

	record, err := svc.Get(ctx, "shop.myshopify.com", "job_1")
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/Customer/77", record.ResourceID)
}

func TestRecord_LineagesAreIndependent(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	for _, jobID := range []string{"job_a", "job_b"} {
		require.NoError(t, svc.Record(ctx, Entry{
			Shop:    "shop.myshopify.com",
			JobID:   jobID,
			Action:  "cleanup",
			Status:  models.LogStatusPending,
			Message: "Queued",
		}))
	}

	all, err := svc.List(ctx, "shop.myshopify.com", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGet_MissingLineageIsNil(t *testing.T) {
	svc := setupService(t)

	record, err := svc.Get(context.Background(), "shop.myshopify.com", "job_missing")
	require.NoError(t, err)
	assert.Nil(t, record)
}
