package usage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/common"
	badgerstore "github.com/ternarybob/tagforge/internal/storage/badger"
)

func setupService(t *testing.T, configure func(*common.Config)) *Service {
	t.Helper()
	logger := arbor.NewLogger()
	storage, err := badgerstore.NewManager(logger, &common.BadgerConfig{Path: t.TempDir() + "/db"})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	config := common.DefaultConfig()
	if configure != nil {
		configure(config)
	}
	return NewService(storage.UsageStorage(), config, logger)
}

func TestCheckQuota_BlocksAtLimit(t *testing.T) {
	shop := "limited.myshopify.com"
	svc := setupService(t, func(c *common.Config) {
		c.Quota.ShopPlans = map[string]string{shop: "free"}
		c.Quota.PlanLimits = map[string]int64{"free": 10}
	})
	ctx := context.Background()

	require.NoError(t, svc.CheckQuota(ctx, shop))

	require.NoError(t, svc.Increment(ctx, shop, 9, "add_tags"))
	require.NoError(t, svc.CheckQuota(ctx, shop))

	require.NoError(t, svc.Increment(ctx, shop, 1, "add_tags"))
	err := svc.CheckQuota(ctx, shop)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestCheckQuota_UnlimitedPlanNeverBlocks(t *testing.T) {
	shop := "big.myshopify.com"
	svc := setupService(t, func(c *common.Config) {
		c.Quota.ShopPlans = map[string]string{shop: "unlimited"}
	})
	ctx := context.Background()

	require.NoError(t, svc.Increment(ctx, shop, 1_000_000, "find_replace"))
	assert.NoError(t, svc.CheckQuota(ctx, shop))
}

func TestCurrent_TracksThisMonthOnly(t *testing.T) {
	svc := setupService(t, nil)
	ctx := context.Background()

	usage, err := svc.Current(ctx, "fresh.myshopify.com")
	require.NoError(t, err)
	assert.Zero(t, usage.OperationCount)

	require.NoError(t, svc.Increment(ctx, "fresh.myshopify.com", 25, "cleanup"))

	usage, err = svc.Current(ctx, "fresh.myshopify.com")
	require.NoError(t, err)
	assert.Equal(t, int64(25), usage.OperationCount)
	assert.Equal(t, "cleanup", usage.LastOperation)
}

func TestIncrement_ShopsAreIsolated(t *testing.T) {
	svc := setupService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.Increment(ctx, "a.myshopify.com", 5, "add_tags"))
	require.NoError(t, svc.Increment(ctx, "b.myshopify.com", 7, "remove_tags"))

	usageA, err := svc.Current(ctx, "a.myshopify.com")
	require.NoError(t, err)
	usageB, err := svc.Current(ctx, "b.myshopify.com")
	require.NoError(t, err)

	assert.Equal(t, int64(5), usageA.OperationCount)
	assert.Equal(t, int64(7), usageB.OperationCount)
}
