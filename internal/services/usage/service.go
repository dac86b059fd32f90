package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/common"
	"github.com/ternarybob/tagforge/internal/interfaces"
	"github.com/ternarybob/tagforge/internal/models"
)

// ErrQuotaExceeded is returned when a shop's monthly operation budget
// is exhausted. Checked at admission, before a bulk job is enqueued.
var ErrQuotaExceeded = errors.New("monthly operation quota exceeded")

// Service tracks per-shop monthly operation counts and gates bulk
// operation admission against plan limits.
type Service struct {
	storage interfaces.UsageStorage
	config  *common.Config
	logger  arbor.ILogger
}

// NewService creates a new usage service.
func NewService(storage interfaces.UsageStorage, config *common.Config, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		config:  config,
		logger:  logger,
	}
}

// Increment records n completed operations for the shop's current
// month. The storage increment is atomic; concurrent completions for
// the same shop sum exactly.
func (s *Service) Increment(ctx context.Context, shop string, n int64, operation string) error {
	month := models.CurrentMonth(time.Now())
	if err := s.storage.Increment(ctx, shop, month, n, operation); err != nil {
		return err
	}
	s.logger.Debug().
		Str("shop", shop).
		Str("month", month).
		Int64("count", n).
		Str("operation", operation).
		Msg("Usage incremented")
	return nil
}

// CheckQuota rejects admission when the shop's plan limit is already
// consumed. A limit of zero means unlimited.
func (s *Service) CheckQuota(ctx context.Context, shop string) error {
	limit := s.config.PlanLimit(shop)
	if limit <= 0 {
		return nil
	}

	current, err := s.Current(ctx, shop)
	if err != nil {
		return fmt.Errorf("failed to read usage for %s: %w", shop, err)
	}
	if current.OperationCount >= limit {
		return fmt.Errorf("%w: %d of %d used", ErrQuotaExceeded, current.OperationCount, limit)
	}
	return nil
}

// Current returns the shop's usage record for the current month.
func (s *Service) Current(ctx context.Context, shop string) (*models.Usage, error) {
	return s.storage.Get(ctx, shop, models.CurrentMonth(time.Now()))
}
