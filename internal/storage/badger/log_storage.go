package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/interfaces"
	"github.com/ternarybob/tagforge/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// LogStorage implements the LogStorage interface for Badger
type LogStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewLogStorage creates a new LogStorage instance
func NewLogStorage(db *BadgerDB, logger arbor.ILogger) interfaces.LogStorage {
	return &LogStorage{
		db:     db,
		logger: logger,
	}
}

func (s *LogStorage) Upsert(ctx context.Context, log *models.AutomationLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	log.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(log.ID, log); err != nil {
		return fmt.Errorf("failed to upsert automation log: %w", err)
	}
	return nil
}

func (s *LogStorage) GetByJobID(ctx context.Context, shop, jobID string) (*models.AutomationLog, error) {
	var logs []models.AutomationLog
	query := badgerhold.Where("JobID").Eq(jobID).Index("JobID").And("Shop").Eq(shop)
	if err := s.db.Store().Find(&logs, query); err != nil {
		return nil, fmt.Errorf("failed to get log by job id: %w", err)
	}
	if len(logs) == 0 {
		return nil, nil
	}
	return &logs[0], nil
}

func (s *LogStorage) List(ctx context.Context, shop string, limit int) ([]models.AutomationLog, error) {
	var logs []models.AutomationLog
	query := badgerhold.Where("Shop").Eq(shop).Index("Shop").SortBy("UpdatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := s.db.Store().Find(&logs, query); err != nil {
		return nil, fmt.Errorf("failed to list automation logs: %w", err)
	}
	return logs, nil
}

func (s *LogStorage) ListByResource(ctx context.Context, shop string, resourceType models.ResourceType, resourceID string, limit int) ([]models.AutomationLog, error) {
	var logs []models.AutomationLog
	query := badgerhold.Where("Shop").Eq(shop).Index("Shop").
		And("ResourceType").Eq(resourceType).
		And("ResourceID").Eq(resourceID).
		SortBy("UpdatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := s.db.Store().Find(&logs, query); err != nil {
		return nil, fmt.Errorf("failed to list logs by resource: %w", err)
	}
	return logs, nil
}

// PurgeOlderThan removes log records last touched before cutoff.
// Called by the retention cleaner; default window is 90 days.
func (s *LogStorage) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	query := badgerhold.Where("UpdatedAt").Lt(cutoff)
	count, err := s.db.Store().Count(&models.AutomationLog{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count expired logs: %w", err)
	}
	if count == 0 {
		return 0, nil
	}
	if err := s.db.Store().DeleteMatching(&models.AutomationLog{}, query); err != nil {
		return 0, fmt.Errorf("failed to purge expired logs: %w", err)
	}
	return int(count), nil
}
