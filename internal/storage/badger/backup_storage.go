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

// BackupStorage implements the BackupStorage interface for Badger
type BackupStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewBackupStorage creates a new BackupStorage instance
func NewBackupStorage(db *BadgerDB, logger arbor.ILogger) interfaces.BackupStorage {
	return &BackupStorage{
		db:     db,
		logger: logger,
	}
}

func (s *BackupStorage) Save(ctx context.Context, backup *models.Backup) error {
	if backup.CreatedAt.IsZero() {
		backup.CreatedAt = time.Now()
	}
	// Insert, not upsert: a snapshot is never overwritten.
	if err := s.db.Store().Insert(backup.ID, backup); err != nil {
		if err == badgerhold.ErrKeyExists {
			return fmt.Errorf("backup %s already exists", backup.ID)
		}
		return fmt.Errorf("failed to save backup: %w", err)
	}
	return nil
}

func (s *BackupStorage) Get(ctx context.Context, id string) (*models.Backup, error) {
	var backup models.Backup
	if err := s.db.Store().Get(id, &backup); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("backup %s not found", id)
		}
		return nil, fmt.Errorf("failed to get backup: %w", err)
	}
	return &backup, nil
}

// GetByJobID returns the earliest snapshot recorded for a job lineage.
// A multi-pass job carries one snapshot per resource type; callers that
// need a specific pass use GetByJobResource.
func (s *BackupStorage) GetByJobID(ctx context.Context, shop, jobID string) (*models.Backup, error) {
	var backups []models.Backup
	query := badgerhold.Where("JobID").Eq(jobID).Index("JobID").And("Shop").Eq(shop).SortBy("CreatedAt")
	if err := s.db.Store().Find(&backups, query); err != nil {
		return nil, fmt.Errorf("failed to get backup by job id: %w", err)
	}
	if len(backups) == 0 {
		return nil, nil
	}
	return &backups[0], nil
}

func (s *BackupStorage) GetByJobResource(ctx context.Context, shop, jobID string, resourceType models.ResourceType) (*models.Backup, error) {
	var backups []models.Backup
	query := badgerhold.Where("JobID").Eq(jobID).Index("JobID").
		And("Shop").Eq(shop).
		And("ResourceType").Eq(resourceType)
	if err := s.db.Store().Find(&backups, query); err != nil {
		return nil, fmt.Errorf("failed to get backup by job resource: %w", err)
	}
	if len(backups) == 0 {
		return nil, nil
	}
	return &backups[0], nil
}

func (s *BackupStorage) List(ctx context.Context, shop string, limit int) ([]models.Backup, error) {
	var backups []models.Backup
	query := badgerhold.Where("Shop").Eq(shop).Index("Shop").SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := s.db.Store().Find(&backups, query); err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	return backups, nil
}

// PurgeOlderThan removes backups created before cutoff. Default
// retention window is 30 days.
func (s *BackupStorage) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	query := badgerhold.Where("CreatedAt").Lt(cutoff)
	count, err := s.db.Store().Count(&models.Backup{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count expired backups: %w", err)
	}
	if count == 0 {
		return 0, nil
	}
	if err := s.db.Store().DeleteMatching(&models.Backup{}, query); err != nil {
		return 0, fmt.Errorf("failed to purge expired backups: %w", err)
	}
	return int(count), nil
}
