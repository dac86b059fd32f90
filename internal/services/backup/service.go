package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/common"
	"github.com/ternarybob/tagforge/internal/interfaces"
	"github.com/ternarybob/tagforge/internal/models"
)

// Service persists pre-mutation snapshots so destructive bulk
// operations can be reverted. The compensating mutation itself is
// queued by the bulk orchestrator, which reads snapshots from here.
type Service struct {
	storage interfaces.BackupStorage
	logger  arbor.ILogger
}

// NewService creates a new backup service.
func NewService(storage interfaces.BackupStorage, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

// Snapshot records the original tags of every resource a bulk mutation
// is about to change. Exactly one snapshot per job lineage and resource
// type: a multi-pass job gets one per pass, and a second call for the
// same pass fails.
func (s *Service) Snapshot(ctx context.Context, shop, jobID string, resourceType models.ResourceType, items []models.BackupItem) (*models.Backup, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("refusing to snapshot zero items")
	}

	existing, err := s.storage.GetByJobResource(ctx, shop, jobID, resourceType)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing backup: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("backup for job %s (%s) already exists", jobID, resourceType)
	}

	backup := &models.Backup{
		ID:           common.NewBackupID(),
		Shop:         shop,
		JobID:        jobID,
		ResourceType: resourceType,
		Items:        items,
	}
	if err := s.storage.Save(ctx, backup); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("shop", shop).
		Str("job_id", jobID).
		Str("backup_id", backup.ID).
		Int("items", len(items)).
		Msg("Pre-mutation backup recorded")

	return backup, nil
}

// Get returns one backup by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.Backup, error) {
	return s.storage.Get(ctx, id)
}

// GetByJobID returns the earliest backup for a job lineage, or nil if
// none.
func (s *Service) GetByJobID(ctx context.Context, shop, jobID string) (*models.Backup, error) {
	return s.storage.GetByJobID(ctx, shop, jobID)
}

// GetByJobResource returns the backup for one resource-type pass of a
// job lineage, or nil if none.
func (s *Service) GetByJobResource(ctx context.Context, shop, jobID string, resourceType models.ResourceType) (*models.Backup, error) {
	return s.storage.GetByJobResource(ctx, shop, jobID, resourceType)
}

// List returns recent backups for a shop.
func (s *Service) List(ctx context.Context, shop string, limit int) ([]models.Backup, error) {
	return s.storage.List(ctx, shop, limit)
}

// Purge removes backups older than the retention window.
func (s *Service) Purge(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)
	count, err := s.storage.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info().
			Int("purged", count).
			Str("cutoff", cutoff.Format(time.RFC3339)).
			Msg("Expired backups purged")
	}
	return count, nil
}
