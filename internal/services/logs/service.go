package logs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/common"
	"github.com/ternarybob/tagforge/internal/interfaces"
	"github.com/ternarybob/tagforge/internal/models"
)

// Entry is one status event to record against a job lineage.
type Entry struct {
	Shop         string
	JobID        string
	ResourceType models.ResourceType
	ResourceID   string
	Action       string
	Status       models.LogStatus
	Message      string
}

// Service maintains the audit trail: one cumulative AutomationLog per
// (shop, job id), with details appended as the operation progresses.
type Service struct {
	storage interfaces.LogStorage
	logger  arbor.ILogger

	// Serializes read-append-write per process. The single-active-job
	// invariant makes concurrent appends for one job id unlikely, but
	// the implementation does not rely on it.
	mu sync.Mutex
}

// NewService creates a new automation log service.
func NewService(storage interfaces.LogStorage, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

// Record upserts the log for (shop, job id): the first call creates the
// record, later calls append a timestamped detail and move the status.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	if entry.JobID == "" {
		return fmt.Errorf("log entry requires a job id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.storage.GetByJobID(ctx, entry.Shop, entry.JobID)
	if err != nil {
		return fmt.Errorf("failed to load log for job %s: %w", entry.JobID, err)
	}

	detail := models.LogDetail{
		Timestamp: time.Now(),
		Message:   entry.Message,
	}

	if existing == nil {
		record := &models.AutomationLog{
			ID:           common.NewLogID(),
			Shop:         entry.Shop,
			JobID:        entry.JobID,
			ResourceType: entry.ResourceType,
			ResourceID:   entry.ResourceID,
			Action:       entry.Action,
			Category:     models.CategoryForAction(entry.Action),
			Details:      []models.LogDetail{detail},
			Status:       entry.Status,
		}
		return s.storage.Upsert(ctx, record)
	}

	existing.Details = append(existing.Details, detail)
	existing.Status = entry.Status
	if entry.ResourceID != "" {
		existing.ResourceID = entry.ResourceID
	}
	return s.storage.Upsert(ctx, existing)
}

// Get returns the log for one job lineage, or nil if none exists.
func (s *Service) Get(ctx context.Context, shop, jobID string) (*models.AutomationLog, error) {
	return s.storage.GetByJobID(ctx, shop, jobID)
}

// List returns the most recent logs for a shop.
func (s *Service) List(ctx context.Context, shop string, limit int) ([]models.AutomationLog, error) {
	return s.storage.List(ctx, shop, limit)
}

// ListByResource returns logs touching one resource.
func (s *Service) ListByResource(ctx context.Context, shop string, resourceType models.ResourceType, resourceID string, limit int) ([]models.AutomationLog, error) {
	return s.storage.ListByResource(ctx, shop, resourceType, resourceID, limit)
}

// Purge removes logs last touched before the retention window.
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
			Msg("Expired automation logs purged")
	}
	return count, nil
}
