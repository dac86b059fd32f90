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

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) Save(ctx context.Context, job *models.BulkJob) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save bulk job: %w", err)
	}
	return nil
}

func (s *JobStorage) Get(ctx context.Context, id string) (*models.BulkJob, error) {
	var job models.BulkJob
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("bulk job %s not found", id)
		}
		return nil, fmt.Errorf("failed to get bulk job: %w", err)
	}
	return &job, nil
}

// GetByJobID resolves a job by its caller-visible lineage ID. There is
// a single active job record per lineage.
func (s *JobStorage) GetByJobID(ctx context.Context, jobID string) (*models.BulkJob, error) {
	var jobs []models.BulkJob
	query := badgerhold.Where("JobID").Eq(jobID).Index("JobID")
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to get bulk job by job id: %w", err)
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("bulk job lineage %s not found", jobID)
	}
	return &jobs[0], nil
}

func (s *JobStorage) List(ctx context.Context, shop string, limit int) ([]models.BulkJob, error) {
	var jobs []models.BulkJob
	query := badgerhold.Where("Shop").Eq(shop).Index("Shop").SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list bulk jobs: %w", err)
	}
	return jobs, nil
}
