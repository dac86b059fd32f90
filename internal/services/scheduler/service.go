package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/interfaces"
	"github.com/ternarybob/tagforge/internal/models"
)

// Service owns the periodic maintenance schedule. It only enqueues
// purge work; the cleaner worker does the actual deletion so that a
// restart mid-purge resumes through the queue like everything else.
type Service struct {
	queue  interfaces.QueueManager
	cron   *cron.Cron
	logger arbor.ILogger
}

// NewService creates a new maintenance scheduler.
func NewService(queue interfaces.QueueManager, logger arbor.ILogger) *Service {
	return &Service{
		queue:  queue,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start registers the retention purge on the given cron schedule and
// starts the clock.
func (s *Service) Start(schedule string) error {
	if schedule == "" {
		// Default: daily at 03:00
		schedule = "0 3 * * *"
	}

	_, err := s.cron.AddFunc(schedule, func() {
		s.enqueuePurge()
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", schedule).
		Msg("Retention scheduler started")

	return nil
}

// Stop stops the scheduler.
func (s *Service) Stop() {
	s.cron.Stop()
	s.logger.Info().Msg("Retention scheduler stopped")
}

// RunNow enqueues an immediate purge.
func (s *Service) RunNow() {
	s.logger.Info().Msg("Triggering immediate retention purge")
	s.enqueuePurge()
}

func (s *Service) enqueuePurge() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.queue.Enqueue(ctx, models.QueueMessage{
		Type: models.MessageTypePurge,
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("Failed to enqueue retention purge")
		return
	}

	s.logger.Info().Msg("Retention purge enqueued")
}
