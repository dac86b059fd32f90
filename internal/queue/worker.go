package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/models"
)

// MessageHandler processes one queue message to completion of the
// current step. Long workflows re-enqueue their continuation rather
// than blocking inside the handler.
type MessageHandler func(ctx context.Context, msg *models.QueueMessage) error

// WorkerPool manages a pool of workers that process queue messages
type WorkerPool struct {
	queueMgr     *Manager
	handlers     map[string]MessageHandler
	logger       arbor.ILogger
	concurrency  int
	pollInterval time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewWorkerPool creates a new worker pool over one named queue.
func NewWorkerPool(queueMgr *Manager, concurrency int, pollInterval time.Duration, logger arbor.ILogger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	if concurrency <= 0 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	return &WorkerPool{
		queueMgr:     queueMgr,
		handlers:     make(map[string]MessageHandler),
		logger:       logger,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// RegisterHandler registers a handler for a message type.
func (wp *WorkerPool) RegisterHandler(msgType string, handler MessageHandler) {
	wp.handlers[msgType] = handler
	wp.logger.Debug().
		Str("queue", wp.queueMgr.queueName).
		Str("message_type", msgType).
		Msg("Message handler registered")
}

// Start starts the worker pool
func (wp *WorkerPool) Start() {
	wp.logger.Info().
		Str("queue", wp.queueMgr.queueName).
		Int("concurrency", wp.concurrency).
		Msg("Starting worker pool")

	for i := 0; i < wp.concurrency; i++ {
		go wp.worker(i)
	}
}

// Stop gracefully stops the worker pool
func (wp *WorkerPool) Stop() {
	wp.logger.Info().
		Str("queue", wp.queueMgr.queueName).
		Msg("Stopping worker pool")
	wp.cancel()
}

func (wp *WorkerPool) worker(workerID int) {
	// Stagger worker starts to spread lock contention across the poll interval
	staggerDelay := (wp.pollInterval / time.Duration(wp.concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		select {
		case <-wp.ctx.Done():
			return
		case <-time.After(staggerDelay):
		}
	}

	ticker := time.NewTicker(wp.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			if err := wp.processMessage(workerID); err != nil && err != ErrNoMessage {
				wp.logger.Warn().
					Err(err).
					Int("worker_id", workerID).
					Str("queue", wp.queueMgr.queueName).
					Msg("Error processing message")
			}
		}
	}
}

func (wp *WorkerPool) processMessage(workerID int) error {
	msg, deleteFn, err := wp.queueMgr.Receive(wp.ctx)
	if err != nil {
		if err == ErrNoMessage {
			return ErrNoMessage
		}
		return fmt.Errorf("failed to receive message: %w", err)
	}

	handler, exists := wp.handlers[msg.Type]
	if !exists {
		wp.logger.Error().
			Str("message_type", msg.Type).
			Str("message_id", msg.ID).
			Msg("No handler registered for message type")
		// Unknown type will never succeed; drop it.
		if delErr := deleteFn(); delErr != nil {
			wp.logger.Warn().Err(delErr).Msg("Failed to delete unroutable message")
		}
		return fmt.Errorf("no handler for message type: %s", msg.Type)
	}

	startTime := time.Now()
	handlerErr := handler(wp.ctx, msg)
	duration := time.Since(startTime)

	if handlerErr != nil {
		wp.logger.Error().
			Err(handlerErr).
			Str("message_id", msg.ID).
			Str("message_type", msg.Type).
			Str("job_id", msg.JobID).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Msg("Message handler failed")

		// Leave the message in the queue: it reappears after the
		// visibility timeout, up to maxReceive deliveries.
		return handlerErr
	}

	wp.logger.Debug().
		Str("message_id", msg.ID).
		Str("message_type", msg.Type).
		Str("job_id", msg.JobID).
		Dur("duration", duration).
		Int("worker_id", workerID).
		Msg("Message processed")

	if err := deleteFn(); err != nil {
		wp.logger.Warn().
			Err(err).
			Str("message_id", msg.ID).
			Msg("Failed to delete message after processing")
		return err
	}

	return nil
}
