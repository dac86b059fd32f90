package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/tagforge/internal/models"
)

// QueueManager is a durable FIFO queue with delayed visibility.
// Receive returns the next visible message plus a delete function the
// worker calls after processing; undeleted messages reappear after the
// visibility timeout (the queue-level retry policy).
type QueueManager interface {
	Enqueue(ctx context.Context, msg models.QueueMessage) error
	EnqueueDelayed(ctx context.Context, msg models.QueueMessage, delay time.Duration) error
	Receive(ctx context.Context) (*models.QueueMessage, func() error, error)
	Close() error
}
