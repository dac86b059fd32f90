package models

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNoMessage is returned when a queue has no visible messages.
var ErrNoMessage = errors.New("no messages in queue")

// WebhookEvent is an inbound platform webhook delivery, enqueued
// verbatim for asynchronous processing.
type WebhookEvent struct {
	Topic      string          `json:"topic"`
	Shop       string          `json:"shop"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// QueueMessage is the structure stored in the queue. Just enough to
// route the work; step state lives on the durable job record.
type QueueMessage struct {
	ID      string          `json:"id"`
	JobID   string          `json:"job_id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Queue message types routed by the worker pools.
const (
	MessageTypeWebhook  = "webhook_event"
	MessageTypeBulkStep = "bulk_step"
	MessageTypePurge    = "retention_purge"
)

// Named queues. FIFO per queue; no cross-queue ordering.
const (
	QueueWebhooks = "webhooks"
	QueueBulk     = "bulk"
	QueueCleaner  = "cleaner"
)
