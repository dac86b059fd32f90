package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/tagforge/internal/models"
)

// ErrNoMessage is returned when the queue is empty
var ErrNoMessage = models.ErrNoMessage

// storedMessage wraps a queue message with delivery bookkeeping.
type storedMessage struct {
	ID           string              `json:"id"`
	Body         models.QueueMessage `json:"body"`
	EnqueuedAt   time.Time           `json:"enqueued_at"`
	VisibleAt    time.Time           `json:"visible_at"`
	ReceiveCount int                 `json:"receive_count"`
}

// Manager implements a persistent named queue on BadgerDB. Messages
// become visible at VisibleAt; delayed enqueue is just a future
// VisibleAt, so poll delays survive process restarts. An undeleted
// message reappears after the visibility timeout, which is the queue's
// retry policy; maxReceive bounds poison-pill redelivery.
type Manager struct {
	db                *badger.DB
	queueName         string
	visibilityTimeout time.Duration
	maxReceive        int
}

// NewManager creates a new Badger-backed queue manager
func NewManager(db *badger.DB, queueName string, visibilityTimeout time.Duration, maxReceive int) (*Manager, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if queueName == "" {
		return nil, errors.New("queue name is required")
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 5 * time.Minute
	}
	if maxReceive <= 0 {
		maxReceive = 3
	}

	return &Manager{
		db:                db,
		queueName:         queueName,
		visibilityTimeout: visibilityTimeout,
		maxReceive:        maxReceive,
	}, nil
}

// Enqueue adds an immediately visible message to the queue.
func (m *Manager) Enqueue(ctx context.Context, msg models.QueueMessage) error {
	return m.EnqueueDelayed(ctx, msg, 0)
}

// EnqueueDelayed adds a message that becomes visible after delay.
func (m *Manager) EnqueueDelayed(ctx context.Context, msg models.QueueMessage, delay time.Duration) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	sMsg := storedMessage{
		ID:         msg.ID,
		Body:       msg,
		EnqueuedAt: time.Now(),
		VisibleAt:  time.Now().Add(delay),
	}

	data, err := json.Marshal(sMsg)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	// Message data lives at queue:{name}:msg:{id}; a visibility index
	// key queue:{name}:index:{ts20}:{id} orders ready messages so a
	// prefix scan finds the next visible one without touching values.
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(m.msgKey(sMsg.ID), data); err != nil {
			return err
		}
		return txn.Set(m.indexKey(sMsg.VisibleAt, sMsg.ID), []byte{})
	})
}

// Receive pulls the next visible message from the queue. Returns the
// message and a delete function to call after processing.
func (m *Manager) Receive(ctx context.Context) (*models.QueueMessage, func() error, error) {
	var sMsg storedMessage
	var msgID string
	var oldIndexKey []byte

	err := m.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:index:", m.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		found := false

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)

			ts, id, err := m.parseIndexKey(key)
			if err != nil {
				continue
			}

			// Index keys sort by timestamp; the first future entry
			// means nothing later is ready either.
			if ts.After(now) {
				break
			}

			itemMsg, err := txn.Get(m.msgKey(id))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					// Orphaned index entry; clean up and keep scanning.
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				return err
			}

			if err := itemMsg.Value(func(val []byte) error {
				return json.Unmarshal(val, &sMsg)
			}); err != nil {
				return err
			}

			if sMsg.ReceiveCount >= m.maxReceive {
				// Exceeded delivery budget: drop to stop a poison loop.
				if err := txn.Delete(key); err != nil {
					return err
				}
				if err := txn.Delete(m.msgKey(id)); err != nil {
					return err
				}
				continue
			}

			found = true
			msgID = id
			oldIndexKey = key
			break
		}

		if !found {
			return ErrNoMessage
		}

		sMsg.ReceiveCount++
		sMsg.VisibleAt = time.Now().Add(m.visibilityTimeout)

		newData, err := json.Marshal(sMsg)
		if err != nil {
			return err
		}
		if err := txn.Set(m.msgKey(msgID), newData); err != nil {
			return err
		}

		if err := txn.Delete(oldIndexKey); err != nil {
			return err
		}
		return txn.Set(m.indexKey(sMsg.VisibleAt, msgID), []byte{})
	})

	if err != nil {
		return nil, nil, err
	}

	deleteFn := func() error {
		return m.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(m.msgKey(msgID))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					return nil // already deleted
				}
				return err
			}

			var current storedMessage
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &current)
			}); err != nil {
				return err
			}

			if err := txn.Delete(m.indexKey(current.VisibleAt, msgID)); err != nil {
				if err != badger.ErrKeyNotFound {
					return err
				}
			}
			return txn.Delete(m.msgKey(msgID))
		})
	}

	return &sMsg.Body, deleteFn, nil
}

// Close closes the queue manager (no-op; the DB is managed externally).
func (m *Manager) Close() error {
	return nil
}

func (m *Manager) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", m.queueName, id))
}

func (m *Manager) indexKey(visibleAt time.Time, id string) []byte {
	// Zero pad to 20 digits so lexicographic order matches numeric order
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", m.queueName, visibleAt.UnixNano(), id))
}

func (m *Manager) parseIndexKey(key []byte) (time.Time, string, error) {
	prefixStr := fmt.Sprintf("queue:%s:index:", m.queueName)
	if len(key) <= len(prefixStr) {
		return time.Time{}, "", fmt.Errorf("invalid key length")
	}

	suffix := string(key[len(prefixStr):])
	if len(suffix) < 21 { // 20 digits + separator
		return time.Time{}, "", fmt.Errorf("invalid suffix length")
	}

	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &ts); err != nil {
		return time.Time{}, "", err
	}

	return time.Unix(0, ts), suffix[21:], nil
}
