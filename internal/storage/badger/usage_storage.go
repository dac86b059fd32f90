package badger

import (
	"context"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/interfaces"
	"github.com/ternarybob/tagforge/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// UsageStorage implements the UsageStorage interface for Badger
type UsageStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewUsageStorage creates a new UsageStorage instance
func NewUsageStorage(db *BadgerDB, logger arbor.ILogger) interfaces.UsageStorage {
	return &UsageStorage{
		db:     db,
		logger: logger,
	}
}

// Increment performs an upsert-and-increment inside a single badger
// transaction. Concurrent increments for the same shop/month serialize
// on transaction conflict and retry, so no update is lost.
func (s *UsageStorage) Increment(ctx context.Context, shop, month string, n int64, operation string) error {
	key := models.UsageKey(shop, month)

	increment := func() error {
		return s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
			var usage models.Usage
			err := s.db.Store().TxGet(txn, key, &usage)
			switch err {
			case nil:
				usage.OperationCount += n
				usage.LastOperation = operation
				usage.UpdatedAt = time.Now()
				return s.db.Store().TxUpdate(txn, key, &usage)
			case badgerhold.ErrNotFound:
				usage = models.Usage{
					ID:             key,
					Shop:           shop,
					Month:          month,
					OperationCount: n,
					LastOperation:  operation,
					UpdatedAt:      time.Now(),
				}
				return s.db.Store().TxInsert(txn, key, &usage)
			default:
				return err
			}
		})
	}

	// Badger detects write conflicts at commit. A conflict means some
	// other writer committed, so retrying until commit always converges
	// and no increment is lost.
	for {
		err := increment()
		if err == nil {
			return nil
		}
		if err != badgerdb.ErrConflict {
			return fmt.Errorf("failed to increment usage for %s/%s: %w", shop, month, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *UsageStorage) Get(ctx context.Context, shop, month string) (*models.Usage, error) {
	var usage models.Usage
	if err := s.db.Store().Get(models.UsageKey(shop, month), &usage); err != nil {
		if err == badgerhold.ErrNotFound {
			return &models.Usage{
				ID:    models.UsageKey(shop, month),
				Shop:  shop,
				Month: month,
			}, nil
		}
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}
	return &usage, nil
}
