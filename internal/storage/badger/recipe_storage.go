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

// RecipeStorage implements the RecipeStorage interface for Badger
type RecipeStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRecipeStorage creates a new RecipeStorage instance
func NewRecipeStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RecipeStorage {
	return &RecipeStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RecipeStorage) Save(ctx context.Context, recipe *models.Recipe) error {
	if recipe.CreatedAt.IsZero() {
		recipe.CreatedAt = time.Now()
	}
	recipe.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(recipe.ID, recipe); err != nil {
		return fmt.Errorf("failed to save recipe: %w", err)
	}
	return nil
}

func (s *RecipeStorage) Get(ctx context.Context, id string) (*models.Recipe, error) {
	var recipe models.Recipe
	if err := s.db.Store().Get(id, &recipe); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get recipe: %w", err)
	}
	return &recipe, nil
}

func (s *RecipeStorage) List(ctx context.Context, shop string) ([]models.Recipe, error) {
	var recipes []models.Recipe
	query := badgerhold.Where("Shop").Eq(shop).Index("Shop").SortBy("CreatedAt")
	if err := s.db.Store().Find(&recipes, query); err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}
	return recipes, nil
}

func (s *RecipeStorage) ListEnabledForEvent(ctx context.Context, shop, event string) ([]models.Recipe, error) {
	var recipes []models.Recipe
	query := badgerhold.Where("Shop").Eq(shop).Index("Shop").
		And("Enabled").Eq(true).
		And("Trigger.Event").Eq(event)
	if err := s.db.Store().Find(&recipes, query); err != nil {
		return nil, fmt.Errorf("failed to list enabled recipes: %w", err)
	}
	return recipes, nil
}

func (s *RecipeStorage) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var recipe models.Recipe
		if err := s.db.Store().TxGet(txn, id, &recipe); err != nil {
			return fmt.Errorf("failed to load recipe %s: %w", id, err)
		}
		recipe.Enabled = enabled
		recipe.UpdatedAt = time.Now()
		if err := s.db.Store().TxUpdate(txn, id, &recipe); err != nil {
			return fmt.Errorf("failed to toggle recipe %s: %w", id, err)
		}
		return nil
	})
}

// IncrementStats advances the recipe's counters inside one transaction
// so concurrent executions never lose an update.
func (s *RecipeStorage) IncrementStats(ctx context.Context, id string, allSucceeded bool) error {
	return s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var recipe models.Recipe
		if err := s.db.Store().TxGet(txn, id, &recipe); err != nil {
			return fmt.Errorf("failed to load recipe %s: %w", id, err)
		}
		now := time.Now()
		recipe.Stats.ExecutionCount++
		if allSucceeded {
			recipe.Stats.SuccessCount++
		} else {
			recipe.Stats.ErrorCount++
		}
		recipe.Stats.LastExecutedAt = &now
		recipe.UpdatedAt = now
		if err := s.db.Store().TxUpdate(txn, id, &recipe); err != nil {
			return fmt.Errorf("failed to update recipe stats: %w", err)
		}
		return nil
	})
}

func (s *RecipeStorage) Delete(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Recipe{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete recipe: %w", err)
	}
	return nil
}
