package recipes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/common"
	"github.com/ternarybob/tagforge/internal/interfaces"
	"github.com/ternarybob/tagforge/internal/models"
)

// ErrNotFound is returned when no recipe exists for the given id.
var ErrNotFound = errors.New("recipe not found")

// Service manages recipe lifecycle for a shop.
type Service struct {
	storage  interfaces.RecipeStorage
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewService creates a new recipe service.
func NewService(storage interfaces.RecipeStorage, logger arbor.ILogger) *Service {
	return &Service{
		storage:  storage,
		validate: validator.New(),
		logger:   logger,
	}
}

// Create validates and persists a new recipe. The id, stats, and
// timestamps are assigned here; caller-supplied values are ignored.
func (s *Service) Create(ctx context.Context, recipe *models.Recipe) error {
	recipe.ID = common.NewRecipeID()
	recipe.Stats = models.RecipeStats{}
	recipe.CreatedAt = time.Now()
	recipe.UpdatedAt = recipe.CreatedAt

	if err := s.check(recipe); err != nil {
		return err
	}
	if err := s.storage.Save(ctx, recipe); err != nil {
		return err
	}

	s.logger.Info().
		Str("shop", recipe.Shop).
		Str("recipe_id", recipe.ID).
		Str("event", recipe.Trigger.Event).
		Msg("Recipe created")
	return nil
}

// Update validates and persists changes to an existing recipe. Stats
// and creation time are preserved from the stored record.
func (s *Service) Update(ctx context.Context, recipe *models.Recipe) error {
	existing, err := s.storage.Get(ctx, recipe.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrNotFound
	}
	if existing.Shop != recipe.Shop {
		return fmt.Errorf("recipe %s does not belong to shop %s", recipe.ID, recipe.Shop)
	}

	recipe.Stats = existing.Stats
	recipe.CreatedAt = existing.CreatedAt
	recipe.UpdatedAt = time.Now()

	if err := s.check(recipe); err != nil {
		return err
	}
	return s.storage.Save(ctx, recipe)
}

// Get returns one recipe scoped to the shop.
func (s *Service) Get(ctx context.Context, shop, id string) (*models.Recipe, error) {
	recipe, err := s.storage.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if recipe == nil || recipe.Shop != shop {
		return nil, ErrNotFound
	}
	return recipe, nil
}

// List returns all recipes for a shop.
func (s *Service) List(ctx context.Context, shop string) ([]models.Recipe, error) {
	return s.storage.List(ctx, shop)
}

// SetEnabled toggles a recipe. Enabling re-runs validation: a recipe
// with no conditions or actions may exist as a draft but cannot run.
func (s *Service) SetEnabled(ctx context.Context, shop, id string, enabled bool) error {
	recipe, err := s.Get(ctx, shop, id)
	if err != nil {
		return err
	}
	if enabled {
		recipe.Enabled = true
		if err := recipe.Validate(); err != nil {
			return fmt.Errorf("cannot enable recipe: %w", err)
		}
	}
	return s.storage.SetEnabled(ctx, id, enabled)
}

// Delete removes a recipe.
func (s *Service) Delete(ctx context.Context, shop, id string) error {
	if _, err := s.Get(ctx, shop, id); err != nil {
		return err
	}
	return s.storage.Delete(ctx, id)
}

// ParseJSON decodes and validates a recipe document from an untrusted
// source, such as generated or imported JSON. Unknown fields are
// rejected so malformed documents fail loudly instead of silently
// dropping conditions.
func (s *Service) ParseJSON(shop string, data []byte) (*models.Recipe, error) {
	var recipe models.Recipe
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&recipe); err != nil {
		return nil, fmt.Errorf("invalid recipe document: %w", err)
	}

	recipe.Shop = shop
	if err := s.check(&recipe); err != nil {
		return nil, err
	}
	return &recipe, nil
}

func (s *Service) check(recipe *models.Recipe) error {
	if err := s.validate.Struct(recipe); err != nil {
		return fmt.Errorf("recipe validation failed: %w", err)
	}
	return recipe.Validate()
}
