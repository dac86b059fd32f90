package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/interfaces"
	"github.com/ternarybob/tagforge/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ErrDuplicateRule is returned when a metafield rule would collide with
// an existing rule on (shop, resource type, namespace, key).
var ErrDuplicateRule = errors.New("duplicate metafield rule for shop/resource/namespace/key")

// RuleStorage implements the RuleStorage interface for Badger
type RuleStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRuleStorage creates a new RuleStorage instance
func NewRuleStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RuleStorage {
	return &RuleStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RuleStorage) SaveMetafieldRule(ctx context.Context, rule *models.MetafieldRule) error {
	// Uniqueness on (shop, resource type, namespace, key). A rule may
	// update itself, but not take over another rule's slot.
	var existing []models.MetafieldRule
	query := badgerhold.Where("Shop").Eq(rule.Shop).Index("Shop").
		And("ResourceType").Eq(rule.ResourceType).
		And("Namespace").Eq(rule.Namespace).
		And("Key").Eq(rule.Key)
	if err := s.db.Store().Find(&existing, query); err != nil {
		return fmt.Errorf("failed to check rule uniqueness: %w", err)
	}
	for _, e := range existing {
		if e.ID != rule.ID {
			return ErrDuplicateRule
		}
	}

	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	rule.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(rule.ID, rule); err != nil {
		return fmt.Errorf("failed to save metafield rule: %w", err)
	}
	return nil
}

func (s *RuleStorage) GetMetafieldRule(ctx context.Context, id string) (*models.MetafieldRule, error) {
	var rule models.MetafieldRule
	if err := s.db.Store().Get(id, &rule); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("metafield rule %s not found", id)
		}
		return nil, fmt.Errorf("failed to get metafield rule: %w", err)
	}
	return &rule, nil
}

func (s *RuleStorage) ListMetafieldRules(ctx context.Context, shop string, resourceType models.ResourceType) ([]models.MetafieldRule, error) {
	var rules []models.MetafieldRule
	query := badgerhold.Where("Shop").Eq(shop).Index("Shop").
		And("ResourceType").Eq(resourceType).
		SortBy("Priority").Reverse()
	if err := s.db.Store().Find(&rules, query); err != nil {
		return nil, fmt.Errorf("failed to list metafield rules: %w", err)
	}
	return rules, nil
}

func (s *RuleStorage) DeleteMetafieldRule(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.MetafieldRule{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete metafield rule: %w", err)
	}
	return nil
}

func (s *RuleStorage) SaveTaggingRule(ctx context.Context, rule *models.TaggingRule) error {
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	rule.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(rule.ID, rule); err != nil {
		return fmt.Errorf("failed to save tagging rule: %w", err)
	}
	return nil
}

func (s *RuleStorage) GetTaggingRule(ctx context.Context, id string) (*models.TaggingRule, error) {
	var rule models.TaggingRule
	if err := s.db.Store().Get(id, &rule); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("tagging rule %s not found", id)
		}
		return nil, fmt.Errorf("failed to get tagging rule: %w", err)
	}
	return &rule, nil
}

func (s *RuleStorage) ListTaggingRules(ctx context.Context, shop string, resourceType models.ResourceType) ([]models.TaggingRule, error) {
	var rules []models.TaggingRule
	query := badgerhold.Where("Shop").Eq(shop).Index("Shop").
		And("ResourceType").Eq(resourceType).
		SortBy("Priority").Reverse()
	if err := s.db.Store().Find(&rules, query); err != nil {
		return nil, fmt.Errorf("failed to list tagging rules: %w", err)
	}
	return rules, nil
}

func (s *RuleStorage) DeleteTaggingRule(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.TaggingRule{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete tagging rule: %w", err)
	}
	return nil
}
