package rules

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/common"
	"github.com/ternarybob/tagforge/internal/interfaces"
	"github.com/ternarybob/tagforge/internal/models"
	"github.com/ternarybob/tagforge/internal/services/engine"
	"github.com/ternarybob/tagforge/internal/services/logs"
)

// Service manages metafield and tagging rules and applies them to
// inbound resource payloads. Rule conditions are AND-combined; rules
// run highest priority first.
type Service struct {
	storage  interfaces.RuleStorage
	executor *engine.Executor
	logs     *logs.Service
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewService creates a new rule service.
func NewService(storage interfaces.RuleStorage, executor *engine.Executor, logService *logs.Service, logger arbor.ILogger) *Service {
	return &Service{
		storage:  storage,
		executor: executor,
		logs:     logService,
		validate: validator.New(),
		logger:   logger,
	}
}

// SaveMetafieldRule validates and persists a metafield rule. Duplicate
// (shop, resource type, namespace, key) combinations are rejected by
// the storage layer.
func (s *Service) SaveMetafieldRule(ctx context.Context, rule *models.MetafieldRule) error {
	if err := s.validate.Struct(rule); err != nil {
		return fmt.Errorf("invalid metafield rule: %w", err)
	}
	for i, c := range rule.Conditions {
		if !models.ValidOperators[c.Operator] {
			return fmt.Errorf("condition %d: unknown operator %q", i, c.Operator)
		}
	}
	if rule.ID == "" {
		rule.ID = common.NewRuleID()
	}
	return s.storage.SaveMetafieldRule(ctx, rule)
}

// SaveTaggingRule validates and persists a tagging rule.
func (s *Service) SaveTaggingRule(ctx context.Context, rule *models.TaggingRule) error {
	if err := s.validate.Struct(rule); err != nil {
		return fmt.Errorf("invalid tagging rule: %w", err)
	}
	for i, c := range rule.Conditions {
		if !models.ValidOperators[c.Operator] {
			return fmt.Errorf("condition %d: unknown operator %q", i, c.Operator)
		}
	}
	if rule.ID == "" {
		rule.ID = common.NewRuleID()
	}
	return s.storage.SaveTaggingRule(ctx, rule)
}

// matchesAll applies a rule's conditions AND-combined, ignoring any
// per-condition combinators.
func matchesAll(payload []byte, conditions []models.Condition) bool {
	for _, c := range conditions {
		normalized := c
		normalized.Logical = models.LogicalAnd
		eval := engine.Evaluate(payload, []models.Condition{normalized})
		if !eval.Matches {
			return false
		}
	}
	return true
}

// ApplyToResource evaluates every enabled rule for the resource type
// against the payload and executes the winning actions: the highest
// priority matching metafield rule per (namespace, key), plus the union
// of all matching tagging rules' tags.
func (s *Service) ApplyToResource(ctx context.Context, shop string, resourceType models.ResourceType, resourceID string, payload []byte) error {
	metafieldRules, err := s.storage.ListMetafieldRules(ctx, shop, resourceType)
	if err != nil {
		return fmt.Errorf("failed to list metafield rules: %w", err)
	}
	taggingRules, err := s.storage.ListTaggingRules(ctx, shop, resourceType)
	if err != nil {
		return fmt.Errorf("failed to list tagging rules: %w", err)
	}

	var actions []models.Action
	var actionNames []string

	// Rules arrive sorted by priority descending; first match per
	// (namespace, key) wins.
	seen := make(map[string]bool)
	for i := range metafieldRules {
		rule := &metafieldRules[i]
		if !rule.Enabled || !matchesAll(payload, rule.Conditions) {
			continue
		}
		slot := rule.Namespace + "." + rule.Key
		if seen[slot] {
			continue
		}
		seen[slot] = true
		actions = append(actions, models.Action{
			Type:      models.ActionSetMetafield,
			Namespace: rule.Namespace,
			Key:       rule.Key,
			Value:     rule.Value,
			ValueType: rule.ValueType,
		})
		actionNames = append(actionNames, "metafield_rule")
	}

	tagSet := make(map[string]bool)
	for i := range taggingRules {
		rule := &taggingRules[i]
		if !rule.Enabled || !matchesAll(payload, rule.Conditions) {
			continue
		}
		for _, tag := range rule.Tags {
			if !tagSet[tag] {
				tagSet[tag] = true
				actions = append(actions, models.Action{Type: models.ActionAddTag, Tag: tag})
			}
		}
		actionNames = append(actionNames, "tagging_rule")
	}

	if len(actions) == 0 {
		return nil
	}
	if resourceID == "" {
		return fmt.Errorf("matched %d rule actions but payload carries no resource id", len(actions))
	}

	results := s.executor.Execute(ctx, shop, resourceID, actions)

	status := models.LogStatusSuccess
	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	if failed == len(results) {
		status = models.LogStatusFailed
	} else if failed > 0 {
		status = models.LogStatusPartial
	}

	action := "tagging_rule"
	if len(actionNames) > 0 {
		action = actionNames[0]
	}
	if err := s.logs.Record(ctx, logs.Entry{
		Shop:         shop,
		JobID:        "rules_" + string(resourceType) + "_" + resourceID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Action:       action,
		Status:       status,
		Message:      fmt.Sprintf("%d rule actions executed, %d failed", len(results), failed),
	}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to record rule application log")
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d rule actions failed", failed, len(results))
	}
	return nil
}

// Storage exposes the underlying rule storage for handlers.
func (s *Service) Storage() interfaces.RuleStorage {
	return s.storage
}
