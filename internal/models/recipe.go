package models

import (
	"fmt"
	"regexp"
	"time"
)

// RecipeCategory groups recipes by the resource they act on.
type RecipeCategory string

const (
	CategoryCustomer  RecipeCategory = "customer"
	CategoryOrder     RecipeCategory = "order"
	CategoryProduct   RecipeCategory = "product"
	CategoryInventory RecipeCategory = "inventory"
)

// eventPattern matches webhook topics of the form "resource/action",
// e.g. "orders/create" or "customers/update".
var eventPattern = regexp.MustCompile(`^[a-z_]+/[a-z_]+$`)

// Trigger binds a recipe to a webhook event.
type Trigger struct {
	Event    string `json:"event" toml:"event" validate:"required"`
	Resource string `json:"resource" toml:"resource"`
}

// RecipeStats tracks execution counters for a recipe. Counters are only
// advanced through RecipeStorage.IncrementStats so concurrent executions
// cannot lose updates.
type RecipeStats struct {
	ExecutionCount int64      `json:"execution_count"`
	SuccessCount   int64      `json:"success_count"`
	ErrorCount     int64      `json:"error_count"`
	LastExecutedAt *time.Time `json:"last_executed_at,omitempty"`
}

// Recipe is a shop-scoped automation rule: when Trigger.Event fires and
// Conditions match the payload, Actions run in order.
type Recipe struct {
	ID         string         `json:"id" badgerhold:"key"`
	Shop       string         `json:"shop" badgerholdIndex:"Shop" validate:"required"`
	Title      string         `json:"title" validate:"required"`
	Category   RecipeCategory `json:"category" validate:"required,oneof=customer order product inventory"`
	Enabled    bool           `json:"enabled"`
	Trigger    Trigger        `json:"trigger"`
	Conditions []Condition    `json:"conditions" validate:"dive"`
	Actions    []Action       `json:"actions" validate:"dive"`
	Stats      RecipeStats    `json:"stats"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Validate enforces the structural invariants that must hold before a
// recipe enters the pipeline. Validator tags cover the simple fields;
// the cross-field rules live here.
func (r *Recipe) Validate() error {
	if !eventPattern.MatchString(r.Trigger.Event) {
		return fmt.Errorf("trigger event %q must match resource/action", r.Trigger.Event)
	}
	if r.Enabled {
		if len(r.Conditions) == 0 {
			return fmt.Errorf("enabled recipe requires at least one condition")
		}
		if len(r.Actions) == 0 {
			return fmt.Errorf("enabled recipe requires at least one action")
		}
	}
	for i, c := range r.Conditions {
		if !ValidOperators[c.Operator] {
			return fmt.Errorf("condition %d: unknown operator %q", i, c.Operator)
		}
	}
	for i, a := range r.Actions {
		if !ValidActionTypes[a.Type] {
			return fmt.Errorf("action %d: unknown action type %q", i, a.Type)
		}
	}
	return nil
}
