package models

import "time"

// ResourceType identifies a Shopify resource class a rule or bulk
// operation applies to.
type ResourceType string

const (
	ResourceProduct  ResourceType = "product"
	ResourceCustomer ResourceType = "customer"
	ResourceOrder    ResourceType = "order"
	ResourceVariant  ResourceType = "variant"
)

// MetafieldRule sets a single metafield on resources whose payload
// matches all of its conditions (AND-combined). Rules are evaluated
// highest priority first; the first match per (namespace, key) wins.
// A shop may hold at most one rule per (resource type, namespace, key).
type MetafieldRule struct {
	ID           string       `json:"id" badgerhold:"key"`
	Shop         string       `json:"shop" badgerholdIndex:"Shop" validate:"required"`
	ResourceType ResourceType `json:"resource_type" validate:"required,oneof=product customer order variant"`
	Name         string       `json:"name" validate:"required"`
	Enabled      bool         `json:"enabled"`
	Priority     int          `json:"priority"`
	Conditions   []Condition  `json:"conditions" validate:"dive"`
	Namespace    string       `json:"namespace" validate:"required"`
	Key          string       `json:"key" validate:"required"`
	Value        string       `json:"value" validate:"required"`
	ValueType    string       `json:"value_type" validate:"required"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// TaggingRule applies a fixed tag set to resources whose payload matches
// all of its conditions. All matching tagging rules contribute tags.
type TaggingRule struct {
	ID           string       `json:"id" badgerhold:"key"`
	Shop         string       `json:"shop" badgerholdIndex:"Shop" validate:"required"`
	ResourceType ResourceType `json:"resource_type" validate:"required,oneof=product customer order variant"`
	Name         string       `json:"name" validate:"required"`
	Enabled      bool         `json:"enabled"`
	Priority     int          `json:"priority"`
	Conditions   []Condition  `json:"conditions" validate:"dive"`
	Tags         []string     `json:"tags" validate:"required,min=1"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
