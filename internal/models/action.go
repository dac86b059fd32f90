package models

// ActionType identifies a mutation kind executed against a resource.
type ActionType string

const (
	ActionAddTag          ActionType = "add_tag"
	ActionRemoveTag       ActionType = "remove_tag"
	ActionSetMetafield    ActionType = "set_metafield"
	ActionRemoveMetafield ActionType = "remove_metafield"
)

// Action is one mutation in a recipe's ordered action list. The fields
// used depend on Type: tag actions use Tag, metafield actions use
// Namespace/Key and (for set_metafield) Value/ValueType.
type Action struct {
	Type      ActionType `json:"type" toml:"type" validate:"required"`
	Tag       string     `json:"tag,omitempty" toml:"tag"`
	Namespace string     `json:"namespace,omitempty" toml:"namespace"`
	Key       string     `json:"key,omitempty" toml:"key"`
	Value     string     `json:"value,omitempty" toml:"value"`
	ValueType string     `json:"value_type,omitempty" toml:"value_type"`
}

// ValidActionTypes is the closed set of supported action kinds.
var ValidActionTypes = map[ActionType]bool{
	ActionAddTag:          true,
	ActionRemoveTag:       true,
	ActionSetMetafield:    true,
	ActionRemoveMetafield: true,
}
