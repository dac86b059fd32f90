package bulkops

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ternarybob/tagforge/internal/models"
)

// Row is one resource parsed from a bulk query result file.
type Row struct {
	ID   string
	Tags []string
	Cost string // unit cost amount, variant cost updates only
}

// ApplyTransform computes the row's new tag set for the job's
// operation. Returns the new tags and whether anything changed; rows
// with changed == false must produce no mutation and no backup entry.
func ApplyTransform(op models.BulkOperationType, params models.BulkParams, tags []string) ([]string, bool) {
	switch op {
	case models.BulkFindReplace:
		return replaceTag(tags, params.Find, params.Replace)
	case models.BulkAddTags:
		return addTags(tags, params.Tags)
	case models.BulkRemoveTags:
		return removeTags(tags, params.Tags)
	case models.BulkCleanup:
		return keepOnly(tags, params.KeepTags)
	default:
		return tags, false
	}
}

// replaceTag swaps find for replace, preserving the position-insensitive
// remainder of the set. Resources without the find tag are untouched.
func replaceTag(tags []string, find, replace string) ([]string, bool) {
	if find == "" {
		return tags, false
	}
	found := false
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if strings.EqualFold(t, find) {
			found = true
			continue
		}
		out = append(out, t)
	}
	if !found {
		return tags, false
	}
	if replace != "" && !containsTag(out, replace) {
		out = append(out, replace)
	}
	return out, true
}

func addTags(tags []string, add []string) ([]string, bool) {
	out := append([]string(nil), tags...)
	changed := false
	for _, t := range add {
		if t == "" || containsTag(out, t) {
			continue
		}
		out = append(out, t)
		changed = true
	}
	if !changed {
		return tags, false
	}
	return out, true
}

func removeTags(tags []string, remove []string) ([]string, bool) {
	out := make([]string, 0, len(tags))
	changed := false
	for _, t := range tags {
		if containsTag(remove, t) {
			changed = true
			continue
		}
		out = append(out, t)
	}
	if !changed {
		return tags, false
	}
	return out, true
}

// keepOnly drops every tag not on the keep list.
func keepOnly(tags []string, keep []string) ([]string, bool) {
	out := make([]string, 0, len(tags))
	changed := false
	for _, t := range tags {
		if containsTag(keep, t) {
			out = append(out, t)
		} else {
			changed = true
		}
	}
	if !changed {
		return tags, false
	}
	return out, true
}

// costEquals compares unit cost amounts numerically so formatting
// differences like "10.0" vs "10.00" do not count as a change.
// Unparseable amounts fall back to exact string comparison.
func costEquals(a, b string) bool {
	fa, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	fb, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if errA != nil || errB != nil {
		return a == b
	}
	return fa == fb
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// SearchQuery builds the platform search syntax scoping the bulk read
// to resources the operation could touch.
func SearchQuery(op models.BulkOperationType, params models.BulkParams) string {
	switch op {
	case models.BulkFindReplace:
		return fmt.Sprintf("tag:'%s'", params.Find)
	case models.BulkRemoveTags:
		parts := make([]string, 0, len(params.Tags))
		for _, t := range params.Tags {
			parts = append(parts, fmt.Sprintf("tag:'%s'", t))
		}
		return strings.Join(parts, " OR ")
	case models.BulkAddTags:
		if params.Find != "" {
			return fmt.Sprintf("tag:'%s'", params.Find)
		}
		return ""
	case models.BulkCleanup:
		// Every resource is a candidate; the diff filters no-ops.
		return ""
	default:
		return ""
	}
}

// BulkQueryFor wraps a search query in the bulk read document for one
// resource type.
func BulkQueryFor(resourceType models.ResourceType, searchQuery string) (string, error) {
	filter := ""
	if searchQuery != "" {
		filter = fmt.Sprintf(`(query: "%s")`, strings.ReplaceAll(searchQuery, `"`, `\"`))
	}
	switch resourceType {
	case models.ResourceProduct:
		return fmt.Sprintf(`{ products%s { edges { node { id tags } } } }`, filter), nil
	case models.ResourceCustomer:
		return fmt.Sprintf(`{ customers%s { edges { node { id tags } } } }`, filter), nil
	case models.ResourceOrder:
		return fmt.Sprintf(`{ orders%s { edges { node { id tags } } } }`, filter), nil
	case models.ResourceVariant:
		return fmt.Sprintf(`{ productVariants%s { edges { node { id inventoryItem { id unitCost { amount } } } } } }`, filter), nil
	default:
		return "", fmt.Errorf("unsupported resource type %q", resourceType)
	}
}

// MutationFor returns the per-row mutation document the bulk engine
// runs against each JSONL line for one resource type.
func MutationFor(resourceType models.ResourceType, op models.BulkOperationType) (string, error) {
	if op == models.BulkCostUpdate {
		return `mutation call($id: ID!, $cost: Decimal) { inventoryItemUpdate(id: $id, input: { cost: $cost }) { inventoryItem { id } userErrors { field message } } }`, nil
	}
	switch resourceType {
	case models.ResourceProduct:
		return `mutation call($input: ProductInput!) { productUpdate(input: $input) { product { id } userErrors { field message } } }`, nil
	case models.ResourceCustomer:
		return `mutation call($input: CustomerInput!) { customerUpdate(input: $input) { customer { id } userErrors { field message } } }`, nil
	case models.ResourceOrder:
		return `mutation call($input: OrderInput!) { orderUpdate(input: $input) { order { id } userErrors { field message } } }`, nil
	default:
		return "", fmt.Errorf("unsupported resource type %q for tag mutation", resourceType)
	}
}
