package bulkops

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/tagforge/internal/models"
	"github.com/tidwall/gjson"
)

// ParseRows reads a bulk query result file line by line. Child rows
// (lines carrying __parentId) are skipped; only top-level nodes become
// rows. Variant rows carry the inventory item id and unit cost instead
// of tags.
func ParseRows(data []byte, resourceType models.ResourceType) ([]Row, error) {
	rows := make([]Row, 0)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if gjson.GetBytes(line, "__parentId").Exists() {
			continue
		}

		if resourceType == models.ResourceVariant {
			item := gjson.GetBytes(line, "inventoryItem")
			if !item.Exists() {
				continue
			}
			rows = append(rows, Row{
				ID:   item.Get("id").String(),
				Cost: item.Get("unitCost.amount").String(),
			})
			continue
		}

		id := gjson.GetBytes(line, "id")
		if !id.Exists() {
			continue
		}
		row := Row{ID: id.String()}
		for _, t := range gjson.GetBytes(line, "tags").Array() {
			row.Tags = append(row.Tags, t.String())
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan result file: %w", err)
	}

	return rows, nil
}

// tagMutationLine is one JSONL row of bulk tag-mutation variables.
type tagMutationLine struct {
	Input struct {
		ID   string   `json:"id"`
		Tags []string `json:"tags"`
	} `json:"input"`
}

// costMutationLine is one JSONL row of bulk cost-mutation variables.
type costMutationLine struct {
	ID   string `json:"id"`
	Cost string `json:"cost"`
}

// BuildTagMutationJSONL serializes per-row {id, tags} variables for the
// bulk mutation engine.
func BuildTagMutationJSONL(items []models.BackupItem, newTags map[string][]string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		var line tagMutationLine
		line.Input.ID = item.ResourceID
		tags, ok := newTags[item.ResourceID]
		if !ok {
			tags = item.OriginalTags
		}
		if tags == nil {
			tags = []string{}
		}
		line.Input.Tags = tags
		if err := enc.Encode(&line); err != nil {
			return nil, fmt.Errorf("failed to encode mutation line: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// BuildRestoreJSONL serializes a backup's original tag sets as
// mutation variables for the compensating revert mutation.
func BuildRestoreJSONL(backup *models.Backup) ([]byte, error) {
	newTags := make(map[string][]string, len(backup.Items))
	for _, item := range backup.Items {
		newTags[item.ResourceID] = item.OriginalTags
	}
	return BuildTagMutationJSONL(backup.Items, newTags)
}

// BuildCostMutationJSONL serializes per-row {id, cost} variables.
func BuildCostMutationJSONL(rows []Row, cost string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, row := range rows {
		line := costMutationLine{ID: row.ID, Cost: cost}
		if err := enc.Encode(&line); err != nil {
			return nil, fmt.Errorf("failed to encode cost line: %w", err)
		}
	}
	return buf.Bytes(), nil
}
