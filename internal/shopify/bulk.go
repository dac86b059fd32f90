package shopify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/tagforge/internal/interfaces"
)

const bulkQueryMutation = `mutation bulkOperationRunQuery($query: String!) {
  bulkOperationRunQuery(query: $query) {
    bulkOperation { id status }
    userErrors { field message }
  }
}`

// RunBulkQuery submits an asynchronous bulk read. The platform
// processes it in the background; poll for completion.
func (c *Client) RunBulkQuery(ctx context.Context, shop, query string) (string, error) {
	var result struct {
		BulkOperationRunQuery struct {
			BulkOperation *bulkOperationNode `json:"bulkOperation"`
			UserErrors    []userError        `json:"userErrors"`
		} `json:"bulkOperationRunQuery"`
	}
	err := c.execute(ctx, shop, bulkQueryMutation, map[string]interface{}{
		"query": query,
	}, &result)
	if err != nil {
		return "", err
	}
	if len(result.BulkOperationRunQuery.UserErrors) > 0 {
		return "", fmt.Errorf("bulk query rejected: %s", joinUserErrors(result.BulkOperationRunQuery.UserErrors))
	}
	if result.BulkOperationRunQuery.BulkOperation == nil {
		return "", fmt.Errorf("bulk query submission returned no operation")
	}
	return result.BulkOperationRunQuery.BulkOperation.ID, nil
}

const bulkMutationMutation = `mutation bulkOperationRunMutation($mutation: String!, $stagedUploadPath: String!) {
  bulkOperationRunMutation(mutation: $mutation, stagedUploadPath: $stagedUploadPath) {
    bulkOperation { id status }
    userErrors { field message }
  }
}`

// RunBulkMutation submits an asynchronous bulk write reading per-row
// variables from a previously staged JSONL upload.
func (c *Client) RunBulkMutation(ctx context.Context, shop, mutation, stagedUploadKey string) (string, error) {
	var result struct {
		BulkOperationRunMutation struct {
			BulkOperation *bulkOperationNode `json:"bulkOperation"`
			UserErrors    []userError        `json:"userErrors"`
		} `json:"bulkOperationRunMutation"`
	}
	err := c.execute(ctx, shop, bulkMutationMutation, map[string]interface{}{
		"mutation":         mutation,
		"stagedUploadPath": stagedUploadKey,
	}, &result)
	if err != nil {
		return "", err
	}
	if len(result.BulkOperationRunMutation.UserErrors) > 0 {
		return "", fmt.Errorf("bulk mutation rejected: %s", joinUserErrors(result.BulkOperationRunMutation.UserErrors))
	}
	if result.BulkOperationRunMutation.BulkOperation == nil {
		return "", fmt.Errorf("bulk mutation submission returned no operation")
	}
	return result.BulkOperationRunMutation.BulkOperation.ID, nil
}

const bulkPollQuery = `query bulkOperation($id: ID!) {
  node(id: $id) {
    ... on BulkOperation { id status url objectCount errorCode }
  }
}`

// PollBulkOperation fetches the current state of a bulk operation.
// Never blocks on completion; one bounded call per invocation.
func (c *Client) PollBulkOperation(ctx context.Context, shop, operationID string) (*interfaces.BulkOperationState, error) {
	var result struct {
		Node *bulkOperationNode `json:"node"`
	}
	err := c.execute(ctx, shop, bulkPollQuery, map[string]interface{}{
		"id": operationID,
	}, &result)
	if err != nil {
		return nil, err
	}
	if result.Node == nil {
		return nil, fmt.Errorf("bulk operation %s not found", operationID)
	}

	objectCount, _ := strconv.ParseInt(result.Node.ObjectCount, 10, 64)

	return &interfaces.BulkOperationState{
		ID:          result.Node.ID,
		Status:      interfaces.BulkOperationStatus(result.Node.Status),
		URL:         result.Node.URL,
		ObjectCount: objectCount,
		ErrorCode:   result.Node.ErrorCode,
	}, nil
}

const stagedUploadsMutation = `mutation stagedUploadsCreate($input: [StagedUploadInput!]!) {
  stagedUploadsCreate(input: $input) {
    stagedTargets {
      url
      resourceUrl
      parameters { name value }
    }
    userErrors { field message }
  }
}`

// StagedUpload performs the two-phase upload for bulk mutation input:
// obtain a staged target with credentials, then POST the JSONL file as
// multipart form data. Returns the target whose key feeds
// RunBulkMutation.
func (c *Client) StagedUpload(ctx context.Context, shop, filename string, contents []byte) (*interfaces.StagedUploadTarget, error) {
	var result struct {
		StagedUploadsCreate struct {
			StagedTargets []stagedTarget `json:"stagedTargets"`
			UserErrors    []userError    `json:"userErrors"`
		} `json:"stagedUploadsCreate"`
	}
	err := c.execute(ctx, shop, stagedUploadsMutation, map[string]interface{}{
		"input": []map[string]interface{}{
			{
				"resource":   "BULK_MUTATION_VARIABLES",
				"filename":   filename,
				"mimeType":   "text/jsonl",
				"httpMethod": "POST",
			},
		},
	}, &result)
	if err != nil {
		return nil, err
	}
	if len(result.StagedUploadsCreate.UserErrors) > 0 {
		return nil, fmt.Errorf("staged upload rejected: %s", joinUserErrors(result.StagedUploadsCreate.UserErrors))
	}
	if len(result.StagedUploadsCreate.StagedTargets) == 0 {
		return nil, fmt.Errorf("staged upload returned no targets")
	}

	raw := result.StagedUploadsCreate.StagedTargets[0]
	target := &interfaces.StagedUploadTarget{
		URL:        raw.URL,
		Parameters: make(map[string]string, len(raw.Parameters)),
	}
	for _, p := range raw.Parameters {
		target.Parameters[p.Name] = p.Value
		if p.Name == "key" {
			target.Key = p.Value
		}
	}

	if err := c.uploadMultipart(ctx, target, filename, contents); err != nil {
		return nil, err
	}

	return target, nil
}

func (c *Client) uploadMultipart(ctx context.Context, target *interfaces.StagedUploadTarget, filename string, contents []byte) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	// Credential parameters must precede the file part.
	for name, value := range target.Parameters {
		if err := writer.WriteField(name, value); err != nil {
			return fmt.Errorf("failed to write upload field: %w", err)
		}
	}

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("failed to create upload part: %w", err)
	}
	if _, err := part.Write(contents); err != nil {
		return fmt.Errorf("failed to write upload contents: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize upload body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, &buf)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload staged file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return nil
}

// DownloadResult fetches a completed bulk operation's JSONL result file.
func (c *Client) DownloadResult(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download result file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return io.ReadAll(resp.Body)
}

func joinUserErrors(errs []userError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Message)
	}
	return strings.Join(parts, "; ")
}
