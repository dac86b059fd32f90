package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/interfaces"
	"golang.org/x/time/rate"
)

const (
	// DefaultAPIVersion is the Admin API version used when none is configured.
	DefaultAPIVersion = "2024-10"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default request rate (requests per second).
	// The GraphQL Admin API cost budget refills at roughly this order.
	DefaultRateLimit = 2
)

// TokenResolver returns the Admin API access token for a shop domain.
type TokenResolver func(shop string) (string, error)

// Client is a Shopify Admin GraphQL API client. One client serves all
// shops; the token resolver supplies per-shop credentials.
type Client struct {
	apiVersion string
	baseURL    string // test override; empty in production
	tokens     TokenResolver
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithAPIVersion sets the Admin API version.
func WithAPIVersion(version string) ClientOption {
	return func(c *Client) {
		c.apiVersion = version
	}
}

// WithBaseURL overrides the per-shop endpoint with a fixed URL.
// Used by tests against a local server.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a new Admin API client.
func NewClient(tokens TokenResolver, opts ...ClientOption) *Client {
	c := &Client{
		apiVersion: DefaultAPIVersion,
		tokens:     tokens,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) endpoint(shop string) string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", shop, c.apiVersion)
}

// execute posts a GraphQL document and decodes the data envelope into
// result. Throttling and GraphQL-level errors come back as typed errors.
func (c *Client) execute(ctx context.Context, shop, query string, variables map[string]interface{}, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	token, err := c.tokens(shop)
	if err != nil {
		return err
	}

	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(shop), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", token)

	if c.logger != nil {
		c.logger.Debug().
			Str("shop", shop).
			Msg("Admin API request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrThrottled
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var envelope graphqlResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			if e.Extensions.Code == "THROTTLED" {
				return ErrThrottled
			}
			messages = append(messages, e.Message)
		}
		return &APIError{Messages: messages}
	}

	if result != nil {
		if err := json.Unmarshal(envelope.Data, result); err != nil {
			return fmt.Errorf("failed to decode data: %w", err)
		}
	}
	return nil
}

func convertUserErrors(errs []userError) []interfaces.UserError {
	if len(errs) == 0 {
		return nil
	}
	out := make([]interfaces.UserError, 0, len(errs))
	for _, e := range errs {
		out = append(out, interfaces.UserError{
			Field:   strings.Join(e.Field, "."),
			Message: e.Message,
		})
	}
	return out
}

const tagsAddMutation = `mutation tagsAdd($id: ID!, $tags: [String!]!) {
  tagsAdd(id: $id, tags: $tags) {
    userErrors { field message }
  }
}`

// TagsAdd appends tags to a resource.
func (c *Client) TagsAdd(ctx context.Context, shop, resourceID string, tags []string) ([]interfaces.UserError, error) {
	var result struct {
		TagsAdd struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"tagsAdd"`
	}
	err := c.execute(ctx, shop, tagsAddMutation, map[string]interface{}{
		"id":   resourceID,
		"tags": tags,
	}, &result)
	if err != nil {
		return nil, err
	}
	return convertUserErrors(result.TagsAdd.UserErrors), nil
}

const tagsRemoveMutation = `mutation tagsRemove($id: ID!, $tags: [String!]!) {
  tagsRemove(id: $id, tags: $tags) {
    userErrors { field message }
  }
}`

// TagsRemove removes tags from a resource.
func (c *Client) TagsRemove(ctx context.Context, shop, resourceID string, tags []string) ([]interfaces.UserError, error) {
	var result struct {
		TagsRemove struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"tagsRemove"`
	}
	err := c.execute(ctx, shop, tagsRemoveMutation, map[string]interface{}{
		"id":   resourceID,
		"tags": tags,
	}, &result)
	if err != nil {
		return nil, err
	}
	return convertUserErrors(result.TagsRemove.UserErrors), nil
}

const metafieldsSetMutation = `mutation metafieldsSet($metafields: [MetafieldsSetInput!]!) {
  metafieldsSet(metafields: $metafields) {
    userErrors { field message }
  }
}`

// MetafieldSet writes one metafield on a resource.
func (c *Client) MetafieldSet(ctx context.Context, shop, resourceID, namespace, key, value, valueType string) ([]interfaces.UserError, error) {
	var result struct {
		MetafieldsSet struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"metafieldsSet"`
	}
	err := c.execute(ctx, shop, metafieldsSetMutation, map[string]interface{}{
		"metafields": []map[string]interface{}{
			{
				"ownerId":   resourceID,
				"namespace": namespace,
				"key":       key,
				"value":     value,
				"type":      valueType,
			},
		},
	}, &result)
	if err != nil {
		return nil, err
	}
	return convertUserErrors(result.MetafieldsSet.UserErrors), nil
}

const metafieldsDeleteMutation = `mutation metafieldsDelete($metafields: [MetafieldIdentifierInput!]!) {
  metafieldsDelete(metafields: $metafields) {
    userErrors { field message }
  }
}`

// MetafieldRemove deletes one metafield from a resource.
func (c *Client) MetafieldRemove(ctx context.Context, shop, resourceID, namespace, key string) ([]interfaces.UserError, error) {
	var result struct {
		MetafieldsDelete struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"metafieldsDelete"`
	}
	err := c.execute(ctx, shop, metafieldsDeleteMutation, map[string]interface{}{
		"metafields": []map[string]interface{}{
			{
				"ownerId":   resourceID,
				"namespace": namespace,
				"key":       key,
			},
		},
	}, &result)
	if err != nil {
		return nil, err
	}
	return convertUserErrors(result.MetafieldsDelete.UserErrors), nil
}
