package shopify

import (
	"errors"
	"fmt"
)

// ErrThrottled indicates the Admin API rejected the call for rate
// limiting. Transient: the queue's redelivery policy retries the step.
var ErrThrottled = errors.New("shopify: request throttled")

// APIError is a non-throttle GraphQL-level failure.
type APIError struct {
	Messages []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("shopify: graphql errors: %v", e.Messages)
}

// HTTPError is a transport-level failure with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("shopify: http %d: %s", e.StatusCode, e.Body)
}
