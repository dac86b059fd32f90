package shopify

import "encoding/json"

// graphqlRequest is the POST body for the Admin GraphQL endpoint.
type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// graphqlResponse is the standard response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors,omitempty"`
}

type graphqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions,omitempty"`
}

// userError is the in-band mutation error shape. Field arrives as a
// path array from the API.
type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

type bulkOperationNode struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	URL         string `json:"url"`
	ObjectCount string `json:"objectCount"`
	ErrorCode   string `json:"errorCode"`
}

type stagedTarget struct {
	URL         string `json:"url"`
	ResourceURL string `json:"resourceUrl"`
	Parameters  []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"parameters"`
}
