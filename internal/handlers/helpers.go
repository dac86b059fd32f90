package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a standard success JSON response.
func WriteSuccess(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": message,
	})
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// RequireShop resolves the shop domain for an API request from the
// X-Shop-Domain header or the "shop" query parameter. Returns empty
// string after writing the error response when neither is present.
func RequireShop(w http.ResponseWriter, r *http.Request) string {
	shop := r.Header.Get("X-Shop-Domain")
	if shop == "" {
		shop = r.URL.Query().Get("shop")
	}
	if shop == "" {
		WriteError(w, http.StatusBadRequest, "Shop domain is required")
		return ""
	}
	return strings.ToLower(shop)
}

// extractIDFromPath returns the path segment immediately after prefix,
// stripped of any trailing subpath.
func extractIDFromPath(path, prefix string) string {
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	rest := strings.Trim(path[len(prefix):], "/")
	if idx := strings.Index(rest, "/"); idx >= 0 {
		rest = rest[:idx]
	}
	return rest
}

// limitParam reads the "limit" query parameter with a default and cap.
func limitParam(r *http.Request, def, max int) int {
	limit := def
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}
