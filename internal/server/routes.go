package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Inbound platform webhooks (HMAC-verified, not part of the API)
	mux.HandleFunc("/webhooks/", s.app.WebhookHandler.ReceiveHandler)

	// API routes - Recipes
	mux.HandleFunc("/api/recipes", s.handleRecipesRoute)  // GET (list), POST (create)
	mux.HandleFunc("/api/recipes/", s.handleRecipeRoutes) // GET/PUT/DELETE /{id}, POST /{id}/enable|disable
	mux.HandleFunc("/api/recipes/preview", s.app.RecipeHandler.PreviewHandler)
	mux.HandleFunc("/api/recipes/validate", s.app.RecipeHandler.ValidateHandler)

	// API routes - Rules
	mux.HandleFunc("/api/rules/metafield", s.handleMetafieldRulesRoute)
	mux.HandleFunc("/api/rules/metafield/", s.app.RuleHandler.DeleteMetafieldRuleHandler)
	mux.HandleFunc("/api/rules/tagging", s.handleTaggingRulesRoute)
	mux.HandleFunc("/api/rules/tagging/", s.app.RuleHandler.DeleteTaggingRuleHandler)

	// API routes - Bulk operations and backups
	mux.HandleFunc("/api/bulk/operations", s.handleBulkRoute)
	mux.HandleFunc("/api/bulk/operations/", s.app.BulkHandler.StatusHandler)
	mux.HandleFunc("/api/bulk/preview", s.app.BulkHandler.PreviewHandler)
	mux.HandleFunc("/api/bulk/revert", s.app.BulkHandler.RevertHandler)
	mux.HandleFunc("/api/backups", s.app.BulkHandler.ListBackupsHandler)

	// API routes - Audit trail and usage
	mux.HandleFunc("/api/logs", s.app.LogsHandler.ListHandler)
	mux.HandleFunc("/api/logs/", s.app.LogsHandler.GetHandler)
	mux.HandleFunc("/api/usage", s.app.UsageHandler.GetHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleRecipesRoute routes /api/recipes requests (list and create)
func (s *Server) handleRecipesRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.RecipeHandler.ListHandler(w, r)
	case "POST":
		s.app.RecipeHandler.CreateHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRecipeRoutes routes /api/recipes/{id} requests and the
// enable/disable subpaths
func (s *Server) handleRecipeRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// Fixed subpaths registered on the same prefix
	if path == "/api/recipes/preview" {
		s.app.RecipeHandler.PreviewHandler(w, r)
		return
	}
	if path == "/api/recipes/validate" {
		s.app.RecipeHandler.ValidateHandler(w, r)
		return
	}

	if r.Method == "POST" && (strings.HasSuffix(path, "/enable") || strings.HasSuffix(path, "/disable")) {
		s.app.RecipeHandler.ToggleHandler(w, r)
		return
	}

	switch r.Method {
	case "GET":
		s.app.RecipeHandler.GetHandler(w, r)
	case "PUT":
		s.app.RecipeHandler.UpdateHandler(w, r)
	case "DELETE":
		s.app.RecipeHandler.DeleteHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleMetafieldRulesRoute routes /api/rules/metafield requests
func (s *Server) handleMetafieldRulesRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.RuleHandler.ListMetafieldRulesHandler(w, r)
	case "POST":
		s.app.RuleHandler.SaveMetafieldRuleHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleTaggingRulesRoute routes /api/rules/tagging requests
func (s *Server) handleTaggingRulesRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.RuleHandler.ListTaggingRulesHandler(w, r)
	case "POST":
		s.app.RuleHandler.SaveTaggingRuleHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleBulkRoute routes /api/bulk/operations requests
func (s *Server) handleBulkRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.BulkHandler.ListHandler(w, r)
	case "POST":
		s.app.BulkHandler.StartHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
