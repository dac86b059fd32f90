package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/models"
	"github.com/ternarybob/tagforge/internal/services/engine"
	"github.com/ternarybob/tagforge/internal/services/recipes"
)

// RecipeHandler handles HTTP requests for recipe management.
type RecipeHandler struct {
	recipeService *recipes.Service
	engineService *engine.Service
	logger        arbor.ILogger
}

// NewRecipeHandler creates a new RecipeHandler.
func NewRecipeHandler(recipeService *recipes.Service, engineService *engine.Service, logger arbor.ILogger) *RecipeHandler {
	return &RecipeHandler{
		recipeService: recipeService,
		engineService: engineService,
		logger:        logger,
	}
}

// ListHandler handles GET /api/recipes
func (h *RecipeHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	shop := RequireShop(w, r)
	if shop == "" {
		return
	}

	list, err := h.recipeService.List(r.Context(), shop)
	if err != nil {
		h.logger.Error().Err(err).Str("shop", shop).Msg("Failed to list recipes")
		WriteError(w, http.StatusInternalServerError, "Failed to list recipes")
		return
	}
	if list == nil {
		list = []models.Recipe{}
	}
	WriteJSON(w, http.StatusOK, list)
}

// CreateHandler handles POST /api/recipes. The body is validated as an
// untrusted recipe document, which covers hand-written and generated
// JSON alike.
func (h *RecipeHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	shop := RequireShop(w, r)
	if shop == "" {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	recipe, err := h.recipeService.ParseJSON(shop, body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.recipeService.Create(r.Context(), recipe); err != nil {
		h.logger.Error().Err(err).Str("shop", shop).Msg("Failed to create recipe")
		WriteError(w, http.StatusInternalServerError, "Failed to create recipe")
		return
	}
	WriteJSON(w, http.StatusCreated, recipe)
}

// GetHandler handles GET /api/recipes/{id}
func (h *RecipeHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	shop := RequireShop(w, r)
	if shop == "" {
		return
	}
	id := extractIDFromPath(r.URL.Path, "/api/recipes/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Recipe ID is required")
		return
	}

	recipe, err := h.recipeService.Get(r.Context(), shop, id)
	if err != nil {
		if errors.Is(err, recipes.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Recipe not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to get recipe")
		WriteError(w, http.StatusInternalServerError, "Failed to get recipe")
		return
	}
	WriteJSON(w, http.StatusOK, recipe)
}

// UpdateHandler handles PUT /api/recipes/{id}
func (h *RecipeHandler) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "PUT") {
		return
	}
	shop := RequireShop(w, r)
	if shop == "" {
		return
	}
	id := extractIDFromPath(r.URL.Path, "/api/recipes/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Recipe ID is required")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Failed to read body")
		return
	}
	recipe, err := h.recipeService.ParseJSON(shop, body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	recipe.ID = id

	if err := h.recipeService.Update(r.Context(), recipe); err != nil {
		if errors.Is(err, recipes.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Recipe not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to update recipe")
		WriteError(w, http.StatusInternalServerError, "Failed to update recipe")
		return
	}
	WriteJSON(w, http.StatusOK, recipe)
}

// DeleteHandler handles DELETE /api/recipes/{id}
func (h *RecipeHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}
	shop := RequireShop(w, r)
	if shop == "" {
		return
	}
	id := extractIDFromPath(r.URL.Path, "/api/recipes/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Recipe ID is required")
		return
	}

	if err := h.recipeService.Delete(r.Context(), shop, id); err != nil {
		if errors.Is(err, recipes.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Recipe not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to delete recipe")
		WriteError(w, http.StatusInternalServerError, "Failed to delete recipe")
		return
	}
	WriteSuccess(w, "Recipe deleted")
}

// ToggleHandler handles POST /api/recipes/{id}/enable and
// POST /api/recipes/{id}/disable
func (h *RecipeHandler) ToggleHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	shop := RequireShop(w, r)
	if shop == "" {
		return
	}
	id := extractIDFromPath(r.URL.Path, "/api/recipes/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Recipe ID is required")
		return
	}
	enabled := strings.HasSuffix(r.URL.Path, "/enable")

	if err := h.recipeService.SetEnabled(r.Context(), shop, id, enabled); err != nil {
		if errors.Is(err, recipes.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Recipe not found")
			return
		}
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if enabled {
		WriteSuccess(w, "Recipe enabled")
	} else {
		WriteSuccess(w, "Recipe disabled")
	}
}

// previewRequest is the body for a recipe dry run: either a stored
// recipe id or an inline recipe, plus a sample payload.
type previewRequest struct {
	RecipeID string          `json:"recipe_id,omitempty"`
	Recipe   *models.Recipe  `json:"recipe,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// PreviewHandler handles POST /api/recipes/preview. Evaluates the
// recipe's conditions against the sample payload without executing any
// actions and returns the per-condition trace.
func (h *RecipeHandler) PreviewHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	shop := RequireShop(w, r)
	if shop == "" {
		return
	}

	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Payload) == 0 {
		WriteError(w, http.StatusBadRequest, "Sample payload is required")
		return
	}

	recipe := req.Recipe
	if recipe == nil {
		if req.RecipeID == "" {
			WriteError(w, http.StatusBadRequest, "Either recipe or recipe_id is required")
			return
		}
		stored, err := h.recipeService.Get(r.Context(), shop, req.RecipeID)
		if err != nil {
			if errors.Is(err, recipes.ErrNotFound) {
				WriteError(w, http.StatusNotFound, "Recipe not found")
				return
			}
			WriteError(w, http.StatusInternalServerError, "Failed to load recipe")
			return
		}
		recipe = stored
	}

	evaluation := h.engineService.Preview(r.Context(), recipe, req.Payload)
	WriteJSON(w, http.StatusOK, evaluation)
}

// ValidateHandler handles POST /api/recipes/validate. Parses and
// validates a recipe document without persisting it, returning either
// the normalized recipe or the validation error.
func (h *RecipeHandler) ValidateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	shop := RequireShop(w, r)
	if shop == "" {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	recipe, err := h.recipeService.ParseJSON(shop, body)
	if err != nil {
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"valid":  true,
		"recipe": recipe,
	})
}
