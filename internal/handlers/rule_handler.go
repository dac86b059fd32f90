package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/models"
	"github.com/ternarybob/tagforge/internal/services/rules"
	badgerstore "github.com/ternarybob/tagforge/internal/storage/badger"
)

// RuleHandler handles HTTP requests for metafield and tagging rules.
type RuleHandler struct {
	ruleService *rules.Service
	logger      arbor.ILogger
}

// NewRuleHandler creates a new RuleHandler.
func NewRuleHandler(ruleService *rules.Service, logger arbor.ILogger) *RuleHandler {
	return &RuleHandler{
		ruleService: ruleService,
		logger:      logger,
	}
}

func resourceTypeParam(r *http.Request) models.ResourceType {
	return models.ResourceType(r.URL.Query().Get("resource_type"))
}

// ListMetafieldRulesHandler handles GET /api/rules/metafield
func (h *RuleHandler) ListMetafieldRulesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	shop := RequireShop(w, r)
	if shop == "" {
		return
	}

	list, err := h.ruleService.Storage().ListMetafieldRules(r.Context(), shop, resourceTypeParam(r))
	if err != nil {
		h.logger.Error().Err(err).Str("shop", shop).Msg("Failed to list metafield rules")
		WriteError(w, http.StatusInternalServerError, "Failed to list metafield rules")
		return
	}
	if list == nil {
		list = []models.MetafieldRule{}
	}
	WriteJSON(w, http.StatusOK, list)
}

// SaveMetafieldRuleHandler handles POST /api/rules/metafield
func (h *RuleHandler) SaveMetafieldRuleHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	shop := RequireShop(w, r)
	if shop == "" {
		return
	}

	var rule models.MetafieldRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	rule.Shop = shop

	if err := h.ruleService.SaveMetafieldRule(r.Context(), &rule); err != nil {
		if errors.Is(err, badgerstore.ErrDuplicateRule) {
			WriteError(w, http.StatusConflict, "A rule for this namespace and key already exists")
			return
		}
		h.logger.Error().Err(err).Str("shop", shop).Msg("Failed to save metafield rule")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, rule)
}

// DeleteMetafieldRuleHandler handles DELETE /api/rules/metafield/{id}
func (h *RuleHandler) DeleteMetafieldRuleHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}
	id := extractIDFromPath(r.URL.Path, "/api/rules/metafield/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Rule ID is required")
		return
	}
	if err := h.ruleService.Storage().DeleteMetafieldRule(r.Context(), id); err != nil {
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to delete metafield rule")
		WriteError(w, http.StatusInternalServerError, "Failed to delete metafield rule")
		return
	}
	WriteSuccess(w, "Metafield rule deleted")
}

// ListTaggingRulesHandler handles GET /api/rules/tagging
func (h *RuleHandler) ListTaggingRulesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	shop := RequireShop(w, r)
	if shop == "" {
		return
	}

	list, err := h.ruleService.Storage().ListTaggingRules(r.Context(), shop, resourceTypeParam(r))
	if err != nil {
		h.logger.Error().Err(err).Str("shop", shop).Msg("Failed to list tagging rules")
		WriteError(w, http.StatusInternalServerError, "Failed to list tagging rules")
		return
	}
	if list == nil {
		list = []models.TaggingRule{}
	}
	WriteJSON(w, http.StatusOK, list)
}

// SaveTaggingRuleHandler handles POST /api/rules/tagging
func (h *RuleHandler) SaveTaggingRuleHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	shop := RequireShop(w, r)
	if shop == "" {
		return
	}

	var rule models.TaggingRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	rule.Shop = shop

	if err := h.ruleService.SaveTaggingRule(r.Context(), &rule); err != nil {
		h.logger.Error().Err(err).Str("shop", shop).Msg("Failed to save tagging rule")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, rule)
}

// DeleteTaggingRuleHandler handles DELETE /api/rules/tagging/{id}
func (h *RuleHandler) DeleteTaggingRuleHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}
	id := extractIDFromPath(r.URL.Path, "/api/rules/tagging/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Rule ID is required")
		return
	}
	if err := h.ruleService.Storage().DeleteTaggingRule(r.Context(), id); err != nil {
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to delete tagging rule")
		WriteError(w, http.StatusInternalServerError, "Failed to delete tagging rule")
		return
	}
	WriteSuccess(w, "Tagging rule deleted")
}
