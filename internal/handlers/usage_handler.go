package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/common"
	"github.com/ternarybob/tagforge/internal/services/usage"
)

// UsageHandler exposes a shop's monthly operation usage and quota.
type UsageHandler struct {
	usageService *usage.Service
	config       *common.Config
	logger       arbor.ILogger
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(usageService *usage.Service, config *common.Config, logger arbor.ILogger) *UsageHandler {
	return &UsageHandler{
		usageService: usageService,
		config:       config,
		logger:       logger,
	}
}

// GetHandler handles GET /api/usage
func (h *UsageHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	shop := RequireShop(w, r)
	if shop == "" {
		return
	}

	current, err := h.usageService.Current(r.Context(), shop)
	if err != nil {
		h.logger.Error().Err(err).Str("shop", shop).Msg("Failed to get usage")
		WriteError(w, http.StatusInternalServerError, "Failed to get usage")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"shop":            shop,
		"month":           current.Month,
		"operation_count": current.OperationCount,
		"monthly_limit":   h.config.PlanLimit(shop),
	})
}
