package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/models"
	"github.com/ternarybob/tagforge/internal/services/logs"
)

// LogsHandler handles HTTP requests for the automation audit trail.
type LogsHandler struct {
	logService *logs.Service
	logger     arbor.ILogger
}

// NewLogsHandler creates a new LogsHandler.
func NewLogsHandler(logService *logs.Service, logger arbor.ILogger) *LogsHandler {
	return &LogsHandler{
		logService: logService,
		logger:     logger,
	}
}

// ListHandler handles GET /api/logs. With resource_type and resource_id
// query parameters it filters to one resource's history.
func (h *LogsHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	shop := RequireShop(w, r)
	if shop == "" {
		return
	}

	limit := limitParam(r, 50, 500)
	resourceType := r.URL.Query().Get("resource_type")
	resourceID := r.URL.Query().Get("resource_id")

	var list []models.AutomationLog
	var err error
	if resourceType != "" && resourceID != "" {
		list, err = h.logService.ListByResource(r.Context(), shop, models.ResourceType(resourceType), resourceID, limit)
	} else {
		list, err = h.logService.List(r.Context(), shop, limit)
	}
	if err != nil {
		h.logger.Error().Err(err).Str("shop", shop).Msg("Failed to list automation logs")
		WriteError(w, http.StatusInternalServerError, "Failed to list logs")
		return
	}
	if list == nil {
		list = []models.AutomationLog{}
	}
	WriteJSON(w, http.StatusOK, list)
}

// GetHandler handles GET /api/logs/{jobID}
func (h *LogsHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	shop := RequireShop(w, r)
	if shop == "" {
		return
	}
	jobID := extractIDFromPath(r.URL.Path, "/api/logs/")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	record, err := h.logService.Get(r.Context(), shop, jobID)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get automation log")
		WriteError(w, http.StatusInternalServerError, "Failed to get log")
		return
	}
	if record == nil {
		WriteError(w, http.StatusNotFound, "Log not found")
		return
	}
	WriteJSON(w, http.StatusOK, record)
}
