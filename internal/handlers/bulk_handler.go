package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/interfaces"
	"github.com/ternarybob/tagforge/internal/models"
	"github.com/ternarybob/tagforge/internal/services/backup"
	"github.com/ternarybob/tagforge/internal/services/bulkops"
	"github.com/ternarybob/tagforge/internal/services/usage"
)

// BulkHandler handles HTTP requests for bulk tag operations, their
// status, and backup-based reverts.
type BulkHandler struct {
	orchestrator  *bulkops.Orchestrator
	jobs          interfaces.JobStorage
	backupService *backup.Service
	logger        arbor.ILogger
}

// NewBulkHandler creates a new BulkHandler.
func NewBulkHandler(orchestrator *bulkops.Orchestrator, jobs interfaces.JobStorage, backupService *backup.Service, logger arbor.ILogger) *BulkHandler {
	return &BulkHandler{
		orchestrator:  orchestrator,
		jobs:          jobs,
		backupService: backupService,
		logger:        logger,
	}
}

// startRequest is the body for POST /api/bulk/operations.
type startRequest struct {
	Operation     models.BulkOperationType `json:"operation"`
	Params        models.BulkParams        `json:"params"`
	ResourceTypes []models.ResourceType    `json:"resource_types"`
}

// StartHandler handles POST /api/bulk/operations. Returns 202 with the
// job lineage id; progress is tracked through the status endpoint and
// the automation log.
func (h *BulkHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	shop := RequireShop(w, r)
	if shop == "" {
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	job, err := h.orchestrator.StartOperation(r.Context(), shop, req.Operation, req.Params, req.ResourceTypes)
	if err != nil {
		if errors.Is(err, usage.ErrQuotaExceeded) {
			WriteError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("shop", shop).Msg("Failed to start bulk operation")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"step":   string(job.Step),
	})
}

// ListHandler handles GET /api/bulk/operations
func (h *BulkHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	shop := RequireShop(w, r)
	if shop == "" {
		return
	}

	jobs, err := h.jobs.List(r.Context(), shop, limitParam(r, 50, 200))
	if err != nil {
		h.logger.Error().Err(err).Str("shop", shop).Msg("Failed to list bulk jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list bulk operations")
		return
	}
	if jobs == nil {
		jobs = []models.BulkJob{}
	}
	WriteJSON(w, http.StatusOK, jobs)
}

// StatusHandler handles GET /api/bulk/operations/{jobID}
func (h *BulkHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	shop := RequireShop(w, r)
	if shop == "" {
		return
	}
	jobID := extractIDFromPath(r.URL.Path, "/api/bulk/operations/")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, err := h.jobs.GetByJobID(r.Context(), jobID)
	if err != nil || job == nil || job.Shop != shop {
		WriteError(w, http.StatusNotFound, "Bulk operation not found")
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// revertRequest is the body for POST /api/bulk/revert.
type revertRequest struct {
	BackupID string `json:"backup_id"`
}

// RevertHandler handles POST /api/bulk/revert
func (h *BulkHandler) RevertHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	shop := RequireShop(w, r)
	if shop == "" {
		return
	}

	var req revertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BackupID == "" {
		WriteError(w, http.StatusBadRequest, "backup_id is required")
		return
	}

	job, err := h.orchestrator.QueueRevert(r.Context(), shop, req.BackupID)
	if err != nil {
		h.logger.Error().Err(err).Str("shop", shop).Str("backup_id", req.BackupID).Msg("Failed to queue revert")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"step":   string(job.Step),
	})
}

// ListBackupsHandler handles GET /api/backups
func (h *BulkHandler) ListBackupsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	shop := RequireShop(w, r)
	if shop == "" {
		return
	}

	backups, err := h.backupService.List(r.Context(), shop, limitParam(r, 50, 200))
	if err != nil {
		h.logger.Error().Err(err).Str("shop", shop).Msg("Failed to list backups")
		WriteError(w, http.StatusInternalServerError, "Failed to list backups")
		return
	}
	if backups == nil {
		backups = []models.Backup{}
	}
	WriteJSON(w, http.StatusOK, backups)
}

// previewQueryRequest is the body for POST /api/bulk/preview.
type previewQueryRequest struct {
	Operation    models.BulkOperationType `json:"operation"`
	Params       models.BulkParams        `json:"params"`
	ResourceType models.ResourceType      `json:"resource_type"`
}

// PreviewHandler handles POST /api/bulk/preview. Runs the bulk query
// synchronously and reports how many resources the operation would
// touch, without mutating anything.
func (h *BulkHandler) PreviewHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	shop := RequireShop(w, r)
	if shop == "" {
		return
	}

	var req previewQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rows, err := h.orchestrator.DryRunQuery(r.Context(), shop, req.ResourceType, req.Operation, req.Params)
	if err != nil {
		h.logger.Error().Err(err).Str("shop", shop).Msg("Bulk preview failed")
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}

	affected := 0
	for _, row := range rows {
		if _, changed := bulkops.ApplyTransform(req.Operation, req.Params, row.Tags); changed {
			affected++
		}
	}

	WriteJSON(w, http.StatusOK, map[string]int{
		"matched":  len(rows),
		"affected": affected,
	})
}
