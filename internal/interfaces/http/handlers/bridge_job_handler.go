package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"crosspay.facilitator/internal/domain/entities"
	domainerrors "crosspay.facilitator/internal/domain/errors"
	"crosspay.facilitator/internal/interfaces/http/response"
	"crosspay.facilitator/internal/usecases"
	"crosspay.facilitator/pkg/utils"
)

// BridgeJobHandler is the admin surface over bridge jobs.
type BridgeJobHandler struct {
	bridge *usecases.BridgeUsecase
}

func NewBridgeJobHandler(bridge *usecases.BridgeUsecase) *BridgeJobHandler {
	return &BridgeJobHandler{bridge: bridge}
}

// List handles GET /admin/bridge-jobs?status=&page=&limit=
func (h *BridgeJobHandler) List(c *gin.Context) {
	status := entities.BridgeJobStatus(c.Query("status"))
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	pagination := utils.NormalizePagination(page, limit)

	jobs, total, err := h.bridge.ListJobs(c.Request.Context(), status, pagination)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": total,
		"page":  pagination.Page,
		"limit": pagination.Limit,
	})
}

// Get handles GET /admin/bridge-jobs/:id
func (h *BridgeJobHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("invalid job id"))
		return
	}

	job, err := h.bridge.GetJob(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			response.Error(c, domainerrors.NotFound("bridge job not found"))
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, job)
}

// GetByKey handles GET /admin/bridge-jobs/by-key/:key
func (h *BridgeJobHandler) GetByKey(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		response.Error(c, domainerrors.BadRequest("missing idempotency key"))
		return
	}

	job, err := h.bridge.GetJobByKey(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			response.Error(c, domainerrors.NotFound("bridge job not found"))
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, job)
}

// Events handles GET /admin/bridge-jobs/:id/events
func (h *BridgeJobHandler) Events(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("invalid job id"))
		return
	}

	events, err := h.bridge.ListJobEvents(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			response.Error(c, domainerrors.NotFound("bridge job not found"))
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"events": events})
}

// Cancel handles POST /admin/bridge-jobs/:id/cancel. Only pending jobs
// can be cancelled; anything further along may already have burned funds.
func (h *BridgeJobHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("invalid job id"))
		return
	}

	job, err := h.bridge.Cancel(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domainerrors.ErrNotFound):
			response.Error(c, domainerrors.NotFound("bridge job not found"))
		case errors.Is(err, domainerrors.ErrJobNotPending), errors.Is(err, domainerrors.ErrJobTerminal):
			response.Error(c, domainerrors.Conflict("bridge job is not pending"))
		default:
			response.Error(c, err)
		}
		return
	}
	response.Success(c, http.StatusOK, job)
}
