package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"crosspay.facilitator/internal/domain/entities"
	domainerrors "crosspay.facilitator/internal/domain/errors"
	"crosspay.facilitator/internal/interfaces/http/response"
	"crosspay.facilitator/internal/usecases"
)

// FacilitatorHandler exposes the x402 facilitator endpoints.
type FacilitatorHandler struct {
	facilitator *usecases.FacilitatorUsecase
}

func NewFacilitatorHandler(facilitator *usecases.FacilitatorUsecase) *FacilitatorHandler {
	return &FacilitatorHandler{facilitator: facilitator}
}

// Verify handles POST /verify. A malformed body is the only 400; an
// invalid payment is still HTTP 200 with isValid false and a reason.
func (h *FacilitatorHandler) Verify(c *gin.Context) {
	var req entities.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest("invalid request body: "+err.Error()))
		return
	}

	resp := h.facilitator.Verify(c.Request.Context(), &req)
	response.Success(c, http.StatusOK, resp)
}

// Settle handles POST /settle. Settlement failures are HTTP 200 with
// success false; only a malformed body is a 400.
func (h *FacilitatorHandler) Settle(c *gin.Context) {
	var req entities.SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest("invalid request body: "+err.Error()))
		return
	}

	resp := h.facilitator.Settle(c.Request.Context(), &req)
	response.Success(c, http.StatusOK, resp)
}

// Supported handles GET /supported.
func (h *FacilitatorHandler) Supported(c *gin.Context) {
	response.Success(c, http.StatusOK, h.facilitator.GetSupported())
}

// Health handles GET /health.
func (h *FacilitatorHandler) Health(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"status":      "ok",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"facilitator": "crosspay-facilitator",
	})
}
