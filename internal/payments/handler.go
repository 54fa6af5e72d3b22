package payments

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wekezahq/nexus/pkg/common"
	"github.com/wekezahq/nexus/pkg/middleware"
	"github.com/wekezahq/nexus/pkg/pagination"
)

// Handler handles HTTP requests for transfers
type Handler struct {
	service *Service
}

// NewHandler creates a new payments handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// CreateTransfer creates a new transfer
// POST /api/v1/transfers
func (h *Handler) CreateTransfer(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	response, err := h.service.CreateTransfer(c.Request.Context(), userID, &req)
	if err != nil {
		if appErr, ok := err.(*common.AppError); ok {
			common.AppErrorResponse(c, appErr)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to create transfer")
		return
	}

	common.CreatedResponse(c, response)
}

// CompleteStepUp completes a step-up challenge for a held transfer
// POST /api/v1/transfers/stepup
func (h *Handler) CompleteStepUp(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req StepUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	response, err := h.service.CompleteStepUp(c.Request.Context(), userID, &req)
	if err != nil {
		if appErr, ok := err.(*common.AppError); ok {
			common.AppErrorResponse(c, appErr)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to complete step-up")
		return
	}

	common.SuccessResponse(c, response)
}

// ListTransfers lists the authenticated user's transfers
// GET /api/v1/transfers
func (h *Handler) ListTransfers(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	params := pagination.ParseParams(c)

	transfers, total, err := h.service.ListTransfers(c.Request.Context(), userID, params.Limit, params.Offset)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to list transfers")
		return
	}

	meta := pagination.BuildMeta(params.Limit, params.Offset, total)
	common.SuccessResponseWithMeta(c, transfers, meta)
}
