package fraud

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/wekezahq/nexus/pkg/common"
	"github.com/wekezahq/nexus/pkg/pagination"
)

// Handler handles HTTP requests for the fraud evaluation surface. These
// endpoints serve analysts and internal tooling; payment flows consume the
// service as a library call.
type Handler struct {
	service *Service
}

// NewHandler creates a new fraud handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// ReEvaluateRequest is the step-up re-evaluation payload
type ReEvaluateRequest struct {
	ContextID       uuid.UUID `json:"context_id" binding:"required"`
	ChallengePassed bool      `json:"challenge_passed"`
}

// GetEvaluation returns one audit record
// GET /api/v1/fraud/evaluations/:id
func (h *Handler) GetEvaluation(c *gin.Context) {
	contextID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid evaluation ID")
		return
	}

	eval, err := h.service.GetEvaluation(c.Request.Context(), contextID)
	if err != nil {
		if appErr, ok := err.(*common.AppError); ok {
			common.AppErrorResponse(c, appErr)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to get evaluation")
		return
	}

	common.SuccessResponse(c, eval)
}

// ListEvaluations returns a page of recent audit records
// GET /api/v1/fraud/evaluations
func (h *Handler) ListEvaluations(c *gin.Context) {
	params := pagination.ParseParams(c)

	evals, total, err := h.service.ListRecentEvaluations(c.Request.Context(), params.Limit, params.Offset)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to list evaluations")
		return
	}

	meta := pagination.BuildMeta(params.Limit, params.Offset, total)
	common.SuccessResponseWithMeta(c, evals, meta)
}

// ReEvaluate adjusts a verdict after a step-up challenge completes
// POST /api/v1/fraud/reevaluate
func (h *Handler) ReEvaluate(c *gin.Context) {
	var req ReEvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	score := h.service.ReEvaluateAfterChallenge(c.Request.Context(), req.ContextID, req.ChallengePassed)
	common.SuccessResponse(c, score)
}
