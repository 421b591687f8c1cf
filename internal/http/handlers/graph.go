package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-prereq/internal/http/response"
	"github.com/yungbote/neurobridge-prereq/internal/modules/prereq"
	"github.com/yungbote/neurobridge-prereq/internal/platform/apierr"
	"github.com/yungbote/neurobridge-prereq/internal/platform/llm"
	"github.com/yungbote/neurobridge-prereq/internal/platform/logger"
	"github.com/yungbote/neurobridge-prereq/internal/services"
)

type GraphHandler struct {
	svc services.GraphService
	log *logger.Logger
}

func NewGraphHandler(svc services.GraphService, baseLog *logger.Logger) *GraphHandler {
	return &GraphHandler{svc: svc, log: baseLog.With("handler", "GraphHandler")}
}

type seedRequest struct {
	GradeLevel string `json:"grade_level" binding:"required"`
}

type expandRequest struct {
	Topic string `json:"topic" binding:"required"`
}

type advanceStatusRequest struct {
	Status     string  `json:"status" binding:"required"`
	ContentRef *string `json:"content_ref"`
	Reason     string  `json:"reason"`
}

// POST /api/learners/:owner_id/seed
func (h *GraphHandler) Seed(c *gin.Context) {
	ownerID, ok := ownerParam(c)
	if !ok {
		return
	}
	var req seedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.svc.SeedLearner(c.Request.Context(), ownerID, req.GradeLevel)
	if err != nil {
		response.RespondAPIError(c, graphError(err))
		return
	}
	response.RespondOK(c, res)
}

// POST /api/learners/:owner_id/expand
func (h *GraphHandler) Expand(c *gin.Context) {
	ownerID, ok := ownerParam(c)
	if !ok {
		return
	}
	var req expandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.svc.Expand(c.Request.Context(), ownerID, req.Topic)
	if err != nil {
		response.RespondAPIError(c, graphError(err))
		return
	}
	response.RespondOK(c, res)
}

// POST /api/learners/:owner_id/propagate
func (h *GraphHandler) Propagate(c *gin.Context) {
	ownerID, ok := ownerParam(c)
	if !ok {
		return
	}
	report, err := h.svc.Propagate(c.Request.Context(), ownerID)
	if err != nil {
		response.RespondAPIError(c, graphError(err))
		return
	}
	response.RespondOK(c, gin.H{"propagation": report})
}

// GET /api/learners/:owner_id/graph
func (h *GraphHandler) Graph(c *gin.Context) {
	ownerID, ok := ownerParam(c)
	if !ok {
		return
	}
	view, err := h.svc.GraphStructure(c.Request.Context(), ownerID)
	if err != nil {
		response.RespondAPIError(c, graphError(err))
		return
	}
	response.RespondOK(c, view)
}

// GET /api/learners/:owner_id/nodes/:node_id
func (h *GraphHandler) Node(c *gin.Context) {
	ownerID, ok := ownerParam(c)
	if !ok {
		return
	}
	view, err := h.svc.NodeDetails(c.Request.Context(), ownerID, c.Param("node_id"))
	if err != nil {
		response.RespondAPIError(c, graphError(err))
		return
	}
	response.RespondOK(c, gin.H{"node": view})
}

// POST /api/learners/:owner_id/nodes/:node_id/status
func (h *GraphHandler) AdvanceStatus(c *gin.Context) {
	ownerID, ok := ownerParam(c)
	if !ok {
		return
	}
	var req advanceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.svc.AdvanceStatus(c.Request.Context(), services.AdvanceStatusRequest{
		OwnerID:    ownerID,
		NodeID:     c.Param("node_id"),
		Status:     req.Status,
		ContentRef: req.ContentRef,
		Reason:     req.Reason,
	})
	if err != nil {
		response.RespondAPIError(c, graphError(err))
		return
	}
	response.RespondOK(c, res)
}

func ownerParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("owner_id")))
	if err != nil || id == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_owner_id", fmt.Errorf("invalid owner_id"))
		return uuid.Nil, false
	}
	return id, true
}

// graphError maps service and engine errors onto API errors.
func graphError(err error) error {
	switch {
	case errors.Is(err, prereq.ErrEmptyTopic):
		return apierr.BadRequest("empty_topic", err)
	case errors.Is(err, services.ErrInvalidStatus):
		return apierr.BadRequest("invalid_status", err)
	case errors.Is(err, services.ErrUnknownGrade):
		return apierr.BadRequest("unknown_grade_level", err)
	case errors.Is(err, prereq.ErrRootMissing):
		return apierr.NotFound("learner_not_seeded", err)
	case errors.Is(err, services.ErrNodeNotFound):
		return apierr.NotFound("node_not_found", err)
	case errors.Is(err, services.ErrInvalidTransition):
		return apierr.Conflict("invalid_transition", err)
	case errors.Is(err, services.ErrRootImmutable):
		return apierr.Conflict("root_immutable", err)
	case errors.Is(err, prereq.ErrMalformedStatus):
		return apierr.Conflict("malformed_status", err)
	case errors.Is(err, prereq.ErrDepthExceeded):
		return apierr.New(http.StatusUnprocessableEntity, "depth_exceeded", err)
	case isRateLimit(err):
		return apierr.New(http.StatusTooManyRequests, "oracle_rate_limited", err)
	case errors.Is(err, prereq.ErrOracleDecomposition), errors.Is(err, prereq.ErrOracleCoverage):
		return apierr.New(http.StatusBadGateway, "oracle_failed", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apierr.New(http.StatusGatewayTimeout, "timeout", err)
	default:
		return err
	}
}

func isRateLimit(err error) bool {
	var rl *llm.ErrRateLimit
	return errors.As(err, &rl)
}
