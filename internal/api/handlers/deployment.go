package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"factory/internal/api/middleware"
	"factory/internal/apperrors"
	"factory/internal/deployment"
	"factory/internal/domain"
)

// DeploymentHandler serves the strategy-deployment request endpoints
// (C8). One generic handler is parameterized by domain.StrategyKind
// instead of five near-identical handlers, since the five request bodies
// differ only in their config_blob's internal shape, which this layer
// never inspects — validation of that shape belongs to the strategy
// template running inside the container, not to the Factory.
type DeploymentHandler struct {
	machine *deployment.Machine
	logger  *logrus.Logger
}

// NewDeploymentHandler creates a new deployment handler.
func NewDeploymentHandler(m *deployment.Machine, logger *logrus.Logger) *DeploymentHandler {
	return &DeploymentHandler{machine: m, logger: logger}
}

// DeployRequest is the payload for any strategy-deployment request.
type DeployRequest struct {
	Config json.RawMessage `json:"config" binding:"required"`
}

// Deploy handles POST /v1/strategies/:kind, opening a new deployment
// record for the caller.
// @Summary Deploy a strategy
// @Description Request deployment of a strategy from its configuration
// @Tags deployment
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param kind path string true "Strategy kind"
// @Param request body DeployRequest true "Strategy configuration"
// @Success 202 {object} domain.DeploymentRecord
// @Failure 400 {object} map[string]interface{}
// @Router /v1/strategies/{kind} [post]
func (h *DeploymentHandler) Deploy(c *gin.Context) {
	owner, err := middleware.GetOwner(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "unauthorized", "message": "unauthorized"}})
		return
	}

	kind := domain.StrategyKind(c.Param("kind"))
	if !domain.ValidStrategyKind(kind) {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "validation_error", "message": "unsupported strategy kind"}})
		return
	}

	var req DeployRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "validation_error", "message": err.Error()}})
		return
	}

	id := uuid.NewString()
	rec, err := h.machine.CreateDeployment(c.Request.Context(), id, owner, kind, req.Config)
	if err != nil {
		h.logger.Errorf("Failed to create deployment: %v", err)
		middleware.RespondError(c, err)
		return
	}

	if err := h.machine.Advance(c.Request.Context(), id); err != nil {
		h.logger.Warnf("Initial advance for %s did not complete synchronously: %v", id, err)
	}

	c.JSON(http.StatusAccepted, rec)
}

// Get returns a single deployment record, restricted to its owner.
// @Summary Get a deployment record
// @Description Fetch a deployment record by ID
// @Tags deployment
// @Security BearerAuth
// @Produce json
// @Param id path string true "Deployment ID"
// @Success 200 {object} domain.DeploymentRecord
// @Failure 404 {object} map[string]interface{}
// @Router /v1/deployments/{id} [get]
func (h *DeploymentHandler) Get(c *gin.Context) {
	owner, err := middleware.GetOwner(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "unauthorized", "message": "unauthorized"}})
		return
	}

	rec, err := h.machine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	if rec.Owner != owner {
		middleware.RespondError(c, apperrors.ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// List returns the caller's deployment records.
// @Summary List deployments
// @Description List the caller's deployment records
// @Tags deployment
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /v1/deployments [get]
func (h *DeploymentHandler) List(c *gin.Context) {
	owner, err := middleware.GetOwner(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "unauthorized", "message": "unauthorized"}})
		return
	}

	recs, err := h.machine.ListByOwner(c.Request.Context(), owner)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deployments": recs})
}

// ForceExecute resets a stuck deployment's retry clock and retries its
// current step once (admin op).
// @Summary Force a deployment retry
// @Description Reset a stuck deployment's retry clock and retry once
// @Tags deployment
// @Security BearerAuth
// @Produce json
// @Param id path string true "Deployment ID"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /v1/admin/deployments/{id}/force-execute [post]
func (h *DeploymentHandler) ForceExecute(c *gin.Context) {
	id := c.Param("id")
	if err := h.machine.ForceExecute(c.Request.Context(), id); err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "retried"})
}
