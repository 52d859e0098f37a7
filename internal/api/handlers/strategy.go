package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"factory/internal/api/middleware"
	"factory/internal/strategy"
)

// StrategyHandler serves the running-strategy index (C7).
type StrategyHandler struct {
	registry *strategy.Registry
	logger   *logrus.Logger
}

// NewStrategyHandler creates a new strategy handler.
func NewStrategyHandler(r *strategy.Registry, logger *logrus.Logger) *StrategyHandler {
	return &StrategyHandler{registry: r, logger: logger}
}

// List returns the caller's running strategies.
// @Summary List my strategies
// @Tags strategy
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /v1/strategies [get]
func (h *StrategyHandler) List(c *gin.Context) {
	owner, err := middleware.GetOwner(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "unauthorized", "message": "unauthorized"}})
		return
	}

	strategies, err := h.registry.ListByOwner(c.Request.Context(), owner)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": strategies})
}

// ListAll returns every running strategy across every owner (admin op).
// @Summary List all strategies
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /v1/admin/strategies [get]
func (h *StrategyHandler) ListAll(c *gin.Context) {
	strategies, err := h.registry.ListAll(c.Request.Context())
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": strategies})
}
