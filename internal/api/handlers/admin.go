package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"factory/internal/api/middleware"
	"factory/internal/codeimage"
	"factory/internal/domain"
	"factory/internal/identity"
	"factory/internal/ledger"
	"factory/internal/scheduler"
	"factory/internal/store"
)

// AdminHandler serves the Factory's administrative surface: admin-set
// management, the deployment fee, the code-image registry, account
// adjustments/withdrawals, the reconciliation scheduler's timers, and the
// live and archived deployment-record listings.
type AdminHandler struct {
	identity   *identity.Registry
	ledger     *ledger.Ledger
	codeImages *codeimage.Registry
	scheduler  *scheduler.Scheduler
	store      store.Store
	logger     *logrus.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(
	reg *identity.Registry,
	l *ledger.Ledger,
	codeImages *codeimage.Registry,
	sched *scheduler.Scheduler,
	s store.Store,
	logger *logrus.Logger,
) *AdminHandler {
	return &AdminHandler{identity: reg, ledger: l, codeImages: codeImages, scheduler: sched, store: s, logger: logger}
}

// AddAdminRequest names the identity to promote.
type AddAdminRequest struct {
	Owner string `json:"owner" binding:"required"`
}

// SetFeeRequest is the new flat deployment fee.
type SetFeeRequest struct {
	Fee int64 `json:"fee" binding:"required,gte=0"`
}

// AdminWithdrawRequest names the external-ledger destination and amount for an
// admin-initiated treasury withdrawal.
type AdminWithdrawRequest struct {
	To     string `json:"to" binding:"required"`
	Amount int64  `json:"amount" binding:"required,gt=0"`
}

// AdjustBalanceRequest is a signed balance correction against one owner's
// account.
type AdjustBalanceRequest struct {
	Amount int64  `json:"amount" binding:"required"`
	Reason string `json:"reason"`
}

// ListAdmins returns the current admin set.
// @Summary List admins
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /v1/admin/admins [get]
func (h *AdminHandler) ListAdmins(c *gin.Context) {
	admins, err := h.identity.ListAdmins(c.Request.Context())
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admins": admins})
}

// AddAdmin promotes an identity to admin.
// @Summary Add an admin
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body AddAdminRequest true "New admin"
// @Success 200 {object} map[string]interface{}
// @Router /v1/admin/admins [post]
func (h *AdminHandler) AddAdmin(c *gin.Context) {
	caller, err := middleware.GetOwner(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "unauthorized", "message": "unauthorized"}})
		return
	}

	var req AddAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "validation_error", "message": err.Error()}})
		return
	}

	if err := h.identity.AddAdmin(c.Request.Context(), caller, req.Owner); err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "added"})
}

// RemoveAdmin demotes an identity, refusing to empty the admin set.
// @Summary Remove an admin
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param owner path string true "Admin identity"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /v1/admin/admins/{owner} [delete]
func (h *AdminHandler) RemoveAdmin(c *gin.Context) {
	caller, err := middleware.GetOwner(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "unauthorized", "message": "unauthorized"}})
		return
	}

	if err := h.identity.RemoveAdmin(c.Request.Context(), caller, c.Param("owner")); err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

// SetDeploymentFee updates the flat per-deployment fee.
// @Summary Set the deployment fee
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body SetFeeRequest true "New fee"
// @Success 200 {object} map[string]interface{}
// @Router /v1/admin/settings/fee [put]
func (h *AdminHandler) SetDeploymentFee(c *gin.Context) {
	var req SetFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "validation_error", "message": err.Error()}})
		return
	}

	if err := h.ledger.SetDeploymentFee(c.Request.Context(), req.Fee); err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// GetDeploymentFee returns the current flat per-deployment fee.
// @Summary Get the deployment fee
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /v1/admin/settings/fee [get]
func (h *AdminHandler) GetDeploymentFee(c *gin.Context) {
	fee, err := h.ledger.DeploymentFee(c.Request.Context())
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fee": fee})
}

// SetCodeImage uploads a new build as the current version for a strategy
// kind.
// @Summary Upload a code image
// @Tags admin
// @Security BearerAuth
// @Accept multipart/form-data
// @Produce json
// @Param kind path string true "Strategy kind"
// @Param version_tag formData string true "Version tag"
// @Param file formData file true "Build artifact"
// @Success 200 {object} domain.CodeImage
// @Router /v1/admin/code-images/{kind} [post]
func (h *AdminHandler) SetCodeImage(c *gin.Context) {
	caller, err := middleware.GetOwner(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "unauthorized", "message": "unauthorized"}})
		return
	}

	kind := domain.StrategyKind(c.Param("kind"))
	if !domain.ValidStrategyKind(kind) {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "validation_error", "message": "unsupported strategy kind"}})
		return
	}

	versionTag := c.PostForm("version_tag")
	if versionTag == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "validation_error", "message": "version_tag is required"}})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "validation_error", "message": "file is required"}})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "validation_error", "message": "failed to open file"}})
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "validation_error", "message": "failed to read file"}})
		return
	}

	img, err := h.codeImages.SetCodeImage(c.Request.Context(), kind, versionTag, payload, caller)
	if err != nil {
		h.logger.Errorf("Failed to set code image: %v", err)
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, img)
}

// ListAllDeployments returns deployment records across every owner from
// the live table — the in-flight view ListArchivedDeployments cannot
// provide, since it only sees records already swept into the archive.
// @Summary List all deployment records
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /v1/admin/deployments [get]
func (h *AdminHandler) ListAllDeployments(c *gin.Context) {
	recs, err := h.store.ListAllDeployments(c.Request.Context(), 500)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deployments": recs})
}

// AdjustBalance applies a signed correction to owner's balance, recorded
// as an admin_adjust transaction.
// @Summary Adjust an account balance
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param owner path string true "Account owner"
// @Param request body AdjustBalanceRequest true "Signed adjustment"
// @Success 200 {object} map[string]interface{}
// @Router /v1/admin/accounts/{owner}/adjust [post]
func (h *AdminHandler) AdjustBalance(c *gin.Context) {
	caller, err := middleware.GetOwner(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "unauthorized", "message": "unauthorized"}})
		return
	}

	var req AdjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "validation_error", "message": err.Error()}})
		return
	}

	newBalance, err := h.ledger.AdminAdjust(c.Request.Context(), caller, c.Param("owner"), req.Amount, req.Reason)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": newBalance})
}

// WithdrawICP sends platform token out of the Factory's external-ledger
// treasury to an arbitrary destination.
// @Summary Withdraw from the treasury
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body AdminWithdrawRequest true "Destination and amount"
// @Success 200 {object} map[string]interface{}
// @Router /v1/admin/withdraw [post]
func (h *AdminHandler) WithdrawICP(c *gin.Context) {
	caller, err := middleware.GetOwner(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "unauthorized", "message": "unauthorized"}})
		return
	}

	var req AdminWithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "validation_error", "message": err.Error()}})
		return
	}

	handle, err := h.ledger.AdminWithdraw(c.Request.Context(), caller, req.To, req.Amount)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tx_handle": handle})
}

// ResetSystemTimers zeroes the reconciliation scheduler's tick cursor.
// @Summary Reset scheduler timers
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /v1/admin/timers/reset [post]
func (h *AdminHandler) ResetSystemTimers(c *gin.Context) {
	if err := h.scheduler.ResetTimers(c.Request.Context()); err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// ListArchivedDeployments returns terminal deployment records that have
// been moved out of the hot table.
// @Summary List archived deployment records
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /v1/admin/deployments/archive [get]
func (h *AdminHandler) ListArchivedDeployments(c *gin.Context) {
	recs, err := h.store.ListArchivedDeployments(c.Request.Context(), 500)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deployments": recs})
}
