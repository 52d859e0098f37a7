package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"factory/internal/api/middleware"
	"factory/internal/ledger"
)

// AccountHandler serves balance, deposit, withdraw and history endpoints
// for the caller's own account (C5 Account Ledger).
type AccountHandler struct {
	ledger *ledger.Ledger
	logger *logrus.Logger
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(l *ledger.Ledger, logger *logrus.Logger) *AccountHandler {
	return &AccountHandler{ledger: l, logger: logger}
}

// DepositRequest is the payload for a deposit claim.
type DepositRequest struct {
	Amount int64  `json:"amount" binding:"required,gt=0"`
	Memo   string `json:"memo"`
}

// WithdrawRequest is the payload for a withdrawal.
type WithdrawRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// GetAccount returns the caller's account info.
// @Summary Get account info
// @Description Get the caller's balance and account metadata
// @Tags account
// @Security BearerAuth
// @Produce json
// @Success 200 {object} domain.UserAccount
// @Failure 401 {object} map[string]interface{}
// @Router /v1/account [get]
func (h *AccountHandler) GetAccount(c *gin.Context) {
	owner, err := middleware.GetOwner(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "unauthorized", "message": "unauthorized"}})
		return
	}

	acc, err := h.ledger.AccountInfo(c.Request.Context(), owner)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, acc)
}

// Deposit credits the caller's balance after verifying the claim against
// the external ledger.
// @Summary Deposit funds
// @Description Claim a verified deposit into the platform-token balance
// @Tags account
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body DepositRequest true "Deposit data"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /v1/account/deposit [post]
func (h *AccountHandler) Deposit(c *gin.Context) {
	owner, err := middleware.GetOwner(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "unauthorized", "message": "unauthorized"}})
		return
	}

	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "validation_error", "message": err.Error()}})
		return
	}

	newBalance, err := h.ledger.Deposit(c.Request.Context(), owner, req.Amount, req.Memo)
	if err != nil {
		h.logger.Errorf("Deposit failed: %v", err)
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"new_balance": newBalance})
}

// Withdraw debits the caller's balance and transfers out through the
// external ledger.
// @Summary Withdraw funds
// @Description Withdraw platform-token balance out through the external ledger
// @Tags account
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body WithdrawRequest true "Withdrawal data"
// @Success 200 {object} map[string]interface{}
// @Failure 402 {object} map[string]interface{}
// @Router /v1/account/withdraw [post]
func (h *AccountHandler) Withdraw(c *gin.Context) {
	owner, err := middleware.GetOwner(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "unauthorized", "message": "unauthorized"}})
		return
	}

	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "validation_error", "message": err.Error()}})
		return
	}

	newBalance, err := h.ledger.Withdraw(c.Request.Context(), owner, req.Amount)
	if err != nil {
		h.logger.Errorf("Withdrawal failed: %v", err)
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"new_balance": newBalance})
}

// History returns the caller's most recent transactions.
// @Summary Transaction history
// @Description List the caller's most recent ledger entries
// @Tags account
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /v1/account/history [get]
func (h *AccountHandler) History(c *gin.Context) {
	owner, err := middleware.GetOwner(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "unauthorized", "message": "unauthorized"}})
		return
	}

	records, err := h.ledger.History(c.Request.Context(), owner, 100)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": records})
}
