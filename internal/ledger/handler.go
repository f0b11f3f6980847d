package ledger

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"endless-wallet/lending-backend/pkg/apperr"
)

// Handler handles HTTP requests for accounts and their ledger entries
type Handler struct {
	store  *Store
	logger *zap.Logger
}

func NewHandler(store *Store, logger *zap.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes registers account routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	accounts := router.Group("/accounts")
	{
		accounts.POST("", h.createAccount)
		accounts.GET("/:id", h.getAccount)
		accounts.POST("/:id/deposits", h.deposit)
		accounts.GET("/:id/entries", h.listEntries)
	}
}

type createAccountRequest struct {
	Name          string `json:"name" binding:"required"`
	Email         string `json:"email" binding:"required,email"`
	Currency      string `json:"currency"`
	KYCVerified   bool   `json:"kyc_verified"`
	BankConnected bool   `json:"bank_connected"`
	CoreScore     int    `json:"core_score"`
}

type depositRequest struct {
	Amount    float64 `json:"amount" binding:"required,gt=0"`
	Reference string  `json:"reference"`
}

// createAccount handles POST /api/v1/accounts
func (h *Handler) createAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account := &Account{
		Name:          req.Name,
		Email:         req.Email,
		Currency:      req.Currency,
		KYCVerified:   req.KYCVerified,
		BankConnected: req.BankConnected,
		CoreScore:     req.CoreScore,
	}
	if account.Currency == "" {
		account.Currency = "USD"
	}

	if err := h.store.CreateAccount(c.Request.Context(), account); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, account)
}

// getAccount handles GET /api/v1/accounts/:id
func (h *Handler) getAccount(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return
	}

	account, err := h.store.GetAccount(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

// deposit handles POST /api/v1/accounts/:id/deposits
func (h *Handler) deposit(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return
	}

	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.Deposit(c.Request.Context(), id, req.Amount, req.Reference); err != nil {
		h.respondError(c, err)
		return
	}

	account, err := h.store.GetAccount(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

// listEntries handles GET /api/v1/accounts/:id/entries
func (h *Handler) listEntries(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return
	}

	entries, err := h.store.ListEntries(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "total": len(entries)})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		if ae.Kind == apperr.KindInternal {
			h.logger.Error("account operation failed", zap.Error(err))
		}
		c.JSON(apperr.HTTPStatus(ae), ae.JSON())
		return
	}

	h.logger.Error("account operation failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
