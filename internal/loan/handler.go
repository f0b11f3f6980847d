package loan

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"endless-wallet/lending-backend/pkg/apperr"
)

// Handler handles HTTP requests for active loans
type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers loan routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	loans := router.Group("/loans")
	{
		loans.GET("", h.listLoans)
		loans.GET("/:id", h.getLoan)
		loans.GET("/:id/schedule", h.getSchedule)
		loans.POST("/:id/repayments", h.recordRepayment)
	}
}

type repaymentRequest struct {
	Sequence int `json:"sequence" binding:"required,gt=0"`
}

// listLoans handles GET /api/v1/loans?owner_id=
func (h *Handler) listLoans(c *gin.Context) {
	ownerParam := c.Query("owner_id")
	if ownerParam == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner_id is required"})
		return
	}

	ownerID, err := uuid.Parse(ownerParam)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner id"})
		return
	}

	loans, err := h.service.ListByOwner(c.Request.Context(), ownerID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"loans": loans, "total": len(loans)})
}

// getLoan handles GET /api/v1/loans/:id
func (h *Handler) getLoan(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid loan id"})
		return
	}

	l, err := h.service.GetLoan(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, l)
}

// getSchedule handles GET /api/v1/loans/:id/schedule
func (h *Handler) getSchedule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid loan id"})
		return
	}

	schedule, err := h.service.GetSchedule(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"schedule": schedule, "total": len(schedule)})
}

// recordRepayment handles POST /api/v1/loans/:id/repayments
func (h *Handler) recordRepayment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid loan id"})
		return
	}

	var req repaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payment, err := h.service.RecordRepayment(c.Request.Context(), id, req.Sequence)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		if ae.Kind == apperr.KindInternal {
			h.logger.Error("loan operation failed", zap.Error(err))
		}
		c.JSON(apperr.HTTPStatus(ae), ae.JSON())
		return
	}

	h.logger.Error("loan operation failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
