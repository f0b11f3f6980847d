package funding

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"endless-wallet/lending-backend/pkg/apperr"
)

// Handler handles HTTP requests for lender contributions
type Handler struct {
	coordinator *Coordinator
	logger      *zap.Logger
}

func NewHandler(coordinator *Coordinator, logger *zap.Logger) *Handler {
	return &Handler{coordinator: coordinator, logger: logger}
}

// RegisterRoutes registers contribution routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/petitions/:id/contributions", h.commitContribution)
	router.GET("/petitions/:id/contributions", h.listContributions)

	contributions := router.Group("/contributions")
	{
		contributions.GET("/:id", h.getContribution)
		contributions.POST("/:id/release", h.releaseContribution)
	}
}

type commitRequest struct {
	LenderAccountID string  `json:"lender_account_id" binding:"required,uuid"`
	Amount          float64 `json:"amount" binding:"required,gt=0"`
}

// commitContribution handles POST /api/v1/petitions/:id/contributions
func (h *Handler) commitContribution(c *gin.Context) {
	petitionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid petition id"})
		return
	}

	var req commitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lenderID, err := uuid.Parse(req.LenderAccountID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lender account id"})
		return
	}

	contribution, err := h.coordinator.Commit(c.Request.Context(), lenderID, petitionID, req.Amount)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, contribution)
}

// listContributions handles GET /api/v1/petitions/:id/contributions
func (h *Handler) listContributions(c *gin.Context) {
	petitionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid petition id"})
		return
	}

	contributions, err := h.coordinator.ListByPetition(c.Request.Context(), petitionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"contributions": contributions, "total": len(contributions)})
}

// getContribution handles GET /api/v1/contributions/:id
func (h *Handler) getContribution(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contribution id"})
		return
	}

	contribution, err := h.coordinator.GetContribution(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, contribution)
}

// releaseContribution handles POST /api/v1/contributions/:id/release
func (h *Handler) releaseContribution(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contribution id"})
		return
	}

	contribution, err := h.coordinator.Release(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, contribution)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		if ae.Kind == apperr.KindInternal {
			h.logger.Error("contribution operation failed", zap.Error(err))
		}
		c.JSON(apperr.HTTPStatus(ae), ae.JSON())
		return
	}

	h.logger.Error("contribution operation failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
