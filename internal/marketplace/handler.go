package marketplace

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"endless-wallet/lending-backend/pkg/apperr"
)

// Handler handles HTTP requests for the secondary note marketplace
type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers marketplace routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	marketplace := router.Group("/marketplace")
	{
		marketplace.GET("/notes", h.browseNotes)
		marketplace.POST("/listings", h.listNote)
		marketplace.GET("/listings/:id", h.getListing)
		marketplace.POST("/listings/:id/purchase", h.purchaseNote)
		marketplace.POST("/listings/:id/withdraw", h.withdrawListing)
	}
}

type listNoteRequest struct {
	LoanID          string  `json:"loan_id" binding:"required,uuid"`
	SellerAccountID string  `json:"seller_account_id" binding:"required,uuid"`
	AskingPrice     float64 `json:"asking_price" binding:"required"`
	Kind            string  `json:"kind"`
}

type purchaseRequest struct {
	BuyerAccountID string  `json:"buyer_account_id" binding:"required,uuid"`
	OfferPrice     float64 `json:"offer_price" binding:"required,gt=0"`
}

type withdrawRequest struct {
	SellerAccountID string `json:"seller_account_id" binding:"required,uuid"`
}

// browseNotes handles GET /api/v1/marketplace/notes
func (h *Handler) browseNotes(c *gin.Context) {
	notes, err := h.service.BrowseNotes(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notes": notes, "total": len(notes)})
}

// listNote handles POST /api/v1/marketplace/listings
func (h *Handler) listNote(c *gin.Context) {
	var req listNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	loanID, err := uuid.Parse(req.LoanID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid loan id"})
		return
	}
	sellerID, err := uuid.Parse(req.SellerAccountID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid seller account id"})
		return
	}

	kind := ListingKind(req.Kind)
	if req.Kind == "" {
		kind = KindFull
	}

	listing, err := h.service.ListNote(c.Request.Context(), loanID, sellerID, req.AskingPrice, kind)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, listing)
}

// getListing handles GET /api/v1/marketplace/listings/:id
func (h *Handler) getListing(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid listing id"})
		return
	}

	listing, err := h.service.GetListing(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	projection, err := h.service.ProjectNote(c.Request.Context(), listing)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, projection)
}

// purchaseNote handles POST /api/v1/marketplace/listings/:id/purchase
func (h *Handler) purchaseNote(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid listing id"})
		return
	}

	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	buyerID, err := uuid.Parse(req.BuyerAccountID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid buyer account id"})
		return
	}

	listing, err := h.service.PurchaseNote(c.Request.Context(), id, buyerID, req.OfferPrice)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, listing)
}

// withdrawListing handles POST /api/v1/marketplace/listings/:id/withdraw
func (h *Handler) withdrawListing(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid listing id"})
		return
	}

	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sellerID, err := uuid.Parse(req.SellerAccountID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid seller account id"})
		return
	}

	listing, err := h.service.WithdrawListing(c.Request.Context(), id, sellerID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, listing)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		if ae.Kind == apperr.KindInternal {
			h.logger.Error("marketplace operation failed", zap.Error(err))
		}
		c.JSON(apperr.HTTPStatus(ae), ae.JSON())
		return
	}

	h.logger.Error("marketplace operation failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
