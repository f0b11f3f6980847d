package petition

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"endless-wallet/lending-backend/pkg/apperr"
)

// Handler handles HTTP requests for the petition lifecycle
type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers petition routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	petitions := router.Group("/petitions")
	{
		petitions.POST("", h.createPetition)
		petitions.GET("", h.listPetitions)
		petitions.GET("/:id", h.getPetition)
		petitions.POST("/:id/cancel", h.cancelPetition)
		petitions.POST("/:id/convert", h.convertToLoan)
	}
}

type createPetitionRequest struct {
	BorrowerAccountID string   `json:"borrower_account_id" binding:"required,uuid"`
	Principal         float64  `json:"principal" binding:"required,gt=0"`
	Currency          string   `json:"currency" binding:"required"`
	APR               float64  `json:"apr"`
	TermMonths        int      `json:"term_months" binding:"required"`
	ScheduleKind      string   `json:"schedule_kind"`
	Purpose           string   `json:"purpose" binding:"required"`
	Description       string   `json:"description"`
	Secured           bool     `json:"secured"`
	CollateralTypes   []string `json:"collateral_types"`
	CosignerAccountID *string  `json:"cosigner_account_id"`
	GoverningLaw      string   `json:"governing_law"`
	AdditionalTerms   string   `json:"additional_terms"`
}

// createPetition handles POST /api/v1/petitions
func (h *Handler) createPetition(c *gin.Context) {
	var req createPetitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	borrowerID, err := uuid.Parse(req.BorrowerAccountID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid borrower account id"})
		return
	}

	create := CreateRequest{
		BorrowerAccountID: borrowerID,
		Principal:         req.Principal,
		Currency:          req.Currency,
		APR:               req.APR,
		TermMonths:        req.TermMonths,
		ScheduleKind:      req.ScheduleKind,
		Purpose:           req.Purpose,
		Description:       req.Description,
		Secured:           req.Secured,
		CollateralTypes:   req.CollateralTypes,
		GoverningLaw:      req.GoverningLaw,
		AdditionalTerms:   req.AdditionalTerms,
	}
	if req.CosignerAccountID != nil {
		cosignerID, err := uuid.Parse(*req.CosignerAccountID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cosigner account id"})
			return
		}
		create.CosignerAccountID = &cosignerID
	}

	p, err := h.service.CreatePetition(c.Request.Context(), create)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, p)
}

// listPetitions handles GET /api/v1/petitions
func (h *Handler) listPetitions(c *gin.Context) {
	var status *Status
	if s := c.Query("status"); s != "" {
		st := Status(s)
		status = &st
	}

	petitions, err := h.service.ListPetitions(c.Request.Context(), status)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"petitions": petitions, "total": len(petitions)})
}

// getPetition handles GET /api/v1/petitions/:id
func (h *Handler) getPetition(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid petition id"})
		return
	}

	p, err := h.service.GetPetition(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

// cancelPetition handles POST /api/v1/petitions/:id/cancel
func (h *Handler) cancelPetition(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid petition id"})
		return
	}

	p, err := h.service.CancelPetition(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

// convertToLoan handles POST /api/v1/petitions/:id/convert
func (h *Handler) convertToLoan(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid petition id"})
		return
	}

	l, err := h.service.ConvertToLoan(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, l)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		if ae.Kind == apperr.KindInternal {
			h.logger.Error("petition operation failed", zap.Error(err))
		}
		c.JSON(apperr.HTTPStatus(ae), ae.JSON())
		return
	}

	h.logger.Error("petition operation failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
