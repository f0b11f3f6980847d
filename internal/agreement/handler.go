package agreement

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"endless-wallet/lending-backend/internal/ledger"
	"endless-wallet/lending-backend/internal/loan"
	"endless-wallet/lending-backend/internal/petition"
	"endless-wallet/lending-backend/pkg/apperr"
)

// Handler serves rendered loan agreements
type Handler struct {
	generator *Generator
	loans     *loan.Service
	petitions *petition.Service
	store     *ledger.Store
	logger    *zap.Logger
}

func NewHandler(generator *Generator, loans *loan.Service, petitions *petition.Service, store *ledger.Store, logger *zap.Logger) *Handler {
	return &Handler{
		generator: generator,
		loans:     loans,
		petitions: petitions,
		store:     store,
		logger:    logger,
	}
}

// RegisterRoutes registers the agreement route
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/loans/:id/agreement", h.getAgreement)
}

// getAgreement handles GET /api/v1/loans/:id/agreement
func (h *Handler) getAgreement(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid loan id"})
		return
	}

	l, err := h.loans.GetLoan(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	schedule, err := h.loans.GetSchedule(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	borrower, err := h.store.GetAccount(c.Request.Context(), l.BorrowerAccountID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	owner, err := h.store.GetAccount(c.Request.Context(), l.OwnerAccountID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	data := &Data{
		Loan:         l,
		Schedule:     schedule,
		BorrowerName: borrower.Name,
		OwnerName:    owner.Name,
	}

	p, err := h.petitions.GetPetition(c.Request.Context(), l.PetitionID)
	if err == nil && p.CosignerAccountID != nil {
		if cosigner, err := h.store.GetAccount(c.Request.Context(), *p.CosignerAccountID); err == nil {
			data.CosignerName = cosigner.Name
		}
	}

	pdfBytes, err := h.generator.Generate(data)
	if err != nil {
		h.respondError(c, err)
		return
	}

	filename := fmt.Sprintf("loan-agreement-%s.pdf", l.ID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", pdfBytes)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		if ae.Kind == apperr.KindInternal {
			h.logger.Error("agreement generation failed", zap.Error(err))
		}
		c.JSON(apperr.HTTPStatus(ae), ae.JSON())
		return
	}

	h.logger.Error("agreement generation failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
