package notifications

import (
	"time"

	"go.uber.org/zap"

	"endless-wallet/lending-backend/internal/marketplace"
	"endless-wallet/lending-backend/internal/petition"
)

// Service translates lending lifecycle events into WebSocket messages.
// It satisfies the event hooks of the petition and marketplace
// services.
type Service struct {
	hub    *Hub
	logger *zap.Logger
}

func NewService(hub *Hub, logger *zap.Logger) *Service {
	return &Service{hub: hub, logger: logger}
}

// PetitionFullyFunded notifies the borrower and broadcasts to browsing
// clients when a petition reaches its principal.
func (s *Service) PetitionFullyFunded(p *petition.Petition) {
	msg := Message{
		Type: EventPetitionFullyFunded,
		Data: map[string]interface{}{
			"petition_id":   p.ID.String(),
			"principal":     p.Principal,
			"currency":      p.Currency,
			"funded_amount": p.FundedAmount,
		},
		Timestamp: time.Now(),
	}

	s.hub.SendToAccount(p.BorrowerAccountID.String(), msg)
	s.hub.Broadcast(msg)

	s.logger.Info("petition fully funded",
		zap.String("petition_id", p.ID.String()),
		zap.Float64("principal", p.Principal))
}

// ListingSold notifies the seller and buyer when a note changes hands.
func (s *Service) ListingSold(l *marketplace.Listing) {
	data := map[string]interface{}{
		"listing_id": l.ID.String(),
		"loan_id":    l.LoanID.String(),
	}
	if l.SalePrice != nil {
		data["sale_price"] = *l.SalePrice
	}

	msg := Message{
		Type:      EventListingSold,
		Data:      data,
		Timestamp: time.Now(),
	}

	s.hub.SendToAccount(l.SellerAccountID.String(), msg)
	if l.BuyerAccountID != nil {
		s.hub.SendToAccount(l.BuyerAccountID.String(), msg)
	}
}
