package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/skaiscraper/backend/internal/services"
	"go.uber.org/zap"
)

const maxWebhookBytes = 65_536

type WebhookHandler struct {
	ledger  TokenLedger
	webhook *services.StripeWebhook
	log     *zap.Logger
}

func NewWebhookHandler(ledger TokenLedger, webhook *services.StripeWebhook, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		ledger:  ledger,
		webhook: webhook,
		log:     log.Named("http.webhook"),
	}
}

type WebhookResponse struct {
	Received   bool  `json:"received"`
	Ignored    bool  `json:"ignored,omitempty"`
	Duplicate  bool  `json:"duplicate,omitempty"`
	NewBalance int64 `json:"newBalance,omitempty"`
}

// Stripe credits purchased token packs
// @Summary Stripe webhook
// @Description Receives settled checkout session events and credits the purchased tokens once per session
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Stripe signature"
// @Success 200 {object} WebhookResponse
// @Failure 400 {object} services.ErrorResponse
// @Router /webhooks/stripe [post]
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := h.webhook.Verify(payload, r.Header); err != nil {
		h.log.Warn("rejected webhook", zap.Error(err))
		services.SendErrorResponse(w, "Invalid signature", http.StatusBadRequest, nil)
		return
	}

	purchase, err := h.webhook.Parse(payload)
	if errors.Is(err, services.ErrEventIgnored) {
		services.SendJSON(w, http.StatusOK, WebhookResponse{Received: true, Ignored: true})
		return
	}
	if err != nil {
		h.log.Warn("unparseable webhook", zap.Error(err))
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	res, err := h.ledger.CreditByOrder(r.Context(), purchase.TenantID, purchase.OrderID, purchase.Tokens, purchase.PackID)
	if err != nil {
		sendLedgerError(w, h.log, err)
		return
	}

	h.log.Info("token purchase settled",
		zap.String("event_id", purchase.EventID),
		zap.String("tenant_id", purchase.TenantID),
		zap.String("order_id", purchase.OrderID),
		zap.Int64("tokens", purchase.Tokens),
		zap.Bool("duplicate", res.Duplicate),
	)

	services.SendJSON(w, http.StatusOK, WebhookResponse{Received: true, Duplicate: res.Duplicate, NewBalance: res.NewBalance})
}
