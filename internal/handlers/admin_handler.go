package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/skaiscraper/backend/internal/middleware"
	"github.com/skaiscraper/backend/internal/models"
	"github.com/skaiscraper/backend/internal/services"
	"go.uber.org/zap"
)

// GrantAllower gates manual grants per operator.
type GrantAllower interface {
	Allow(ctx context.Context, actorID string) error
}

type AdminHandler struct {
	ledger    TokenLedger
	limiter   GrantAllower
	validator *services.ValidationHelper
	log       *zap.Logger
}

func NewAdminHandler(ledger TokenLedger, limiter GrantAllower, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		ledger:    ledger,
		limiter:   limiter,
		validator: services.NewValidationHelper(),
		log:       log.Named("http.admin"),
	}
}

type GrantRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"omitempty,oneof=admin_grant signup_bonus adjustment refund"`
	Note   string `json:"note" validate:"omitempty,max=500"`
}

type ReconcileResponse struct {
	TenantID string              `json:"tenantId"`
	Balance  int64               `json:"balance"`
	Chain    *models.ChainReport `json:"chain"`
}

// Grant credits tokens to an organization
// @Summary Grant tokens
// @Description Manually credit tokens to an organization (support/admin only)
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param tenantId path string true "Organization ID"
// @Param request body GrantRequest true "Grant"
// @Success 200 {object} MutationResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 429 {object} services.ErrorResponse
// @Router /admin/tenants/{tenantId}/grants [post]
func (h *AdminHandler) Grant(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(chi.URLParam(r, "tenantId"))

	var req GrantRequest
	if !h.validator.DecodeAndValidate(w, r, &req) {
		return
	}

	actorID := middleware.ActorFromContext(r.Context())
	if h.limiter != nil {
		if err := h.limiter.Allow(r.Context(), actorID); err != nil {
			sendLedgerError(w, h.log, err)
			return
		}
	}

	metadata := models.Metadata{"actor_id": actorID}
	if req.Note != "" {
		metadata["note"] = req.Note
	}

	res, err := h.ledger.Grant(r.Context(), tenantID, req.Amount, req.Reason, metadata)
	if err != nil {
		sendLedgerError(w, h.log, err)
		return
	}

	services.SendJSON(w, http.StatusOK, MutationResponse{TenantID: tenantID, NewBalance: res.NewBalance, Entry: res.Entry})
}

// Reconcile rebuilds an organization's balance from its ledger
// @Summary Reconcile balance
// @Description Recompute the cached balance from the ledger and verify the balance chain
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param tenantId path string true "Organization ID"
// @Success 200 {object} ReconcileResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /admin/tenants/{tenantId}/reconcile [post]
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(chi.URLParam(r, "tenantId"))

	balance, err := h.ledger.RebuildFromLedger(r.Context(), tenantID)
	if err != nil {
		sendLedgerError(w, h.log, err)
		return
	}

	chain, err := h.ledger.VerifyChain(r.Context(), tenantID)
	if err != nil {
		sendLedgerError(w, h.log, err)
		return
	}
	if !chain.Consistent {
		h.log.Warn("ledger chain inconsistent",
			zap.String("tenant_id", tenantID),
			zap.Int64("first_bad_seq", chain.FirstBadSeq),
		)
	}

	services.SendJSON(w, http.StatusOK, ReconcileResponse{TenantID: tenantID, Balance: balance, Chain: chain})
}
