package handlers

import (
	"net/http"
	"strconv"

	"github.com/skaiscraper/backend/internal/middleware"
	"github.com/skaiscraper/backend/internal/models"
	"github.com/skaiscraper/backend/internal/services"
	"go.uber.org/zap"
)

type TokenHandler struct {
	ledger    TokenLedger
	validator *services.ValidationHelper
	log       *zap.Logger
}

func NewTokenHandler(ledger TokenLedger, log *zap.Logger) *TokenHandler {
	return &TokenHandler{
		ledger:    ledger,
		validator: services.NewValidationHelper(),
		log:       log.Named("http.tokens"),
	}
}

type BalanceResponse struct {
	TenantID string `json:"tenantId"`
	Balance  int64  `json:"balance"`
}

type UsageRequest struct {
	Amount  int64  `json:"amount" validate:"required,gt=0"`
	Feature string `json:"feature" validate:"required,max=64,excludesall=:"`
}

type MutationResponse struct {
	TenantID   string              `json:"tenantId"`
	NewBalance int64               `json:"newBalance"`
	Duplicate  bool                `json:"duplicate,omitempty"`
	Entry      *models.LedgerEntry `json:"entry,omitempty"`
}

// GetBalance returns the caller's token balance
// @Summary Get token balance
// @Description Current token balance of the caller's organization
// @Tags Tokens
// @Produce json
// @Security BearerAuth
// @Success 200 {object} BalanceResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /tokens/balance [get]
func (h *TokenHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantFromContext(r.Context())

	balance, err := h.ledger.GetBalance(r.Context(), tenantID)
	if err != nil {
		sendLedgerError(w, h.log, err)
		return
	}

	services.SendJSON(w, http.StatusOK, BalanceResponse{TenantID: tenantID, Balance: balance})
}

// ListLedger returns a page of ledger history, newest first
// @Summary List token ledger
// @Description Ledger entries for the caller's organization, newest first
// @Tags Tokens
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (default 20, max 100)"
// @Param offset query int false "Entries to skip"
// @Success 200 {object} models.LedgerPage
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /tokens/ledger [get]
func (h *TokenHandler) ListLedger(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit")
	if !ok {
		services.SendErrorResponse(w, "limit must be an integer", http.StatusBadRequest, nil)
		return
	}
	offset, ok := queryInt(r, "offset")
	if !ok {
		services.SendErrorResponse(w, "offset must be an integer", http.StatusBadRequest, nil)
		return
	}

	page, err := h.ledger.ListLedger(r.Context(), middleware.TenantFromContext(r.Context()), limit, offset)
	if err != nil {
		sendLedgerError(w, h.log, err)
		return
	}

	services.SendJSON(w, http.StatusOK, page)
}

// RecordUsage debits tokens for a metered feature
// @Summary Record feature usage
// @Description Debit tokens from the caller's organization for one use of a feature
// @Tags Tokens
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UsageRequest true "Usage"
// @Success 200 {object} MutationResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 402 {object} services.ErrorResponse
// @Router /tokens/usage [post]
func (h *TokenHandler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	var req UsageRequest
	if !h.validator.DecodeAndValidate(w, r, &req) {
		return
	}

	tenantID := middleware.TenantFromContext(r.Context())
	metadata := models.Metadata{
		"feature":  req.Feature,
		"actor_id": middleware.ActorFromContext(r.Context()),
	}

	res, err := h.ledger.Debit(r.Context(), tenantID, req.Amount, models.ReasonUsagePrefix+req.Feature, metadata)
	if err != nil {
		sendLedgerError(w, h.log, err)
		return
	}

	services.SendJSON(w, http.StatusOK, MutationResponse{TenantID: tenantID, NewBalance: res.NewBalance, Entry: res.Entry})
}

// queryInt returns 0 when the parameter is absent.
func queryInt(r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
