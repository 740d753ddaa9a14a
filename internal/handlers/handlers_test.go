package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
	"github.com/skaiscraper/backend/internal/middleware"
	"github.com/skaiscraper/backend/internal/models"
	"github.com/skaiscraper/backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// withIdentity stands in for AuthMiddleware.
func withIdentity(tenantID, actorID, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithIdentity(r.Context(), tenantID, actorID, role)))
		})
	}
}

func newTokenRouter(ledger TokenLedger) http.Handler {
	h := NewTokenHandler(ledger, zap.NewNop())
	r := chi.NewRouter()
	r.Use(withIdentity("tenant-1", "user-1", "member"))
	r.Get("/tokens/balance", h.GetBalance)
	r.Get("/tokens/ledger", h.ListLedger)
	r.Post("/tokens/usage", h.RecordUsage)
	return r
}

func TestTokenHandler_GetBalance(t *testing.T) {
	ledger := &MockLedger{}
	ledger.On("GetBalance", mock.Anything, "tenant-1").Return(int64(1300), nil)

	req := httptest.NewRequest("GET", "/tokens/balance", nil)
	w := httptest.NewRecorder()
	newTokenRouter(ledger).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp BalanceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, BalanceResponse{TenantID: "tenant-1", Balance: 1300}, resp)
	ledger.AssertExpectations(t)
}

func TestTokenHandler_ListLedger(t *testing.T) {
	t.Run("passes pagination through", func(t *testing.T) {
		ledger := &MockLedger{}
		page := &models.LedgerPage{
			Entries: []models.LedgerEntry{{ID: "e1", TenantID: "tenant-1", Seq: 1, Delta: 500, Reason: "signup_bonus", BalanceAfter: 500}},
			Total:   1,
			Balance: 500,
		}
		ledger.On("ListLedger", mock.Anything, "tenant-1", 10, 20).Return(page, nil)

		req := httptest.NewRequest("GET", "/tokens/ledger?limit=10&offset=20", nil)
		w := httptest.NewRecorder()
		newTokenRouter(ledger).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp models.LedgerPage
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int64(1), resp.Total)
		assert.Len(t, resp.Entries, 1)
		ledger.AssertExpectations(t)
	})

	t.Run("non-numeric limit", func(t *testing.T) {
		ledger := &MockLedger{}

		req := httptest.NewRequest("GET", "/tokens/ledger?limit=ten", nil)
		w := httptest.NewRecorder()
		newTokenRouter(ledger).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		ledger.AssertNotCalled(t, "ListLedger", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("negative offset", func(t *testing.T) {
		ledger := &MockLedger{}
		ledger.On("ListLedger", mock.Anything, "tenant-1", 0, -1).Return(nil, services.ErrInvalidPagination)

		req := httptest.NewRequest("GET", "/tokens/ledger?offset=-1", nil)
		w := httptest.NewRecorder()
		newTokenRouter(ledger).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTokenHandler_RecordUsage(t *testing.T) {
	t.Run("debits with usage reason", func(t *testing.T) {
		ledger := &MockLedger{}
		ledger.On("Debit", mock.Anything, "tenant-1", int64(200), "usage:report_export",
			models.Metadata{"feature": "report_export", "actor_id": "user-1"}).
			Return(&services.Result{NewBalance: 1300}, nil)

		body := bytes.NewBufferString(`{"amount": 200, "feature": "report_export"}`)
		req := httptest.NewRequest("POST", "/tokens/usage", body)
		w := httptest.NewRecorder()
		newTokenRouter(ledger).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp MutationResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int64(1300), resp.NewBalance)
		ledger.AssertExpectations(t)
	})

	t.Run("insufficient balance is 402", func(t *testing.T) {
		ledger := &MockLedger{}
		ledger.On("Debit", mock.Anything, "tenant-1", int64(5000), "usage:ai_estimate", mock.Anything).
			Return(nil, services.ErrInsufficientBalance)

		req := httptest.NewRequest("POST", "/tokens/usage", bytes.NewBufferString(`{"amount": 5000, "feature": "ai_estimate"}`))
		w := httptest.NewRecorder()
		newTokenRouter(ledger).ServeHTTP(w, req)

		assert.Equal(t, http.StatusPaymentRequired, w.Code)
	})

	t.Run("invalid body never reaches the ledger", func(t *testing.T) {
		ledger := &MockLedger{}

		for _, body := range []string{`{"amount": 0, "feature": "x"}`, `{"amount": 5}`, `{"amount": 5, "feature": "a:b"}`, `nope`} {
			req := httptest.NewRequest("POST", "/tokens/usage", bytes.NewBufferString(body))
			w := httptest.NewRecorder()
			newTokenRouter(ledger).ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code, body)
		}
		ledger.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestSendLedgerError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{services.ErrInvalidAmount, http.StatusBadRequest},
		{services.ErrInvalidTenant, http.StatusBadRequest},
		{services.ErrInsufficientBalance, http.StatusPaymentRequired},
		{services.ErrBalanceOverflow, http.StatusUnprocessableEntity},
		{services.ErrRateLimited, http.StatusTooManyRequests},
		{&services.PersistenceError{Op: "lock wallet", Err: &pq.Error{Code: "40001"}}, http.StatusServiceUnavailable},
		{&services.PersistenceError{Op: "append entry", Err: errors.New("disk full")}, http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", services.ErrInvalidOrder), http.StatusBadRequest},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		sendLedgerError(w, zap.NewNop(), tc.err)
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
	}
}

func newAdminRouter(ledger TokenLedger, limiter GrantAllower) http.Handler {
	h := NewAdminHandler(ledger, limiter, zap.NewNop())
	r := chi.NewRouter()
	r.Use(withIdentity("support-org", "admin-1", "admin"))
	r.Post("/admin/tenants/{tenantId}/grants", h.Grant)
	r.Post("/admin/tenants/{tenantId}/reconcile", h.Reconcile)
	return r
}

func TestAdminHandler_Grant(t *testing.T) {
	t.Run("grants to the path tenant with actor metadata", func(t *testing.T) {
		ledger := &MockLedger{}
		limiter := &MockLimiter{}
		limiter.On("Allow", mock.Anything, "admin-1").Return(nil)
		ledger.On("Grant", mock.Anything, "tenant-9", int64(250), "", models.Metadata{"actor_id": "admin-1", "note": "goodwill"}).
			Return(&services.Result{NewBalance: 250}, nil)

		req := httptest.NewRequest("POST", "/admin/tenants/tenant-9/grants", bytes.NewBufferString(`{"amount": 250, "note": "goodwill"}`))
		w := httptest.NewRecorder()
		newAdminRouter(ledger, limiter).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp MutationResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "tenant-9", resp.TenantID)
		assert.Equal(t, int64(250), resp.NewBalance)
		ledger.AssertExpectations(t)
		limiter.AssertExpectations(t)
	})

	t.Run("rate limited", func(t *testing.T) {
		ledger := &MockLedger{}
		limiter := &MockLimiter{}
		limiter.On("Allow", mock.Anything, "admin-1").Return(services.ErrRateLimited)

		req := httptest.NewRequest("POST", "/admin/tenants/tenant-9/grants", bytes.NewBufferString(`{"amount": 250}`))
		w := httptest.NewRecorder()
		newAdminRouter(ledger, limiter).ServeHTTP(w, req)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		ledger.AssertNotCalled(t, "Grant", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("accepts refund reason", func(t *testing.T) {
		ledger := &MockLedger{}
		limiter := &MockLimiter{}
		limiter.On("Allow", mock.Anything, "admin-1").Return(nil)
		ledger.On("Grant", mock.Anything, "tenant-9", int64(40), models.ReasonRefund, models.Metadata{"actor_id": "admin-1"}).
			Return(&services.Result{NewBalance: 40}, nil)

		req := httptest.NewRequest("POST", "/admin/tenants/tenant-9/grants", bytes.NewBufferString(`{"amount": 40, "reason": "refund"}`))
		w := httptest.NewRecorder()
		newAdminRouter(ledger, limiter).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		ledger.AssertExpectations(t)
	})

	t.Run("rejects reasons owned by purchases and usage", func(t *testing.T) {
		for _, reason := range []string{"purchase", "usage:report_export", "bonus"} {
			ledger := &MockLedger{}
			limiter := &MockLimiter{}

			body := `{"amount": 100, "reason": "` + reason + `"}`
			req := httptest.NewRequest("POST", "/admin/tenants/tenant-9/grants", bytes.NewBufferString(body))
			w := httptest.NewRecorder()
			newAdminRouter(ledger, limiter).ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code, reason)
			limiter.AssertNotCalled(t, "Allow", mock.Anything, mock.Anything)
			ledger.AssertNotCalled(t, "Grant", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		}
	})

	t.Run("negative amount", func(t *testing.T) {
		ledger := &MockLedger{}

		req := httptest.NewRequest("POST", "/admin/tenants/tenant-9/grants", bytes.NewBufferString(`{"amount": -5}`))
		w := httptest.NewRecorder()
		newAdminRouter(ledger, nil).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAdminHandler_Reconcile(t *testing.T) {
	ledger := &MockLedger{}
	ledger.On("RebuildFromLedger", mock.Anything, "tenant-9").Return(int64(1300), nil)
	ledger.On("VerifyChain", mock.Anything, "tenant-9").
		Return(&models.ChainReport{TenantID: "tenant-9", Entries: 3, LedgerSum: 1300, Consistent: true}, nil)

	req := httptest.NewRequest("POST", "/admin/tenants/tenant-9/reconcile", nil)
	w := httptest.NewRecorder()
	newAdminRouter(ledger, nil).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp ReconcileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1300), resp.Balance)
	assert.True(t, resp.Chain.Consistent)
	ledger.AssertExpectations(t)
}

func stripeRequest(t *testing.T, secret string, payload string) *http.Request {
	t.Helper()
	stamp := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(stamp + "." + payload))

	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%s,v1=%s", stamp, hex.EncodeToString(mac.Sum(nil))))
	return req
}

func TestWebhookHandler_Stripe(t *testing.T) {
	const secret = "whsec_test"
	wh := services.NewStripeWebhook(secret, 5*time.Minute)
	paid := `{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1","payment_status":"paid","metadata":{"tenant_id":"tenant-1","pack_id":"pack-1000","tokens":"1000"}}}}`

	t.Run("credits once and reports duplicates", func(t *testing.T) {
		ledger := &MockLedger{}
		ledger.On("CreditByOrder", mock.Anything, "tenant-1", "cs_1", int64(1000), "pack-1000").
			Return(&services.Result{NewBalance: 1500}, nil).Once()
		ledger.On("CreditByOrder", mock.Anything, "tenant-1", "cs_1", int64(1000), "pack-1000").
			Return(&services.Result{NewBalance: 1500, Duplicate: true}, nil).Once()
		h := NewWebhookHandler(ledger, wh, zap.NewNop())

		w := httptest.NewRecorder()
		h.Stripe(w, stripeRequest(t, secret, paid))
		assert.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		h.Stripe(w, stripeRequest(t, secret, paid))
		assert.Equal(t, http.StatusOK, w.Code)

		var resp WebhookResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Duplicate)
		assert.Equal(t, int64(1500), resp.NewBalance)
		ledger.AssertExpectations(t)
	})

	t.Run("bad signature", func(t *testing.T) {
		ledger := &MockLedger{}
		h := NewWebhookHandler(ledger, wh, zap.NewNop())

		w := httptest.NewRecorder()
		h.Stripe(w, stripeRequest(t, "whsec_other", paid))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		ledger.AssertNotCalled(t, "CreditByOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("ignored event", func(t *testing.T) {
		ledger := &MockLedger{}
		h := NewWebhookHandler(ledger, wh, zap.NewNop())

		w := httptest.NewRecorder()
		h.Stripe(w, stripeRequest(t, secret, `{"id":"evt_2","type":"customer.created","data":{"object":{}}}`))
		assert.Equal(t, http.StatusOK, w.Code)

		var resp WebhookResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Ignored)
	})

	t.Run("storage failure asks stripe to retry", func(t *testing.T) {
		ledger := &MockLedger{}
		ledger.On("CreditByOrder", mock.Anything, "tenant-1", "cs_1", int64(1000), "pack-1000").
			Return(nil, &services.PersistenceError{Op: "begin", Err: errors.New("connection refused")})
		h := NewWebhookHandler(ledger, wh, zap.NewNop())

		w := httptest.NewRecorder()
		h.Stripe(w, stripeRequest(t, secret, paid))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
