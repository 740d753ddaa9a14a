package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidSignature = errors.New("webhook: invalid signature")
	ErrInvalidPayload   = errors.New("webhook: invalid payload")
	ErrEventIgnored     = errors.New("webhook: event ignored")
)

const (
	checkoutSessionCompleted      = "checkout.session.completed"
	checkoutSessionAsyncSucceeded = "checkout.session.async_payment_succeeded"

	paymentStatusPaid              = "paid"
	paymentStatusNoPaymentRequired = "no_payment_required"
)

// TokenPurchase is a paid checkout session that should be credited.
type TokenPurchase struct {
	EventID  string
	TenantID string
	OrderID  string
	PackID   string
	Tokens   int64
}

// StripeWebhook verifies and decodes Stripe checkout events.
type StripeWebhook struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

func NewStripeWebhook(secret string, tolerance time.Duration) *StripeWebhook {
	return &StripeWebhook{secret: secret, tolerance: tolerance, now: time.Now}
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSession struct {
	ID            string            `json:"id"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}

// Verify checks the Stripe-Signature header against payload.
func (s *StripeWebhook) Verify(payload []byte, headers http.Header) error {
	if s.secret == "" {
		return ErrInvalidSignature
	}
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return ErrInvalidSignature
	}

	timestamp, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return ErrInvalidSignature
	}

	if s.tolerance > 0 {
		unix, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return ErrInvalidSignature
		}
		age := s.now().Sub(time.Unix(unix, 0))
		if age > s.tolerance || age < -s.tolerance {
			return ErrInvalidSignature
		}
	}

	expected := s.sign(timestamp, payload)
	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func (s *StripeWebhook) sign(timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(s.secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%s.%s", timestamp, string(payload))))
	return hex.EncodeToString(mac.Sum(nil))
}

// Parse extracts a token purchase from a settled checkout session. A session
// settles either on checkout.session.completed, when it is paid or needs no
// payment, or later on checkout.session.async_payment_succeeded. Both carry
// the same session id, so crediting by order id applies it once. Anything
// else returns ErrEventIgnored.
func (s *StripeWebhook) Parse(payload []byte) (*TokenPurchase, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, ErrInvalidPayload
	}
	eventType := strings.TrimSpace(event.Type)
	if eventType != checkoutSessionCompleted && eventType != checkoutSessionAsyncSucceeded {
		return nil, ErrEventIgnored
	}

	var session checkoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, ErrInvalidPayload
	}
	if !sessionSettled(eventType, session.PaymentStatus) {
		return nil, ErrEventIgnored
	}

	purchase := &TokenPurchase{
		EventID:  event.ID,
		TenantID: strings.TrimSpace(session.Metadata["tenant_id"]),
		OrderID:  strings.TrimSpace(session.ID),
		PackID:   strings.TrimSpace(session.Metadata["pack_id"]),
	}
	if purchase.TenantID == "" || purchase.OrderID == "" {
		return nil, ErrInvalidPayload
	}

	tokens, err := strconv.ParseInt(strings.TrimSpace(session.Metadata["tokens"]), 10, 64)
	if err != nil || tokens <= 0 {
		return nil, ErrInvalidPayload
	}
	purchase.Tokens = tokens

	return purchase, nil
}

func sessionSettled(eventType, paymentStatus string) bool {
	switch paymentStatus {
	case paymentStatusPaid:
		return true
	case paymentStatusNoPaymentRequired:
		return eventType == checkoutSessionCompleted
	}
	return false
}

func parseStripeSignature(header string) (string, []string, error) {
	var timestamp string
	signatures := []string{}
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "t":
			timestamp = strings.TrimSpace(value)
		case "v1":
			signatures = append(signatures, strings.TrimSpace(value))
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, ErrInvalidSignature
	}
	return timestamp, signatures, nil
}
