package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestGrantRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"required,max=64"`
	Note   string `json:"note" validate:"max=10"`
}

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid struct", func(t *testing.T) {
		valid := TestGrantRequest{Amount: 100, Reason: "admin_grant"}
		assert.NoError(t, vh.ValidateStruct(&valid))
	})

	t.Run("invalid struct - missing required fields", func(t *testing.T) {
		invalid := TestGrantRequest{
			Amount: -1,
			Note:   "far too long for the limit",
		}

		err := vh.ValidateStruct(&invalid)
		assert.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Len(t, validationErrors, 3) // Amount, Reason, Note
	})

	t.Run("zero amount fails required", func(t *testing.T) {
		err := vh.ValidateStruct(&TestGrantRequest{Reason: "admin_grant"})

		validationErrors, ok := err.(validator.ValidationErrors)
		require.True(t, ok)
		assert.Len(t, validationErrors, 1)
		assert.Equal(t, "Amount", validationErrors[0].Field())
		assert.Equal(t, "required", validationErrors[0].Tag())
	})
}

func TestValidationHelper_DecodeAndValidate(t *testing.T) {
	vh := NewValidationHelper()

	cases := []struct {
		name   string
		body   string
		ok     bool
		errMsg string
	}{
		{"valid body", `{"amount": 50, "reason": "admin_grant"}`, true, ""},
		{"malformed json", `{"amount": `, false, "Invalid request body"},
		{"unknown field", `{"amount": 50, "reason": "x", "bonus": 1}`, false, "Invalid request body"},
		{"two objects", `{"amount": 50, "reason": "x"}{"amount": 1}`, false, "Request body must only contain a single JSON object"},
		{"fails validation", `{"amount": 0, "reason": "x"}`, false, "Validation failed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			w := httptest.NewRecorder()

			var req TestGrantRequest
			ok := vh.DecodeAndValidate(w, r, &req)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, int64(50), req.Amount)
				return
			}

			assert.Equal(t, http.StatusBadRequest, w.Code)
			var response ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tc.errMsg, response.Error)
		})
	}
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("error response without validation errors", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Something went wrong", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Something went wrong", response.Error)
		assert.Nil(t, response.Details)
	})

	t.Run("error response with validation errors", func(t *testing.T) {
		vh := NewValidationHelper()
		validationErr := vh.ValidateStruct(&TestGrantRequest{Amount: -5, Note: "far too long for the limit"})
		assert.Error(t, validationErr)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, validationErr)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Validation failed", response.Error)
		assert.Contains(t, response.Details, "Amount")
		assert.Contains(t, response.Details, "Reason")
		assert.Contains(t, response.Details, "Note")
	})

	t.Run("non-validation error adds no details", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, errors.New("boom"))

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Invalid request", response.Error)
		assert.Nil(t, response.Details)
	})
}

func TestNewValidationHelper(t *testing.T) {
	vh := NewValidationHelper()
	assert.NotNil(t, vh)
	assert.NotNil(t, vh.validator)
}
