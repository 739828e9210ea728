package render

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRender_Responses(t *testing.T) {
	tests := []struct {
		name         string
		render       func(w http.ResponseWriter)
		expectedCode int
		expectedBody string
	}{
		{
			name: "json keeps decimals exact",
			render: func(w http.ResponseWriter) {
				JSON(w, map[string]decimal.Decimal{"balance": decimal.RequireFromString("999.90")})
			},
			expectedCode: http.StatusOK,
			expectedBody: `{"balance": "999.9"}`,
		},
		{
			name: "json with status",
			render: func(w http.ResponseWriter) {
				JSONStatus(w, map[string]string{"status": "pending"}, http.StatusCreated)
			},
			expectedCode: http.StatusCreated,
			expectedBody: `{"status": "pending"}`,
		},
		{
			name: "service error",
			render: func(w http.ResponseWriter) {
				ServiceError(w, "Cashout request already processed", http.StatusConflict)
			},
			expectedCode: http.StatusConflict,
			expectedBody: `{"error": "service_error", "message": "Cashout request already processed"}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			tc.render(w)

			require.Equal(t, tc.expectedCode, w.Code)
			require.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
			require.JSONEq(t, tc.expectedBody, w.Body.String())
		})
	}
}

func TestRender_BindAndValidate(t *testing.T) {
	type sale struct {
		SaleID    string          `json:"sale_id" validate:"required,max=10"`
		AccountID uuid.UUID       `json:"account_id" validate:"required"`
		Amount    decimal.Decimal `json:"amount" validate:"money"`
		Type      string          `json:"type" validate:"omitempty,oneof=flat percent"`
		Note      string          `json:"note" validate:"min=2"`
	}

	accountID := uuid.New().String()

	tests := []struct {
		name         string
		body         string
		expectedCode int
		expectedBody string
	}{
		{
			name:         "valid with string amount",
			body:         `{"sale_id": "s-1", "account_id": "` + accountID + `", "amount": "6000.50", "note": "ok"}`,
			expectedCode: http.StatusOK,
		},
		{
			name:         "valid with number amount",
			body:         `{"sale_id": "s-1", "account_id": "` + accountID + `", "amount": 6000.5, "type": "flat", "note": "ok"}`,
			expectedCode: http.StatusOK,
		},
		{
			name:         "broken json",
			body:         `invalid-json`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{
				"error": "decoding_failed",
				"message": "Failed to parse JSON: invalid character 'i' looking for beginning of value"
			}`,
		},
		{
			name:         "wrong type",
			body:         `{"sale_id": 42}`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"error": "decoding_failed", "message": "Invalid data type for field 'sale_id'"}`,
		},
		{
			name:         "field errors by json names",
			body:         `{"sale_id": "longer-than-ten", "amount": "0.001", "type": "tiered", "note": "x"}`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{
				"error": "validation_failed",
				"message": "Request validation failed",
				"fields": {
					"sale_id": "Value is too long (maximum 10)",
					"account_id": "This field is required",
					"amount": "Must be a positive amount with at most 2 decimal places",
					"type": "Must be one of: flat percent",
					"note": "Value is too short (minimum 2)"
				}
			}`,
		},
		{
			name:         "negative amount",
			body:         `{"sale_id": "s-1", "account_id": "` + accountID + `", "amount": "-1", "note": "ok"}`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{
				"error": "validation_failed",
				"message": "Request validation failed",
				"fields": {"amount": "Must be a positive amount with at most 2 decimal places"}
			}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/sales", strings.NewReader(tc.body))
			w := httptest.NewRecorder()

			value, err := BindAndValidate[sale](w, r)

			require.Equal(t, tc.expectedCode, w.Code)
			if tc.expectedCode == http.StatusOK {
				require.NoError(t, err)
				require.True(t, value.Amount.Equal(decimal.RequireFromString("6000.5")), "amount must be decoded exactly")
				return
			}
			require.Error(t, err)
			require.JSONEq(t, tc.expectedBody, w.Body.String())
		})
	}
}
