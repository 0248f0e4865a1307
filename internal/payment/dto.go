package payment

import (
	"encoding/json"
	"time"

	"github.com/sokofresh/mpesa-checkout/internal/core/common/validation"
)

// Payment status constants. "initiated" only ever appears in the
// initiate response; stored rows move pending -> success|failed.
const (
	StatusInitiated = "initiated"
	StatusPending   = "pending"
	StatusSuccess   = "success"
	StatusFailed    = "failed"
)

// InitiateRequest is the body of POST /api/payments/initiate.
type InitiateRequest struct {
	Phone  string  `json:"phone"`
	Amount float64 `json:"amount"`
}

func (r *InitiateRequest) Validate() error {
	if appErr := validation.ValidatePhone(r.Phone); appErr != nil {
		return appErr
	}
	if appErr := validation.ValidateAmount(r.Amount); appErr != nil {
		return appErr
	}
	return nil
}

type InitiateResponse struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

type StatusResponse struct {
	PaymentID       string     `json:"payment_id"`
	Status          string     `json:"status"`
	Amount          float64    `json:"amount"`
	TransactionCode *string    `json:"transaction_code,omitempty"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
}

type HistoryResponse struct {
	Payments []StatusResponse `json:"payments"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// CallbackEnvelope is the Daraja result callback. Metadata item values
// are mixed types (strings and numbers), hence json.RawMessage.
type CallbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []CallbackItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type CallbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// ReceiptNumber extracts the MpesaReceiptNumber metadata item, empty
// when absent.
func (e *CallbackEnvelope) ReceiptNumber() string {
	for _, item := range e.Body.StkCallback.CallbackMetadata.Item {
		if item.Name != "MpesaReceiptNumber" {
			continue
		}
		var code string
		if err := json.Unmarshal(item.Value, &code); err == nil {
			return code
		}
	}
	return ""
}
