package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentInitiated = "payment.initiated"
	EventTypePaymentSucceeded = "payment.succeeded"
	EventTypePaymentFailed    = "payment.failed"
)

func newBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

type PaymentInitiatedEvent struct {
	BaseEvent
	PaymentID         string  `json:"payment_id"`
	PhoneNumber       string  `json:"phone_number"`
	Amount            float64 `json:"amount"`
	CheckoutRequestID string  `json:"checkout_request_id"`
}

func NewPaymentInitiatedEvent(paymentID, phoneNumber string, amount float64, checkoutRequestID string) *PaymentInitiatedEvent {
	return &PaymentInitiatedEvent{
		BaseEvent:         newBaseEvent(EventTypePaymentInitiated),
		PaymentID:         paymentID,
		PhoneNumber:       phoneNumber,
		Amount:            amount,
		CheckoutRequestID: checkoutRequestID,
	}
}

type PaymentSucceededEvent struct {
	BaseEvent
	PaymentID       string  `json:"payment_id"`
	PhoneNumber     string  `json:"phone_number"`
	Amount          float64 `json:"amount"`
	TransactionCode string  `json:"transaction_code"`
}

func NewPaymentSucceededEvent(paymentID, phoneNumber string, amount float64, transactionCode string) *PaymentSucceededEvent {
	return &PaymentSucceededEvent{
		BaseEvent:       newBaseEvent(EventTypePaymentSucceeded),
		PaymentID:       paymentID,
		PhoneNumber:     phoneNumber,
		Amount:          amount,
		TransactionCode: transactionCode,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	PaymentID     string  `json:"payment_id"`
	PhoneNumber   string  `json:"phone_number"`
	Amount        float64 `json:"amount"`
	FailureReason string  `json:"failure_reason"`
}

func NewPaymentFailedEvent(paymentID, phoneNumber string, amount float64, failureReason string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent:     newBaseEvent(EventTypePaymentFailed),
		PaymentID:     paymentID,
		PhoneNumber:   phoneNumber,
		Amount:        amount,
		FailureReason: failureReason,
	}
}
