package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	errors "github.com/sokofresh/mpesa-checkout/internal"
	"github.com/sokofresh/mpesa-checkout/internal/core/datamodel/payment"
	"github.com/sokofresh/mpesa-checkout/internal/core/events"
	"github.com/sokofresh/mpesa-checkout/internal/daraja"
)

// RepositoryAPI is the persistence contract for payment rows.
type RepositoryAPI interface {
	Create(p *payment.Payment) error
	GetByPaymentID(paymentID string) (*payment.Payment, error)
	GetByCheckoutRequestID(checkoutRequestID string) (*payment.Payment, error)
	UpdateStatus(paymentID, status string) error
	UpdateSuccess(paymentID, transactionCode string) error
	List(limit, offset int) ([]*payment.Payment, error)
}

// DarajaAPI is the slice of the Daraja client the service needs.
type DarajaAPI interface {
	STKPush(ctx context.Context, phone string, amount float64, reference string) (*daraja.STKPushResult, error)
}

// ServiceAPI is the surface consumed by HTTP handlers.
type ServiceAPI interface {
	Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResponse, error)
	GetStatus(ctx context.Context, paymentID string) (*StatusResponse, error)
	History(ctx context.Context, limit, offset int) (*HistoryResponse, error)
	ProcessCallback(ctx context.Context, envelope *CallbackEnvelope) error
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type PaymentService struct {
	repository RepositoryAPI
	gateway    DarajaAPI
	eventBus   *events.EventBus
	logger     *slog.Logger
}

func NewPaymentService(repository RepositoryAPI, gateway DarajaAPI, eventBus *events.EventBus, logger *slog.Logger) *PaymentService {
	return &PaymentService{
		repository: repository,
		gateway:    gateway,
		eventBus:   eventBus,
		logger:     logger,
	}
}

// Initiate validates the request, pushes the payment prompt to the
// customer's device and persists a pending row keyed by a fresh
// payment id. A rejected push still leaves a failed row behind so the
// attempt shows up in history.
func (s *PaymentService) Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResponse, error) {
	if err := req.Validate(); err != nil {
		s.logger.Warn("initiate request validation failed", "error", err)
		return nil, err
	}

	paymentID := uuid.New().String()

	s.logger.Info("initiating payment",
		"payment_id", paymentID,
		"phone", req.Phone,
		"amount", req.Amount)

	stk, pushErr := s.gateway.STKPush(ctx, req.Phone, req.Amount, paymentID)

	record := &payment.Payment{
		PaymentID:   paymentID,
		PhoneNumber: req.Phone,
		Amount:      req.Amount,
		Status:      StatusPending,
	}
	if stk != nil && stk.CheckoutRequestID != "" {
		checkoutRequestID := stk.CheckoutRequestID
		record.CheckoutRequestID = &checkoutRequestID
	}

	if err := s.repository.Create(record); err != nil {
		s.logger.Error("failed to create payment record", "error", err, "payment_id", paymentID)
		return nil, errors.NewInternalError("failed to create payment record", err)
	}

	if pushErr != nil {
		s.logger.Error("stk push failed", "error", pushErr, "payment_id", paymentID)

		if err := s.repository.UpdateStatus(paymentID, StatusFailed); err != nil {
			s.logger.Error("failed to mark payment failed", "error", err, "payment_id", paymentID)
		}

		return nil, errors.NewExternalError("Failed to initiate payment", errors.ErrCodeStkPushFailed, pushErr)
	}

	s.eventBus.Publish(ctx, events.NewPaymentInitiatedEvent(paymentID, req.Phone, req.Amount, stk.CheckoutRequestID))

	message := stk.CustomerMessage
	if message == "" {
		message = "Payment request sent. Check your phone to complete the payment."
	}

	return &InitiateResponse{
		PaymentID: paymentID,
		Status:    StatusInitiated,
		Message:   message,
	}, nil
}

// GetStatus is an idempotent read of the stored payment state.
func (s *PaymentService) GetStatus(ctx context.Context, paymentID string) (*StatusResponse, error) {
	record, err := s.repository.GetByPaymentID(paymentID)
	if err != nil {
		s.logger.Warn("payment not found", "payment_id", paymentID, "error", err)
		return nil, errors.ErrPaymentNotFound
	}

	return toStatusResponse(record), nil
}

func (s *PaymentService) History(ctx context.Context, limit, offset int) (*HistoryResponse, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.repository.List(limit, offset)
	if err != nil {
		s.logger.Error("failed to list payments", "error", err)
		return nil, errors.NewInternalError("failed to list payments", err)
	}

	items := make([]StatusResponse, 0, len(records))
	for _, record := range records {
		items = append(items, *toStatusResponse(record))
	}

	return &HistoryResponse{
		Payments: items,
		Limit:    limit,
		Offset:   offset,
	}, nil
}

// ProcessCallback applies a Daraja result callback to the matching
// row. Unknown checkout request ids are ignored, Safaricom retries
// callbacks and the row may belong to another deployment.
func (s *PaymentService) ProcessCallback(ctx context.Context, envelope *CallbackEnvelope) error {
	stk := envelope.Body.StkCallback

	if stk.CheckoutRequestID == "" {
		s.logger.Warn("callback missing checkout request id")
		return nil
	}

	record, err := s.repository.GetByCheckoutRequestID(stk.CheckoutRequestID)
	if err != nil {
		s.logger.Warn("callback for unknown payment",
			"checkout_request_id", stk.CheckoutRequestID,
			"result_code", stk.ResultCode)
		return nil
	}

	if stk.ResultCode == 0 {
		transactionCode := envelope.ReceiptNumber()

		if transactionCode != "" {
			err = s.repository.UpdateSuccess(record.PaymentID, transactionCode)
		} else {
			err = s.repository.UpdateStatus(record.PaymentID, StatusSuccess)
		}
		if err != nil {
			return fmt.Errorf("failed to update payment %s: %w", record.PaymentID, err)
		}

		s.logger.Info("payment succeeded",
			"payment_id", record.PaymentID,
			"transaction_code", transactionCode)

		s.eventBus.Publish(ctx, events.NewPaymentSucceededEvent(record.PaymentID, record.PhoneNumber, record.Amount, transactionCode))
		return nil
	}

	if err := s.repository.UpdateStatus(record.PaymentID, StatusFailed); err != nil {
		return fmt.Errorf("failed to update payment %s: %w", record.PaymentID, err)
	}

	s.logger.Info("payment failed",
		"payment_id", record.PaymentID,
		"result_code", stk.ResultCode,
		"result_desc", stk.ResultDesc)

	s.eventBus.Publish(ctx, events.NewPaymentFailedEvent(record.PaymentID, record.PhoneNumber, record.Amount, stk.ResultDesc))
	return nil
}

func toStatusResponse(record *payment.Payment) *StatusResponse {
	resp := &StatusResponse{
		PaymentID:       record.PaymentID,
		Status:          record.Status,
		Amount:          record.Amount,
		TransactionCode: record.TransactionCode,
	}
	if !record.CreatedAt.IsZero() {
		createdAt := record.CreatedAt
		resp.CreatedAt = &createdAt
	}
	return resp
}
