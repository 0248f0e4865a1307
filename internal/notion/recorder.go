package notion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sokofresh/mpesa-checkout/internal"
	"github.com/sokofresh/mpesa-checkout/internal/core/events"
)

// Recorder subscribes to payment events and mirrors successful
// payments into Notion.
type Recorder struct {
	client *Client
	logger *slog.Logger
}

func NewRecorder(client *Client, logger *slog.Logger) *Recorder {
	return &Recorder{
		client: client,
		logger: logger,
	}
}

func (r *Recorder) HandlePaymentSucceeded(ctx context.Context, event events.Event) error {
	succeeded, ok := event.(*events.PaymentSucceededEvent)
	if !ok {
		r.logger.Error("invalid event type for notion recorder", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentSucceededEvent, got %T", event)
	}

	record := PaymentRecord{
		PaymentID:       succeeded.PaymentID,
		PhoneNumber:     succeeded.PhoneNumber,
		Amount:          succeeded.Amount,
		TransactionCode: succeeded.TransactionCode,
		Status:          "success",
		CreatedAt:       succeeded.OccurredAt().UTC(),
	}

	logCtx, cancel := internal.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := r.client.LogPayment(logCtx, record); err != nil {
		r.logger.Error("failed to mirror payment to notion",
			"error", err,
			"payment_id", succeeded.PaymentID,
			"event_id", succeeded.EventID())
		return err
	}

	return nil
}

func (r *Recorder) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentSucceeded, r.HandlePaymentSucceeded)

	r.logger.Info("notion recorder registered",
		"handlers", []string{events.EventTypePaymentSucceeded})
}
