package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sokofresh/mpesa-checkout/internal/transport"
)

// WebhookHandler receives Daraja result callbacks. Safaricom expects a
// 200 acknowledgement in all cases, so processing problems are logged
// and answered with a status body rather than an error code.
type WebhookHandler struct {
	*transport.BaseHandler
	paymentService ServiceAPI
	logger         *slog.Logger
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, paymentService ServiceAPI, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler:    baseHandler,
		paymentService: paymentService,
		logger:         logger,
	}
}

type callbackResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HandleCallback handles POST /api/payments/callback
func (h *WebhookHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	var envelope CallbackEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		h.logger.Error("invalid callback body", "error", err)
		h.WriteJSON(w, http.StatusBadRequest, callbackResponse{Status: "error", Message: "invalid request body"})
		return
	}

	stk := envelope.Body.StkCallback
	h.logger.Info("received mpesa callback",
		"checkout_request_id", stk.CheckoutRequestID,
		"result_code", stk.ResultCode,
		"result_desc", stk.ResultDesc)

	if err := h.paymentService.ProcessCallback(r.Context(), &envelope); err != nil {
		h.logger.Error("failed to process callback",
			"error", err,
			"checkout_request_id", stk.CheckoutRequestID)
		h.WriteJSON(w, http.StatusOK, callbackResponse{Status: "error", Message: err.Error()})
		return
	}

	h.WriteJSON(w, http.StatusOK, callbackResponse{Status: "callback processed"})
}

// HandleTimeout handles POST /api/payments/timeout. Acknowledge only.
func (h *WebhookHandler) HandleTimeout(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, callbackResponse{Status: "received"})
}
