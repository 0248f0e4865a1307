package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	errors "github.com/sokofresh/mpesa-checkout/internal"
	"github.com/sokofresh/mpesa-checkout/internal/transport"
)

type Handler struct {
	transport.BaseHandler
	PaymentService ServiceAPI
	Logger         *slog.Logger
}

func NewHandler(paymentService ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler:    *transport.NewBaseHandler(logger),
		PaymentService: paymentService,
		Logger:         logger,
	}
}

// Initiate handles POST /api/payments/initiate
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("Initiate: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	resp, err := h.PaymentService.Initiate(r.Context(), &req)
	if err != nil {
		h.Logger.Error("Initiate: service error", "error", err, "phone", req.Phone, "amount", req.Amount)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("Initiate: payment initiated",
		"payment_id", resp.PaymentID,
		"amount", req.Amount)

	h.WriteJSON(w, http.StatusOK, resp)
}

// GetStatus handles GET /api/payments/status/{payment_id}
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "payment_id")
	if paymentID == "" {
		h.HandleError(w, errors.NewValidationError("payment_id is required", errors.ErrCodeValidationFailed))
		return
	}

	resp, err := h.PaymentService.GetStatus(r.Context(), paymentID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

// History handles GET /api/payments/history?limit=&offset=
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	resp, err := h.PaymentService.History(r.Context(), limit, offset)
	if err != nil {
		h.Logger.Error("History: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, name string, defaultVal int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultVal
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return defaultVal
	}
	return value
}
