package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/sokofresh/mpesa-checkout/internal"
	"github.com/sokofresh/mpesa-checkout/internal/payment"
	"github.com/sokofresh/mpesa-checkout/internal/transport"
)

// MockService implements payment.ServiceAPI for handler tests
type MockService struct {
	initiateResp  *payment.InitiateResponse
	initiateErr   error
	statusResp    *payment.StatusResponse
	statusErr     error
	historyResp   *payment.HistoryResponse
	historyErr    error
	callbackErr   error
	callbackCalls int
}

func (m *MockService) Initiate(_ context.Context, req *payment.InitiateRequest) (*payment.InitiateResponse, error) {
	return m.initiateResp, m.initiateErr
}

func (m *MockService) GetStatus(_ context.Context, paymentID string) (*payment.StatusResponse, error) {
	return m.statusResp, m.statusErr
}

func (m *MockService) History(_ context.Context, limit, offset int) (*payment.HistoryResponse, error) {
	return m.historyResp, m.historyErr
}

func (m *MockService) ProcessCallback(_ context.Context, envelope *payment.CallbackEnvelope) error {
	m.callbackCalls++
	return m.callbackErr
}

var _ = Describe("Payment Handlers", func() {
	var (
		mockService *MockService
		router      *chi.Mux
		logger      *slog.Logger
	)

	BeforeEach(func() {
		mockService = &MockService{}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		handler := payment.NewHandler(mockService, logger)
		webhookHandler := payment.NewWebhookHandler(transport.NewBaseHandler(logger), mockService, logger)

		router = chi.NewRouter()
		router.Post("/api/payments/initiate", handler.Initiate)
		router.Get("/api/payments/status/{payment_id}", handler.GetStatus)
		router.Get("/api/payments/history", handler.History)
		router.Post("/api/payments/callback", webhookHandler.HandleCallback)
		router.Post("/api/payments/timeout", webhookHandler.HandleTimeout)
	})

	Describe("Initiate", func() {
		Context("when the service accepts the payment", func() {
			BeforeEach(func() {
				mockService.initiateResp = &payment.InitiateResponse{
					PaymentID: "pay-123",
					Status:    payment.StatusInitiated,
					Message:   "Check your phone",
				}
			})

			It("should return 200 with the initiate response", func() {
				body := bytes.NewBufferString(`{"phone":"254712345678","amount":500}`)
				req := httptest.NewRequest(http.MethodPost, "/api/payments/initiate", body)
				rec := httptest.NewRecorder()

				router.ServeHTTP(rec, req)

				Expect(rec.Code).To(Equal(http.StatusOK))

				var resp payment.InitiateResponse
				Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
				Expect(resp.PaymentID).To(Equal("pay-123"))
				Expect(resp.Status).To(Equal(payment.StatusInitiated))
			})
		})

		Context("when the body is not valid JSON", func() {
			It("should return 400", func() {
				req := httptest.NewRequest(http.MethodPost, "/api/payments/initiate", strings.NewReader("not json"))
				rec := httptest.NewRecorder()

				router.ServeHTTP(rec, req)

				Expect(rec.Code).To(Equal(http.StatusBadRequest))
			})
		})

		Context("when the service rejects the input", func() {
			BeforeEach(func() {
				mockService.initiateErr = apperrors.NewValidationError("Invalid phone number format", apperrors.ErrCodeInvalidPhone)
			})

			It("should map the app error to 400 with the error envelope", func() {
				body := bytes.NewBufferString(`{"phone":"0712","amount":500}`)
				req := httptest.NewRequest(http.MethodPost, "/api/payments/initiate", body)
				rec := httptest.NewRecorder()

				router.ServeHTTP(rec, req)

				Expect(rec.Code).To(Equal(http.StatusBadRequest))
				Expect(rec.Body.String()).To(ContainSubstring("INVALID_PHONE"))
			})
		})

		Context("when the gateway rejected the push", func() {
			BeforeEach(func() {
				mockService.initiateErr = apperrors.NewExternalError("Failed to initiate payment", apperrors.ErrCodeStkPushFailed, nil)
			})

			It("should return 502", func() {
				body := bytes.NewBufferString(`{"phone":"254712345678","amount":500}`)
				req := httptest.NewRequest(http.MethodPost, "/api/payments/initiate", body)
				rec := httptest.NewRecorder()

				router.ServeHTTP(rec, req)

				Expect(rec.Code).To(Equal(http.StatusBadGateway))
			})
		})
	})

	Describe("GetStatus", func() {
		Context("when the payment exists", func() {
			BeforeEach(func() {
				mockService.statusResp = &payment.StatusResponse{
					PaymentID: "pay-123",
					Status:    payment.StatusPending,
					Amount:    500,
				}
			})

			It("should return the stored state", func() {
				req := httptest.NewRequest(http.MethodGet, "/api/payments/status/pay-123", nil)
				rec := httptest.NewRecorder()

				router.ServeHTTP(rec, req)

				Expect(rec.Code).To(Equal(http.StatusOK))

				var resp payment.StatusResponse
				Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
				Expect(resp.Status).To(Equal(payment.StatusPending))
				Expect(resp.TransactionCode).To(BeNil())
			})
		})

		Context("when the payment does not exist", func() {
			BeforeEach(func() {
				mockService.statusErr = apperrors.ErrPaymentNotFound
			})

			It("should return 404", func() {
				req := httptest.NewRequest(http.MethodGet, "/api/payments/status/missing", nil)
				rec := httptest.NewRecorder()

				router.ServeHTTP(rec, req)

				Expect(rec.Code).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("History", func() {
		BeforeEach(func() {
			mockService.historyResp = &payment.HistoryResponse{
				Payments: []payment.StatusResponse{},
				Limit:    50,
				Offset:   0,
			}
		})

		It("should return the page", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/payments/history?limit=10&offset=abc", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
		})
	})

	Describe("HandleCallback", func() {
		It("should acknowledge a valid callback", func() {
			body := bytes.NewBufferString(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":0}}}`)
			req := httptest.NewRequest(http.MethodPost, "/api/payments/callback", body)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(mockService.callbackCalls).To(Equal(1))
		})

		It("should return 400 on a malformed body", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/payments/callback", strings.NewReader("{"))
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(mockService.callbackCalls).To(BeZero())
		})

		It("should still answer 200 when processing fails, Daraja must not retry", func() {
			mockService.callbackErr = apperrors.NewInternalError("db down", nil)

			body := bytes.NewBufferString(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":0}}}`)
			req := httptest.NewRequest(http.MethodPost, "/api/payments/callback", body)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("error"))
		})
	})

	Describe("HandleTimeout", func() {
		It("should acknowledge", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/payments/timeout", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("received"))
		})
	})
})
