package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultGatewayTimeout = 10 * time.Second

	// Shown when the transport fails or the server gives us nothing
	// usable to show.
	genericGatewayMessage = "Payment request failed. Please try again."
	networkErrorMessage   = "Network error. Please check your connection and try again."
)

// GatewayError is a failure reported by, or while reaching, the
// payments API. StatusCode is zero when the request never produced an
// HTTP response.
type GatewayError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway error: %s", e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// InitiateResult is the response to a successful initiate call.
type InitiateResult struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// StatusResult is one status poll response.
type StatusResult struct {
	PaymentID       string  `json:"payment_id"`
	Status          Status  `json:"status"`
	Amount          float64 `json:"amount"`
	TransactionCode string  `json:"transaction_code,omitempty"`
}

// Client talks to the payments API with a bearer token. It performs no
// input validation; callers run ValidateInput before Initiate.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: defaultGatewayTimeout},
		logger:     logger,
	}
}

// Initiate starts a payment for the given phone and amount.
func (c *Client) Initiate(ctx context.Context, phone string, amount float64) (*InitiateResult, error) {
	payload := map[string]any{
		"phone":  phone,
		"amount": amount,
	}

	var result InitiateResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/payments/initiate", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Status fetches the current status of a payment.
func (c *Client) Status(ctx context.Context, paymentID string) (*StatusResult, error) {
	var result StatusResult
	if err := c.doJSON(ctx, http.MethodGet, "/api/payments/status/"+paymentID, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return &GatewayError{Message: genericGatewayMessage, Err: err}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &GatewayError{Message: genericGatewayMessage, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("gateway request failed", "method", method, "path", path, "error", err)
		return &GatewayError{Message: networkErrorMessage, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &GatewayError{StatusCode: resp.StatusCode, Message: networkErrorMessage, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &GatewayError{
			StatusCode: resp.StatusCode,
			Message:    errorMessageFromBody(raw),
		}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &GatewayError{StatusCode: resp.StatusCode, Message: genericGatewayMessage, Err: err}
		}
	}
	return nil
}

// errorMessageFromBody pulls a human readable message out of an error
// response. The API wraps errors as {"error": {"message": ...}} but we
// also accept flat {"message"} and {"detail"} shapes.
func errorMessageFromBody(raw []byte) string {
	var envelope struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if envelope.Error != nil && envelope.Error.Message != "" {
			return envelope.Error.Message
		}
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Detail != "" {
			return envelope.Detail
		}
	}
	return genericGatewayMessage
}
