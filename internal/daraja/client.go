package daraja

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	sandboxHost    = "https://sandbox.safaricom.co.ke"
	productionHost = "https://api.safaricom.co.ke"

	authPath     = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"
)

type Config struct {
	// BaseURL overrides the Safaricom host when set; used to point the
	// client at a local simulator.
	BaseURL           string
	ConsumerKey       string
	ConsumerSecret    string
	BusinessShortCode string
	Passkey           string
	CallbackURL       string
	Environment       string
	Timeout           time.Duration
}

// Client talks to the Safaricom Daraja API: OAuth token, STK push and
// STK status query. Tokens are cached until shortly before expiry.
type Client struct {
	cfg    Config
	host   string
	client *http.Client
	logger *slog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	host := sandboxHost
	if cfg.Environment == "production" {
		host = productionHost
	}
	if cfg.BaseURL != "" {
		host = cfg.BaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		cfg:    cfg,
		host:   host,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// STKPushResult is the trimmed-down outcome of a push request; a nil
// error means the push was accepted (ResponseCode "0").
type STKPushResult struct {
	CheckoutRequestID   string
	MerchantRequestID   string
	ResponseCode        string
	ResponseDescription string
	CustomerMessage     string
}

type QueryResult struct {
	CheckoutRequestID string
	ResultCode        string
	ResultDesc        string
}

// PushError carries the provider's rejection so callers can surface
// the human-readable description.
type PushError struct {
	ResponseCode string
	Description  string
}

func (e *PushError) Error() string {
	if e.Description != "" {
		return e.Description
	}
	return fmt.Sprintf("stk push rejected with code %s", e.ResponseCode)
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	credentials := base64.StdEncoding.EncodeToString([]byte(c.cfg.ConsumerKey + ":" + c.cfg.ConsumerSecret))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+authPath, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+credentials)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	// Daraja returns expires_in as a string of seconds.
	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned empty access token")
	}

	ttl := 3600
	if secs, err := strconv.Atoi(tokenResp.ExpiresIn); err == nil && secs > 0 {
		ttl = secs
	}

	c.token = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(ttl-60) * time.Second)

	return c.token, nil
}

// password is base64(shortcode + passkey + timestamp), the Daraja
// transaction credential. Not a cryptographic signature.
func (c *Client) password(now time.Time) (password, timestamp string) {
	timestamp = now.Format("20060102150405")
	password = base64.StdEncoding.EncodeToString([]byte(c.cfg.BusinessShortCode + c.cfg.Passkey + timestamp))
	return password, timestamp
}

// STKPush asks Safaricom to push a payment prompt to the customer's
// device. Amount is truncated to a whole number, Daraja rejects cents.
func (c *Client) STKPush(ctx context.Context, phone string, amount float64, reference string) (*STKPushResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	password, timestamp := c.password(time.Now())

	payload := map[string]interface{}{
		"BusinessShortCode": c.cfg.BusinessShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            int64(amount),
		"PartyA":            phone,
		"PartyB":            c.cfg.BusinessShortCode,
		"PhoneNumber":       phone,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  reference,
		"TransactionDesc":   fmt.Sprintf("Payment for order %s", reference),
	}

	var pushResp struct {
		MerchantRequestID   string `json:"MerchantRequestID"`
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
		CustomerMessage     string `json:"CustomerMessage"`
	}

	if err := c.postJSON(ctx, c.host+stkPushPath, token, payload, &pushResp); err != nil {
		return nil, err
	}

	result := &STKPushResult{
		CheckoutRequestID:   pushResp.CheckoutRequestID,
		MerchantRequestID:   pushResp.MerchantRequestID,
		ResponseCode:        pushResp.ResponseCode,
		ResponseDescription: pushResp.ResponseDescription,
		CustomerMessage:     pushResp.CustomerMessage,
	}

	if pushResp.ResponseCode != "0" {
		c.logger.Warn("stk push rejected",
			"response_code", pushResp.ResponseCode,
			"description", pushResp.ResponseDescription,
			"reference", reference)
		return result, &PushError{ResponseCode: pushResp.ResponseCode, Description: pushResp.ResponseDescription}
	}

	c.logger.Info("stk push sent",
		"checkout_request_id", pushResp.CheckoutRequestID,
		"reference", reference,
		"phone", phone)

	return result, nil
}

// QueryStatus asks Daraja for the outcome of a previously pushed
// request. Safe to call repeatedly.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*QueryResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	password, timestamp := c.password(time.Now())

	payload := map[string]interface{}{
		"BusinessShortCode": c.cfg.BusinessShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}

	var queryResp struct {
		CheckoutRequestID string `json:"CheckoutRequestID"`
		ResultCode        string `json:"ResultCode"`
		ResultDesc        string `json:"ResultDesc"`
	}

	if err := c.postJSON(ctx, c.host+stkQueryPath, token, payload, &queryResp); err != nil {
		return nil, err
	}

	return &QueryResult{
		CheckoutRequestID: queryResp.CheckoutRequestID,
		ResultCode:        queryResp.ResultCode,
		ResultDesc:        queryResp.ResultDesc,
	}, nil
}

func (c *Client) postJSON(ctx context.Context, url, token string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daraja returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
