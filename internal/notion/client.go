package notion

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
	defaultBaseURL = "https://api.notion.com/v1"
	notionVersion  = "2022-06-28"
)

type Config struct {
	// BaseURL overrides the Notion host; used in tests.
	BaseURL    string
	APIKey     string
	DatabaseID string
	Timeout    time.Duration
}

// Client mirrors successful payments into a Notion database so the
// records can be shared outside the service. All calls are best
// effort; the payment flow never depends on them.
type Client struct {
	cfg     Config
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	baseURL := defaultBaseURL
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		cfg:     cfg,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *Client) IsConfigured() bool {
	return c.cfg.APIKey != "" && c.cfg.DatabaseID != ""
}

// PaymentRecord is the subset of a payment written to Notion.
type PaymentRecord struct {
	PaymentID       string
	PhoneNumber     string
	Amount          float64
	TransactionCode string
	Status          string
	CreatedAt       time.Time
}

// LogPayment creates a page for the payment in the configured Notion
// database.
func (c *Client) LogPayment(ctx context.Context, record PaymentRecord) error {
	if !c.IsConfigured() {
		c.logger.Debug("notion not configured, skipping payment log", "payment_id", record.PaymentID)
		return nil
	}

	transactionCode := record.TransactionCode
	if transactionCode == "" {
		transactionCode = "N/A"
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	page := map[string]interface{}{
		"parent": map[string]interface{}{
			"database_id": c.cfg.DatabaseID,
		},
		"properties": map[string]interface{}{
			"Payment ID": map[string]interface{}{
				"title": []map[string]interface{}{
					{"text": map[string]string{"content": record.PaymentID}},
				},
			},
			"Phone Number": map[string]interface{}{
				"phone_number": record.PhoneNumber,
			},
			"Amount": map[string]interface{}{
				"number": record.Amount,
			},
			"Transaction Code": map[string]interface{}{
				"rich_text": []map[string]interface{}{
					{"text": map[string]string{"content": transactionCode}},
				},
			},
			"Status": map[string]interface{}{
				"select": map[string]string{"name": titleCase(record.Status)},
			},
			"Created At": map[string]interface{}{
				"date": map[string]string{"start": createdAt.Format(time.RFC3339)},
			},
		},
	}

	if err := c.post(ctx, "/pages", page); err != nil {
		return fmt.Errorf("failed to log payment to notion: %w", err)
	}

	c.logger.Info("payment logged to notion", "payment_id", record.PaymentID)
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notion payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create notion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", notionVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("notion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("notion returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
