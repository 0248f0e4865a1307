package notion_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokofresh/mpesa-checkout/internal/notion"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLogPaymentCreatesNotionPage(t *testing.T) {
	var gotHeaders http.Header
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/pages", r.URL.Path)
		gotHeaders = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := notion.NewClient(notion.Config{
		BaseURL:    server.URL,
		APIKey:     "secret-key",
		DatabaseID: "db-123",
	}, testLogger())

	err := client.LogPayment(context.Background(), notion.PaymentRecord{
		PaymentID:       "pay-123",
		PhoneNumber:     "254712345678",
		Amount:          500,
		TransactionCode: "NLJ7RT61SV",
		Status:          "success",
		CreatedAt:       time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-key", gotHeaders.Get("Authorization"))
	assert.Equal(t, "2022-06-28", gotHeaders.Get("Notion-Version"))

	parent := gotBody["parent"].(map[string]any)
	assert.Equal(t, "db-123", parent["database_id"])

	properties := gotBody["properties"].(map[string]any)
	status := properties["Status"].(map[string]any)["select"].(map[string]any)
	assert.Equal(t, "Success", status["name"])

	amount := properties["Amount"].(map[string]any)
	assert.Equal(t, float64(500), amount["number"])
}

func TestLogPaymentDefaultsMissingTransactionCode(t *testing.T) {
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
	}))
	defer server.Close()

	client := notion.NewClient(notion.Config{
		BaseURL:    server.URL,
		APIKey:     "secret-key",
		DatabaseID: "db-123",
	}, testLogger())

	err := client.LogPayment(context.Background(), notion.PaymentRecord{
		PaymentID:   "pay-123",
		PhoneNumber: "254712345678",
		Amount:      500,
		Status:      "success",
	})
	require.NoError(t, err)

	properties := gotBody["properties"].(map[string]any)
	richText := properties["Transaction Code"].(map[string]any)["rich_text"].([]any)
	text := richText[0].(map[string]any)["text"].(map[string]any)
	assert.Equal(t, "N/A", text["content"])
}

func TestLogPaymentSkipsWhenUnconfigured(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer server.Close()

	client := notion.NewClient(notion.Config{BaseURL: server.URL}, testLogger())

	err := client.LogPayment(context.Background(), notion.PaymentRecord{PaymentID: "pay-123"})
	require.NoError(t, err)
	assert.Zero(t, hits)
}

func TestLogPaymentSurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"validation_error"}`))
	}))
	defer server.Close()

	client := notion.NewClient(notion.Config{
		BaseURL:    server.URL,
		APIKey:     "secret-key",
		DatabaseID: "db-123",
	}, testLogger())

	err := client.LogPayment(context.Background(), notion.PaymentRecord{PaymentID: "pay-123"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
