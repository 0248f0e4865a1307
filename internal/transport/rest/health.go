package rest

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sokofresh/mpesa-checkout/internal"
)

type healthCheck struct {
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

type healthResponse struct {
	Status    string                 `json:"status"`
	CheckedAt time.Time              `json:"checked_at"`
	Checks    map[string]healthCheck `json:"checks"`
}

// HealthHandler answers liveness and readiness probes. Readiness
// verifies the payments database since every API call touches it.
type HealthHandler struct {
	db *sql.DB
}

func NewHealthHandler(db *sql.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) pingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "OK"})
}

func (h *HealthHandler) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := internal.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	start := time.Now()
	check := healthCheck{Status: "healthy"}
	if err := h.db.PingContext(ctx); err != nil {
		check.Status = "unhealthy"
		check.Error = err.Error()
	}
	check.DurationMs = time.Since(start).Milliseconds()

	resp := healthResponse{
		Status:    check.Status,
		CheckedAt: time.Now().UTC(),
		Checks:    map[string]healthCheck{"database": check},
	}

	statusCode := http.StatusOK
	if check.Status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}
