package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/middleware"
)

// maskedFields are field and header names that must never reach the
// log. Daraja credentials and bearer tokens in particular.
var maskedFields = []string{
	"password",
	"passkey",
	"token",
	"access_token",
	"authorization",
	"secret",
	"api_key",
	"consumer_key",
	"consumer_secret",
	"credential",
}

// LoggingMiddleware emits one structured line per request with the
// filtered request and response bodies attached.
func LoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := chimiddleware.GetReqID(r.Context())

			var requestBody []byte
			if r.Body != nil {
				requestBody, _ = io.ReadAll(r.Body)
				r.Body = io.NopCloser(bytes.NewReader(requestBody))
			}

			ww := &statusRecorder{ResponseWriter: w, body: &bytes.Buffer{}}
			next.ServeHTTP(ww, r)

			status := ww.status
			if status == 0 {
				status = http.StatusOK
			}

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "http request",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"query", r.URL.RawQuery,
				"remote_addr", r.RemoteAddr,
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"response_size", ww.body.Len(),
				"request_body", maskBody(requestBody),
				"response_body", maskBody(ww.body.Bytes()),
			)
		})
	}
}

// statusRecorder captures the status code and body written downstream.
type statusRecorder struct {
	http.ResponseWriter
	status int
	body   *bytes.Buffer
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	rec.body.Write(b)
	return rec.ResponseWriter.Write(b)
}

func isMasked(name string) bool {
	lower := strings.ToLower(name)
	for _, field := range maskedFields {
		if strings.Contains(lower, field) {
			return true
		}
	}
	return false
}

// maskBody renders a JSON body with credential-looking fields replaced
// by a placeholder. Non-JSON bodies are dropped entirely when they
// look sensitive.
func maskBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		if isMasked(string(body)) {
			return "[MASKED]"
		}
		return string(body)
	}

	masked, err := json.Marshal(maskValue(decoded))
	if err != nil {
		return "[MASKED]"
	}
	return string(masked)
}

func maskValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, inner := range v {
			if isMasked(key) {
				out[key] = "[MASKED]"
			} else {
				out[key] = maskValue(inner)
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, inner := range v {
			out[i] = maskValue(inner)
		}
		return out
	default:
		return v
	}
}
