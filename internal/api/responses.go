package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// envelope is the response shape shared by all API endpoints. Successes
// carry message plus payload fields; failures carry error and message.
type envelope map[string]any

func success(message string) envelope {
	return envelope{"success": true, "message": message}
}

func (e envelope) with(key string, value any) envelope {
	e[key] = value
	return e
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{
		"success": false,
		"error":   http.StatusText(status),
		"message": msg,
	})
}

// stamp adds the execution time and scrape timestamp fields the envelope
// carries on data endpoints.
func (e envelope) stamp(start, now time.Time) envelope {
	e["execution_time"] = now.Sub(start).Seconds()
	e["scraped_at"] = now.Format(time.RFC3339)
	return e
}
