package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// handleRoot answers the hosting platform's liveness probe.
// GET /
func handleRoot() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("buywatch is running."))
	})
}

// GET /health
func handleHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

type tokenResponse struct {
	Mint      string `json:"mint"`
	Watermark string `json:"watermark,omitempty"`
}

// handleListTokens returns the watch list with each token's last reported
// signature.
// GET /api/v1/tokens
func handleListTokens(tokens TokenLister, cursors WatermarkReader, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mints := tokens.List()
		var marks map[string]string
		if cursors != nil {
			marks = cursors.Snapshot()
		}

		resp := make([]tokenResponse, len(mints))
		for i, mint := range mints {
			resp[i] = tokenResponse{Mint: mint, Watermark: marks[mint]}
		}

		logger.Debug("tokens listed", "count", len(resp))
		writeJSON(w, map[string]interface{}{
			"tokens": resp,
			"count":  len(resp),
		}, http.StatusOK)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}
