package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"chartWizard/internal/domain"
	"chartWizard/internal/ports"
)

type spreadQuoteRequest struct {
	Name      string          `json:"name"`
	Timestamp time.Time       `json:"timestamp"`
	BidPrice  decimal.Decimal `json:"bid_price"`
	AskPrice  decimal.Decimal `json:"ask_price"`
	BidVolume int64           `json:"bid_volume"`
	AskVolume int64           `json:"ask_volume"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPHandler exposes tracking control, spread ingestion and the chart feed.
func NewHTTPHandler(svc *ChartService, feed http.Handler) http.Handler {
	mux := http.NewServeMux()
	if feed != nil {
		mux.Handle("GET /ws", feed)
	}

	mux.HandleFunc("GET /symbols", func(w http.ResponseWriter, r *http.Request) {
		symbols, err := svc.TrackedSymbols(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]string{"symbols": symbols})
	})

	mux.HandleFunc("POST /symbols/{key}", func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")
		if err := svc.BeginTracking(r.Context(), key); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"symbol": key})
	})

	mux.HandleFunc("DELETE /symbols/{key}", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.StopTracking(r.Context(), r.PathValue("key")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /spreads", func(w http.ResponseWriter, r *http.Request) {
		var req spreadQuoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Timestamp.IsZero() {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid spread quote"})
			return
		}
		quote := domain.SpreadQuote{
			Name:      req.Name,
			Timestamp: req.Timestamp,
			BidPrice:  req.BidPrice,
			AskPrice:  req.AskPrice,
			BidVolume: req.BidVolume,
			AskVolume: req.AskVolume,
		}
		if err := svc.PublishSpread(r.Context(), quote); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	return mux
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ports.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, ports.ErrUnresolvedInstrument):
		status = http.StatusNotFound
	case errors.Is(err, ports.ErrAlreadyTracked):
		status = http.StatusConflict
	case errors.Is(err, ports.ErrRouterStopped):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
