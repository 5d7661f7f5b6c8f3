// Package server exposes the fraud ensemble as a synchronous HTTP scoring
// endpoint.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hed1ad/aegis/pkg/logger"
	"github.com/hed1ad/aegis/pkg/metrics"
	"github.com/hed1ad/aegis/pkg/model"
	"github.com/hed1ad/aegis/pkg/txn"
)

// PredictPath is the scoring route.
const PredictPath = "/predict"

const maxBodyBytes = 1 << 20

// PredictRequest is the JSON body of a scoring request. Pointer fields
// distinguish missing keys from zero values.
type PredictRequest struct {
	TxnID     *string  `json:"txn_id"`
	Timestamp *string  `json:"timestamp"`
	Amount    *float64 `json:"amount"`
	Country   *string  `json:"country"`
	Merchant  *string  `json:"merchant"`
	CardNum   *string  `json:"card_num"`
}

// Transaction converts the request, reporting the first missing field.
func (p PredictRequest) Transaction() (txn.Transaction, error) {
	missing := func(name string) error {
		return fmt.Errorf("%w: %s is required", txn.ErrInvalid, name)
	}
	switch {
	case p.TxnID == nil:
		return txn.Transaction{}, missing("txn_id")
	case p.Timestamp == nil:
		return txn.Transaction{}, missing("timestamp")
	case p.Amount == nil:
		return txn.Transaction{}, missing("amount")
	case p.Country == nil:
		return txn.Transaction{}, missing("country")
	case p.Merchant == nil:
		return txn.Transaction{}, missing("merchant")
	}
	t := txn.Transaction{
		ID:        *p.TxnID,
		Timestamp: *p.Timestamp,
		Amount:    *p.Amount,
		Country:   *p.Country,
		Merchant:  *p.Merchant,
	}
	if p.CardNum != nil {
		t.CardNum = *p.CardNum
	}
	return t, nil
}

// PredictResponse is the body of a successful scoring call.
type PredictResponse struct {
	TxnID   string  `json:"txn_id"`
	IFScore float64 `json:"if_score"`
	AEMSE   float64 `json:"ae_mse"`
	Label   int     `json:"label"`
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	ens *model.Ensemble
	mux *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(ens *model.Ensemble, log zerolog.Logger) http.Handler {
	h := &Handler{ens: ens, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST "+PredictPath, h.predict)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return withLogging(log, withRecovery(h.mux))
}

// POST /predict: score one transaction.
func (h *Handler) predict(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	start := time.Now()

	var req PredictRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		metrics.PredictionErrors.WithLabelValues("decode").Inc()
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	t, err := req.Transaction()
	if err != nil {
		metrics.PredictionErrors.WithLabelValues("validation").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	scores, err := h.ens.ScoreTransaction(t)
	if err != nil {
		if errors.Is(err, txn.ErrInvalid) {
			metrics.PredictionErrors.WithLabelValues("validation").Inc()
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		metrics.PredictionErrors.WithLabelValues("internal").Inc()
		log.Error().Err(err).Str("txn_id", t.ID).Msg("scoring failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.PredictionDuration.Observe(time.Since(start).Seconds())
	metrics.Predictions.WithLabelValues(strconv.Itoa(scores.Label)).Inc()

	log.Debug().
		Str("txn_id", t.ID).
		Float64("if_score", scores.IFScore).
		Float64("ae_mse", scores.AEMSE).
		Int("label", scores.Label).
		Msg("scored")

	writeJSON(w, http.StatusOK, PredictResponse{
		TxnID:   t.ID,
		IFScore: scores.IFScore,
		AEMSE:   scores.AEMSE,
		Label:   scores.Label,
	})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: model bundle identity and current operating point.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	b := h.ens.Bundle()
	th := h.ens.Thresholds()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ready",
		"version":  b.Version,
		"features": b.Features.Names,
		"thresholds": map[string]float64{
			"isolation_forest": th.IsolationForest,
			"autoencoder":      th.Autoencoder,
		},
	})
}
