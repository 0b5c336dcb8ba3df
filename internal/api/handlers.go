package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/audio-retro/internal/pipeline"
	"github.com/ignite/audio-retro/internal/pkg/httputil"
	"github.com/ignite/audio-retro/internal/pkg/logger"
	"github.com/ignite/audio-retro/internal/runlog"
)

// Runner is satisfied by *pipeline.Runner.
type Runner interface {
	Run(ctx context.Context) (*pipeline.Result, error)
	Rate(ctx context.Context) (float64, bool)
}

// Handlers serves the run and rate endpoints.
type Handlers struct {
	runner         Runner
	ledger         runlog.Ledger
	sourceCurrency string
	targetCurrency string
}

// NewHandlers wires the handlers. A nil ledger lists no runs.
func NewHandlers(runner Runner, ledger runlog.Ledger, sourceCurrency, targetCurrency string) *Handlers {
	if ledger == nil {
		ledger = runlog.Nop{}
	}
	return &Handlers{runner: runner, ledger: ledger, sourceCurrency: sourceCurrency, targetCurrency: targetCurrency}
}

// TriggerRun executes one run synchronously.
//
//	POST /api/runs
func (h *Handlers) TriggerRun(w http.ResponseWriter, r *http.Request) {
	res, err := h.runner.Run(r.Context())
	if err != nil {
		writeRunError(w, err)
		return
	}
	httputil.OK(w, res)
}

func writeRunError(w http.ResponseWriter, err error) {
	stage := ""
	var se *pipeline.StageError
	if errors.As(err, &se) {
		stage = se.Stage
	}
	details := map[string]string{"stage": stage}
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		httputil.Fail(w, http.StatusConflict, httputil.CodeRunInProgress, err.Error(), nil)
	case pipeline.IsConfigError(err):
		httputil.Fail(w, http.StatusUnprocessableEntity, httputil.CodeConfiguration, err.Error(), details)
	default:
		logger.Error("api: run failed", "stage", stage, "error", err)
		httputil.Fail(w, http.StatusBadGateway, httputil.CodeUpstreamFailure, "run failed in stage "+stage, details)
	}
}

// ListRuns returns the most recent ledger entries.
//
//	GET /api/runs?limit=20
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.QueryLimit(r, 20, 500)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	runs, err := h.ledger.Recent(r.Context(), limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if runs == nil {
		runs = []runlog.Run{}
	}
	httputil.OK(w, map[string]interface{}{"runs": runs})
}

// GetRun returns one ledger entry.
//
//	GET /api/runs/{id}
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, runlog.ErrNotFound) {
		httputil.NotFound(w, "run not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, run)
}

// RateResponse is the body of GET /api/rate.
type RateResponse struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Rate     float64 `json:"rate"`
	Fallback bool    `json:"fallback"`
}

// GetRate looks up the current rate with a fresh converter.
//
//	GET /api/rate
func (h *Handlers) GetRate(w http.ResponseWriter, r *http.Request) {
	rate, fallback := h.runner.Rate(r.Context())
	httputil.OK(w, RateResponse{Source: h.sourceCurrency, Target: h.targetCurrency, Rate: rate, Fallback: fallback})
}
