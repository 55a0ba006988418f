package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gogazub/appflow/internal/backoff"
	"github.com/gogazub/appflow/internal/core"
	"github.com/gogazub/appflow/internal/lifecycle"
	"github.com/gogazub/appflow/internal/pin"
	"github.com/gogazub/appflow/internal/polling"
)

type Handlers struct {
	Pool           *core.WorkerPool
	Details        *core.DetailStore
	Loads          *core.LoadTracker
	Backoff        *backoff.Tracker
	Runner         *polling.Runner
	Watcher        *lifecycle.Watcher
	Routes         *lifecycle.Routes
	Identification *lifecycle.Identification
	Pin            *pin.Flow
	Logger         *slog.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return false
	}
	return true
}

func (h *Handlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// -------------------- services --------------------

func (h *Handlers) LoadServices(w http.ResponseWriter, r *http.Request) {
	var req LoadServicesRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids must not be empty")
		return
	}
	for _, id := range req.IDs {
		if strings.TrimSpace(id) == "" {
			writeError(w, http.StatusBadRequest, "empty id")
			return
		}
	}
	batch := h.Pool.SubmitMany(req.IDs)
	writeJSON(w, http.StatusAccepted, LoadServicesResponse{BatchID: batch, Queued: len(req.IDs)})
}

func (h *Handlers) GetService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, ok := h.Details.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown service")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handlers) LoadStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ServiceStatsResponse{
		Stats:        h.Loads.Snapshot(),
		Queued:       h.Pool.QueueLen(),
		InFlight:     h.Pool.InFlight(),
		RetryWaiting: h.Pool.RetryWaiting(),
	})
}

// -------------------- lifecycle --------------------

func (h *Handlers) SetLifecycle(w http.ResponseWriter, r *http.Request) {
	var req LifecycleRequest
	if !decode(w, r, &req) {
		return
	}
	st, err := lifecycle.ParseAppState(req.State)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.Watcher.Handle(st)
	writeJSON(w, http.StatusOK, LifecycleResponse{State: string(h.Watcher.State())})
}

func (h *Handlers) Navigate(w http.ResponseWriter, r *http.Request) {
	var req NavigationRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Route == "" {
		writeError(w, http.StatusBadRequest, "route must not be empty")
		return
	}
	h.Routes.Set(req.Route)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) GetIdentification(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Identification.Status())
}

func (h *Handlers) CompleteIdentification(w http.ResponseWriter, _ *http.Request) {
	if !h.Identification.Complete() {
		writeError(w, http.StatusConflict, "identification not requested")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// -------------------- activations --------------------

func (h *Handlers) StartActivation(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "workflow")
	snap, err := h.Runner.Start(name)
	if err != nil {
		var be *polling.BackoffError
		switch {
		case errors.Is(err, polling.ErrUnknownWorkflow):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.As(err, &be):
			w.Header().Set("Retry-After", retryAfter(be.Wait.Seconds()))
			writeError(w, http.StatusTooManyRequests, err.Error())
		default:
			h.Logger.Error("start activation", slog.String("workflow", name), slog.Any("err", err))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

func (h *Handlers) GetActivation(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "workflow")
	if !h.Runner.Known(name) {
		writeError(w, http.StatusNotFound, "unknown workflow")
		return
	}
	snap, ok := h.Runner.Snapshot(name)
	if !ok {
		writeError(w, http.StatusNotFound, "workflow not started")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handlers) GetBackoff(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	resp := BackoffResponse{Kind: kind}
	if rec, ok := h.Backoff.Record(r.Context(), kind); ok {
		resp.Record = &rec
		resp.WaitMS = h.Backoff.Remaining(r.Context(), kind).Milliseconds()
	}
	writeJSON(w, http.StatusOK, resp)
}

func retryAfter(seconds float64) string {
	return strconv.Itoa(int(math.Ceil(seconds)))
}

// -------------------- pin --------------------

func (h *Handlers) StartPin(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Pin.Start())
}

func (h *Handlers) SubmitPin(w http.ResponseWriter, r *http.Request) {
	var req PinRequest
	if !decode(w, r, &req) {
		return
	}
	st, err := h.Pin.Submit(r.Context(), req.Pin)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, st)
	case errors.Is(err, pin.ErrFlowNotStarted):
		writeJSON(w, http.StatusConflict, st)
	case errors.Is(err, pin.ErrInvalidPin):
		writeJSON(w, http.StatusUnprocessableEntity, st)
	default:
		writeJSON(w, http.StatusServiceUnavailable, st)
	}
}

func (h *Handlers) VerifyPin(w http.ResponseWriter, r *http.Request) {
	var req PinRequest
	if !decode(w, r, &req) {
		return
	}
	err := h.Pin.Verify(r.Context(), req.Pin)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, pin.ErrInvalidPin):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, pin.ErrNoPin):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, pin.ErrWrongPin):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		h.Logger.Error("verify pin", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
