package api

import (
	"github.com/gogazub/appflow/internal/backoff"
	"github.com/gogazub/appflow/internal/core"
)

type LoadServicesRequest struct {
	IDs []string `json:"ids"`
}

type LoadServicesResponse struct {
	BatchID string `json:"batch_id"`
	Queued  int    `json:"queued"`
}

type ServiceStatsResponse struct {
	Stats        core.LoadStats `json:"stats"`
	Queued       int            `json:"queued"`
	InFlight     int            `json:"in_flight"`
	RetryWaiting int            `json:"retry_waiting"`
}

type LifecycleRequest struct {
	State string `json:"state"`
}

type LifecycleResponse struct {
	State string `json:"state"`
}

type NavigationRequest struct {
	Route string `json:"route"`
}

type PinRequest struct {
	Pin string `json:"pin"`
}

type BackoffResponse struct {
	Kind   string          `json:"kind"`
	Record *backoff.Record `json:"record,omitempty"`
	WaitMS int64           `json:"wait_ms"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
