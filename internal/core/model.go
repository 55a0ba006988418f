package core

import (
	"time"

	"github.com/gogazub/appflow/internal/backend"
)

type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Item: единица работы, загрузка деталей одного сервиса.
type Item struct {
	ID      string
	BatchID string
	Attempt int

	NextRunAt time.Time
}

// Entry: то, что известно о сервисе в DetailStore.
type Entry struct {
	ID        string                 `json:"id"`
	Status    Status                 `json:"status"`
	Attempts  int                    `json:"attempts"`
	LastError string                 `json:"last_error,omitempty"`
	Detail    *backend.ServiceDetail `json:"detail,omitempty"`
	UpdatedAt time.Time              `json:"updated_at"`
}
