package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/gogazub/appflow/internal/clock"
	"github.com/gogazub/appflow/internal/telemetry"
)

const EventIdentificationRequired = "IDENTIFICATION_REQUIRED"

// Routes хранит текущий экран навигации.
type Routes struct {
	mu      sync.RWMutex
	current string
}

func NewRoutes(initial string) *Routes {
	return &Routes{current: initial}
}

func (r *Routes) Set(route string) {
	r.mu.Lock()
	r.current = route
	r.mu.Unlock()
}

func (r *Routes) Current() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

type IdentificationStatus struct {
	Pending     bool      `json:"pending"`
	Requests    int       `json:"requests"`
	Reason      string    `json:"reason,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// Identification: флаг "нужно заново подтвердить личность". Клиент
// снимает его, когда пользователь прошёл идентификацию.
type Identification struct {
	mu     sync.Mutex
	status IdentificationStatus
	sink   telemetry.Sink
	clock  clock.Clock
}

func NewIdentification(sink telemetry.Sink, clk clock.Clock) *Identification {
	if sink == nil {
		sink = telemetry.NewNop()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Identification{sink: sink, clock: clk}
}

// Request поднимает флаг. Подходит как сигнал для Watcher.
func (i *Identification) Request(reason string) {
	i.mu.Lock()
	i.status.Pending = true
	i.status.Requests++
	i.status.Reason = reason
	i.status.RequestedAt = i.clock.Now()
	n := i.status.Requests
	i.mu.Unlock()

	i.sink.Track(context.Background(), EventIdentificationRequired, telemetry.Props{
		"reason":   reason,
		"requests": n,
	})
}

// Complete снимает флаг; false, если ничего не ждали.
func (i *Identification) Complete() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	was := i.status.Pending
	i.status.Pending = false
	return was
}

func (i *Identification) Status() IdentificationStatus {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}
