package pin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/gogazub/appflow/internal/telemetry"
)

const Length = 6

var (
	ErrInvalidPin     = errors.New("pin must be exactly 6 digits")
	ErrFlowNotStarted = errors.New("pin flow not started")
	ErrNoPin          = errors.New("no pin stored")
	ErrWrongPin       = errors.New("wrong pin")
)

const (
	EventPinCreated = "PIN_CREATED"
	EventPinFailure = "PIN_CREATION_FAILURE"
)

type State string

const (
	StateIdle        State = "idle"
	StateAwaitingPin State = "awaiting_pin"
	StateCreated     State = "created"
)

func Validate(p string) error {
	if len(p) != Length {
		return ErrInvalidPin
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return ErrInvalidPin
		}
	}
	return nil
}

// Keychain хранит PIN только в виде хэша.
type Keychain interface {
	Set(ctx context.Context, pin string) error
	Verify(ctx context.Context, pin string) error
}

type BcryptKeychain struct {
	mu   sync.RWMutex
	hash []byte
	cost int
}

func NewBcryptKeychain(cost int) *BcryptKeychain {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptKeychain{cost: cost}
}

func (k *BcryptKeychain) Set(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h, err := bcrypt.GenerateFromPassword([]byte(p), k.cost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	k.mu.Lock()
	k.hash = h
	k.mu.Unlock()
	return nil
}

func (k *BcryptKeychain) Verify(_ context.Context, p string) error {
	k.mu.RLock()
	h := k.hash
	k.mu.RUnlock()
	if h == nil {
		return ErrNoPin
	}
	if err := bcrypt.CompareHashAndPassword(h, []byte(p)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrWrongPin
		}
		return err
	}
	return nil
}

type Status struct {
	State     State  `json:"state"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}

// Flow ведёт создание PIN по шагам idle → awaiting_pin → created. Неудачная попытка
// оставляет поток в awaiting_pin, пользователь пробует снова.
type Flow struct {
	mu     sync.Mutex
	status Status

	keychain Keychain
	sink     telemetry.Sink
	logger   *slog.Logger
}

func NewFlow(kc Keychain, sink telemetry.Sink, logger *slog.Logger) *Flow {
	if sink == nil {
		sink = telemetry.NewNop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{status: Status{State: StateIdle}, keychain: kc, sink: sink, logger: logger}
}

// Start открывает ввод PIN. Повторный Start после created начинает смену PIN.
func (f *Flow) Start() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = Status{State: StateAwaitingPin}
	return f.status
}

func (f *Flow) Submit(ctx context.Context, p string) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status.State != StateAwaitingPin {
		return f.status, ErrFlowNotStarted
	}
	f.status.Attempts++

	err := Validate(p)
	if err == nil {
		err = f.keychain.Set(ctx, p)
	}
	if err != nil {
		f.status.LastError = err.Error()
		f.logger.Warn("pin creation failed", slog.Int("attempt", f.status.Attempts), slog.Any("err", err))
		f.sink.Track(ctx, EventPinFailure, telemetry.Props{"attempt": f.status.Attempts, "reason": err.Error()})
		return f.status, err
	}

	f.status.State = StateCreated
	f.status.LastError = ""
	f.sink.Track(ctx, EventPinCreated, telemetry.Props{"attempts": f.status.Attempts})
	return f.status, nil
}

func (f *Flow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Verify проверяет PIN при входе.
func (f *Flow) Verify(ctx context.Context, p string) error {
	if err := Validate(p); err != nil {
		return err
	}
	return f.keychain.Verify(ctx, p)
}
