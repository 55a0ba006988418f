package backoff

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gogazub/appflow/internal/clock"
)

// Record: состояние бэкоффа для одного вида операции (не для отдельного запроса).
type Record struct {
	Kind        string    `json:"kind"`
	LastFailure time.Time `json:"last_failure"`
	Attempts    int       `json:"attempts"`
}

// Store хранит записи по виду операции.
type Store interface {
	Get(ctx context.Context, kind string) (Record, bool, error)
	Put(ctx context.Context, rec Record) error
	Delete(ctx context.Context, kind string) error
}

type Options struct {
	Base        float64
	Unit        time.Duration
	MaxAttempts int
}

// DefaultOptions: 2^attempts секунд, не больше 4 попыток.
func DefaultOptions() Options {
	return Options{Base: 2, Unit: time.Second, MaxAttempts: 4}
}

// Wait вычисляет base^attempts * unit.
func Wait(attempts int, base float64, unit time.Duration) time.Duration {
	if attempts < 1 {
		return 0
	}
	return time.Duration(math.Pow(base, float64(attempts)) * float64(unit))
}

// Tracker считает подряд идущие неудачи по виду операции и отвечает,
// сколько ждать до следующей попытки.
type Tracker struct {
	mu     sync.Mutex // read-modify-write записи должен быть атомарным
	store  Store
	opts   Options
	clock  clock.Clock
	logger *slog.Logger
}

func NewTracker(store Store, opts Options, clk clock.Clock, logger *slog.Logger) *Tracker {
	def := DefaultOptions()
	if opts.Base < 1 {
		opts.Base = def.Base
	}
	if opts.Unit <= 0 {
		opts.Unit = def.Unit
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if store == nil {
		store = NewMemStore()
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: store, opts: opts, clock: clk, logger: logger}
}

// RecordFailure увеличивает счётчик (с насыщением на MaxAttempts) и ставит
// отметку времени последней неудачи.
func (t *Tracker) RecordFailure(ctx context.Context, kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, _, err := t.store.Get(ctx, kind)
	if err != nil {
		t.logger.Warn("backoff: read record", slog.String("kind", kind), slog.Any("err", err))
	}
	rec.Kind = kind
	rec.LastFailure = t.clock.Now()
	rec.Attempts = min(rec.Attempts+1, t.opts.MaxAttempts)

	if err := t.store.Put(ctx, rec); err != nil {
		t.logger.Warn("backoff: write record", slog.String("kind", kind), slog.Any("err", err))
	}
}

// RecordSuccess удаляет запись целиком.
func (t *Tracker) RecordSuccess(ctx context.Context, kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.store.Delete(ctx, kind); err != nil {
		t.logger.Warn("backoff: delete record", slog.String("kind", kind), slog.Any("err", err))
	}
}

// WaitTime возвращает полное время ожидания, пока оно не истекло с момента
// последней неудачи, иначе 0. Протухшая запись удаляется.
func (t *Tracker) WaitTime(ctx context.Context, kind string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok, err := t.store.Get(ctx, kind)
	if err != nil {
		t.logger.Warn("backoff: read record", slog.String("kind", kind), slog.Any("err", err))
		return 0
	}
	if !ok {
		return 0
	}
	wait := Wait(rec.Attempts, t.opts.Base, t.opts.Unit)
	if t.clock.Now().Sub(rec.LastFailure) < wait {
		return wait
	}
	// запись выбрасывается только после максимально возможного ожидания
	if t.clock.Now().Sub(rec.LastFailure) >= t.MaxWait() {
		if err := t.store.Delete(ctx, kind); err != nil {
			t.logger.Warn("backoff: prune record", slog.String("kind", kind), slog.Any("err", err))
		}
	}
	return 0
}

// Remaining: сколько ещё осталось ждать (для Retry-After).
func (t *Tracker) Remaining(ctx context.Context, kind string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok, err := t.store.Get(ctx, kind)
	if err != nil || !ok {
		return 0
	}
	left := Wait(rec.Attempts, t.opts.Base, t.opts.Unit) - t.clock.Now().Sub(rec.LastFailure)
	if left < 0 {
		return 0
	}
	return left
}

// Record возвращает текущую запись для вида операции.
func (t *Tracker) Record(ctx context.Context, kind string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok, err := t.store.Get(ctx, kind)
	if err != nil {
		return Record{}, false
	}
	return rec, ok
}

// MaxWait: ожидание при насыщенном счётчике.
func (t *Tracker) MaxWait() time.Duration {
	return Wait(t.opts.MaxAttempts, t.opts.Base, t.opts.Unit)
}
