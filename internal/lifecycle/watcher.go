package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogazub/appflow/internal/clock"
)

type AppState string

const (
	Active     AppState = "active"
	Inactive   AppState = "inactive"
	Background AppState = "background"
)

func ParseAppState(s string) (AppState, error) {
	switch st := AppState(s); st {
	case Active, Inactive, Background:
		return st, nil
	default:
		return "", fmt.Errorf("unknown app state %q", s)
	}
}

// Причины запроса повторной идентификации.
const (
	ReasonBackgroundRoute   = "background_route"
	ReasonBackgroundTimeout = "background_timeout"
	ReasonResumeRoute       = "resume_route"
)

type Options struct {
	BackgroundTimeout time.Duration
	ReidentifyRoutes  []string
	Clock             clock.Clock
	Logger            *slog.Logger
}

// Watcher следит за состояниями приложения и решает, когда требовать
// повторную идентификацию. Сигнал поднимается не больше одного раза
// за цикл "ушли из active → вернулись".
type Watcher struct {
	mu        sync.Mutex
	prev, cur AppState
	timer     clock.Timer
	gen       uint64
	signalled bool
	listeners []func(prev, next AppState)

	routes     *Routes
	reidentify map[string]struct{}
	timeout    time.Duration
	signal     func(reason string)
	clock      clock.Clock
	logger     *slog.Logger
}

func NewWatcher(routes *Routes, signal func(reason string), opts Options) *Watcher {
	if opts.BackgroundTimeout <= 0 {
		opts.BackgroundTimeout = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if routes == nil {
		routes = NewRoutes("")
	}
	if signal == nil {
		signal = func(string) {}
	}
	set := make(map[string]struct{}, len(opts.ReidentifyRoutes))
	for _, r := range opts.ReidentifyRoutes {
		set[r] = struct{}{}
	}
	return &Watcher{
		prev:       Active,
		cur:        Active,
		routes:     routes,
		reidentify: set,
		timeout:    opts.BackgroundTimeout,
		signal:     signal,
		clock:      opts.Clock,
		logger:     opts.Logger,
	}
}

// OnChange подписывает fn на каждый переход состояния.
func (w *Watcher) OnChange(fn func(prev, next AppState)) {
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

func (w *Watcher) State() AppState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cur
}

// TimerPending: взведён ли таймер фона.
func (w *Watcher) TimerPending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timer != nil
}

func (w *Watcher) Handle(next AppState) {
	w.mu.Lock()
	prev := w.cur
	if next == prev {
		w.mu.Unlock()
		return
	}
	w.prev, w.cur = prev, next
	if prev == Active {
		w.signalled = false
	}

	route := w.routes.Current()
	_, secured := w.reidentify[route]

	reason := ""
	switch next {
	case Background:
		if secured {
			w.stopTimerLocked()
			reason = ReasonBackgroundRoute
		} else {
			w.startTimerLocked()
		}
	case Active:
		w.stopTimerLocked()
		if prev == Inactive && secured && !w.signalled {
			reason = ReasonResumeRoute
		}
	}
	if reason != "" {
		w.signalled = true
	}
	listeners := append([]func(AppState, AppState){}, w.listeners...)
	w.mu.Unlock()

	w.logger.Debug("app state changed",
		slog.String("from", string(prev)), slog.String("to", string(next)), slog.String("route", route))
	if reason != "" {
		w.raise(reason, route)
	}
	for _, fn := range listeners {
		fn(prev, next)
	}
}

// Run применяет события из канала, пока он не закрыт или не отменён ctx.
func (w *Watcher) Run(ctx context.Context, events <-chan AppState) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st, ok := <-events:
			if !ok {
				return nil
			}
			w.Handle(st)
		}
	}
}

// Close гасит таймер фона.
func (w *Watcher) Close() {
	w.mu.Lock()
	w.stopTimerLocked()
	w.mu.Unlock()
}

func (w *Watcher) startTimerLocked() {
	w.stopTimerLocked()
	gen := w.gen
	w.timer = w.clock.AfterFunc(w.timeout, func() { w.fire(gen) })
}

func (w *Watcher) stopTimerLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.gen++
}

func (w *Watcher) fire(gen uint64) {
	w.mu.Lock()
	// таймер мог быть отменён уже после срабатывания
	if gen != w.gen || w.cur == Active {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	w.signalled = true
	route := w.routes.Current()
	w.mu.Unlock()

	w.raise(ReasonBackgroundTimeout, route)
}

func (w *Watcher) raise(reason, route string) {
	w.logger.Info("identification required", slog.String("reason", reason), slog.String("route", route))
	w.signal(reason)
}

// ForegroundListener вызывает fn только при пересечении границы active:
// false при уходе из active, true при возвращении.
func ForegroundListener(fn func(foreground bool)) func(prev, next AppState) {
	return func(prev, next AppState) {
		switch {
		case prev == Active && next != Active:
			fn(false)
		case prev != Active && next == Active:
			fn(true)
		}
	}
}
