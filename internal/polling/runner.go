package polling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gogazub/appflow/internal/backoff"
	"github.com/gogazub/appflow/internal/clock"
	"github.com/gogazub/appflow/internal/telemetry"
)

const EventWorkflowResult = "POLLING_WORKFLOW_RESULT"

var ErrUnknownWorkflow = errors.New("unknown workflow")

// BackoffError: процесс недавно падал, повторять пока рано.
type BackoffError struct {
	Workflow string
	Wait     time.Duration
}

func (e *BackoffError) Error() string {
	return fmt.Sprintf("workflow %s: retry in %s", e.Workflow, e.Wait)
}

// Snapshot: текущее состояние последнего запуска процесса.
type Snapshot struct {
	RunID      string    `json:"run_id"`
	Workflow   string    `json:"workflow"`
	State      State     `json:"state"`
	Outcome    Outcome   `json:"outcome,omitempty"`
	Status     string    `json:"status,omitempty"`
	Error      string    `json:"error,omitempty"`
	Ticks      int       `json:"ticks"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type registered struct {
	wf  Workflow
	cfg Config
}

type run struct {
	cancel context.CancelFunc
	snap   Snapshot
}

// Runner запускает процессы по имени. Новый запуск процесса отменяет
// предыдущий запуск того же процесса.
type Runner struct {
	mu        sync.Mutex
	workflows map[string]registered
	runs      map[string]*run

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	backoff *backoff.Tracker
	sink    telemetry.Sink
	logger  *slog.Logger
	clock   clock.Clock
}

func NewRunner(bo *backoff.Tracker, sink telemetry.Sink, clk clock.Clock, logger *slog.Logger) *Runner {
	if sink == nil {
		sink = telemetry.NewNop()
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		workflows: make(map[string]registered),
		runs:      make(map[string]*run),
		ctx:       ctx,
		cancel:    cancel,
		backoff:   bo,
		sink:      sink,
		logger:    logger,
		clock:     clk,
	}
}

func (r *Runner) Register(wf Workflow, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[wf.Name()] = registered{wf: wf, cfg: cfg}
}

// Start запускает процесс в фоне и сразу возвращает его снимок.
func (r *Runner) Start(name string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.workflows[name]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownWorkflow, name)
	}
	if r.backoff != nil {
		if wait := r.backoff.Remaining(r.ctx, name); wait > 0 {
			return Snapshot{}, &BackoffError{Workflow: name, Wait: wait}
		}
	}
	if prev, ok := r.runs[name]; ok {
		prev.cancel()
	}

	ctx, cancel := context.WithCancel(r.ctx)
	cur := &run{
		cancel: cancel,
		snap: Snapshot{
			RunID:     uuid.NewString(),
			Workflow:  name,
			State:     StateRequesting,
			Status:    StatusPolling,
			StartedAt: r.clock.Now(),
		},
	}
	r.runs[name] = cur

	m := NewMachine(reg.cfg, r.clock, func(tr Transition) {
		r.observe(name, cur, tr)
	})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		res := m.Run(ctx, reg.wf)
		r.finish(name, cur, res)
	}()
	return cur.snap, nil
}

func (r *Runner) observe(name string, cur *run, tr Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runs[name] != cur {
		return
	}
	cur.snap.State = tr.To
	cur.snap.Ticks = tr.Ticks
}

func (r *Runner) finish(name string, cur *run, res Result) {
	// остановка раннера: процесс прерван снаружи, это не сбой
	shutdown := r.ctx.Err() != nil && errors.Is(res.Err, context.Canceled)

	r.mu.Lock()
	latest := r.runs[name] == cur
	if latest && !shutdown {
		cur.snap.State = res.State
		cur.snap.Outcome = res.Outcome
		cur.snap.Status = res.Status()
		cur.snap.Ticks = res.Ticks
		cur.snap.FinishedAt = r.clock.Now()
		if res.Err != nil {
			cur.snap.Error = res.Err.Error()
		}
	}
	snap := cur.snap
	r.mu.Unlock()

	if shutdown {
		r.logger.Debug("workflow stopped", slog.String("workflow", name), slog.String("run_id", snap.RunID))
		return
	}
	// отменённый новым запуском процесс ни на что не влияет
	if !latest {
		return
	}

	if r.backoff != nil {
		switch res.State {
		case StateCompleted:
			r.backoff.RecordSuccess(context.Background(), name)
		case StateError:
			r.backoff.RecordFailure(context.Background(), name)
		}
	}

	r.logger.Info("workflow finished",
		slog.String("workflow", name), slog.String("run_id", snap.RunID),
		slog.String("state", string(res.State)), slog.String("outcome", string(res.Outcome)),
		slog.Int("ticks", res.Ticks), slog.Duration("elapsed", res.Elapsed))

	props := telemetry.Props{
		"workflow":   name,
		"run_id":     snap.RunID,
		"state":      string(res.State),
		"status":     snap.Status,
		"ticks":      res.Ticks,
		"elapsed_ms": res.Elapsed.Milliseconds(),
	}
	if res.Err != nil {
		props["reason"] = res.Err.Error()
	}
	r.sink.Track(context.Background(), EventWorkflowResult, props)
}

func (r *Runner) Snapshot(name string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.runs[name]
	if !ok {
		return Snapshot{}, false
	}
	return cur.snap, true
}

func (r *Runner) Known(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.workflows[name]
	return ok
}

// Wait ждёт завершения всех запущенных процессов.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close отменяет все процессы и ждёт их.
func (r *Runner) Close() {
	r.cancel()
	r.wg.Wait()
}
