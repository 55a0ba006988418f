package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/gogazub/appflow/internal/backend"
	"github.com/gogazub/appflow/internal/backoff"
	"github.com/gogazub/appflow/internal/clock"
	"github.com/gogazub/appflow/internal/telemetry"
)

// BackoffKind: вид операции в трекере бэкоффа для загрузки деталей.
const BackoffKind = "service_detail"

const (
	EventLoadSuccess = "SERVICE_DETAIL_LOAD_SUCCESS"
	EventLoadFailure = "SERVICE_DETAIL_LOAD_FAILURE"
)

// Fetcher загружает детали одного сервиса.
type Fetcher func(ctx context.Context, id string) (backend.ServiceDetail, error)

// Result: финальный исход обработки одного элемента.
type Result struct {
	ID       string
	BatchID  string
	Attempts int
	Err      error
}

type PoolOptions struct {
	Workers int
	// MaxRetries: сколько раз повторить неудачную загрузку; 0 означает без повторов.
	MaxRetries int
	Sink       telemetry.Sink
	Logger     *slog.Logger
	Clock      clock.Clock
	// OnComplete вызывается ровно один раз на каждый отправленный элемент.
	OnComplete func(Result)
}

type WorkerPool struct {
	queue   *Queue
	store   *DetailStore
	retry   *RetryManager
	tracker *LoadTracker
	backoff *backoff.Tracker
	fetch   Fetcher

	workers    int
	maxRetries int
	sink       telemetry.Sink
	logger     *slog.Logger
	clock      clock.Clock
	onComplete func(Result)

	wg       sync.WaitGroup
	started  atomic.Bool
	inFlight atomic.Int64
}

func NewWorkerPool(queue *Queue, store *DetailStore, retry *RetryManager, tracker *LoadTracker,
	bo *backoff.Tracker, fetch Fetcher, opts PoolOptions,
) *WorkerPool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Sink == nil {
		opts.Sink = telemetry.NewNop()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if fetch == nil {
		fetch = func(context.Context, string) (backend.ServiceDetail, error) {
			return backend.ServiceDetail{}, errors.New("no fetcher configured")
		}
	}
	return &WorkerPool{
		queue:      queue,
		store:      store,
		retry:      retry,
		tracker:    tracker,
		backoff:    bo,
		fetch:      fetch,
		workers:    opts.Workers,
		maxRetries: opts.MaxRetries,
		sink:       opts.Sink,
		logger:     opts.Logger,
		clock:      opts.Clock,
		onComplete: opts.OnComplete,
	}
}

// Start поднимает воркеров. Повторный вызов ничего не делает.
func (wp *WorkerPool) Start(ctx context.Context) {
	if !wp.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go func(n int) {
			defer wp.wg.Done()
			log := wp.logger.With(slog.Int("worker", n))
			for {
				it, err := wp.queue.Pop(ctx)
				if err != nil {
					return
				}
				wp.process(ctx, log, it)

				select {
				case <-ctx.Done():
					return
				default:
				}
			}
		}(i)
	}
}

func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// SubmitMany ставит сервисы в очередь и начинает новое измерение загрузки.
func (wp *WorkerPool) SubmitMany(ids []string) string {
	batchID := uuid.NewString()
	wp.tracker.Begin(batchID, ids)

	items := make([]Item, 0, len(ids))
	for _, id := range ids {
		wp.store.MarkQueued(id)
		items = append(items, Item{ID: id, BatchID: batchID})
	}
	wp.queue.PushMany(items)
	return batchID
}

func (wp *WorkerPool) InFlight() int { return int(wp.inFlight.Load()) }

func (wp *WorkerPool) QueueLen() int { return wp.queue.Len() }

// RetryWaiting: сколько элементов ждут повтора.
func (wp *WorkerPool) RetryWaiting() int { return wp.retry.Waiting() }

func (wp *WorkerPool) process(ctx context.Context, log *slog.Logger, it Item) {
	wp.inFlight.Add(1)
	defer wp.inFlight.Add(-1)

	wp.store.SetStatus(it.ID, StatusRunning)
	attempts := it.Attempt + 1

	detail, err := wp.handle(ctx, it)
	if err != nil && ctx.Err() != nil {
		// остановка пула посреди элемента: он не обработан, сигнала нет
		wp.store.SetStatus(it.ID, StatusQueued)
		return
	}

	if err == nil {
		wp.backoff.RecordSuccess(ctx, BackoffKind)
		wp.store.SetDetail(it.ID, detail, attempts)
		wp.finish(ctx, it, attempts, nil)
		return
	}

	wp.backoff.RecordFailure(ctx, BackoffKind)
	if it.Attempt < wp.maxRetries {
		it.Attempt++
		it.NextRunAt = wp.clock.Now().Add(wp.backoff.WaitTime(ctx, BackoffKind))
		wp.store.SetStatus(it.ID, StatusQueued)
		log.Debug("service detail retry scheduled",
			slog.String("service_id", it.ID), slog.Int("attempt", it.Attempt), slog.Time("run_at", it.NextRunAt))
		wp.retry.Schedule(ctx, it, it.NextRunAt)
		return
	}

	log.Warn("service detail load failed", slog.String("service_id", it.ID), slog.Any("err", err))
	wp.store.SetFailed(it.ID, err, attempts)
	wp.finish(ctx, it, attempts, err)
}

// handle выдерживает остаток текущего бэкоффа и зовёт fetcher. Паника в fetcher'е
// превращается в ошибку: воркер не должен падать из-за одного элемента.
func (wp *WorkerPool) handle(ctx context.Context, it Item) (d backend.ServiceDetail, err error) {
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Error("service detail fetch panicked",
				slog.String("service_id", it.ID), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("fetch %s panicked: %v", it.ID, r)
		}
	}()

	if wait := wp.backoff.Remaining(ctx, BackoffKind); wait > 0 {
		if err := wp.clock.Sleep(ctx, wait); err != nil {
			return backend.ServiceDetail{}, err
		}
	}
	return wp.fetch(ctx, it.ID)
}

func (wp *WorkerPool) finish(ctx context.Context, it Item, attempts int, err error) {
	wp.tracker.Complete(it.BatchID, it.ID, err == nil)

	props := telemetry.Props{"service_id": it.ID, "batch_id": it.BatchID, "attempts": attempts}
	if err != nil {
		props["reason"] = err.Error()
		wp.sink.Track(ctx, EventLoadFailure, props)
	} else {
		wp.sink.Track(ctx, EventLoadSuccess, props)
	}

	if wp.onComplete != nil {
		wp.onComplete(Result{ID: it.ID, BatchID: it.BatchID, Attempts: attempts, Err: err})
	}
}
