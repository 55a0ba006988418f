package polling

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogazub/appflow/internal/backoff"
	"github.com/gogazub/appflow/internal/clock"
	"github.com/gogazub/appflow/internal/telemetry"
)

func newTestRunner(t *testing.T) (*Runner, *clock.Fake, *backoff.Tracker, *telemetry.Recorder) {
	t.Helper()
	clk := clock.NewFake(time.Unix(0, 0))
	bo := backoff.NewTracker(backoff.NewMemStore(), backoff.DefaultOptions(), clk, nil)
	rec := &telemetry.Recorder{}
	r := NewRunner(bo, rec, clk, nil)
	t.Cleanup(r.Close)
	return r, clk, bo, rec
}

func TestRunnerUnknownWorkflow(t *testing.T) {
	r, _, _, _ := newTestRunner(t)
	if _, err := r.Start("nope"); !errors.Is(err, ErrUnknownWorkflow) {
		t.Fatalf("err=%v want ErrUnknownWorkflow", err)
	}
	if r.Known("nope") {
		t.Fatal("unknown workflow reported as known")
	}
}

func TestRunnerCompletesAndReportsSnapshot(t *testing.T) {
	r, _, _, rec := newTestRunner(t)
	r.Register(funcWorkflow{
		name:    "quick",
		request: func(context.Context) (Step, error) { return Continue(), nil },
		poll:    func(context.Context) (Step, error) { return Finish(OutcomeEligible), nil },
	}, DefaultConfig())

	snap, err := r.Start("quick")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if snap.RunID == "" || snap.Status != StatusPolling {
		t.Fatalf("initial snapshot=%+v", snap)
	}
	r.Wait()

	got, ok := r.Snapshot("quick")
	if !ok {
		t.Fatal("no snapshot")
	}
	if got.State != StateCompleted || got.Status != string(OutcomeEligible) || got.Ticks != 1 {
		t.Fatalf("snapshot=%+v", got)
	}
	evs := rec.Named(EventWorkflowResult)
	if len(evs) != 1 || evs[0].Props["status"] != "ELIGIBLE" {
		t.Fatalf("events=%v", evs)
	}
}

func TestRunnerNewStartCancelsPrevious(t *testing.T) {
	r, _, bo, rec := newTestRunner(t)
	var calls atomic.Int32
	entered := make(chan struct{})
	r.Register(funcWorkflow{
		name: "slow",
		request: func(ctx context.Context) (Step, error) {
			if calls.Add(1) == 1 {
				close(entered)
				<-ctx.Done()
				return Step{}, ctx.Err()
			}
			return Finish(OutcomeCompleted), nil
		},
	}, DefaultConfig())

	first, err := r.Start("slow")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	<-entered
	second, err := r.Start("slow")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	r.Wait()

	if first.RunID == second.RunID {
		t.Fatal("run ids must differ")
	}
	got, _ := r.Snapshot("slow")
	if got.RunID != second.RunID || got.State != StateCompleted {
		t.Fatalf("snapshot=%+v want latest run completed", got)
	}
	// отменённый запуск не считается неудачей
	if _, ok := bo.Record(context.Background(), "slow"); ok {
		t.Fatal("cancelled run recorded a backoff failure")
	}
	if n := len(rec.Named(EventWorkflowResult)); n != 1 {
		t.Fatalf("result events=%d want=1", n)
	}
}

func TestRunnerBackoffAfterFailure(t *testing.T) {
	r, clk, _, _ := newTestRunner(t)
	var fail atomic.Bool
	fail.Store(true)
	r.Register(funcWorkflow{
		name: "flaky",
		request: func(context.Context) (Step, error) {
			if fail.Load() {
				return Step{}, errors.New("down")
			}
			return Finish(OutcomeCompleted), nil
		},
	}, DefaultConfig())

	if _, err := r.Start("flaky"); err != nil {
		t.Fatalf("start: %v", err)
	}
	r.Wait()
	snap, _ := r.Snapshot("flaky")
	if snap.State != StateError || snap.Error == "" {
		t.Fatalf("snapshot=%+v want error", snap)
	}

	_, err := r.Start("flaky")
	var be *BackoffError
	if !errors.As(err, &be) {
		t.Fatalf("err=%v want BackoffError", err)
	}
	if be.Wait != 2*time.Second {
		t.Fatalf("wait=%v want=2s", be.Wait)
	}

	clk.Advance(2 * time.Second)
	fail.Store(false)
	if _, err := r.Start("flaky"); err != nil {
		t.Fatalf("start after backoff: %v", err)
	}
	r.Wait()
	snap, _ = r.Snapshot("flaky")
	if snap.State != StateCompleted {
		t.Fatalf("snapshot=%+v want completed", snap)
	}
}

func TestRunnerTimeoutRecordsNoFailure(t *testing.T) {
	r, _, bo, _ := newTestRunner(t)
	r.Register(funcWorkflow{
		name:    "stuck",
		request: func(context.Context) (Step, error) { return Continue(), nil },
		poll:    func(context.Context) (Step, error) { return Continue(), nil },
	}, Config{Interval: time.Second, Timeout: 3 * time.Second})

	if _, err := r.Start("stuck"); err != nil {
		t.Fatalf("start: %v", err)
	}
	r.Wait()
	snap, _ := r.Snapshot("stuck")
	if snap.State != StateTimeout || snap.Status != StatusPollingTimeout {
		t.Fatalf("snapshot=%+v", snap)
	}
	if _, ok := bo.Record(context.Background(), "stuck"); ok {
		t.Fatal("timeout recorded a backoff failure")
	}
}

func TestRunnerCloseRecordsNoFailure(t *testing.T) {
	r, _, bo, rec := newTestRunner(t)
	entered := make(chan struct{})
	r.Register(funcWorkflow{
		name: "endless",
		request: func(ctx context.Context) (Step, error) {
			close(entered)
			<-ctx.Done()
			return Step{}, ctx.Err()
		},
	}, DefaultConfig())

	if _, err := r.Start("endless"); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-entered
	r.Close()

	if _, ok := bo.Record(context.Background(), "endless"); ok {
		t.Fatal("close recorded a backoff failure")
	}
	if n := len(rec.Named(EventWorkflowResult)); n != 0 {
		t.Fatalf("result events=%d want=0", n)
	}
	snap, _ := r.Snapshot("endless")
	if snap.State == StateError || snap.Error != "" {
		t.Fatalf("snapshot=%+v must not report an error", snap)
	}
	if wait := bo.Remaining(context.Background(), "endless"); wait != 0 {
		t.Fatalf("remaining=%v want=0", wait)
	}
}
