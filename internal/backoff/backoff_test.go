package backoff

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gogazub/appflow/internal/clock"
)

func newTestTracker(t *testing.T, store Store) (*Tracker, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Unix(1_600_000_000, 0))
	return NewTracker(store, DefaultOptions(), clk, nil), clk
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	bs, err := OpenBadgerStore("")
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = bs.Close() })
	return map[string]Store{"memory": NewMemStore(), "badger": bs}
}

func TestWaitFormula(t *testing.T) {
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 0},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
	}
	for _, c := range cases {
		if got := Wait(c.attempts, 2, time.Second); got != c.want {
			t.Fatalf("Wait(%d)=%v want=%v", c.attempts, got, c.want)
		}
	}
}

func TestNoRecordMeansNoWait(t *testing.T) {
	tr, _ := newTestTracker(t, nil)
	if got := tr.WaitTime(context.Background(), "fetch_wallets"); got != 0 {
		t.Fatalf("wait=%v want=0", got)
	}
}

func TestSaturation(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tr, _ := newTestTracker(t, st)
			for i := 0; i < 10; i++ {
				tr.RecordFailure(ctx, "fetch_wallets")
			}
			rec, ok := tr.Record(ctx, "fetch_wallets")
			if !ok {
				t.Fatal("record missing")
			}
			if rec.Attempts != 4 {
				t.Fatalf("attempts=%d want=4", rec.Attempts)
			}
			if got := tr.WaitTime(ctx, "fetch_wallets"); got != 16*time.Second {
				t.Fatalf("wait=%v want=16s", got)
			}
		})
	}
}

func TestResetOnSuccess(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tr, _ := newTestTracker(t, st)
			tr.RecordFailure(ctx, "fetch_transactions")
			tr.RecordFailure(ctx, "fetch_transactions")
			if tr.WaitTime(ctx, "fetch_transactions") == 0 {
				t.Fatal("expected non-zero wait after failures")
			}
			tr.RecordSuccess(ctx, "fetch_transactions")
			if got := tr.WaitTime(ctx, "fetch_transactions"); got != 0 {
				t.Fatalf("wait=%v want=0", got)
			}
			if _, ok := tr.Record(ctx, "fetch_transactions"); ok {
				t.Fatal("record must be deleted on success")
			}
		})
	}
}

func TestWaitExpires(t *testing.T) {
	ctx := context.Background()
	tr, clk := newTestTracker(t, nil)

	tr.RecordFailure(ctx, "k") // 2s
	clk.Advance(1500 * time.Millisecond)
	if got := tr.WaitTime(ctx, "k"); got != 2*time.Second {
		t.Fatalf("wait=%v want=2s", got)
	}
	if got := tr.Remaining(ctx, "k"); got != 500*time.Millisecond {
		t.Fatalf("remaining=%v want=500ms", got)
	}

	clk.Advance(time.Second)
	if got := tr.WaitTime(ctx, "k"); got != 0 {
		t.Fatalf("wait=%v want=0 after expiry", got)
	}
	// запись ещё жива: следующая неудача продолжает счёт
	if rec, ok := tr.Record(ctx, "k"); !ok || rec.Attempts != 1 {
		t.Fatalf("record=%+v ok=%v", rec, ok)
	}

	clk.Advance(tr.MaxWait())
	_ = tr.WaitTime(ctx, "k")
	if _, ok := tr.Record(ctx, "k"); ok {
		t.Fatal("record must be discarded after max wait")
	}
}

func TestKindsAreIndependent(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker(t, nil)
	tr.RecordFailure(ctx, "a")
	if got := tr.WaitTime(ctx, "b"); got != 0 {
		t.Fatalf("kind b wait=%v want=0", got)
	}
}

func TestConcurrentFailuresSaturate(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.RecordFailure(ctx, "service_detail")
		}()
	}
	wg.Wait()

	rec, _ := tr.Record(ctx, "service_detail")
	if rec.Attempts != 4 {
		t.Fatalf("attempts=%d want=4", rec.Attempts)
	}
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	bs, err := OpenBadgerStore(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer bs.Close()

	if _, ok, err := bs.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("get missing: ok=%v err=%v", ok, err)
	}
	want := Record{Kind: "cgn_activation", LastFailure: time.Unix(42, 0).UTC(), Attempts: 3}
	if err := bs.Put(ctx, want); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := bs.Get(ctx, "cgn_activation")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Attempts != 3 || !got.LastFailure.Equal(want.LastFailure) {
		t.Fatalf("got=%+v want=%+v", got, want)
	}
	if err := bs.Delete(ctx, "cgn_activation"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := bs.Get(ctx, "cgn_activation"); ok {
		t.Fatal("record still present after delete")
	}
}
