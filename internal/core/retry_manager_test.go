package core

import (
	"context"
	"testing"
	"time"
)

func TestRetryManagerRequeuesAfterDelay(t *testing.T) {
	q := NewQueue()
	m := NewRetryManager(q, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	start := time.Now()
	m.Schedule(ctx, Item{ID: "later"}, start.Add(40*time.Millisecond))
	m.Schedule(ctx, Item{ID: "sooner"}, start.Add(10*time.Millisecond))

	popCtx, popCancel := context.WithTimeout(ctx, 2*time.Second)
	defer popCancel()
	first, err := q.Pop(popCtx)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	second, err := q.Pop(popCtx)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if first.ID != "sooner" || second.ID != "later" {
		t.Fatalf("order=%s,%s want=sooner,later", first.ID, second.ID)
	}
	if time.Since(start) < 35*time.Millisecond {
		t.Fatalf("items released too early: %v", time.Since(start))
	}
	if m.Waiting() != 0 {
		t.Fatalf("waiting=%d want=0", m.Waiting())
	}
}
