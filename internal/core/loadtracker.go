package core

import (
	"context"
	"sync"
	"time"

	"github.com/gogazub/appflow/internal/clock"
	"github.com/gogazub/appflow/internal/telemetry"
)

const EventLoadStats = "SERVICES_DETAIL_LOADING_STATS"

type LoadKind string

const (
	// LoadComplete: загружены все сервисы пачки.
	LoadComplete LoadKind = "COMPLETE"
	// LoadPartial: приложение ушло с переднего плана до конца загрузки.
	LoadPartial LoadKind = "PARTIAL"
)

type LoadStats struct {
	BatchID     string        `json:"batch_id"`
	Kind        LoadKind      `json:"kind,omitempty"`
	StartTime   time.Time     `json:"start_time"`
	LoadingTime time.Duration `json:"loading_time"`
	ToLoad      int           `json:"to_load"`
	Loaded      int           `json:"loaded"`
	Failed      int           `json:"failed"`
	Remaining   int           `json:"remaining"`
}

// LoadTracker измеряет загрузку пачки сервисов. Окно измерения сбрасывается
// при возвращении приложения на передний план, сам пул при этом не трогается.
type LoadTracker struct {
	mu        sync.Mutex
	sink      telemetry.Sink
	clock     clock.Clock
	stats     LoadStats
	remaining map[string]struct{}
}

func NewLoadTracker(sink telemetry.Sink, clk clock.Clock) *LoadTracker {
	if sink == nil {
		sink = telemetry.NewNop()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &LoadTracker{sink: sink, clock: clk, remaining: make(map[string]struct{})}
}

// Begin начинает новое измерение. Сервисы прошлой пачки, которые ещё не
// догрузились, в новое измерение не попадают.
func (t *LoadTracker) Begin(batchID string, ids []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remaining = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		t.remaining[id] = struct{}{}
	}
	t.stats = LoadStats{
		BatchID:   batchID,
		StartTime: t.clock.Now(),
		ToLoad:    len(t.remaining),
		Remaining: len(t.remaining),
	}
}

// Complete учитывает финальный исход загрузки одного сервиса. Исходы
// элементов чужой пачки игнорируются, даже если id совпадает.
func (t *LoadTracker) Complete(batchID, id string, ok bool) {
	t.mu.Lock()
	if batchID != t.stats.BatchID {
		t.mu.Unlock()
		return
	}
	if _, tracked := t.remaining[id]; !tracked {
		t.mu.Unlock()
		return
	}
	delete(t.remaining, id)
	if ok {
		t.stats.Loaded++
	} else {
		t.stats.Failed++
	}
	t.stats.Remaining = len(t.remaining)

	var done *LoadStats
	if len(t.remaining) == 0 {
		t.stats.Kind = LoadComplete
		t.stats.LoadingTime = t.clock.Now().Sub(t.stats.StartTime)
		s := t.stats
		done = &s
	}
	t.mu.Unlock()

	if done != nil {
		t.track(*done)
	}
}

// AppStateChanged: уход с переднего плана при незаконченной пачке отправляет
// PARTIAL, возвращение начинает новое окно измерения.
func (t *LoadTracker) AppStateChanged(foreground bool) {
	t.mu.Lock()
	if len(t.remaining) == 0 {
		t.mu.Unlock()
		return
	}
	if foreground {
		t.stats.Kind = ""
		t.stats.StartTime = t.clock.Now()
		t.stats.LoadingTime = 0
		t.stats.Loaded = 0
		t.stats.Failed = 0
		t.stats.ToLoad = len(t.remaining)
		t.mu.Unlock()
		return
	}
	t.stats.Kind = LoadPartial
	t.stats.LoadingTime = t.clock.Now().Sub(t.stats.StartTime)
	s := t.stats
	t.mu.Unlock()

	t.track(s)
}

func (t *LoadTracker) Snapshot() LoadStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats
	if s.Kind != LoadComplete {
		s.LoadingTime = t.clock.Now().Sub(s.StartTime)
	}
	return s
}

func (t *LoadTracker) Reset() {
	t.mu.Lock()
	t.stats = LoadStats{}
	t.remaining = make(map[string]struct{})
	t.mu.Unlock()
}

func (t *LoadTracker) track(s LoadStats) {
	t.sink.Track(context.Background(), EventLoadStats, telemetry.Props{
		"batch_id":        s.BatchID,
		"kind":            string(s.Kind),
		"loading_time_ms": s.LoadingTime.Milliseconds(),
		"to_load":         s.ToLoad,
		"loaded":          s.Loaded,
		"failed":          s.Failed,
	})
}
