package core

import (
	"container/heap"
	"context"
	"sync/atomic"
	"time"

	"github.com/gogazub/appflow/internal/clock"
)

type retryItem struct {
	runAt time.Time // когда сервис снова пойдёт в очередь
	seq   int64     // порядковый номер для устойчивого порядка при равных runAt
	item  Item
}

type retryHeap []retryItem

func (h retryHeap) Len() int { return len(h) }
func (h retryHeap) Less(i, j int) bool {
	if h[i].runAt.Equal(h[j].runAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].runAt.Before(h[j].runAt)
}
func (h retryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *retryHeap) Push(x any)   { *h = append(*h, x.(retryItem)) }
func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// RetryManager откладывает повторную загрузку сервиса до истечения бэкоффа
// и возвращает его в общую очередь.
type RetryManager struct {
	out     *Queue         // сюда кладём сервис, у которого пришло время
	in      chan retryItem // входящие заявки на отложенный повтор
	seq     atomic.Int64
	timer   *time.Timer // один общий таймер, всегда выставлен на ближайший runAt
	pending retryHeap   // min-heap ожидающих
	waiting atomic.Int64
	clock   clock.Clock
}

// NewRetryManager: runAt сравнивается с clk.Now() того же источника времени,
// которым пользуется пул при планировании.
func NewRetryManager(out *Queue, clk clock.Clock) *RetryManager {
	if clk == nil {
		clk = clock.Real()
	}
	return &RetryManager{
		out:   out,
		in:    make(chan retryItem, 64),
		timer: time.NewTimer(time.Hour), // будет немедленно переставлен
		clock: clk,
	}
}

// Start запускает главный цикл. Отложенные элементы лежат в min-heap по runAt,
// единственный таймер смотрит на голову кучи. Выход: по ctx.Done().
func (m *RetryManager) Start(ctx context.Context) {
	heap.Init(&m.pending)
	_ = m.timer.Stop()

	for {
		var nextDeadline <-chan time.Time

		if len(m.pending) > 0 {
			d := m.pending[0].runAt.Sub(m.clock.Now())
			if d < 0 {
				d = 0
			}
			m.resetTimer(d)
			nextDeadline = m.timer.C
		}

		select {
		case <-ctx.Done():
			_ = m.timer.Stop()
			return

		case it := <-m.in:
			heap.Push(&m.pending, it)

		case <-nextDeadline:
			if len(m.pending) == 0 {
				continue
			}
			it := heap.Pop(&m.pending).(retryItem)
			m.waiting.Add(-1)
			m.out.Push(it.item)
		}
	}
}

// Schedule планирует возврат it в очередь не раньше at.
func (m *RetryManager) Schedule(ctx context.Context, it Item, at time.Time) {
	m.waiting.Add(1)
	select {
	case m.in <- retryItem{runAt: at, seq: m.seq.Add(1), item: it}:
	case <-ctx.Done():
		m.waiting.Add(-1)
	}
}

// Waiting: сколько элементов ждут своего runAt.
func (m *RetryManager) Waiting() int {
	return int(m.waiting.Load())
}

// resetTimer корректно перевзводит один и тот же time.Timer на новую задержку d.
func (m *RetryManager) resetTimer(d time.Duration) {
	if !m.timer.Stop() {
		select {
		case <-m.timer.C:
		default:
		}
	}
	m.timer.Reset(d)
}
