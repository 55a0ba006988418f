package core

import (
	"context"
	"sync"
)

// Queue: неограниченная FIFO-очередь для нескольких производителей и
// потребителей. Pop блокируется, пока очередь пуста.
type Queue struct {
	mu    sync.Mutex
	items []Item
	// один "жетон" будит одного ждущего потребителя
	wake chan struct{}
}

func NewQueue() *Queue {
	return &Queue{
		items: make([]Item, 0, 64),
		wake:  make(chan struct{}, 1),
	}
}

func (q *Queue) Push(it Item) {
	q.mu.Lock()
	q.items = append(q.items, it)
	q.mu.Unlock()
	q.signal()
}

func (q *Queue) PushMany(items []Item) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, items...)
	q.mu.Unlock()
	q.signal()
}

// Pop забирает голову очереди или ждёт, пока она появится.
func (q *Queue) Pop(ctx context.Context) (Item, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Item{}, err
		}
		q.mu.Lock()
		if len(q.items) > 0 {
			it := q.items[0]
			q.items[0] = Item{}
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				// передаём жетон следующему потребителю
				q.signal()
			}
			return it, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Item{}, ctx.Err()
		case <-q.wake:
		}
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
