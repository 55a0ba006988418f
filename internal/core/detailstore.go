package core

import (
	"sync"
	"time"

	"github.com/gogazub/appflow/internal/backend"
)

type DetailStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewDetailStore() *DetailStore {
	return &DetailStore{entries: make(map[string]Entry)}
}

// MarkQueued ставит сервис в очередь. Уже загруженные детали не теряются:
// повторная загрузка просто обновит их.
func (s *DetailStore) MarkQueued(id string) {
	s.mu.Lock()
	e := s.entries[id]
	e.ID = id
	e.Status = StatusQueued
	e.LastError = ""
	e.UpdatedAt = time.Now()
	s.entries[id] = e
	s.mu.Unlock()
}

func (s *DetailStore) SetStatus(id string, st Status) {
	s.mu.Lock()
	e := s.entries[id]
	e.ID = id
	e.Status = st
	e.UpdatedAt = time.Now()
	s.entries[id] = e
	s.mu.Unlock()
}

func (s *DetailStore) SetDetail(id string, d backend.ServiceDetail, attempts int) {
	s.mu.Lock()
	s.entries[id] = Entry{
		ID:        id,
		Status:    StatusDone,
		Attempts:  attempts,
		Detail:    &d,
		UpdatedAt: time.Now(),
	}
	s.mu.Unlock()
}

func (s *DetailStore) SetFailed(id string, err error, attempts int) {
	s.mu.Lock()
	e := s.entries[id]
	e.ID = id
	e.Status = StatusFailed
	e.Attempts = attempts
	e.LastError = err.Error()
	e.UpdatedAt = time.Now()
	s.entries[id] = e
	s.mu.Unlock()
}

func (s *DetailStore) Get(id string) (Entry, bool) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	return e, ok
}

func (s *DetailStore) GetStatus(id string) (Status, bool) {
	e, ok := s.Get(id)
	return e.Status, ok
}
