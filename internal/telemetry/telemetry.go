package telemetry

import (
	"context"
	"log/slog"
	"sync"
)

// Props: произвольный набор свойств события.
type Props map[string]any

// Sink принимает именованные события. Отправка fire-and-forget: ошибки
// транспорта проглатываются реализацией.
type Sink interface {
	Track(ctx context.Context, name string, props Props)
}

type nop struct{}

func NewNop() Sink { return nop{} }

func (nop) Track(context.Context, string, Props) {}

// LogSink пишет события в структурированный лог.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Track(ctx context.Context, name string, props Props) {
	attrs := make([]any, 0, len(props)+1)
	attrs = append(attrs, slog.String("event", name))
	for k, v := range props {
		attrs = append(attrs, slog.Any(k, v))
	}
	s.logger.InfoContext(ctx, "telemetry", attrs...)
}

// Multi рассылает событие во все sink'и.
type Multi []Sink

func (m Multi) Track(ctx context.Context, name string, props Props) {
	for _, s := range m {
		s.Track(ctx, name, props)
	}
}

// Event: запомненное событие, см. Recorder.
type Event struct {
	Name  string
	Props Props
}

// Recorder хранит события в памяти; удобен в тестах и для отладочного API.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Track(_ context.Context, name string, props Props) {
	cp := make(Props, len(props))
	for k, v := range props {
		cp[k] = v
	}
	r.mu.Lock()
	r.events = append(r.events, Event{Name: name, Props: cp})
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Named возвращает только события с данным именем.
func (r *Recorder) Named(name string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
