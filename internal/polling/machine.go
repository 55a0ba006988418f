package polling

import (
	"context"
	"time"

	"github.com/gogazub/appflow/internal/clock"
)

type State string

const (
	StateRequesting State = "requesting"
	StatePolling    State = "polling"
	StateCompleted  State = "completed"
	StateError      State = "error"
	StateTimeout    State = "timeout"
)

// Terminal сообщает, что из состояния нет переходов.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError || s == StateTimeout
}

// Outcome: бизнес-исход, которым завершился процесс. Не каждый исход означает успех.
type Outcome string

const (
	OutcomeCompleted     Outcome = "COMPLETED"
	OutcomeError         Outcome = "ERROR"
	OutcomeIneligible    Outcome = "INELIGIBLE"
	OutcomeAlreadyActive Outcome = "ALREADY_ACTIVE"
	OutcomeEligible      Outcome = "ELIGIBLE"
	OutcomeIseeNotFound  Outcome = "ISEE_NOT_FOUND"
)

// Статусы для клиента, которых нет среди Outcome.
const (
	StatusPolling        = "POLLING"
	StatusPollingTimeout = "POLLING_TIMEOUT"
)

// Step: ответ шага процесса, либо терминальный исход, либо "ещё в работе".
type Step struct {
	Done    bool
	Outcome Outcome
}

func Continue() Step { return Step{} }

func Finish(o Outcome) Step { return Step{Done: true, Outcome: o} }

// Workflow: конкретный процесс "запросить, потом опрашивать".
type Workflow interface {
	Name() string
	// Request: начальное сетевое действие.
	Request(ctx context.Context) (Step, error)
	// Poll: одна проверка статуса.
	Poll(ctx context.Context) (Step, error)
}

type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

func DefaultConfig() Config {
	return Config{Interval: time.Second, Timeout: 10 * time.Second}
}

type Transition struct {
	From    State
	To      State
	Outcome Outcome
	Err     error
	Ticks   int
}

type Result struct {
	State   State
	Outcome Outcome
	Err     error
	Ticks   int
	Elapsed time.Duration
}

// Status возвращает то, что увидит клиент: исход, POLLING_TIMEOUT или пусто при ошибке.
func (r Result) Status() string {
	switch r.State {
	case StateCompleted:
		return string(r.Outcome)
	case StateTimeout:
		return StatusPollingTimeout
	case StateError:
		return ""
	default:
		return StatusPolling
	}
}

// Machine гоняет Workflow по состояниям requesting → polling → терминал.
// Тики строго последовательны; после терминала перезапуск только новым Run.
type Machine struct {
	cfg      Config
	clock    clock.Clock
	observer func(Transition)
}

func NewMachine(cfg Config, clk clock.Clock, observer func(Transition)) *Machine {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Machine{cfg: cfg, clock: clk, observer: observer}
}

func (m *Machine) Config() Config { return m.cfg }

func (m *Machine) Run(ctx context.Context, wf Workflow) Result {
	started := m.clock.Now()
	state := State("")
	ticks := 0

	move := func(to State, outcome Outcome, err error) {
		if m.observer != nil {
			m.observer(Transition{From: state, To: to, Outcome: outcome, Err: err, Ticks: ticks})
		}
		state = to
	}
	finish := func(to State, outcome Outcome, err error) Result {
		move(to, outcome, err)
		return Result{State: to, Outcome: outcome, Err: err, Ticks: ticks, Elapsed: m.clock.Now().Sub(started)}
	}

	move(StateRequesting, "", nil)
	step, err := wf.Request(ctx)
	if err != nil {
		return finish(StateError, "", err)
	}
	if step.Done {
		return finish(StateCompleted, step.Outcome, nil)
	}

	move(StatePolling, "", nil)
	for {
		if err := m.clock.Sleep(ctx, m.cfg.Interval); err != nil {
			return finish(StateError, "", err)
		}
		// таймаут проверяется до очередного опроса и имеет приоритет над ним
		if m.clock.Now().Sub(started) >= m.cfg.Timeout {
			return finish(StateTimeout, "", nil)
		}

		ticks++
		step, err := wf.Poll(ctx)
		if err != nil {
			return finish(StateError, "", err)
		}
		if step.Done {
			return finish(StateCompleted, step.Outcome, nil)
		}
	}
}
