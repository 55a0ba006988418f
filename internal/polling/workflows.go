package polling

import (
	"context"
	"fmt"

	"github.com/gogazub/appflow/internal/backend"
)

const (
	WorkflowCgn          = "cgn_activation"
	WorkflowEyca         = "eyca_activation"
	WorkflowBonusVacanze = "bonus_vacanze_eligibility"
)

type (
	StartFunc       func(ctx context.Context) (backend.StartStatus, error)
	ActivationFunc  func(ctx context.Context) (backend.ActivationStatus, error)
	EligibilityFunc func(ctx context.Context) (backend.EligibilityStatus, error)
)

func unexpected(op string, v any) error {
	return &backend.GenericError{Op: op, Reason: fmt.Sprintf("unexpected status %v", v)}
}

func fromStart(op string, st backend.StartStatus) (Step, error) {
	switch st {
	case backend.StartProcessing:
		return Continue(), nil
	case backend.StartIneligible:
		return Finish(OutcomeIneligible), nil
	case backend.StartAlreadyActive:
		return Finish(OutcomeAlreadyActive), nil
	default:
		return Step{}, unexpected(op, st)
	}
}

// EycaActivation сначала спрашивает статус и запускает активацию только если
// её ещё нет (NOT_FOUND). Каждый тик повторяет то же решение.
type EycaActivation struct {
	Start  StartFunc
	Status ActivationFunc
}

func (EycaActivation) Name() string { return WorkflowEyca }

func (w EycaActivation) Request(ctx context.Context) (Step, error) { return w.check(ctx) }

func (w EycaActivation) Poll(ctx context.Context) (Step, error) { return w.check(ctx) }

func (w EycaActivation) check(ctx context.Context) (Step, error) {
	st, err := w.Status(ctx)
	if err != nil {
		return Step{}, err
	}
	switch st {
	case backend.ActivationCompleted:
		return Finish(OutcomeCompleted), nil
	case backend.ActivationError:
		return Finish(OutcomeError), nil
	case backend.ActivationProcessing:
		return Continue(), nil
	case backend.ActivationNotFound:
		started, err := w.Start(ctx)
		if err != nil {
			return Step{}, err
		}
		return fromStart("start eyca activation", started)
	default:
		return Step{}, unexpected("get eyca activation", st)
	}
}

// CgnActivation запускает активацию, затем опрашивает её статус.
type CgnActivation struct {
	Start  StartFunc
	Status ActivationFunc
}

func (CgnActivation) Name() string { return WorkflowCgn }

func (w CgnActivation) Request(ctx context.Context) (Step, error) {
	st, err := w.Start(ctx)
	if err != nil {
		return Step{}, err
	}
	return fromStart("start cgn activation", st)
}

func (w CgnActivation) Poll(ctx context.Context) (Step, error) {
	st, err := w.Status(ctx)
	if err != nil {
		return Step{}, err
	}
	switch st {
	case backend.ActivationCompleted:
		return Finish(OutcomeCompleted), nil
	case backend.ActivationError:
		return Finish(OutcomeError), nil
	// сразу после старта карточка может ещё не появиться
	case backend.ActivationProcessing, backend.ActivationNotFound:
		return Continue(), nil
	default:
		return Step{}, unexpected("get cgn activation", st)
	}
}

// BonusEligibility запускает проверку права на bonus vacanze и ждёт результат.
type BonusEligibility struct {
	Start  StartFunc
	Status EligibilityFunc
}

func (BonusEligibility) Name() string { return WorkflowBonusVacanze }

func (w BonusEligibility) Request(ctx context.Context) (Step, error) {
	st, err := w.Start(ctx)
	if err != nil {
		return Step{}, err
	}
	return fromStart("start eligibility check", st)
}

func (w BonusEligibility) Poll(ctx context.Context) (Step, error) {
	st, err := w.Status(ctx)
	if err != nil {
		return Step{}, err
	}
	switch st {
	case backend.EligibilityEligible:
		return Finish(OutcomeEligible), nil
	case backend.EligibilityIneligible:
		return Finish(OutcomeIneligible), nil
	case backend.EligibilityIseeNotFound:
		return Finish(OutcomeIseeNotFound), nil
	case backend.EligibilityProcessing, backend.EligibilityNotFound:
		return Continue(), nil
	default:
		return Step{}, unexpected("get eligibility check", st)
	}
}

// BackendWorkflows собирает все три процесса поверх клиента бэкенда.
func BackendWorkflows(c *backend.Client) []Workflow {
	return []Workflow{
		CgnActivation{Start: c.StartCgnActivation, Status: c.GetCgnStatus},
		EycaActivation{Start: c.StartEycaActivation, Status: c.GetEycaStatus},
		BonusEligibility{Start: c.StartEligibilityCheck, Status: c.GetEligibilityCheck},
	}
}
