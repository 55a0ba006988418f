package backend

import (
	"errors"
	"fmt"
)

// NetworkError: сбой транспорта; хранит исходную причину.
type NetworkError struct {
	Op    string
	Cause error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s: %v", e.Op, e.Cause)
}

func (e *NetworkError) Unwrap() error { return e.Cause }

// GenericError покрывает всё остальное: неожиданный код ответа, неизвестное значение
// перечисления, тело, которое не удалось декодировать.
type GenericError struct {
	Op     string
	Reason string
	Cause  error
}

func (e *GenericError) Error() string {
	return fmt.Sprintf("generic error: %s: %s", e.Op, e.Reason)
}

func (e *GenericError) Unwrap() error { return e.Cause }

func networkError(op string, cause error) error {
	return &NetworkError{Op: op, Cause: cause}
}

func genericError(op, format string, args ...any) error {
	return &GenericError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// wrapGeneric сохраняет исходную ошибку как причину.
func wrapGeneric(op, what string, cause error) error {
	return &GenericError{Op: op, Reason: fmt.Sprintf("%s: %v", what, cause), Cause: cause}
}

// IsNetwork сообщает, что err (или что-то в его цепочке): NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

func IsGeneric(err error) bool {
	var ge *GenericError
	return errors.As(err, &ge)
}
