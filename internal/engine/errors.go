package engine

import (
	"errors"
	"fmt"

	"derivatio-energy/internal/calendar"
	tariff "derivatio-energy/internal/tariff/domain"
)

// Kind classifies engine failures.
type Kind string

const (
	KindTariffNotFound   Kind = "tariff_not_found"
	KindInsufficientData Kind = "insufficient_data"
	KindInvalidInput     Kind = "invalid_input"
)

var (
	// ErrInsufficientData is returned when a billed month has no peak-window records.
	ErrInsufficientData = errors.New("engine: insufficient data")
	// ErrInvalidInput is returned for negative or non-finite numbers and malformed ranges.
	ErrInvalidInput = errors.New("engine: invalid input")
)

// Error carries the failure kind alongside the operation that raised it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or "" when err is not an engine failure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, tariff.ErrTariffNotFound):
		return KindTariffNotFound
	case errors.Is(err, ErrInsufficientData):
		return KindInsufficientData
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	}
	return ""
}

// TariffNotFound wraps a resolver miss so it reaches the simulation as an engine failure.
func TariffNotFound(op string, err error) error {
	if err == nil {
		err = tariff.ErrTariffNotFound
	}
	return &Error{Kind: KindTariffNotFound, Op: op, Err: err}
}

func invalidInput(op, format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Op: op, Err: fmt.Errorf("%w: "+format, append([]any{ErrInvalidInput}, args...)...)}
}

func insufficientData(op string, month calendar.Month) error {
	return &Error{Kind: KindInsufficientData, Op: op, Err: fmt.Errorf("%w: no peak-window records in billed month %s", ErrInsufficientData, month)}
}
