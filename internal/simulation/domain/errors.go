package simulation

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyID is returned when a simulation has no id.
	ErrEmptyID = errors.New("simulation: empty id")
	// ErrEmptyPropertyID is returned when a simulation has no property.
	ErrEmptyPropertyID = errors.New("simulation: empty property id")
	// ErrInvalidPeriod is returned for zero or reversed periods.
	ErrInvalidPeriod = errors.New("simulation: invalid period")
	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("simulation: invalid status transition")
	// ErrNilSimulation is returned when saving a nil simulation.
	ErrNilSimulation = errors.New("simulation: nil simulation")
	// ErrSimulationNotFound is returned when a simulation is not found.
	ErrSimulationNotFound = errors.New("simulation: not found")
	// ErrNotReady is returned when a result is requested before the run is done.
	ErrNotReady = errors.New("simulation: result not ready")
)

func transitionError(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
