package tariff

import "errors"

var (
	// ErrEmptyOperator is returned when operator is empty.
	ErrEmptyOperator = errors.New("tariff: empty operator")
	// ErrEmptyName is returned when tariff name is empty.
	ErrEmptyName = errors.New("tariff: empty tariff name")
	// ErrInvalidValidity is returned when valid_to is not after valid_from.
	ErrInvalidValidity = errors.New("tariff: valid_to must be after valid_from")
	// ErrInvalidPeakHours is returned when peak hours are outside 0-23/0-24.
	ErrInvalidPeakHours = errors.New("tariff: invalid peak hours")
	// ErrInvalidPeakMonth is returned when a peak month is outside 1-12.
	ErrInvalidPeakMonth = errors.New("tariff: invalid peak month")
	// ErrInvalidCalcMethod is returned for an unknown peak calc method.
	ErrInvalidCalcMethod = errors.New("tariff: invalid peak calc method")
	// ErrNegativeFee is returned when a fee is negative or not finite.
	ErrNegativeFee = errors.New("tariff: negative or non-finite fee")
	// ErrNilTariff is returned when saving a nil tariff.
	ErrNilTariff = errors.New("tariff: nil tariff")
	// ErrTariffNotFound is returned when no tariff is valid for the operator/date.
	ErrTariffNotFound = errors.New("tariff: not found")
	// ErrOverlappingValidity is returned when saving a tariff that overlaps an existing version.
	ErrOverlappingValidity = errors.New("tariff: overlapping validity interval")
)
