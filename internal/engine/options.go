package engine

import (
	"fmt"
	"strings"
	"time"

	// Tariff zones must resolve on hosts without a system zoneinfo database.
	_ "time/tzdata"
)

// DefaultTimezone is the zone peak windows are defined in.
const DefaultTimezone = "Europe/Stockholm"

// InsufficientDataPolicy decides what a billed month without peak-window data costs.
type InsufficientDataPolicy string

const (
	// PolicyFail rejects the run with ErrInsufficientData.
	PolicyFail InsufficientDataPolicy = "fail"
	// PolicyZero bills the month at zero peak kW and flags it.
	PolicyZero InsufficientDataPolicy = "zero"
)

// ParsePolicy parses a policy name; empty means PolicyFail.
func ParsePolicy(value string) (InsufficientDataPolicy, error) {
	switch InsufficientDataPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", PolicyFail:
		return PolicyFail, nil
	case PolicyZero:
		return PolicyZero, nil
	default:
		return "", fmt.Errorf("engine: unknown insufficient data policy %q", value)
	}
}

// Options configures the aggregator.
type Options struct {
	Location         *time.Location
	InsufficientData InsufficientDataPolicy
}

// LoadLocation resolves a zone name, defaulting to DefaultTimezone.
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultTimezone
	}
	return time.LoadLocation(name)
}

func (o Options) normalized() Options {
	if o.Location == nil {
		loc, err := LoadLocation(DefaultTimezone)
		if err != nil {
			loc = time.UTC
		}
		o.Location = loc
	}
	if o.InsufficientData == "" {
		o.InsufficientData = PolicyFail
	}
	return o
}
