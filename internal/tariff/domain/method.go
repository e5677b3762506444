package tariff

import (
	"fmt"
	"strings"
)

// PeakCalcMethod selects how a month's billable peak demand is reduced.
type PeakCalcMethod uint8

const (
	// PeakSingle bills the single highest demand of the month.
	PeakSingle PeakCalcMethod = iota + 1
	// PeakAvg3 bills the mean of the three highest distinct-day peaks.
	PeakAvg3
	// PeakAvg5 bills the mean of the five highest distinct-day peaks.
	PeakAvg5
)

// ParsePeakCalcMethod parses the stored representation.
func ParsePeakCalcMethod(value string) (PeakCalcMethod, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "single":
		return PeakSingle, nil
	case "avg3":
		return PeakAvg3, nil
	case "avg5":
		return PeakAvg5, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidCalcMethod, value)
	}
}

// Valid reports whether m is one of the known methods.
func (m PeakCalcMethod) Valid() bool {
	switch m {
	case PeakSingle, PeakAvg3, PeakAvg5:
		return true
	default:
		return false
	}
}

// TopDays is the number of distinct-day peaks averaged; 0 for PeakSingle.
func (m PeakCalcMethod) TopDays() int {
	switch m {
	case PeakAvg3:
		return 3
	case PeakAvg5:
		return 5
	default:
		return 0
	}
}

func (m PeakCalcMethod) String() string {
	switch m {
	case PeakSingle:
		return "single"
	case PeakAvg3:
		return "avg3"
	case PeakAvg5:
		return "avg5"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m PeakCalcMethod) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, ErrInvalidCalcMethod
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input defaults to single.
func (m *PeakCalcMethod) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*m = PeakSingle
		return nil
	}
	parsed, err := ParsePeakCalcMethod(string(data))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
