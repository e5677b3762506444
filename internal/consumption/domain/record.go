package consumption

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"
)

// Record sources.
const (
	SourceMeter     = "meter"
	SourceManual    = "manual"
	SourceSynthetic = "synthetic"
	SourceShifted   = "shifted"
)

var (
	// ErrEmptyPropertyID is returned when a record has no property.
	ErrEmptyPropertyID = errors.New("consumption: empty property id")
	// ErrInvalidRecord is returned for negative or non-finite readings.
	ErrInvalidRecord = errors.New("consumption: invalid record")
)

// Record is one metered interval. Timestamp marks the interval start.
type Record struct {
	PropertyID string    `json:"property_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	KWh        float64   `json:"kwh"`
	KWPeak     *float64  `json:"kw_peak,omitempty"`
	Source     string    `json:"source,omitempty"`
}

// Validate checks record invariants.
func (r Record) Validate() error {
	if r.Timestamp.IsZero() {
		return ErrInvalidRecord
	}
	if r.KWh < 0 || math.IsNaN(r.KWh) || math.IsInf(r.KWh, 0) {
		return ErrInvalidRecord
	}
	if r.KWPeak != nil && (*r.KWPeak < 0 || math.IsNaN(*r.KWPeak) || math.IsInf(*r.KWPeak, 0)) {
		return ErrInvalidRecord
	}
	return nil
}

// Series is a property's records at a fixed resolution. A zero Resolution is inferred.
type Series struct {
	PropertyID string        `json:"property_id,omitempty"`
	Resolution time.Duration `json:"-"`
	Records    []Record      `json:"records"`
}

// Sorted returns a copy of the records ordered by timestamp.
func (s Series) Sorted() []Record {
	out := append([]Record(nil), s.Records...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// TotalKWh sums the series energy.
func (s Series) TotalKWh() float64 {
	var total float64
	for _, r := range s.Records {
		total += r.KWh
	}
	return total
}

// Reader loads consumption for a property on behalf of an organization.
// Implementations check the organization's access before returning data.
type Reader interface {
	ListByProperty(ctx context.Context, organizationID, propertyID string, from, to time.Time) ([]Record, error)
}

// Writer stores consumption records, replacing rows with the same (property, timestamp).
type Writer interface {
	SaveBatch(ctx context.Context, records []Record) error
}
