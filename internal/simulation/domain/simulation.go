package simulation

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"derivatio-energy/internal/calendar"
)

const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusError   = "error"
)

// Simulation is one stored comparison run for a property and period.
// Result and cost fields are set only once the run is done.
type Simulation struct {
	ID             string           `json:"id"`
	OrganizationID string           `json:"organization_id"`
	PropertyID     string           `json:"property_id"`
	CreatedBy      string           `json:"created_by,omitempty"`
	PeriodStart    calendar.Date    `json:"period_start"`
	PeriodEnd      calendar.Date    `json:"period_end"`
	Status         string           `json:"status"`
	InputParams    json.RawMessage  `json:"input_params,omitempty"`
	Result         json.RawMessage  `json:"result,omitempty"`
	CostWithout    *decimal.Decimal `json:"cost_without_derivatio,omitempty"`
	CostWith       *decimal.Decimal `json:"cost_with_derivatio,omitempty"`
	SavingsTotal   *decimal.Decimal `json:"savings_total,omitempty"`
	SavingsPct     *decimal.Decimal `json:"savings_pct,omitempty"`
	PeakKWWithout  *float64         `json:"peak_kw_without,omitempty"`
	PeakKWWith     *float64         `json:"peak_kw_with,omitempty"`
	ResultHash     string           `json:"result_hash,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
}

// Outcome is what a finished run reports.
type Outcome struct {
	CostWithout   decimal.Decimal
	CostWith      decimal.Decimal
	SavingsTotal  decimal.Decimal
	SavingsPct    *decimal.Decimal
	PeakKWWithout float64
	PeakKWWith    float64
	Result        json.RawMessage
	ResultHash    string
}

// New returns a pending simulation.
func New(id, organizationID, propertyID, createdBy string, start, end calendar.Date, params json.RawMessage, now time.Time) (*Simulation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrEmptyID
	}
	if strings.TrimSpace(propertyID) == "" {
		return nil, ErrEmptyPropertyID
	}
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return nil, ErrInvalidPeriod
	}
	return &Simulation{
		ID:             id,
		OrganizationID: organizationID,
		PropertyID:     propertyID,
		CreatedBy:      createdBy,
		PeriodStart:    start,
		PeriodEnd:      end,
		Status:         StatusPending,
		InputParams:    params,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Terminal reports whether the simulation has finished.
func (s *Simulation) Terminal() bool {
	return s.Status == StatusDone || s.Status == StatusError
}

// Start moves a pending simulation to running.
func (s *Simulation) Start(now time.Time) error {
	if s.Status != StatusPending {
		return transitionError(s.Status, StatusRunning)
	}
	s.Status = StatusRunning
	s.UpdatedAt = now
	return nil
}

// Complete records a successful outcome.
func (s *Simulation) Complete(out Outcome, now time.Time) error {
	if s.Status != StatusRunning {
		return transitionError(s.Status, StatusDone)
	}
	costWithout, costWith, savings := out.CostWithout, out.CostWith, out.SavingsTotal
	peakWithout, peakWith := out.PeakKWWithout, out.PeakKWWith
	s.Status = StatusDone
	s.Result = out.Result
	s.ResultHash = out.ResultHash
	s.CostWithout = &costWithout
	s.CostWith = &costWith
	s.SavingsTotal = &savings
	s.SavingsPct = out.SavingsPct
	s.PeakKWWithout = &peakWithout
	s.PeakKWWith = &peakWith
	s.UpdatedAt = now
	s.CompletedAt = &now
	return nil
}

// Fail records a failed run. Cost fields stay empty.
func (s *Simulation) Fail(kind, message string, now time.Time) error {
	if s.Terminal() {
		return transitionError(s.Status, StatusError)
	}
	payload := map[string]string{"error": message}
	if kind != "" {
		payload["kind"] = kind
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.Status = StatusError
	s.Result = raw
	s.UpdatedAt = now
	s.CompletedAt = &now
	return nil
}

// FailureMessage returns the recorded error of a failed run.
func (s *Simulation) FailureMessage() string {
	if s.Status != StatusError || len(s.Result) == 0 {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(s.Result, &payload); err != nil {
		return ""
	}
	return payload.Error
}
