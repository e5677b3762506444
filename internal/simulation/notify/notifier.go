package notify

import "context"

// Notice summarizes a finished scheduled simulation.
type Notice struct {
	OrganizationID string `json:"organization_id"`
	PropertyID     string `json:"property_id"`
	SimulationID   string `json:"simulation_id,omitempty"`
	Period         string `json:"period"`
	Status         string `json:"status"`
	SavingsTotal   string `json:"savings_total,omitempty"`
	DataQuality    string `json:"data_quality,omitempty"`
	Error          string `json:"error,omitempty"`
	ReportURL      string `json:"report_url,omitempty"`
}

// Notifier sends notices.
type Notifier interface {
	Notify(ctx context.Context, notice Notice) error
}
