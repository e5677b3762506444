package application

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"derivatio-energy/internal/engine"
	"derivatio-energy/internal/loadshift"
	simulation "derivatio-energy/internal/simulation/domain"
	tariffapp "derivatio-energy/internal/tariff/application"
	tariff "derivatio-energy/internal/tariff/domain"
)

// Result is the full outcome of a simulation run, stored as the simulation's result document.
type Result struct {
	PropertyID string                           `json:"property_id"`
	Tariff     tariff.GridTariff                `json:"tariff"`
	Warnings   []tariffapp.DataIntegrityWarning `json:"warnings,omitempty"`
	Plan       *loadshift.Plan                  `json:"load_shift"`
	engine.Comparison
}

// DataQuality is the input grade the result rests on.
func (r *Result) DataQuality() loadshift.DataQuality {
	if r == nil || r.Plan == nil {
		return ""
	}
	return r.Plan.Quality
}

// DecodeResult reads the result document of a done simulation.
func DecodeResult(sim *simulation.Simulation) (*Result, error) {
	if sim == nil {
		return nil, simulation.ErrNilSimulation
	}
	if sim.Status != simulation.StatusDone || len(sim.Result) == 0 {
		return nil, simulation.ErrNotReady
	}
	var res Result
	if err := json.Unmarshal(sim.Result, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func encodeResult(res *Result) (json.RawMessage, string, error) {
	if res == nil {
		return nil, "", errors.New("simulation service: nil result")
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(raw)
	return raw, hex.EncodeToString(sum[:]), nil
}

func outcomeOf(res *Result, raw json.RawMessage, hash string) simulation.Outcome {
	return simulation.Outcome{
		CostWithout:   res.CostWithout,
		CostWith:      res.CostWith,
		SavingsTotal:  res.SavingsTotal,
		SavingsPct:    res.SavingsPct,
		PeakKWWithout: res.PeakKWWithout,
		PeakKWWith:    res.PeakKWWith,
		Result:        raw,
		ResultHash:    hash,
	}
}
