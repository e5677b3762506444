package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"derivatio-energy/internal/calendar"
	"derivatio-energy/internal/observability/logging"
	"derivatio-energy/internal/observability/metrics"
	tariff "derivatio-energy/internal/tariff/domain"
)

// Warning kinds.
const (
	WarningOverlappingValidity = "overlapping_validity"
)

// DataIntegrityWarning is a non-fatal catalog inconsistency found during resolution.
type DataIntegrityWarning struct {
	Kind       string   `json:"kind"`
	Operator   string   `json:"operator"`
	TariffName string   `json:"tariff_name,omitempty"`
	Message    string   `json:"message"`
	TariffIDs  []string `json:"tariff_ids,omitempty"`
}

// Resolution is the tariff chosen for a date plus any warnings raised choosing it.
type Resolution struct {
	Tariff   tariff.GridTariff      `json:"tariff"`
	Warnings []DataIntegrityWarning `json:"warnings,omitempty"`
}

// Resolver picks the tariff version in force on a date.
type Resolver struct {
	catalog tariff.Catalog
	logger  *zap.Logger
}

// NewResolver constructs a resolver.
func NewResolver(catalog tariff.Catalog, logger *zap.Logger) (*Resolver, error) {
	if catalog == nil {
		return nil, errors.New("tariff resolver: nil catalog")
	}
	return &Resolver{catalog: catalog, logger: logging.OrNop(logger)}, nil
}

// Resolve returns the tariff of operator (and tariffName, when non-empty) valid on day.
// Several candidates resolve to the latest valid_from and carry a warning.
func (r *Resolver) Resolve(ctx context.Context, operator, tariffName string, day calendar.Date) (*Resolution, error) {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		metrics.IncTariffResolve(metrics.ResolveError)
		return nil, tariff.ErrEmptyOperator
	}
	if day.IsZero() {
		metrics.IncTariffResolve(metrics.ResolveError)
		return nil, calendar.ErrInvalidDate
	}

	rows, err := r.catalog.ListByOperator(ctx, operator)
	if err != nil {
		metrics.IncTariffResolve(metrics.ResolveError)
		return nil, fmt.Errorf("tariff resolver: list %s: %w", operator, err)
	}

	candidates := make([]tariff.GridTariff, 0, 1)
	for _, row := range rows {
		if !strings.EqualFold(row.Operator, operator) {
			continue
		}
		if tariffName != "" && row.TariffName != tariffName {
			continue
		}
		if row.ValidOn(day) {
			candidates = append(candidates, row)
		}
	}

	if len(candidates) == 0 {
		metrics.IncTariffResolve(metrics.ResolveNotFound)
		return nil, fmt.Errorf("%w: operator=%s tariff=%q date=%s", tariff.ErrTariffNotFound, operator, tariffName, day)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].ValidFrom != candidates[j].ValidFrom {
			return candidates[j].ValidFrom.Before(candidates[i].ValidFrom)
		}
		return candidates[i].TariffName < candidates[j].TariffName
	})

	res := &Resolution{Tariff: candidates[0]}
	if len(candidates) > 1 {
		ids := make([]string, 0, len(candidates))
		for _, c := range candidates {
			ids = append(ids, c.ID)
		}
		w := DataIntegrityWarning{
			Kind:       WarningOverlappingValidity,
			Operator:   operator,
			TariffName: tariffName,
			Message:    fmt.Sprintf("%d tariff versions valid on %s, using valid_from %s", len(candidates), day, candidates[0].ValidFrom),
			TariffIDs:  ids,
		}
		res.Warnings = append(res.Warnings, w)
		metrics.IncIntegrityWarning(w.Kind)
		r.logger.Warn("tariff resolution ambiguous",
			zap.String("event", "tariff_integrity_warning"),
			zap.String("operator", operator),
			zap.String("tariff_name", tariffName),
			zap.Stringer("date", day),
			zap.Strings("tariff_ids", ids),
		)
	}

	metrics.IncTariffResolve(metrics.ResolveFound)
	return res, nil
}

// Operators lists the operators present in the catalog.
func (r *Resolver) Operators(ctx context.Context) ([]string, error) {
	ops, err := r.catalog.ListOperators(ctx)
	if err != nil {
		return nil, fmt.Errorf("tariff resolver: list operators: %w", err)
	}
	sort.Strings(ops)
	return ops, nil
}

// CheckOverlaps reports every pair of versions of the same (operator, tariff_name)
// whose validity intervals intersect.
func CheckOverlaps(rows []tariff.GridTariff) []DataIntegrityWarning {
	groups := make(map[string][]tariff.GridTariff)
	keys := make([]string, 0)
	for _, row := range rows {
		k := row.Key()
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], row)
	}
	sort.Strings(keys)

	var out []DataIntegrityWarning
	for _, k := range keys {
		group := groups[k]
		sort.SliceStable(group, func(i, j int) bool { return group[i].ValidFrom.Before(group[j].ValidFrom) })
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if !group[i].Overlaps(group[j]) {
					continue
				}
				out = append(out, DataIntegrityWarning{
					Kind:       WarningOverlappingValidity,
					Operator:   group[i].Operator,
					TariffName: group[i].TariffName,
					Message:    fmt.Sprintf("versions from %s and %s overlap", group[i].ValidFrom, group[j].ValidFrom),
					TariffIDs:  []string{group[i].ID, group[j].ID},
				})
			}
		}
	}
	return out
}

// CheckCatalog runs CheckOverlaps over one operator's catalog rows.
func (r *Resolver) CheckCatalog(ctx context.Context, operator string) ([]DataIntegrityWarning, error) {
	rows, err := r.catalog.ListByOperator(ctx, operator)
	if err != nil {
		return nil, fmt.Errorf("tariff resolver: list %s: %w", operator, err)
	}
	warnings := CheckOverlaps(rows)
	for _, w := range warnings {
		metrics.IncIntegrityWarning(w.Kind)
	}
	return warnings, nil
}
