package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	tariff "derivatio-energy/internal/tariff/domain"
)

// Catalog is an in-memory tariff repository.
type Catalog struct {
	mu   sync.RWMutex
	rows []tariff.GridTariff
}

// NewCatalog constructs a catalog seeded with rows.
func NewCatalog(rows ...tariff.GridTariff) *Catalog {
	c := &Catalog{}
	for _, row := range rows {
		c.rows = append(c.rows, clone(row))
	}
	return c
}

// Save validates and appends a tariff version, rejecting overlaps within the same series.
func (c *Catalog) Save(ctx context.Context, t *tariff.GridTariff) error {
	_ = ctx
	if t == nil {
		return tariff.ErrNilTariff
	}
	if err := t.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range c.rows {
		if row.Key() == t.Key() && row.Overlaps(*t) {
			return tariff.ErrOverlappingValidity
		}
	}
	c.rows = append(c.rows, clone(*t))
	return nil
}

// ListByOperator returns copies of the operator's rows.
func (c *Catalog) ListByOperator(ctx context.Context, operator string) ([]tariff.GridTariff, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]tariff.GridTariff, 0)
	for _, row := range c.rows {
		if strings.EqualFold(row.Operator, operator) {
			out = append(out, clone(row))
		}
	}
	return out, nil
}

// ListOperators returns distinct lowercase operators.
func (c *Catalog) ListOperators(ctx context.Context) ([]string, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, row := range c.rows {
		op := strings.ToLower(row.Operator)
		if _, ok := seen[op]; ok {
			continue
		}
		seen[op] = struct{}{}
		out = append(out, op)
	}
	sort.Strings(out)
	return out, nil
}

func clone(t tariff.GridTariff) tariff.GridTariff {
	out := t
	if t.ValidTo != nil {
		v := *t.ValidTo
		out.ValidTo = &v
	}
	out.PeakMonths = append([]time.Month(nil), t.PeakMonths...)
	return out
}
