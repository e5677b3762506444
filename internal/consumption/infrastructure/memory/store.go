package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"derivatio-energy/internal/auth"
	consumption "derivatio-energy/internal/consumption/domain"
)

// Store is an in-memory consumption store keyed by (property, timestamp).
type Store struct {
	mu     sync.RWMutex
	access auth.PropertyAccessChecker
	data   map[string]map[int64]consumption.Record
}

// NewStore constructs a store. A nil access checker allows every read.
func NewStore(access auth.PropertyAccessChecker) *Store {
	if access == nil {
		access = auth.AllowAll{}
	}
	return &Store{access: access, data: make(map[string]map[int64]consumption.Record)}
}

// SaveBatch implements consumption.Writer.
func (s *Store) SaveBatch(ctx context.Context, records []consumption.Record) error {
	_ = ctx
	for _, rec := range records {
		if rec.PropertyID == "" {
			return consumption.ErrEmptyPropertyID
		}
		if err := rec.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		byTS := s.data[rec.PropertyID]
		if byTS == nil {
			byTS = make(map[int64]consumption.Record)
			s.data[rec.PropertyID] = byTS
		}
		rec.Timestamp = rec.Timestamp.UTC()
		byTS[rec.Timestamp.UnixNano()] = rec
	}
	return nil
}

// ListByProperty implements consumption.Reader.
func (s *Store) ListByProperty(ctx context.Context, organizationID, propertyID string, from, to time.Time) ([]consumption.Record, error) {
	if propertyID == "" {
		return nil, consumption.ErrEmptyPropertyID
	}
	if !from.Before(to) {
		return nil, errors.New("consumption store: invalid range")
	}
	if err := s.access.EnsurePropertyAccess(ctx, organizationID, propertyID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []consumption.Record
	for _, rec := range s.data[propertyID] {
		if !rec.Timestamp.Before(from) && rec.Timestamp.Before(to) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
