package audit

import (
	"context"
	"database/sql"
	"errors"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// Repository stores entries in the audit_logs table.
type Repository struct {
	db *sql.DB
}

// NewRepository returns nil for a nil db.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log implements Logger.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	if entry.OrganizationID == "" {
		return errors.New("audit repo: empty organization id")
	}
	entry = normalize(entry)

	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_logs (
	id, organization_id, actor, role, action, resource_type, resource_id, property_id,
	metadata, payload_digest, ip, user_agent, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12, $13)`,
		entry.ID, entry.OrganizationID, entry.Actor, entry.Role, entry.Action, entry.ResourceType, entry.ResourceID,
		entry.PropertyID, metadataParam(entry.Metadata), entry.PayloadDigest, entry.IP, entry.UserAgent, entry.CreatedAt)
	return err
}

// List implements Lister.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("audit repo: nil db")
	}
	if filter.OrganizationID == "" {
		return nil, errors.New("audit repo: empty organization id")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, organization_id, actor, role, action, resource_type, resource_id, COALESCE(property_id, ''),
	COALESCE(metadata::text, ''), payload_digest, ip, user_agent, created_at
FROM audit_logs
WHERE organization_id = $1
	AND ($2 = '' OR property_id = $2)
	AND ($3 = '' OR action = $3)
ORDER BY created_at DESC, id DESC
LIMIT $4`, filter.OrganizationID, filter.PropertyID, filter.Action, clampLimit(filter.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			meta string
		)
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.Actor, &e.Role, &e.Action, &e.ResourceType, &e.ResourceID,
			&e.PropertyID, &meta, &e.PayloadDigest, &e.IP, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		if meta != "" {
			e.Metadata = []byte(meta)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return defaultListLimit
	}
	return limit
}

func metadataParam(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}
