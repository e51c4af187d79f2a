package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RecordDelivery appends one processed-delivery row. Failures here are
// logged by callers but never fail the request that produced them.
func (s *Store) RecordDelivery(ctx context.Context, d Delivery) error {
	if d.ID == "" {
		return fmt.Errorf("delivery id is empty")
	}
	var extID any
	if d.InstallationExternalID != "" {
		extID = d.InstallationExternalID
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO deliveries(id, digest, event, installation_external_id, outcome, status, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, d.ID, d.Digest, d.Event, extID, d.Outcome, d.Status,
		d.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

// RecentDeliveries returns up to limit deliveries, newest first.
func (s *Store) RecentDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, digest, event, installation_external_id, outcome, status, created_at
FROM deliveries
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var (
			d          Delivery
			extID      sql.NullString
			createdAtS string
		)
		if err := rows.Scan(&d.ID, &d.Digest, &d.Event, &extID, &d.Outcome, &d.Status, &createdAtS); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		if extID.Valid {
			d.InstallationExternalID = extID.String
		}
		d.CreatedAt = parseStoredTime(createdAtS)
		out = append(out, d)
	}
	return out, rows.Err()
}
