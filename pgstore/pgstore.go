// Package pgstore persists division records in PostgreSQL.
package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	divisions "github.com/armindomatias/go-divisions"
)

// Store reads and writes the divisions table.
type Store struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL, waiting for it to accept connections, and
// applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS divisions (
	listing_id           TEXT        NOT NULL,
	division_id          TEXT        NOT NULL,
	room_type            TEXT        NOT NULL,
	bucket               TEXT        NOT NULL,
	position             INTEGER     NOT NULL,
	run_id               TEXT        NOT NULL DEFAULT '',
	images               TEXT[]      NOT NULL DEFAULT '{}',
	num_source_images    INTEGER     NOT NULL,
	size_m2              INTEGER,
	overall_condition    NUMERIC(3,1),
	appliances_condition NUMERIC(3,1),
	plumbing_condition   NUMERIC(3,1),
	electrical_condition NUMERIC(3,1),
	flooring_condition   NUMERIC(3,1),
	ceiling_condition    NUMERIC(3,1),
	painting_condition   NUMERIC(3,1),
	windows_condition    NUMERIC(3,1),
	windows_number       INTEGER,
	detailed_notes       TEXT        NOT NULL DEFAULT '',
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (listing_id, bucket, position)
);

CREATE INDEX IF NOT EXISTS idx_divisions_room_type ON divisions(room_type);
`

// Migrate creates the table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const insertDivision = `
INSERT INTO divisions (
	listing_id, division_id, room_type, bucket, position, run_id, images, num_source_images,
	size_m2, overall_condition, appliances_condition, plumbing_condition, electrical_condition,
	flooring_condition, ceiling_condition, painting_condition, windows_condition, windows_number,
	detailed_notes
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`

// Save replaces every stored division of listingID with byType in a single
// transaction.
func (s *Store) Save(ctx context.Context, listingID, runID string, byType map[string][]divisions.DivisionRecord) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM divisions WHERE listing_id = $1`, listingID); err != nil {
		return fmt.Errorf("postgres: clear listing %s: %w", listingID, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertDivision)
	if err != nil {
		return fmt.Errorf("postgres: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, bucket := range sortedKeys(byType) {
		for pos, d := range byType[bucket] {
			_, err = stmt.ExecContext(ctx,
				listingID, d.DivisionID, d.RoomType, bucket, pos, runID, pq.Array(d.Images), d.NumSourceImages,
				nullInt(d.SizeM2), nullFloat(d.OverallCondition), nullFloat(d.AppliancesCondition),
				nullFloat(d.PlumbingCondition), nullFloat(d.ElectricalCondition), nullFloat(d.FlooringCondition),
				nullFloat(d.CeilingCondition), nullFloat(d.PaintingCondition), nullFloat(d.WindowsCondition),
				nullInt(d.WindowsNumber), d.DetailedNotes,
			)
			if err != nil {
				return fmt.Errorf("postgres: insert %s: %w", d.DivisionID, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

const selectDivisions = `
SELECT bucket, division_id, room_type, images, num_source_images,
	size_m2, overall_condition, appliances_condition, plumbing_condition, electrical_condition,
	flooring_condition, ceiling_condition, painting_condition, windows_condition, windows_number,
	detailed_notes
FROM divisions
WHERE listing_id = $1
ORDER BY bucket, position`

// Load returns the stored divisions of listingID grouped by room-type bucket.
// An unknown listing yields an empty map.
func (s *Store) Load(ctx context.Context, listingID string) (map[string][]divisions.DivisionRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectDivisions, listingID)
	if err != nil {
		return nil, fmt.Errorf("postgres: query divisions: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]divisions.DivisionRecord)
	for rows.Next() {
		var (
			bucket  string
			d       divisions.DivisionRecord
			size    sql.NullInt64
			windows sql.NullInt64
			conds   [8]sql.NullFloat64
		)
		if err := rows.Scan(
			&bucket, &d.DivisionID, &d.RoomType, pq.Array(&d.Images), &d.NumSourceImages,
			&size, &conds[0], &conds[1], &conds[2], &conds[3],
			&conds[4], &conds[5], &conds[6], &conds[7], &windows,
			&d.DetailedNotes,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan division: %w", err)
		}
		d.SizeM2 = intPtr(size)
		d.WindowsNumber = intPtr(windows)
		d.OverallCondition = floatPtr(conds[0])
		d.AppliancesCondition = floatPtr(conds[1])
		d.PlumbingCondition = floatPtr(conds[2])
		d.ElectricalCondition = floatPtr(conds[3])
		d.FlooringCondition = floatPtr(conds[4])
		d.CeilingCondition = floatPtr(conds[5])
		d.PaintingCondition = floatPtr(conds[6])
		d.WindowsCondition = floatPtr(conds[7])
		out[bucket] = append(out[bucket], d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate divisions: %w", err)
	}
	return out, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
