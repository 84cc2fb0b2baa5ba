// Package persistence provides an optional price-history cache so the
// price port does not need to re-fetch ENTSO-E data on every restart.
// Grounded on scheduler/mpc_persistence.go's transaction/upsert pattern;
// kept strictly optional (a nil *Store is a no-op), matching SPEC_FULL's
// "no persistence required beyond memory" baseline.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PriceSlot is one hourly price-history record.
type PriceSlot struct {
	SlotTime    time.Time
	ImportPrice float64 // €/Wh, including operator fees
	FeedinPrice float64 // €/Wh
}

// Store is a Postgres-backed price-history cache. A nil *Store makes every
// method a no-op, so callers can wire it unconditionally and only pay for a
// database when PriceHistoryDSN is configured.
type Store struct {
	db *sql.DB
}

// Open connects to dsn and ensures the price_history table exists. Pass an
// empty dsn to disable persistence; Open then returns a nil *Store and nil
// error.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, nil
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: open failed: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: ping failed: %w", err)
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS price_history (
			slot_time    TIMESTAMPTZ PRIMARY KEY,
			import_price DOUBLE PRECISION NOT NULL,
			feedin_price DOUBLE PRECISION NOT NULL
		)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: schema init failed: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying connection. Safe to call on a nil *Store.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// SaveSlots upserts a batch of price-history records inside one
// transaction, mirroring saveMPCDecisions's delete-then-insert-per-row
// shape but using ON CONFLICT since price slots are looked up individually
// rather than by a range delete.
func (s *Store) SaveSlots(ctx context.Context, slots []PriceSlot) error {
	if s == nil || len(slots) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persistence: begin transaction failed: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_history (slot_time, import_price, feedin_price)
		VALUES ($1, $2, $3)
		ON CONFLICT (slot_time) DO UPDATE SET
			import_price = EXCLUDED.import_price,
			feedin_price = EXCLUDED.feedin_price
	`)
	if err != nil {
		return fmt.Errorf("persistence: prepare statement failed: %w", err)
	}
	defer stmt.Close()

	for _, slot := range slots {
		if _, err := stmt.ExecContext(ctx, slot.SlotTime, slot.ImportPrice, slot.FeedinPrice); err != nil {
			return fmt.Errorf("persistence: insert slot %s failed: %w", slot.SlotTime, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persistence: commit failed: %w", err)
	}
	return nil
}

// LoadSince returns cached slots with SlotTime >= since, ordered
// chronologically. Returns an empty slice (not an error) on a nil *Store.
func (s *Store) LoadSince(ctx context.Context, since time.Time) ([]PriceSlot, error) {
	if s == nil {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT slot_time, import_price, feedin_price
		FROM price_history
		WHERE slot_time >= $1
		ORDER BY slot_time ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("persistence: query failed: %w", err)
	}
	defer rows.Close()

	var slots []PriceSlot
	for rows.Next() {
		var slot PriceSlot
		if err := rows.Scan(&slot.SlotTime, &slot.ImportPrice, &slot.FeedinPrice); err != nil {
			return nil, fmt.Errorf("persistence: scan failed: %w", err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("persistence: row iteration failed: %w", err)
	}
	return slots, nil
}
