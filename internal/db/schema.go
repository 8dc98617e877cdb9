package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema statements are idempotent so every binary can apply them on startup.
// The uniqueness constraints and the non-negative doses check are load-bearing:
// the booking transaction relies on them as the last line of defense against
// interleaved writers.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		role       text NOT NULL,
		username   text NOT NULL,
		salt       bytea NOT NULL,
		hash       bytea NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (role, username)
	)`,
	`CREATE TABLE IF NOT EXISTS availabilities (
		caregiver_username text NOT NULL,
		day                date NOT NULL,
		PRIMARY KEY (caregiver_username, day)
	)`,
	`CREATE TABLE IF NOT EXISTS vaccines (
		name  text PRIMARY KEY,
		doses integer NOT NULL CHECK (doses >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		appointment_id     integer PRIMARY KEY,
		caregiver_username text NOT NULL,
		patient_username   text NOT NULL,
		vaccine_name       text NOT NULL,
		day                date NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_availabilities_day ON availabilities (day, caregiver_username)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_caregiver ON reservations (caregiver_username)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_patient ON reservations (patient_username)`,
}

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
