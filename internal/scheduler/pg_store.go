package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same repo
// code serves autocommit reads and transactional mutations.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgStore struct {
	pool *pgxpool.Pool
	q    querier
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, q: pool}
}

func (s *PgStore) Availability() AvailabilityRepo { return &pgAvailability{q: s.q} }
func (s *PgStore) Inventory() InventoryRepo       { return &pgInventory{q: s.q} }
func (s *PgStore) Reservations() ReservationRepo  { return &pgReservations{q: s.q} }

// WithTx runs fn inside one serializable transaction. The serializable
// level is what closes the lost-update window between reading a dose count
// and writing it back: a losing transaction fails with SQLSTATE 40001 and
// is reported as ErrConflict instead of committing a stale write.
func (s *PgStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	pgtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer pgtx.Rollback(ctx)

	if err := fn(&PgStore{pool: s.pool, q: pgtx}); err != nil {
		return mapRetryable(err)
	}

	if err := pgtx.Commit(ctx); err != nil {
		return mapRetryable(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// mapRetryable folds serialization and deadlock failures into ErrConflict.
func mapRetryable(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Availability board

type pgAvailability struct {
	q querier
}

func (r *pgAvailability) Publish(ctx context.Context, caregiver string, day time.Time) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO availabilities (caregiver_username, day)
		VALUES ($1, $2)
	`, caregiver, day)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSlot
		}
		return fmt.Errorf("publish availability: %w", err)
	}
	return nil
}

func (r *pgAvailability) FirstOpenForDate(ctx context.Context, day time.Time) (string, error) {
	var caregiver string
	err := r.q.QueryRow(ctx, `
		SELECT caregiver_username
		FROM availabilities
		WHERE day = $1
		ORDER BY caregiver_username
		LIMIT 1
	`, day).Scan(&caregiver)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNoCaregiverAvailable
		}
		return "", fmt.Errorf("first open for date: %w", err)
	}
	return caregiver, nil
}

func (r *pgAvailability) ListForDate(ctx context.Context, day time.Time) ([]string, error) {
	rows, err := r.q.Query(ctx, `
		SELECT caregiver_username
		FROM availabilities
		WHERE day = $1
		ORDER BY caregiver_username
	`, day)
	if err != nil {
		return nil, fmt.Errorf("list availabilities: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var caregiver string
		if err := rows.Scan(&caregiver); err != nil {
			return nil, err
		}
		result = append(result, caregiver)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *pgAvailability) Remove(ctx context.Context, caregiver string, day time.Time) error {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM availabilities
		WHERE caregiver_username = $1 AND day = $2
	`, caregiver, day)
	if err != nil {
		return fmt.Errorf("remove availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *pgAvailability) Restore(ctx context.Context, caregiver string, day time.Time) error {
	return r.Publish(ctx, caregiver, day)
}

// Inventory ledger

type pgInventory struct {
	q querier
}

func scanVaccine(row pgx.Row) (*VaccineStock, error) {
	var v VaccineStock
	err := row.Scan(&v.Name, &v.Doses)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVaccineNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (r *pgInventory) Get(ctx context.Context, name string) (*VaccineStock, error) {
	row := r.q.QueryRow(ctx, `
		SELECT name, doses
		FROM vaccines
		WHERE name = $1
	`, name)
	return scanVaccine(row)
}

func (r *pgInventory) Create(ctx context.Context, name string, doses int) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO vaccines (name, doses)
		VALUES ($1, $2)
	`, name, doses)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrVaccineExists
		}
		return fmt.Errorf("create vaccine: %w", err)
	}
	return nil
}

func (r *pgInventory) Increase(ctx context.Context, name string, delta int) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE vaccines
		SET doses = doses + $2
		WHERE name = $1
	`, name, delta)
	if err != nil {
		return fmt.Errorf("increase doses: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVaccineNotFound
	}
	return nil
}

func (r *pgInventory) Decrease(ctx context.Context, name string, delta int) error {
	// The doses >= delta guard keeps the decrement atomic: a row that would
	// underflow simply is not updated.
	tag, err := r.q.Exec(ctx, `
		UPDATE vaccines
		SET doses = doses - $2
		WHERE name = $1 AND doses >= $2
	`, name, delta)
	if err != nil {
		return fmt.Errorf("decrease doses: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, gerr := r.Get(ctx, name); gerr != nil {
			return gerr
		}
		return ErrInsufficientStock
	}
	return nil
}

func (r *pgInventory) ListInStock(ctx context.Context) ([]VaccineStock, error) {
	rows, err := r.q.Query(ctx, `
		SELECT name, doses
		FROM vaccines
		WHERE doses > 0
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list vaccines: %w", err)
	}
	defer rows.Close()

	var result []VaccineStock
	for rows.Next() {
		var v VaccineStock
		if err := rows.Scan(&v.Name, &v.Doses); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Reservation ledger

type pgReservations struct {
	q querier
}

func scanReservation(row pgx.Row) (*Reservation, error) {
	var res Reservation
	err := row.Scan(&res.AppointmentID, &res.Caregiver, &res.Patient, &res.Vaccine, &res.Day)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	return &res, nil
}

func (r *pgReservations) NextAppointmentID(ctx context.Context) (int, error) {
	var next int
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(MAX(appointment_id), 0) + 1
		FROM reservations
	`).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next appointment id: %w", err)
	}
	return next, nil
}

func (r *pgReservations) Create(ctx context.Context, res Reservation) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO reservations (appointment_id, caregiver_username, patient_username, vaccine_name, day)
		VALUES ($1, $2, $3, $4, $5)
	`, res.AppointmentID, res.Caregiver, res.Patient, res.Vaccine, res.Day)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (r *pgReservations) FindByID(ctx context.Context, id int) (*Reservation, error) {
	row := r.q.QueryRow(ctx, `
		SELECT appointment_id, caregiver_username, patient_username, vaccine_name, day
		FROM reservations
		WHERE appointment_id = $1
	`, id)
	return scanReservation(row)
}

func (r *pgReservations) Delete(ctx context.Context, id int) error {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM reservations
		WHERE appointment_id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReservationNotFound
	}
	return nil
}

func (r *pgReservations) listBy(ctx context.Context, column, username string) ([]Reservation, error) {
	rows, err := r.q.Query(ctx, `
		SELECT appointment_id, caregiver_username, patient_username, vaccine_name, day
		FROM reservations
		WHERE `+column+` = $1
		ORDER BY appointment_id
	`, username)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var result []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *pgReservations) ListByCaregiver(ctx context.Context, caregiver string) ([]Reservation, error) {
	return r.listBy(ctx, "caregiver_username", caregiver)
}

func (r *pgReservations) ListByPatient(ctx context.Context, patient string) ([]Reservation, error) {
	return r.listBy(ctx, "patient_username", patient)
}
