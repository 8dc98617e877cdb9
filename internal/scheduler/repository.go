package scheduler

import (
	"context"
	"errors"
	"time"
)

var (
	// Not-found family.
	ErrVaccineNotFound      = errors.New("vaccine not found")
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrSlotNotFound         = errors.New("availability slot not found")
	ErrNoCaregiverAvailable = errors.New("no caregiver available")

	// Conflict family. All of these are retryable from the caller's side.
	ErrDuplicateSlot     = errors.New("availability slot already exists")
	ErrDuplicateID       = errors.New("appointment id already exists")
	ErrVaccineExists     = errors.New("vaccine already exists")
	ErrInsufficientStock = errors.New("not enough available doses")
	ErrConflict          = errors.New("concurrent update conflict, please retry")

	// Session family.
	ErrNotLoggedIn     = errors.New("not logged in")
	ErrAlreadyLoggedIn = errors.New("already logged in")
	ErrWrongRole       = errors.New("operation not permitted for this role")
	ErrNotAuthorized   = errors.New("not authorized for this reservation")

	ErrInvalidDoseCount = errors.New("dose count must be a positive integer")
)

// AvailabilityRepo owns the set of open (caregiver, day) slots.
type AvailabilityRepo interface {
	// Publish inserts a new slot. ErrDuplicateSlot if the pair is already open.
	Publish(ctx context.Context, caregiver string, day time.Time) error
	// FirstOpenForDate returns the lexicographically smallest caregiver
	// username with an open slot on day. ErrNoCaregiverAvailable if none.
	FirstOpenForDate(ctx context.Context, day time.Time) (string, error)
	// ListForDate returns caregivers with an open slot, ascending by username.
	ListForDate(ctx context.Context, day time.Time) ([]string, error)
	// Remove deletes the slot. ErrSlotNotFound if absent.
	Remove(ctx context.Context, caregiver string, day time.Time) error
	// Restore re-inserts a slot after a cancellation. ErrDuplicateSlot if the
	// slot is somehow already open, which indicates a ledger desync and is
	// reported rather than swallowed.
	Restore(ctx context.Context, caregiver string, day time.Time) error
}

// InventoryRepo owns vaccine dose counts.
type InventoryRepo interface {
	Get(ctx context.Context, name string) (*VaccineStock, error)
	Create(ctx context.Context, name string, doses int) error
	Increase(ctx context.Context, name string, delta int) error
	// Decrease subtracts delta without ever letting the count go negative.
	// ErrInsufficientStock if doses < delta.
	Decrease(ctx context.Context, name string, delta int) error
	// ListInStock returns all vaccines with doses > 0, ascending by name.
	ListInStock(ctx context.Context) ([]VaccineStock, error)
}

// ReservationRepo owns booked appointments.
type ReservationRepo interface {
	// NextAppointmentID is max(existing)+1, or 1 when empty, computed from
	// the persisted state at call time. Never cached.
	NextAppointmentID(ctx context.Context) (int, error)
	Create(ctx context.Context, r Reservation) error
	FindByID(ctx context.Context, id int) (*Reservation, error)
	Delete(ctx context.Context, id int) error
	ListByCaregiver(ctx context.Context, caregiver string) ([]Reservation, error)
	ListByPatient(ctx context.Context, patient string) ([]Reservation, error)
}

// Tx bundles the three ledgers behind one consistency boundary.
type Tx interface {
	Availability() AvailabilityRepo
	Inventory() InventoryRepo
	Reservations() ReservationRepo
}

// Store is a Tx whose repos run in autocommit mode, plus the ability to run
// a closure inside one serializable transaction. WithTx commits when fn
// returns nil and rolls back on any error, so a failing multi-ledger
// mutation leaves no partial write behind. Serialization losers surface as
// ErrConflict.
type Store interface {
	Tx
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
