package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	redisclient "github.com/vaxsched/vaccine-scheduler/internal/redis"
)

// Service is the booking and inventory engine. Every mutating operation
// spans the availability board, the inventory ledger and the reservation
// ledger, and runs as one storage transaction so the three move together
// or not at all. Reserve additionally holds the per-day lock to shrink the
// window in which concurrent bookers serialize against each other; the
// transaction remains the correctness backstop when the lock expires or
// another process bypasses it.
type Service struct {
	store  Store
	locker redisclient.Locker
}

func NewService(store Store, locker redisclient.Locker) *Service {
	return &Service{
		store:  store,
		locker: locker,
	}
}

// Reserve books the lexicographically first available caregiver on day for
// the given vaccine, on behalf of the patient in sess.
func (s *Service) Reserve(ctx context.Context, sess Session, day time.Time, vaccine string) (*Booking, error) {
	if !sess.LoggedIn() {
		return nil, ErrNotLoggedIn
	}
	if sess.Role != RolePatient {
		return nil, ErrWrongRole
	}

	var booking *Booking

	err := s.locker.WithDayLock(ctx, day.Format(DateLayout), func(lockCtx context.Context) error {
		return s.store.WithTx(lockCtx, func(tx Tx) error {
			stock, err := tx.Inventory().Get(lockCtx, vaccine)
			if err != nil {
				return err
			}
			if stock.Doses == 0 {
				return ErrInsufficientStock
			}

			caregiver, err := tx.Availability().FirstOpenForDate(lockCtx, day)
			if err != nil {
				return err
			}

			id, err := tx.Reservations().NextAppointmentID(lockCtx)
			if err != nil {
				return err
			}

			if err := tx.Reservations().Create(lockCtx, Reservation{
				AppointmentID: id,
				Caregiver:     caregiver,
				Patient:       sess.Username,
				Vaccine:       vaccine,
				Day:           day,
			}); err != nil {
				return err
			}

			if err := tx.Availability().Remove(lockCtx, caregiver, day); err != nil {
				return err
			}

			if err := tx.Inventory().Decrease(lockCtx, vaccine, 1); err != nil {
				return err
			}

			booking = &Booking{AppointmentID: id, Caregiver: caregiver}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, fmt.Errorf("%w: day is being booked", ErrConflict)
		}
		return nil, err
	}

	return booking, nil
}

// Cancel deletes the reservation, restores the consumed slot and returns
// the dose to stock. The dose comes back regardless of which authorized
// party cancels: it was committed by the booking, and cancellation undoes
// the booking. Authorization, not the refund, is what distinguishes the
// two actors.
func (s *Service) Cancel(ctx context.Context, sess Session, appointmentID int) error {
	if !sess.LoggedIn() {
		return ErrNotLoggedIn
	}

	return s.store.WithTx(ctx, func(tx Tx) error {
		res, err := tx.Reservations().FindByID(ctx, appointmentID)
		if err != nil {
			return err
		}

		switch sess.Role {
		case RolePatient:
			if res.Patient != sess.Username {
				return ErrNotAuthorized
			}
		case RoleCaregiver:
			if res.Caregiver != sess.Username {
				return ErrNotAuthorized
			}
		default:
			return ErrNotAuthorized
		}

		if err := tx.Reservations().Delete(ctx, appointmentID); err != nil {
			return err
		}

		if err := tx.Availability().Restore(ctx, res.Caregiver, res.Day); err != nil {
			return err
		}

		if err := tx.Inventory().Increase(ctx, res.Vaccine, 1); err != nil {
			return err
		}

		return nil
	})
}

// UploadAvailability publishes a slot for the caregiver in sess on day.
func (s *Service) UploadAvailability(ctx context.Context, sess Session, day time.Time) error {
	if !sess.LoggedIn() {
		return ErrNotLoggedIn
	}
	if sess.Role != RoleCaregiver {
		return ErrWrongRole
	}

	return s.store.WithTx(ctx, func(tx Tx) error {
		return tx.Availability().Publish(ctx, sess.Username, day)
	})
}

// AddDoses creates the vaccine with count doses on first sight, otherwise
// increases the existing stock.
func (s *Service) AddDoses(ctx context.Context, sess Session, vaccine string, count int) error {
	if !sess.LoggedIn() {
		return ErrNotLoggedIn
	}
	if sess.Role != RoleCaregiver {
		return ErrWrongRole
	}
	if count <= 0 {
		return ErrInvalidDoseCount
	}

	return s.store.WithTx(ctx, func(tx Tx) error {
		_, err := tx.Inventory().Get(ctx, vaccine)
		if errors.Is(err, ErrVaccineNotFound) {
			return tx.Inventory().Create(ctx, vaccine, count)
		}
		if err != nil {
			return err
		}
		return tx.Inventory().Increase(ctx, vaccine, count)
	})
}

// SearchSchedule returns the open caregivers for day plus every vaccine
// with remaining doses. Read-only.
func (s *Service) SearchSchedule(ctx context.Context, sess Session, day time.Time) (*Schedule, error) {
	if !sess.LoggedIn() {
		return nil, ErrNotLoggedIn
	}

	caregivers, err := s.store.Availability().ListForDate(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("search schedule: %w", err)
	}

	vaccines, err := s.store.Inventory().ListInStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("search schedule: %w", err)
	}

	return &Schedule{Caregivers: caregivers, Vaccines: vaccines}, nil
}

// ListAppointments returns the caller's own reservations, with the
// counterparty username filled in from the caller's perspective.
func (s *Service) ListAppointments(ctx context.Context, sess Session) ([]Appointment, error) {
	if !sess.LoggedIn() {
		return nil, ErrNotLoggedIn
	}

	var (
		reservations []Reservation
		err          error
	)
	switch sess.Role {
	case RoleCaregiver:
		reservations, err = s.store.Reservations().ListByCaregiver(ctx, sess.Username)
	default:
		reservations, err = s.store.Reservations().ListByPatient(ctx, sess.Username)
	}
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	result := make([]Appointment, 0, len(reservations))
	for _, res := range reservations {
		result = append(result, Appointment{
			AppointmentID: res.AppointmentID,
			Vaccine:       res.Vaccine,
			Day:           res.Day,
			Counterparty:  res.Counterparty(sess),
		})
	}
	return result, nil
}
