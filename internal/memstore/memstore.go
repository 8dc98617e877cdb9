// Package memstore is an in-memory implementation of the scheduler store.
// It backs the package tests and keeps the same transactional contract as
// the Postgres store: a WithTx closure either applies all of its writes or
// none of them, and transactions are fully serialized.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vaxsched/vaccine-scheduler/internal/scheduler"
)

type slotKey struct {
	caregiver string
	day       string
}

type state struct {
	slots        map[slotKey]struct{}
	vaccines     map[string]int
	reservations map[int]scheduler.Reservation
}

func newState() state {
	return state{
		slots:        map[slotKey]struct{}{},
		vaccines:     map[string]int{},
		reservations: map[int]scheduler.Reservation{},
	}
}

func (st state) clone() state {
	c := state{
		slots:        make(map[slotKey]struct{}, len(st.slots)),
		vaccines:     make(map[string]int, len(st.vaccines)),
		reservations: make(map[int]scheduler.Reservation, len(st.reservations)),
	}
	for k := range st.slots {
		c.slots[k] = struct{}{}
	}
	for k, v := range st.vaccines {
		c.vaccines[k] = v
	}
	for k, v := range st.reservations {
		c.reservations[k] = v
	}
	return c
}

type Store struct {
	mu sync.Mutex
	st state
}

func New() *Store {
	return &Store{st: newState()}
}

func dayKey(day time.Time) string {
	return day.Format(scheduler.DateLayout)
}

// WithTx serializes all transactions behind one mutex and restores a
// snapshot when fn fails, so partial mutations never survive.
func (s *Store) WithTx(ctx context.Context, fn func(tx scheduler.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(txView{s: s}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// WithDayLock satisfies the locker contract trivially: WithTx already
// serializes every mutation.
func (s *Store) WithDayLock(ctx context.Context, day string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *Store) Availability() scheduler.AvailabilityRepo {
	return availabilityView{view{s: s}}
}

func (s *Store) Inventory() scheduler.InventoryRepo {
	return inventoryView{view{s: s}}
}

func (s *Store) Reservations() scheduler.ReservationRepo {
	return reservationView{view{s: s}}
}

// txView hands out repo views that skip locking: the transaction already
// holds the store mutex.
type txView struct {
	s *Store
}

func (t txView) Availability() scheduler.AvailabilityRepo {
	return availabilityView{view{s: t.s, inTx: true}}
}

func (t txView) Inventory() scheduler.InventoryRepo {
	return inventoryView{view{s: t.s, inTx: true}}
}

func (t txView) Reservations() scheduler.ReservationRepo {
	return reservationView{view{s: t.s, inTx: true}}
}

type view struct {
	s    *Store
	inTx bool
}

func (v view) locked(fn func(st *state) error) error {
	if !v.inTx {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	return fn(&v.s.st)
}

// Availability board

type availabilityView struct {
	view
}

func (r availabilityView) Publish(ctx context.Context, caregiver string, day time.Time) error {
	return r.locked(func(st *state) error {
		key := slotKey{caregiver: caregiver, day: dayKey(day)}
		if _, ok := st.slots[key]; ok {
			return scheduler.ErrDuplicateSlot
		}
		st.slots[key] = struct{}{}
		return nil
	})
}

func (r availabilityView) FirstOpenForDate(ctx context.Context, day time.Time) (string, error) {
	caregivers, err := r.ListForDate(ctx, day)
	if err != nil {
		return "", err
	}
	if len(caregivers) == 0 {
		return "", scheduler.ErrNoCaregiverAvailable
	}
	return caregivers[0], nil
}

func (r availabilityView) ListForDate(ctx context.Context, day time.Time) ([]string, error) {
	var result []string
	err := r.locked(func(st *state) error {
		dk := dayKey(day)
		for key := range st.slots {
			if key.day == dk {
				result = append(result, key.caregiver)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(result)
	return result, nil
}

func (r availabilityView) Remove(ctx context.Context, caregiver string, day time.Time) error {
	return r.locked(func(st *state) error {
		key := slotKey{caregiver: caregiver, day: dayKey(day)}
		if _, ok := st.slots[key]; !ok {
			return scheduler.ErrSlotNotFound
		}
		delete(st.slots, key)
		return nil
	})
}

func (r availabilityView) Restore(ctx context.Context, caregiver string, day time.Time) error {
	return r.Publish(ctx, caregiver, day)
}

// Inventory ledger

type inventoryView struct {
	view
}

func (r inventoryView) Get(ctx context.Context, name string) (*scheduler.VaccineStock, error) {
	var stock *scheduler.VaccineStock
	err := r.locked(func(st *state) error {
		doses, ok := st.vaccines[name]
		if !ok {
			return scheduler.ErrVaccineNotFound
		}
		stock = &scheduler.VaccineStock{Name: name, Doses: doses}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stock, nil
}

func (r inventoryView) Create(ctx context.Context, name string, doses int) error {
	return r.locked(func(st *state) error {
		if _, ok := st.vaccines[name]; ok {
			return scheduler.ErrVaccineExists
		}
		st.vaccines[name] = doses
		return nil
	})
}

func (r inventoryView) Increase(ctx context.Context, name string, delta int) error {
	return r.locked(func(st *state) error {
		if _, ok := st.vaccines[name]; !ok {
			return scheduler.ErrVaccineNotFound
		}
		st.vaccines[name] += delta
		return nil
	})
}

func (r inventoryView) Decrease(ctx context.Context, name string, delta int) error {
	return r.locked(func(st *state) error {
		doses, ok := st.vaccines[name]
		if !ok {
			return scheduler.ErrVaccineNotFound
		}
		if doses < delta {
			return scheduler.ErrInsufficientStock
		}
		st.vaccines[name] = doses - delta
		return nil
	})
}

func (r inventoryView) ListInStock(ctx context.Context) ([]scheduler.VaccineStock, error) {
	var result []scheduler.VaccineStock
	err := r.locked(func(st *state) error {
		for name, doses := range st.vaccines {
			if doses > 0 {
				result = append(result, scheduler.VaccineStock{Name: name, Doses: doses})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Reservation ledger

type reservationView struct {
	view
}

func (r reservationView) NextAppointmentID(ctx context.Context) (int, error) {
	next := 1
	err := r.locked(func(st *state) error {
		for id := range st.reservations {
			if id >= next {
				next = id + 1
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r reservationView) Create(ctx context.Context, res scheduler.Reservation) error {
	return r.locked(func(st *state) error {
		if _, ok := st.reservations[res.AppointmentID]; ok {
			return scheduler.ErrDuplicateID
		}
		st.reservations[res.AppointmentID] = res
		return nil
	})
}

func (r reservationView) FindByID(ctx context.Context, id int) (*scheduler.Reservation, error) {
	var found *scheduler.Reservation
	err := r.locked(func(st *state) error {
		res, ok := st.reservations[id]
		if !ok {
			return scheduler.ErrReservationNotFound
		}
		found = &res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (r reservationView) Delete(ctx context.Context, id int) error {
	return r.locked(func(st *state) error {
		if _, ok := st.reservations[id]; !ok {
			return scheduler.ErrReservationNotFound
		}
		delete(st.reservations, id)
		return nil
	})
}

func (r reservationView) listBy(match func(scheduler.Reservation) bool) ([]scheduler.Reservation, error) {
	var result []scheduler.Reservation
	err := r.locked(func(st *state) error {
		for _, res := range st.reservations {
			if match(res) {
				result = append(result, res)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AppointmentID < result[j].AppointmentID })
	return result, nil
}

func (r reservationView) ListByCaregiver(ctx context.Context, caregiver string) ([]scheduler.Reservation, error) {
	return r.listBy(func(res scheduler.Reservation) bool { return res.Caregiver == caregiver })
}

func (r reservationView) ListByPatient(ctx context.Context, patient string) ([]scheduler.Reservation, error) {
	return r.listBy(func(res scheduler.Reservation) bool { return res.Patient == patient })
}
