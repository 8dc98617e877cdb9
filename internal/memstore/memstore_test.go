package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaxsched/vaccine-scheduler/internal/memstore"
	"github.com/vaxsched/vaccine-scheduler/internal/scheduler"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := scheduler.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	d := day(t, "2021-05-01")

	require.NoError(t, store.Inventory().Create(ctx, "moderna", 5))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx scheduler.Tx) error {
		require.NoError(t, tx.Availability().Publish(ctx, "carla", d))
		require.NoError(t, tx.Inventory().Decrease(ctx, "moderna", 3))
		require.NoError(t, tx.Reservations().Create(ctx, scheduler.Reservation{
			AppointmentID: 1,
			Caregiver:     "carla",
			Patient:       "pat",
			Vaccine:       "moderna",
			Day:           d,
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Every write inside the failed transaction is gone.
	_, err = store.Availability().FirstOpenForDate(ctx, d)
	assert.ErrorIs(t, err, scheduler.ErrNoCaregiverAvailable)

	stock, err := store.Inventory().Get(ctx, "moderna")
	require.NoError(t, err)
	assert.Equal(t, 5, stock.Doses)

	_, err = store.Reservations().FindByID(ctx, 1)
	assert.ErrorIs(t, err, scheduler.ErrReservationNotFound)
}

func TestWithTxCommits(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	d := day(t, "2021-05-01")

	err := store.WithTx(ctx, func(tx scheduler.Tx) error {
		return tx.Availability().Publish(ctx, "carla", d)
	})
	require.NoError(t, err)

	caregiver, err := store.Availability().FirstOpenForDate(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, "carla", caregiver)
}

func TestAvailability(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	d := day(t, "2021-05-01")
	other := day(t, "2021-05-02")

	repo := store.Availability()

	require.NoError(t, repo.Publish(ctx, "carla", d))
	assert.ErrorIs(t, repo.Publish(ctx, "carla", d), scheduler.ErrDuplicateSlot)

	// Same caregiver on another day is a different slot.
	require.NoError(t, repo.Publish(ctx, "carla", other))
	require.NoError(t, repo.Publish(ctx, "alice", d))

	list, err := repo.ListForDate(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carla"}, list)

	require.NoError(t, repo.Remove(ctx, "alice", d))
	assert.ErrorIs(t, repo.Remove(ctx, "alice", d), scheduler.ErrSlotNotFound)

	require.NoError(t, repo.Restore(ctx, "alice", d))
	assert.ErrorIs(t, repo.Restore(ctx, "alice", d), scheduler.ErrDuplicateSlot)
}

func TestInventory(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	repo := store.Inventory()

	_, err := repo.Get(ctx, "moderna")
	assert.ErrorIs(t, err, scheduler.ErrVaccineNotFound)
	assert.ErrorIs(t, repo.Increase(ctx, "moderna", 1), scheduler.ErrVaccineNotFound)
	assert.ErrorIs(t, repo.Decrease(ctx, "moderna", 1), scheduler.ErrVaccineNotFound)

	require.NoError(t, repo.Create(ctx, "moderna", 2))
	assert.ErrorIs(t, repo.Create(ctx, "moderna", 2), scheduler.ErrVaccineExists)

	assert.ErrorIs(t, repo.Decrease(ctx, "moderna", 3), scheduler.ErrInsufficientStock)
	require.NoError(t, repo.Decrease(ctx, "moderna", 2))

	stock, err := repo.Get(ctx, "moderna")
	require.NoError(t, err)
	assert.Equal(t, 0, stock.Doses)

	// Zero-dose vaccines are filtered from the in-stock listing.
	require.NoError(t, repo.Create(ctx, "pfizer", 4))
	inStock, err := repo.ListInStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, []scheduler.VaccineStock{{Name: "pfizer", Doses: 4}}, inStock)
}

func TestReservations(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	repo := store.Reservations()
	d := day(t, "2021-05-01")

	next, err := repo.NextAppointmentID(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	res := scheduler.Reservation{AppointmentID: 7, Caregiver: "carla", Patient: "pat", Vaccine: "moderna", Day: d}
	require.NoError(t, repo.Create(ctx, res))
	assert.ErrorIs(t, repo.Create(ctx, res), scheduler.ErrDuplicateID)

	next, err = repo.NextAppointmentID(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, next)

	found, err := repo.FindByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, res, *found)

	byCaregiver, err := repo.ListByCaregiver(ctx, "carla")
	require.NoError(t, err)
	assert.Len(t, byCaregiver, 1)

	byPatient, err := repo.ListByPatient(ctx, "someone-else")
	require.NoError(t, err)
	assert.Empty(t, byPatient)

	require.NoError(t, repo.Delete(ctx, 7))
	assert.ErrorIs(t, repo.Delete(ctx, 7), scheduler.ErrReservationNotFound)
}
