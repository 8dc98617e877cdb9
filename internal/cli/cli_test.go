package cli_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaxsched/vaccine-scheduler/internal/auth"
	"github.com/vaxsched/vaccine-scheduler/internal/cli"
	"github.com/vaxsched/vaccine-scheduler/internal/memstore"
	"github.com/vaxsched/vaccine-scheduler/internal/scheduler"
)

func newRunner(t *testing.T) (*cli.Runner, *bytes.Buffer) {
	t.Helper()
	store := memstore.New()
	engine := scheduler.NewService(store, store)
	accounts := auth.NewService(memstore.NewAccounts())

	var out bytes.Buffer
	return cli.New(engine, accounts, &out), &out
}

// run feeds commands one by one and returns everything printed.
func run(t *testing.T, r *cli.Runner, out *bytes.Buffer, commands ...string) string {
	t.Helper()
	ctx := context.Background()
	for _, cmd := range commands {
		r.Dispatch(ctx, cmd)
	}
	return out.String()
}

func TestFullBookingScript(t *testing.T) {
	r, out := newRunner(t)

	output := run(t, r, out,
		"create_caregiver carla pw",
		"login_caregiver carla pw",
		"upload_availability 2021-05-01",
		"add_doses moderna 5",
		"logout",
		"create_patient pat pw",
		"login_patient pat pw",
		"search_caregiver_schedule 2021-05-01",
		"reserve 2021-05-01 moderna",
		"show_appointments",
	)

	assert.Contains(t, output, "Created user carla")
	assert.Contains(t, output, "Logged in as: carla")
	assert.Contains(t, output, "Availability uploaded!")
	assert.Contains(t, output, "Doses updated!")
	assert.Contains(t, output, "Successfully logged out")
	assert.Contains(t, output, "moderna 5")
	assert.Contains(t, output, "Appointment ID 1, Caregiver username carla")
	assert.Contains(t, output, "1 moderna 2021-05-01 carla")

	// After booking: the slot is gone and one dose was consumed.
	out.Reset()
	output = run(t, r, out, "search_caregiver_schedule 2021-05-01")
	assert.NotContains(t, output, "carla\n")
	assert.Contains(t, output, "moderna 4")

	// Cancelling restores both.
	out.Reset()
	output = run(t, r, out, "cancel 1", "search_caregiver_schedule 2021-05-01")
	assert.Contains(t, output, "Reservation canceled")
	assert.Contains(t, output, "carla\n")
	assert.Contains(t, output, "moderna 5")
}

func TestSessionExclusivity(t *testing.T) {
	r, out := newRunner(t)

	output := run(t, r, out,
		"create_patient pat pw",
		"create_caregiver carla pw",
		"login_patient pat pw",
		"login_caregiver carla pw",
	)

	assert.Contains(t, output, "Logged in as: pat")
	assert.Contains(t, output, "User already logged in, try again.")
	assert.NotContains(t, output, "Logged in as: carla")
}

func TestAuthFailures(t *testing.T) {
	r, out := newRunner(t)

	output := run(t, r, out,
		"create_patient pat pw",
		"create_patient pat other",
		"login_patient pat wrong",
		"logout",
	)

	assert.Contains(t, output, "Username taken, try again!")
	assert.Contains(t, output, "Login failed.")
	// Logout without a session.
	assert.Contains(t, output, "Please login first")
}

func TestMalformedInput(t *testing.T) {
	r, out := newRunner(t)

	output := run(t, r, out,
		"frobnicate",
		"create_patient onlyname",
		"reserve 2021-13-45 moderna",
		"cancel notanumber",
		"add_doses",
		"",
		"   ",
	)

	assert.Contains(t, output, "Invalid operation name!")
	assert.Contains(t, output, "Failed to create user.")
	assert.Contains(t, output, "Please enter a valid date! (YYYY-MM-DD)")
	assert.Contains(t, output, "Please enter a valid appointment ID")
	assert.Contains(t, output, "Please try again!")
}

func TestOperationsRequireLogin(t *testing.T) {
	r, out := newRunner(t)

	output := run(t, r, out,
		"search_caregiver_schedule 2021-05-01",
		"reserve 2021-05-01 moderna",
		"show_appointments",
		"cancel 1",
		"upload_availability 2021-05-01",
		"add_doses moderna 5",
	)

	assert.Contains(t, output, "Please login first")
	assert.Contains(t, output, "Please login as a caregiver first!")
}

func TestWrongRoleMessages(t *testing.T) {
	r, out := newRunner(t)

	output := run(t, r, out,
		"create_caregiver carla pw",
		"login_caregiver carla pw",
		"reserve 2021-05-01 moderna",
	)
	assert.Contains(t, output, "Please login as a patient")

	out.Reset()
	output = run(t, r, out,
		"logout",
		"create_patient pat pw",
		"login_patient pat pw",
		"upload_availability 2021-05-01",
		"add_doses moderna 5",
	)
	assert.Contains(t, output, "Please login as a caregiver first!")
}

func TestCancelUnknownReservation(t *testing.T) {
	r, out := newRunner(t)

	output := run(t, r, out,
		"create_patient pat pw",
		"login_patient pat pw",
		"cancel 999",
	)
	assert.Contains(t, output, "Reservation not found")
}

func TestRunLoopQuitsOnQuit(t *testing.T) {
	r, out := newRunner(t)

	in := strings.NewReader("create_patient pat pw\nquit\nnever_reached\n")
	err := r.Run(context.Background(), in)
	require.NoError(t, err)

	output := out.String()
	assert.Contains(t, output, "Welcome to the Vaccine Reservation Scheduling Application!")
	assert.Contains(t, output, "Created user pat")
	assert.Contains(t, output, "Bye!")
	assert.NotContains(t, output, "Invalid operation name!")
}
