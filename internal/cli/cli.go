// Package cli is the line-oriented front end: it parses one command per
// line, tracks the single authenticated session, and maps engine errors to
// terminal messages. No failure ever terminates the loop; only quit does.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/vaxsched/vaccine-scheduler/internal/auth"
	"github.com/vaxsched/vaccine-scheduler/internal/scheduler"
)

type Runner struct {
	engine   *scheduler.Service
	accounts *auth.Service
	out      io.Writer
	session  scheduler.Session
}

func New(engine *scheduler.Service, accounts *auth.Service, out io.Writer) *Runner {
	return &Runner{
		engine:   engine,
		accounts: accounts,
		out:      out,
	}
}

func (r *Runner) printBanner() {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Welcome to the Vaccine Reservation Scheduling Application!")
	fmt.Fprintln(r.out, "*** Please enter one of the following commands ***")
	fmt.Fprintln(r.out, "> create_patient <username> <password>")
	fmt.Fprintln(r.out, "> create_caregiver <username> <password>")
	fmt.Fprintln(r.out, "> login_patient <username> <password>")
	fmt.Fprintln(r.out, "> login_caregiver <username> <password>")
	fmt.Fprintln(r.out, "> search_caregiver_schedule <date>")
	fmt.Fprintln(r.out, "> reserve <date> <vaccine>")
	fmt.Fprintln(r.out, "> upload_availability <date>")
	fmt.Fprintln(r.out, "> cancel <appointment_id>")
	fmt.Fprintln(r.out, "> add_doses <vaccine> <number>")
	fmt.Fprintln(r.out, "> show_appointments")
	fmt.Fprintln(r.out, "> logout")
	fmt.Fprintln(r.out, "> quit")
	fmt.Fprintln(r.out)
}

// Run reads commands until quit or EOF.
func (r *Runner) Run(ctx context.Context, in io.Reader) error {
	r.printBanner()

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			break
		}
		if r.Dispatch(ctx, scanner.Text()) {
			return nil
		}
	}
	return scanner.Err()
}

// Dispatch executes one command line. It reports true when the session
// should end.
func (r *Runner) Dispatch(ctx context.Context, line string) (quit bool) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return false
	}

	switch tokens[0] {
	case "create_patient":
		r.createAccount(ctx, scheduler.RolePatient, tokens)
	case "create_caregiver":
		r.createAccount(ctx, scheduler.RoleCaregiver, tokens)
	case "login_patient":
		r.login(ctx, scheduler.RolePatient, tokens)
	case "login_caregiver":
		r.login(ctx, scheduler.RoleCaregiver, tokens)
	case "search_caregiver_schedule":
		r.searchSchedule(ctx, tokens)
	case "reserve":
		r.reserve(ctx, tokens)
	case "upload_availability":
		r.uploadAvailability(ctx, tokens)
	case "cancel":
		r.cancel(ctx, tokens)
	case "add_doses":
		r.addDoses(ctx, tokens)
	case "show_appointments":
		r.showAppointments(ctx)
	case "logout":
		r.logout()
	case "quit":
		fmt.Fprintln(r.out, "Bye!")
		return true
	default:
		fmt.Fprintln(r.out, "Invalid operation name!")
	}
	return false
}

func (r *Runner) createAccount(ctx context.Context, role scheduler.Role, tokens []string) {
	if len(tokens) != 3 {
		fmt.Fprintln(r.out, "Failed to create user.")
		return
	}
	username, password := tokens[1], tokens[2]

	if err := r.accounts.Register(ctx, role, username, password); err != nil {
		if errors.Is(err, auth.ErrUsernameTaken) {
			fmt.Fprintln(r.out, "Username taken, try again!")
			return
		}
		r.printError(err, "Failed to create user.")
		return
	}
	fmt.Fprintf(r.out, "Created user %s\n", username)
}

func (r *Runner) login(ctx context.Context, role scheduler.Role, tokens []string) {
	if r.session.LoggedIn() {
		r.printError(scheduler.ErrAlreadyLoggedIn, "Login failed.")
		return
	}
	if len(tokens) != 3 {
		fmt.Fprintln(r.out, "Login failed.")
		return
	}
	username, password := tokens[1], tokens[2]

	sess, err := r.accounts.Login(ctx, role, username, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			fmt.Fprintln(r.out, "Login failed.")
			return
		}
		r.printError(err, "Login failed.")
		return
	}

	r.session = sess
	fmt.Fprintf(r.out, "Logged in as: %s\n", username)
}

func (r *Runner) logout() {
	if !r.session.LoggedIn() {
		fmt.Fprintln(r.out, "Please login first")
		return
	}
	r.session = scheduler.Session{}
	fmt.Fprintln(r.out, "Successfully logged out")
}

func (r *Runner) searchSchedule(ctx context.Context, tokens []string) {
	if len(tokens) != 2 {
		fmt.Fprintln(r.out, "Please try again!")
		return
	}
	day, err := scheduler.ParseDate(tokens[1])
	if err != nil {
		fmt.Fprintln(r.out, "Please enter a valid date! (YYYY-MM-DD)")
		return
	}

	schedule, err := r.engine.SearchSchedule(ctx, r.session, day)
	if err != nil {
		r.printError(err, "Please try again!")
		return
	}

	for _, caregiver := range schedule.Caregivers {
		fmt.Fprintln(r.out, caregiver)
	}
	for _, v := range schedule.Vaccines {
		fmt.Fprintf(r.out, "%s %d\n", v.Name, v.Doses)
	}
}

func (r *Runner) reserve(ctx context.Context, tokens []string) {
	if len(tokens) != 3 {
		fmt.Fprintln(r.out, "Please try again!")
		return
	}
	day, err := scheduler.ParseDate(tokens[1])
	if err != nil {
		fmt.Fprintln(r.out, "Please enter a valid date! (YYYY-MM-DD)")
		return
	}
	vaccine := tokens[2]

	booking, err := r.engine.Reserve(ctx, r.session, day, vaccine)
	if err != nil {
		if errors.Is(err, scheduler.ErrWrongRole) {
			fmt.Fprintln(r.out, "Please login as a patient")
			return
		}
		r.printError(err, "Please try again!")
		return
	}

	fmt.Fprintf(r.out, "Appointment ID %d, Caregiver username %s\n", booking.AppointmentID, booking.Caregiver)
}

func (r *Runner) uploadAvailability(ctx context.Context, tokens []string) {
	if len(tokens) != 2 {
		fmt.Fprintln(r.out, "Please try again!")
		return
	}
	day, err := scheduler.ParseDate(tokens[1])
	if err != nil {
		fmt.Fprintln(r.out, "Please enter a valid date! (YYYY-MM-DD)")
		return
	}

	if err := r.engine.UploadAvailability(ctx, r.session, day); err != nil {
		if errors.Is(err, scheduler.ErrWrongRole) || errors.Is(err, scheduler.ErrNotLoggedIn) {
			fmt.Fprintln(r.out, "Please login as a caregiver first!")
			return
		}
		r.printError(err, "Error occurred when uploading availability")
		return
	}
	fmt.Fprintln(r.out, "Availability uploaded!")
}

func (r *Runner) cancel(ctx context.Context, tokens []string) {
	if len(tokens) != 2 {
		fmt.Fprintln(r.out, "Please try again!")
		return
	}
	appointmentID, err := strconv.Atoi(tokens[1])
	if err != nil {
		fmt.Fprintln(r.out, "Please enter a valid appointment ID")
		return
	}

	if err := r.engine.Cancel(ctx, r.session, appointmentID); err != nil {
		r.printError(err, "Error occurred when canceling")
		return
	}
	fmt.Fprintln(r.out, "Reservation canceled")
}

func (r *Runner) addDoses(ctx context.Context, tokens []string) {
	if len(tokens) != 3 {
		fmt.Fprintln(r.out, "Please try again!")
		return
	}
	vaccine := tokens[1]
	count, err := strconv.Atoi(tokens[2])
	if err != nil {
		fmt.Fprintln(r.out, "Please enter a positive number of doses")
		return
	}

	if err := r.engine.AddDoses(ctx, r.session, vaccine, count); err != nil {
		if errors.Is(err, scheduler.ErrWrongRole) || errors.Is(err, scheduler.ErrNotLoggedIn) {
			fmt.Fprintln(r.out, "Please login as a caregiver first!")
			return
		}
		r.printError(err, "Error occurred when adding doses")
		return
	}
	fmt.Fprintln(r.out, "Doses updated!")
}

func (r *Runner) showAppointments(ctx context.Context) {
	appointments, err := r.engine.ListAppointments(ctx, r.session)
	if err != nil {
		r.printError(err, "Please try again!")
		return
	}

	for _, a := range appointments {
		fmt.Fprintf(r.out, "%d %s %s %s\n", a.AppointmentID, a.Vaccine, a.Day.Format(scheduler.DateLayout), a.Counterparty)
	}
}

// printError maps domain errors to terminal messages; anything unmapped is
// a storage-level failure, reported generically and logged for the operator.
func (r *Runner) printError(err error, fallback string) {
	switch {
	case errors.Is(err, scheduler.ErrNotLoggedIn):
		fmt.Fprintln(r.out, "Please login first")
	case errors.Is(err, scheduler.ErrAlreadyLoggedIn):
		fmt.Fprintln(r.out, "User already logged in, try again.")
	case errors.Is(err, scheduler.ErrNotAuthorized):
		fmt.Fprintln(r.out, "You are not authorized to cancel this reservation")
	case errors.Is(err, scheduler.ErrVaccineNotFound):
		fmt.Fprintln(r.out, "Vaccine not found")
	case errors.Is(err, scheduler.ErrInsufficientStock):
		fmt.Fprintln(r.out, "Not enough available doses")
	case errors.Is(err, scheduler.ErrNoCaregiverAvailable):
		fmt.Fprintln(r.out, "No caregiver is available")
	case errors.Is(err, scheduler.ErrReservationNotFound):
		fmt.Fprintln(r.out, "Reservation not found")
	case errors.Is(err, scheduler.ErrDuplicateSlot):
		fmt.Fprintln(r.out, "Availability already uploaded for that date")
	case errors.Is(err, scheduler.ErrInvalidDoseCount):
		fmt.Fprintln(r.out, "Please enter a positive number of doses")
	case errors.Is(err, scheduler.ErrConflict):
		fmt.Fprintln(r.out, "Another booking is in progress, please try again")
	default:
		log.Printf("command failed: %v", err)
		fmt.Fprintln(r.out, fallback)
	}
}
