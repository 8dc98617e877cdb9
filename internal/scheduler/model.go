package scheduler

import "time"

// DateLayout is the wire format for calendar days across the CLI and the
// storage layer.
const DateLayout = "2006-01-02"

type Role string

const (
	RolePatient   Role = "patient"
	RoleCaregiver Role = "caregiver"
)

// Session is the identity the current invocation acts as. The zero value
// means logged out. It is always passed explicitly into engine calls,
// never held in a package-level variable.
type Session struct {
	Role     Role
	Username string
}

func (s Session) LoggedIn() bool {
	return s.Username != ""
}

// AvailabilitySlot is one caregiver's declared availability for one day.
// At most one slot exists per (caregiver, day) pair.
type AvailabilitySlot struct {
	Caregiver string
	Day       time.Time
}

type VaccineStock struct {
	Name  string
	Doses int
}

// Reservation links a caregiver, a patient, a vaccine and a day. Its
// appointment id is assigned once at booking time and never reused.
type Reservation struct {
	AppointmentID int
	Caregiver     string
	Patient       string
	Vaccine       string
	Day           time.Time
}

// Counterparty returns the username on the other side of the reservation
// from the given session.
func (r Reservation) Counterparty(sess Session) string {
	if sess.Role == RoleCaregiver {
		return r.Patient
	}
	return r.Caregiver
}

// Booking is what a successful reserve reports back.
type Booking struct {
	AppointmentID int
	Caregiver     string
}

// Schedule is the read-only answer to a schedule search: caregivers with
// an open slot on the day, ascending by username, plus all vaccines that
// still have doses.
type Schedule struct {
	Caregivers []string
	Vaccines   []VaccineStock
}

// Appointment is one entry of a user's own reservation listing.
type Appointment struct {
	AppointmentID int
	Vaccine       string
	Day           time.Time
	Counterparty  string
}

// ParseDate parses a YYYY-MM-DD day token.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
