// Package scheduling abstracts the remote appointment backend behind a
// capability interface so the conversation engine never depends on a
// specific vendor protocol.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies adapter failures so callers can react without parsing
// error strings.
type ErrorKind string

const (
	// ErrKindUnreachable covers timeouts, DNS failures, and 5xx responses.
	ErrKindUnreachable ErrorKind = "unreachable"
	// ErrKindCredentials covers missing or rejected API credentials.
	ErrKindCredentials ErrorKind = "credentials"
	// ErrKindNotFound covers lookups of ids the backend does not know.
	ErrKindNotFound ErrorKind = "not_found"
	// ErrKindInvalid covers requests the backend rejected as malformed.
	ErrKindInvalid ErrorKind = "invalid"
)

// AdapterError is the structured failure type every Adapter operation
// returns. Callers use errors.As to branch on Kind.
type AdapterError struct {
	Kind   ErrorKind
	Op     string
	Detail string
	Err    error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scheduling: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("scheduling: %s: %s: %s", e.Op, e.Kind, e.Detail)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// NewAdapterError builds a structured adapter failure.
func NewAdapterError(kind ErrorKind, op, detail string, err error) *AdapterError {
	return &AdapterError{Kind: kind, Op: op, Detail: detail, Err: err}
}

// ErrorKindOf extracts the kind from err, or "" when err is not an
// AdapterError.
func ErrorKindOf(err error) ErrorKind {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// Service is a bookable treatment offered by the clinic.
type Service struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DurationMin int    `json:"duration_min"`
}

// Practitioner is a provider patients can be booked with.
type Practitioner struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Patient is the backend's record of a person.
type Patient struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"` // YYYY-MM-DD
}

// Slot is one bookable opening.
type Slot struct {
	Date             string `json:"date"`  // YYYY-MM-DD
	Time             string `json:"time"`  // HH:MM, 24-hour
	DisplayTime      string `json:"display_time"` // patient-facing, e.g. "9:30 AM"
	PractitionerID   string `json:"practitioner_id,omitempty"`
	PractitionerName string `json:"practitioner_name,omitempty"`
	ServiceID        string `json:"service_id,omitempty"`
	ServiceName      string `json:"service_name,omitempty"`
}

// Appointment is a confirmed booking.
type Appointment struct {
	ID               string `json:"id"`
	PatientID        string `json:"patient_id"`
	Date             string `json:"date"`
	Time             string `json:"time"`
	ServiceID        string `json:"service_id,omitempty"`
	ServiceName      string `json:"service_name,omitempty"`
	PractitionerID   string `json:"practitioner_id,omitempty"`
	PractitionerName string `json:"practitioner_name,omitempty"`
	Status           string `json:"status"` // booked, cancelled
}

// AvailabilityQuery asks for openings around a service/date, optionally
// pinned to a specific time or practitioner.
type AvailabilityQuery struct {
	ServiceID      string
	Date           string // YYYY-MM-DD
	Time           string // HH:MM; empty means general availability
	PractitionerID string
	WindowDays     int // how far past Date to search when the day is full
}

// SpecificTimeCheck reports whether the exact requested slot was free and,
// if not, the nearest alternative.
type SpecificTimeCheck struct {
	Requested     string `json:"requested"` // HH:MM
	IsAvailable   bool   `json:"is_available"`
	NearestSlot   *Slot  `json:"nearest_slot,omitempty"`
	NearestOnSame bool   `json:"nearest_on_same_day"`
}

// AvailabilityResult is the outcome of a slot search.
type AvailabilityResult struct {
	Date              string             `json:"date"`
	Slots             []Slot             `json:"slots"`
	SpecificTimeCheck *SpecificTimeCheck `json:"specific_time_check,omitempty"`
}

// CreateAppointmentRequest books a new appointment.
type CreateAppointmentRequest struct {
	PatientID      string
	ServiceID      string
	PractitionerID string
	Date           string
	Time           string
	Notes          string
}

// RescheduleRequest moves an existing appointment.
type RescheduleRequest struct {
	AppointmentID  string
	NewDate        string
	NewTime        string
	PractitionerID string // optional carry-through from the conversation
	ServiceID      string
	PatientID      string
}

// PatientSearchQuery locates an existing patient by name plus one secondary
// identifier.
type PatientSearchQuery struct {
	FirstName   string
	LastName    string
	DateOfBirth string // YYYY-MM-DD
	Phone       string
}

// Adapter is the capability interface implemented once per scheduling
// backend. Every operation is independently failable and must return an
// *AdapterError on failure rather than a silent default.
type Adapter interface {
	// Name identifies the backend for logs and health reporting.
	Name() string
	// Ping verifies connectivity within ctx's deadline.
	Ping(ctx context.Context) error
	ListServices(ctx context.Context) ([]Service, error)
	ListPractitioners(ctx context.Context) ([]Practitioner, error)
	CheckAvailability(ctx context.Context, q AvailabilityQuery) (*AvailabilityResult, error)
	CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (*Appointment, error)
	SearchPatient(ctx context.Context, q PatientSearchQuery) (*Patient, error)
	ListPatientAppointments(ctx context.Context, patientID string) ([]Appointment, error)
	CancelAppointment(ctx context.Context, appointmentID string, reasonCode string) error
	Reschedule(ctx context.Context, req RescheduleRequest) (*Appointment, error)
}

// DisplayTime renders HH:MM as a patient-facing 12-hour string.
func DisplayTime(hhmm string) string {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return hhmm
	}
	return t.Format("3:04 PM")
}
