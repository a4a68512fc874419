package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusAvailable   Status = "available"
	StatusPending     Status = "pending"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusCancelled   Status = "cancelled"
	StatusCompleted   Status = "completed"
	StatusRescheduled Status = "rescheduled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusPending, StatusApproved, StatusRejected,
		StatusCancelled, StatusCompleted, StatusRescheduled:
		return true
	}
	return false
}

// Occupies reports whether an appointment in this status holds its interval.
// Free slots count: an open slot still reserves the chair.
func (s Status) Occupies() bool {
	switch s {
	case StatusCancelled, StatusRejected:
		return false
	case StatusAvailable, StatusPending, StatusApproved, StatusCompleted, StatusRescheduled:
		return true
	}
	return false
}

func (s *Status) UnmarshalText(b []byte) error {
	v := Status(b)
	if !v.Valid() {
		return fmt.Errorf("unknown appointment status %q", string(b))
	}
	*s = v
	return nil
}

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return true
	}
	return false
}

func (u *Urgency) UnmarshalText(b []byte) error {
	v := Urgency(b)
	if !v.Valid() {
		return fmt.Errorf("unknown urgency %q", string(b))
	}
	*u = v
	return nil
}

type Role string

const (
	RolePatient Role = "patient"
	RoleStaff   Role = "staff"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleStaff:
		return true
	}
	return false
}

// Actor is the caller of an operation as established by the authorization
// layer.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

// BookingDetails is the patient-supplied metadata attached at booking time.
type BookingDetails struct {
	TreatmentID  string  `json:"treatmentId,omitempty"`
	Urgency      Urgency `json:"urgency,omitempty"`
	Reason       string  `json:"reason,omitempty"`
	Symptoms     string  `json:"symptoms,omitempty"`
	Improvements string  `json:"improvements,omitempty"`
}

type Appointment struct {
	ID         uuid.UUID  `json:"id"`
	Date       string     `json:"date"`
	StartTime  Clock      `json:"startTime"`
	EndTime    Clock      `json:"endTime"`
	Status     Status     `json:"status"`
	ClientID   *uuid.UUID `json:"clientId,omitempty"`
	ClientName string     `json:"clientName,omitempty"`
	BookingDetails
	CreatedAt time.Time `json:"createdAt"`
}

// Booked reports whether a client occupies the appointment.
func (a Appointment) Booked() bool {
	return a.ClientID != nil
}

// attach books the appointment for a client.
func (a *Appointment) attach(clientID uuid.UUID, clientName string, details BookingDetails) {
	id := clientID
	a.ClientID = &id
	a.ClientName = clientName
	a.BookingDetails = details
}

// release returns the appointment to an empty free slot.
func (a *Appointment) release() {
	a.Status = StatusAvailable
	a.ClientID = nil
	a.ClientName = ""
	a.BookingDetails = BookingDetails{}
}

// Validate checks the per-record invariants: known status, a proper range,
// and a client present exactly when the slot is not free.
func (a Appointment) Validate() error {
	if a.ID == uuid.Nil {
		return fmt.Errorf("appointment id is required")
	}
	if _, err := ParseDate(a.Date); err != nil {
		return err
	}
	if !a.Status.Valid() {
		return fmt.Errorf("unknown appointment status %q", a.Status)
	}
	if !a.StartTime.Valid() || !a.EndTime.Valid() || a.EndTime <= a.StartTime {
		return fmt.Errorf("%w: %s-%s", ErrInvalidRange, a.StartTime, a.EndTime)
	}
	if (a.Status == StatusAvailable) == a.Booked() {
		return fmt.Errorf("appointment %s: status %s with client set=%t", a.ID, a.Status, a.Booked())
	}
	return nil
}

// Before orders appointments by date then start time.
func (a Appointment) Before(b Appointment) bool {
	if a.Date != b.Date {
		return a.Date < b.Date
	}
	return a.StartTime < b.StartTime
}

type Treatment struct {
	ID              string `json:"id" yaml:"id" validate:"required"`
	Name            string `json:"name" yaml:"name" validate:"required"`
	DurationMinutes int    `json:"durationMinutes" yaml:"duration_minutes" validate:"gt=0,lt=1440"`
	Price           int64  `json:"price" yaml:"price" validate:"gte=0"`
}

// Availability is the clinic's daily operating window. The lunch break is
// optional; a zero-length break means none.
type Availability struct {
	StartHour  Clock `json:"startHour" yaml:"start_hour"`
	EndHour    Clock `json:"endHour" yaml:"end_hour"`
	LunchStart Clock `json:"lunchStart,omitempty" yaml:"lunch_start"`
	LunchEnd   Clock `json:"lunchEnd,omitempty" yaml:"lunch_end"`
}

func (av Availability) Validate() error {
	if av.EndHour <= av.StartHour {
		return fmt.Errorf("%w: opening hours %s-%s", ErrInvalidRange, av.StartHour, av.EndHour)
	}
	if av.LunchEnd < av.LunchStart {
		return fmt.Errorf("%w: lunch %s-%s", ErrInvalidRange, av.LunchStart, av.LunchEnd)
	}
	return nil
}

func (av Availability) hasLunch() bool {
	return av.LunchEnd > av.LunchStart
}
