package appointment

import (
	"context"

	"github.com/google/uuid"
)

// Filter narrows ListAppointments. Zero fields match everything.
type Filter struct {
	Date     string
	FromDate string
	Status   Status
	ClientID uuid.UUID
}

func (f Filter) match(a Appointment) bool {
	if f.Date != "" && a.Date != f.Date {
		return false
	}
	if f.FromDate != "" && a.Date < f.FromDate {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.ClientID != uuid.Nil && (a.ClientID == nil || *a.ClientID != f.ClientID) {
		return false
	}
	return true
}

// Repository owns the appointment collection. Every write is atomic with
// respect to other writes and re-checks the no-overlap invariant before it
// commits.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f Filter) ([]Appointment, error)

	// InsertAppointment fails with ErrSlotOverlap when the new interval
	// collides with an occupying appointment on the same date.
	InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error)

	// UpdateAppointment applies fn to a copy of the current record while
	// holding the write lock. An error from fn aborts with no change.
	UpdateAppointment(ctx context.Context, id uuid.UUID, fn func(a *Appointment) error) (*Appointment, error)

	DeleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Snapshot returns the whole collection ordered by date and start time.
	Snapshot(ctx context.Context) ([]Appointment, error)
	// ReplaceAll swaps the whole collection after validating it.
	ReplaceAll(ctx context.Context, items []Appointment) error
}
