package appointment

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/clinic-appointment-scheduling/internal/notification"
	"github.com/hackgods/clinic-appointment-scheduling/internal/observability/metrics"
	"github.com/hackgods/clinic-appointment-scheduling/internal/snapshot"
	"github.com/hackgods/clinic-appointment-scheduling/pkg/logging"
)

const (
	EventSlotCreated          = "SLOT_CREATED"
	EventBookingRequested     = "BOOKING_REQUESTED"
	EventAppointmentApproved  = "APPOINTMENT_APPROVED"
	EventAppointmentRejected  = "APPOINTMENT_REJECTED"
	EventPatientAssigned      = "PATIENT_ASSIGNED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentDeleted   = "APPOINTMENT_DELETED"
)

var tracer = otel.Tracer("clinic.internal.appointment")

// Notifier delivers feed messages. Recipients are user ids or
// notification.StaffInbox.
type Notifier interface {
	Notify(ctx context.Context, recipient, title, message string, kind notification.Kind) error
}

// Catalog provides the clinic's treatments and opening hours.
type Catalog interface {
	Treatment(id string) (Treatment, bool)
	Availability() Availability
}

type Deps struct {
	Repo      Repository
	Catalog   Catalog
	Notifier  Notifier
	Snapshots snapshot.Sink
	Logger    *logging.Logger
	Metrics   *metrics.Metrics

	// PatientWindow defaults to 48h.
	PatientWindow time.Duration
	// Now defaults to time.Now; its location is the clinic's wall clock.
	Now func() time.Time
}

type Service struct {
	repo     Repository
	catalog  Catalog
	notifier Notifier
	sink     snapshot.Sink
	logger   *logging.Logger
	metrics  *metrics.Metrics
	window   time.Duration
	now      func() time.Time

	// persistMu orders snapshot-then-enqueue so the last document enqueued
	// is always the newest state.
	persistMu sync.Mutex
}

func NewService(d Deps) *Service {
	if d.Repo == nil {
		panic("appointment: repository required")
	}
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	if d.PatientWindow <= 0 {
		d.PatientWindow = PatientWindow
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{
		repo:     d.Repo,
		catalog:  d.Catalog,
		notifier: d.Notifier,
		sink:     d.Snapshots,
		logger:   d.Logger,
		metrics:  d.Metrics,
		window:   d.PatientWindow,
		now:      d.Now,
	}
}

// CreateFreeSlot publishes an empty slot. The range must be well formed and
// must not overlap anything already occupying that date.
func (s *Service) CreateFreeSlot(ctx context.Context, date string, start, end Clock) (*Appointment, error) {
	ctx, span := s.startSpan(ctx, "appointment.create_free_slot", attribute.String("clinic.date", date))
	defer span.End()

	if _, err := ParseDate(date); err != nil {
		return nil, s.fail(span, "create_free_slot", err)
	}
	if !start.Valid() || !end.Valid() || end <= start {
		return nil, s.fail(span, "create_free_slot", fmt.Errorf("%w: %s-%s", ErrInvalidRange, start, end))
	}

	slot := Appointment{
		ID:        uuid.New(),
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Status:    StatusAvailable,
		CreatedAt: s.now(),
	}
	created, err := s.repo.InsertAppointment(ctx, slot)
	if err != nil {
		return nil, s.fail(span, "create_free_slot", err)
	}

	s.committed(ctx, "create_free_slot", created.ID, EventSlotCreated)
	return created, nil
}

// RequestBooking attaches a patient to a free slot and leaves it pending
// staff review.
func (s *Service) RequestBooking(ctx context.Context, slotID, clientID uuid.UUID, clientName string, details BookingDetails) (*Appointment, error) {
	ctx, span := s.startSpan(ctx, "appointment.request_booking", attribute.String("clinic.appointment_id", slotID.String()))
	defer span.End()

	if err := s.checkDetails(clientID, details); err != nil {
		return nil, s.fail(span, "request_booking", err)
	}

	updated, err := s.repo.UpdateAppointment(ctx, slotID, func(a *Appointment) error {
		if a.Status != StatusAvailable {
			return fmt.Errorf("%w: status is %s", ErrSlotNotAvailable, a.Status)
		}
		a.Status = StatusPending
		a.attach(clientID, clientName, details)
		return nil
	})
	if errors.Is(err, ErrAppointmentNotFound) {
		err = fmt.Errorf("%w: %s does not exist", ErrSlotNotAvailable, slotID)
	}
	if err != nil {
		return nil, s.fail(span, "request_booking", err)
	}

	s.committed(ctx, "request_booking", updated.ID, EventBookingRequested)
	s.notifyBookingRequested(ctx, updated)
	return updated, nil
}

// BookGeneratedSlot books one of the start times offered by AvailableSlots.
// Generated slots exist only transiently, so the booking creates the record
// directly in pending.
func (s *Service) BookGeneratedSlot(ctx context.Context, date string, start Clock, clientID uuid.UUID, clientName string, details BookingDetails) (*Appointment, error) {
	ctx, span := s.startSpan(ctx, "appointment.book_generated_slot", attribute.String("clinic.date", date))
	defer span.End()

	if err := s.checkDetails(clientID, details); err != nil {
		return nil, s.fail(span, "book_generated_slot", err)
	}
	treatment, err := s.treatment(details.TreatmentID)
	if err != nil {
		return nil, s.fail(span, "book_generated_slot", err)
	}
	offered, err := s.AvailableSlots(ctx, date, treatment.ID)
	if err != nil {
		return nil, s.fail(span, "book_generated_slot", err)
	}
	if !slices.Contains(offered, start) {
		return nil, s.fail(span, "book_generated_slot", fmt.Errorf("%w: %s %s is not offered", ErrSlotNotAvailable, date, start))
	}
	startsAt, err := At(date, start, s.now().Location())
	if err != nil {
		return nil, s.fail(span, "book_generated_slot", err)
	}
	if !startsAt.After(s.now()) {
		return nil, s.fail(span, "book_generated_slot", fmt.Errorf("%w: %s %s is in the past", ErrSlotNotAvailable, date, start))
	}
	end, err := start.AddMinutes(treatment.DurationMinutes)
	if err != nil {
		return nil, s.fail(span, "book_generated_slot", fmt.Errorf("%w: %v", ErrInvalidRange, err))
	}

	appt := Appointment{
		ID:        uuid.New(),
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Status:    StatusPending,
		CreatedAt: s.now(),
	}
	appt.attach(clientID, clientName, details)

	created, err := s.repo.InsertAppointment(ctx, appt)
	if errors.Is(err, ErrSlotOverlap) {
		err = fmt.Errorf("%w: %v", ErrSlotNotAvailable, err)
	}
	if err != nil {
		return nil, s.fail(span, "book_generated_slot", err)
	}

	s.committed(ctx, "book_generated_slot", created.ID, EventBookingRequested)
	s.notifyBookingRequested(ctx, created)
	return created, nil
}

func (s *Service) Approve(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.review(ctx, id, StatusApproved)
}

func (s *Service) Reject(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.review(ctx, id, StatusRejected)
}

func (s *Service) review(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	op, event, title := "approve", EventAppointmentApproved, "Appointment approved"
	if to == StatusRejected {
		op, event, title = "reject", EventAppointmentRejected, "Appointment rejected"
	}
	ctx, span := s.startSpan(ctx, "appointment."+op, attribute.String("clinic.appointment_id", id.String()))
	defer span.End()

	updated, err := s.repo.UpdateAppointment(ctx, id, func(a *Appointment) error {
		if a.Status != StatusPending {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
		}
		a.Status = to
		return nil
	})
	if err != nil {
		return nil, s.fail(span, op, err)
	}

	s.committed(ctx, op, updated.ID, event)
	s.notify(ctx, updated.ClientID.String(), title,
		fmt.Sprintf("Your appointment on %s at %s was %s.", updated.Date, updated.StartTime, to),
		notification.KindStatusChange)
	return updated, nil
}

// AssignPatient books a free slot on a patient's behalf. Staff bookings skip
// review and land in approved.
func (s *Service) AssignPatient(ctx context.Context, slotID, patientID uuid.UUID, patientName string) (*Appointment, error) {
	ctx, span := s.startSpan(ctx, "appointment.assign_patient", attribute.String("clinic.appointment_id", slotID.String()))
	defer span.End()

	if patientID == uuid.Nil {
		return nil, s.fail(span, "assign_patient", fmt.Errorf("%w: patient id is required", ErrInvalidActor))
	}

	updated, err := s.repo.UpdateAppointment(ctx, slotID, func(a *Appointment) error {
		if a.Status != StatusAvailable {
			return fmt.Errorf("%w: status is %s", ErrSlotNotAvailable, a.Status)
		}
		a.Status = StatusApproved
		a.attach(patientID, patientName, BookingDetails{})
		return nil
	})
	if errors.Is(err, ErrAppointmentNotFound) {
		err = fmt.Errorf("%w: %s does not exist", ErrSlotNotAvailable, slotID)
	}
	if err != nil {
		return nil, s.fail(span, "assign_patient", err)
	}

	s.committed(ctx, "assign_patient", updated.ID, EventPatientAssigned)
	s.notify(ctx, patientID.String(), "Appointment scheduled",
		fmt.Sprintf("The clinic booked you for %s at %s.", updated.Date, updated.StartTime),
		notification.KindStatusChange)
	return updated, nil
}

// Cancel frees a pending or approved appointment. Patients are held to the
// modification window and may only cancel their own booking; staff are not.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	ctx, span := s.startSpan(ctx, "appointment.cancel",
		attribute.String("clinic.appointment_id", id.String()),
		attribute.String("clinic.actor_role", string(actor.Role)))
	defer span.End()

	if !actor.Role.Valid() {
		return nil, s.fail(span, "cancel", fmt.Errorf("%w: role %q", ErrInvalidActor, actor.Role))
	}

	now := s.now()
	var previous Appointment
	updated, err := s.repo.UpdateAppointment(ctx, id, func(a *Appointment) error {
		if a.Status != StatusPending && a.Status != StatusApproved {
			return fmt.Errorf("%w: cannot cancel %s", ErrInvalidTransition, a.Status)
		}
		if actor.Role == RolePatient && (a.ClientID == nil || *a.ClientID != actor.UserID) {
			return ErrNotOwner
		}
		if actor.Role == RolePatient && !canManageWithin(a.Date, a.StartTime, now, s.window) {
			return fmt.Errorf("%w: starts %s %s", ErrLockedByPolicy, a.Date, a.StartTime)
		}
		previous = *a
		a.release()
		return nil
	})
	if err != nil {
		return nil, s.fail(span, "cancel", err)
	}

	s.committed(ctx, "cancel", updated.ID, EventAppointmentCancelled)
	when := fmt.Sprintf("%s at %s", previous.Date, previous.StartTime)
	s.notify(ctx, previous.ClientID.String(), "Appointment cancelled",
		fmt.Sprintf("Your appointment on %s was cancelled.", when),
		notification.KindStatusChange)
	s.notify(ctx, notification.StaffInbox, "Appointment cancelled",
		fmt.Sprintf("%s's appointment on %s was cancelled by %s.", previous.ClientName, when, actor.Role),
		notification.KindStatusChange)
	return updated, nil
}

// Delete removes an appointment in any status.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.startSpan(ctx, "appointment.delete", attribute.String("clinic.appointment_id", id.String()))
	defer span.End()

	removed, err := s.repo.DeleteAppointment(ctx, id)
	if err != nil {
		return s.fail(span, "delete", err)
	}
	s.committed(ctx, "delete", removed.ID, EventAppointmentDeleted)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]Appointment, error) {
	items, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return items, nil
}

// Upcoming returns clientID's pending and approved appointments that have
// not started yet, soonest first.
func (s *Service) Upcoming(ctx context.Context, clientID uuid.UUID, limit int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}

	now := s.now()
	items, err := s.repo.ListAppointments(ctx, Filter{ClientID: clientID, FromDate: now.Format(dateLayout)})
	if err != nil {
		return nil, fmt.Errorf("list upcoming: %w", err)
	}

	out := make([]Appointment, 0, len(items))
	for _, a := range items {
		if a.Status != StatusPending && a.Status != StatusApproved {
			continue
		}
		startsAt, err := At(a.Date, a.StartTime, now.Location())
		if err != nil || startsAt.Before(now) {
			continue
		}
		out = append(out, a)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// AvailableSlots lists the generated start times for a treatment on date.
func (s *Service) AvailableSlots(ctx context.Context, date, treatmentID string) ([]Clock, error) {
	if _, err := ParseDate(date); err != nil {
		return nil, err
	}
	treatment, err := s.treatment(treatmentID)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.ListAppointments(ctx, Filter{Date: date})
	if err != nil {
		return nil, fmt.Errorf("list appointments for %s: %w", date, err)
	}
	return slices.Collect(AvailableSlots(date, treatment, s.catalog.Availability(), existing)), nil
}

// CanPatientManage applies the configured modification window to a.
func (s *Service) CanPatientManage(a Appointment) bool {
	return canManageWithin(a.Date, a.StartTime, s.now(), s.window)
}

// Replace swaps the whole collection, e.g. when restoring a backup.
func (s *Service) Replace(ctx context.Context, items []Appointment) error {
	if err := s.repo.ReplaceAll(ctx, items); err != nil {
		return fmt.Errorf("replace appointments: %w", err)
	}
	s.persist(ctx)
	return nil
}

func (s *Service) treatment(id string) (Treatment, error) {
	if s.catalog == nil {
		return Treatment{}, fmt.Errorf("%w: no catalog configured", ErrTreatmentNotFound)
	}
	t, ok := s.catalog.Treatment(id)
	if !ok {
		return Treatment{}, fmt.Errorf("%w: %q", ErrTreatmentNotFound, id)
	}
	return t, nil
}

func (s *Service) checkDetails(clientID uuid.UUID, d BookingDetails) error {
	if clientID == uuid.Nil {
		return fmt.Errorf("%w: client id is required", ErrInvalidActor)
	}
	if d.Urgency != "" && !d.Urgency.Valid() {
		return fmt.Errorf("%w: unknown urgency %q", ErrInvalidDetails, d.Urgency)
	}
	if d.TreatmentID != "" {
		if _, err := s.treatment(d.TreatmentID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) notifyBookingRequested(ctx context.Context, a *Appointment) {
	when := fmt.Sprintf("%s at %s", a.Date, a.StartTime)
	s.notify(ctx, a.ClientID.String(), "Booking requested",
		fmt.Sprintf("Your request for %s is waiting for confirmation.", when),
		notification.KindStatusChange)
	s.notify(ctx, notification.StaffInbox, "New booking request",
		fmt.Sprintf("%s requested %s.", a.ClientName, when),
		notification.KindStatusChange)
}

// notify runs after a commit; a failed delivery never undoes the transition.
func (s *Service) notify(ctx context.Context, recipient, title, message string, kind notification.Kind) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, recipient, title, message, kind); err != nil {
		s.logger.Warn("notification failed", "recipient", recipient, "error", err)
	}
}

func (s *Service) committed(ctx context.Context, op string, id uuid.UUID, event string) {
	s.metrics.ObserveTransition(op, "ok")
	s.logger.Info("appointment event", "event", event, "appointment_id", id)
	s.persist(ctx)
}

func (s *Service) persist(ctx context.Context) {
	if s.sink == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	items, err := s.repo.Snapshot(ctx)
	if err != nil {
		s.logger.Error("snapshot appointments failed", "error", err)
		return
	}
	s.sink.Enqueue(snapshot.KeyAppointments, items)
}

func (s *Service) fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	s.metrics.ObserveTransition(op, outcome(err))
	s.logger.Debug("appointment operation rejected", "operation", op, "error", err)
	return err
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	span.SetAttributes(attrs...)
	return ctx, span
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRange):
		return "invalid_range"
	case errors.Is(err, ErrSlotNotAvailable):
		return "slot_not_available"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrLockedByPolicy):
		return "locked_by_policy"
	case errors.Is(err, ErrAppointmentNotFound):
		return "not_found"
	case errors.Is(err, ErrSlotOverlap):
		return "overlap"
	case errors.Is(err, ErrNotOwner):
		return "not_owner"
	default:
		return "error"
	}
}
