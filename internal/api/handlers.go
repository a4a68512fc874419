package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/user"
	"github.com/hackgods/clinic-appointment-scheduling/pkg/logging"
)

type appointmentHandlers struct {
	svc    *appointment.Service
	users  *user.Service
	logger *logging.Logger
}

func (h appointmentHandlers) createSlot(w http.ResponseWriter, r *http.Request) {
	var req CreateSlotRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	appt, err := h.svc.CreateFreeSlot(r.Context(), req.Date, req.StartTime, req.EndTime)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (h appointmentHandlers) list(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	q := r.URL.Query()

	f := appointment.Filter{Date: q.Get("date")}
	if s := q.Get("status"); s != "" {
		if err := f.Status.UnmarshalText([]byte(s)); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
			return
		}
	}
	if c := q.Get("client_id"); c != "" {
		id, err := uuid.Parse(c)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_client_id", "client_id must be a valid UUID")
			return
		}
		f.ClientID = id
	}

	items, err := h.svc.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if actor.Role == appointment.RolePatient {
		items = visibleTo(actor, items)
	}
	writeJSON(w, http.StatusOK, listOf(items))
}

// visibleTo keeps the free slots and the patient's own bookings.
func visibleTo(actor appointment.Actor, items []appointment.Appointment) []appointment.Appointment {
	out := items[:0]
	for _, a := range items {
		if a.Status == appointment.StatusAvailable || owns(actor, a) {
			out = append(out, a)
		}
	}
	return out
}

func owns(actor appointment.Actor, a appointment.Appointment) bool {
	return a.ClientID != nil && *a.ClientID == actor.UserID
}

func (h appointmentHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	appt, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	actor, _ := actorFrom(r.Context())
	if actor.Role == appointment.RolePatient && appt.Status != appointment.StatusAvailable && !owns(actor, *appt) {
		writeError(w, http.StatusNotFound, "not_found", appointment.ErrAppointmentNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h appointmentHandlers) upcoming(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())

	clientID := actor.UserID
	if actor.Role == appointment.RoleStaff {
		id, err := uuid.Parse(r.URL.Query().Get("client_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_client_id", "staff must pass client_id")
			return
		}
		clientID = id
	}

	items, err := h.svc.Upcoming(r.Context(), clientID, intQuery(r, "limit", 20))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(items))
}

func (h appointmentHandlers) requestBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req BookingDetailsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	actor, _ := actorFrom(r.Context())
	name, err := h.patientName(r.Context(), actor.UserID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	appt, err := h.svc.RequestBooking(r.Context(), id, actor.UserID, name, req.details())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h appointmentHandlers) bookGenerated(w http.ResponseWriter, r *http.Request) {
	var req BookSlotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TreatmentID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "treatment_id is required")
		return
	}

	actor, _ := actorFrom(r.Context())
	name, err := h.patientName(r.Context(), actor.UserID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	appt, err := h.svc.BookGeneratedSlot(r.Context(), req.Date, req.StartTime, actor.UserID, name, req.details())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (h appointmentHandlers) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Approve)
}

func (h appointmentHandlers) reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Reject)
}

func (h appointmentHandlers) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID) (*appointment.Appointment, error)) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	appt, err := fn(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h appointmentHandlers) assign(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req AssignPatientRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	name, err := h.patientName(r.Context(), req.PatientID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	appt, err := h.svc.AssignPatient(r.Context(), id, req.PatientID, name)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h appointmentHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	actor, _ := actorFrom(r.Context())

	appt, err := h.svc.Cancel(r.Context(), id, actor)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h appointmentHandlers) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h appointmentHandlers) availability(w http.ResponseWriter, r *http.Request) {
	date, treatmentID := r.URL.Query().Get("date"), r.URL.Query().Get("treatment_id")
	if date == "" || treatmentID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "date and treatment_id are required")
		return
	}

	slots, err := h.svc.AvailableSlots(r.Context(), date, treatmentID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if slots == nil {
		slots = []appointment.Clock{}
	}
	writeJSON(w, http.StatusOK, AvailabilityResponse{Date: date, TreatmentID: treatmentID, Slots: slots})
}

// patientName resolves a registered patient's display name.
func (h appointmentHandlers) patientName(ctx context.Context, id uuid.UUID) (string, error) {
	u, err := h.users.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if u.Role != appointment.RolePatient {
		return "", fmt.Errorf("%w: %s is not a patient", appointment.ErrInvalidActor, id)
	}
	return u.Name, nil
}
