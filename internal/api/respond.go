package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/backup"
	"github.com/hackgods/clinic-appointment-scheduling/internal/clinic"
	"github.com/hackgods/clinic-appointment-scheduling/internal/notification"
	"github.com/hackgods/clinic-appointment-scheduling/internal/patient"
	"github.com/hackgods/clinic-appointment-scheduling/internal/user"
	"github.com/hackgods/clinic-appointment-scheduling/pkg/logging"
)

const maxBodyBytes = 10 << 20

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// decodeJSON reads a size-limited body into dst and runs its validate tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, fmt.Sprintf("%s must be a valid UUID", name))
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return n
}

type errorMapping struct {
	status int
	code   string
	errs   []error
}

var errorMappings = []errorMapping{
	{http.StatusNotFound, "not_found", []error{
		appointment.ErrAppointmentNotFound, appointment.ErrTreatmentNotFound,
		user.ErrUserNotFound, patient.ErrRecordNotFound, notification.ErrNotFound,
	}},
	{http.StatusConflict, "slot_not_available", []error{appointment.ErrSlotNotAvailable}},
	{http.StatusConflict, "invalid_status_transition", []error{appointment.ErrInvalidTransition}},
	{http.StatusConflict, "slot_overlap", []error{appointment.ErrSlotOverlap}},
	{http.StatusConflict, "email_taken", []error{user.ErrEmailTaken}},
	{http.StatusLocked, "locked_by_policy", []error{appointment.ErrLockedByPolicy}},
	{http.StatusForbidden, "forbidden", []error{appointment.ErrNotOwner}},
	{http.StatusUnauthorized, "invalid_credentials", []error{user.ErrInvalidCredentials}},
	{http.StatusBadRequest, "invalid_request", []error{
		appointment.ErrInvalidRange, appointment.ErrInvalidDate, appointment.ErrInvalidClock,
		appointment.ErrInvalidDetails, appointment.ErrInvalidActor,
		clinic.ErrInvalidSettings, clinic.ErrDuplicateTreatment,
		user.ErrInvalidUser, patient.ErrInvalidTooth, patient.ErrInvalidCondition, patient.ErrInvalidPatient,
		backup.ErrInvalidBackup,
		notification.ErrInvalidKind, notification.ErrMissingRecipient,
	}},
}

// writeServiceError maps domain errors to HTTP responses. Anything
// unrecognised is logged and reported as a 500 without details.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	for _, m := range errorMappings {
		for _, target := range m.errs {
			if errors.Is(err, target) {
				writeError(w, m.status, m.code, err.Error())
				return
			}
		}
	}
	logger.Error("request failed", "path", r.URL.Path, "request_id", GetRequestID(r.Context()), "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
