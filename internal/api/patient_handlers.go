package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/notification"
	"github.com/hackgods/clinic-appointment-scheduling/internal/patient"
	"github.com/hackgods/clinic-appointment-scheduling/pkg/logging"
)

// feedRecipient maps a caller to their notification feed. Staff share the
// clinic inbox.
func feedRecipient(actor appointment.Actor) string {
	if actor.Role == appointment.RoleStaff {
		return notification.StaffInbox
	}
	return actor.UserID.String()
}

func listNotificationsHandler(svc *notification.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := actorFrom(r.Context())
		recipient := feedRecipient(actor)

		items := svc.ListFor(r.Context(), recipient)
		if items == nil {
			items = []notification.Notification{}
		}
		writeJSON(w, http.StatusOK, NotificationsResponse{
			Items:  items,
			Unread: svc.UnreadCount(r.Context(), recipient),
		})
	}
}

func markNotificationReadHandler(svc *notification.Service, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		actor, _ := actorFrom(r.Context())
		if err := svc.MarkRead(r.Context(), feedRecipient(actor), id); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func markAllNotificationsReadHandler(svc *notification.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := actorFrom(r.Context())
		n := svc.MarkAllRead(r.Context(), feedRecipient(actor))
		writeJSON(w, http.StatusOK, map[string]int{"marked": n})
	}
}

func getOdontogramHandler(svc *patient.Service, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		actor, _ := actorFrom(r.Context())
		if actor.Role == appointment.RolePatient && actor.UserID != id {
			writeError(w, http.StatusForbidden, "forbidden", "patients may only read their own record")
			return
		}

		rec, err := svc.GetRecord(r.Context(), id)
		if errors.Is(err, patient.ErrRecordNotFound) {
			// nothing charted yet
			writeJSON(w, http.StatusOK, patient.Record{PatientID: id, Odontogram: []patient.Tooth{}})
			return
		}
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func setToothHandler(svc *patient.Service, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		tooth, err := strconv.Atoi(chi.URLParam(r, "tooth"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_tooth", "tooth must be an FDI tooth number")
			return
		}
		var req SetToothRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		rec, err := svc.SetTooth(r.Context(), id, tooth, req.Condition, req.Notes)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}
