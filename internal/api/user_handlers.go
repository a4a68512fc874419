package api

import (
	"net/http"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/user"
	"github.com/hackgods/clinic-appointment-scheduling/pkg/logging"
)

// registerUserHandler is open for patient sign-up; only staff may create
// staff accounts.
func registerUserHandler(svc *user.Service, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterUserRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Role == "" {
			req.Role = appointment.RolePatient
		}
		if req.Role == appointment.RoleStaff {
			if actor, ok := actorFrom(r.Context()); !ok || actor.Role != appointment.RoleStaff {
				writeError(w, http.StatusForbidden, "forbidden", "only staff may create staff accounts")
				return
			}
		}

		u, err := svc.Register(r.Context(), user.RegisterInput{
			Email:    req.Email,
			Name:     req.Name,
			Phone:    req.Phone,
			Password: req.Password,
			Role:     req.Role,
		})
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, toUserResponse(*u))
	}
}

func loginHandler(svc *user.Service, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		u, err := svc.Authenticate(r.Context(), req.Email, req.Password)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(*u))
	}
}

func listUsersHandler(svc *user.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := appointment.Role(r.URL.Query().Get("role"))
		if role != "" && !role.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_role", "role must be patient or staff")
			return
		}

		users := svc.List(r.Context(), role)
		out := make([]UserResponse, 0, len(users))
		for _, u := range users {
			out = append(out, toUserResponse(u))
		}
		writeJSON(w, http.StatusOK, listOf(out))
	}
}

func deleteUserHandler(svc *user.Service, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
