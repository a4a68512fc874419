package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/backup"
	"github.com/hackgods/clinic-appointment-scheduling/internal/clinic"
	"github.com/hackgods/clinic-appointment-scheduling/internal/notification"
	"github.com/hackgods/clinic-appointment-scheduling/internal/observability/metrics"
	"github.com/hackgods/clinic-appointment-scheduling/internal/patient"
	"github.com/hackgods/clinic-appointment-scheduling/internal/user"
	"github.com/hackgods/clinic-appointment-scheduling/pkg/logging"
)

type RouterConfig struct {
	Appointments  *appointment.Service
	Catalog       *clinic.Catalog
	Users         *user.Service
	Notifications *notification.Service
	Records       *patient.Service
	Backup        *backup.Service

	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Logger   *logging.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	staff := RequireRole(appointment.RoleStaff)
	patientOnly := RequireRole(appointment.RolePatient)

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log, cfg.Metrics))
	r.Use(IdentityMiddleware)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Gatherer))

	// Public
	r.Post("/users", registerUserHandler(cfg.Users, log))
	r.Post("/auth/login", loginHandler(cfg.Users, log))
	r.Get("/treatments", listTreatmentsHandler(cfg.Catalog))
	r.Get("/settings", getSettingsHandler(cfg.Catalog))

	appts := appointmentHandlers{svc: cfg.Appointments, users: cfg.Users, logger: log}
	r.Get("/availability", appts.availability)

	r.Group(func(r chi.Router) {
		r.Use(RequireActor)

		r.Get("/appointments", appts.list)
		r.Get("/appointments/upcoming", appts.upcoming)
		r.Get("/appointments/{id}", appts.get)
		r.Post("/appointments/{id}/cancel", appts.cancel)

		r.With(patientOnly).Post("/appointments/book", appts.bookGenerated)
		r.With(patientOnly).Post("/appointments/{id}/request", appts.requestBooking)

		r.Get("/notifications", listNotificationsHandler(cfg.Notifications))
		r.Post("/notifications/{id}/read", markNotificationReadHandler(cfg.Notifications, log))
		r.Post("/notifications/read-all", markAllNotificationsReadHandler(cfg.Notifications))

		r.Get("/patients/{id}/odontogram", getOdontogramHandler(cfg.Records, log))
	})

	r.Group(func(r chi.Router) {
		r.Use(staff)

		r.Post("/appointments/slots", appts.createSlot)
		r.Post("/appointments/{id}/approve", appts.approve)
		r.Post("/appointments/{id}/reject", appts.reject)
		r.Post("/appointments/{id}/assign", appts.assign)
		r.Delete("/appointments/{id}", appts.delete)

		r.Put("/treatments", putTreatmentsHandler(cfg.Catalog, log))
		r.Put("/settings", putSettingsHandler(cfg.Catalog, log))

		r.Get("/users", listUsersHandler(cfg.Users))
		r.Delete("/users/{id}", deleteUserHandler(cfg.Users, log))

		r.Put("/patients/{id}/odontogram/{tooth}", setToothHandler(cfg.Records, log))

		r.Get("/backup", exportBackupHandler(cfg.Backup, log))
		r.Post("/backup", importBackupHandler(cfg.Backup, log))
	})

	return r
}
