package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-appointment-scheduling/internal/api"
	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/backup"
	"github.com/hackgods/clinic-appointment-scheduling/internal/clinic"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/notification"
	"github.com/hackgods/clinic-appointment-scheduling/internal/observability/metrics"
	"github.com/hackgods/clinic-appointment-scheduling/internal/patient"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
	"github.com/hackgods/clinic-appointment-scheduling/internal/snapshot"
	"github.com/hackgods/clinic-appointment-scheduling/internal/user"
	"github.com/hackgods/clinic-appointment-scheduling/internal/worker"
	"github.com/hackgods/clinic-appointment-scheduling/pkg/logging"
	"github.com/hackgods/clinic-appointment-scheduling/pkg/password"
)

const Version = "0.1.0"

// App is the fully wired clinic: backends, domain services and the
// background workers that serve them.
type App struct {
	Config   config.Config
	Logger   *logging.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	PgPool *pgxpool.Pool
	Redis  *redis.Client
	Store  snapshot.Store
	Writer *snapshot.Writer

	Catalog       *clinic.Catalog
	Users         *user.Service
	Records       *patient.Service
	Notifications *notification.Service
	Appointments  *appointment.Service
	Backup        *backup.Service
	Reminder      *worker.Reminder
}

type Options struct {
	// Store overrides the backend chosen from the config.
	Store  snapshot.Store
	Hasher *password.Hasher
	Now    func() time.Time
}

// New connects the configured backends, builds every service and restores
// the last saved state. The snapshot writer is not started.
func New(ctx context.Context, cfg config.Config, logger *logging.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  metrics.New(reg),
		Store:    opts.Store,
	}

	if err := a.connect(ctx); err != nil {
		a.closeBackends()
		return nil, err
	}
	a.Writer = snapshot.NewWriter(a.Store, logger.With("component", "snapshot"), a.Metrics, cfg.SnapshotTimeout)

	if err := a.build(ctx, opts); err != nil {
		a.closeBackends()
		return nil, err
	}
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	if cfg.PostgresDSN != "" {
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancel()
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		a.PgPool = pool
		a.Logger.Info("connected to Postgres")
	}

	if cfg.RedisEnabled() {
		rdb, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.Redis = rdb
		a.Logger.Info("connected to Redis", "addr", cfg.RedisAddr)
	}

	if a.Store != nil {
		return nil
	}
	switch {
	case a.PgPool != nil:
		a.Store = snapshot.NewPgStore(a.PgPool)
	case a.Redis != nil:
		a.Store = snapshot.NewRedisStore(a.Redis)
	default:
		a.Logger.Warn("no snapshot backend configured, state will not survive a restart")
		a.Store = snapshot.NewMemoryStore()
	}
	return nil
}

func (a *App) build(ctx context.Context, opts Options) error {
	cfg, log := a.Config, a.Logger

	state, err := a.loadCatalog(ctx)
	if err != nil {
		return err
	}
	a.Catalog, err = clinic.NewCatalog(state, a.Writer, log.With("component", "clinic"))
	if err != nil {
		return fmt.Errorf("clinic catalog: %w", err)
	}

	a.Records = patient.NewService(a.Writer, log.With("component", "patient"))
	a.Users = user.NewService(opts.Hasher, a.Records, a.Writer, log.With("component", "user"))
	a.Notifications = notification.NewService(a.Writer, log.With("component", "notification"), a.Metrics)
	a.Appointments = appointment.NewService(appointment.Deps{
		Repo:          appointment.NewMemoryRepository(),
		Catalog:       a.Catalog,
		Notifier:      a.Notifications,
		Snapshots:     a.Writer,
		Logger:        log.With("component", "appointment"),
		Metrics:       a.Metrics,
		PatientWindow: cfg.CancelWindow,
		Now:           opts.Now,
	})
	a.Backup = backup.NewService(a.Users, a.Appointments, a.Catalog, a.Records, log.With("component", "backup"))

	if err := a.hydrate(ctx); err != nil {
		return err
	}

	var (
		locker redisclient.Locker
		ledger redisclient.Ledger
	)
	if a.Redis != nil {
		locker = redisclient.NewRedisLocker(a.Redis, cfg.LockTTL)
		ledger = redisclient.NewRedisLedger(a.Redis, "reminder:")
	}
	a.Reminder = worker.NewReminder(a.Appointments, a.Notifications, locker, ledger, worker.Config{
		Lead:     cfg.ReminderLead,
		Interval: cfg.WorkerInterval,
	}, log, a.Metrics)
	return nil
}

// loadCatalog prefers saved settings over the YAML file, which in turn
// beats the built-in defaults.
func (a *App) loadCatalog(ctx context.Context) (clinic.State, error) {
	state, err := clinic.LoadFile(a.Config.ClinicConfig)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		a.Logger.Warn("clinic file not found, using defaults", "path", a.Config.ClinicConfig)
		state = clinic.Default()
	case err != nil:
		return clinic.State{}, err
	}

	var saved clinic.Settings
	if ok, err := snapshot.LoadJSON(ctx, a.Store, snapshot.KeySettings, &saved); err != nil {
		return clinic.State{}, err
	} else if ok {
		state.Settings = saved
	}

	var treatments []appointment.Treatment
	if ok, err := snapshot.LoadJSON(ctx, a.Store, snapshot.KeyTreatments, &treatments); err != nil {
		return clinic.State{}, err
	} else if ok {
		state.Treatments = treatments
	}
	return state, nil
}

func (a *App) hydrate(ctx context.Context) error {
	var users []user.User
	if ok, err := snapshot.LoadJSON(ctx, a.Store, snapshot.KeyUsers, &users); err != nil {
		return err
	} else if ok {
		if err := a.Users.Replace(users); err != nil {
			return fmt.Errorf("restore users: %w", err)
		}
	}

	var records []patient.Record
	if ok, err := snapshot.LoadJSON(ctx, a.Store, snapshot.KeyPatientRecords, &records); err != nil {
		return err
	} else if ok {
		if err := a.Records.Replace(records); err != nil {
			return fmt.Errorf("restore patient records: %w", err)
		}
	}

	var notes []notification.Notification
	if ok, err := snapshot.LoadJSON(ctx, a.Store, snapshot.KeyNotifications, &notes); err != nil {
		return err
	} else if ok {
		if err := a.Notifications.Replace(notes); err != nil {
			return fmt.Errorf("restore notifications: %w", err)
		}
	}

	var appts []appointment.Appointment
	if ok, err := snapshot.LoadJSON(ctx, a.Store, snapshot.KeyAppointments, &appts); err != nil {
		return err
	} else if ok {
		if err := a.Appointments.Replace(ctx, appts); err != nil {
			return fmt.Errorf("restore appointments: %w", err)
		}
	}

	a.Logger.Info("state restored",
		"users", len(users),
		"appointments", len(appts),
		"notifications", len(notes),
		"patient_records", len(records),
	)
	return nil
}

func (a *App) Router() http.Handler {
	return api.NewRouter(api.RouterConfig{
		Appointments:  a.Appointments,
		Catalog:       a.Catalog,
		Users:         a.Users,
		Notifications: a.Notifications,
		Records:       a.Records,
		Backup:        a.Backup,
		PgPool:        a.PgPool,
		Redis:         a.Redis,
		Logger:        a.Logger,
		Metrics:       a.Metrics,
		Gatherer:      a.Registry,
		Env:           a.Config.Env,
		Version:       Version,
	})
}

// Close flushes pending snapshots and releases the backends.
func (a *App) Close(ctx context.Context) {
	if a.Writer != nil {
		a.Writer.Close(ctx)
	}
	a.closeBackends()
}

func (a *App) closeBackends() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("error closing redis", "error", err)
		}
		a.Redis = nil
	}
	if a.PgPool != nil {
		a.PgPool.Close()
		a.PgPool = nil
	}
}
