package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/notification"
	"github.com/hackgods/clinic-appointment-scheduling/internal/observability/metrics"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
	"github.com/hackgods/clinic-appointment-scheduling/pkg/logging"
)

const sweepLock = "reminder-sweep"

type Appointments interface {
	List(ctx context.Context, f appointment.Filter) ([]appointment.Appointment, error)
}

type Config struct {
	Lead     time.Duration
	Interval time.Duration
	// RunTimeout bounds a single sweep.
	RunTimeout time.Duration
}

// Reminder notifies patients ahead of their approved appointments. Each
// appointment is reminded at most once per booking.
type Reminder struct {
	appts    Appointments
	notifier appointment.Notifier
	locker   redisclient.Locker
	ledger   redisclient.Ledger
	cfg      Config
	logger   *logging.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewReminder(appts Appointments, notifier appointment.Notifier, locker redisclient.Locker, ledger redisclient.Ledger,
	cfg Config, logger *logging.Logger, m *metrics.Metrics) *Reminder {
	if cfg.Lead <= 0 {
		cfg.Lead = 24 * time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 20 * time.Second
	}
	if locker == nil {
		locker = redisclient.NewLocalLocker()
	}
	if ledger == nil {
		ledger = redisclient.NewMemoryLedger()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Reminder{
		appts:    appts,
		notifier: notifier,
		locker:   locker,
		ledger:   ledger,
		cfg:      cfg,
		logger:   logger.With("component", "reminder-worker"),
		metrics:  m,
		now:      time.Now,
	}
}

// Run sweeps once at startup and then on every tick until ctx is done.
func (r *Reminder) Run(ctx context.Context) {
	r.logger.Info("reminder worker starting", "interval", r.cfg.Interval, "lead", r.cfg.Lead)
	r.runOnce(ctx)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reminder worker stopped")
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Reminder) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, r.cfg.RunTimeout)
	defer cancel()

	start := time.Now()
	sent, err := r.Sweep(runCtx)
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		r.logger.Debug("reminder sweep skipped, another instance holds the lock")
	case err != nil:
		r.logger.Error("reminder sweep failed", "error", err)
	default:
		r.logger.Debug("reminder sweep complete", "sent", sent, "took", time.Since(start))
	}
}

// Sweep sends reminders for approved appointments starting within the lead
// time and returns how many went out.
func (r *Reminder) Sweep(ctx context.Context) (int, error) {
	var sent int
	err := r.locker.WithLock(ctx, sweepLock, func(ctx context.Context) error {
		now := r.now()
		items, err := r.appts.List(ctx, appointment.Filter{
			Status:   appointment.StatusApproved,
			FromDate: now.Format(time.DateOnly),
		})
		if err != nil {
			return fmt.Errorf("list approved appointments: %w", err)
		}

		horizon := now.Add(r.cfg.Lead)
		for _, a := range items {
			if a.ClientID == nil {
				continue
			}
			startsAt, err := appointment.At(a.Date, a.StartTime, now.Location())
			if err != nil || !startsAt.After(now) || startsAt.After(horizon) {
				continue
			}

			key := fmt.Sprintf("%s:%s:%s:%s", a.ID, a.ClientID, a.Date, a.StartTime)
			first, err := r.ledger.MarkOnce(ctx, key, r.cfg.Lead+24*time.Hour)
			if err != nil {
				return err
			}
			if !first {
				continue
			}

			msg := fmt.Sprintf("Reminder: you have an appointment on %s at %s.", a.Date, a.StartTime)
			if err := r.notifier.Notify(ctx, a.ClientID.String(), "Upcoming appointment", msg, notification.KindReminder); err != nil {
				r.logger.Warn("reminder not delivered", "appointment_id", a.ID, "error", err)
				// unmark so the next sweep retries
				if ferr := r.ledger.Forget(ctx, key); ferr != nil {
					r.logger.Error("reminder mark not cleared", "appointment_id", a.ID, "error", ferr)
				}
				continue
			}
			r.metrics.ObserveReminder()
			sent++
		}
		return nil
	})
	return sent, err
}
