package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/hackgods/clinic-appointment-scheduling/internal/app"
	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/user"
	"github.com/hackgods/clinic-appointment-scheduling/pkg/logging"
)

const seedPassword = "changeme-123"

func main() {
	patients := flag.Int("patients", 200, "patients to register")
	staff := flag.Int("staff", 5, "staff members to register")
	days := flag.Int("days", 10, "working days of free slots to publish")
	slotMinutes := flag.Int("slot-minutes", 30, "length of each published slot")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel)
	logger.Info("seed starting", "patients", *patients, "staff", *staff, "days", *days)
	if cfg.PostgresDSN == "" && !cfg.RedisEnabled() {
		logger.Warn("no POSTGRES_DSN or REDIS_ADDR set, seeded data will not outlive this process")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close(context.Background())

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedUsers(ctx, a.Users, appointment.RoleStaff, *staff, logger); err != nil {
		logger.Error("seed staff", "error", err)
		os.Exit(1)
	}
	if err := seedUsers(ctx, a.Users, appointment.RolePatient, *patients, logger); err != nil {
		logger.Error("seed patients", "error", err)
		os.Exit(1)
	}
	if err := seedSlots(ctx, a, *days, *slotMinutes, logger); err != nil {
		logger.Error("seed slots", "error", err)
		os.Exit(1)
	}

	logger.Info("seed complete")
}

func seedUsers(ctx context.Context, users *user.Service, role appointment.Role, count int, logger *logging.Logger) error {
	created := 0
	for created < count {
		_, err := users.Register(ctx, user.RegisterInput{
			Email:    gofakeit.Email(),
			Name:     gofakeit.Name(),
			Phone:    gofakeit.Phone(),
			Password: seedPassword,
			Role:     role,
		})
		if errors.Is(err, user.ErrEmailTaken) {
			continue
		}
		if err != nil {
			return err
		}
		created++
	}
	logger.Info("users seeded", "role", role, "count", created)
	return nil
}

// seedSlots publishes back-to-back free slots inside opening hours for the
// next working days, leaving lunch and anything already booked alone.
func seedSlots(ctx context.Context, a *app.App, days, slotMinutes int, logger *logging.Logger) error {
	av := a.Catalog.Availability()
	day := time.Now().AddDate(0, 0, 1)

	created, skipped := 0, 0
	for seeded := 0; seeded < days; day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		seeded++
		date := day.Format("2006-01-02")

		for start := av.StartHour; ; {
			end, err := start.AddMinutes(slotMinutes)
			if err != nil || end > av.EndHour {
				break
			}
			if av.LunchEnd > av.LunchStart && appointment.IntervalsOverlap(start, end, av.LunchStart, av.LunchEnd) {
				start = av.LunchEnd
				continue
			}

			_, err = a.Appointments.CreateFreeSlot(ctx, date, start, end)
			switch {
			case errors.Is(err, appointment.ErrSlotOverlap):
				skipped++
			case err != nil:
				return err
			default:
				created++
			}
			start = end
		}
	}

	logger.Info("slots seeded", "created", created, "skipped", skipped)
	return nil
}
