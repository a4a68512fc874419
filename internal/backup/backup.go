package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/clinic"
	"github.com/hackgods/clinic-appointment-scheduling/internal/patient"
	"github.com/hackgods/clinic-appointment-scheduling/internal/user"
	"github.com/hackgods/clinic-appointment-scheduling/pkg/logging"
)

var ErrInvalidBackup = errors.New("invalid backup document")

const FormatVersion = 1

// Document is the exported form of the clinic's data.
type Document struct {
	Version        int                       `json:"version"`
	ExportedAt     time.Time                 `json:"exportedAt"`
	Users          []user.User               `json:"users"`
	Appointments   []appointment.Appointment `json:"appointments"`
	Settings       clinic.State              `json:"settings"`
	PatientRecords []patient.Record          `json:"patientRecords"`
}

// rawDocument keeps each collection undecoded so absent keys can be told
// apart from empty ones.
type rawDocument struct {
	Users          json.RawMessage `json:"users"`
	Appointments   json.RawMessage `json:"appointments"`
	Settings       json.RawMessage `json:"settings"`
	PatientRecords json.RawMessage `json:"patientRecords"`
}

type Users interface {
	Snapshot() []user.User
	Replace(items []user.User) error
}

type Appointments interface {
	List(ctx context.Context, f appointment.Filter) ([]appointment.Appointment, error)
	Replace(ctx context.Context, items []appointment.Appointment) error
}

type Catalog interface {
	Snapshot() clinic.State
	Replace(ctx context.Context, st clinic.State) error
}

type Records interface {
	Snapshot() []patient.Record
	Replace(items []patient.Record) error
}

type Service struct {
	users        Users
	appointments Appointments
	catalog      Catalog
	records      Records
	logger       *logging.Logger
	now          func() time.Time
}

func NewService(users Users, appts Appointments, catalog Catalog, records Records, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		users:        users,
		appointments: appts,
		catalog:      catalog,
		records:      records,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *Service) Export(ctx context.Context) (*Document, error) {
	appts, err := s.appointments.List(ctx, appointment.Filter{})
	if err != nil {
		return nil, fmt.Errorf("export appointments: %w", err)
	}
	return &Document{
		Version:        FormatVersion,
		ExportedAt:     s.now(),
		Users:          s.users.Snapshot(),
		Appointments:   appts,
		Settings:       s.catalog.Snapshot(),
		PatientRecords: s.records.Snapshot(),
	}, nil
}

// Summary reports which collections an import replaced.
type Summary struct {
	Users          *int `json:"users,omitempty"`
	Appointments   *int `json:"appointments,omitempty"`
	Settings       bool `json:"settings"`
	PatientRecords *int `json:"patientRecords,omitempty"`
}

// Import replaces every collection present in data. All present
// collections are decoded and validated before anything is replaced, so a
// bad document leaves the current state untouched.
func (s *Service) Import(ctx context.Context, data []byte) (Summary, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}

	var (
		users   []user.User
		appts   []appointment.Appointment
		state   clinic.State
		records []patient.Record
		sum     Summary
	)

	if present(raw.Users) {
		if err := decode(raw.Users, "users", &users); err != nil {
			return Summary{}, err
		}
		if err := user.ValidateCollection(users); err != nil {
			return Summary{}, fmt.Errorf("%w: users: %v", ErrInvalidBackup, err)
		}
		sum.Users = ptr(len(users))
	}
	if present(raw.Appointments) {
		if err := decode(raw.Appointments, "appointments", &appts); err != nil {
			return Summary{}, err
		}
		if err := appointment.ValidateCollection(appts); err != nil {
			return Summary{}, fmt.Errorf("%w: appointments: %v", ErrInvalidBackup, err)
		}
		sum.Appointments = ptr(len(appts))
	}
	if present(raw.Settings) {
		if err := decode(raw.Settings, "settings", &state); err != nil {
			return Summary{}, err
		}
		if err := state.Validate(); err != nil {
			return Summary{}, fmt.Errorf("%w: settings: %v", ErrInvalidBackup, err)
		}
		sum.Settings = true
	}
	if present(raw.PatientRecords) {
		if err := decode(raw.PatientRecords, "patientRecords", &records); err != nil {
			return Summary{}, err
		}
		if err := patient.ValidateCollection(records); err != nil {
			return Summary{}, fmt.Errorf("%w: patientRecords: %v", ErrInvalidBackup, err)
		}
		sum.PatientRecords = ptr(len(records))
	}

	if sum.Users != nil {
		if err := s.users.Replace(users); err != nil {
			return sum, fmt.Errorf("restore users: %w", err)
		}
	}
	if sum.Appointments != nil {
		if err := s.appointments.Replace(ctx, appts); err != nil {
			return sum, fmt.Errorf("restore appointments: %w", err)
		}
	}
	if sum.Settings {
		if err := s.catalog.Replace(ctx, state); err != nil {
			return sum, fmt.Errorf("restore settings: %w", err)
		}
	}
	if sum.PatientRecords != nil {
		if err := s.records.Replace(records); err != nil {
			return sum, fmt.Errorf("restore patient records: %w", err)
		}
	}

	s.logger.Info("backup imported",
		"users", sum.Users != nil,
		"appointments", sum.Appointments != nil,
		"settings", sum.Settings,
		"patient_records", sum.PatientRecords != nil,
	)
	return sum, nil
}

func decode(raw json.RawMessage, name string, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidBackup, name, err)
	}
	return nil
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func ptr(n int) *int { return &n }
