package clinic

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/snapshot"
	"github.com/hackgods/clinic-appointment-scheduling/pkg/logging"
)

var (
	ErrInvalidSettings    = errors.New("invalid clinic settings")
	ErrDuplicateTreatment = errors.New("duplicate treatment id")
)

var validate = validator.New()

type Settings struct {
	Name         string                   `json:"name" yaml:"name" validate:"required"`
	Phone        string                   `json:"phone,omitempty" yaml:"phone"`
	Email        string                   `json:"email,omitempty" yaml:"email" validate:"omitempty,email"`
	Address      string                   `json:"address,omitempty" yaml:"address"`
	Availability appointment.Availability `json:"availability" yaml:"availability"`
}

func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	av := s.Availability
	for _, c := range []appointment.Clock{av.StartHour, av.EndHour, av.LunchStart, av.LunchEnd} {
		if !c.Valid() {
			return fmt.Errorf("%w: clock %d out of range", ErrInvalidSettings, int(c))
		}
	}
	if err := av.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}

// State is the full catalogue: contact details, opening hours and the
// treatments on offer.
type State struct {
	Settings   Settings                `json:"settings" yaml:"settings"`
	Treatments []appointment.Treatment `json:"treatments" yaml:"treatments"`
}

func (st State) Validate() error {
	if err := st.Settings.Validate(); err != nil {
		return err
	}
	return ValidateTreatments(st.Treatments)
}

func ValidateTreatments(items []appointment.Treatment) error {
	seen := make(map[string]struct{}, len(items))
	for _, t := range items {
		if err := validate.Struct(t); err != nil {
			return fmt.Errorf("%w: treatment %q: %v", ErrInvalidSettings, t.ID, err)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("%w: %w: %q", ErrInvalidSettings, ErrDuplicateTreatment, t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}

// LoadFile reads and validates the clinic YAML file.
func LoadFile(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, fmt.Errorf("read clinic file: %w", err)
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("decode clinic file %s: %w", path, err)
	}
	if err := st.Validate(); err != nil {
		return State{}, err
	}
	return st, nil
}

// Default is used when no clinic file is available.
func Default() State {
	return State{
		Settings: Settings{
			Name: "Dental Clinic",
			Availability: appointment.Availability{
				StartHour:  appointment.MustClock("09:00"),
				EndHour:    appointment.MustClock("18:00"),
				LunchStart: appointment.MustClock("13:00"),
				LunchEnd:   appointment.MustClock("14:00"),
			},
		},
		Treatments: []appointment.Treatment{
			{ID: "checkup", Name: "Checkup", DurationMinutes: 30, Price: 40},
			{ID: "cleaning", Name: "Cleaning", DurationMinutes: 45, Price: 60},
			{ID: "filling", Name: "Filling", DurationMinutes: 60, Price: 90},
		},
	}
}

// Catalog holds the live clinic configuration. It satisfies
// appointment.Catalog.
type Catalog struct {
	mu     sync.RWMutex
	state  State
	sink   snapshot.Sink
	logger *logging.Logger
}

func NewCatalog(st State, sink snapshot.Sink, logger *logging.Logger) (*Catalog, error) {
	if err := st.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Catalog{state: clone(st), sink: sink, logger: logger}, nil
}

func (c *Catalog) Treatment(id string) (appointment.Treatment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := slices.IndexFunc(c.state.Treatments, func(t appointment.Treatment) bool { return t.ID == id })
	if i < 0 {
		return appointment.Treatment{}, false
	}
	return c.state.Treatments[i], true
}

func (c *Catalog) Availability() appointment.Availability {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Settings.Availability
}

func (c *Catalog) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Settings
}

func (c *Catalog) Treatments() []appointment.Treatment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.state.Treatments)
}

func (c *Catalog) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.state)
}

func (c *Catalog) UpdateSettings(_ context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	c.state.Settings = s
	c.mu.Unlock()

	c.logger.Info("clinic settings updated", "name", s.Name)
	c.enqueue(snapshot.KeySettings, s)
	return nil
}

func (c *Catalog) ReplaceTreatments(_ context.Context, items []appointment.Treatment) error {
	if err := ValidateTreatments(items); err != nil {
		return err
	}
	items = slices.Clone(items)

	c.mu.Lock()
	c.state.Treatments = items
	c.mu.Unlock()

	c.logger.Info("treatments replaced", "count", len(items))
	c.enqueue(snapshot.KeyTreatments, items)
	return nil
}

// Replace swaps settings and treatments together.
func (c *Catalog) Replace(ctx context.Context, st State) error {
	if err := st.Validate(); err != nil {
		return err
	}
	st = clone(st)

	c.mu.Lock()
	c.state = st
	c.mu.Unlock()

	c.enqueue(snapshot.KeySettings, st.Settings)
	c.enqueue(snapshot.KeyTreatments, st.Treatments)
	return nil
}

func (c *Catalog) enqueue(key snapshot.Key, v any) {
	if c.sink != nil {
		c.sink.Enqueue(key, v)
	}
}

func clone(st State) State {
	st.Treatments = slices.Clone(st.Treatments)
	if st.Treatments == nil {
		st.Treatments = []appointment.Treatment{}
	}
	return st
}
