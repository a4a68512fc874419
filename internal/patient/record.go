package patient

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/snapshot"
	"github.com/hackgods/clinic-appointment-scheduling/pkg/logging"
)

var (
	ErrRecordNotFound   = errors.New("patient record not found")
	ErrInvalidTooth     = errors.New("invalid tooth number")
	ErrInvalidCondition = errors.New("invalid tooth condition")
	ErrInvalidPatient   = errors.New("invalid patient id")
)

type Condition string

const (
	ConditionHealthy     Condition = "healthy"
	ConditionCaries      Condition = "caries"
	ConditionFilling     Condition = "filling"
	ConditionMissing     Condition = "missing"
	ConditionExtraction  Condition = "extraction"
	ConditionImplant     Condition = "implant"
	ConditionEndodontics Condition = "endodontics"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionHealthy, ConditionCaries, ConditionFilling, ConditionMissing,
		ConditionExtraction, ConditionImplant, ConditionEndodontics:
		return true
	}
	return false
}

// ValidTooth reports whether n is an FDI tooth number. Quadrants 1-4 hold
// eight permanent teeth each, quadrants 5-8 five primary teeth each.
func ValidTooth(n int) bool {
	quadrant, pos := n/10, n%10
	switch {
	case quadrant >= 1 && quadrant <= 4:
		return pos >= 1 && pos <= 8
	case quadrant >= 5 && quadrant <= 8:
		return pos >= 1 && pos <= 5
	}
	return false
}

type Tooth struct {
	Number    int       `json:"toothNumber"`
	Condition Condition `json:"condition"`
	Notes     string    `json:"notes,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Record struct {
	PatientID  uuid.UUID `json:"patientId"`
	Odontogram []Tooth   `json:"odontogram"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (r Record) Validate() error {
	if r.PatientID == uuid.Nil {
		return fmt.Errorf("%w: record without patient id", ErrInvalidPatient)
	}
	seen := make(map[int]struct{}, len(r.Odontogram))
	for _, t := range r.Odontogram {
		if !ValidTooth(t.Number) {
			return fmt.Errorf("%w: %d", ErrInvalidTooth, t.Number)
		}
		if !t.Condition.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidCondition, t.Condition)
		}
		if _, dup := seen[t.Number]; dup {
			return fmt.Errorf("patient %s: tooth %d listed twice", r.PatientID, t.Number)
		}
		seen[t.Number] = struct{}{}
	}
	return nil
}

type Service struct {
	mu      sync.RWMutex
	records map[uuid.UUID]Record
	sink    snapshot.Sink
	logger  *logging.Logger
	now     func() time.Time
}

func NewService(sink snapshot.Sink, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		records: make(map[uuid.UUID]Record),
		sink:    sink,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Service) GetRecord(_ context.Context, patientID uuid.UUID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[patientID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	r = cloneRecord(r)
	return &r, nil
}

// SetTooth records the condition of one tooth, creating the patient's record
// on first use.
func (s *Service) SetTooth(_ context.Context, patientID uuid.UUID, number int, cond Condition, notes string) (*Record, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient id is required", ErrInvalidPatient)
	}
	if !ValidTooth(number) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTooth, number)
	}
	if !cond.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCondition, cond)
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[patientID]
	if !ok {
		r = Record{PatientID: patientID}
	}
	r = cloneRecord(r)

	entry := Tooth{Number: number, Condition: cond, Notes: notes, UpdatedAt: now}
	if i := slices.IndexFunc(r.Odontogram, func(t Tooth) bool { return t.Number == number }); i >= 0 {
		r.Odontogram[i] = entry
	} else {
		r.Odontogram = append(r.Odontogram, entry)
		slices.SortFunc(r.Odontogram, func(a, b Tooth) int { return a.Number - b.Number })
	}
	r.UpdatedAt = now
	s.records[patientID] = r
	s.persistLocked()

	s.logger.Debug("tooth updated", "patient_id", patientID, "tooth", number, "condition", cond)
	out := cloneRecord(r)
	return &out, nil
}

// Delete drops the patient's record. Deleting a missing record is a no-op.
func (s *Service) Delete(_ context.Context, patientID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[patientID]; !ok {
		return nil
	}
	delete(s.records, patientID)
	s.persistLocked()
	return nil
}

func (s *Service) Snapshot() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Service) Replace(items []Record) error {
	if err := ValidateCollection(items); err != nil {
		return err
	}
	next := make(map[uuid.UUID]Record, len(items))
	for _, r := range items {
		next[r.PatientID] = cloneRecord(r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = next
	s.persistLocked()
	return nil
}

func ValidateCollection(items []Record) error {
	seen := make(map[uuid.UUID]struct{}, len(items))
	for _, r := range items {
		if err := r.Validate(); err != nil {
			return err
		}
		if _, dup := seen[r.PatientID]; dup {
			return fmt.Errorf("duplicate record for patient %s", r.PatientID)
		}
		seen[r.PatientID] = struct{}{}
	}
	return nil
}

func (s *Service) snapshotLocked() []Record {
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, cloneRecord(r))
	}
	slices.SortFunc(out, func(a, b Record) int {
		return slices.Compare(a.PatientID[:], b.PatientID[:])
	})
	return out
}

func (s *Service) persistLocked() {
	if s.sink != nil {
		s.sink.Enqueue(snapshot.KeyPatientRecords, s.snapshotLocked())
	}
}

func cloneRecord(r Record) Record {
	r.Odontogram = slices.Clone(r.Odontogram)
	if r.Odontogram == nil {
		r.Odontogram = []Tooth{}
	}
	return r
}
